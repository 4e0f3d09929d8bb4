/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package storage

import (
	"testing"

	"flyraft/internal/engine"
)

func lid(term uint64, node engine.NodeID, index uint64) engine.LogID {
	return engine.LogID{LeaderID: engine.LeaderID{Term: term, NodeID: node}, Index: index}
}

func TestRaftStoreVoteRoundTrip(t *testing.T) {
	eng, cleanup := setupTestEngine(t)
	defer cleanup()
	store := NewRaftStore(eng)

	v, err := store.Vote()
	if err != nil {
		t.Fatalf("Vote on empty store: %v", err)
	}
	if v != engine.ZeroVote {
		t.Errorf("empty store vote = %s, want zero", v)
	}

	want := engine.Vote{Term: 7, NodeID: 2, Committed: true}
	if err := store.SaveVote(want); err != nil {
		t.Fatalf("SaveVote: %v", err)
	}
	got, err := store.Vote()
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if got != want {
		t.Errorf("vote = %s, want %s", got, want)
	}
}

func TestRaftStoreAppendAndReadEntries(t *testing.T) {
	eng, cleanup := setupTestEngine(t)
	defer cleanup()
	store := NewRaftStore(eng)

	entries := []engine.Entry{
		&engine.MembershipEntry{LogID: lid(0, 0, 0), Config: engine.NewMembership(engine.NewVoterSet(1, 2))},
		&engine.BlankEntry{LogID: lid(1, 1, 1)},
		&engine.DataEntry{LogID: lid(1, 1, 2), Data: []byte("payload")},
	}
	if err := store.AppendEntries(entries); err != nil {
		t.Fatalf("AppendEntries: %v", err)
	}

	got, err := store.EntryRange(0, 3)
	if err != nil {
		t.Fatalf("EntryRange: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if d, ok := got[2].(*engine.DataEntry); !ok || string(d.Data) != "payload" {
		t.Errorf("entry 2 = %#v", got[2])
	}
	if _, ok := got[0].(*engine.MembershipEntry); !ok {
		t.Errorf("entry 0 lost its membership: %#v", got[0])
	}
}

func TestRaftStoreDeleteSinceAndPurge(t *testing.T) {
	eng, cleanup := setupTestEngine(t)
	defer cleanup()
	store := NewRaftStore(eng)

	var entries []engine.Entry
	for i := uint64(0); i < 10; i++ {
		entries = append(entries, &engine.BlankEntry{LogID: lid(1, 1, i)})
	}
	if err := store.AppendEntries(entries); err != nil {
		t.Fatalf("AppendEntries: %v", err)
	}

	if err := store.DeleteSince(7); err != nil {
		t.Fatalf("DeleteSince: %v", err)
	}
	if got, _ := store.EntryRange(0, 10); len(got) != 7 {
		t.Errorf("after DeleteSince(7): %d entries, want 7", len(got))
	}

	if err := store.PurgeUpto(lid(1, 1, 3)); err != nil {
		t.Fatalf("PurgeUpto: %v", err)
	}
	got, _ := store.EntryRange(0, 10)
	if len(got) != 3 {
		t.Errorf("after PurgeUpto(3): %d entries, want 3", len(got))
	}
	if len(got) > 0 && got[0].GetLogID().Index != 4 {
		t.Errorf("first surviving index = %d, want 4", got[0].GetLogID().Index)
	}
}

func TestRaftStoreGetInitialState(t *testing.T) {
	eng, dir, cleanup := setupTestEngineWithPath(t)
	defer cleanup()
	store := NewRaftStore(eng)

	membership := engine.NewMembership(engine.NewVoterSet(1, 2))
	entries := []engine.Entry{
		&engine.MembershipEntry{LogID: lid(0, 0, 0), Config: membership},
		&engine.BlankEntry{LogID: lid(1, 1, 1)},
		&engine.DataEntry{LogID: lid(1, 1, 2), Data: []byte("x")},
	}
	if err := store.AppendEntries(entries); err != nil {
		t.Fatalf("AppendEntries: %v", err)
	}
	if err := store.SaveVote(engine.Vote{Term: 1, NodeID: 1, Committed: true}); err != nil {
		t.Fatalf("SaveVote: %v", err)
	}
	if err := store.SaveApplied(lid(1, 1, 1)); err != nil {
		t.Fatalf("SaveApplied: %v", err)
	}

	// Reopen from disk: WAL replay plus state reconstruction.
	if err := eng.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	reopened, err := NewStorageEngine(StorageConfig{DataDir: dir, Type: EngineTypeDisk})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	state, err := NewRaftStore(reopened).GetInitialState(1)
	if err != nil {
		t.Fatalf("GetInitialState: %v", err)
	}

	if state.Vote != (engine.Vote{Term: 1, NodeID: 1, Committed: true}) {
		t.Errorf("vote = %s", state.Vote)
	}
	if got := state.LastLogID(); !got.Equal(engine.SomeLogID(lid(1, 1, 2))) {
		t.Errorf("last log id = %s", got)
	}
	if !state.Committed.Equal(engine.SomeLogID(lid(1, 1, 1))) {
		t.Errorf("committed = %s", state.Committed)
	}
	if !state.EffectiveMembership.LogID.Equal(engine.SomeLogID(lid(0, 0, 0))) {
		t.Errorf("effective membership at %s", state.EffectiveMembership.LogID)
	}
	if !state.EffectiveMembership.Membership.IsVoter(2) {
		t.Errorf("membership lost voter 2")
	}
}

func TestRaftStoreSnapshotMetaRoundTrip(t *testing.T) {
	eng, cleanup := setupTestEngine(t)
	defer cleanup()
	store := NewRaftStore(eng)

	if _, ok, err := store.SnapshotMeta(); err != nil || ok {
		t.Fatalf("empty store snapshot: ok=%v err=%v", ok, err)
	}

	meta := engine.SnapshotMeta{
		LastLogID: engine.SomeLogID(lid(2, 1, 50)),
		LastMembership: engine.EffectiveMembership{
			LogID:      engine.SomeLogID(lid(1, 1, 10)),
			Membership: engine.NewMembership(engine.NewVoterSet(1, 2, 3)),
		},
		SnapshotID: "snap-42",
	}
	if err := store.SaveSnapshotMeta(meta); err != nil {
		t.Fatalf("SaveSnapshotMeta: %v", err)
	}
	got, ok, err := store.SnapshotMeta()
	if err != nil || !ok {
		t.Fatalf("SnapshotMeta: ok=%v err=%v", ok, err)
	}
	if got.SnapshotID != "snap-42" || !got.LastLogID.Equal(meta.LastLogID) {
		t.Errorf("meta = %+v", got)
	}
}

func TestMemoryEngineScanOrder(t *testing.T) {
	m := NewMemoryEngine()
	defer m.Close()

	// Inserted out of order; big-endian keys must scan in index order.
	for _, idx := range []uint64{5, 1, 300, 9, 256} {
		if err := m.Put(append([]byte("log/"), EncodeIndexKey(idx)...), []byte{byte(idx)}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	var got []uint64
	m.Scan([]byte("log/"), func(key, _ []byte) bool {
		idx, ok := DecodeIndexKey(key)
		if !ok {
			t.Fatalf("non-log key in scan: %q", key)
		}
		got = append(got, idx)
		return true
	})

	want := []uint64{1, 5, 9, 256, 300}
	if len(got) != len(want) {
		t.Fatalf("scanned %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("scan order = %v, want %v", got, want)
		}
	}
}
