/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package cluster

import (
	"bytes"
	"testing"

	"flyraft/internal/engine"
)

func TestLogStateMachineApplySkipsNonData(t *testing.T) {
	sm := NewLogStateMachine()

	sm.Apply(&engine.BlankEntry{})
	sm.Apply(&engine.MembershipEntry{Config: engine.NewMembership(engine.NewVoterSet(1))})
	sm.Apply(&engine.DataEntry{Data: []byte("first")})
	sm.Apply(&engine.DataEntry{Data: []byte("second")})

	if sm.Len() != 2 {
		t.Fatalf("Len = %d, want 2", sm.Len())
	}
	if !bytes.Equal(sm.Record(0), []byte("first")) {
		t.Errorf("Record(0) = %q", sm.Record(0))
	}
	if sm.Record(5) != nil {
		t.Errorf("out-of-range record = %q", sm.Record(5))
	}
}

func TestLogStateMachineSnapshotRestore(t *testing.T) {
	sm := NewLogStateMachine()
	for _, payload := range []string{"a", "bb", "ccc"} {
		sm.Apply(&engine.DataEntry{Data: []byte(payload)})
	}

	snap, err := sm.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	restored := NewLogStateMachine()
	restored.Apply(&engine.DataEntry{Data: []byte("stale local state")})
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if restored.Len() != 3 {
		t.Fatalf("restored Len = %d, want 3", restored.Len())
	}
	for i, want := range []string{"a", "bb", "ccc"} {
		if !bytes.Equal(restored.Record(i), []byte(want)) {
			t.Errorf("Record(%d) = %q, want %q", i, restored.Record(i), want)
		}
	}
}

func TestLogStateMachineRestoreRejectsGarbage(t *testing.T) {
	sm := NewLogStateMachine()
	sm.Apply(&engine.DataEntry{Data: []byte("keep")})

	if err := sm.Restore([]byte{0x01, 0x02}); err == nil {
		t.Fatalf("Restore accepted truncated data")
	}
	// A failed restore must not have destroyed the existing state.
	if sm.Len() != 1 {
		t.Errorf("state lost on failed restore: Len = %d", sm.Len())
	}
}
