/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package replication

import (
	"context"
	"sync"
	"testing"
	"time"

	"flyraft/internal/engine"
)

func lid(term uint64, node engine.NodeID, index uint64) engine.LogID {
	return engine.LogID{LeaderID: engine.LeaderID{Term: term, NodeID: node}, Index: index}
}

// fakeLog serves entries 0..n-1 under one leader epoch.
type fakeLog struct {
	n uint64
}

func (f *fakeLog) EntryRange(begin, end uint64) ([]engine.Entry, error) {
	var out []engine.Entry
	for i := begin; i < end && i < f.n; i++ {
		out = append(out, &engine.BlankEntry{LogID: lid(1, 1, i)})
	}
	return out, nil
}

// fakeTransport records batches and answers from a scripted queue.
type fakeTransport struct {
	mu      sync.Mutex
	batches [][]engine.Entry
	prevs   []engine.OptionalLogID
	answers []engine.AppendEntriesResponse
}

func (f *fakeTransport) AppendEntries(_ context.Context, _ engine.NodeID, prev engine.OptionalLogID, entries []engine.Entry, _ engine.OptionalLogID) (engine.AppendEntriesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, entries)
	f.prevs = append(f.prevs, prev)
	if len(f.answers) == 0 {
		return engine.AppendEntriesResponse{Outcome: engine.AppendSuccess}, nil
	}
	resp := f.answers[0]
	if len(f.answers) > 1 {
		f.answers = f.answers[1:]
	}
	return resp, nil
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStreamShipsEntriesAndReportsAck(t *testing.T) {
	tr := &fakeTransport{}
	var mu sync.Mutex
	acks := make(map[engine.NodeID]engine.OptionalLogID)

	m := NewManager(
		Config{MaxPayloadEntries: 10, Interval: time.Hour},
		&fakeLog{n: 3},
		tr,
		Callbacks{OnAck: func(target engine.NodeID, matching engine.OptionalLogID) {
			mu.Lock()
			acks[target] = matching
			mu.Unlock()
		}},
	)
	defer m.Stop()

	m.SetLeaderState(engine.SomeLogID(lid(1, 1, 2)), engine.NoLogID())
	m.UpdateTargets([]engine.NodeID{2})
	m.Notify()

	waitFor(t, "ack", func() bool {
		mu.Lock()
		defer mu.Unlock()
		got, ok := acks[2]
		return ok && got.Equal(engine.SomeLogID(lid(1, 1, 2)))
	})

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.batches) == 0 || len(tr.batches[0]) != 3 {
		t.Fatalf("first batch = %d entries, want 3", len(tr.batches[0]))
	}
	if tr.prevs[0].Valid {
		t.Errorf("first batch prev = %s, want None (from scratch)", tr.prevs[0])
	}
}

func TestStreamStopsOnHigherVote(t *testing.T) {
	higher := engine.Vote{Term: 9, NodeID: 3, Committed: true}
	tr := &fakeTransport{answers: []engine.AppendEntriesResponse{
		{Outcome: engine.AppendHigherVote, HigherVote: higher},
	}}

	var mu sync.Mutex
	var reported engine.Vote

	m := NewManager(
		Config{MaxPayloadEntries: 10, Interval: time.Hour},
		&fakeLog{n: 1},
		tr,
		Callbacks{OnHigherVote: func(_ engine.NodeID, vote engine.Vote) {
			mu.Lock()
			reported = vote
			mu.Unlock()
		}},
	)
	defer m.Stop()

	m.SetLeaderState(engine.SomeLogID(lid(1, 1, 0)), engine.NoLogID())
	m.UpdateTargets([]engine.NodeID{2})
	m.Notify()

	waitFor(t, "higher-vote report", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reported == higher
	})

	// The stream is dead; further notifies must not send again.
	calls := tr.calls()
	m.Notify()
	time.Sleep(50 * time.Millisecond)
	if tr.calls() != calls {
		t.Errorf("stream kept sending after a higher vote")
	}
}

func TestConflictRestartsCursorFromScratch(t *testing.T) {
	tr := &fakeTransport{answers: []engine.AppendEntriesResponse{
		{Outcome: engine.AppendConflict},
		{Outcome: engine.AppendSuccess},
	}}

	m := NewManager(
		Config{MaxPayloadEntries: 10, Interval: time.Hour},
		&fakeLog{n: 2},
		tr,
		Callbacks{},
	)
	defer m.Stop()

	m.SetLeaderState(engine.SomeLogID(lid(1, 1, 1)), engine.NoLogID())
	// Pretend an earlier epoch had matched up to index 1.
	m.RecordMatching(2, engine.SomeLogID(lid(1, 1, 1)))
	m.UpdateTargets([]engine.NodeID{2})

	m.Notify()
	waitFor(t, "conflict round", func() bool { return tr.calls() >= 1 })
	m.Notify()
	waitFor(t, "retry round", func() bool { return tr.calls() >= 2 })

	tr.mu.Lock()
	defer tr.mu.Unlock()
	// After the conflict the cursor restarts from nothing: prev=None
	// and the full log is resent.
	if tr.prevs[1].Valid {
		t.Errorf("retry prev = %s, want None", tr.prevs[1])
	}
	if len(tr.batches[1]) != 2 {
		t.Errorf("retry batch = %d entries, want 2", len(tr.batches[1]))
	}
}

func TestLagTriggersSnapshotRequest(t *testing.T) {
	tr := &fakeTransport{}
	var mu sync.Mutex
	requested := false

	m := NewManager(
		Config{MaxPayloadEntries: 10, Interval: time.Hour, LagThreshold: 5},
		&fakeLog{n: 100},
		tr,
		Callbacks{OnNeedSnapshot: func(engine.NodeID) {
			mu.Lock()
			requested = true
			mu.Unlock()
		}},
	)
	defer m.Stop()

	m.SetLeaderState(engine.SomeLogID(lid(1, 1, 99)), engine.NoLogID())
	m.UpdateTargets([]engine.NodeID{2})
	m.Notify()

	waitFor(t, "snapshot request", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return requested
	})
	if tr.calls() != 0 {
		t.Errorf("lagging follower was sent a log batch instead of a snapshot request")
	}
}

func TestUpdateTargetsRemovesStreams(t *testing.T) {
	tr := &fakeTransport{}
	m := NewManager(Config{MaxPayloadEntries: 10, Interval: time.Hour}, &fakeLog{n: 1}, tr, Callbacks{})
	defer m.Stop()

	m.SetLeaderState(engine.SomeLogID(lid(1, 1, 0)), engine.NoLogID())
	m.UpdateTargets([]engine.NodeID{2, 3})
	m.UpdateTargets([]engine.NodeID{3})

	m.mu.Lock()
	_, has2 := m.streams[2]
	_, has3 := m.streams[3]
	m.mu.Unlock()
	if has2 || !has3 {
		t.Errorf("streams after reconcile: has2=%v has3=%v, want false/true", has2, has3)
	}
}
