/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"flyraft/internal/storage"
)

func newTestManager(cfg Config) *Manager {
	return NewManager(storage.NewMemoryEngine(), cfg)
}

func TestLogAndQueryEvents(t *testing.T) {
	m := newTestManager(DefaultConfig())

	m.LogEvent(Event{EventType: EventTypeLeaderElected, NodeID: "n1", Term: 3, Status: StatusSuccess})
	m.LogEvent(Event{EventType: EventTypeNodeDead, NodeID: "n1", PeerID: "n2", Status: StatusFailed})
	m.Stop() // flushes the buffer

	events, err := m.QueryLogs(QueryOptions{})
	if err != nil {
		t.Fatalf("QueryLogs: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	failed, err := m.QueryLogs(QueryOptions{Status: StatusFailed})
	if err != nil {
		t.Fatalf("QueryLogs failed-only: %v", err)
	}
	if len(failed) != 1 || failed[0].PeerID != "n2" {
		t.Errorf("failed query = %+v", failed)
	}

	byType, err := m.QueryLogs(QueryOptions{EventType: EventTypeLeaderElected})
	if err != nil {
		t.Fatalf("QueryLogs by type: %v", err)
	}
	if len(byType) != 1 || byType[0].Term != 3 {
		t.Errorf("by-type query = %+v", byType)
	}
}

func TestEventFiltering(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogProposals = false
	m := newTestManager(cfg)

	m.LogEvent(Event{EventType: EventTypeProposalAccepted, NodeID: "n1"})
	m.LogEvent(Event{EventType: EventTypeLeaderElected, NodeID: "n1"})
	m.Stop()

	events, err := m.QueryLogs(QueryOptions{})
	if err != nil {
		t.Fatalf("QueryLogs: %v", err)
	}
	if len(events) != 1 || events[0].EventType != EventTypeLeaderElected {
		t.Errorf("filtering failed: %+v", events)
	}
}

func TestDisabledManagerRecordsNothing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	m := newTestManager(cfg)

	m.LogEvent(Event{EventType: EventTypeLeaderElected, NodeID: "n1"})
	events, err := m.QueryLogs(QueryOptions{})
	if err != nil {
		t.Fatalf("QueryLogs: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("disabled manager recorded %d events", len(events))
	}
}

func TestExportFormats(t *testing.T) {
	m := newTestManager(DefaultConfig())
	m.LogEvent(Event{EventType: EventTypeLeaderElected, NodeID: "n1", Term: 2, Status: StatusSuccess})
	m.Stop()

	dir, err := os.MkdirTemp("", "flyraft-audit-*")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	tests := []struct {
		format ExportFormat
		needle string
	}{
		{FormatJSON, `"LEADER_ELECTED"`},
		{FormatCSV, "LEADER_ELECTED"},
		{FormatText, "LEADER_ELECTED"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			path := filepath.Join(dir, "out."+string(tt.format))
			if err := m.ExportLogs(path, tt.format, QueryOptions{}); err != nil {
				t.Fatalf("ExportLogs(%s): %v", tt.format, err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read export: %v", err)
			}
			if !strings.Contains(string(data), tt.needle) {
				t.Errorf("export missing %q:\n%s", tt.needle, data)
			}
		})
	}
}

func TestQueryHelperElectionHistory(t *testing.T) {
	m := newTestManager(DefaultConfig())
	m.LogEvent(Event{EventType: EventTypeLeaderElected, NodeID: "n1", Timestamp: time.Now().Add(-2 * time.Second)})
	m.LogEvent(Event{EventType: EventTypeNodeJoin, NodeID: "n1", PeerID: "n2", Timestamp: time.Now().Add(-1 * time.Second)})
	m.LogEvent(Event{EventType: EventTypeLeaderStepDown, NodeID: "n1", Timestamp: time.Now()})
	m.Stop()

	history, err := NewQueryHelper(m).GetElectionHistory(10)
	if err != nil {
		t.Fatalf("GetElectionHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %d events, want 2", len(history))
	}
	if history[0].EventType != EventTypeLeaderElected || history[1].EventType != EventTypeLeaderStepDown {
		t.Errorf("history order = %s, %s", history[0].EventType, history[1].EventType)
	}
}
