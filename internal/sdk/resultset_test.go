/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package sdk

import (
	"testing"

	"flyraft/internal/engine"
)

func TestResultSetAppendAndScan(t *testing.T) {
	rs := NewResultSet("NODE", "STATE")
	if err := rs.Append("1", "Leader"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := rs.Append("2", "Follower"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := rs.Append("only-one-value"); err == nil {
		t.Errorf("Append accepted a short row")
	}

	var node, state string
	count := 0
	for rs.Next() {
		if err := rs.Scan(&node, &state); err != nil {
			t.Fatalf("Scan: %v", err)
		}
		count++
	}
	if count != 2 {
		t.Errorf("iterated %d rows, want 2", count)
	}
	if node != "2" || state != "Follower" {
		t.Errorf("last row = %s/%s", node, state)
	}

	rs.Reset()
	if !rs.Next() {
		t.Errorf("Reset did not rewind")
	}
}

func TestResultSetScanOutsideNext(t *testing.T) {
	rs := NewResultSet("A")
	rs.Append("x")
	var v string
	if err := rs.Scan(&v); err == nil {
		t.Errorf("Scan before Next succeeded")
	}
}

func TestStatusResultSet(t *testing.T) {
	statuses := []NodeStatus{
		{
			NodeID: 1, Addr: "10.0.0.1:9998", State: "Leader", Term: 4,
			LastLogID: engine.SomeLogID(engine.LogID{
				LeaderID: engine.LeaderID{Term: 4, NodeID: 1}, Index: 10,
			}),
		},
	}
	rs := StatusResultSet(statuses)
	if rs.Len() != 1 {
		t.Fatalf("rows = %d, want 1", rs.Len())
	}
	if idx := rs.ColumnIndex("STATE"); idx < 0 || rs.Rows[0][idx] != "Leader" {
		t.Errorf("STATE column = %v", rs.Rows[0])
	}
	if !statuses[0].IsLeader() {
		t.Errorf("IsLeader() = false for a Leader state")
	}
}

func TestClientErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       *ClientError
		retryable bool
	}{
		{"not leader", NewNotLeaderError("10.0.0.2:9998"), true},
		{"no leader", NewNoLeaderError(), true},
		{"timeout", NewTimeoutError("x"), true},
		{"connection", NewConnectionError("x", nil), true},
		{"rejected", NewRejectedError("bad payload"), false},
		{"protocol", NewProtocolError("x", nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.IsRetryable(); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
		})
	}

	hinted := NewNotLeaderError("10.0.0.2:9998")
	if hinted.LeaderHint != "10.0.0.2:9998" {
		t.Errorf("hint lost: %+v", hinted)
	}
}
