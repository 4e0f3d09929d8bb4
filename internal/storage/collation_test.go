/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package storage

import "testing"

func TestCollatorCompare(t *testing.T) {
	tests := []struct {
		name      string
		collation string
		a, b      string
		wantEqual bool
	}{
		{"binary distinguishes case", "BINARY", "Node-A", "node-a", false},
		{"nocase folds case", "NOCASE", "Node-A", "node-a", true},
		{"nocase still orders", "NOCASE", "alpha", "beta", false},
		{"unicode equal strings", "UNICODE", "café", "café", true},
		{"unknown falls back to binary", "??bogus??", "a", "A", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCollator(tt.collation)
			if got := c.Equal(tt.a, tt.b); got != tt.wantEqual {
				t.Errorf("Equal(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.wantEqual)
			}
		})
	}
}

func TestCollatorSortStrings(t *testing.T) {
	c := NewCollator("NOCASE")
	ss := []string{"node-C", "node-a", "node-B"}
	c.SortStrings(ss)

	want := []string{"node-a", "node-B", "node-C"}
	for i := range want {
		if ss[i] != want[i] {
			t.Fatalf("sorted = %v, want %v", ss, want)
		}
	}
}

func TestIndexKeyRoundTrip(t *testing.T) {
	for _, idx := range []uint64{0, 1, 255, 256, 1 << 32, ^uint64(0)} {
		key := append(append([]byte{}, logPrefix...), EncodeIndexKey(idx)...)
		got, ok := DecodeIndexKey(key)
		if !ok || got != idx {
			t.Errorf("round trip %d -> %d (ok=%v)", idx, got, ok)
		}
	}

	if _, ok := DecodeIndexKey([]byte("raft/vote")); ok {
		t.Errorf("non-log key decoded as index")
	}
}
