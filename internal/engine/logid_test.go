/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package engine

import "testing"

func TestLogIDListAppendAndGet(t *testing.T) {
	l := NewLogIDList()
	if !l.IsEmpty() {
		t.Fatalf("new list not empty")
	}

	// Two leader epochs: term 1 writes 1-3, term 2 writes 4-5. Only the
	// two boundary entries are stored; Get interpolates the rest.
	for i := uint64(1); i <= 3; i++ {
		l.Append(logID(1, 1, i))
	}
	for i := uint64(4); i <= 5; i++ {
		l.Append(logID(2, 2, i))
	}

	tests := []struct {
		index uint64
		want  OptionalLogID
	}{
		{0, NoLogID()},
		{1, SomeLogID(logID(1, 1, 1))},
		{2, SomeLogID(logID(1, 1, 2))},
		{3, SomeLogID(logID(1, 1, 3))},
		{4, SomeLogID(logID(2, 2, 4))},
		{5, SomeLogID(logID(2, 2, 5))},
		{6, NoLogID()},
	}
	for _, tt := range tests {
		if got := l.Get(tt.index); !got.Equal(tt.want) {
			t.Errorf("Get(%d) = %s, want %s", tt.index, got, tt.want)
		}
	}

	if got := l.Last(); !got.Equal(SomeLogID(logID(2, 2, 5))) {
		t.Errorf("Last() = %s", got)
	}
	if !l.Has(logID(1, 1, 2)) {
		t.Errorf("Has existing entry = false")
	}
	if l.Has(logID(2, 2, 2)) {
		t.Errorf("Has entry with wrong leader = true")
	}
}

func TestLogIDListTruncate(t *testing.T) {
	build := func() *LogIDList {
		l := NewLogIDList()
		l.Append(logID(1, 1, 1))
		l.Append(logID(1, 1, 2))
		l.Append(logID(2, 2, 3))
		l.Append(logID(2, 2, 4))
		return l
	}

	t.Run("mid-run", func(t *testing.T) {
		l := build()
		l.Truncate(4)
		if got := l.Last(); !got.Equal(SomeLogID(logID(2, 2, 3))) {
			t.Errorf("Last() = %s", got)
		}
		if l.Get(4).Valid {
			t.Errorf("truncated entry still present")
		}
	})

	t.Run("at epoch boundary", func(t *testing.T) {
		l := build()
		l.Truncate(3)
		if got := l.Last(); !got.Equal(SomeLogID(logID(1, 1, 2))) {
			t.Errorf("Last() = %s", got)
		}
	})

	t.Run("past the end is a no-op", func(t *testing.T) {
		l := build()
		l.Truncate(9)
		if got := l.Last(); !got.Equal(SomeLogID(logID(2, 2, 4))) {
			t.Errorf("Last() = %s", got)
		}
	})

	t.Run("everything", func(t *testing.T) {
		l := build()
		l.Truncate(0)
		if !l.IsEmpty() {
			t.Errorf("list not empty after full truncation")
		}
	})
}

func TestLogIDListPurge(t *testing.T) {
	build := func() *LogIDList {
		l := NewLogIDList()
		l.Append(logID(1, 1, 1))
		l.Append(logID(1, 1, 2))
		l.Append(logID(2, 2, 3))
		l.Append(logID(2, 2, 4))
		return l
	}

	t.Run("mid-run keeps the purge point addressable", func(t *testing.T) {
		l := build()
		l.Purge(logID(1, 1, 2))
		if l.Get(1).Valid {
			t.Errorf("purged entry still addressable")
		}
		if got := l.Get(2); !got.Equal(SomeLogID(logID(1, 1, 2))) {
			t.Errorf("purge sentinel = %s", got)
		}
		if got := l.Get(3); !got.Equal(SomeLogID(logID(2, 2, 3))) {
			t.Errorf("entry after purge = %s", got)
		}
		if got := l.Last(); !got.Equal(SomeLogID(logID(2, 2, 4))) {
			t.Errorf("Last() = %s", got)
		}
	})

	t.Run("past the end jumps the log forward", func(t *testing.T) {
		l := build()
		l.Purge(logID(3, 3, 9))
		if got := l.Last(); !got.Equal(SomeLogID(logID(3, 3, 9))) {
			t.Errorf("Last() = %s", got)
		}
		if got := l.Get(9); !got.Equal(SomeLogID(logID(3, 3, 9))) {
			t.Errorf("Get(9) = %s", got)
		}
		if l.Get(4).Valid {
			t.Errorf("old entries still addressable after jump")
		}
	})
}

func TestVoteOrdering(t *testing.T) {
	tests := []struct {
		name string
		a, b Vote
		less bool
	}{
		{"term dominates", Vote{Term: 1, NodeID: 9, Committed: true}, Vote{Term: 2, NodeID: 1}, true},
		{"committed outranks at same term", Vote{Term: 2, NodeID: 1}, Vote{Term: 2, NodeID: 1, Committed: true}, true},
		{"node id breaks ties", Vote{Term: 2, NodeID: 1}, Vote{Term: 2, NodeID: 2}, true},
		{"equal is not less", Vote{Term: 2, NodeID: 1}, Vote{Term: 2, NodeID: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Less(tt.b); got != tt.less {
				t.Errorf("%s.Less(%s) = %v, want %v", tt.a, tt.b, got, tt.less)
			}
			if tt.less && tt.b.Less(tt.a) {
				t.Errorf("ordering not antisymmetric for %s / %s", tt.a, tt.b)
			}
		})
	}
}

func TestOptionalLogIDOrdering(t *testing.T) {
	none := NoLogID()
	low := SomeLogID(logID(1, 1, 1))
	high := SomeLogID(logID(2, 1, 5))

	if !none.Less(low) {
		t.Errorf("None must sort below any present id")
	}
	if none.Less(none) {
		t.Errorf("None.Less(None) = true")
	}
	if !low.Less(high) || high.Less(low) {
		t.Errorf("present-id ordering broken")
	}
	if !low.LessEqual(low) {
		t.Errorf("LessEqual not reflexive")
	}
}
