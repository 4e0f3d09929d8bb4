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

import (
	"sort"
	"testing"
)

func TestMembershipRoles(t *testing.T) {
	mem := NewMembership(NewVoterSet(1, 2, 3), 4, 5)

	for _, id := range []NodeID{1, 2, 3} {
		if !mem.IsVoter(id) {
			t.Errorf("IsVoter(%s) = false", id)
		}
		if mem.IsLearner(id) {
			t.Errorf("IsLearner(%s) = true for a voter", id)
		}
	}
	for _, id := range []NodeID{4, 5} {
		if mem.IsVoter(id) {
			t.Errorf("IsVoter(%s) = true for a learner", id)
		}
		if !mem.IsLearner(id) {
			t.Errorf("IsLearner(%s) = false", id)
		}
	}
	if mem.IsVoter(9) || mem.IsLearner(9) {
		t.Errorf("unknown node classified as member")
	}

	all := mem.AllNodes()
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	want := []NodeID{1, 2, 3, 4, 5}
	if len(all) != len(want) {
		t.Fatalf("AllNodes() = %v", all)
	}
	for i := range want {
		if all[i] != want[i] {
			t.Fatalf("AllNodes() = %v, want %v", all, want)
		}
	}
}

func TestMembershipQuorum(t *testing.T) {
	set := func(ids ...NodeID) map[NodeID]struct{} {
		out := make(map[NodeID]struct{}, len(ids))
		for _, id := range ids {
			out[id] = struct{}{}
		}
		return out
	}

	tests := []struct {
		name    string
		m       Membership
		matched map[NodeID]struct{}
		want    bool
	}{
		{"single voter, self", m(1), set(1), true},
		{"single voter, nobody", m(1), set(), false},
		{"two of three", m(1, 2, 3), set(1, 3), true},
		{"one of three", m(1, 2, 3), set(2), false},
		{"exactly half of four is not a quorum", m(1, 2, 3, 4), set(1, 2), false},
		{
			"joint: majority of one side only",
			Membership{Configs: []VoterSet{NewVoterSet(1), NewVoterSet(1, 2, 3)}},
			set(1),
			false,
		},
		{
			"joint: majority of both sides",
			Membership{Configs: []VoterSet{NewVoterSet(1), NewVoterSet(1, 2, 3)}},
			set(1, 2),
			true,
		},
		{
			"outsiders never count",
			m(1, 2, 3),
			set(7, 8, 9),
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.IsQuorum(tt.matched); got != tt.want {
				t.Errorf("IsQuorum = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLastTwoMemberships(t *testing.T) {
	entries := []Entry{
		&MembershipEntry{LogID: logID(1, 1, 1), Config: m(1)},
		&BlankEntry{LogID: logID(1, 1, 2)},
		&MembershipEntry{LogID: logID(1, 1, 3), Config: m(1, 2)},
		&MembershipEntry{LogID: logID(1, 1, 4), Config: m(1, 2, 3)},
		&BlankEntry{LogID: logID(1, 1, 5)},
	}

	got := lastTwoMemberships(entries)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// Oldest of the two first: it is the committed one.
	if !got[0].LogID.Equal(SomeLogID(logID(1, 1, 3))) {
		t.Errorf("first = %s, want %s", got[0].LogID, logID(1, 1, 3))
	}
	if !got[1].LogID.Equal(SomeLogID(logID(1, 1, 4))) {
		t.Errorf("second = %s, want %s", got[1].LogID, logID(1, 1, 4))
	}

	if got := lastTwoMemberships([]Entry{&BlankEntry{LogID: logID(1, 1, 1)}}); len(got) != 0 {
		t.Errorf("memberships found in a blank-only batch: %v", got)
	}
}

func TestCalcServerState(t *testing.T) {
	mem := m(1, 2)
	tests := []struct {
		name string
		self NodeID
		vote Vote
		want ServerState
	}{
		{"non-voter is learner", 9, Vote{Term: 1, NodeID: 1, Committed: true}, ServerStateLearner},
		{"voter following another", 2, Vote{Term: 1, NodeID: 1, Committed: true}, ServerStateFollower},
		{"own uncommitted vote is candidate", 1, Vote{Term: 1, NodeID: 1}, ServerStateCandidate},
		{"own committed vote is leader", 1, Vote{Term: 1, NodeID: 1, Committed: true}, ServerStateLeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalcServerState(tt.self, tt.vote, mem); got != tt.want {
				t.Errorf("CalcServerState = %s, want %s", got, tt.want)
			}
		})
	}
}
