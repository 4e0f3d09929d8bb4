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

func TestProgressCommittedLogID(t *testing.T) {
	tests := []struct {
		name     string
		m        Membership
		matched  map[NodeID]LogID
		want     OptionalLogID
	}{
		{
			name:    "single voter commits alone",
			m:       m(1),
			matched: map[NodeID]LogID{1: logID(1, 1, 5)},
			want:    SomeLogID(logID(1, 1, 5)),
		},
		{
			name:    "majority of three",
			m:       m(1, 2, 3),
			matched: map[NodeID]LogID{1: logID(1, 1, 5), 2: logID(1, 1, 3)},
			want:    SomeLogID(logID(1, 1, 3)),
		},
		{
			name:    "minority commits nothing",
			m:       m(1, 2, 3),
			matched: map[NodeID]LogID{1: logID(1, 1, 5)},
			want:    NoLogID(),
		},
		{
			name: "learner acks never count",
			m:    NewMembership(NewVoterSet(1, 2), 9),
			matched: map[NodeID]LogID{
				1: logID(1, 1, 5),
				9: logID(1, 1, 5),
			},
			want: NoLogID(),
		},
		{
			name: "joint membership needs both majorities",
			m: Membership{
				Configs: []VoterSet{NewVoterSet(1, 2, 3), NewVoterSet(4, 5, 6)},
			},
			matched: map[NodeID]LogID{
				1: logID(1, 1, 5), 2: logID(1, 1, 5),
				4: logID(1, 1, 5),
			},
			want: NoLogID(),
		},
		{
			name: "joint membership with both majorities",
			m: Membership{
				Configs: []VoterSet{NewVoterSet(1, 2, 3), NewVoterSet(4, 5, 6)},
			},
			matched: map[NodeID]LogID{
				1: logID(1, 1, 5), 2: logID(1, 1, 7),
				4: logID(1, 1, 5), 5: logID(1, 1, 6),
			},
			want: SomeLogID(logID(1, 1, 5)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgress(tt.m)
			for id, lid := range tt.matched {
				p.Update(id, SomeLogID(lid))
			}
			if got := p.CommittedLogID(); !got.Equal(tt.want) {
				t.Errorf("CommittedLogID() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestProgressUpgradeCarriesMatching(t *testing.T) {
	p := NewProgress(m(1, 2))
	p.Update(1, SomeLogID(logID(1, 1, 5)))
	p.Update(2, SomeLogID(logID(1, 1, 3)))

	// 2 becomes a learner, 3 joins as a voter: 2's progress survives the
	// reclassification, 3 starts from nothing, and a dropped node is
	// forgotten.
	next := NewMembership(NewVoterSet(1, 3), 2)
	up := p.Upgrade(next)

	if got := up.Get(1).Matching; !got.Equal(SomeLogID(logID(1, 1, 5))) {
		t.Errorf("kept voter matching = %s", got)
	}
	if got := up.Get(2).Matching; !got.Equal(SomeLogID(logID(1, 1, 3))) {
		t.Errorf("voter->learner matching = %s", got)
	}
	if got := up.Get(3).Matching; got.Valid {
		t.Errorf("new voter starts at %s, want None", got)
	}
}

func TestProgressUpdateReportsChange(t *testing.T) {
	p := NewProgress(m(1, 2))
	if !p.Update(1, SomeLogID(logID(1, 1, 2))) {
		t.Errorf("first update reported no change")
	}
	if p.Update(1, SomeLogID(logID(1, 1, 1))) {
		t.Errorf("regressing update reported a change")
	}
	if p.Update(1, SomeLogID(logID(1, 1, 2))) {
		t.Errorf("identical update reported a change")
	}
	if !p.Update(1, SomeLogID(logID(1, 1, 3))) {
		t.Errorf("advancing update reported no change")
	}
}
