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

import "fmt"

// VoterSet is one voter configuration: the set of nodes whose votes and
// replication acks count toward quorum.
type VoterSet map[NodeID]struct{}

func NewVoterSet(ids ...NodeID) VoterSet {
	vs := make(VoterSet, len(ids))
	for _, id := range ids {
		vs[id] = struct{}{}
	}
	return vs
}

func (vs VoterSet) Contains(id NodeID) bool {
	_, ok := vs[id]
	return ok
}

func (vs VoterSet) Clone() VoterSet {
	out := make(VoterSet, len(vs))
	for id := range vs {
		out[id] = struct{}{}
	}
	return out
}

func (vs VoterSet) ids() []NodeID {
	out := make([]NodeID, 0, len(vs))
	for id := range vs {
		out = append(out, id)
	}
	return out
}

// Membership is an ordered list of voter configurations plus a set of
// learner nodes. A single-entry list is normal consensus; a two-entry list
// represents joint consensus mid membership-change: a quorum must then
// intersect a majority of *every* listed voter configuration.
type Membership struct {
	Configs  []VoterSet
	Learners map[NodeID]struct{}
}

// NewMembership builds a single-config (non-joint) membership.
func NewMembership(voters VoterSet, learners ...NodeID) Membership {
	l := make(map[NodeID]struct{}, len(learners))
	for _, id := range learners {
		l[id] = struct{}{}
	}
	return Membership{Configs: []VoterSet{voters}, Learners: l}
}

// IsJoint reports whether this membership is mid a joint-consensus change.
func (m Membership) IsJoint() bool {
	return len(m.Configs) > 1
}

// IsVoter reports whether id is a voter in any config (joint or not).
func (m Membership) IsVoter(id NodeID) bool {
	for _, c := range m.Configs {
		if c.Contains(id) {
			return true
		}
	}
	return false
}

// IsLearner reports whether id is a learner (and not a voter).
func (m Membership) IsLearner(id NodeID) bool {
	if m.IsVoter(id) {
		return false
	}
	_, ok := m.Learners[id]
	return ok
}

// AllNodes returns the union of every voter config and the learner set,
// de-duplicated. Used to size replication streams and progress maps.
func (m Membership) AllNodes() []NodeID {
	seen := make(map[NodeID]struct{})
	var out []NodeID
	add := func(id NodeID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, c := range m.Configs {
		for id := range c {
			add(id)
		}
	}
	for id := range m.Learners {
		add(id)
	}
	return out
}

// Voters returns the union of every voter config, de-duplicated.
func (m Membership) Voters() []NodeID {
	seen := make(map[NodeID]struct{})
	var out []NodeID
	for _, c := range m.Configs {
		for id := range c {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out
}

// IsQuorum reports whether the given matched set intersects a majority of
// every voter config in this membership. For a joint membership, this
// requires majority-of-old AND majority-of-new.
func (m Membership) IsQuorum(matched map[NodeID]struct{}) bool {
	for _, cfg := range m.Configs {
		count := 0
		for id := range cfg {
			if _, ok := matched[id]; ok {
				count++
			}
		}
		if count*2 <= len(cfg) {
			return false
		}
	}
	return true
}

func (m Membership) String() string {
	return fmt.Sprintf("Membership{configs=%v, learners=%v}", m.configIDs(), m.Learners)
}

func (m Membership) configIDs() [][]NodeID {
	out := make([][]NodeID, len(m.Configs))
	for i, c := range m.Configs {
		out[i] = c.ids()
	}
	return out
}

// EffectiveMembership pairs a Membership with the LogID of the log entry
// that defined it. Conceptually a reference-counted immutable snapshot: it
// is handed out to many commands and progress trackers but is never
// mutated in place, only replaced wholesale.
type EffectiveMembership struct {
	LogID      OptionalLogID
	Membership Membership
}

func (em EffectiveMembership) String() string {
	return fmt.Sprintf("{log_id=%s, %s}", em.LogID, em.Membership)
}

// upgradeProgress re-partitions a NodeID -> matching-LogID map when
// membership changes: nodes kept as voters or reclassified between
// voter/learner roles carry their progress forward; nodes dropped
// entirely are removed; nodes newly added start with no matching entry.
func upgradeProgress(old map[NodeID]OptionalLogID, next Membership) map[NodeID]OptionalLogID {
	out := make(map[NodeID]OptionalLogID, len(next.AllNodes()))
	for _, id := range next.AllNodes() {
		if m, ok := old[id]; ok {
			out[id] = m
		} else {
			out[id] = NoLogID()
		}
	}
	return out
}

// updateEffectiveMembership installs a membership entry observed in the
// log (committed or not) as the effective membership. While Leading, the
// progress tracker is upgraded to the new quorum set, carrying matching
// values across voter/learner reclassification, and an established
// leader refreshes its replication streams. A leader that finds itself
// removed does not quit here -- it keeps replicating until the removal
// commits (see LeaderStepDown).
func (e *Engine) updateEffectiveMembership(id LogID, m Membership) {
	s := e.State

	s.EffectiveMembership = EffectiveMembership{LogID: SomeLogID(id), Membership: m}
	e.push(Command{Kind: CmdUpdateMembership, Metrics: MetricsCluster, Membership: s.EffectiveMembership})

	if e.Internal.IsLeading() {
		e.Internal.Leader.Progress = e.Internal.Leader.Progress.Upgrade(m)
	}
	if e.isLeader() {
		e.updateReplications()
	}

	if s.ServerState != ServerStateLeader {
		e.updateServerStateIfChanged()
	}
}

// updateCommittedMembership installs a membership known to be committed
// (from a snapshot). The local effective membership may have come from a
// conflicting log, so the comparison against it is by index, not by the
// full log id.
func (e *Engine) updateCommittedMembership(em EffectiveMembership) {
	s := e.State

	committed := s.CommittedMembership
	effective := s.EffectiveMembership

	if committed.LogID.Less(em.LogID) {
		committed = em
	}
	if !effective.LogID.Valid || (em.LogID.Valid && effective.LogID.ID.Index <= em.LogID.ID.Index) {
		effective = em
	}

	if !effective.LogID.Equal(s.EffectiveMembership.LogID) {
		e.push(Command{Kind: CmdUpdateMembership, Metrics: MetricsCluster, Membership: effective})
	}

	s.CommittedMembership = committed
	s.EffectiveMembership = effective

	e.updateServerStateIfChanged()
}

// followerUpdateMembership scans a freshly appended batch for membership
// entries and installs the last two found: the most recent becomes
// effective, and the one before it committed -- a leader only proposes a
// new membership once the previous one has committed, so seeing two in
// one batch implies the earlier is durable.
func (e *Engine) followerUpdateMembership(entries []Entry) {
	mems := lastTwoMemberships(entries)
	if len(mems) == 0 {
		return
	}
	s := e.State

	if len(mems) == 1 {
		s.CommittedMembership = s.EffectiveMembership
		s.EffectiveMembership = mems[0]
	} else {
		s.CommittedMembership = mems[0]
		s.EffectiveMembership = mems[1]
	}

	e.push(Command{Kind: CmdUpdateMembership, Metrics: MetricsCluster, Membership: s.EffectiveMembership})
	e.updateServerStateIfChanged()
}

// lastTwoMemberships returns the last membership configs in the batch,
// oldest first, at most two.
func lastTwoMemberships(entries []Entry) []EffectiveMembership {
	var out []EffectiveMembership
	for i := len(entries) - 1; i >= 0 && len(out) < 2; i-- {
		if m, ok := entries[i].Membership(); ok {
			em := EffectiveMembership{LogID: SomeLogID(entries[i].GetLogID()), Membership: m}
			out = append([]EffectiveMembership{em}, out...)
		}
	}
	return out
}
