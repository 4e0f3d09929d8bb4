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

// RaftState is the node's persistent-plus-volatile state: current vote,
// the log's index, committed and last-applied watermarks, last-purged
// watermark, snapshot metadata, and both membership entries. It is the
// "validated" half of the engine: Validate() (see validate.go) checks a
// fixed list of invariants against it after every public entry point.
type RaftState struct {
	Vote Vote

	LogIDs *LogIDList

	Committed  OptionalLogID
	LastApplied OptionalLogID
	LastPurged  OptionalLogID

	SnapshotMeta SnapshotMeta

	CommittedMembership EffectiveMembership
	EffectiveMembership EffectiveMembership

	ServerState ServerState
}

// NewRaftState builds the zero state for a brand-new, never-initialized
// node: no vote, empty log, no membership.
func NewRaftState(self NodeID) *RaftState {
	empty := EffectiveMembership{LogID: NoLogID(), Membership: NewMembership(nil)}
	return &RaftState{
		Vote:                ZeroVote,
		LogIDs:              NewLogIDList(),
		Committed:           NoLogID(),
		LastApplied:         NoLogID(),
		LastPurged:          NoLogID(),
		CommittedMembership: empty,
		EffectiveMembership: empty,
		ServerState:         ServerStateLearner,
	}
}

// LastLogID returns the LogID of the most recently appended log entry.
func (s *RaftState) LastLogID() OptionalLogID {
	return s.LogIDs.Last()
}

// GetLogID returns the LogID stored at index, if that index is still
// addressable (not truncated away, not purged past).
func (s *RaftState) GetLogID(index uint64) OptionalLogID {
	return s.LogIDs.Get(index)
}

// HasLogID reports whether id is present in this node's log. Anything
// at or below the committed watermark counts as present even when the
// physical entry has been purged: a committed entry cannot conflict
// with any leader's history.
func (s *RaftState) HasLogID(id LogID) bool {
	if id.Index < nextIndexOf(s.Committed) {
		return true
	}
	got := s.LogIDs.Get(id.Index)
	return got.Valid && got.ID.Equal(id)
}

// IsVoterIn reports whether self is a voter in the given membership.
func IsVoterIn(self NodeID, m Membership) bool {
	return m.IsVoter(self)
}

// CalcServerState derives the node's role from vote and effective
// membership, per the table in the data model: a non-voter is always a
// Learner; among voters, only the vote's own node_id can be Candidate or
// Leader, and only once that vote is committed does it become Leader.
func CalcServerState(self NodeID, vote Vote, effective Membership) ServerState {
	if !effective.IsVoter(self) {
		return ServerStateLearner
	}
	if vote.NodeID != self {
		return ServerStateFollower
	}
	if vote.Committed {
		return ServerStateLeader
	}
	return ServerStateCandidate
}

// RefreshServerState recomputes and stores ServerState from current vote
// and effective membership. Called after any mutation that could change
// either.
func (s *RaftState) RefreshServerState(self NodeID) {
	s.ServerState = CalcServerState(self, s.Vote, s.EffectiveMembership.Membership)
}

// Leader holds the extra state a candidate or leader keeps: replication
// progress toward every node in the effective membership, and the set of
// voters who have granted the current vote. InternalServerState unifies
// candidate and leader under one "Leading" structure because a candidate
// is simply a leader whose vote isn't committed yet -- the mechanics of
// tallying acks and computing commit are identical, only the outward
// ServerState label differs.
type Leader struct {
	Progress       *Progress
	VoteGrantedBy  map[NodeID]struct{}
}

// NewLeader starts a fresh leader/candidate epoch: empty progress over m,
// and an empty tally (the caller self-grants separately).
func NewLeader(m Membership) *Leader {
	return &Leader{
		Progress:      NewProgress(m),
		VoteGrantedBy: make(map[NodeID]struct{}),
	}
}

func (l *Leader) grant(id NodeID) {
	l.VoteGrantedBy[id] = struct{}{}
}

func (l *Leader) tally() map[NodeID]struct{} {
	return l.VoteGrantedBy
}

// InternalServerStateKind tags whether the node is Leading (candidate or
// leader -- same structure) or Following.
type InternalServerStateKind int

const (
	Following InternalServerStateKind = iota
	Leading
)

// InternalServerState is the node's role-specific extra state.
type InternalServerState struct {
	Kind   InternalServerStateKind
	Leader *Leader // non-nil iff Kind == Leading
}

func NewFollowing() InternalServerState {
	return InternalServerState{Kind: Following}
}

func NewLeading(l *Leader) InternalServerState {
	return InternalServerState{Kind: Leading, Leader: l}
}

func (s InternalServerState) IsLeading() bool {
	return s.Kind == Leading
}
