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

/*
Package engine implements the deterministic Raft consensus decision core.

The engine is a single-threaded, side-effect-free transition function: it
consumes events (vote RPCs, append-entries RPCs, client proposals, timer
ticks) together with the node's validated state and emits a sequence of
Commands describing what the surrounding runtime must do to make those
decisions durable and visible (persist a vote, append a log entry, send an
RPC, apply to the state machine, install a snapshot). The engine never
performs I/O, never blocks, and never retries; all of that lives in the
runtime built on top of it (see the cluster package).
*/
package engine

import "fmt"

// NodeID identifies a cluster member. It is opaque, totally ordered and
// equality-comparable, which is all the engine ever needs from it.
type NodeID uint64

func (n NodeID) String() string { return fmt.Sprintf("n%d", uint64(n)) }

// LeaderID names the leader that produced a log entry: the term during
// which it was written, plus the node that wrote it. Two LeaderIDs compare
// equal only if both fields match; within the same term two distinct node
// IDs are incomparable (the vote-grant rule makes that situation
// impossible in practice, but the type does not assume it).
type LeaderID struct {
	Term   uint64
	NodeID NodeID
}

// Less reports whether l sorts strictly before o. Terms dominate; within
// the same term, only equal node ids are ordered (they compare equal).
func (l LeaderID) Less(o LeaderID) bool {
	return l.Term < o.Term
}

// Equal reports structural equality.
func (l LeaderID) Equal(o LeaderID) bool {
	return l.Term == o.Term && l.NodeID == o.NodeID
}

// Comparable reports whether l and o can be ordered at all: same term
// implies same node id, otherwise two leaders in one term produced
// divergent history and the comparison is meaningless.
func (l LeaderID) Comparable(o LeaderID) bool {
	if l.Term != o.Term {
		return true
	}
	return l.NodeID == o.NodeID
}

func (l LeaderID) String() string { return fmt.Sprintf("(t%d,%s)", l.Term, l.NodeID) }

// LogID names one entry in a cluster's log history: the leader epoch that
// produced it, plus its index within the log. LogIDs are totally ordered
// along any single actual log sequence (index is the tiebreaker once a
// leader epoch is fixed) but only partially ordered in general: entries
// written under two different, divergent leader epochs are incomparable.
type LogID struct {
	LeaderID LeaderID
	Index    uint64
}

var ZeroLogID = LogID{}

// Less reports whether id sorts strictly before o within one log
// sequence: LeaderID dominates, Index breaks ties within an epoch.
func (id LogID) Less(o LogID) bool {
	if id.LeaderID.Term != o.LeaderID.Term {
		return id.LeaderID.Term < o.LeaderID.Term
	}
	return id.Index < o.Index
}

// LessEqual reports id <= o under the same rule as Less.
func (id LogID) LessEqual(o LogID) bool {
	return !o.Less(id)
}

func (id LogID) Equal(o LogID) bool {
	return id.LeaderID.Equal(o.LeaderID) && id.Index == o.Index
}

func (id LogID) String() string {
	return fmt.Sprintf("%s-%d", id.LeaderID, id.Index)
}

// OptionalLogID is a LogID that may be absent (e.g. "no log yet", or
// "replicate from scratch"). Go has no Option<T>; the engine uses a
// pointer-free presence flag instead to keep these values copyable.
type OptionalLogID struct {
	Valid bool
	ID    LogID
}

func SomeLogID(id LogID) OptionalLogID { return OptionalLogID{Valid: true, ID: id} }
func NoLogID() OptionalLogID           { return OptionalLogID{} }

func (o OptionalLogID) Less(other OptionalLogID) bool {
	if !o.Valid {
		return other.Valid
	}
	if !other.Valid {
		return false
	}
	return o.ID.Less(other.ID)
}

func (o OptionalLogID) LessEqual(other OptionalLogID) bool {
	return !other.Less(o)
}

func (o OptionalLogID) Equal(other OptionalLogID) bool {
	if o.Valid != other.Valid {
		return false
	}
	return !o.Valid || o.ID.Equal(other.ID)
}

func (o OptionalLogID) String() string {
	if !o.Valid {
		return "None"
	}
	return o.ID.String()
}

// Vote represents a node's current ballot: the term it is voting in, the
// node it is voting for (itself while candidate or leader), and whether
// that vote has observed a quorum of grants. Votes order lexicographically
// by (Term, Committed, NodeID): a committed vote outranks an uncommitted
// one at the same term, which is what turns a candidate into a leader the
// instant a quorum is observed.
type Vote struct {
	Term      uint64
	NodeID    NodeID
	Committed bool
}

// ZeroVote is the default, pre-initialization vote: term 0, node 0,
// uncommitted. initialize() requires the engine to still hold this value.
var ZeroVote = Vote{}

// Less reports whether v sorts strictly before o.
func (v Vote) Less(o Vote) bool {
	if v.Term != o.Term {
		return v.Term < o.Term
	}
	if v.Committed != o.Committed {
		return o.Committed
	}
	return v.NodeID < o.NodeID
}

// LessEqual reports v <= o.
func (v Vote) LessEqual(o Vote) bool {
	return !o.Less(v)
}

// Equal reports structural equality.
func (v Vote) Equal(o Vote) bool {
	return v == o
}

// GreaterEqual reports v >= o.
func (v Vote) GreaterEqual(o Vote) bool {
	return !v.Less(o)
}

func (v Vote) String() string {
	c := ""
	if v.Committed {
		c = ",committed"
	}
	return fmt.Sprintf("{t%d,%s%s}", v.Term, v.NodeID, c)
}

// ServerState is the derived role of a node, computed from vote and
// membership rather than stored directly.
type ServerState int

const (
	ServerStateLearner ServerState = iota
	ServerStateFollower
	ServerStateCandidate
	ServerStateLeader
)

func (s ServerState) String() string {
	switch s {
	case ServerStateLearner:
		return "Learner"
	case ServerStateFollower:
		return "Follower"
	case ServerStateCandidate:
		return "Candidate"
	case ServerStateLeader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// SnapshotMeta describes a built snapshot: the last log entry it covers,
// the membership in force at that point, and an opaque identifier the
// snapshot builder assigns (used to detect a stale install in flight).
type SnapshotMeta struct {
	LastLogID      OptionalLogID
	LastMembership EffectiveMembership
	SnapshotID     string
}

func (m SnapshotMeta) String() string {
	return fmt.Sprintf("{last=%s, snapshot_id=%s}", m.LastLogID, m.SnapshotID)
}
