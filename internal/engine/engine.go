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

// Engine is the consensus decision core: RaftState + InternalServerState
// + Config + Output, tied together by the handler methods in this
// package. Every exported method here is a single, synchronous
// transition: it mutates State/Internal, appends zero or more commands to
// Output, and returns. The engine never performs I/O, never blocks, and
// is only ever called from one goroutine at a time -- see the package
// doc comment for the full contract.
type Engine struct {
	Config   Config
	State    *RaftState
	Internal InternalServerState

	Output Output

	// validationDisabled covers the window in InstallSnapshot where
	// Committed is moved before SnapshotMeta, so the invariants relating
	// them are briefly inconsistent.
	validationDisabled bool
}

// New builds an engine around state freshly loaded from durable storage
// (the runtime is expected to have populated state the way a
// get-initial-state load does: vote, log ids, committed = last applied,
// snapshot meta, and both membership entries reconstructed from the
// log). Call Startup before feeding it events; until then ServerState
// is whatever the loader left in it.
func New(cfg Config, state *RaftState) *Engine {
	return &Engine{Config: cfg, State: state, Internal: NewFollowing()}
}

func (e *Engine) self() NodeID { return e.Config.NodeID }

// isLeader reports whether this node's own vote is committed -- the
// node holds established leadership for the current term.
func (e *Engine) isLeader() bool {
	return e.State.Vote.NodeID == e.self() && e.State.Vote.Committed
}

// push appends a command to the output queue.
func (e *Engine) push(cmd Command) {
	e.Output.Push(cmd)
}

// validate runs the invariant checks unless temporarily disabled, and
// panics on violation -- a violation here is always a programmer error,
// never a condition any caller should attempt to recover from.
func (e *Engine) validate() {
	if e.validationDisabled {
		return
	}
	if err := Validate(e.self(), e.State, e.Internal); err != nil {
		panic(err)
	}
}

// Startup classifies the node's role on process start. A node that was
// a committed leader before the restart (vote names self and is
// committed) re-enters Leading without holding a fresh election: the
// persisted vote still outranks anything a quorum has granted since.
// Everyone else becomes Follower or Learner from voter status alone.
func (e *Engine) Startup() {
	s := e.State

	if e.isLeader() {
		e.switchInternalServerState()
		e.updateServerStateIfChanged()
		e.updateReplications()
		e.validate()
		return
	}

	if s.EffectiveMembership.Membership.IsVoter(e.self()) {
		s.ServerState = ServerStateFollower
	} else {
		s.ServerState = ServerStateLearner
	}
	e.Internal = NewFollowing()
	e.validate()
}

// Initialize bootstraps a brand-new cluster from a single membership
// entry. Preconditions: the node must have no log yet and must still
// hold the zero vote; otherwise this fails with InitNotAllowed rather
// than silently clobbering existing state. The entry must carry a
// membership whose voter set includes this node.
//
// On success, the entry is assigned a LogID under the zero vote's
// leader id, appended, installed as the effective membership, and
// Elect is called immediately to campaign. Appending this very first
// log is the one write not confined by the consensus protocol itself.
func (e *Engine) Initialize(entry Entry) error {
	s := e.State

	if !s.LogIDs.IsEmpty() || !s.Vote.Equal(ZeroVote) {
		return &InitializeError{Kind: InitNotAllowed, LastLogID: s.LastLogID(), Vote: s.Vote}
	}

	m, ok := entry.Membership()
	if !ok {
		return &InitializeError{Kind: InitNotAMembershipEntry}
	}
	if !m.IsVoter(e.self()) {
		return &InitializeError{Kind: InitNotInMembers, NodeID: e.self(), Membership: m}
	}

	logID := LogID{
		LeaderID: LeaderID{Term: s.Vote.Term, NodeID: s.Vote.NodeID},
		Index:    nextIndex(s),
	}
	entry.SetLogID(logID)
	s.LogIDs.Append(logID)

	e.push(Command{Kind: CmdAppendInputEntries, Metrics: MetricsLocalData, Range: Range{Begin: 0, End: 1}})

	e.updateEffectiveMembership(logID, m)

	e.push(Command{Kind: CmdMoveInputCursorBy, Range: Range{Begin: 0, End: 1}})

	// With the new config in force, campaign at once.
	e.Elect()
	return nil
}
