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

// LeaderAppendEntries assigns contiguous LogIDs to a batch of newly
// proposed entries under the current leader epoch and appends them. A
// no-op unless this node is Leading.
//
// Fast commit: with a single-voter membership an entry is committed the
// moment it is appended, but a membership entry in the middle of the
// batch changes the commit condition from that point on. So the walk
// updates this node's own progress just before each membership entry
// under the quorum set still in force, then upgrades the quorum set --
// entries before the boundary commit under the old rule, entries after
// it wait for the new one.
func (e *Engine) LeaderAppendEntries(entries []Entry) {
	l := len(entries)
	if l == 0 || !e.Internal.IsLeading() {
		return
	}
	s := e.State

	next := nextIndex(s)
	for i := range entries {
		id := LogID{
			LeaderID: LeaderID{Term: s.Vote.Term, NodeID: s.Vote.NodeID},
			Index:    next + uint64(i),
		}
		entries[i].SetLogID(id)
		s.LogIDs.Append(id)
	}

	e.push(Command{Kind: CmdAppendInputEntries, Metrics: MetricsLocalData, Range: Range{Begin: 0, End: l}})

	for _, ent := range entries {
		m, ok := ent.Membership()
		if !ok {
			continue
		}
		idx := ent.GetLogID().Index
		if idx > 0 {
			if prev := s.LogIDs.Get(idx - 1); prev.Valid {
				e.UpdateProgress(e.self(), prev)
			}
		}
		// From this entry on, the condition to commit has changed.
		e.updateEffectiveMembership(ent.GetLogID(), m)
	}
	e.UpdateProgress(e.self(), SomeLogID(entries[l-1].GetLogID()))

	// Replication runs even for fast-committed entries; learners and
	// lagging voters still need the data.
	e.push(Command{Kind: CmdReplicateEntries, Metrics: MetricsReplication, Upto: entries[l-1].GetLogID()})
	e.push(Command{Kind: CmdMoveInputCursorBy, Range: Range{Begin: 0, End: l}})
	e.validate()
}

// HandleAppendEntriesReq processes an AppendEntries RPC from a leader:
// adopts the leader's vote if it is at least as new (rejecting with
// HigherVote otherwise), checks log matching at prev_log_id, truncates
// and appends as needed, and advances the commit watermark toward the
// leader's reported committed id.
func (e *Engine) HandleAppendEntriesReq(vote Vote, prevLogID OptionalLogID, entries []Entry, leaderCommitted OptionalLogID) AppendEntriesResponse {
	s := e.State

	if rej := e.handleVoteChange(vote); rej != nil {
		return AppendEntriesResponse{Outcome: AppendHigherVote, HigherVote: rej.Vote}
	}

	// Vote is legal. A prev_log_id that is absent locally means the log
	// diverged: delete from its index on and have the leader back off.
	// No prev_log_id at all means replication from the very beginning.
	if prevLogID.Valid && !s.HasLogID(prevLogID.ID) {
		e.truncateLogs(prevLogID.ID.Index)
		e.validate()
		return AppendEntriesResponse{Outcome: AppendConflict}
	}

	l := len(entries)
	since := e.firstConflictingIndex(entries)
	if since < l {
		// An entry that overrides a conflicting one forces everything
		// after it out first; log ids must stay in total order or the
		// entry with the larger index would shadow committed history in
		// elections.
		e.truncateLogs(entries[since].GetLogID().Index)
		e.followerDoAppendEntries(entries, since)
	}

	e.followerCommitEntries(leaderCommitted, prevLogID, entries)

	e.validate()
	return AppendEntriesResponse{Outcome: AppendSuccess}
}

// firstConflictingIndex returns the position of the first entry whose
// LogID is not already present locally, or len(entries) if every one is.
func (e *Engine) firstConflictingIndex(entries []Entry) int {
	for i, ent := range entries {
		if !e.State.HasLogID(ent.GetLogID()) {
			return i
		}
	}
	return len(entries)
}

// followerDoAppendEntries appends entries[since:], which the caller has
// verified are all new (earlier ones match, conflicting ones deleted),
// and picks up any membership entries among them.
func (e *Engine) followerDoAppendEntries(entries []Entry, since int) {
	l := len(entries)
	if since == l {
		return
	}

	sub := entries[since:]
	for _, ent := range sub {
		e.State.LogIDs.Append(ent.GetLogID())
	}

	e.push(Command{Kind: CmdAppendInputEntries, Metrics: MetricsLocalData, Range: Range{Begin: since, End: l}})
	e.followerUpdateMembership(sub)
	e.push(Command{Kind: CmdMoveInputCursorBy, Range: Range{Begin: 0, End: l}})
}

// followerCommitEntries advances Committed to min(leader committed, the
// greatest log id this call actually has on hand) -- a follower may not
// trust the leader's committed index past its own matching log.
func (e *Engine) followerCommitEntries(leaderCommitted, prevLogID OptionalLogID, entries []Entry) {
	s := e.State

	last := prevLogID
	if len(entries) > 0 {
		el := SomeLogID(entries[len(entries)-1].GetLogID())
		if last.Less(el) {
			last = el
		}
	}

	committed := leaderCommitted
	if last.Less(committed) {
		committed = last
	}

	if committed.Valid && s.Committed.Less(committed) {
		already := s.Committed
		s.Committed = committed
		e.push(Command{Kind: CmdFollowerCommit, Metrics: MetricsReplication, AlreadyCommitted: already, Upto: committed.ID})
	}
}

// truncateLogs discards every log entry at index >= since. The committed
// membership's defining entry may never fall inside the discarded range
// -- a quorum has already durably agreed on it -- so that is checked
// unconditionally, even while validation is otherwise suspended. If the
// effective membership came from the discarded range it reverts to the
// committed one.
func (e *Engine) truncateLogs(since uint64) {
	s := e.State
	if err := validateTruncationSafe(s, since); err != nil {
		panic(err)
	}

	sinceID := s.LogIDs.Get(since)
	if !sinceID.Valid {
		return
	}

	s.LogIDs.Truncate(since)
	e.push(Command{Kind: CmdDeleteConflictLog, Metrics: MetricsLocalData, Since: sinceID.ID})

	if s.EffectiveMembership.LogID.Valid && since <= s.EffectiveMembership.LogID.ID.Index {
		s.EffectiveMembership = s.CommittedMembership
		e.push(Command{Kind: CmdUpdateMembership, Metrics: MetricsCluster, Membership: s.EffectiveMembership})
		e.updateServerStateIfChanged()
	}
}

// UpdateProgress records a node's newly acknowledged matching LogID
// and, if this advances the quorum-matched point, moves Committed
// forward. The advance is gated on leader completeness: the candidate
// committed id must carry this leader's own (term, node id) -- an
// earlier term's entry is never committed by count alone, it commits
// transitively when a current-term entry lands on top of it.
func (e *Engine) UpdateProgress(id NodeID, matching OptionalLogID) {
	if !e.Internal.IsLeading() {
		return
	}
	s := e.State
	leader := e.Internal.Leader

	leader.Progress.Update(id, matching)

	if id != e.self() && matching.Valid {
		e.push(Command{Kind: CmdUpdateReplicationMetrics, Metrics: MetricsReplication, Target: id, Matching: matching})
	}

	committed := leader.Progress.CommittedLogID()
	if committed.Valid {
		lid := committed.ID.LeaderID
		if lid.Term != s.Vote.Term || lid.NodeID != s.Vote.NodeID {
			e.validate()
			return
		}
	}

	if committed.Valid && s.Committed.Less(committed) {
		already := s.Committed
		s.Committed = committed
		e.push(Command{Kind: CmdReplicateCommitted, Metrics: MetricsReplication, Committed: committed.ID})
		e.push(Command{Kind: CmdLeaderCommit, Metrics: MetricsReplication, AlreadyCommitted: already, Upto: committed.ID})
	}

	e.validate()
}

// LeaderStepDown retires this node from leadership once a membership
// that no longer lists it as a voter has been committed. Until that
// point the outgoing leader keeps replicating; after it, it drops to
// Following and the runtime is told via QuitLeader.
func (e *Engine) LeaderStepDown() {
	s := e.State
	em := s.EffectiveMembership

	if em.LogID.LessEqual(s.Committed) && !em.Membership.IsVoter(e.self()) && e.Internal.IsLeading() {
		e.enterFollowing()
	}
	e.validate()
}
