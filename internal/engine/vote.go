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

// handleVoteChange checks an incoming vote against the current one and
// adopts it if it is at least as new. This is the shared gate for all
// three RPCs that carry a vote (request-vote, append-entries,
// install-snapshot). A vote equal to the current one is accepted without
// re-persisting; a strictly greater one is stored and persisted via
// SaveVote before anything else can depend on it. On acceptance the
// internal server state switches: Leading when the vote names this node,
// Following otherwise.
//
// It does not look at last-log-id; HandleVoteReq layers that check on
// top.
func (e *Engine) handleVoteChange(v Vote) *RejectVote {
	s := e.State

	if v.Less(s.Vote) {
		return &RejectVote{Reason: RejectByVote, Vote: s.Vote}
	}

	if s.Vote.Less(v) {
		s.Vote = v
		e.push(Command{Kind: CmdSaveVote, Metrics: MetricsReplication, Vote: v})
	}

	e.switchInternalServerState()
	return nil
}

// HandleVoteChange is the exported form of the vote gate, for RPC paths
// the runtime drives directly (the install-snapshot stream checks the
// sender's vote through here before feeding chunks).
func (e *Engine) HandleVoteChange(v Vote) *RejectVote {
	rej := e.handleVoteChange(v)
	e.validate()
	return rej
}

// switchInternalServerState enters Leading or Following depending on
// whose vote this node currently holds.
func (e *Engine) switchInternalServerState() {
	if e.State.Vote.NodeID == e.self() {
		e.enterLeading()
	} else {
		e.enterFollowing()
	}
}

// enterLeading starts a fresh Leading epoch: new progress tracking over
// the effective membership and an empty vote tally. Candidate and leader
// share this structure; only the committed flag on the vote
// distinguishes them.
func (e *Engine) enterLeading() {
	e.Internal = NewLeading(NewLeader(e.State.EffectiveMembership.Membership))
}

// enterFollowing installs an election timer -- the long "a leader
// exists" window when the accepted vote is committed, the short one when
// it only names a candidate -- and, if this node was leading, drops back
// to Following.
func (e *Engine) enterFollowing() {
	e.push(Command{Kind: CmdInstallElectionTimer, CanBeLeader: !e.State.Vote.Committed})

	if !e.Internal.IsLeading() {
		return
	}

	e.Internal = NewFollowing()
	e.updateServerStateIfChanged()
}

// updateServerStateIfChanged re-derives ServerState from vote and
// effective membership, and tells the runtime about leadership edges:
// BecomeLeader on the way up, QuitLeader on the way down. All other
// role changes are silent.
func (e *Engine) updateServerStateIfChanged() {
	s := e.State
	want := CalcServerState(e.self(), s.Vote, s.EffectiveMembership.Membership)
	if s.ServerState == want {
		return
	}

	wasLeader := s.ServerState == ServerStateLeader
	isLeader := want == ServerStateLeader
	if !wasLeader && isLeader {
		e.push(Command{Kind: CmdBecomeLeader, Metrics: MetricsCluster})
	} else if wasLeader && !isLeader {
		e.push(Command{Kind: CmdQuitLeader, Metrics: MetricsCluster})
	}

	s.ServerState = want
}

// commitVote marks the current vote committed -- the candidate->leader
// edge -- and persists it. This is the second SaveVote of an election:
// the uncommitted vote was already written when the campaign started,
// and both writes are deliberate (the committed flag must be durable
// before the leader answers clients).
func (e *Engine) commitVote() {
	s := e.State
	s.Vote.Committed = true
	e.push(Command{Kind: CmdSaveVote, Metrics: MetricsReplication, Vote: s.Vote})
}

// Elect starts a new campaign: self votes for itself at term+1. A
// learner (not a voter in the effective membership) never campaigns.
// In a single-voter membership the self-grant already closes the
// quorum, so leadership is established on the spot without any RPC.
func (e *Engine) Elect() {
	s := e.State
	if !s.EffectiveMembership.Membership.IsVoter(e.self()) {
		return
	}

	// Strictly greater than any vote at the current term, committed or
	// not, since the term advances.
	e.handleVoteChange(Vote{Term: s.Vote.Term + 1, NodeID: e.self()})

	leader := e.Internal.Leader
	leader.grant(e.self())

	if s.EffectiveMembership.Membership.IsQuorum(leader.tally()) {
		e.establishLeader()
		e.validate()
		return
	}

	e.push(Command{
		Kind:    CmdSendVote,
		Metrics: MetricsReplication,
		VoteReq: VoteRequest{Vote: s.Vote, LastLogID: s.LastLogID()},
	})
	e.updateServerStateIfChanged()
	e.push(Command{Kind: CmdInstallElectionTimer, CanBeLeader: true})
	e.validate()
}

// establishLeader runs the quorum-granted sequence: commit the vote,
// surface the role edge, open replication streams, and write the blank
// log entry that marks the start of the term. Entries from earlier
// terms are only ever committed transitively, once this blank entry (or
// any other current-term entry) reaches a quorum.
func (e *Engine) establishLeader() {
	e.commitVote()
	e.updateServerStateIfChanged()
	e.updateReplications()
	e.appendBlankLog()
}

// appendBlankLog writes the new term's blank marker entry and counts it
// toward this node's own replication progress; under a single-voter
// quorum that alone commits it.
func (e *Engine) appendBlankLog() {
	s := e.State
	id := LogID{
		LeaderID: LeaderID{Term: s.Vote.Term, NodeID: s.Vote.NodeID},
		Index:    nextIndex(s),
	}
	s.LogIDs.Append(id)
	e.push(Command{Kind: CmdAppendBlankLog, Metrics: MetricsLocalData, LogID: id})
	e.UpdateProgress(e.self(), SomeLogID(id))
	e.push(Command{Kind: CmdReplicateEntries, Metrics: MetricsReplication, Upto: id})
}

// updateReplications tells the runtime the current set of replication
// targets: everyone in the effective membership except this node.
func (e *Engine) updateReplications() {
	if !e.Internal.IsLeading() {
		return
	}
	e.push(Command{
		Kind:    CmdUpdateReplicationStreams,
		Metrics: MetricsReplication,
		Targets: othersOf(e.State.EffectiveMembership.Membership, e.self()),
	})
}

// HandleVoteReq decides whether to grant a RequestVote RPC. The
// candidate's log must be at least as up to date as this node's, and
// its vote at least as new as this node's; both must hold. The response
// always carries the engine's own (possibly just-updated) vote, so the
// candidate can tell which ballot was actually granted. Re-sending an
// identical request is granted again without another SaveVote.
func (e *Engine) HandleVoteReq(req VoteRequest) VoteResponse {
	s := e.State

	granted := false
	if s.LastLogID().LessEqual(req.LastLogID) {
		if rej := e.handleVoteChange(req.Vote); rej == nil {
			granted = true
		}
	}

	e.validate()
	return VoteResponse{Vote: s.Vote, VoteGranted: granted, LastLogID: s.LastLogID()}
}

// HandleVoteResp processes a RequestVote reply while campaigning. A
// grant for the current ballot is tallied and, once the tally closes a
// quorum of the effective membership, leadership is established. A
// rejection carrying a higher vote makes this node adopt it and stop
// leading. Every other outcome -- a plain rejection, or a stale reply
// to an earlier campaign (its grant would count toward the wrong
// ballot) -- falls through to re-arm the election timer; the long
// window is used when the responder's log is ahead of ours, since we
// cannot win against it.
func (e *Engine) HandleVoteResp(target NodeID, resp VoteResponse) {
	s := e.State
	if !e.Internal.IsLeading() {
		return
	}

	if resp.VoteGranted && resp.Vote.Equal(s.Vote) {
		leader := e.Internal.Leader
		leader.grant(target)
		if !s.Vote.Committed && s.EffectiveMembership.Membership.IsQuorum(leader.tally()) {
			e.establishLeader()
		}
		e.validate()
		return
	}

	if s.Vote.Less(resp.Vote) {
		s.Vote = resp.Vote
		e.push(Command{Kind: CmdSaveVote, Metrics: MetricsReplication, Vote: s.Vote})
		e.Internal = NewFollowing()
		e.updateServerStateIfChanged()
	}

	e.push(Command{
		Kind:        CmdInstallElectionTimer,
		CanBeLeader: !s.LastLogID().Less(resp.LastLogID),
	})
	e.validate()
}
