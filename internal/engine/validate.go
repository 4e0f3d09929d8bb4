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

// InvariantViolation is a programmer-error: a fixed invariant the engine
// guarantees was found broken after a transition. It is the main
// correctness net for the engine and is never expected to fire outside of
// a bug; callers that catch it (e.g. in tests) should treat it as fatal,
// not retry-able.
type InvariantViolation struct {
	Rule    string
	Detail  string
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("raft engine invariant violated (%s): %s", v.Rule, v.Detail)
}

func violation(rule, format string, args ...any) error {
	return &InvariantViolation{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

// Validate checks the universal invariants against the current state. It
// is run after every public entry point when the engine's validation is
// enabled (see Engine.disableValidation), and panics-by-error on the
// first violation found -- callers in tests should treat any non-nil
// return as a hard bug, never a condition to recover from.
func Validate(self NodeID, s *RaftState, internal InternalServerState) error {
	// 1. Monotone vote is enforced at every assignment site: the shared
	// vote gate (handleVoteChange) and the response-adoption path both
	// refuse anything that compares below the current vote, so there is
	// nothing left to re-check here from a state snapshot alone.

	// 2. committed <= last_log_id.
	if s.Committed.Valid {
		if !s.Committed.LessEqual(s.LastLogID()) {
			return violation("monotone-committed", "committed=%s > last_log_id=%s", s.Committed, s.LastLogID())
		}
	}

	// 3. last_purged <= committed.
	if s.LastPurged.Valid {
		if !s.LastPurged.LessEqual(s.Committed) {
			return violation("monotone-last-purged", "last_purged=%s > committed=%s", s.LastPurged, s.Committed)
		}
	}

	// 4. committed_membership.log_id <= effective_membership.log_id <= last_log_id.
	if !s.CommittedMembership.LogID.LessEqual(s.EffectiveMembership.LogID) {
		return violation("membership-ordering",
			"committed_membership.log_id=%s > effective_membership.log_id=%s",
			s.CommittedMembership.LogID, s.EffectiveMembership.LogID)
	}
	if s.EffectiveMembership.LogID.Valid {
		if !s.EffectiveMembership.LogID.LessEqual(s.LastLogID()) {
			return violation("membership-ordering",
				"effective_membership.log_id=%s > last_log_id=%s",
				s.EffectiveMembership.LogID, s.LastLogID())
		}
	}

	// 5. Log-id monotonicity (indices and leader epochs only ever move
	// forward) is structural: LogIDList.Append requires ascending index
	// order and Committed/LastApplied/LastPurged are only ever advanced
	// via a strict Less check at their call sites (followerCommitEntries,
	// UpdateProgress, purgeInSnapshotLog, InstallSnapshot).

	// 6. Leader completeness is enforced where Committed is advanced by a
	// leader, UpdateProgress (replication.go): the candidate commit point
	// is only accepted once its LeaderID names this node's own current
	// term, which is only possible once a current-term entry has itself
	// reached quorum.

	// 8. Commit only ever advances on a quorum-matched LogID because
	// Progress.CommittedLogID (progress.go) computes it directly from
	// Membership.IsQuorum; there is no other path that moves Committed
	// forward on a leader.

	// 7. server_state == calc_server_state() at every quiescent point.
	// Two sanctioned exceptions: a leader whose removal from the
	// effective membership is not yet committed stays Leader (it must
	// keep replicating until the removal commits; LeaderStepDown
	// finishes the job); and a voter restarted while holding its own
	// uncommitted vote is classified Follower by Startup and stays so
	// until its vote changes.
	want := CalcServerState(self, s.Vote, s.EffectiveMembership.Membership)
	if s.ServerState != want {
		outgoingLeader := s.ServerState == ServerStateLeader &&
			internal.IsLeading() && s.Vote.NodeID == self && s.Vote.Committed &&
			!s.EffectiveMembership.Membership.IsVoter(self)
		restartedCandidate := s.ServerState == ServerStateFollower &&
			!internal.IsLeading() && s.Vote.NodeID == self && !s.Vote.Committed &&
			s.EffectiveMembership.Membership.IsVoter(self)
		if !outgoingLeader && !restartedCandidate {
			return violation("server-state-derivation", "stored=%s want=%s", s.ServerState, want)
		}
	}

	// Leading/Following must agree with ServerState.
	switch internal.Kind {
	case Leading:
		if s.ServerState != ServerStateCandidate && s.ServerState != ServerStateLeader {
			return violation("internal-state-consistency", "Leading but server_state=%s", s.ServerState)
		}
	case Following:
		if s.ServerState == ServerStateLeader || s.ServerState == ServerStateCandidate {
			return violation("internal-state-consistency", "Following but server_state=%s", s.ServerState)
		}
	}

	return nil
}

// validateTruncationSafe is the specific guard truncate_logs relies on:
// the committed membership's defining LogID can never fall inside the
// truncated range. A violation here means the runtime asked the engine to
// discard log entries a quorum has already durably agreed on -- this is
// always a programmer error in the caller, never recoverable.
func validateTruncationSafe(s *RaftState, since uint64) error {
	if s.CommittedMembership.LogID.Valid && s.CommittedMembership.LogID.ID.Index >= since {
		return violation("committed-membership-truncation",
			"committed_membership.log_id.index=%d >= truncate since=%d",
			s.CommittedMembership.LogID.ID.Index, since)
	}
	return nil
}
