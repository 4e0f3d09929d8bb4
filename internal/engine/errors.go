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

// These outcomes are engine-internal: expected, handled results of a
// request rather than thrown errors. None of them indicate a bug; the
// runtime inspects them and decides what to retry or report.

// RejectVoteReason explains why handle_vote_req declined to grant.
type RejectVoteReason int

const (
	RejectByVote RejectVoteReason = iota
	RejectByLastLogID
)

func (r RejectVoteReason) String() string {
	if r == RejectByVote {
		return "ByVote"
	}
	return "ByLastLogID"
}

// RejectVote is the tagged outcome of a declined vote check: either the
// node already holds a newer vote (carried in Vote) or its log is more
// up to date than the candidate's (carried in LastLogID). Not a fault;
// the candidate backs off and retries at a higher term or not at all.
type RejectVote struct {
	Reason    RejectVoteReason
	Vote      Vote
	LastLogID OptionalLogID
}

func (r *RejectVote) Error() string {
	if r.Reason == RejectByVote {
		return fmt.Sprintf("vote rejected: a newer vote %s is held", r.Vote)
	}
	return fmt.Sprintf("vote rejected: local log %s is more up to date", r.LastLogID)
}

// InitializeErrorKind tags why initialize() refused to run.
type InitializeErrorKind int

const (
	InitNotAllowed InitializeErrorKind = iota
	InitNotAMembershipEntry
	InitNotInMembers
)

// InitializeError is returned by Engine.Initialize on precondition
// failure. This is a user/operator error (calling Initialize on a node
// that already has state), surfaced to the caller rather than panicking.
type InitializeError struct {
	Kind       InitializeErrorKind
	LastLogID  OptionalLogID
	Vote       Vote
	Membership Membership
	NodeID     NodeID
}

func (e *InitializeError) Error() string {
	switch e.Kind {
	case InitNotAllowed:
		return fmt.Sprintf("initialize not allowed: last_log_id=%s, vote=%s", e.LastLogID, e.Vote)
	case InitNotAMembershipEntry:
		return "initialize requires a single membership entry"
	case InitNotInMembers:
		return fmt.Sprintf("node %s is not in membership %s", e.NodeID, e.Membership)
	default:
		return "initialize error"
	}
}

// AppendEntriesOutcome is the tagged result of handle_append_entries_req.
type AppendEntriesOutcome int

const (
	AppendSuccess AppendEntriesOutcome = iota
	AppendHigherVote
	AppendConflict
)

// AppendEntriesResponse is the full, wire-level reply to AppendEntries:
// Success, a rejection carrying the higher vote the follower has already
// adopted, or a Conflict telling the leader to back off prev_log_id.
type AppendEntriesResponse struct {
	Outcome    AppendEntriesOutcome
	HigherVote Vote
}

func (r AppendEntriesResponse) String() string {
	switch r.Outcome {
	case AppendSuccess:
		return "Success"
	case AppendHigherVote:
		return fmt.Sprintf("HigherVote(%s)", r.HigherVote)
	case AppendConflict:
		return "Conflict"
	default:
		return "Unknown"
	}
}
