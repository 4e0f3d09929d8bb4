/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package audit

import (
	"time"

	"flyraft/internal/engine"
)

// Recorder adapts the consensus runtime's callback surface to audit
// events: it is wired to RaftNode and MembershipManager callbacks and
// turns each into a structured Event, stamping the time and the local
// node id so trails from different nodes can be merged later. The term
// is not stamped here.
type Recorder struct {
	manager *Manager
	nodeID  string
}

// NewRecorder creates a recorder bound to this node's audit manager.
func NewRecorder(manager *Manager, nodeID string) *Recorder {
	return &Recorder{manager: manager, nodeID: nodeID}
}

// LeaderElected records this node winning an election.
func (r *Recorder) LeaderElected(term uint64) {
	r.log(Event{
		EventType: EventTypeLeaderElected,
		Term:      term,
		Status:    StatusSuccess,
	})
}

// LeaderStepDown records this node giving up leadership.
func (r *Recorder) LeaderStepDown(term uint64, newLeader engine.NodeID) {
	r.log(Event{
		EventType: EventTypeLeaderStepDown,
		Term:      term,
		PeerID:    newLeader.String(),
		Status:    StatusSuccess,
	})
}

// MembershipChanged records an effective-membership update.
func (r *Recorder) MembershipChanged(m engine.EffectiveMembership) {
	r.log(Event{
		EventType: EventTypeMembershipProposed,
		LogID:     m.LogID.String(),
		Operation: m.Membership.String(),
		Status:    StatusSuccess,
	})
}

// NodeJoined records a peer appearing in the gossip layer.
func (r *Recorder) NodeJoined(peerID, addr string) {
	r.log(Event{
		EventType: EventTypeNodeJoin,
		PeerID:    peerID,
		Operation: addr,
		Status:    StatusSuccess,
	})
}

// NodeLeft records a peer leaving gracefully.
func (r *Recorder) NodeLeft(peerID string) {
	r.log(Event{
		EventType: EventTypeNodeLeave,
		PeerID:    peerID,
		Status:    StatusSuccess,
	})
}

// NodeDead records a peer declared dead by failure detection.
func (r *Recorder) NodeDead(peerID string) {
	r.log(Event{
		EventType: EventTypeNodeDead,
		PeerID:    peerID,
		Status:    StatusFailed,
	})
}

// NodeFenced records a fencing decision during failover.
func (r *Recorder) NodeFenced(peerID string) {
	r.log(Event{
		EventType: EventTypeNodeFenced,
		PeerID:    peerID,
		Status:    StatusSuccess,
	})
}

// SnapshotInstalled records adopting a leader's snapshot.
func (r *Recorder) SnapshotInstalled(meta engine.SnapshotMeta) {
	r.log(Event{
		EventType: EventTypeSnapshotInstalled,
		LogID:     meta.LastLogID.String(),
		Operation: meta.SnapshotID,
		Status:    StatusSuccess,
	})
}

// Proposal records a client proposal and its outcome.
func (r *Recorder) Proposal(clientAddr string, logID engine.OptionalLogID, duration time.Duration, err error) {
	event := Event{
		EventType:  EventTypeProposalAccepted,
		ClientAddr: clientAddr,
		LogID:      logID.String(),
		DurationMs: duration.Milliseconds(),
		Status:     StatusSuccess,
	}
	if err != nil {
		event.EventType = EventTypeProposalRejected
		event.Status = StatusFailed
		event.ErrorMessage = err.Error()
	}
	r.log(event)
}

func (r *Recorder) log(event Event) {
	event.Timestamp = time.Now()
	event.NodeID = r.nodeID
	r.manager.LogEvent(event)
}
