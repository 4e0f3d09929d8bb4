/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package audit

import "time"

// QueryHelper provides the precanned queries operators actually run
// against the audit trail.
type QueryHelper struct {
	manager *Manager
}

// NewQueryHelper creates a new query helper.
func NewQueryHelper(manager *Manager) *QueryHelper {
	return &QueryHelper{manager: manager}
}

// GetAuditStats summarizes the trail: totals per event type and per
// outcome.
func (h *QueryHelper) GetAuditStats() (map[string]interface{}, error) {
	events, err := h.manager.QueryLogs(QueryOptions{})
	if err != nil {
		return nil, err
	}

	byType := make(map[string]int)
	byStatus := make(map[string]int)
	for _, e := range events {
		byType[string(e.EventType)]++
		byStatus[string(e.Status)]++
	}

	return map[string]interface{}{
		"total":     len(events),
		"by_type":   byType,
		"by_status": byStatus,
	}, nil
}

// GetRecentEvents returns the newest events, up to limit.
func (h *QueryHelper) GetRecentEvents(limit int) ([]Event, error) {
	events, err := h.manager.QueryLogs(QueryOptions{})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// GetEventsByPeer returns events involving one peer.
func (h *QueryHelper) GetEventsByPeer(peerID string, limit int) ([]Event, error) {
	return h.manager.QueryLogs(QueryOptions{PeerID: peerID, Limit: limit})
}

// GetEventsByType returns events of one type.
func (h *QueryHelper) GetEventsByType(eventType EventType, limit int) ([]Event, error) {
	return h.manager.QueryLogs(QueryOptions{EventType: eventType, Limit: limit})
}

// GetFailedEvents returns events that recorded a failure.
func (h *QueryHelper) GetFailedEvents(limit int) ([]Event, error) {
	return h.manager.QueryLogs(QueryOptions{Status: StatusFailed, Limit: limit})
}

// GetEventsInTimeRange returns events between start and end.
func (h *QueryHelper) GetEventsInTimeRange(start, end time.Time, limit int) ([]Event, error) {
	return h.manager.QueryLogs(QueryOptions{StartTime: start, EndTime: end, Limit: limit})
}

// GetElectionHistory returns the leadership timeline: every election
// and step-down, oldest first.
func (h *QueryHelper) GetElectionHistory(limit int) ([]Event, error) {
	events, err := h.manager.QueryLogs(QueryOptions{})
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, e := range events {
		switch e.EventType {
		case EventTypeElectionStarted, EventTypeLeaderElected, EventTypeLeaderStepDown, EventTypeFailover:
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
