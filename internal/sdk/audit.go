/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

/*
Audit trail access for FlyRaft SDK clients.

This module lets a client query a node's consensus audit trail -- the
election/membership/snapshot timeline -- through the same JSON query
endpoint the nodes use among themselves for cluster-wide aggregation.

Usage:
======

  auditClient := sdk.NewAuditClient("10.0.0.1:9995")

  // Recent leadership churn
  events, err := auditClient.GetElectionHistory(50)

  // Everything a peer was involved in
  events, err := auditClient.GetEventsByPeer("n3", 100)

  // Render for the console
  rs := sdk.AuditResultSet(events)

Thread Safety:
==============

The audit client is stateless per request and safe for concurrent use.
*/
package sdk

import (
	"encoding/json"
	"net"
	"strconv"
	"time"

	"flyraft/internal/audit"
)

// AuditClient queries one node's audit trail.
type AuditClient struct {
	addr    string
	timeout time.Duration
}

// NewAuditClient builds a client for a node's audit endpoint.
func NewAuditClient(addr string) *AuditClient {
	return &AuditClient{addr: addr, timeout: 10 * time.Second}
}

// Query runs one filtered query against the node.
func (c *AuditClient) Query(opts audit.QueryOptions) ([]audit.Event, error) {
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return nil, NewConnectionError("dial audit endpoint", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.timeout))

	request := map[string]interface{}{
		"type":    "audit_query",
		"options": opts,
	}
	if err := json.NewEncoder(conn).Encode(request); err != nil {
		return nil, NewConnectionError("send audit query", err)
	}

	var response struct {
		Success bool          `json:"success"`
		Events  []audit.Event `json:"events"`
		Error   string        `json:"error"`
	}
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return nil, NewProtocolError("decode audit response", err)
	}
	if !response.Success {
		return nil, NewRejectedError(response.Error)
	}
	return response.Events, nil
}

// GetRecentEvents returns the newest events, up to limit.
func (c *AuditClient) GetRecentEvents(limit int) ([]audit.Event, error) {
	return c.Query(audit.QueryOptions{Limit: limit})
}

// GetEventsByPeer returns events involving one peer node.
func (c *AuditClient) GetEventsByPeer(peerID string, limit int) ([]audit.Event, error) {
	return c.Query(audit.QueryOptions{PeerID: peerID, Limit: limit})
}

// GetFailedEvents returns events that recorded a failure.
func (c *AuditClient) GetFailedEvents(limit int) ([]audit.Event, error) {
	return c.Query(audit.QueryOptions{Status: audit.StatusFailed, Limit: limit})
}

// GetEventsInTimeRange returns events between start and end.
func (c *AuditClient) GetEventsInTimeRange(start, end time.Time, limit int) ([]audit.Event, error) {
	return c.Query(audit.QueryOptions{StartTime: start, EndTime: end, Limit: limit})
}

// GetElectionHistory returns the leadership timeline.
func (c *AuditClient) GetElectionHistory(limit int) ([]audit.Event, error) {
	events, err := c.Query(audit.QueryOptions{Limit: 0})
	if err != nil {
		return nil, err
	}
	var out []audit.Event
	for _, e := range events {
		switch e.EventType {
		case audit.EventTypeElectionStarted, audit.EventTypeLeaderElected,
			audit.EventTypeLeaderStepDown, audit.EventTypeFailover:
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// AuditResultSet renders audit events as a table for the console.
func AuditResultSet(events []audit.Event) *ResultSet {
	rs := NewResultSet("TIME", "EVENT", "NODE", "TERM", "PEER", "LOG ID", "STATUS")
	for _, e := range events {
		rs.Append(
			e.Timestamp.Format("2006-01-02 15:04:05"),
			string(e.EventType),
			e.NodeID,
			strconv.FormatUint(e.Term, 10),
			e.PeerID,
			e.LogID,
			string(e.Status),
		)
	}
	return rs
}
