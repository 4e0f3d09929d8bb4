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
Package sdk is the client library for a FlyRaft cluster.

It speaks the binary wire protocol to any node: propose an entry (with
automatic redirect to the current leader), read node and cluster
status, watch the commit watermark advance, and pull the audit trail.
The consensus-facing types (log ids, votes, memberships) are the
engine package's own; the sdk adds only the client-side machinery --
sessions, pooling, retries, leader tracking.
*/
package sdk

import (
	"time"

	"flyraft/internal/engine"
)

// ConnectionConfig configures one client connection.
type ConnectionConfig struct {
	// Addrs lists node endpoints ("host:port"). The session walks them
	// until one answers; a leader hint then pins it.
	Addrs []string

	// DialTimeout bounds the TCP connect.
	DialTimeout time.Duration

	// RequestTimeout bounds one request/response exchange.
	RequestTimeout time.Duration

	// MaxRedirects bounds how many leader hints a single Propose will
	// chase before giving up.
	MaxRedirects int

	// RetryBackoff is the pause between retries of a retryable failure.
	RetryBackoff time.Duration
}

// NewConnectionConfig returns a config with sensible defaults.
func NewConnectionConfig(addrs ...string) *ConnectionConfig {
	return &ConnectionConfig{
		Addrs:          addrs,
		DialTimeout:    3 * time.Second,
		RequestTimeout: 5 * time.Second,
		MaxRedirects:   3,
		RetryBackoff:   100 * time.Millisecond,
	}
}

// NodeStatus is one node's answer to a status probe.
type NodeStatus struct {
	NodeID    uint64
	Addr      string
	State     string
	Term      uint64
	LastLogID engine.OptionalLogID
	Committed engine.OptionalLogID
}

// IsLeader reports whether the node called itself leader.
func (s NodeStatus) IsLeader() bool {
	return s.State == engine.ServerStateLeader.String()
}

// ProposeResult is the outcome of one accepted proposal.
type ProposeResult struct {
	LogID    engine.LogID
	Duration time.Duration
}
