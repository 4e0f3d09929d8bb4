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
Package audit records an operator-facing trail of consensus events.

Elections won and lost, role transitions, membership changes, log
truncation and compaction, snapshot installs, client proposals --
anything an operator might later need to reconstruct "who led when and
why did it change" is written here, separately from the debug log:
audit events are structured, retained, queryable and exportable, where
log lines are ephemeral.

Events are buffered and flushed in batches by a background worker, so
recording an event never blocks the consensus runtime.

Cluster Support:
================

Each node keeps its own audit trail. The ClusterAuditManager in
cluster.go can aggregate trails from every node for a cluster-wide
view.
*/
package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"flyraft/internal/logging"
	"flyraft/internal/storage"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Election events
	EventTypeElectionStarted EventType = "ELECTION_STARTED"
	EventTypeLeaderElected   EventType = "LEADER_ELECTED"
	EventTypeLeaderStepDown  EventType = "LEADER_STEPDOWN"
	EventTypeVoteGranted     EventType = "VOTE_GRANTED"
	EventTypeVoteRejected    EventType = "VOTE_REJECTED"

	// Membership events
	EventTypeMembershipProposed  EventType = "MEMBERSHIP_PROPOSED"
	EventTypeMembershipCommitted EventType = "MEMBERSHIP_COMMITTED"
	EventTypeNodeJoin            EventType = "NODE_JOIN"
	EventTypeNodeLeave           EventType = "NODE_LEAVE"
	EventTypeNodeDead            EventType = "NODE_DEAD"
	EventTypeNodeFenced          EventType = "NODE_FENCED"
	EventTypeFailover            EventType = "FAILOVER"

	// Log events
	EventTypeLogTruncated EventType = "LOG_TRUNCATED"
	EventTypeLogPurged    EventType = "LOG_PURGED"

	// Snapshot events
	EventTypeSnapshotBuilt     EventType = "SNAPSHOT_BUILT"
	EventTypeSnapshotInstalled EventType = "SNAPSHOT_INSTALLED"
	EventTypeSnapshotCancelled EventType = "SNAPSHOT_CANCELLED"

	// Client events
	EventTypeProposalAccepted EventType = "PROPOSAL_ACCEPTED"
	EventTypeProposalRejected EventType = "PROPOSAL_REJECTED"

	// Administrative events
	EventTypeConfigReload EventType = "CONFIG_RELOAD"
	EventTypeNodeQuiesced EventType = "NODE_QUIESCED"
	EventTypeNodeResumed  EventType = "NODE_RESUMED"
)

// Status represents the outcome of an audited event.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Event represents a single audit log entry.
type Event struct {
	ID           int64             `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	EventType    EventType         `json:"event_type"`
	NodeID       string            `json:"node_id"`
	Term         uint64            `json:"term"`
	PeerID       string            `json:"peer_id,omitempty"`
	LogID        string            `json:"log_id,omitempty"`
	Operation    string            `json:"operation,omitempty"`
	ClientAddr   string            `json:"client_addr,omitempty"`
	Status       Status            `json:"status"`
	ErrorMessage string            `json:"error_message,omitempty"`
	DurationMs   int64             `json:"duration_ms"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Config holds audit configuration.
type Config struct {
	Enabled          bool `json:"enabled"`
	LogElections     bool `json:"log_elections"`
	LogMembership    bool `json:"log_membership"`
	LogCompaction    bool `json:"log_compaction"`
	LogSnapshots     bool `json:"log_snapshots"`
	LogProposals     bool `json:"log_proposals"`
	LogAdmin         bool `json:"log_admin"`
	RetentionDays    int  `json:"retention_days"`
	BufferSize       int  `json:"buffer_size"`
	FlushIntervalSec int  `json:"flush_interval_sec"`
}

// DefaultConfig returns default audit configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		LogElections:     true,
		LogMembership:    true,
		LogCompaction:    false, // Can be verbose
		LogSnapshots:     true,
		LogProposals:     false, // Can be very verbose
		LogAdmin:         true,
		RetentionDays:    90,
		BufferSize:       1000,
		FlushIntervalSec: 5,
	}
}

// Manager manages audit logging.
type Manager struct {
	config  Config
	store   storage.Engine
	logger  *logging.Logger
	buffer  chan Event
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	enabled bool
	nextID  int64
}

// NewManager creates a new audit manager.
func NewManager(store storage.Engine, config Config) *Manager {
	m := &Manager{
		config:  config,
		store:   store,
		logger:  logging.NewLogger("audit"),
		buffer:  make(chan Event, config.BufferSize),
		stopCh:  make(chan struct{}),
		enabled: config.Enabled,
	}

	if config.Enabled {
		m.wg.Add(1)
		go m.worker()
	}

	return m
}

// worker processes audit events from the buffer.
func (m *Manager) worker() {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Duration(m.config.FlushIntervalSec) * time.Second)
	defer ticker.Stop()

	batch := make([]Event, 0, 100)

	for {
		select {
		case event := <-m.buffer:
			batch = append(batch, event)
			if len(batch) >= 100 {
				m.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				m.flushBatch(batch)
				batch = batch[:0]
			}

		case <-m.stopCh:
			for len(m.buffer) > 0 {
				batch = append(batch, <-m.buffer)
			}
			if len(batch) > 0 {
				m.flushBatch(batch)
			}
			return
		}
	}
}

// flushBatch writes a batch of events to storage.
func (m *Manager) flushBatch(events []Event) {
	for _, event := range events {
		if err := m.writeEvent(event); err != nil {
			m.logger.Error("failed to write audit event", "err", err.Error(), "event_type", string(event.EventType))
		}
	}
}

// writeEvent writes a single event to storage under a
// timestamp-ordered key.
func (m *Manager) writeEvent(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == 0 {
		m.mu.Lock()
		m.nextID++
		event.ID = m.nextID
		m.mu.Unlock()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	key := fmt.Sprintf("_audit:%020d:%d", event.Timestamp.UnixNano(), event.ID)
	return m.store.Put([]byte(key), data)
}

// LogEvent logs an audit event asynchronously. A full buffer drops the
// event rather than blocking the caller.
func (m *Manager) LogEvent(event Event) {
	m.mu.RLock()
	enabled := m.enabled
	m.mu.RUnlock()

	if !enabled || !m.shouldLog(event.EventType) {
		return
	}

	select {
	case m.buffer <- event:
	default:
		m.logger.Warn("audit buffer full, dropping event", "event_type", string(event.EventType))
	}
}

// shouldLog checks whether an event type is enabled by configuration.
func (m *Manager) shouldLog(eventType EventType) bool {
	switch eventType {
	case EventTypeElectionStarted, EventTypeLeaderElected, EventTypeLeaderStepDown,
		EventTypeVoteGranted, EventTypeVoteRejected:
		return m.config.LogElections

	case EventTypeMembershipProposed, EventTypeMembershipCommitted,
		EventTypeNodeJoin, EventTypeNodeLeave, EventTypeNodeDead,
		EventTypeNodeFenced, EventTypeFailover:
		return m.config.LogMembership

	case EventTypeLogTruncated, EventTypeLogPurged:
		return m.config.LogCompaction

	case EventTypeSnapshotBuilt, EventTypeSnapshotInstalled, EventTypeSnapshotCancelled:
		return m.config.LogSnapshots

	case EventTypeProposalAccepted, EventTypeProposalRejected:
		return m.config.LogProposals

	case EventTypeConfigReload, EventTypeNodeQuiesced, EventTypeNodeResumed:
		return m.config.LogAdmin

	default:
		return true
	}
}

// QueryOptions filters an audit log query.
type QueryOptions struct {
	StartTime time.Time
	EndTime   time.Time
	NodeID    string
	PeerID    string
	EventType EventType
	Status    Status
	Limit     int
}

// QueryLogs returns matching events, oldest first.
func (m *Manager) QueryLogs(opts QueryOptions) ([]Event, error) {
	var out []Event
	var scanErr error

	err := m.store.Scan([]byte("_audit:"), func(_, value []byte) bool {
		var event Event
		if err := json.Unmarshal(value, &event); err != nil {
			scanErr = err
			return false
		}
		if !opts.StartTime.IsZero() && event.Timestamp.Before(opts.StartTime) {
			return true
		}
		if !opts.EndTime.IsZero() && event.Timestamp.After(opts.EndTime) {
			return true
		}
		if opts.NodeID != "" && event.NodeID != opts.NodeID {
			return true
		}
		if opts.PeerID != "" && event.PeerID != opts.PeerID {
			return true
		}
		if opts.EventType != "" && event.EventType != opts.EventType {
			return true
		}
		if opts.Status != "" && event.Status != opts.Status {
			return true
		}
		out = append(out, event)
		return opts.Limit <= 0 || len(out) < opts.Limit
	})
	if err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, scanErr
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// ExportFormat names an export encoding.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
	FormatText ExportFormat = "text"
)

// ExportLogs queries and exports in one step.
func (m *Manager) ExportLogs(filename string, format ExportFormat, opts QueryOptions) error {
	events, err := m.QueryLogs(opts)
	if err != nil {
		return err
	}
	return m.ExportEvents(filename, format, events)
}

// ExportEvents writes the given events to a file in the given format.
func (m *Manager) ExportEvents(filename string, format ExportFormat, events []Event) error {
	switch format {
	case FormatJSON:
		return m.exportJSON(filename, events)
	case FormatCSV:
		return m.exportCSV(filename, events)
	case FormatText:
		return m.exportText(filename, events)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

// Stop flushes buffered events and halts the worker.
func (m *Manager) Stop() {
	m.mu.Lock()
	enabled := m.enabled
	m.enabled = false
	m.mu.Unlock()
	if enabled {
		close(m.stopCh)
		m.wg.Wait()
	}
}

// Enable turns audit logging on.
func (m *Manager) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}

// Disable turns audit logging off.
func (m *Manager) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// IsEnabled reports whether audit logging is on.
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// CleanupOldLogs deletes events past the retention window.
func (m *Manager) CleanupOldLogs() error {
	if m.config.RetentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -m.config.RetentionDays)

	var stale [][]byte
	err := m.store.Scan([]byte("_audit:"), func(key, value []byte) bool {
		var event Event
		if err := json.Unmarshal(value, &event); err != nil {
			return true
		}
		if event.Timestamp.Before(cutoff) {
			k := make([]byte, len(key))
			copy(k, key)
			stale = append(stale, k)
		}
		return true
	})
	if err != nil {
		return err
	}

	for _, k := range stale {
		if err := m.store.Delete(k); err != nil {
			return err
		}
	}
	if len(stale) > 0 {
		m.logger.Info("cleaned up old audit events", "count", fmt.Sprint(len(stale)))
	}
	return nil
}
