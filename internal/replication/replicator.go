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
Package replication runs the leader's per-follower replication streams.

The consensus engine decides WHAT to replicate; this package is the
runtime half that moves the bytes. Each target named by an
UpdateReplicationStreams command gets one stream goroutine that:

1. Waits for a notify (new entries / commit advance) or an idle tick,
   which doubles as the heartbeat
2. Reads the log range (follower's matching+1 .. leader's last) from
   the log reader
3. Ships it as one AppendEntries batch, capped at MaxPayloadEntries
4. Feeds the outcome back: an ack advances the follower's matching,
   a conflict restarts the stream from scratch, a higher vote stops
   the stream and is surfaced to the runtime

Streams are torn down and rebuilt wholesale on every membership change;
replication progress survives in the engine's Progress tracker, not
here.
*/
package replication

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"flyraft/internal/engine"
	"flyraft/internal/logging"
)

// Transport ships one AppendEntries batch to one peer. Implementations
// live in the cluster package; an error means "unreachable", not a
// protocol outcome.
type Transport interface {
	AppendEntries(ctx context.Context, target engine.NodeID, prev engine.OptionalLogID, entries []engine.Entry, committed engine.OptionalLogID) (engine.AppendEntriesResponse, error)
}

// LogReader hands the stream entries to ship. A range with purged holes
// comes back shorter than asked; the stream falls back to snapshot
// transfer, which this package does not own.
type LogReader interface {
	EntryRange(begin, end uint64) ([]engine.Entry, error)
}

// Callbacks carry stream outcomes back to the runtime, on stream
// goroutines; the runtime re-enters the engine under its own lock.
type Callbacks struct {
	// OnAck reports a follower's new matching log id.
	OnAck func(target engine.NodeID, matching engine.OptionalLogID)
	// OnHigherVote reports that a follower holds a newer vote; the
	// leader must step down.
	OnHigherVote func(target engine.NodeID, vote engine.Vote)
	// OnNeedSnapshot reports a follower too far behind the purged log.
	OnNeedSnapshot func(target engine.NodeID)
}

// Config bounds one manager's streams.
type Config struct {
	// MaxPayloadEntries caps entries per AppendEntries batch.
	MaxPayloadEntries int
	// Interval is the idle resend cadence; it doubles as the heartbeat.
	Interval time.Duration
	// LagThreshold is how many entries behind a follower may fall
	// before the stream asks for a snapshot transfer instead of
	// walking the log.
	LagThreshold uint64
}

// DefaultConfig mirrors the runtime's heartbeat cadence.
func DefaultConfig() Config {
	return Config{
		MaxPayloadEntries: 256,
		Interval:          150 * time.Millisecond,
		LagThreshold:      10000,
	}
}

// stream is one follower's replication loop handle.
type stream struct {
	target engine.NodeID
	notify chan struct{}
	cancel context.CancelFunc
}

// Manager owns every active stream of the current leader term.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	log     LogReader
	tr      Transport
	cb      Callbacks
	logger  *logging.Logger
	streams map[engine.NodeID]*stream

	// Leader state shared with the streams; the runtime updates it
	// before notifying.
	stateMu   sync.RWMutex
	lastIndex uint64
	hasLast   bool
	committed engine.OptionalLogID
	matching  map[engine.NodeID]engine.OptionalLogID

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager builds an idle manager; UpdateTargets starts streams.
func NewManager(cfg Config, log LogReader, tr Transport, cb Callbacks) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	return &Manager{
		cfg:      cfg,
		log:      log,
		tr:       tr,
		cb:       cb,
		logger:   logging.NewLogger("replication"),
		streams:  make(map[engine.NodeID]*stream),
		matching: make(map[engine.NodeID]engine.OptionalLogID),
		group:    g,
		ctx:      gctx,
		cancel:   cancel,
	}
}

// SetLeaderState publishes the leader's last log index and committed
// watermark for the streams to read.
func (m *Manager) SetLeaderState(lastLogID, committed engine.OptionalLogID) {
	m.stateMu.Lock()
	m.hasLast = lastLogID.Valid
	if lastLogID.Valid {
		m.lastIndex = lastLogID.ID.Index
	}
	m.committed = committed
	m.stateMu.Unlock()
}

// RecordMatching notes a follower's acknowledged progress so the next
// batch resumes after it.
func (m *Manager) RecordMatching(target engine.NodeID, matching engine.OptionalLogID) {
	m.stateMu.Lock()
	m.matching[target] = matching
	m.stateMu.Unlock()
}

// UpdateTargets reconciles the stream set against the engine's
// UpdateReplicationStreams command: new targets get a stream, removed
// targets lose theirs.
func (m *Manager) UpdateTargets(targets []engine.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[engine.NodeID]struct{}, len(targets))
	for _, t := range targets {
		want[t] = struct{}{}
	}

	for id, s := range m.streams {
		if _, ok := want[id]; !ok {
			s.cancel()
			delete(m.streams, id)
		}
	}

	for id := range want {
		if _, ok := m.streams[id]; ok {
			continue
		}
		sctx, cancel := context.WithCancel(m.ctx)
		s := &stream{
			target: id,
			notify: make(chan struct{}, 1),
			cancel: cancel,
		}
		m.streams[id] = s
		m.group.Go(func() error {
			m.run(sctx, s)
			return nil
		})
	}
}

// Notify pokes every stream: new entries appended or commit advanced.
func (m *Manager) Notify() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.streams {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
}

// Stop tears down every stream and waits for them to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	for id, s := range m.streams {
		s.cancel()
		delete(m.streams, id)
	}
	m.mu.Unlock()
	m.cancel()
	m.group.Wait()
}

func (m *Manager) run(ctx context.Context, s *stream) {
	logger := m.logger.With("target", s.target.String())
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.notify:
		case <-ticker.C:
		}

		if !m.replicateOnce(ctx, s, logger) {
			return
		}
	}
}

// replicateOnce ships one batch; returns false when the stream must
// stop for good (higher vote seen, context cancelled).
func (m *Manager) replicateOnce(ctx context.Context, s *stream, logger *logging.Logger) bool {
	m.stateMu.RLock()
	hasLast := m.hasLast
	last := m.lastIndex
	committed := m.committed
	match := m.matching[s.target]
	m.stateMu.RUnlock()

	if !hasLast {
		return true
	}

	begin := uint64(0)
	prev := engine.NoLogID()
	if match.Valid {
		begin = match.ID.Index + 1
		prev = match
	}
	if begin > last {
		// Fully caught up: send an empty batch as the heartbeat.
		resp, err := m.tr.AppendEntries(ctx, s.target, prev, nil, committed)
		if err != nil {
			return ctx.Err() == nil
		}
		return m.handleOutcome(s, nil, resp, logger)
	}

	if m.cfg.LagThreshold > 0 && last-begin > m.cfg.LagThreshold {
		if m.cb.OnNeedSnapshot != nil {
			m.cb.OnNeedSnapshot(s.target)
		}
		return true
	}

	end := last + 1
	if m.cfg.MaxPayloadEntries > 0 && end-begin > uint64(m.cfg.MaxPayloadEntries) {
		end = begin + uint64(m.cfg.MaxPayloadEntries)
	}

	entries, err := m.log.EntryRange(begin, end)
	if err != nil {
		logger.Warn("log read failed", "err", err.Error())
		return true
	}
	if uint64(len(entries)) < end-begin {
		// Purged holes in the range; only a snapshot catches this
		// follower up.
		if m.cb.OnNeedSnapshot != nil {
			m.cb.OnNeedSnapshot(s.target)
		}
		return true
	}

	resp, err := m.tr.AppendEntries(ctx, s.target, prev, entries, committed)
	if err != nil {
		return ctx.Err() == nil
	}
	return m.handleOutcome(s, entries, resp, logger)
}

func (m *Manager) handleOutcome(s *stream, entries []engine.Entry, resp engine.AppendEntriesResponse, logger *logging.Logger) bool {
	switch resp.Outcome {
	case engine.AppendSuccess:
		if n := len(entries); n > 0 {
			ack := engine.SomeLogID(entries[n-1].GetLogID())
			m.RecordMatching(s.target, ack)
			if m.cb.OnAck != nil {
				m.cb.OnAck(s.target, ack)
			}
			// More may have arrived while this batch was in flight.
			select {
			case s.notify <- struct{}{}:
			default:
			}
		}
	case engine.AppendConflict:
		// The follower deleted its conflicting tail; restart the probe
		// from the beginning of the log. Matching in the engine never
		// regresses, only this stream's local cursor does.
		m.RecordMatching(s.target, engine.NoLogID())
	case engine.AppendHigherVote:
		logger.Info("follower holds a higher vote", "vote", resp.HigherVote.String())
		if m.cb.OnHigherVote != nil {
			m.cb.OnHigherVote(s.target, resp.HigherVote)
		}
		return false
	}
	return true
}
