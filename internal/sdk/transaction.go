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
Proposal Batch Implementation
=============================

A Batch pipelines several proposals: commands queue locally, Flush
ships them in order, and Wait blocks until the last one is committed.
Raft gives batched entries the ordering guarantee for free -- they get
contiguous log ids under one leader epoch -- so the batch's only jobs
are pipelining and the single commit wait at the end.

A batch is NOT a transaction: entries from other clients interleave in
the log between Flush calls, and there is no rollback. A flushed entry
that committed stays committed.
*/
package sdk

import (
	"sync"
	"time"

	"flyraft/internal/engine"
)

// Batch accumulates commands for pipelined proposing.
type Batch struct {
	ID      string
	session *Session

	mu      sync.Mutex
	queued  [][]byte
	results []ProposeResult
	flushed bool
}

// NewBatch starts an empty batch on a session.
func NewBatch(session *Session) *Batch {
	return &Batch{ID: GenerateBatchID(), session: session}
}

// Add queues one command. Returns the batch for chaining.
func (b *Batch) Add(command []byte) *Batch {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queued = append(b.queued, command)
	return b
}

// Len reports how many commands are queued and not yet flushed.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queued)
}

// Flush proposes every queued command in order. On the first failure
// the remaining commands stay queued, so a retryable error can simply
// be flushed again.
func (b *Batch) Flush() ([]ProposeResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.queued) > 0 {
		res, err := b.session.Propose(b.queued[0])
		if err != nil {
			return b.results, err
		}
		b.results = append(b.results, *res)
		b.queued = b.queued[1:]
	}
	b.flushed = true
	return b.results, nil
}

// Wait blocks until the last flushed proposal is committed.
func (b *Batch) Wait(timeout time.Duration) error {
	b.mu.Lock()
	if !b.flushed || len(b.results) == 0 {
		b.mu.Unlock()
		return NewRejectedError("batch has no flushed proposals to wait for")
	}
	last := b.results[len(b.results)-1].LogID
	b.mu.Unlock()

	cursor := NewCommitCursor(b.session)
	return cursor.WaitFor(last, timeout)
}

// LastLogID returns the log id of the last flushed proposal.
func (b *Batch) LastLogID() (engine.LogID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.results) == 0 {
		return engine.LogID{}, false
	}
	return b.results[len(b.results)-1].LogID, true
}
