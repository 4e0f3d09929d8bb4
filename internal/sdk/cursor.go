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
Commit Cursor Implementation
============================

A CommitCursor tracks the cluster's commit watermark from the client
side: a caller that just proposed an entry polls the cursor until the
watermark passes the entry's log id, which is the observable "your
write is durable on a quorum" signal.

The cursor remembers the highest watermark it has seen, so it also
serves as a monotonic read fence: IsFresh reports whether a node's
committed id is at or past it. The session does not route reads by
the fence itself.
*/
package sdk

import (
	"sync"
	"time"

	"flyraft/internal/engine"
)

// CommitCursor follows the cluster's committed watermark.
type CommitCursor struct {
	ID      string
	session *Session

	mu       sync.Mutex
	seen     engine.OptionalLogID
	interval time.Duration
}

// NewCommitCursor builds a cursor over an existing session.
func NewCommitCursor(session *Session) *CommitCursor {
	return &CommitCursor{
		ID:       GenerateCursorID(),
		session:  session,
		interval: 50 * time.Millisecond,
	}
}

// Seen returns the highest committed id this cursor has observed.
func (c *CommitCursor) Seen() engine.OptionalLogID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen
}

// Refresh probes the cluster once and folds the result into Seen.
func (c *CommitCursor) Refresh() (engine.OptionalLogID, error) {
	st, err := c.session.Status()
	if err != nil {
		return engine.NoLogID(), err
	}

	c.mu.Lock()
	if c.seen.Less(st.Committed) {
		c.seen = st.Committed
	}
	seen := c.seen
	c.mu.Unlock()
	return seen, nil
}

// WaitFor blocks until the commit watermark reaches id or the timeout
// expires. This is the client half of "propose, then wait until
// durable".
func (c *CommitCursor) WaitFor(id engine.LogID, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	want := engine.SomeLogID(id)

	for {
		seen, err := c.Refresh()
		if err == nil && want.LessEqual(seen) {
			return nil
		}
		if time.Now().After(deadline) {
			return NewTimeoutError("commit watermark did not reach " + id.String())
		}
		time.Sleep(c.interval)
	}
}

// IsFresh reports whether a node's committed id is at or past this
// cursor's fence -- safe to read from under monotonic-read semantics.
func (c *CommitCursor) IsFresh(status NodeStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen.LessEqual(status.Committed)
}
