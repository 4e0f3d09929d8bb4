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

// Entry is the capability bundle the engine needs from the application's
// log entry type. The engine is otherwise agnostic to what a payload
// contains; it only needs to stamp entries with a LogID and recognize
// membership-change entries so it can track effective/committed
// membership as it walks a batch.
type Entry interface {
	// GetLogID returns the entry's LogID (zero value before it is set).
	GetLogID() LogID
	// SetLogID stamps the entry with its assigned LogID. Called exactly
	// once, when the engine assigns indices to newly proposed entries.
	SetLogID(LogID)
	// Membership returns the membership this entry carries and true, or
	// (zero, false) if this is an ordinary (non-membership) entry.
	Membership() (Membership, bool)
}

// BlankEntry is a no-op log entry the engine appends itself (e.g. the
// blank entry written immediately after an election, used to commit
// prior-term entries transitively once something in the new term
// commits).
type BlankEntry struct {
	LogID LogID
}

func (b *BlankEntry) GetLogID() LogID             { return b.LogID }
func (b *BlankEntry) SetLogID(id LogID)           { b.LogID = id }
func (b *BlankEntry) Membership() (Membership, bool) { return Membership{}, false }

// MembershipEntry carries a membership change.
type MembershipEntry struct {
	LogID      LogID
	Config     Membership
}

func (m *MembershipEntry) GetLogID() LogID               { return m.LogID }
func (m *MembershipEntry) SetLogID(id LogID)             { m.LogID = id }
func (m *MembershipEntry) Membership() (Membership, bool) { return m.Config, true }

// DataEntry carries an opaque application command proposed by a client.
// The engine never looks inside Data; only the state machine does.
type DataEntry struct {
	LogID LogID
	Data  []byte
}

func (d *DataEntry) GetLogID() LogID                { return d.LogID }
func (d *DataEntry) SetLogID(id LogID)              { d.LogID = id }
func (d *DataEntry) Membership() (Membership, bool) { return Membership{}, false }
