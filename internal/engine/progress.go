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

// InflightWindow tracks the range of log entries a leader has sent to one
// follower but not yet heard an ack for. It is a bookkeeping hint for the
// replication stream, not something the engine commits on; the engine only
// ever commits on acknowledged (matching) progress.
type InflightWindow struct {
	Active bool
	Begin  uint64
	End    uint64 // exclusive
}

// ProgressEntry is one follower's replication progress: the highest LogID
// known to be durably stored on that follower, plus its inflight window.
// Matching never moves backwards within a single leader epoch -- acks can
// race and arrive out of order, but the leader only adopts an update that
// advances the watermark.
type ProgressEntry struct {
	Matching OptionalLogID
	Inflight InflightWindow
}

// update advances Matching if id is newer; returns whether it changed.
func (p *ProgressEntry) update(id OptionalLogID) bool {
	if id.LessEqual(p.Matching) {
		return false
	}
	p.Matching = id
	return true
}

// Progress maps every node in the effective membership to its replication
// progress, and knows how to compute the greatest LogID matched by a
// quorum of the membership's voter configs.
type Progress struct {
	entries    map[NodeID]*ProgressEntry
	membership Membership
}

// NewProgress builds progress tracking for a fresh leader epoch: every
// node in the membership starts with no matched entry.
func NewProgress(m Membership) *Progress {
	p := &Progress{entries: make(map[NodeID]*ProgressEntry), membership: m}
	for _, id := range m.AllNodes() {
		p.entries[id] = &ProgressEntry{}
	}
	return p
}

// Get returns the node's progress entry, creating a zero one if absent
// (e.g. a learner who isn't yet listed, defensively).
func (p *Progress) Get(id NodeID) *ProgressEntry {
	e, ok := p.entries[id]
	if !ok {
		e = &ProgressEntry{}
		p.entries[id] = e
	}
	return e
}

// Update records a new matching LogID for id and reports whether that
// changed its watermark.
func (p *Progress) Update(id NodeID, matching OptionalLogID) bool {
	return p.Get(id).update(matching)
}

// Upgrade rebuilds progress for a new membership, transferring Matching
// values for nodes that remain (across voter<->learner reclassification)
// and dropping nodes no longer present. Progress entries are rebuilt by
// value semantics per node but the whole Progress object is replaced.
func (p *Progress) Upgrade(next Membership) *Progress {
	old := make(map[NodeID]OptionalLogID, len(p.entries))
	for id, e := range p.entries {
		old[id] = e.Matching
	}
	merged := upgradeProgress(old, next)

	np := &Progress{entries: make(map[NodeID]*ProgressEntry, len(merged)), membership: next}
	for id, m := range merged {
		np.entries[id] = &ProgressEntry{Matching: m}
	}
	return np
}

// CommittedLogID returns the greatest LogID matched by a quorum of every
// voter config in the membership, or NoLogID() if none qualifies.
//
// This only considers voters: learners never count toward commit.
func (p *Progress) CommittedLogID() OptionalLogID {
	voters := p.membership.Voters()
	if len(voters) == 0 {
		return NoLogID()
	}

	// Candidate commit points are exactly the distinct Matching values
	// held by voters; the quorum-committed LogID is the greatest one for
	// which a quorum of voters have matched at least that far.
	candidates := make([]OptionalLogID, 0, len(voters))
	for _, id := range voters {
		candidates = append(candidates, p.Get(id).Matching)
	}
	sortOptionalLogIDsDesc(candidates)

	for _, cand := range candidates {
		if !cand.Valid {
			continue
		}
		matched := make(map[NodeID]struct{})
		for _, id := range voters {
			if cand.LessEqual(p.Get(id).Matching) {
				matched[id] = struct{}{}
			}
		}
		if p.membership.IsQuorum(matched) {
			return cand
		}
	}
	return NoLogID()
}

func sortOptionalLogIDsDesc(ids []OptionalLogID) {
	// Small N (cluster size); simple insertion sort avoids importing sort
	// for a handful of elements and keeps this file dependency-free.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1].Less(ids[j]); j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
