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

package storage

import (
	"fmt"

	"flyraft/internal/engine"
	"flyraft/internal/protocol"
)

// Key layout inside the shared engine. Log entries sort in index order
// because the index is big-endian encoded (see EncodeIndexKey).
var (
	keyVote         = []byte("raft/vote")
	keyApplied      = []byte("raft/applied")
	keyPurged       = []byte("raft/purged")
	keySnapshot     = []byte("raft/snapshot")
	keySnapshotData = []byte("raft/snapshot_data")
	logPrefix       = []byte("log/")
)

// RaftStore persists everything the consensus engine's commands name:
// the current vote, the log, the applied/purged watermarks and the
// snapshot metadata. It is the durable collaborator behind SaveVote,
// AppendInputEntries, AppendBlankLog, DeleteConflictLog and PurgeLog.
type RaftStore struct {
	eng StorageEngine
}

// NewRaftStore wraps a storage engine.
func NewRaftStore(eng StorageEngine) *RaftStore {
	return &RaftStore{eng: eng}
}

// SaveVote durably persists the vote. It syncs before returning: a vote
// acknowledged to a peer and then lost would let two leaders share a
// term.
func (s *RaftStore) SaveVote(v engine.Vote) error {
	e := protocol.NewBinaryEncoder()
	e.WriteUint64(v.Term)
	e.WriteUint64(uint64(v.NodeID))
	e.WriteBool(v.Committed)
	if err := s.eng.Put(keyVote, e.Bytes()); err != nil {
		return err
	}
	return s.eng.Sync()
}

// Vote reads the stored vote; a missing record is the zero vote.
func (s *RaftStore) Vote() (engine.Vote, error) {
	b, err := s.eng.Get(keyVote)
	if err == ErrKeyNotFound {
		return engine.ZeroVote, nil
	}
	if err != nil {
		return engine.ZeroVote, err
	}
	d := protocol.NewBinaryDecoder(b)
	term, err := d.ReadUint64()
	if err != nil {
		return engine.ZeroVote, err
	}
	node, err := d.ReadUint64()
	if err != nil {
		return engine.ZeroVote, err
	}
	committed, err := d.ReadBool()
	if err != nil {
		return engine.ZeroVote, err
	}
	return engine.Vote{Term: term, NodeID: engine.NodeID(node), Committed: committed}, nil
}

// AppendEntries stores a run of log entries.
func (s *RaftStore) AppendEntries(entries []engine.Entry) error {
	for _, ent := range entries {
		b, err := protocol.FromEngineEntry(ent).Encode()
		if err != nil {
			return err
		}
		if err := s.eng.Put(logKey(ent.GetLogID().Index), b); err != nil {
			return err
		}
	}
	return s.eng.Sync()
}

// Entry reads the log entry at index.
func (s *RaftStore) Entry(index uint64) (engine.Entry, error) {
	b, err := s.eng.Get(logKey(index))
	if err != nil {
		return nil, err
	}
	w, err := protocol.DecodeWireEntry(b)
	if err != nil {
		return nil, err
	}
	return w.ToEngineEntry(), nil
}

// EntryRange reads entries with begin <= index < end, skipping holes.
func (s *RaftStore) EntryRange(begin, end uint64) ([]engine.Entry, error) {
	var out []engine.Entry
	for i := begin; i < end; i++ {
		ent, err := s.Entry(i)
		if err == ErrKeyNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ent)
	}
	return out, nil
}

// DeleteSince removes entries at index >= since (conflict truncation).
func (s *RaftStore) DeleteSince(since uint64) error {
	var toDelete [][]byte
	err := s.eng.Scan(logPrefix, func(key, _ []byte) bool {
		if idx, ok := DecodeIndexKey(key); ok && idx >= since {
			k := make([]byte, len(key))
			copy(k, key)
			toDelete = append(toDelete, k)
		}
		return true
	})
	if err != nil {
		return err
	}
	for _, k := range toDelete {
		if err := s.eng.Delete(k); err != nil {
			return err
		}
	}
	return s.eng.Sync()
}

// PurgeUpto removes entries at index <= upto (snapshot compaction).
func (s *RaftStore) PurgeUpto(upto engine.LogID) error {
	var toDelete [][]byte
	err := s.eng.Scan(logPrefix, func(key, _ []byte) bool {
		idx, ok := DecodeIndexKey(key)
		if !ok {
			return true
		}
		if idx > upto.Index {
			return false // keys are in index order; nothing further qualifies
		}
		k := make([]byte, len(key))
		copy(k, key)
		toDelete = append(toDelete, k)
		return true
	})
	if err != nil {
		return err
	}
	for _, k := range toDelete {
		if err := s.eng.Delete(k); err != nil {
			return err
		}
	}
	if err := s.putLogID(keyPurged, upto); err != nil {
		return err
	}
	return s.eng.Sync()
}

// SaveApplied records the apply watermark after a FollowerCommit or
// LeaderCommit range has been fed to the state machine.
func (s *RaftStore) SaveApplied(id engine.LogID) error {
	return s.putLogID(keyApplied, id)
}

// SaveSnapshotMeta records the current snapshot's coverage.
func (s *RaftStore) SaveSnapshotMeta(meta engine.SnapshotMeta) error {
	msg := protocol.InstallSnapshotMessage{
		LastLogID:  meta.LastLogID,
		Membership: meta.LastMembership,
		SnapshotID: meta.SnapshotID,
	}
	b, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := s.eng.Put(keySnapshot, b); err != nil {
		return err
	}
	return s.eng.Sync()
}

// SnapshotMeta reads the stored snapshot coverage, if any.
func (s *RaftStore) SnapshotMeta() (engine.SnapshotMeta, bool, error) {
	b, err := s.eng.Get(keySnapshot)
	if err == ErrKeyNotFound {
		return engine.SnapshotMeta{}, false, nil
	}
	if err != nil {
		return engine.SnapshotMeta{}, false, err
	}
	msg, err := protocol.DecodeInstallSnapshotMessage(b)
	if err != nil {
		return engine.SnapshotMeta{}, false, err
	}
	return engine.SnapshotMeta{
		LastLogID:      msg.LastLogID,
		LastMembership: msg.Membership,
		SnapshotID:     msg.SnapshotID,
	}, true, nil
}

// SaveSnapshotData persists the snapshot's serialized state machine,
// the bytes a lagging follower is served chunk by chunk.
func (s *RaftStore) SaveSnapshotData(data []byte) error {
	if err := s.eng.Put(keySnapshotData, data); err != nil {
		return err
	}
	return s.eng.Sync()
}

// SnapshotData reads the stored snapshot bytes, if any.
func (s *RaftStore) SnapshotData() ([]byte, bool, error) {
	b, err := s.eng.Get(keySnapshotData)
	if err == ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// GetInitialState rebuilds the engine's validated state from durable
// storage at process start: vote, the log-id index, committed (= the
// apply watermark), purge watermark, snapshot metadata, and both
// membership entries reconstructed from the snapshot plus the log.
func (s *RaftStore) GetInitialState(self engine.NodeID) (*engine.RaftState, error) {
	state := engine.NewRaftState(self)

	vote, err := s.Vote()
	if err != nil {
		return nil, err
	}
	state.Vote = vote

	snapMeta, hasSnap, err := s.SnapshotMeta()
	if err != nil {
		return nil, err
	}

	var memberships []engine.EffectiveMembership
	if hasSnap {
		state.SnapshotMeta = snapMeta
		memberships = append(memberships, snapMeta.LastMembership)
		if snapMeta.LastLogID.Valid {
			state.LogIDs.Purge(snapMeta.LastLogID.ID)
			state.LastPurged = snapMeta.LastLogID
		}
	}
	if purged, ok, err := s.getLogID(keyPurged); err != nil {
		return nil, err
	} else if ok && state.LastPurged.Less(engine.SomeLogID(purged)) {
		state.LogIDs.Purge(purged)
		state.LastPurged = engine.SomeLogID(purged)
	}

	// Walk the log in index order, extending the log-id index and
	// collecting membership entries as they appear.
	var scanErr error
	err = s.eng.Scan(logPrefix, func(key, value []byte) bool {
		idx, ok := DecodeIndexKey(key)
		if !ok {
			return true
		}
		if state.LastPurged.Valid && idx <= state.LastPurged.ID.Index {
			return true
		}
		w, err := protocol.DecodeWireEntry(value)
		if err != nil {
			scanErr = fmt.Errorf("log entry %d: %w", idx, err)
			return false
		}
		state.LogIDs.Append(w.LogID)
		if w.IsMembership() {
			memberships = append(memberships, engine.EffectiveMembership{
				LogID:      engine.SomeLogID(w.LogID),
				Membership: w.Membership,
			})
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, scanErr
	}

	// The last membership observed is effective; the one before it is
	// the best committed candidate.
	if n := len(memberships); n > 0 {
		state.EffectiveMembership = memberships[n-1]
		if n > 1 {
			state.CommittedMembership = memberships[n-2]
		}
	}

	// committed restarts at the apply watermark: anything applied was
	// committed, and anything beyond it will be re-discovered.
	if applied, ok, err := s.getLogID(keyApplied); err != nil {
		return nil, err
	} else if ok {
		state.Committed = engine.SomeLogID(applied)
		state.LastApplied = engine.SomeLogID(applied)
	} else if hasSnap && snapMeta.LastLogID.Valid {
		state.Committed = snapMeta.LastLogID
		state.LastApplied = snapMeta.LastLogID
	}

	return state, nil
}

func (s *RaftStore) putLogID(key []byte, id engine.LogID) error {
	e := protocol.NewBinaryEncoder()
	e.WriteUint64(id.LeaderID.Term)
	e.WriteUint64(uint64(id.LeaderID.NodeID))
	e.WriteUint64(id.Index)
	return s.eng.Put(key, e.Bytes())
}

func (s *RaftStore) getLogID(key []byte) (engine.LogID, bool, error) {
	b, err := s.eng.Get(key)
	if err == ErrKeyNotFound {
		return engine.LogID{}, false, nil
	}
	if err != nil {
		return engine.LogID{}, false, err
	}
	d := protocol.NewBinaryDecoder(b)
	term, err := d.ReadUint64()
	if err != nil {
		return engine.LogID{}, false, err
	}
	node, err := d.ReadUint64()
	if err != nil {
		return engine.LogID{}, false, err
	}
	index, err := d.ReadUint64()
	if err != nil {
		return engine.LogID{}, false, err
	}
	return engine.LogID{
		LeaderID: engine.LeaderID{Term: term, NodeID: engine.NodeID(node)},
		Index:    index,
	}, true, nil
}

func logKey(index uint64) []byte {
	return append(append([]byte{}, logPrefix...), EncodeIndexKey(index)...)
}
