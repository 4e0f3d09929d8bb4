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

package protocol

import (
	"encoding/binary"
	"math"

	"golang.org/x/crypto/blake2b"

	"flyraft/internal/engine"
)

// BinaryEncoder builds a message payload field by field, length-prefixing
// variable-size values.
type BinaryEncoder struct {
	buf []byte
}

// NewBinaryEncoder creates an empty encoder.
func NewBinaryEncoder() *BinaryEncoder {
	return &BinaryEncoder{}
}

func (e *BinaryEncoder) WriteUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *BinaryEncoder) WriteInt64(v int64) {
	e.WriteUint64(uint64(v))
}

func (e *BinaryEncoder) WriteFloat64(v float64) {
	e.WriteUint64(math.Float64bits(v))
}

func (e *BinaryEncoder) WriteBool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

func (e *BinaryEncoder) WriteBytes(b []byte) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	e.buf = append(e.buf, l[:]...)
	e.buf = append(e.buf, b...)
}

func (e *BinaryEncoder) WriteString(s string) {
	e.WriteBytes([]byte(s))
}

// Bytes returns the encoded payload.
func (e *BinaryEncoder) Bytes() []byte {
	return e.buf
}

// BinaryDecoder reads back what a BinaryEncoder wrote, in the same order.
type BinaryDecoder struct {
	buf []byte
	off int
}

// NewBinaryDecoder wraps a payload for decoding.
func NewBinaryDecoder(b []byte) *BinaryDecoder {
	return &BinaryDecoder{buf: b}
}

func (d *BinaryDecoder) ReadUint64() (uint64, error) {
	if d.off+8 > len(d.buf) {
		return 0, ErrInvalidMessage
	}
	v := binary.BigEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v, nil
}

func (d *BinaryDecoder) ReadInt64() (int64, error) {
	v, err := d.ReadUint64()
	return int64(v), err
}

func (d *BinaryDecoder) ReadFloat64() (float64, error) {
	v, err := d.ReadUint64()
	return math.Float64frombits(v), err
}

func (d *BinaryDecoder) ReadBool() (bool, error) {
	if d.off+1 > len(d.buf) {
		return false, ErrInvalidMessage
	}
	v := d.buf[d.off] != 0
	d.off++
	return v, nil
}

func (d *BinaryDecoder) ReadBytes() ([]byte, error) {
	if d.off+4 > len(d.buf) {
		return nil, ErrInvalidMessage
	}
	n := int(binary.BigEndian.Uint32(d.buf[d.off:]))
	d.off += 4
	if d.off+n > len(d.buf) {
		return nil, ErrInvalidMessage
	}
	b := make([]byte, n)
	copy(b, d.buf[d.off:d.off+n])
	d.off += n
	return b, nil
}

func (d *BinaryDecoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	return string(b), err
}

// --- shared field codecs ---

func writeVote(e *BinaryEncoder, v engine.Vote) {
	e.WriteUint64(v.Term)
	e.WriteUint64(uint64(v.NodeID))
	e.WriteBool(v.Committed)
}

func readVote(d *BinaryDecoder) (engine.Vote, error) {
	term, err := d.ReadUint64()
	if err != nil {
		return engine.Vote{}, err
	}
	node, err := d.ReadUint64()
	if err != nil {
		return engine.Vote{}, err
	}
	committed, err := d.ReadBool()
	if err != nil {
		return engine.Vote{}, err
	}
	return engine.Vote{Term: term, NodeID: engine.NodeID(node), Committed: committed}, nil
}

func writeLogID(e *BinaryEncoder, id engine.LogID) {
	e.WriteUint64(id.LeaderID.Term)
	e.WriteUint64(uint64(id.LeaderID.NodeID))
	e.WriteUint64(id.Index)
}

func readLogID(d *BinaryDecoder) (engine.LogID, error) {
	term, err := d.ReadUint64()
	if err != nil {
		return engine.LogID{}, err
	}
	node, err := d.ReadUint64()
	if err != nil {
		return engine.LogID{}, err
	}
	index, err := d.ReadUint64()
	if err != nil {
		return engine.LogID{}, err
	}
	return engine.LogID{
		LeaderID: engine.LeaderID{Term: term, NodeID: engine.NodeID(node)},
		Index:    index,
	}, nil
}

func writeOptLogID(e *BinaryEncoder, id engine.OptionalLogID) {
	e.WriteBool(id.Valid)
	if id.Valid {
		writeLogID(e, id.ID)
	}
}

func readOptLogID(d *BinaryDecoder) (engine.OptionalLogID, error) {
	valid, err := d.ReadBool()
	if err != nil || !valid {
		return engine.NoLogID(), err
	}
	id, err := readLogID(d)
	if err != nil {
		return engine.NoLogID(), err
	}
	return engine.SomeLogID(id), nil
}

func writeMembership(e *BinaryEncoder, m engine.Membership) {
	e.WriteUint64(uint64(len(m.Configs)))
	for _, cfg := range m.Configs {
		ids := make([]engine.NodeID, 0, len(cfg))
		for id := range cfg {
			ids = append(ids, id)
		}
		e.WriteUint64(uint64(len(ids)))
		for _, id := range ids {
			e.WriteUint64(uint64(id))
		}
	}
	e.WriteUint64(uint64(len(m.Learners)))
	for id := range m.Learners {
		e.WriteUint64(uint64(id))
	}
}

func readMembership(d *BinaryDecoder) (engine.Membership, error) {
	var m engine.Membership
	nc, err := d.ReadUint64()
	if err != nil {
		return m, err
	}
	for i := uint64(0); i < nc; i++ {
		n, err := d.ReadUint64()
		if err != nil {
			return m, err
		}
		vs := make(engine.VoterSet, n)
		for j := uint64(0); j < n; j++ {
			id, err := d.ReadUint64()
			if err != nil {
				return m, err
			}
			vs[engine.NodeID(id)] = struct{}{}
		}
		m.Configs = append(m.Configs, vs)
	}
	nl, err := d.ReadUint64()
	if err != nil {
		return m, err
	}
	m.Learners = make(map[engine.NodeID]struct{}, nl)
	for i := uint64(0); i < nl; i++ {
		id, err := d.ReadUint64()
		if err != nil {
			return m, err
		}
		m.Learners[engine.NodeID(id)] = struct{}{}
	}
	return m, nil
}

func writeEffectiveMembership(e *BinaryEncoder, em engine.EffectiveMembership) {
	writeOptLogID(e, em.LogID)
	writeMembership(e, em.Membership)
}

func readEffectiveMembership(d *BinaryDecoder) (engine.EffectiveMembership, error) {
	id, err := readOptLogID(d)
	if err != nil {
		return engine.EffectiveMembership{}, err
	}
	m, err := readMembership(d)
	if err != nil {
		return engine.EffectiveMembership{}, err
	}
	return engine.EffectiveMembership{LogID: id, Membership: m}, nil
}

// Entry kinds on the wire.
const (
	entryKindBlank      byte = 0
	entryKindData       byte = 1
	entryKindMembership byte = 2
)

// WireEntry is the transport shape of one log entry.
type WireEntry struct {
	Kind       byte
	LogID      engine.LogID
	Data       []byte
	Membership engine.Membership
}

func writeEntry(e *BinaryEncoder, ent WireEntry) {
	e.buf = append(e.buf, ent.Kind)
	writeLogID(e, ent.LogID)
	switch ent.Kind {
	case entryKindData:
		e.WriteBytes(ent.Data)
	case entryKindMembership:
		writeMembership(e, ent.Membership)
	}
}

func readEntry(d *BinaryDecoder) (WireEntry, error) {
	var ent WireEntry
	if d.off+1 > len(d.buf) {
		return ent, ErrInvalidMessage
	}
	ent.Kind = d.buf[d.off]
	d.off++

	id, err := readLogID(d)
	if err != nil {
		return ent, err
	}
	ent.LogID = id

	switch ent.Kind {
	case entryKindBlank:
	case entryKindData:
		ent.Data, err = d.ReadBytes()
	case entryKindMembership:
		ent.Membership, err = readMembership(d)
	default:
		return ent, ErrInvalidMessage
	}
	return ent, err
}

// NewBlankWireEntry, NewDataWireEntry and NewMembershipWireEntry build
// the three entry shapes replication carries.
func NewBlankWireEntry(id engine.LogID) WireEntry {
	return WireEntry{Kind: entryKindBlank, LogID: id}
}

func NewDataWireEntry(id engine.LogID, data []byte) WireEntry {
	return WireEntry{Kind: entryKindData, LogID: id, Data: data}
}

func NewMembershipWireEntry(id engine.LogID, m engine.Membership) WireEntry {
	return WireEntry{Kind: entryKindMembership, LogID: id, Membership: m}
}

// IsBlank/IsData/IsMembership report the entry's wire kind.
func (w WireEntry) IsBlank() bool      { return w.Kind == entryKindBlank }
func (w WireEntry) IsData() bool       { return w.Kind == entryKindData }
func (w WireEntry) IsMembership() bool { return w.Kind == entryKindMembership }

// Encode serializes one entry standalone (the log store persists
// entries in exactly the shape replication ships them).
func (w WireEntry) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	writeEntry(e, w)
	return e.Bytes(), nil
}

// DecodeWireEntry reads back a standalone entry.
func DecodeWireEntry(b []byte) (WireEntry, error) {
	return readEntry(NewBinaryDecoder(b))
}

// FromEngineEntry converts an engine entry to its wire shape.
func FromEngineEntry(ent engine.Entry) WireEntry {
	if m, ok := ent.Membership(); ok {
		return NewMembershipWireEntry(ent.GetLogID(), m)
	}
	if d, ok := ent.(*engine.DataEntry); ok {
		return NewDataWireEntry(d.LogID, d.Data)
	}
	return NewBlankWireEntry(ent.GetLogID())
}

// ToEngineEntry converts a wire entry back into the engine's shape.
func (w WireEntry) ToEngineEntry() engine.Entry {
	switch w.Kind {
	case entryKindMembership:
		return &engine.MembershipEntry{LogID: w.LogID, Config: w.Membership}
	case entryKindData:
		return &engine.DataEntry{LogID: w.LogID, Data: w.Data}
	default:
		return &engine.BlankEntry{LogID: w.LogID}
	}
}

// --- RPC messages ---

// VoteRequestMessage asks a peer for its vote.
type VoteRequestMessage struct {
	Vote      engine.Vote
	LastLogID engine.OptionalLogID
}

func (m *VoteRequestMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	writeVote(e, m.Vote)
	writeOptLogID(e, m.LastLogID)
	return e.Bytes(), nil
}

func DecodeVoteRequestMessage(b []byte) (*VoteRequestMessage, error) {
	d := NewBinaryDecoder(b)
	vote, err := readVote(d)
	if err != nil {
		return nil, err
	}
	last, err := readOptLogID(d)
	if err != nil {
		return nil, err
	}
	return &VoteRequestMessage{Vote: vote, LastLogID: last}, nil
}

// VoteResponseMessage carries the responder's current vote -- not
// necessarily the one requested -- plus the grant flag and the
// responder's last log id.
type VoteResponseMessage struct {
	Vote        engine.Vote
	VoteGranted bool
	LastLogID   engine.OptionalLogID
}

func (m *VoteResponseMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	writeVote(e, m.Vote)
	e.WriteBool(m.VoteGranted)
	writeOptLogID(e, m.LastLogID)
	return e.Bytes(), nil
}

func DecodeVoteResponseMessage(b []byte) (*VoteResponseMessage, error) {
	d := NewBinaryDecoder(b)
	vote, err := readVote(d)
	if err != nil {
		return nil, err
	}
	granted, err := d.ReadBool()
	if err != nil {
		return nil, err
	}
	last, err := readOptLogID(d)
	if err != nil {
		return nil, err
	}
	return &VoteResponseMessage{Vote: vote, VoteGranted: granted, LastLogID: last}, nil
}

// AppendEntriesMessage replicates a run of entries (or none: a
// heartbeat) to one follower.
type AppendEntriesMessage struct {
	Vote            engine.Vote
	PrevLogID       engine.OptionalLogID
	Entries         []WireEntry
	LeaderCommitted engine.OptionalLogID
}

func (m *AppendEntriesMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	writeVote(e, m.Vote)
	writeOptLogID(e, m.PrevLogID)
	writeOptLogID(e, m.LeaderCommitted)
	e.WriteUint64(uint64(len(m.Entries)))
	for _, ent := range m.Entries {
		writeEntry(e, ent)
	}
	return e.Bytes(), nil
}

func DecodeAppendEntriesMessage(b []byte) (*AppendEntriesMessage, error) {
	d := NewBinaryDecoder(b)
	vote, err := readVote(d)
	if err != nil {
		return nil, err
	}
	prev, err := readOptLogID(d)
	if err != nil {
		return nil, err
	}
	committed, err := readOptLogID(d)
	if err != nil {
		return nil, err
	}
	n, err := d.ReadUint64()
	if err != nil {
		return nil, err
	}
	entries := make([]WireEntry, 0, n)
	for i := uint64(0); i < n; i++ {
		ent, err := readEntry(d)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ent)
	}
	return &AppendEntriesMessage{Vote: vote, PrevLogID: prev, Entries: entries, LeaderCommitted: committed}, nil
}

// Append-entries outcomes on the wire.
const (
	AppendResultSuccess    byte = 0
	AppendResultHigherVote byte = 1
	AppendResultConflict   byte = 2
)

// AppendEntriesResultMessage is the reply to AppendEntriesMessage.
type AppendEntriesResultMessage struct {
	Outcome    byte
	HigherVote engine.Vote
}

func (m *AppendEntriesResultMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.buf = append(e.buf, m.Outcome)
	writeVote(e, m.HigherVote)
	return e.Bytes(), nil
}

func DecodeAppendEntriesResultMessage(b []byte) (*AppendEntriesResultMessage, error) {
	d := NewBinaryDecoder(b)
	if len(d.buf) < 1 {
		return nil, ErrInvalidMessage
	}
	outcome := d.buf[0]
	d.off = 1
	vote, err := readVote(d)
	if err != nil {
		return nil, err
	}
	return &AppendEntriesResultMessage{Outcome: outcome, HigherVote: vote}, nil
}

// InstallSnapshotMessage carries one chunk of a snapshot stream. The
// checksum covers Data only; the receiver verifies each chunk before
// buffering it.
type InstallSnapshotMessage struct {
	Vote       engine.Vote
	LastLogID  engine.OptionalLogID
	Membership engine.EffectiveMembership
	SnapshotID string
	Offset     uint64
	Data       []byte
	Done       bool
	Checksum   [blake2b.Size256]byte
}

// Seal computes the chunk checksum; call after filling Data.
func (m *InstallSnapshotMessage) Seal() {
	m.Checksum = blake2b.Sum256(m.Data)
}

// VerifyChecksum reports whether Data still matches the sealed checksum.
func (m *InstallSnapshotMessage) VerifyChecksum() bool {
	return m.Checksum == blake2b.Sum256(m.Data)
}

func (m *InstallSnapshotMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	writeVote(e, m.Vote)
	writeOptLogID(e, m.LastLogID)
	writeEffectiveMembership(e, m.Membership)
	e.WriteString(m.SnapshotID)
	e.WriteUint64(m.Offset)
	e.WriteBytes(m.Data)
	e.WriteBool(m.Done)
	e.WriteBytes(m.Checksum[:])
	return e.Bytes(), nil
}

func DecodeInstallSnapshotMessage(b []byte) (*InstallSnapshotMessage, error) {
	d := NewBinaryDecoder(b)
	m := &InstallSnapshotMessage{}
	var err error
	if m.Vote, err = readVote(d); err != nil {
		return nil, err
	}
	if m.LastLogID, err = readOptLogID(d); err != nil {
		return nil, err
	}
	if m.Membership, err = readEffectiveMembership(d); err != nil {
		return nil, err
	}
	if m.SnapshotID, err = d.ReadString(); err != nil {
		return nil, err
	}
	if m.Offset, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.Data, err = d.ReadBytes(); err != nil {
		return nil, err
	}
	if m.Done, err = d.ReadBool(); err != nil {
		return nil, err
	}
	sum, err := d.ReadBytes()
	if err != nil || len(sum) != len(m.Checksum) {
		return nil, ErrInvalidMessage
	}
	copy(m.Checksum[:], sum)
	return m, nil
}

// InstallSnapshotResultMessage acknowledges a chunk with the receiver's
// current vote, letting a deposed leader notice mid-stream.
type InstallSnapshotResultMessage struct {
	Vote engine.Vote
}

func (m *InstallSnapshotResultMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	writeVote(e, m.Vote)
	return e.Bytes(), nil
}

func DecodeInstallSnapshotResultMessage(b []byte) (*InstallSnapshotResultMessage, error) {
	d := NewBinaryDecoder(b)
	vote, err := readVote(d)
	if err != nil {
		return nil, err
	}
	return &InstallSnapshotResultMessage{Vote: vote}, nil
}

// ProposeMessage is a client's request to append one command.
type ProposeMessage struct {
	Command []byte
}

func (m *ProposeMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteBytes(m.Command)
	return e.Bytes(), nil
}

func DecodeProposeMessage(b []byte) (*ProposeMessage, error) {
	d := NewBinaryDecoder(b)
	cmd, err := d.ReadBytes()
	if err != nil {
		return nil, err
	}
	return &ProposeMessage{Command: cmd}, nil
}

// ProposeResultMessage reports acceptance (with the assigned log id) or
// redirects the client toward the current leader.
type ProposeResultMessage struct {
	Accepted   bool
	LogID      engine.OptionalLogID
	LeaderHint uint64
	LeaderAddr string
}

func (m *ProposeResultMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteBool(m.Accepted)
	writeOptLogID(e, m.LogID)
	e.WriteUint64(m.LeaderHint)
	e.WriteString(m.LeaderAddr)
	return e.Bytes(), nil
}

func DecodeProposeResultMessage(b []byte) (*ProposeResultMessage, error) {
	d := NewBinaryDecoder(b)
	m := &ProposeResultMessage{}
	var err error
	if m.Accepted, err = d.ReadBool(); err != nil {
		return nil, err
	}
	if m.LogID, err = readOptLogID(d); err != nil {
		return nil, err
	}
	if m.LeaderHint, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.LeaderAddr, err = d.ReadString(); err != nil {
		return nil, err
	}
	return m, nil
}

// StatusResultMessage is the reply to a MsgStatus probe.
type StatusResultMessage struct {
	NodeID    uint64
	State     string
	Term      uint64
	LastLogID engine.OptionalLogID
	Committed engine.OptionalLogID
}

func (m *StatusResultMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteUint64(m.NodeID)
	e.WriteString(m.State)
	e.WriteUint64(m.Term)
	writeOptLogID(e, m.LastLogID)
	writeOptLogID(e, m.Committed)
	return e.Bytes(), nil
}

func DecodeStatusResultMessage(b []byte) (*StatusResultMessage, error) {
	d := NewBinaryDecoder(b)
	m := &StatusResultMessage{}
	var err error
	if m.NodeID, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.State, err = d.ReadString(); err != nil {
		return nil, err
	}
	if m.Term, err = d.ReadUint64(); err != nil {
		return nil, err
	}
	if m.LastLogID, err = readOptLogID(d); err != nil {
		return nil, err
	}
	if m.Committed, err = readOptLogID(d); err != nil {
		return nil, err
	}
	return m, nil
}

// ErrorMessage reports a failure to the requesting side.
type ErrorMessage struct {
	Code    int64
	Message string
}

func (m *ErrorMessage) Encode() ([]byte, error) {
	e := NewBinaryEncoder()
	e.WriteInt64(m.Code)
	e.WriteString(m.Message)
	return e.Bytes(), nil
}

func DecodeErrorMessage(b []byte) (*ErrorMessage, error) {
	d := NewBinaryDecoder(b)
	code, err := d.ReadInt64()
	if err != nil {
		return nil, err
	}
	msg, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	return &ErrorMessage{Code: code, Message: msg}, nil
}
