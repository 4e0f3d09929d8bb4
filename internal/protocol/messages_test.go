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
	"bytes"
	"testing"

	"flyraft/internal/engine"
)

func wireLogID(term uint64, node engine.NodeID, index uint64) engine.LogID {
	return engine.LogID{LeaderID: engine.LeaderID{Term: term, NodeID: node}, Index: index}
}

func TestVoteRequestMessageEncodeDecode(t *testing.T) {
	original := &VoteRequestMessage{
		Vote:      engine.Vote{Term: 3, NodeID: 1},
		LastLogID: engine.SomeLogID(wireLogID(2, 1, 42)),
	}

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := DecodeVoteRequestMessage(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.Vote != original.Vote {
		t.Errorf("Vote mismatch: %s vs %s", decoded.Vote, original.Vote)
	}
	if !decoded.LastLogID.Equal(original.LastLogID) {
		t.Errorf("LastLogID mismatch: %s vs %s", decoded.LastLogID, original.LastLogID)
	}
}

func TestVoteResponseMessageEncodeDecode(t *testing.T) {
	original := &VoteResponseMessage{
		Vote:        engine.Vote{Term: 3, NodeID: 2, Committed: true},
		VoteGranted: true,
		LastLogID:   engine.NoLogID(),
	}

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := DecodeVoteResponseMessage(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.Vote != original.Vote || decoded.VoteGranted != original.VoteGranted {
		t.Errorf("mismatch: %+v", decoded)
	}
	if decoded.LastLogID.Valid {
		t.Errorf("absent LastLogID decoded as present")
	}
}

func TestAppendEntriesMessageEncodeDecode(t *testing.T) {
	original := &AppendEntriesMessage{
		Vote:      engine.Vote{Term: 2, NodeID: 1, Committed: true},
		PrevLogID: engine.SomeLogID(wireLogID(1, 1, 9)),
		Entries: []WireEntry{
			NewBlankWireEntry(wireLogID(2, 1, 10)),
			NewDataWireEntry(wireLogID(2, 1, 11), []byte("set x=1")),
			NewMembershipWireEntry(wireLogID(2, 1, 12),
				engine.NewMembership(engine.NewVoterSet(1, 2, 3), 4)),
		},
		LeaderCommitted: engine.SomeLogID(wireLogID(2, 1, 10)),
	}

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := DecodeAppendEntriesMessage(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.Vote != original.Vote {
		t.Errorf("Vote mismatch")
	}
	if !decoded.PrevLogID.Equal(original.PrevLogID) {
		t.Errorf("PrevLogID mismatch")
	}
	if len(decoded.Entries) != 3 {
		t.Fatalf("entry count = %d, want 3", len(decoded.Entries))
	}
	if !decoded.Entries[0].IsBlank() {
		t.Errorf("entry 0 kind = %d, want blank", decoded.Entries[0].Kind)
	}
	if !decoded.Entries[1].IsData() || !bytes.Equal(decoded.Entries[1].Data, []byte("set x=1")) {
		t.Errorf("entry 1 = %+v", decoded.Entries[1])
	}
	mem := decoded.Entries[2]
	if !mem.IsMembership() || !mem.Membership.IsVoter(3) || !mem.Membership.IsLearner(4) {
		t.Errorf("entry 2 membership = %+v", mem.Membership)
	}
	if !decoded.Entries[2].LogID.Equal(wireLogID(2, 1, 12)) {
		t.Errorf("entry 2 log id = %s", decoded.Entries[2].LogID)
	}
}

func TestAppendEntriesResultMessageEncodeDecode(t *testing.T) {
	original := &AppendEntriesResultMessage{
		Outcome:    AppendResultHigherVote,
		HigherVote: engine.Vote{Term: 7, NodeID: 3, Committed: true},
	}

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := DecodeAppendEntriesResultMessage(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.Outcome != original.Outcome || decoded.HigherVote != original.HigherVote {
		t.Errorf("mismatch: %+v", decoded)
	}
}

func TestInstallSnapshotMessageEncodeDecode(t *testing.T) {
	original := &InstallSnapshotMessage{
		Vote:      engine.Vote{Term: 4, NodeID: 1, Committed: true},
		LastLogID: engine.SomeLogID(wireLogID(4, 1, 100)),
		Membership: engine.EffectiveMembership{
			LogID:      engine.SomeLogID(wireLogID(3, 1, 80)),
			Membership: engine.NewMembership(engine.NewVoterSet(1, 2)),
		},
		SnapshotID: "snapshot-20260801-001",
		Offset:     65536,
		Data:       []byte("chunk of state machine bytes"),
		Done:       false,
	}
	original.Seal()

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := DecodeInstallSnapshotMessage(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.SnapshotID != original.SnapshotID || decoded.Offset != original.Offset {
		t.Errorf("meta mismatch: %+v", decoded)
	}
	if !bytes.Equal(decoded.Data, original.Data) {
		t.Errorf("data mismatch")
	}
	if !decoded.VerifyChecksum() {
		t.Errorf("checksum did not survive the round trip")
	}

	// A corrupted chunk must fail verification.
	decoded.Data[0] ^= 0xFF
	if decoded.VerifyChecksum() {
		t.Errorf("corrupted chunk passed checksum verification")
	}
}

func TestProposeMessagesEncodeDecode(t *testing.T) {
	req := &ProposeMessage{Command: []byte(`{"op":"put","key":"k1"}`)}
	encoded, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decodedReq, err := DecodeProposeMessage(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decodedReq.Command, req.Command) {
		t.Errorf("command mismatch")
	}

	resp := &ProposeResultMessage{
		Accepted:   false,
		LeaderHint: 3,
		LeaderAddr: "10.0.0.3:9998",
	}
	encoded, err = resp.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decodedResp, err := DecodeProposeResultMessage(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decodedResp.Accepted || decodedResp.LeaderHint != 3 || decodedResp.LeaderAddr != "10.0.0.3:9998" {
		t.Errorf("mismatch: %+v", decodedResp)
	}
}

func TestErrorMessageEncodeDecode(t *testing.T) {
	original := &ErrorMessage{Code: 50301, Message: "node is not the leader"}

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := DecodeErrorMessage(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.Code != original.Code {
		t.Errorf("Code mismatch: expected %d, got %d", original.Code, decoded.Code)
	}
	if decoded.Message != original.Message {
		t.Errorf("Message mismatch")
	}
}

func TestBinaryEncoderDecoder(t *testing.T) {
	encoder := NewBinaryEncoder()

	encoder.WriteString("hello")
	encoder.WriteInt64(12345)
	encoder.WriteFloat64(3.14159)
	encoder.WriteBool(true)
	encoder.WriteBytes([]byte{1, 2, 3})

	decoder := NewBinaryDecoder(encoder.Bytes())

	str, err := decoder.ReadString()
	if err != nil || str != "hello" {
		t.Errorf("String mismatch: %v, %s", err, str)
	}

	i64, err := decoder.ReadInt64()
	if err != nil || i64 != 12345 {
		t.Errorf("Int64 mismatch: %v, %d", err, i64)
	}

	f64, err := decoder.ReadFloat64()
	if err != nil || f64 != 3.14159 {
		t.Errorf("Float64 mismatch: %v, %f", err, f64)
	}

	b, err := decoder.ReadBool()
	if err != nil || !b {
		t.Errorf("Bool mismatch: %v, %v", err, b)
	}

	bs, err := decoder.ReadBytes()
	if err != nil || len(bs) != 3 {
		t.Errorf("Bytes mismatch: %v, %v", err, bs)
	}
}

func TestDecoderRejectsTruncatedPayload(t *testing.T) {
	original := &VoteRequestMessage{
		Vote:      engine.Vote{Term: 1, NodeID: 1},
		LastLogID: engine.SomeLogID(wireLogID(1, 1, 1)),
	}
	encoded, _ := original.Encode()

	for cut := 1; cut < len(encoded); cut += 7 {
		if _, err := DecodeVoteRequestMessage(encoded[:cut]); err == nil {
			t.Errorf("truncation at %d decoded without error", cut)
		}
	}
}
