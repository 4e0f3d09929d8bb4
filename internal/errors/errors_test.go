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

package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestFlyRaftErrorBasic(t *testing.T) {
	err := NewConsensusError("vote rejected")

	if err.Code != ErrCodeConsensus {
		t.Errorf("Expected code %d, got %d", ErrCodeConsensus, err.Code)
	}
	if err.Category != CategoryConsensus {
		t.Errorf("Expected category %s, got %s", CategoryConsensus, err.Category)
	}
	if !strings.Contains(err.Error(), "vote rejected") {
		t.Errorf("Expected error message to contain 'vote rejected', got: %s", err.Error())
	}
}

func TestFlyRaftErrorWithDetail(t *testing.T) {
	err := NewStorageError("append failed").WithDetail("log segment missing")

	if err.Detail != "log segment missing" {
		t.Errorf("Expected detail 'log segment missing', got: %s", err.Detail)
	}
	if !strings.Contains(err.Error(), "log segment missing") {
		t.Errorf("Expected error to contain detail, got: %s", err.Error())
	}
}

func TestFlyRaftErrorWithHint(t *testing.T) {
	err := NoQuorum("2 of 5 voters reachable")

	userMsg := err.UserMessage()
	if !strings.Contains(userMsg, "HINT:") {
		t.Errorf("Expected user message to contain HINT, got: %s", userMsg)
	}
	if !strings.Contains(userMsg, "peer connectivity") {
		t.Errorf("Expected hint in user message, got: %s", userMsg)
	}
}

func TestFlyRaftErrorWithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewStorageError("write failed").WithCause(cause)

	if err.Unwrap() != cause {
		t.Error("Expected Unwrap to return the cause")
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *FlyRaftError
		code     ErrorCode
		category Category
	}{
		{"NotLeader", NotLeader("10.0.0.2:9998"), ErrCodeNotLeader, CategoryConsensus},
		{"NoQuorum", NoQuorum("partition"), ErrCodeNoQuorum, CategoryConsensus},
		{"PeerUnreachable", PeerUnreachable("n2", nil), ErrCodePeerUnreachable, CategoryReplication},
		{"FollowerLagging", FollowerLagging("n3"), ErrCodeFollowerLagging, CategoryReplication},
		{"ConnectionTimeout", ConnectionTimeout("n4"), ErrCodeTimeout, CategoryConnection},
		{"WALCorrupted", WALCorrupted("bad record"), ErrCodeWALCorrupted, CategoryStorage},
		{"SnapshotChecksum", SnapshotChecksumMismatch("snap-1", 4096), ErrCodeSnapshotChecksum, CategorySnapshot},
		{"ConfigParse", ConfigParse("heartbeat_interval", "soon", nil), ErrCodeConfigParse, CategoryConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Expected code %d, got %d", tt.code, tt.err.Code)
			}
			if tt.err.Category != tt.category {
				t.Errorf("Expected category %s, got %s", tt.category, tt.err.Category)
			}
		})
	}
}

func TestErrorCategoryChecks(t *testing.T) {
	consensusErr := NotLeader("")
	storageErr := NewStorageError("test")

	if !IsCategory(consensusErr, CategoryConsensus) {
		t.Error("Expected IsCategory to match consensus error")
	}
	if IsCategory(consensusErr, CategoryStorage) {
		t.Error("Expected IsCategory to reject wrong category")
	}
	if !IsCategory(storageErr, CategoryStorage) {
		t.Error("Expected IsCategory to match storage error")
	}
	if IsCategory(errors.New("plain"), CategoryStorage) {
		t.Error("Expected IsCategory to reject foreign errors")
	}
}

func TestCodeOf(t *testing.T) {
	err := NotLeader("10.0.0.2:9998")
	if CodeOf(err) != ErrCodeNotLeader {
		t.Errorf("Expected code %d, got %d", ErrCodeNotLeader, CodeOf(err))
	}

	regularErr := errors.New("regular error")
	if CodeOf(regularErr) != 0 {
		t.Errorf("Expected code 0 for regular error, got %d", CodeOf(regularErr))
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"not leader is retryable", NotLeader(""), true},
		{"peer unreachable is retryable", PeerUnreachable("n2", nil), true},
		{"timeout is retryable", ConnectionTimeout("n2"), true},
		{"wal corruption is not", WALCorrupted("x"), false},
		{"validation is not", InvalidValue("field", "bad"), false},
		{"foreign error is not", errors.New("plain"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatError(t *testing.T) {
	flyErr := NewConsensusError("test error")
	formatted := FormatError(flyErr)
	if !strings.HasPrefix(formatted, "ERROR:") {
		t.Errorf("Expected formatted error to start with 'ERROR:', got: %s", formatted)
	}

	regularErr := errors.New("regular error")
	formatted = FormatError(regularErr)
	if !strings.Contains(formatted, "regular error") {
		t.Errorf("Expected formatted error to contain message, got: %s", formatted)
	}
}

func TestWireCodeMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want WireCode
	}{
		{"nil is ok", nil, WireOK},
		{"not leader", NotLeader(""), WireNotLeader},
		{"wal corruption", WALCorrupted("x"), WireWALCorrupted},
		{"validation", InvalidValue("f", "r"), WireInvalidProposal},
		{"foreign", errors.New("x"), WireInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToWireCode(tt.err); got != tt.want {
				t.Errorf("ToWireCode = %d, want %d", got, tt.want)
			}
		})
	}

	if !WireNotLeader.RetryElsewhere() {
		t.Error("WireNotLeader must be class 2")
	}
	if !WireStorageFailure.IsServerError() {
		t.Error("WireStorageFailure must be class 5")
	}
}
