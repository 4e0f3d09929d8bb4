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

package main

import (
	"testing"
)

// TestParseHosts tests the parseHosts function
func TestParseHosts(t *testing.T) {
	tests := []struct {
		name     string
		hostStr  string
		portStr  string
		expected []string
	}{
		{
			name:     "single host without port",
			hostStr:  "localhost",
			portStr:  "9998",
			expected: []string{"localhost:9998"},
		},
		{
			name:     "single host with port",
			hostStr:  "localhost:9999",
			portStr:  "9998",
			expected: []string{"localhost:9999"},
		},
		{
			name:     "multiple hosts without ports",
			hostStr:  "node1,node2,node3",
			portStr:  "9998",
			expected: []string{"node1:9998", "node2:9998", "node3:9998"},
		},
		{
			name:     "multiple hosts with mixed ports",
			hostStr:  "node1:9998,node2,node3:9999",
			portStr:  "9998",
			expected: []string{"node1:9998", "node2:9998", "node3:9999"},
		},
		{
			name:     "hosts with spaces",
			hostStr:  " node1 , node2 , node3 ",
			portStr:  "9998",
			expected: []string{"node1:9998", "node2:9998", "node3:9998"},
		},
		{
			name:     "empty string",
			hostStr:  "",
			portStr:  "9998",
			expected: []string{},
		},
		{
			name:     "only commas",
			hostStr:  ",,",
			portStr:  "9998",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseHosts(tt.hostStr, tt.portStr)
			if len(result) != len(tt.expected) {
				t.Errorf("parseHosts(%q, %q) = %v, want %v", tt.hostStr, tt.portStr, result, tt.expected)
				return
			}
			for i, host := range result {
				if host != tt.expected[i] {
					t.Errorf("parseHosts(%q, %q)[%d] = %q, want %q", tt.hostStr, tt.portStr, i, host, tt.expected[i])
				}
			}
		})
	}
}

// TestIsConnectionError tests the isConnectionError function
func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		errMsg   string
		expected bool
	}{
		{"connection refused", "dial tcp: connection refused", true},
		{"connection reset", "read: connection reset by peer", true},
		{"broken pipe", "write: broken pipe", true},
		{"EOF error", "unexpected EOF", true},
		{"timeout", "i/o timeout", true},
		{"rejected proposal", "REJECTED: invalid proposal", false},
		{"not leader", "NOT_LEADER: node is not the leader", false},
		{"nil error message", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.errMsg != "" {
				err = &testError{msg: tt.errMsg}
			}
			result := isConnectionError(err)
			if result != tt.expected {
				t.Errorf("isConnectionError(%q) = %v, want %v", tt.errMsg, result, tt.expected)
			}
		})
	}
}

// testError is a simple error type for testing
type testError struct {
	msg string
}

func (e *testError) Error() string {
	return e.msg
}

// TestFormatFileSize tests the formatFileSize function
func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		name     string
		size     int64
		expected string
	}{
		{"bytes", 500, "500 bytes"},
		{"kilobytes", 1024, "1.00 KB"},
		{"megabytes", 1024 * 1024, "1.00 MB"},
		{"gigabytes", 1024 * 1024 * 1024, "1.00 GB"},
		{"mixed KB", 2560, "2.50 KB"},
		{"mixed MB", 5 * 1024 * 1024, "5.00 MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatFileSize(tt.size)
			if result != tt.expected {
				t.Errorf("formatFileSize(%d) = %q, want %q", tt.size, result, tt.expected)
			}
		})
	}
}

// TestHAClientHosts tests HAClient host management
func TestHAClientHosts(t *testing.T) {
	hosts := []string{"node1:9998", "node2:9998", "node3:9998"}
	client := NewHAClient(hosts)

	if len(client.hosts) != 3 {
		t.Errorf("HAClient hosts count = %d, want 3", len(client.hosts))
	}

	for i, h := range hosts {
		if client.hosts[i] != h {
			t.Errorf("HAClient hosts[%d] = %q, want %q", i, client.hosts[i], h)
		}
	}
}

// TestIsLocalMode tests the isLocalMode function
func TestIsLocalMode(t *testing.T) {
	// Save original value
	originalDataDir := *dataDir
	defer func() { *dataDir = originalDataDir }()

	*dataDir = ""
	if isLocalMode() {
		t.Error("isLocalMode() = true when dataDir is empty, want false")
	}

	*dataDir = "/var/lib/flyraft"
	if !isLocalMode() {
		t.Error("isLocalMode() = false when dataDir is set, want true")
	}
}

func TestIsRemoteMode(t *testing.T) {
	// Save original value
	originalHost := *host
	defer func() { *host = originalHost }()

	*host = ""
	if isRemoteMode() {
		t.Error("isRemoteMode() = true when host is empty, want false")
	}

	*host = "localhost"
	if !isRemoteMode() {
		t.Error("isRemoteMode() = false when host is set, want true")
	}
}
