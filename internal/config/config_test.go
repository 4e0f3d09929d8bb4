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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ClusterName != "default" {
		t.Errorf("expected default cluster_name 'default', got %q", cfg.ClusterName)
	}
	if cfg.ElectionTimeoutMin != 150 || cfg.ElectionTimeoutMax != 300 {
		t.Errorf("unexpected default election timeout: [%d,%d]", cfg.ElectionTimeoutMin, cfg.ElectionTimeoutMax)
	}
	if cfg.HeartbeatInterval != 50 {
		t.Errorf("expected default heartbeat_interval 50, got %d", cfg.HeartbeatInterval)
	}
	if cfg.MaxPayloadEntries != 256 {
		t.Errorf("expected default max_payload_entries 256, got %d", cfg.MaxPayloadEntries)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log_level 'info', got %q", cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got error: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid default", func(c *Config) {}, false},
		{"empty cluster name", func(c *Config) { c.ClusterName = "" }, true},
		{"zero election min", func(c *Config) { c.ElectionTimeoutMin = 0 }, true},
		{"min >= max", func(c *Config) { c.ElectionTimeoutMin = 300; c.ElectionTimeoutMax = 300 }, true},
		{"min below heartbeat", func(c *Config) { c.ElectionTimeoutMin = 10 }, true},
		{"zero max payload entries", func(c *Config) { c.MaxPayloadEntries = 0 }, true},
		{"bad snapshot policy", func(c *Config) { c.SnapshotPolicy = "bogus" }, true},
		{"zero chunk size", func(c *Config) { c.SnapshotMaxChunkSize = 0 }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1024", 1024},
		{"4KiB", 4 * 1024},
		{"2MiB", 2 * 1024 * 1024},
		{"1GiB", 1024 * 1024 * 1024},
		{"5KB", 5000},
		{"3MB", 3_000_000},
	}
	for _, tt := range tests {
		got, err := ParseByteSize(tt.in)
		if err != nil {
			t.Errorf("ParseByteSize(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "raft_config_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `# test configuration
cluster_name = "test-cluster"
node_id = 3
listen_addr = "10.0.0.3:7420"
election_timeout_min = 200
election_timeout_max = 400
heartbeat_interval = 75
max_payload_entries = 512
snapshot_policy = "since_last:10000"
log_level = "debug"
log_json = true
`
	configPath := filepath.Join(tmpDir, "raft.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.ClusterName != "test-cluster" {
		t.Errorf("expected cluster_name 'test-cluster', got %q", cfg.ClusterName)
	}
	if cfg.NodeID != 3 {
		t.Errorf("expected node_id 3, got %d", cfg.NodeID)
	}
	if cfg.ElectionTimeoutMin != 200 || cfg.ElectionTimeoutMax != 400 {
		t.Errorf("unexpected election timeout: [%d,%d]", cfg.ElectionTimeoutMin, cfg.ElectionTimeoutMax)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log_level 'debug', got %q", cfg.LogLevel)
	}
	if !cfg.LogJSON {
		t.Error("expected log_json true")
	}
	if cfg.ConfigFile != configPath {
		t.Errorf("expected ConfigFile %q, got %q", configPath, cfg.ConfigFile)
	}
}

func TestLoadFromEnv(t *testing.T) {
	origNodeID := os.Getenv(EnvNodeID)
	origLevel := os.Getenv(EnvLogLevel)
	defer func() {
		os.Setenv(EnvNodeID, origNodeID)
		os.Setenv(EnvLogLevel, origLevel)
	}()

	os.Setenv(EnvNodeID, "9")
	os.Setenv(EnvLogLevel, "warn")

	mgr := NewManager()
	mgr.LoadFromEnv()

	cfg := mgr.Get()
	if cfg.NodeID != 9 {
		t.Errorf("expected node_id 9 from env, got %d", cfg.NodeID)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected log_level 'warn' from env, got %q", cfg.LogLevel)
	}
}

func TestConfigPrecedence(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "raft_config_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `node_id = 1
cluster_name = "file-cluster"
`
	configPath := filepath.Join(tmpDir, "raft.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	origNodeID := os.Getenv(EnvNodeID)
	defer os.Setenv(EnvNodeID, origNodeID)
	os.Setenv(EnvNodeID, "42")

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	mgr.LoadFromEnv()

	if got := mgr.Get().NodeID; got != 42 {
		t.Errorf("expected node_id 42 (env override), got %d", got)
	}
}

func TestToTOML(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ClusterName = "prod"
	cfg.NodeID = 7

	toml := cfg.ToTOML()
	if !contains(toml, `cluster_name = "prod"`) {
		t.Error("TOML output missing cluster_name")
	}
	if !contains(toml, "node_id = 7") {
		t.Error("TOML output missing node_id")
	}
	if !contains(toml, "election_timeout_min = 150") {
		t.Error("TOML output missing election_timeout_min")
	}
}

func TestSaveToFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "raft_config_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := DefaultConfig()
	cfg.NodeID = 5
	cfg.ClusterName = "saved-cluster"

	configPath := filepath.Join(tmpDir, "subdir", "raft.conf")
	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	loaded := mgr.Get()
	if loaded.NodeID != 5 {
		t.Errorf("expected node_id 5, got %d", loaded.NodeID)
	}
	if loaded.ClusterName != "saved-cluster" {
		t.Errorf("expected cluster_name 'saved-cluster', got %q", loaded.ClusterName)
	}
}

func TestReload(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "raft_config_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `node_id = 1
cluster_name = "reload-cluster"
log_level = "info"
`
	configPath := filepath.Join(tmpDir, "raft.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if got := mgr.Get().LogLevel; got != "info" {
		t.Errorf("expected initial log_level 'info', got %q", got)
	}

	reloadCalled := false
	mgr.OnReload(func(c *Config) { reloadCalled = true })

	newContent := `node_id = 1
cluster_name = "reload-cluster"
log_level = "debug"
`
	if err := os.WriteFile(configPath, []byte(newContent), 0o644); err != nil {
		t.Fatalf("failed to update config file: %v", err)
	}
	if err := mgr.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if got := mgr.Get().LogLevel; got != "debug" {
		t.Errorf("expected reloaded log_level 'debug', got %q", got)
	}
	if !reloadCalled {
		t.Error("reload callback was not called")
	}
}

func TestGlobalManager(t *testing.T) {
	mgr := Global()
	if mgr == nil {
		t.Fatal("Global() returned nil")
	}
	if mgr2 := Global(); mgr != mgr2 {
		t.Error("Global() returned different instances")
	}
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	str := cfg.String()
	if !contains(str, "ClusterName:") {
		t.Error("String() missing ClusterName")
	}
	if !contains(str, "default") {
		t.Error("String() missing cluster name value")
	}
}
