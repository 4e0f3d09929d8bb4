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
Package config loads and validates the runtime's configuration: the
timer, batching and snapshot-policy knobs that sit around the engine
(internal/engine.Config itself only needs node id and payload limits; the
rest lives here). Configuration is read from a small TOML-like file,
overridden by environment variables, and held behind a Manager that
supports hot reload.
*/
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Environment variable names, in precedence order above the config file.
const (
	EnvClusterName         = "RAFT_CLUSTER_NAME"
	EnvNodeID              = "RAFT_NODE_ID"
	EnvListenAddr          = "RAFT_LISTEN_ADDR"
	EnvElectionTimeoutMin  = "RAFT_ELECTION_TIMEOUT_MIN"
	EnvElectionTimeoutMax  = "RAFT_ELECTION_TIMEOUT_MAX"
	EnvHeartbeatInterval   = "RAFT_HEARTBEAT_INTERVAL"
	EnvLogLevel            = "RAFT_LOG_LEVEL"
	EnvLogJSON             = "RAFT_LOG_JSON"
)

// Config holds every tunable the runtime (not the pure engine) consults:
// timers, batching limits, and the snapshot/purge policy. Field names and
// units follow the enumerated configuration surface the engine's command
// recipients are built against.
type Config struct {
	ClusterName string
	NodeID      uint64
	ListenAddr  string

	// Timers, all in milliseconds.
	ElectionTimeoutMin     int
	ElectionTimeoutMax     int
	HeartbeatInterval      int
	InstallSnapshotTimeout int
	SendSnapshotTimeout    int // 0 => use InstallSnapshotTimeout

	MaxPayloadEntries        int
	ReplicationLagThreshold  uint64

	// SnapshotPolicy is written as "since_last:<n>": build a new snapshot
	// once n entries have been applied since the last one.
	SnapshotPolicy string

	// SnapshotMaxChunkSize is parsed from an SI/IEC-suffixed string (e.g.
	// "4MiB", "512KB") into bytes.
	SnapshotMaxChunkSize int64

	MaxInSnapshotLogToKeep uint64
	PurgeBatchSize         uint64

	EnableTick      bool
	EnableHeartbeat bool
	EnableElect     bool

	LogLevel string
	LogJSON  bool

	// ConfigFile records the path this config was loaded from, if any, so
	// Manager.Reload knows what to re-read.
	ConfigFile string
}

// DefaultConfig returns the out-of-the-box configuration for a single
// development node.
func DefaultConfig() *Config {
	return &Config{
		ClusterName:             "default",
		NodeID:                  1,
		ListenAddr:              "127.0.0.1:7420",
		ElectionTimeoutMin:      150,
		ElectionTimeoutMax:      300,
		HeartbeatInterval:       50,
		InstallSnapshotTimeout:  10_000,
		SendSnapshotTimeout:     0,
		MaxPayloadEntries:       256,
		ReplicationLagThreshold: 1000,
		SnapshotPolicy:          "since_last:5000",
		SnapshotMaxChunkSize:    4 * 1024 * 1024,
		MaxInSnapshotLogToKeep:  1000,
		PurgeBatchSize:          1,
		EnableTick:              true,
		EnableHeartbeat:         true,
		EnableElect:             true,
		LogLevel:                "info",
		LogJSON:                 false,
	}
}

// Validate checks the cross-field constraints the engine's runtime
// depends on: an election window that actually brackets the heartbeat
// interval, positive batch sizes, and a well-formed snapshot policy.
func (c *Config) Validate() error {
	if c.ClusterName == "" {
		return fmt.Errorf("cluster_name must not be empty")
	}
	if c.ElectionTimeoutMin <= 0 || c.ElectionTimeoutMax <= 0 {
		return fmt.Errorf("election_timeout_min/max must be positive")
	}
	if c.ElectionTimeoutMin >= c.ElectionTimeoutMax {
		return fmt.Errorf("election_timeout_min (%d) must be < election_timeout_max (%d)", c.ElectionTimeoutMin, c.ElectionTimeoutMax)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}
	if c.ElectionTimeoutMin <= c.HeartbeatInterval {
		return fmt.Errorf("election_timeout_min (%d) must be > heartbeat_interval (%d)", c.ElectionTimeoutMin, c.HeartbeatInterval)
	}
	if c.MaxPayloadEntries <= 0 {
		return fmt.Errorf("max_payload_entries must be > 0")
	}
	if _, err := parseSnapshotPolicy(c.SnapshotPolicy); err != nil {
		return err
	}
	if c.SnapshotMaxChunkSize <= 0 {
		return fmt.Errorf("snapshot_max_chunk_size must be > 0")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

// SnapshotThreshold returns the snapshot policy's entry count: build a
// new snapshot once this many entries have been applied since the last
// one. Zero disables policy-driven builds (Validate rejects a malformed
// policy, so this only returns zero for an explicit "since_last:0").
func (c *Config) SnapshotThreshold() uint64 {
	n, err := parseSnapshotPolicy(c.SnapshotPolicy)
	if err != nil {
		return 0
	}
	return n
}

// SendSnapshotTimeoutMs resolves the chunk-send timeout: the configured
// value, or install_snapshot_timeout when unset.
func (c *Config) SendSnapshotTimeoutMs() int {
	if c.SendSnapshotTimeout > 0 {
		return c.SendSnapshotTimeout
	}
	return c.InstallSnapshotTimeout
}

// parseSnapshotPolicy parses "since_last:<n>" into n.
func parseSnapshotPolicy(s string) (uint64, error) {
	const prefix = "since_last:"
	if !strings.HasPrefix(s, prefix) {
		return 0, fmt.Errorf("invalid snapshot_policy %q, want %sN", s, prefix)
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(s, prefix), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid snapshot_policy %q: %w", s, err)
	}
	return n, nil
}

// ParseByteSize parses an SI/IEC-suffixed byte count such as "4MiB",
// "512KB", or a bare number of bytes.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	units := []struct {
		suffix string
		mult   int64
	}{
		{"KiB", 1024}, {"MiB", 1024 * 1024}, {"GiB", 1024 * 1024 * 1024},
		{"KB", 1000}, {"MB", 1000 * 1000}, {"GB", 1000 * 1000 * 1000},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			numPart := strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			n, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
			}
			return int64(n * float64(u.mult)), nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return n, nil
}

// ToTOML renders the config back into the key = value format LoadFromFile
// accepts.
func (c *Config) ToTOML() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cluster_name = %q\n", c.ClusterName)
	fmt.Fprintf(&b, "node_id = %d\n", c.NodeID)
	fmt.Fprintf(&b, "listen_addr = %q\n", c.ListenAddr)
	fmt.Fprintf(&b, "election_timeout_min = %d\n", c.ElectionTimeoutMin)
	fmt.Fprintf(&b, "election_timeout_max = %d\n", c.ElectionTimeoutMax)
	fmt.Fprintf(&b, "heartbeat_interval = %d\n", c.HeartbeatInterval)
	fmt.Fprintf(&b, "install_snapshot_timeout = %d\n", c.InstallSnapshotTimeout)
	fmt.Fprintf(&b, "send_snapshot_timeout = %d\n", c.SendSnapshotTimeout)
	fmt.Fprintf(&b, "max_payload_entries = %d\n", c.MaxPayloadEntries)
	fmt.Fprintf(&b, "replication_lag_threshold = %d\n", c.ReplicationLagThreshold)
	fmt.Fprintf(&b, "snapshot_policy = %q\n", c.SnapshotPolicy)
	fmt.Fprintf(&b, "snapshot_max_chunk_size = %d\n", c.SnapshotMaxChunkSize)
	fmt.Fprintf(&b, "max_in_snapshot_log_to_keep = %d\n", c.MaxInSnapshotLogToKeep)
	fmt.Fprintf(&b, "purge_batch_size = %d\n", c.PurgeBatchSize)
	fmt.Fprintf(&b, "enable_tick = %v\n", c.EnableTick)
	fmt.Fprintf(&b, "enable_heartbeat = %v\n", c.EnableHeartbeat)
	fmt.Fprintf(&b, "enable_elect = %v\n", c.EnableElect)
	fmt.Fprintf(&b, "log_level = %q\n", c.LogLevel)
	fmt.Fprintf(&b, "log_json = %v\n", c.LogJSON)
	return b.String()
}

// SaveToFile writes the config as TOML to path, creating parent
// directories as needed.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, []byte(c.ToTOML()), 0o644)
}

// String renders a short human summary, used in startup logs.
func (c *Config) String() string {
	return fmt.Sprintf("Config{ClusterName: %s, NodeID: %d, ListenAddr: %s, ElectionTimeout: [%d,%d]ms, Heartbeat: %dms}",
		c.ClusterName, c.NodeID, c.ListenAddr, c.ElectionTimeoutMin, c.ElectionTimeoutMax, c.HeartbeatInterval)
}

func (c *Config) applyKV(key, value string) error {
	switch key {
	case "cluster_name":
		c.ClusterName = unquote(value)
	case "node_id":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("node_id: %w", err)
		}
		c.NodeID = n
	case "listen_addr":
		c.ListenAddr = unquote(value)
	case "election_timeout_min":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("election_timeout_min: %w", err)
		}
		c.ElectionTimeoutMin = n
	case "election_timeout_max":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("election_timeout_max: %w", err)
		}
		c.ElectionTimeoutMax = n
	case "heartbeat_interval":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("heartbeat_interval: %w", err)
		}
		c.HeartbeatInterval = n
	case "install_snapshot_timeout":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("install_snapshot_timeout: %w", err)
		}
		c.InstallSnapshotTimeout = n
	case "send_snapshot_timeout":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("send_snapshot_timeout: %w", err)
		}
		c.SendSnapshotTimeout = n
	case "max_payload_entries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("max_payload_entries: %w", err)
		}
		c.MaxPayloadEntries = n
	case "replication_lag_threshold":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("replication_lag_threshold: %w", err)
		}
		c.ReplicationLagThreshold = n
	case "snapshot_policy":
		c.SnapshotPolicy = unquote(value)
	case "snapshot_max_chunk_size":
		n, err := ParseByteSize(unquote(value))
		if err != nil {
			return fmt.Errorf("snapshot_max_chunk_size: %w", err)
		}
		c.SnapshotMaxChunkSize = n
	case "max_in_snapshot_log_to_keep":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("max_in_snapshot_log_to_keep: %w", err)
		}
		c.MaxInSnapshotLogToKeep = n
	case "purge_batch_size":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("purge_batch_size: %w", err)
		}
		c.PurgeBatchSize = n
	case "enable_tick":
		c.EnableTick = value == "true"
	case "enable_heartbeat":
		c.EnableHeartbeat = value == "true"
	case "enable_elect":
		c.EnableElect = value == "true"
	case "log_level":
		c.LogLevel = unquote(value)
	case "log_json":
		c.LogJSON = value == "true"
	}
	return nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// Manager owns the active Config, the file it was loaded from (if any),
// and a set of callbacks to run on Reload.
type Manager struct {
	mu       sync.RWMutex
	cfg      *Config
	path     string
	onReload []func(*Config)
}

// NewManager returns a Manager holding DefaultConfig.
func NewManager() *Manager {
	return &Manager{cfg: DefaultConfig()}
}

// Get returns the currently active configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// LoadFromFile parses a simple `key = value` file (comments start with
// #, blank lines ignored) into the current config and remembers path for
// Reload.
func (m *Manager) LoadFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := *m.cfg
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if err := cfg.applyKV(key, value); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	cfg.ConfigFile = path
	m.cfg = &cfg
	m.path = path
	return nil
}

// LoadFromEnv overrides the current config with any of the Env* variables
// that are set. Environment values always win over a previously loaded
// file.
func (m *Manager) LoadFromEnv() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := *m.cfg
	env := func(name string) (string, bool) {
		v, ok := os.LookupEnv(name)
		return v, ok && v != ""
	}
	if v, ok := env(EnvClusterName); ok {
		cfg.ClusterName = v
	}
	if v, ok := env(EnvNodeID); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.NodeID = n
		}
	}
	if v, ok := env(EnvListenAddr); ok {
		cfg.ListenAddr = v
	}
	if v, ok := env(EnvElectionTimeoutMin); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ElectionTimeoutMin = n
		}
	}
	if v, ok := env(EnvElectionTimeoutMax); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ElectionTimeoutMax = n
		}
	}
	if v, ok := env(EnvHeartbeatInterval); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HeartbeatInterval = n
		}
	}
	if v, ok := env(EnvLogLevel); ok {
		cfg.LogLevel = v
	}
	if v, ok := env(EnvLogJSON); ok {
		cfg.LogJSON = v == "true"
	}
	m.cfg = &cfg
}

// OnReload registers a callback invoked every time Reload successfully
// re-reads the config file.
func (m *Manager) OnReload(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReload = append(m.onReload, fn)
}

// Reload re-reads the file this Manager was last loaded from (if any)
// and re-applies any environment overrides, then invokes every callback
// registered with OnReload.
func (m *Manager) Reload() error {
	m.mu.RLock()
	path := m.path
	m.mu.RUnlock()

	if path != "" {
		if err := m.LoadFromFile(path); err != nil {
			return err
		}
	}
	m.LoadFromEnv()

	m.mu.RLock()
	cfg := m.cfg
	callbacks := append([]func(*Config){}, m.onReload...)
	m.mu.RUnlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
	return nil
}

var (
	globalOnce sync.Once
	globalMgr  *Manager
)

// Global returns the process-wide Manager singleton, created on first
// use with DefaultConfig.
func Global() *Manager {
	globalOnce.Do(func() {
		globalMgr = NewManager()
	})
	return globalMgr
}
