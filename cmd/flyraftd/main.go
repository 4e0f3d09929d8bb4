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
flyraftd - FlyRaft Node Daemon

Runs one consensus node: the engine-driving runtime, durable storage,
gossip membership, failure detection, and the audit trail.

Usage:
    flyraftd --config flyraft.conf
    flyraftd --node-id 1 --listen :9998 --data-dir ./data --bootstrap
    flyraftd --node-id 2 --listen :9998 --peers 1=10.0.0.1:9998
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"flyraft/internal/audit"
	"flyraft/internal/cluster"
	"flyraft/internal/config"
	"flyraft/internal/engine"
	"flyraft/internal/logging"
	"flyraft/internal/storage"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	nodeID := flag.Uint64("node-id", 0, "This node's raft id (overrides config)")
	listen := flag.String("listen", "", "Raft listen address (overrides config)")
	dataDir := flag.String("data-dir", "./data/flyraft", "Durable storage directory")
	peersFlag := flag.String("peers", "", "Comma-separated peer list: id=host:port,...")
	bootstrap := flag.Bool("bootstrap", false, "Initialize a new single-node cluster")
	enableMDNS := flag.Bool("mdns", false, "Advertise and browse mDNS on the local segment")
	flag.Parse()

	mgr := config.NewManager()
	if *configFile != "" {
		if err := mgr.LoadFromFile(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}
	mgr.LoadFromEnv()
	cfg := mgr.Get()

	if *nodeID != 0 {
		cfg.NodeID = *nodeID
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	logging.SetJSONMode(cfg.LogJSON)
	logger := logging.NewLogger("flyraftd").With("node_id", strconv.FormatUint(cfg.NodeID, 10))

	store, err := storage.NewStorageEngine(storage.StorageConfig{DataDir: *dataDir, Type: storage.EngineTypeDisk})
	if err != nil {
		logger.Error("open storage", "err", err.Error())
		os.Exit(1)
	}
	defer store.Close()

	host, portStr, err := splitHostPort(cfg.ListenAddr)
	if err != nil {
		logger.Error("bad listen address", "addr", cfg.ListenAddr, "err", err.Error())
		os.Exit(1)
	}
	port, _ := strconv.Atoi(portStr)

	raftCfg := cluster.RaftConfig{
		NodeID:            engine.NodeID(cfg.NodeID),
		NodeAddr:          host,
		ClusterPort:       port,
		Peers:             parsePeers(*peersFlag),
		ElectionTimeout:   time.Duration(cfg.ElectionTimeoutMin) * time.Millisecond,
		HeartbeatInterval: time.Duration(cfg.HeartbeatInterval) * time.Millisecond,
		MaxPayloadEntries: cfg.MaxPayloadEntries,
		LagThreshold:      cfg.ReplicationLagThreshold,
		DataDir:           *dataDir,
		SnapshotThreshold: cfg.SnapshotThreshold(),
		SnapshotChunkSize: cfg.SnapshotMaxChunkSize,
		SnapshotTimeout:   time.Duration(cfg.SendSnapshotTimeoutMs()) * time.Millisecond,
	}

	node, err := cluster.NewRaftNode(raftCfg, store)
	if err != nil {
		logger.Error("build raft node", "err", err.Error())
		os.Exit(1)
	}

	// The built-in state machine keeps the applied command stream and
	// is what snapshot building and transfer serialize.
	node.SetStateMachine(cluster.NewLogStateMachine())

	node.Flags().EnableTick.Store(cfg.EnableTick)
	node.Flags().EnableHeartbeat.Store(cfg.EnableHeartbeat)
	node.Flags().EnableElect.Store(cfg.EnableElect)

	// Audit trail: role transitions and membership changes are recorded
	// through the node's callback surface.
	auditMgr := audit.NewManager(store, audit.DefaultConfig())
	recorder := audit.NewRecorder(auditMgr, engine.NodeID(cfg.NodeID).String())
	node.SetLeaderCallback(func() {
		recorder.LeaderElected(node.Term())
	})
	node.SetFollowerCallback(func(leaderID engine.NodeID) {
		recorder.LeaderStepDown(node.Term(), leaderID)
	})
	node.SetMembershipCallback(func(m engine.EffectiveMembership) {
		recorder.MembershipChanged(m)
	})

	if err := node.Start(); err != nil {
		logger.Error("start raft node", "err", err.Error())
		os.Exit(1)
	}

	// Failure detection drives elections faster than the bare timer.
	failover := cluster.NewFailoverManager(
		cluster.DefaultFailoverConfig(engine.NodeID(cfg.NodeID).String()), node)
	failover.Start()
	defer failover.Stop()

	health, err := cluster.NewHealthChecker(cluster.DefaultFailoverConfig(engine.NodeID(cfg.NodeID).String()))
	if err != nil {
		logger.Warn("health checker disabled", "err", err.Error())
	} else {
		health.Start()
		defer health.Stop()
	}

	// Gossip membership feeds peer endpoints into the raft runtime.
	memCfg := cluster.DefaultMembershipConfig(engine.NodeID(cfg.NodeID).String(), host)
	memCfg.RaftID = cfg.NodeID
	memCfg.RaftPort = port
	memCfg.EnableMDNS = *enableMDNS
	membership := cluster.NewMembershipManager(memCfg, node)
	membership.SetNodeJoinCallback(func(m *cluster.MemberInfo) {
		recorder.NodeJoined(m.ID, m.RaftAddr())
	})
	membership.SetNodeDeadCallback(func(m *cluster.MemberInfo) {
		recorder.NodeDead(m.ID)
	})
	if err := membership.Start(); err != nil {
		logger.Warn("membership manager disabled", "err", err.Error())
	} else {
		defer membership.Stop()
	}

	if *bootstrap {
		if err := node.Initialize(engine.NodeID(cfg.NodeID)); err != nil {
			logger.Error("bootstrap failed", "err", err.Error())
			os.Exit(1)
		}
		logger.Info("bootstrapped single-node cluster", "cluster", cfg.ClusterName)
	}

	logger.Info("node running",
		"cluster", cfg.ClusterName,
		"listen", cfg.ListenAddr,
		"data_dir", *dataDir,
	)

	// Hot reload on SIGHUP; shutdown on INT/TERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			if err := mgr.Reload(); err != nil {
				logger.Warn("config reload failed", "err", err.Error())
				continue
			}
			next := mgr.Get()
			node.Flags().EnableTick.Store(next.EnableTick)
			node.Flags().EnableHeartbeat.Store(next.EnableHeartbeat)
			node.Flags().EnableElect.Store(next.EnableElect)
			logging.SetGlobalLevel(logging.ParseLevel(next.LogLevel))
			logger.Info("configuration reloaded")
			continue
		}
		break
	}

	logger.Info("shutting down")
	node.Stop()
	auditMgr.Stop()
}

// parsePeers parses "id=host:port,id=host:port" into a peer map.
func parsePeers(s string) map[engine.NodeID]string {
	peers := make(map[engine.NodeID]string)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idStr, addr, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSpace(idStr), 10, 64)
		if err != nil {
			continue
		}
		peers[engine.NodeID(id)] = strings.TrimSpace(addr)
	}
	return peers
}

// splitHostPort splits "host:port", tolerating a bare ":port".
func splitHostPort(addr string) (host, port string, err error) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return "", "", fmt.Errorf("address %q has no port", addr)
	}
	host = addr[:i]
	if host == "" {
		host = "0.0.0.0"
	}
	return host, addr[i+1:], nil
}
