/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package audit

import (
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"flyraft/internal/logging"
)

// ClusterAuditManager aggregates audit trails across a cluster. Each
// node records only its own events; an operator investigating an
// election storm asks any one node and gets the merged timeline.
type ClusterAuditManager struct {
	localManager *Manager
	logger       *logging.Logger
	mu           sync.RWMutex

	nodeID    string
	auditPort int
	peers     map[string]string // nodeID -> address
}

// NewClusterAuditManager creates a new cluster audit manager.
func NewClusterAuditManager(localManager *Manager, nodeID string, auditPort int) *ClusterAuditManager {
	return &ClusterAuditManager{
		localManager: localManager,
		logger:       logging.NewLogger("audit.cluster"),
		nodeID:       nodeID,
		auditPort:    auditPort,
		peers:        make(map[string]string),
	}
}

// AddPeer adds a cluster peer for audit log aggregation.
func (cam *ClusterAuditManager) AddPeer(nodeID, address string) {
	cam.mu.Lock()
	defer cam.mu.Unlock()
	cam.peers[nodeID] = address
	cam.logger.Info("added audit peer", "node_id", nodeID, "address", address)
}

// RemovePeer removes a cluster peer.
func (cam *ClusterAuditManager) RemovePeer(nodeID string) {
	cam.mu.Lock()
	defer cam.mu.Unlock()
	delete(cam.peers, nodeID)
	cam.logger.Info("removed audit peer", "node_id", nodeID)
}

// LogEvent records an event locally, stamped with this node's id.
func (cam *ClusterAuditManager) LogEvent(event Event) {
	if event.NodeID == "" {
		event.NodeID = cam.nodeID
	}
	cam.localManager.LogEvent(event)
}

// QueryLogsAcrossCluster queries every node's trail and merges the
// results into one timeline, oldest first.
func (cam *ClusterAuditManager) QueryLogsAcrossCluster(opts QueryOptions) ([]Event, error) {
	localLogs, err := cam.localManager.QueryLogs(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query local logs: %w", err)
	}

	cam.mu.RLock()
	peers := make(map[string]string, len(cam.peers))
	for nodeID, addr := range cam.peers {
		peers[nodeID] = addr
	}
	cam.mu.RUnlock()

	allLogs := make([]Event, 0, len(localLogs))
	allLogs = append(allLogs, localLogs...)

	var wg sync.WaitGroup
	var mu sync.Mutex
	for nodeID, addr := range peers {
		wg.Add(1)
		go func(nid, address string) {
			defer wg.Done()

			remoteLogs, err := cam.queryRemoteLogs(address, opts)
			if err != nil {
				cam.logger.Warn("failed to query remote audit logs", "node_id", nid, "err", err.Error())
				return
			}

			mu.Lock()
			allLogs = append(allLogs, remoteLogs...)
			mu.Unlock()
		}(nodeID, addr)
	}

	wg.Wait()

	sort.Slice(allLogs, func(i, j int) bool { return allLogs[i].Timestamp.Before(allLogs[j].Timestamp) })
	return allLogs, nil
}

// queryRemoteLogs queries audit logs from a remote node's audit
// endpoint.
func (cam *ClusterAuditManager) queryRemoteLogs(address string, opts QueryOptions) ([]Event, error) {
	conn, err := net.DialTimeout("tcp", address, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to remote node: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(10 * time.Second))

	request := map[string]interface{}{
		"type":    "audit_query",
		"options": opts,
	}
	if err := json.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var response struct {
		Success bool    `json:"success"`
		Events  []Event `json:"events"`
		Error   string  `json:"error"`
	}
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !response.Success {
		return nil, fmt.Errorf("remote query failed: %s", response.Error)
	}

	return response.Events, nil
}

// ServeQueries answers remote audit queries on the audit port. Runs
// until the listener is closed.
func (cam *ClusterAuditManager) ServeQueries() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cam.auditPort))
	if err != nil {
		return err
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			return nil
		}
		go cam.handleQuery(conn)
	}
}

func (cam *ClusterAuditManager) handleQuery(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	var request struct {
		Type    string       `json:"type"`
		Options QueryOptions `json:"options"`
	}
	if err := json.NewDecoder(conn).Decode(&request); err != nil || request.Type != "audit_query" {
		return
	}

	events, err := cam.localManager.QueryLogs(request.Options)
	response := map[string]interface{}{"success": err == nil, "events": events}
	if err != nil {
		response["error"] = err.Error()
	}
	json.NewEncoder(conn).Encode(response)
}

// ExportLogsAcrossCluster exports the merged cluster timeline.
func (cam *ClusterAuditManager) ExportLogsAcrossCluster(filename string, format ExportFormat, opts QueryOptions) error {
	allLogs, err := cam.QueryLogsAcrossCluster(opts)
	if err != nil {
		return err
	}
	return cam.localManager.ExportEvents(filename, format, allLogs)
}

// GetClusterStatistics summarizes the local trail with cluster context.
func (cam *ClusterAuditManager) GetClusterStatistics() (map[string]interface{}, error) {
	localStats, err := NewQueryHelper(cam.localManager).GetAuditStats()
	if err != nil {
		return nil, fmt.Errorf("failed to get local stats: %w", err)
	}

	cam.mu.RLock()
	peerCount := len(cam.peers)
	cam.mu.RUnlock()

	return map[string]interface{}{
		"node_id":      cam.nodeID,
		"local_stats":  localStats,
		"cluster_mode": peerCount > 0,
		"peer_count":   peerCount,
	}, nil
}

// IsClusterMode reports whether any peers are registered.
func (cam *ClusterAuditManager) IsClusterMode() bool {
	cam.mu.RLock()
	defer cam.mu.RUnlock()
	return len(cam.peers) > 0
}

// GetLocalManager returns the local audit manager.
func (cam *ClusterAuditManager) GetLocalManager() *Manager {
	return cam.localManager
}

// Stop stops the cluster audit manager.
func (cam *ClusterAuditManager) Stop() {
	cam.localManager.Stop()
}
