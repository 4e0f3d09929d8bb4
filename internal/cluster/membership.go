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
Cluster membership management for FlyRaft.

This layer answers "who is reachable", which is distinct from, and
below, the consensus engine's Membership: the engine's joint-consensus
voter configs answer "who is a voter". A node can be reachable without
being a voter (a learner, or a candidate for joining) and a voter can be
temporarily unreachable; the two layers deliberately do not share state.

Node Discovery:
===============

Nodes discover each other through:
1. Seed nodes: initial known addresses to bootstrap from
2. Gossip: nodes exchange their member tables
3. mDNS: zero-config discovery on a shared LAN segment (dev/test)
4. DNS SRV: records resolved against a configured DNS server

Health Monitoring:
==================

Every member is probed over TCP on an interval; a missed probe marks it
suspect, and a suspect that stays silent past the suspicion timeout is
declared dead (the phi-accrual detector in failover.go watches the
leader specifically, with finer resolution).

Raft Integration:
=================

Discovered members feed RaftNode.AddPeer so replication and vote
traffic can reach them; actually making a node a voter is a membership
change proposed through the log, never something gossip does on its
own.
*/
package cluster

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/miekg/dns"

	"flyraft/internal/engine"
	"flyraft/internal/logging"
)

// MemberState represents the state of a cluster member.
type MemberState int32

const (
	MemberStateUnknown MemberState = iota
	MemberStateJoining
	MemberStateActive
	MemberStateSuspect
	MemberStateLeaving
	MemberStateDead
)

func (s MemberState) String() string {
	switch s {
	case MemberStateJoining:
		return "JOINING"
	case MemberStateActive:
		return "ACTIVE"
	case MemberStateSuspect:
		return "SUSPECT"
	case MemberStateLeaving:
		return "LEAVING"
	case MemberStateDead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// MemberInfo contains information about a cluster member.
type MemberInfo struct {
	ID         string            `json:"id"`
	RaftID     uint64            `json:"raft_id"`
	Addr       string            `json:"addr"`
	GossipPort int               `json:"gossip_port"`
	RaftPort   int               `json:"raft_port"`
	ClientPort int               `json:"client_port"`
	State      MemberState       `json:"state"`
	JoinedAt   time.Time         `json:"joined_at"`
	LastSeen   time.Time         `json:"last_seen"`
	Metadata   map[string]string `json:"metadata"`
	Version    string            `json:"version"`
}

// RaftAddr returns the member's consensus RPC endpoint.
func (m *MemberInfo) RaftAddr() string {
	return net.JoinHostPort(m.Addr, strconv.Itoa(m.RaftPort))
}

// MembershipConfig holds configuration for the membership manager.
type MembershipConfig struct {
	NodeID           string        `json:"node_id"`
	RaftID           uint64        `json:"raft_id"`
	NodeAddr         string        `json:"node_addr"`
	GossipPort       int           `json:"gossip_port"`
	RaftPort         int           `json:"raft_port"`
	ClientPort       int           `json:"client_port"`
	SeedNodes        []string      `json:"seed_nodes"`
	GossipInterval   time.Duration `json:"gossip_interval"`
	ProbeInterval    time.Duration `json:"probe_interval"`
	ProbeTimeout     time.Duration `json:"probe_timeout"`
	SuspicionTimeout time.Duration `json:"suspicion_timeout"`
	DeadTimeout      time.Duration `json:"dead_timeout"`

	// EnableMDNS advertises and browses _flyraft._tcp on the local
	// segment; intended for dev and test clusters.
	EnableMDNS bool `json:"enable_mdns"`

	// DNSServer plus DNSServiceName enable SRV-record discovery, e.g.
	// "_flyraft._tcp.cluster.example.com." against "10.0.0.2:53".
	DNSServer      string `json:"dns_server"`
	DNSServiceName string `json:"dns_service_name"`
}

// DefaultMembershipConfig returns sensible defaults.
func DefaultMembershipConfig(nodeID, nodeAddr string) MembershipConfig {
	return MembershipConfig{
		NodeID:           nodeID,
		NodeAddr:         nodeAddr,
		GossipPort:       9996,
		RaftPort:         9998,
		ClientPort:       9999,
		SeedNodes:        []string{},
		GossipInterval:   200 * time.Millisecond,
		ProbeInterval:    1 * time.Second,
		ProbeTimeout:     500 * time.Millisecond,
		SuspicionTimeout: 5 * time.Second,
		DeadTimeout:      30 * time.Second,
	}
}

// GossipMessageType represents the type of gossip message.
type GossipMessageType int

const (
	GossipPing GossipMessageType = iota
	GossipAck
	GossipSync
	GossipJoin
	GossipLeave
)

// GossipMessage represents a gossip protocol message.
type GossipMessage struct {
	Type      GossipMessageType `json:"type"`
	SenderID  string            `json:"sender_id"`
	Members   []*MemberInfo     `json:"members,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// MembershipManager manages cluster membership.
type MembershipManager struct {
	config MembershipConfig
	logger *logging.Logger

	localNode *MemberInfo

	members   map[string]*MemberInfo
	membersMu sync.RWMutex

	suspicions   map[string]time.Time
	suspicionsMu sync.Mutex

	listener   net.Listener
	mdnsServer *mdns.Server
	stopCh     chan struct{}
	wg         sync.WaitGroup

	raft *RaftNode

	onNodeJoin  func(node *MemberInfo)
	onNodeLeave func(node *MemberInfo)
	onNodeDead  func(node *MemberInfo)
}

// NewMembershipManager creates a new membership manager.
func NewMembershipManager(config MembershipConfig, raft *RaftNode) *MembershipManager {
	localNode := &MemberInfo{
		ID:         config.NodeID,
		RaftID:     config.RaftID,
		Addr:       config.NodeAddr,
		GossipPort: config.GossipPort,
		RaftPort:   config.RaftPort,
		ClientPort: config.ClientPort,
		State:      MemberStateJoining,
		JoinedAt:   time.Now(),
		LastSeen:   time.Now(),
		Metadata:   make(map[string]string),
	}

	return &MembershipManager{
		config:     config,
		logger:     logging.NewLogger("cluster.membership").With("node_id", config.NodeID),
		localNode:  localNode,
		members:    make(map[string]*MemberInfo),
		suspicions: make(map[string]time.Time),
		raft:       raft,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the membership manager.
func (mm *MembershipManager) Start() error {
	addr := fmt.Sprintf(":%d", mm.config.GossipPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start membership manager: %w", err)
	}
	mm.listener = ln

	mm.membersMu.Lock()
	mm.members[mm.config.NodeID] = mm.localNode
	mm.membersMu.Unlock()

	if mm.config.EnableMDNS {
		if err := mm.startMDNS(); err != nil {
			mm.logger.Warn("mdns advertisement failed", "err", err.Error())
		}
	}

	mm.wg.Add(3)
	go mm.acceptConnections()
	go mm.gossipLoop()
	go mm.probeLoop()

	go mm.joinCluster()

	mm.logger.Info("membership manager started", "addr", addr)
	return nil
}

// Stop gracefully shuts down the membership manager.
func (mm *MembershipManager) Stop() error {
	mm.announceLeave()

	close(mm.stopCh)
	if mm.mdnsServer != nil {
		mm.mdnsServer.Shutdown()
	}
	if mm.listener != nil {
		mm.listener.Close()
	}
	mm.wg.Wait()
	return nil
}

// startMDNS advertises this node's gossip endpoint on the local
// network segment.
func (mm *MembershipManager) startMDNS() error {
	info := []string{
		"id=" + mm.config.NodeID,
		"raft_id=" + strconv.FormatUint(mm.config.RaftID, 10),
		"raft_port=" + strconv.Itoa(mm.config.RaftPort),
	}
	service, err := mdns.NewMDNSService(
		mm.config.NodeID, "_flyraft._tcp", "", "",
		mm.config.GossipPort, nil, info,
	)
	if err != nil {
		return err
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return err
	}
	mm.mdnsServer = server
	return nil
}

// DiscoverMDNS browses the local segment for peers and returns their
// gossip addresses. Used by joinCluster and the flyraft-discover tool.
func DiscoverMDNS(timeout time.Duration) ([]string, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	var addrs []string
	done := make(chan struct{})

	go func() {
		defer close(done)
		for e := range entries {
			if e.AddrV4 != nil {
				addrs = append(addrs, net.JoinHostPort(e.AddrV4.String(), strconv.Itoa(e.Port)))
			}
		}
	}()

	params := mdns.DefaultParams("_flyraft._tcp")
	params.Entries = entries
	params.Timeout = timeout
	err := mdns.Query(params)
	close(entries)
	<-done
	return addrs, err
}

// DiscoveredNode is one peer found by mDNS browsing, with whatever
// metadata it advertised.
type DiscoveredNode struct {
	NodeID     string `json:"node_id"`
	RaftID     uint64 `json:"raft_id,omitempty"`
	GossipAddr string `json:"gossip_addr"`
	RaftAddr   string `json:"raft_addr,omitempty"`
	Version    string `json:"version,omitempty"`
}

// DiscoverNodes browses the local segment and returns every advertised
// node with its parsed TXT metadata. Used by the flyraft-discover tool.
func DiscoverNodes(timeout time.Duration) ([]*DiscoveredNode, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	var nodes []*DiscoveredNode
	done := make(chan struct{})

	go func() {
		defer close(done)
		for e := range entries {
			if e.AddrV4 == nil {
				continue
			}
			node := &DiscoveredNode{
				GossipAddr: net.JoinHostPort(e.AddrV4.String(), strconv.Itoa(e.Port)),
			}
			for _, field := range e.InfoFields {
				k, v, ok := strings.Cut(field, "=")
				if !ok {
					continue
				}
				switch k {
				case "id":
					node.NodeID = v
				case "raft_id":
					node.RaftID, _ = strconv.ParseUint(v, 10, 64)
				case "raft_port":
					node.RaftAddr = net.JoinHostPort(e.AddrV4.String(), v)
				case "version":
					node.Version = v
				}
			}
			nodes = append(nodes, node)
		}
	}()

	params := mdns.DefaultParams("_flyraft._tcp")
	params.Entries = entries
	params.Timeout = timeout
	err := mdns.Query(params)
	close(entries)
	<-done
	return nodes, err
}

// discoverDNS resolves SRV records for the configured service name
// against the configured DNS server.
func (mm *MembershipManager) discoverDNS() []string {
	if mm.config.DNSServer == "" || mm.config.DNSServiceName == "" {
		return nil
	}

	c := &dns.Client{Timeout: 2 * time.Second}
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(mm.config.DNSServiceName), dns.TypeSRV)

	resp, _, err := c.Exchange(msg, mm.config.DNSServer)
	if err != nil {
		mm.logger.Warn("dns discovery failed", "err", err.Error())
		return nil
	}

	var addrs []string
	for _, rr := range resp.Answer {
		if srv, ok := rr.(*dns.SRV); ok {
			host := srv.Target
			if host != "" && host[len(host)-1] == '.' {
				host = host[:len(host)-1]
			}
			addrs = append(addrs, net.JoinHostPort(host, strconv.Itoa(int(srv.Port))))
		}
	}
	return addrs
}

// joinCluster attempts to join the cluster via every discovery source.
func (mm *MembershipManager) joinCluster() {
	candidates := append([]string{}, mm.config.SeedNodes...)
	candidates = append(candidates, mm.discoverDNS()...)
	if mm.config.EnableMDNS {
		if found, err := DiscoverMDNS(1 * time.Second); err == nil {
			candidates = append(candidates, found...)
		}
	}

	self := net.JoinHostPort(mm.config.NodeAddr, strconv.Itoa(mm.config.GossipPort))
	for _, seed := range candidates {
		if seed == self {
			continue
		}
		if err := mm.sendJoin(seed); err != nil {
			mm.logger.Debug("join attempt failed", "seed", seed, "err", err.Error())
			continue
		}
		mm.localNode.State = MemberStateActive
		return
	}

	// Nobody answered: we are the first node.
	mm.localNode.State = MemberStateActive
}

// sendJoin sends a join request to a seed node.
func (mm *MembershipManager) sendJoin(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	msg := GossipMessage{
		Type:      GossipJoin,
		SenderID:  mm.config.NodeID,
		Members:   []*MemberInfo{mm.localNode},
		Timestamp: time.Now().UnixNano(),
	}
	if err := mm.sendGossipMessage(conn, &msg); err != nil {
		return err
	}

	// The seed answers with its full member table.
	resp, err := mm.readGossipMessage(conn)
	if err != nil {
		return err
	}
	for _, m := range resp.Members {
		mm.mergeMember(m)
	}
	return nil
}

// announceLeave tells the cluster this node is going away.
func (mm *MembershipManager) announceLeave() {
	mm.localNode.State = MemberStateLeaving

	msg := GossipMessage{
		Type:      GossipLeave,
		SenderID:  mm.config.NodeID,
		Members:   []*MemberInfo{mm.localNode},
		Timestamp: time.Now().UnixNano(),
	}

	for _, m := range mm.GetMembers() {
		if m.ID == mm.config.NodeID {
			continue
		}
		go func(node *MemberInfo) {
			addr := net.JoinHostPort(node.Addr, strconv.Itoa(node.GossipPort))
			conn, err := net.DialTimeout("tcp", addr, 1*time.Second)
			if err != nil {
				return
			}
			defer conn.Close()
			mm.sendGossipMessage(conn, &msg)
		}(m)
	}
}

// acceptConnections handles incoming gossip connections.
func (mm *MembershipManager) acceptConnections() {
	defer mm.wg.Done()

	for {
		select {
		case <-mm.stopCh:
			return
		default:
		}

		if tl, ok := mm.listener.(*net.TCPListener); ok {
			tl.SetDeadline(time.Now().Add(1 * time.Second))
		}
		conn, err := mm.listener.Accept()
		if err != nil {
			continue
		}

		go mm.handleConnection(conn)
	}
}

// handleConnection handles one inbound gossip exchange.
func (mm *MembershipManager) handleConnection(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	msg, err := mm.readGossipMessage(conn)
	if err != nil {
		return
	}

	switch msg.Type {
	case GossipPing:
		mm.handlePing(conn, msg)
	case GossipSync:
		mm.handleSync(conn, msg)
	case GossipJoin:
		mm.handleJoin(conn, msg)
	case GossipLeave:
		mm.handleLeave(msg)
	}
}

func (mm *MembershipManager) handlePing(conn net.Conn, msg *GossipMessage) {
	mm.clearSuspicion(msg.SenderID)
	mm.updateMember(msg.SenderID, func(m *MemberInfo) {
		m.LastSeen = time.Now()
	})

	ack := GossipMessage{
		Type:      GossipAck,
		SenderID:  mm.config.NodeID,
		Timestamp: time.Now().UnixNano(),
	}
	mm.sendGossipMessage(conn, &ack)
}

func (mm *MembershipManager) handleSync(conn net.Conn, msg *GossipMessage) {
	for _, m := range msg.Members {
		mm.mergeMember(m)
	}

	reply := GossipMessage{
		Type:      GossipSync,
		SenderID:  mm.config.NodeID,
		Members:   mm.GetMembers(),
		Timestamp: time.Now().UnixNano(),
	}
	mm.sendGossipMessage(conn, &reply)
}

func (mm *MembershipManager) handleJoin(conn net.Conn, msg *GossipMessage) {
	for _, m := range msg.Members {
		m.JoinedAt = time.Now()
		m.LastSeen = time.Now()
		m.State = MemberStateActive
		mm.addMember(m)
	}

	reply := GossipMessage{
		Type:      GossipSync,
		SenderID:  mm.config.NodeID,
		Members:   mm.GetMembers(),
		Timestamp: time.Now().UnixNano(),
	}
	mm.sendGossipMessage(conn, &reply)
}

func (mm *MembershipManager) handleLeave(msg *GossipMessage) {
	for _, m := range msg.Members {
		mm.removeMember(m.ID)
	}
}

// gossipLoop periodically syncs the member table with one random peer.
func (mm *MembershipManager) gossipLoop() {
	defer mm.wg.Done()

	ticker := time.NewTicker(mm.config.GossipInterval)
	defer ticker.Stop()

	for {
		select {
		case <-mm.stopCh:
			return
		case <-ticker.C:
			mm.gossipRound()
		}
	}
}

func (mm *MembershipManager) gossipRound() {
	peer := mm.selectRandomMember()
	if peer == nil {
		return
	}

	addr := net.JoinHostPort(peer.Addr, strconv.Itoa(peer.GossipPort))
	conn, err := net.DialTimeout("tcp", addr, mm.config.ProbeTimeout)
	if err != nil {
		mm.markSuspect(peer.ID)
		return
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	msg := GossipMessage{
		Type:      GossipSync,
		SenderID:  mm.config.NodeID,
		Members:   mm.GetMembers(),
		Timestamp: time.Now().UnixNano(),
	}
	if err := mm.sendGossipMessage(conn, &msg); err != nil {
		mm.markSuspect(peer.ID)
		return
	}

	reply, err := mm.readGossipMessage(conn)
	if err != nil {
		return
	}
	for _, m := range reply.Members {
		mm.mergeMember(m)
	}
}

// probeLoop checks member liveness and expires the silent.
func (mm *MembershipManager) probeLoop() {
	defer mm.wg.Done()

	ticker := time.NewTicker(mm.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-mm.stopCh:
			return
		case <-ticker.C:
			mm.probeMembers()
			mm.checkDeadMembers()
		}
	}
}

func (mm *MembershipManager) probeMembers() {
	for _, m := range mm.GetMembers() {
		if m.ID == mm.config.NodeID || m.State == MemberStateDead {
			continue
		}
		go mm.probeMember(m)
	}
}

func (mm *MembershipManager) probeMember(node *MemberInfo) {
	addr := net.JoinHostPort(node.Addr, strconv.Itoa(node.GossipPort))
	conn, err := net.DialTimeout("tcp", addr, mm.config.ProbeTimeout)
	if err != nil {
		mm.markSuspect(node.ID)
		return
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(mm.config.ProbeTimeout))

	msg := GossipMessage{
		Type:      GossipPing,
		SenderID:  mm.config.NodeID,
		Timestamp: time.Now().UnixNano(),
	}
	if err := mm.sendGossipMessage(conn, &msg); err != nil {
		mm.markSuspect(node.ID)
		return
	}
	if _, err := mm.readGossipMessage(conn); err != nil {
		mm.markSuspect(node.ID)
		return
	}

	mm.clearSuspicion(node.ID)
	mm.updateMember(node.ID, func(m *MemberInfo) {
		m.State = MemberStateActive
		m.LastSeen = time.Now()
	})
}

func (mm *MembershipManager) checkDeadMembers() {
	now := time.Now()
	mm.suspicionsMu.Lock()
	var dead []string
	for id, since := range mm.suspicions {
		if now.Sub(since) > mm.config.SuspicionTimeout {
			dead = append(dead, id)
			delete(mm.suspicions, id)
		}
	}
	mm.suspicionsMu.Unlock()

	for _, id := range dead {
		mm.markDead(id)
	}
}

func (mm *MembershipManager) selectRandomMember() *MemberInfo {
	members := mm.GetMembers()
	for _, m := range members {
		if m.ID != mm.config.NodeID && m.State != MemberStateDead {
			return m
		}
	}
	return nil
}

func (mm *MembershipManager) addMember(node *MemberInfo) {
	mm.membersMu.Lock()
	_, existed := mm.members[node.ID]
	mm.members[node.ID] = node
	mm.membersMu.Unlock()

	if !existed && node.ID != mm.config.NodeID {
		mm.logger.Info("member joined", "id", node.ID, "addr", node.RaftAddr())
		if mm.raft != nil && node.RaftID != 0 {
			mm.raft.AddPeer(engine.NodeID(node.RaftID), node.RaftAddr())
		}
		if mm.onNodeJoin != nil {
			go mm.onNodeJoin(node)
		}
	}
}

func (mm *MembershipManager) removeMember(nodeID string) {
	mm.membersMu.Lock()
	node, ok := mm.members[nodeID]
	delete(mm.members, nodeID)
	mm.membersMu.Unlock()

	if ok {
		mm.logger.Info("member left", "id", nodeID)
		if mm.raft != nil && node.RaftID != 0 {
			mm.raft.RemovePeer(engine.NodeID(node.RaftID))
		}
		if mm.onNodeLeave != nil {
			go mm.onNodeLeave(node)
		}
	}
}

func (mm *MembershipManager) updateMember(nodeID string, fn func(*MemberInfo)) {
	mm.membersMu.Lock()
	defer mm.membersMu.Unlock()
	if m, ok := mm.members[nodeID]; ok {
		fn(m)
	}
}

func (mm *MembershipManager) mergeMember(node *MemberInfo) {
	if node.ID == mm.config.NodeID {
		return
	}
	mm.membersMu.Lock()
	existing, ok := mm.members[node.ID]
	if ok && node.LastSeen.After(existing.LastSeen) {
		mm.members[node.ID] = node
	}
	mm.membersMu.Unlock()

	if !ok {
		mm.addMember(node)
	}
}

func (mm *MembershipManager) markSuspect(nodeID string) {
	mm.suspicionsMu.Lock()
	if _, ok := mm.suspicions[nodeID]; !ok {
		mm.suspicions[nodeID] = time.Now()
	}
	mm.suspicionsMu.Unlock()
	mm.updateMember(nodeID, func(m *MemberInfo) {
		if m.State == MemberStateActive {
			m.State = MemberStateSuspect
		}
	})
}

func (mm *MembershipManager) clearSuspicion(nodeID string) {
	mm.suspicionsMu.Lock()
	delete(mm.suspicions, nodeID)
	mm.suspicionsMu.Unlock()
}

func (mm *MembershipManager) markDead(nodeID string) {
	var dead *MemberInfo
	mm.membersMu.Lock()
	if m, ok := mm.members[nodeID]; ok && m.State != MemberStateDead {
		m.State = MemberStateDead
		dead = m
	}
	mm.membersMu.Unlock()

	if dead != nil {
		mm.logger.Warn("member declared dead", "id", nodeID)
		if mm.onNodeDead != nil {
			go mm.onNodeDead(dead)
		}
	}
}

// sendGossipMessage writes one length-prefixed JSON message.
func (mm *MembershipManager) sendGossipMessage(conn net.Conn, msg *GossipMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	if _, err := conn.Write(length[:]); err != nil {
		return err
	}
	_, err = conn.Write(data)
	return err
}

// readGossipMessage reads one length-prefixed JSON message.
func (mm *MembershipManager) readGossipMessage(conn net.Conn) (*GossipMessage, error) {
	var length [4]byte
	if _, err := io.ReadFull(conn, length[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(length[:])
	if n > 1<<20 {
		return nil, fmt.Errorf("gossip message too large: %d", n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(conn, data); err != nil {
		return nil, err
	}
	var msg GossipMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetMembers returns a snapshot of all known members.
func (mm *MembershipManager) GetMembers() []*MemberInfo {
	mm.membersMu.RLock()
	defer mm.membersMu.RUnlock()
	out := make([]*MemberInfo, 0, len(mm.members))
	for _, m := range mm.members {
		out = append(out, m)
	}
	return out
}

// GetMember returns one member by gossip id, or nil.
func (mm *MembershipManager) GetMember(nodeID string) *MemberInfo {
	mm.membersMu.RLock()
	defer mm.membersMu.RUnlock()
	return mm.members[nodeID]
}

// GetActiveMembers returns members currently believed reachable.
func (mm *MembershipManager) GetActiveMembers() []*MemberInfo {
	mm.membersMu.RLock()
	defer mm.membersMu.RUnlock()
	out := make([]*MemberInfo, 0, len(mm.members))
	for _, m := range mm.members {
		if m.State == MemberStateActive {
			out = append(out, m)
		}
	}
	return out
}

// SetNodeJoinCallback registers a callback for newly seen members.
func (mm *MembershipManager) SetNodeJoinCallback(fn func(node *MemberInfo)) {
	mm.onNodeJoin = fn
}

// SetNodeLeaveCallback registers a callback for departing members.
func (mm *MembershipManager) SetNodeLeaveCallback(fn func(node *MemberInfo)) {
	mm.onNodeLeave = fn
}

// SetNodeDeadCallback registers a callback for members declared dead.
func (mm *MembershipManager) SetNodeDeadCallback(fn func(node *MemberInfo)) {
	mm.onNodeDead = fn
}
