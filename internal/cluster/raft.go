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
Package cluster drives internal/engine's decision core over TCP.

The engine package alone never performs I/O: it consumes vote and
append-entries RPCs, client proposals and timer expirations, and emits
a Command queue describing what must happen next. RaftNode is the
runtime half -- it owns the network listener, the election timer, the
durable stores, the per-follower replication streams and a drain loop
that executes each Command the engine pushed (persist a vote, store a
log range, open replication streams, apply a committed range) in
exactly the order the engine produced them. That FIFO discipline is
load-bearing: a SaveVote must land before anything a peer could
observe, and a DeleteConflictLog before the append that refills the
truncated range.

All engine access happens under one mutex; the engine itself is
single-threaded by contract. Parallelism lives out here -- stream
goroutines, the timer loop, inbound RPC handlers -- and every one of
them re-enters the engine through that same mutex.
*/
package cluster

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"flyraft/internal/engine"
	"flyraft/internal/errors"
	"flyraft/internal/logging"
	"flyraft/internal/protocol"
	"flyraft/internal/replication"
	"flyraft/internal/storage"
)

// RuntimeFlags are the operator kill switches the timer loops read
// lock-free: a node can be quiesced (no campaigns, no heartbeats)
// without touching the engine.
type RuntimeFlags struct {
	EnableTick      atomic.Bool
	EnableHeartbeat atomic.Bool
	EnableElect     atomic.Bool
}

// NewRuntimeFlags returns flags with everything enabled.
func NewRuntimeFlags() *RuntimeFlags {
	f := &RuntimeFlags{}
	f.EnableTick.Store(true)
	f.EnableHeartbeat.Store(true)
	f.EnableElect.Store(true)
	return f
}

// RaftConfig holds configuration for the Raft consensus runtime.
type RaftConfig struct {
	NodeID            engine.NodeID
	NodeAddr          string
	ClusterPort       int
	Peers             map[engine.NodeID]string // NodeID -> "host:port"
	ElectionTimeout   time.Duration
	HeartbeatInterval time.Duration
	MaxPayloadEntries int
	LagThreshold      uint64
	DataDir           string

	// SnapshotThreshold is the "since_last:<n>" policy: build a new
	// snapshot once this many entries have been applied since the last
	// one. Zero disables policy-driven builds (a transfer to a lagging
	// follower still builds one on demand).
	SnapshotThreshold uint64
	// SnapshotChunkSize bounds one InstallSnapshot chunk.
	SnapshotChunkSize int64
	// SnapshotTimeout bounds one chunk's round trip.
	SnapshotTimeout time.Duration
}

// DefaultRaftConfig returns a RaftConfig with sensible defaults.
func DefaultRaftConfig(nodeID engine.NodeID, nodeAddr string) RaftConfig {
	return RaftConfig{
		NodeID:            nodeID,
		NodeAddr:          nodeAddr,
		ClusterPort:       9998,
		Peers:             make(map[engine.NodeID]string),
		ElectionTimeout:   1000 * time.Millisecond,
		HeartbeatInterval: 150 * time.Millisecond,
		MaxPayloadEntries: 256,
		LagThreshold:      10000,
		DataDir:           "./data/raft",
		SnapshotThreshold: 5000,
		SnapshotChunkSize: 256 * 1024,
		SnapshotTimeout:   10 * time.Second,
	}
}

// RaftPeer is one reachable peer endpoint.
type RaftPeer struct {
	ID   engine.NodeID
	Addr string
}

// ApplyFunc consumes a committed entry. The runtime calls it for every
// entry in a FollowerCommit/LeaderCommit range, in log order.
type ApplyFunc func(entry engine.Entry)

// RaftNode is the runtime wrapper around internal/engine.Engine.
type RaftNode struct {
	config RaftConfig
	mu     sync.Mutex

	eng   *engine.Engine
	store *storage.RaftStore
	repl  *replication.Manager
	flags *RuntimeFlags

	// pending holds the input buffer the engine's AppendInputEntries /
	// MoveInputCursorBy commands index into.
	pending []engine.Entry

	peers   map[engine.NodeID]*RaftPeer
	peersMu sync.RWMutex

	applyFn ApplyFunc
	sm      StateMachine

	// appliedSinceSnapshot counts applies toward the snapshot policy.
	appliedSinceSnapshot uint64

	// snapshotRx buffers an inbound chunked transfer per snapshot id;
	// pendingSnapshotData carries the assembled bytes into the
	// InstallSnapshot command's execution.
	snapshotRx          map[string]*snapshotRx
	pendingSnapshotData []byte

	// snapshotTx marks targets with a transfer already in flight.
	snapshotTx map[engine.NodeID]bool

	listener net.Listener
	stopCh   chan struct{}
	resetCh  chan time.Duration
	wg       sync.WaitGroup

	logger *logging.Logger

	onBecomeLeader   func()
	onBecomeFollower func(leaderID engine.NodeID)
	onMembership     func(m engine.EffectiveMembership)
}

// NewRaftNode creates a Raft consensus runtime over a storage engine.
// State is rebuilt from the store; a brand-new node starts empty and
// either Initializes a cluster or is adopted by an existing leader.
func NewRaftNode(config RaftConfig, store storage.StorageEngine) (*RaftNode, error) {
	rs := storage.NewRaftStore(store)
	state, err := rs.GetInitialState(config.NodeID)
	if err != nil {
		return nil, fmt.Errorf("load raft state: %w", err)
	}

	engCfg := engine.Config{
		NodeID:                 config.NodeID,
		MaxPayloadEntries:      config.MaxPayloadEntries,
		MaxInSnapshotLogToKeep: 1000,
		PurgeBatchSize:         256,
	}

	rn := &RaftNode{
		config:     config,
		eng:        engine.New(engCfg, state),
		store:      rs,
		flags:      NewRuntimeFlags(),
		peers:      make(map[engine.NodeID]*RaftPeer),
		snapshotRx: make(map[string]*snapshotRx),
		snapshotTx: make(map[engine.NodeID]bool),
		stopCh:     make(chan struct{}),
		resetCh:    make(chan time.Duration, 1),
		logger:     logging.NewLogger("cluster.raft").With("node_id", config.NodeID.String()),
	}

	rn.repl = replication.NewManager(
		replication.Config{
			MaxPayloadEntries: config.MaxPayloadEntries,
			Interval:          config.HeartbeatInterval,
			LagThreshold:      config.LagThreshold,
		},
		rs,
		&peerTransport{rn: rn},
		replication.Callbacks{
			OnAck:        rn.onReplicationAck,
			OnHigherVote: rn.onReplicationHigherVote,
			OnNeedSnapshot: rn.requestSnapshotTransfer,
		},
	)

	for id, addr := range config.Peers {
		rn.peers[id] = &RaftPeer{ID: id, Addr: addr}
	}

	return rn, nil
}

// Flags exposes the operator kill switches.
func (rn *RaftNode) Flags() *RuntimeFlags { return rn.flags }

// SetApplyFunc installs a plain apply callback, for consumers that
// only observe the committed stream.
func (rn *RaftNode) SetApplyFunc(fn ApplyFunc) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	rn.applyFn = fn
}

// SetStateMachine installs the application state machine. This is what
// enables snapshot building and transfer; without one, a follower past
// the purged log cannot be caught up.
func (rn *RaftNode) SetStateMachine(sm StateMachine) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	rn.sm = sm
}

// Start begins the Raft consensus protocol: the RPC listener, the
// election timer, and whatever role Startup classifies this node as (a
// restarted committed leader re-enters Leading without an election).
func (rn *RaftNode) Start() error {
	addr := fmt.Sprintf(":%d", rn.config.ClusterPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start raft listener: %w", err)
	}
	rn.listener = ln

	rn.mu.Lock()
	rn.eng.Startup()
	rn.drainLocked()
	rn.mu.Unlock()

	rn.logger.Info("raft node started", "addr", addr)

	rn.wg.Add(2)
	go rn.acceptConnections()
	go rn.runElectionTimer()

	return nil
}

// Stop gracefully shuts down the Raft node.
func (rn *RaftNode) Stop() error {
	close(rn.stopCh)
	if rn.listener != nil {
		rn.listener.Close()
	}
	rn.repl.Stop()
	rn.wg.Wait()
	return nil
}

// Initialize bootstraps a brand-new cluster from the given voter set,
// which must include this node.
func (rn *RaftNode) Initialize(voters ...engine.NodeID) error {
	rn.mu.Lock()
	defer rn.mu.Unlock()

	m := engine.NewMembership(engine.NewVoterSet(voters...))
	entry := &engine.MembershipEntry{Config: m}
	rn.pending = []engine.Entry{entry}
	if err := rn.eng.Initialize(entry); err != nil {
		rn.pending = nil
		return err
	}
	rn.drainLocked()
	return nil
}

// IsLeader reports whether this node currently believes it is leader.
func (rn *RaftNode) IsLeader() bool {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.eng.State.ServerState == engine.ServerStateLeader
}

// State returns the current server state.
func (rn *RaftNode) State() engine.ServerState {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.eng.State.ServerState
}

// Term returns the current term.
func (rn *RaftNode) Term() uint64 {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.eng.State.Vote.Term
}

// LeaderHint returns the node the current vote names and its address,
// best effort.
func (rn *RaftNode) LeaderHint() (engine.NodeID, string) {
	rn.mu.Lock()
	id := rn.eng.State.Vote.NodeID
	rn.mu.Unlock()

	rn.peersMu.RLock()
	defer rn.peersMu.RUnlock()
	if p, ok := rn.peers[id]; ok {
		return id, p.Addr
	}
	return id, ""
}

// SetLeaderCallback sets the callback invoked (on its own goroutine)
// when this node becomes leader.
func (rn *RaftNode) SetLeaderCallback(fn func()) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	rn.onBecomeLeader = fn
}

// SetFollowerCallback sets the callback invoked when this node steps
// down or starts following a new leader.
func (rn *RaftNode) SetFollowerCallback(fn func(leaderID engine.NodeID)) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	rn.onBecomeFollower = fn
}

// SetMembershipCallback sets the callback invoked on every effective
// membership change.
func (rn *RaftNode) SetMembershipCallback(fn func(m engine.EffectiveMembership)) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	rn.onMembership = fn
}

// Propose appends a client command to the log. Returns the assigned
// log id, or an error naming the leader to redirect to.
func (rn *RaftNode) Propose(command []byte) (engine.LogID, error) {
	rn.mu.Lock()
	defer rn.mu.Unlock()

	if rn.eng.State.ServerState != engine.ServerStateLeader {
		return engine.LogID{}, fmt.Errorf("not the leader (current vote: %s)", rn.eng.State.Vote)
	}

	entry := &engine.DataEntry{Data: command}
	rn.pending = []engine.Entry{entry}
	rn.eng.LeaderAppendEntries(rn.pending)
	rn.drainLocked()
	return entry.LogID, nil
}

// ProposeMembership proposes a new voter configuration.
func (rn *RaftNode) ProposeMembership(m engine.Membership) (engine.LogID, error) {
	rn.mu.Lock()
	defer rn.mu.Unlock()

	if rn.eng.State.ServerState != engine.ServerStateLeader {
		return engine.LogID{}, fmt.Errorf("not the leader")
	}

	entry := &engine.MembershipEntry{Config: m}
	rn.pending = []engine.Entry{entry}
	rn.eng.LeaderAppendEntries(rn.pending)
	rn.drainLocked()
	return entry.LogID, nil
}

// TryElect campaigns if the operator has not disabled elections and
// the node is not already leading. The failover manager calls this
// when the phi detector condemns the leader.
func (rn *RaftNode) TryElect() {
	if !rn.flags.EnableElect.Load() {
		return
	}
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if !rn.eng.Internal.IsLeading() {
		rn.eng.Elect()
		rn.drainLocked()
	}
}

// drainLocked executes every command the engine queued since the last
// drain, in order. Must be called with rn.mu held.
func (rn *RaftNode) drainLocked() {
	cmds, _ := rn.eng.Output.Drain()
	for _, cmd := range cmds {
		rn.execute(cmd)
	}
}

// execute carries out a single engine Command's side effect. This is
// the runtime's half of the contract in internal/engine's package doc:
// the engine decides, execute does.
func (rn *RaftNode) execute(cmd engine.Command) {
	switch cmd.Kind {
	case engine.CmdSaveVote:
		if err := rn.store.SaveVote(cmd.Vote); err != nil {
			rn.logger.Error("save vote failed", "err", err.Error())
		}

	case engine.CmdAppendInputEntries:
		entries := rn.pending[cmd.Range.Begin:cmd.Range.End]
		if err := rn.store.AppendEntries(entries); err != nil {
			rn.logger.Error("append entries failed", "err", err.Error())
		}

	case engine.CmdAppendBlankLog:
		blank := &engine.BlankEntry{LogID: cmd.LogID}
		if err := rn.store.AppendEntries([]engine.Entry{blank}); err != nil {
			rn.logger.Error("append blank log failed", "err", err.Error())
		}

	case engine.CmdMoveInputCursorBy:
		n := cmd.Range.End - cmd.Range.Begin
		if n > len(rn.pending) {
			n = len(rn.pending)
		}
		rn.pending = rn.pending[n:]

	case engine.CmdUpdateMembership:
		rn.logger.Info("membership updated", "membership", cmd.Membership.String())
		if rn.onMembership != nil {
			go rn.onMembership(cmd.Membership)
		}

	case engine.CmdDeleteConflictLog:
		if err := rn.store.DeleteSince(cmd.Since.Index); err != nil {
			rn.logger.Error("delete conflicting log failed", "err", err.Error())
		}

	case engine.CmdPurgeLog:
		if err := rn.store.PurgeUpto(cmd.Upto); err != nil {
			rn.logger.Error("purge log failed", "err", err.Error())
		}

	case engine.CmdSendVote:
		go rn.broadcastVoteRequest(cmd.VoteReq)

	case engine.CmdReplicateEntries, engine.CmdReplicateCommitted:
		rn.repl.SetLeaderState(rn.eng.State.LastLogID(), rn.eng.State.Committed)
		rn.repl.Notify()

	case engine.CmdUpdateReplicationStreams:
		rn.repl.SetLeaderState(rn.eng.State.LastLogID(), rn.eng.State.Committed)
		rn.repl.UpdateTargets(cmd.Targets)

	case engine.CmdUpdateReplicationMetrics:
		rn.logger.Debug("replication progress", "target", cmd.Target.String(), "matching", cmd.Matching.String())

	case engine.CmdFollowerCommit, engine.CmdLeaderCommit:
		rn.applyRange(cmd.AlreadyCommitted, cmd.Upto)

	case engine.CmdBecomeLeader:
		rn.logger.Info("became leader", "term", fmt.Sprint(rn.eng.State.Vote.Term))
		if rn.onBecomeLeader != nil {
			go rn.onBecomeLeader()
		}

	case engine.CmdQuitLeader:
		rn.logger.Info("stepped down")
		rn.repl.UpdateTargets(nil)
		if rn.onBecomeFollower != nil {
			go rn.onBecomeFollower(rn.eng.State.Vote.NodeID)
		}

	case engine.CmdInstallElectionTimer:
		window := rn.config.ElectionTimeout
		if !cmd.CanBeLeader {
			// A live leader exists; hold back much longer before
			// campaigning against it.
			window *= 2
		}
		select {
		case rn.resetCh <- window:
		default:
		}

	case engine.CmdInstallSnapshot:
		if rn.pendingSnapshotData != nil {
			if err := rn.store.SaveSnapshotData(rn.pendingSnapshotData); err != nil {
				rn.logger.Error("persist snapshot data failed", "err", err.Error())
			}
			if rn.sm != nil {
				if err := rn.sm.Restore(rn.pendingSnapshotData); err != nil {
					rn.logger.Error("state machine restore failed", "err", err.Error())
				}
			}
			rn.pendingSnapshotData = nil
			rn.appliedSinceSnapshot = 0
		}
		if err := rn.store.SaveSnapshotMeta(cmd.SnapshotMeta); err != nil {
			rn.logger.Error("persist snapshot meta failed", "err", err.Error())
		}
		rn.logger.Info("snapshot installed", "meta", cmd.SnapshotMeta.String())

	case engine.CmdCancelSnapshot:
		rn.pendingSnapshotData = nil
		rn.logger.Warn("canceling stale snapshot", "meta", cmd.SnapshotMeta.String())
	}
}

// applyRange feeds (already, upto] to the state machine and records
// the apply watermark.
func (rn *RaftNode) applyRange(already engine.OptionalLogID, upto engine.LogID) {
	begin := uint64(0)
	if already.Valid {
		begin = already.ID.Index + 1
	}
	entries, err := rn.store.EntryRange(begin, upto.Index+1)
	if err != nil {
		rn.logger.Error("read commit range failed", "err", err.Error())
		return
	}
	for _, ent := range entries {
		if rn.sm != nil {
			rn.sm.Apply(ent)
		}
		if rn.applyFn != nil {
			rn.applyFn(ent)
		}
	}
	if err := rn.store.SaveApplied(upto); err != nil {
		rn.logger.Error("save applied watermark failed", "err", err.Error())
	}
	rn.eng.State.LastApplied = engine.SomeLogID(upto)

	rn.appliedSinceSnapshot += uint64(len(entries))
	rn.buildSnapshotLocked(false)
}

// onReplicationAck feeds a follower's acknowledged progress back into
// the engine. Runs on a stream goroutine.
func (rn *RaftNode) onReplicationAck(target engine.NodeID, matching engine.OptionalLogID) {
	rn.mu.Lock()
	rn.eng.UpdateProgress(target, matching)
	rn.drainLocked()
	rn.mu.Unlock()
}

// onReplicationHigherVote handles a follower that outranks us.
func (rn *RaftNode) onReplicationHigherVote(target engine.NodeID, vote engine.Vote) {
	rn.mu.Lock()
	if rej := rn.eng.HandleVoteChange(vote); rej != nil {
		rn.logger.Debug("stale higher-vote report", "from", target.String())
	}
	rn.drainLocked()
	rn.mu.Unlock()
}

// snapshotRx is one inbound transfer's reassembly state.
type snapshotRx struct {
	data []byte
	next uint64
}

// buildSnapshotLocked serializes the state machine and hands the
// coverage to the engine (which decides what log to purge). force
// skips the since-last policy check; the policy path runs after every
// apply. Caller holds rn.mu.
func (rn *RaftNode) buildSnapshotLocked(force bool) {
	if rn.sm == nil {
		return
	}
	if !force && (rn.config.SnapshotThreshold == 0 || rn.appliedSinceSnapshot < rn.config.SnapshotThreshold) {
		return
	}

	applied := rn.eng.State.LastApplied
	if !applied.Valid || applied.LessEqual(rn.eng.State.SnapshotMeta.LastLogID) {
		return
	}

	data, err := rn.sm.Snapshot()
	if err != nil {
		rn.logger.Error("snapshot build failed", "err", err.Error())
		return
	}

	// The membership in force at the apply watermark: the effective one
	// if the log had reached it, else the committed one.
	membership := rn.eng.State.CommittedMembership
	if rn.eng.State.EffectiveMembership.LogID.LessEqual(applied) {
		membership = rn.eng.State.EffectiveMembership
	}

	meta := engine.SnapshotMeta{
		LastLogID:      applied,
		LastMembership: membership,
		SnapshotID:     fmt.Sprintf("snap-%d-%d", applied.ID.LeaderID.Term, applied.ID.Index),
	}

	if err := rn.store.SaveSnapshotData(data); err != nil {
		rn.logger.Error("persist snapshot data failed", "err", err.Error())
		return
	}
	rn.eng.FinishBuildingSnapshot(meta)
	rn.drainLocked()
	rn.appliedSinceSnapshot = 0
	rn.logger.Info("snapshot built", "snapshot_id", meta.SnapshotID, "upto", applied.String())
}

// requestSnapshotTransfer starts shipping the current snapshot to a
// follower the log can no longer serve. Called by the replication
// streams; at most one transfer per target runs at a time.
func (rn *RaftNode) requestSnapshotTransfer(target engine.NodeID) {
	rn.mu.Lock()
	if rn.snapshotTx[target] {
		rn.mu.Unlock()
		return
	}
	rn.snapshotTx[target] = true
	rn.mu.Unlock()

	go rn.sendSnapshot(target)
}

// sendSnapshot ships the snapshot to one follower, chunk by chunk. A
// failed or outranked chunk aborts the transfer; the replication
// stream will ask again if the follower still lags.
func (rn *RaftNode) sendSnapshot(target engine.NodeID) {
	defer func() {
		rn.mu.Lock()
		delete(rn.snapshotTx, target)
		rn.mu.Unlock()
	}()

	addr, ok := rn.peerAddr(target)
	if !ok {
		return
	}

	rn.mu.Lock()
	if !rn.eng.State.SnapshotMeta.LastLogID.Valid {
		// Nothing built yet: cover everything applied so far.
		rn.buildSnapshotLocked(true)
	}
	meta := rn.eng.State.SnapshotMeta
	vote := rn.eng.State.Vote
	// Read the data under the same lock that builds replace it under,
	// so meta and data always describe the same snapshot.
	data, ok, err := rn.store.SnapshotData()
	rn.mu.Unlock()

	if !meta.LastLogID.Valid {
		rn.logger.Warn("no snapshot available for lagging follower", "target", target.String())
		return
	}
	if err != nil || !ok {
		rn.logger.Error("snapshot data unavailable", "target", target.String())
		return
	}

	chunkSize := int(rn.config.SnapshotChunkSize)
	if chunkSize <= 0 {
		chunkSize = 256 * 1024
	}
	logger := rn.logger.With("target", target.String(), "snapshot_id", meta.SnapshotID)
	logger.Info("starting snapshot transfer", "bytes", fmt.Sprint(len(data)))

	for offset := 0; ; {
		end := offset + chunkSize
		if end > len(data) {
			end = len(data)
		}
		done := end == len(data)

		msg := &protocol.InstallSnapshotMessage{
			Vote:       vote,
			LastLogID:  meta.LastLogID,
			Membership: meta.LastMembership,
			SnapshotID: meta.SnapshotID,
			Offset:     uint64(offset),
			Data:       data[offset:end],
			Done:       done,
		}
		msg.Seal()
		payload, err := msg.Encode()
		if err != nil {
			return
		}

		respPayload, sent := roundTripCompressed(addr, protocol.MsgInstallSnapshot, payload, rn.config.SnapshotTimeout)
		if !sent {
			logger.Warn("snapshot chunk send failed, aborting transfer", "offset", fmt.Sprint(offset))
			return
		}
		result, err := protocol.DecodeInstallSnapshotResultMessage(respPayload)
		if err != nil {
			return
		}
		if vote.Less(result.Vote) {
			logger.Info("follower holds a higher vote, aborting transfer", "vote", result.Vote.String())
			rn.mu.Lock()
			rn.eng.HandleVoteChange(result.Vote)
			rn.drainLocked()
			rn.mu.Unlock()
			return
		}

		if done {
			break
		}
		offset = end
	}

	logger.Info("snapshot transfer complete")

	// The follower now matches the snapshot boundary; resume log
	// replication from there.
	rn.repl.RecordMatching(target, meta.LastLogID)
	rn.onReplicationAck(target, meta.LastLogID)
}

// handleInstallSnapshot receives one chunk of a transfer, reassembles
// in order, and installs through the engine once the final chunk
// lands. The reply always carries this node's current vote so a
// deposed leader notices mid-stream.
func (rn *RaftNode) handleInstallSnapshot(conn net.Conn, payload []byte) {
	msg, err := protocol.DecodeInstallSnapshotMessage(payload)
	if err != nil {
		return
	}
	if !msg.VerifyChecksum() {
		// No reply: the sender's round trip fails and the transfer is
		// aborted rather than built on corrupt bytes.
		rn.logger.Warn("snapshot chunk rejected",
			"err", errors.SnapshotChecksumMismatch(msg.SnapshotID, msg.Offset).Error())
		return
	}

	rn.mu.Lock()
	if rej := rn.eng.HandleVoteChange(msg.Vote); rej != nil {
		rn.drainLocked()
		vote := rn.eng.State.Vote
		rn.mu.Unlock()
		respondSnapshotResult(conn, vote)
		return
	}
	rn.drainLocked()

	rx := rn.snapshotRx[msg.SnapshotID]
	if rx == nil || msg.Offset == 0 {
		rx = &snapshotRx{}
		rn.snapshotRx[msg.SnapshotID] = rx
	}
	if msg.Offset != rx.next {
		// Out of order: drop the transfer; the sender restarts it.
		delete(rn.snapshotRx, msg.SnapshotID)
		vote := rn.eng.State.Vote
		rn.mu.Unlock()
		respondSnapshotResult(conn, vote)
		return
	}
	rx.data = append(rx.data, msg.Data...)
	rx.next += uint64(len(msg.Data))

	if msg.Done {
		delete(rn.snapshotRx, msg.SnapshotID)
		rn.pendingSnapshotData = rx.data
		rn.eng.InstallSnapshot(engine.SnapshotMeta{
			LastLogID:      msg.LastLogID,
			LastMembership: msg.Membership,
			SnapshotID:     msg.SnapshotID,
		})
		rn.drainLocked()
		rn.pendingSnapshotData = nil
	}

	vote := rn.eng.State.Vote
	rn.mu.Unlock()
	respondSnapshotResult(conn, vote)
}

func respondSnapshotResult(conn net.Conn, vote engine.Vote) {
	out := &protocol.InstallSnapshotResultMessage{Vote: vote}
	data, err := out.Encode()
	if err != nil {
		return
	}
	protocol.WriteMessage(conn, protocol.MsgInstallSnapshotResult, data)
}

// runElectionTimer runs the election-timeout loop: if no
// InstallElectionTimer reset arrives before the window expires, and
// this node is not already leading, it campaigns.
func (rn *RaftNode) runElectionTimer() {
	defer rn.wg.Done()

	window := rn.config.ElectionTimeout
	for {
		select {
		case <-rn.stopCh:
			return
		case w := <-rn.resetCh:
			window = w
			continue
		case <-time.After(randomizedTimeout(window)):
			if !rn.flags.EnableTick.Load() || !rn.flags.EnableElect.Load() {
				continue
			}
			rn.mu.Lock()
			if !rn.eng.Internal.IsLeading() {
				rn.eng.Elect()
				rn.drainLocked()
			}
			rn.mu.Unlock()
		}
	}
}

func randomizedTimeout(base time.Duration) time.Duration {
	return base + time.Duration(nowJitter()%int64(base))
}

// nowJitter derives a pseudo-random jitter component from the
// wall clock's nanoseconds rather than math/rand, so election timers don't all
// share a seed across nodes started in the same millisecond.
func nowJitter() int64 {
	return time.Now().UnixNano()
}

func (rn *RaftNode) peerAddr(id engine.NodeID) (string, bool) {
	rn.peersMu.RLock()
	defer rn.peersMu.RUnlock()
	p, ok := rn.peers[id]
	if !ok {
		return "", false
	}
	return p.Addr, true
}

func (rn *RaftNode) peerList() []*RaftPeer {
	rn.peersMu.RLock()
	defer rn.peersMu.RUnlock()
	out := make([]*RaftPeer, 0, len(rn.peers))
	for _, p := range rn.peers {
		out = append(out, p)
	}
	return out
}

// broadcastVoteRequest sends req to every peer and feeds replies back
// into the engine via HandleVoteResp.
func (rn *RaftNode) broadcastVoteRequest(req engine.VoteRequest) {
	msg := &protocol.VoteRequestMessage{Vote: req.Vote, LastLogID: req.LastLogID}
	payload, err := msg.Encode()
	if err != nil {
		return
	}

	for _, peer := range rn.peerList() {
		go func(p *RaftPeer) {
			respPayload, ok := roundTrip(p.Addr, protocol.MsgVoteRequest, payload, time.Second)
			if !ok {
				return
			}
			resp, err := protocol.DecodeVoteResponseMessage(respPayload)
			if err != nil {
				return
			}
			rn.mu.Lock()
			rn.eng.HandleVoteResp(p.ID, engine.VoteResponse{
				Vote:        resp.Vote,
				VoteGranted: resp.VoteGranted,
				LastLogID:   resp.LastLogID,
			})
			rn.drainLocked()
			rn.mu.Unlock()
		}(peer)
	}
}

// peerTransport adapts the per-connection protocol round trip to the
// replication manager's Transport interface.
type peerTransport struct {
	rn *RaftNode
}

func (t *peerTransport) AppendEntries(ctx context.Context, target engine.NodeID, prev engine.OptionalLogID, entries []engine.Entry, committed engine.OptionalLogID) (engine.AppendEntriesResponse, error) {
	addr, ok := t.rn.peerAddr(target)
	if !ok {
		return engine.AppendEntriesResponse{}, fmt.Errorf("unknown peer %s", target)
	}

	t.rn.mu.Lock()
	vote := t.rn.eng.State.Vote
	t.rn.mu.Unlock()

	wire := make([]protocol.WireEntry, 0, len(entries))
	for _, ent := range entries {
		wire = append(wire, protocol.FromEngineEntry(ent))
	}
	msg := &protocol.AppendEntriesMessage{
		Vote:            vote,
		PrevLogID:       prev,
		Entries:         wire,
		LeaderCommitted: committed,
	}
	payload, err := msg.Encode()
	if err != nil {
		return engine.AppendEntriesResponse{}, err
	}

	deadline := 2 * time.Second
	if d, ok := ctx.Deadline(); ok {
		deadline = time.Until(d)
	}
	// Replication batches can be bulky; they travel compressed.
	respPayload, okRT := roundTripCompressed(addr, protocol.MsgAppendEntries, payload, deadline)
	if !okRT {
		return engine.AppendEntriesResponse{}, fmt.Errorf("peer %s unreachable", target)
	}
	result, err := protocol.DecodeAppendEntriesResultMessage(respPayload)
	if err != nil {
		return engine.AppendEntriesResponse{}, err
	}
	return engine.AppendEntriesResponse{
		Outcome:    engine.AppendEntriesOutcome(result.Outcome),
		HigherVote: result.HigherVote,
	}, nil
}

// roundTrip performs one request/response exchange on a fresh
// connection using the protocol framing.
func roundTrip(addr string, msgType protocol.MessageType, payload []byte, timeout time.Duration) ([]byte, bool) {
	return doRoundTrip(addr, msgType, payload, timeout, false)
}

// roundTripCompressed is roundTrip with the request payload sealed by
// the wire compressor; used for the bulk paths (append-entries
// batches, snapshot chunks).
func roundTripCompressed(addr string, msgType protocol.MessageType, payload []byte, timeout time.Duration) ([]byte, bool) {
	return doRoundTrip(addr, msgType, payload, timeout, true)
}

func doRoundTrip(addr string, msgType protocol.MessageType, payload []byte, timeout time.Duration, compress bool) ([]byte, bool) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, false
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	if compress {
		err = protocol.WriteMessageCompressed(conn, msgType, payload)
	} else {
		err = protocol.WriteMessage(conn, msgType, payload)
	}
	if err != nil {
		return nil, false
	}

	resp, err := protocol.ReadMessage(conn)
	if err != nil {
		return nil, false
	}
	decoded, err := resp.DecodedPayload()
	if err != nil {
		return nil, false
	}
	return decoded, true
}

// acceptConnections handles incoming Raft RPC connections.
func (rn *RaftNode) acceptConnections() {
	defer rn.wg.Done()

	for {
		select {
		case <-rn.stopCh:
			return
		default:
		}

		if tl, ok := rn.listener.(*net.TCPListener); ok {
			tl.SetDeadline(time.Now().Add(1 * time.Second))
		}
		conn, err := rn.listener.Accept()
		if err != nil {
			continue
		}

		go rn.handleConnection(conn)
	}
}

func (rn *RaftNode) handleConnection(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	msg, err := protocol.ReadMessage(conn)
	if err != nil {
		return
	}
	payload, err := msg.DecodedPayload()
	if err != nil {
		return
	}

	switch msg.Header.Type {
	case protocol.MsgVoteRequest:
		rn.handleVoteRequest(conn, payload)
	case protocol.MsgAppendEntries:
		rn.handleAppendEntries(conn, payload)
	case protocol.MsgInstallSnapshot:
		rn.handleInstallSnapshot(conn, payload)
	case protocol.MsgPropose:
		rn.handlePropose(conn, payload)
	case protocol.MsgStatus:
		rn.handleStatus(conn)
	case protocol.MsgPing:
		protocol.WriteMessage(conn, protocol.MsgPong, nil)
	}
}

func (rn *RaftNode) handleVoteRequest(conn net.Conn, payload []byte) {
	req, err := protocol.DecodeVoteRequestMessage(payload)
	if err != nil {
		return
	}

	rn.mu.Lock()
	resp := rn.eng.HandleVoteReq(engine.VoteRequest{Vote: req.Vote, LastLogID: req.LastLogID})
	rn.drainLocked()
	rn.mu.Unlock()

	out := &protocol.VoteResponseMessage{
		Vote:        resp.Vote,
		VoteGranted: resp.VoteGranted,
		LastLogID:   resp.LastLogID,
	}
	data, err := out.Encode()
	if err != nil {
		return
	}
	protocol.WriteMessage(conn, protocol.MsgVoteResponse, data)
}

func (rn *RaftNode) handleAppendEntries(conn net.Conn, payload []byte) {
	req, err := protocol.DecodeAppendEntriesMessage(payload)
	if err != nil {
		return
	}

	entries := make([]engine.Entry, 0, len(req.Entries))
	for _, w := range req.Entries {
		entries = append(entries, w.ToEngineEntry())
	}

	rn.mu.Lock()
	rn.pending = entries
	resp := rn.eng.HandleAppendEntriesReq(req.Vote, req.PrevLogID, entries, req.LeaderCommitted)
	rn.drainLocked()
	rn.mu.Unlock()

	out := &protocol.AppendEntriesResultMessage{
		Outcome:    byte(resp.Outcome),
		HigherVote: resp.HigherVote,
	}
	data, err := out.Encode()
	if err != nil {
		return
	}
	protocol.WriteMessage(conn, protocol.MsgAppendEntriesResult, data)
}

func (rn *RaftNode) handlePropose(conn net.Conn, payload []byte) {
	req, err := protocol.DecodeProposeMessage(payload)
	if err != nil {
		return
	}

	result := &protocol.ProposeResultMessage{}
	if id, err := rn.Propose(req.Command); err != nil {
		hintID, hintAddr := rn.LeaderHint()
		result.LeaderHint = uint64(hintID)
		result.LeaderAddr = hintAddr
	} else {
		result.Accepted = true
		result.LogID = engine.SomeLogID(id)
	}

	data, err := result.Encode()
	if err != nil {
		return
	}
	protocol.WriteMessage(conn, protocol.MsgProposeResult, data)
}

func (rn *RaftNode) handleStatus(conn net.Conn) {
	rn.mu.Lock()
	out := &protocol.StatusResultMessage{
		NodeID:    uint64(rn.config.NodeID),
		State:     rn.eng.State.ServerState.String(),
		Term:      rn.eng.State.Vote.Term,
		LastLogID: rn.eng.State.LastLogID(),
		Committed: rn.eng.State.Committed,
	}
	rn.mu.Unlock()

	data, err := out.Encode()
	if err != nil {
		return
	}
	protocol.WriteMessage(conn, protocol.MsgStatus, data)
}

// AddPeer adds a peer endpoint for vote and replication traffic.
func (rn *RaftNode) AddPeer(id engine.NodeID, addr string) {
	rn.peersMu.Lock()
	defer rn.peersMu.Unlock()
	rn.peers[id] = &RaftPeer{ID: id, Addr: addr}
}

// RemovePeer forgets a peer endpoint.
func (rn *RaftNode) RemovePeer(id engine.NodeID) {
	rn.peersMu.Lock()
	defer rn.peersMu.Unlock()
	delete(rn.peers, id)
}

// GetClusterStatus returns a snapshot of the current cluster status.
func (rn *RaftNode) GetClusterStatus() map[string]interface{} {
	rn.mu.Lock()
	state := rn.eng.State
	snap := map[string]interface{}{
		"node_id":      rn.config.NodeID.String(),
		"state":        state.ServerState.String(),
		"term":         state.Vote.Term,
		"committed":    state.Committed.String(),
		"last_applied": state.LastApplied.String(),
		"last_log_id":  state.LastLogID().String(),
		"membership":   state.EffectiveMembership.String(),
	}
	rn.mu.Unlock()

	rn.peersMu.RLock()
	peerList := make([]string, 0, len(rn.peers))
	for _, p := range rn.peers {
		peerList = append(peerList, p.Addr)
	}
	rn.peersMu.RUnlock()
	snap["peers"] = peerList
	return snap
}
