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

package sdk

import (
	"net"
	"sync"
	"time"

	"flyraft/internal/protocol"
)

// Session is one client's view of the cluster: a current preferred
// node (the last known leader) plus the full address list to fall back
// on. Sessions are safe for concurrent use; each request opens its own
// connection, so a slow proposal never blocks a status probe.
type Session struct {
	ID     string
	config *ConnectionConfig

	mu         sync.Mutex
	leaderAddr string
	closed     bool
}

// Connect builds a session over the configured addresses and verifies
// at least one node answers.
func Connect(config *ConnectionConfig) (*Session, error) {
	s := &Session{ID: GenerateSessionID(), config: config}
	for _, addr := range config.Addrs {
		if _, err := s.status(addr); err == nil {
			return s, nil
		}
	}
	return nil, NewConnectionError("no configured node is reachable", nil)
}

// Close marks the session closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Propose submits one command and returns its assigned log id. A
// not-leader answer is chased through its hint up to MaxRedirects
// times; a cluster mid-election surfaces as a retryable NoLeader
// error.
func (s *Session) Propose(command []byte) (*ProposeResult, error) {
	start := time.Now()

	addrs := s.candidateAddrs()
	redirects := 0

	for i := 0; i < len(addrs); i++ {
		addr := addrs[i]
		result, err := s.proposeTo(addr, command)
		if err != nil {
			continue // next candidate
		}

		if result.Accepted {
			s.setLeader(addr)
			return &ProposeResult{
				LogID:    result.LogID.ID,
				Duration: time.Since(start),
			}, nil
		}

		if result.LeaderAddr != "" && redirects < s.config.MaxRedirects {
			redirects++
			// Chase the hint next, once.
			addrs = append(addrs[:i+1], result.LeaderAddr)
			time.Sleep(s.config.RetryBackoff)
			continue
		}
	}

	return nil, NewNoLeaderError()
}

// Status probes the session's preferred node.
func (s *Session) Status() (*NodeStatus, error) {
	for _, addr := range s.candidateAddrs() {
		st, err := s.status(addr)
		if err == nil {
			return st, nil
		}
	}
	return nil, NewConnectionError("no node answered a status probe", nil)
}

// ClusterStatus probes every configured node.
func (s *Session) ClusterStatus() []NodeStatus {
	var out []NodeStatus
	for _, addr := range s.config.Addrs {
		if st, err := s.status(addr); err == nil {
			out = append(out, *st)
		}
	}
	return out
}

// Leader returns the current leader's status, if any node reports one.
func (s *Session) Leader() (*NodeStatus, error) {
	for _, st := range s.ClusterStatus() {
		if st.IsLeader() {
			st := st
			s.setLeader(st.Addr)
			return &st, nil
		}
	}
	return nil, NewNoLeaderError()
}

// Ping round-trips a keep-alive against the preferred node.
func (s *Session) Ping() error {
	addrs := s.candidateAddrs()
	for _, addr := range addrs {
		conn, err := s.dial(addr)
		if err != nil {
			continue
		}
		err = protocol.WriteMessage(conn, protocol.MsgPing, nil)
		if err == nil {
			_, err = protocol.ReadMessage(conn)
		}
		conn.Close()
		if err == nil {
			return nil
		}
	}
	return NewConnectionError("ping failed against every node", nil)
}

func (s *Session) proposeTo(addr string, command []byte) (*protocol.ProposeResultMessage, error) {
	msg := &protocol.ProposeMessage{Command: command}
	payload, err := msg.Encode()
	if err != nil {
		return nil, NewProtocolError("encode propose", err)
	}

	respPayload, err := s.roundTrip(addr, protocol.MsgPropose, payload)
	if err != nil {
		return nil, err
	}
	result, err := protocol.DecodeProposeResultMessage(respPayload)
	if err != nil {
		return nil, NewProtocolError("decode propose result", err)
	}
	return result, nil
}

func (s *Session) status(addr string) (*NodeStatus, error) {
	respPayload, err := s.roundTrip(addr, protocol.MsgStatus, nil)
	if err != nil {
		return nil, err
	}
	result, err := protocol.DecodeStatusResultMessage(respPayload)
	if err != nil {
		return nil, NewProtocolError("decode status result", err)
	}
	return &NodeStatus{
		NodeID:    result.NodeID,
		Addr:      addr,
		State:     result.State,
		Term:      result.Term,
		LastLogID: result.LastLogID,
		Committed: result.Committed,
	}, nil
}

func (s *Session) roundTrip(addr string, msgType protocol.MessageType, payload []byte) ([]byte, error) {
	conn, err := s.dial(addr)
	if err != nil {
		return nil, NewConnectionError("dial "+addr, err)
	}
	defer conn.Close()

	if err := protocol.WriteMessage(conn, msgType, payload); err != nil {
		return nil, NewConnectionError("write to "+addr, err)
	}
	resp, err := protocol.ReadMessage(conn)
	if err != nil {
		return nil, NewConnectionError("read from "+addr, err)
	}
	decoded, err := resp.DecodedPayload()
	if err != nil {
		return nil, NewProtocolError("decode frame from "+addr, err)
	}
	return decoded, nil
}

func (s *Session) dial(addr string) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, s.config.DialTimeout)
	if err != nil {
		return nil, err
	}
	conn.SetDeadline(time.Now().Add(s.config.RequestTimeout))
	return conn, nil
}

// candidateAddrs returns the preferred leader first, then the rest.
func (s *Session) candidateAddrs() []string {
	s.mu.Lock()
	leader := s.leaderAddr
	s.mu.Unlock()

	if leader == "" {
		return append([]string{}, s.config.Addrs...)
	}
	out := []string{leader}
	for _, a := range s.config.Addrs {
		if a != leader {
			out = append(out, a)
		}
	}
	return out
}

func (s *Session) setLeader(addr string) {
	s.mu.Lock()
	s.leaderAddr = addr
	s.mu.Unlock()
}
