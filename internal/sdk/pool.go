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
Session Pool Implementation
===========================

This file provides a session pool for the FlyRaft client. Pooling is
what production applications want:

  - Limit the number of concurrent sessions
  - Reuse leader-tracking state (a fresh session has to rediscover the
    leader; a pooled one already knows)
  - Handle session failures gracefully

Pool Configuration:
===================

  MinSessions:    Carried in the config; the pool does not pre-open
                  or keep a minimum of idle sessions
  MaxSessions:    Maximum total sessions allowed
  MaxIdleTime:    Maximum time a session can sit idle
  AcquireTimeout: Maximum time to wait for a session

Usage:
======

  pool := sdk.NewSessionPool(config)
  sess, err := pool.Acquire(ctx)
  defer pool.Release(sess)
  // use sess...
*/
package sdk

import (
	"context"
	"sync"
	"time"
)

// PoolConfig configures the session pool.
type PoolConfig struct {
	ConnectionConfig *ConnectionConfig

	MinSessions int // Not used by the pool (default: 1)
	MaxSessions int // Maximum total sessions (default: 10)

	MaxIdleTime    time.Duration // Max idle time before closing (default: 5m)
	AcquireTimeout time.Duration // Max time to acquire a session (default: 30s)
}

// DefaultPoolConfig returns a pool configuration with sensible
// defaults.
func DefaultPoolConfig(addrs ...string) *PoolConfig {
	return &PoolConfig{
		ConnectionConfig: NewConnectionConfig(addrs...),
		MinSessions:      1,
		MaxSessions:      10,
		MaxIdleTime:      5 * time.Minute,
		AcquireTimeout:   30 * time.Second,
	}
}

// pooledSession tracks one session's pool bookkeeping.
type pooledSession struct {
	session    *Session
	lastUsedAt time.Time
}

// SessionPool manages reusable client sessions.
type SessionPool struct {
	mu     sync.Mutex
	config *PoolConfig

	idle   []*pooledSession
	total  int
	closed bool

	// waiters receive a session released while the pool was empty.
	waiters chan *Session
}

// NewSessionPool creates a pool; sessions are opened lazily.
func NewSessionPool(config *PoolConfig) *SessionPool {
	return &SessionPool{
		config:  config,
		waiters: make(chan *Session),
	}
}

// Acquire returns a session, opening one if the pool has room, or
// waiting for a release otherwise.
func (p *SessionPool) Acquire(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, NewConnectionError("pool is closed", nil)
	}

	// Reuse the freshest idle session.
	for len(p.idle) > 0 {
		ps := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if p.config.MaxIdleTime > 0 && time.Since(ps.lastUsedAt) > p.config.MaxIdleTime {
			ps.session.Close()
			p.total--
			continue
		}
		p.mu.Unlock()
		return ps.session, nil
	}

	if p.total < p.config.MaxSessions {
		p.total++
		p.mu.Unlock()
		sess, err := Connect(p.config.ConnectionConfig)
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			return nil, err
		}
		return sess, nil
	}
	p.mu.Unlock()

	// Pool exhausted: wait for a release.
	timeout := p.config.AcquireTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case sess := <-p.waiters:
		return sess, nil
	case <-time.After(timeout):
		return nil, NewTimeoutError("timed out waiting for a pooled session")
	case <-ctx.Done():
		return nil, NewTimeoutError(ctx.Err().Error())
	}
}

// Release returns a session to the pool.
func (p *SessionPool) Release(sess *Session) {
	if sess == nil {
		return
	}

	// Hand off directly to a waiter when one is blocked.
	select {
	case p.waiters <- sess:
		return
	default:
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		sess.Close()
		p.total--
		return
	}
	p.idle = append(p.idle, &pooledSession{session: sess, lastUsedAt: time.Now()})
}

// Discard drops a broken session instead of returning it.
func (p *SessionPool) Discard(sess *Session) {
	if sess == nil {
		return
	}
	sess.Close()
	p.mu.Lock()
	p.total--
	p.mu.Unlock()
}

// Stats reports pool occupancy.
func (p *SessionPool) Stats() (idle, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle), p.total
}

// Close closes every idle session and refuses further acquires.
func (p *SessionPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for _, ps := range p.idle {
		ps.session.Close()
		p.total--
	}
	p.idle = nil
}
