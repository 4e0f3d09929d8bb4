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
Package disk provides asynchronous disk I/O for FlyRaft.

Async I/O Overview:
===================

Snapshot transfers and log compaction move large byte ranges that must
not stall the consensus runtime's reactor loop. This module pushes that
work onto a worker pool:

- Non-blocking read/write operations against one file
- I/O request queueing with completion callbacks
- Background sync

Architecture:
=============

1. Requests are submitted to a queue
2. Worker goroutines process requests
3. Callbacks notify completion

Request Types:
==============

- Read: async block read with callback
- Write: async block write with callback
- Sync: force data to disk
*/
package disk

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// BlockID identifies one fixed-size block within the file.
type BlockID uint64

// BlockSize is the unit async reads and writes operate on.
const BlockSize = 64 * 1024

// I/O operation types
type IOOpType int

const (
	IORead IOOpType = iota
	IOWrite
	IOSync
)

// Errors
var (
	ErrIOClosed    = errors.New("async io is closed")
	ErrIOQueueFull = errors.New("async io queue is full")
)

// IORequest represents an async I/O request
type IORequest struct {
	Type        IOOpType
	Block       BlockID
	Data        []byte
	Callback    func([]byte, error)
	submittedAt time.Time
}

// AsyncIOConfig holds configuration for async I/O
type AsyncIOConfig struct {
	NumWorkers int `json:"num_workers"`
	QueueSize  int `json:"queue_size"`
}

// DefaultAsyncIOConfig returns sensible defaults
func DefaultAsyncIOConfig() AsyncIOConfig {
	return AsyncIOConfig{
		NumWorkers: 4,
		QueueSize:  1024,
	}
}

// AsyncIO provides asynchronous block I/O over one file
type AsyncIO struct {
	config AsyncIOConfig
	file   *os.File

	requestCh chan *IORequest

	wg     sync.WaitGroup
	stopCh chan struct{}
	closed atomic.Bool

	// Statistics
	reads        atomic.Uint64
	writes       atomic.Uint64
	syncs        atomic.Uint64
	pending      atomic.Int64
	totalLatency atomic.Uint64 // nanoseconds
}

// NewAsyncIO creates a new async I/O manager
func NewAsyncIO(file *os.File, config AsyncIOConfig) *AsyncIO {
	aio := &AsyncIO{
		config:    config,
		file:      file,
		requestCh: make(chan *IORequest, config.QueueSize),
		stopCh:    make(chan struct{}),
	}

	for i := 0; i < config.NumWorkers; i++ {
		aio.wg.Add(1)
		go aio.worker()
	}

	return aio
}

// Submit queues a request. The callback runs on a worker goroutine.
func (aio *AsyncIO) Submit(req *IORequest) error {
	if aio.closed.Load() {
		return ErrIOClosed
	}
	req.submittedAt = time.Now()
	select {
	case aio.requestCh <- req:
		aio.pending.Add(1)
		return nil
	default:
		return ErrIOQueueFull
	}
}

// ReadBlock reads one block asynchronously.
func (aio *AsyncIO) ReadBlock(block BlockID, cb func([]byte, error)) error {
	return aio.Submit(&IORequest{Type: IORead, Block: block, Callback: cb})
}

// WriteBlock writes data at the block's offset asynchronously.
func (aio *AsyncIO) WriteBlock(block BlockID, data []byte, cb func([]byte, error)) error {
	return aio.Submit(&IORequest{Type: IOWrite, Block: block, Data: data, Callback: cb})
}

// Sync asks a worker to fsync; the callback fires when it lands.
func (aio *AsyncIO) Sync(cb func([]byte, error)) error {
	return aio.Submit(&IORequest{Type: IOSync, Callback: cb})
}

func (aio *AsyncIO) worker() {
	defer aio.wg.Done()

	for {
		select {
		case <-aio.stopCh:
			// Drain what is already queued so no callback is dropped.
			for {
				select {
				case req := <-aio.requestCh:
					aio.execute(req)
				default:
					return
				}
			}
		case req := <-aio.requestCh:
			aio.execute(req)
		}
	}
}

func (aio *AsyncIO) execute(req *IORequest) {
	defer aio.pending.Add(-1)

	var data []byte
	var err error

	switch req.Type {
	case IORead:
		aio.reads.Add(1)
		data = make([]byte, BlockSize)
		var n int
		n, err = aio.file.ReadAt(data, int64(req.Block)*BlockSize)
		data = data[:n]
		if err != nil && n > 0 {
			// A short read at the file's tail is a complete block for
			// the caller.
			err = nil
		}
	case IOWrite:
		aio.writes.Add(1)
		_, err = aio.file.WriteAt(req.Data, int64(req.Block)*BlockSize)
	case IOSync:
		aio.syncs.Add(1)
		err = aio.file.Sync()
	}

	aio.totalLatency.Add(uint64(time.Since(req.submittedAt)))

	if req.Callback != nil {
		req.Callback(data, err)
	}
}

// Stats reports counters since start.
type Stats struct {
	Reads   uint64
	Writes  uint64
	Syncs   uint64
	Pending int64
}

// Stats returns a snapshot of the I/O counters.
func (aio *AsyncIO) Stats() Stats {
	return Stats{
		Reads:   aio.reads.Load(),
		Writes:  aio.writes.Load(),
		Syncs:   aio.syncs.Load(),
		Pending: aio.pending.Load(),
	}
}

// Close shuts down the async I/O manager, draining queued requests.
func (aio *AsyncIO) Close() error {
	if !aio.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(aio.stopCh)
	aio.wg.Wait()
	return nil
}
