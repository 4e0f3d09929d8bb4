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
Connection multiplexing for FlyRaft peer links.

A leader keeps one TCP connection per peer but runs several logical
streams over it: the append-entries replication stream, the snapshot
transfer stream, and ad-hoc vote traffic. Multiplexing keeps those from
head-of-line blocking each other -- a bulky snapshot chunk must not
delay a heartbeat.

Frame Format:
=============

Multiplexed frames add a stream ID to the standard protocol:

  +--------+--------+--------+--------+--------+--------+--------+--------+...
  | Magic  | Version| MsgType| Flags  | StreamID (4B)   |    Length (4B)   | Payload...
  +--------+--------+--------+--------+--------+--------+--------+--------+...

Stream Lifecycle:
=================

1. Either side opens a stream with a unique ID (initiator odd, acceptor even)
2. Messages are tagged with the stream ID
3. The read loop routes inbound frames to the owning stream
4. Either side can close a stream; the connection outlives its streams
*/
package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// Multiplexing constants
const (
	MultiplexHeaderSize = 12 // Magic + Version + Type + Flags + StreamID + Length
	MaxStreams          = 65536
)

// Stream states
const (
	StreamOpen uint32 = iota
	StreamHalfClosed
	StreamClosed
)

// Errors
var (
	ErrStreamClosed    = errors.New("stream is closed")
	ErrTooManyStreams  = errors.New("too many streams")
	ErrStreamNotFound  = errors.New("stream not found")
	ErrInvalidStreamID = errors.New("invalid stream ID")
)

// MultiplexFrame represents a multiplexed message frame
type MultiplexFrame struct {
	Header   Header
	StreamID uint32
	Payload  []byte
}

// Stream represents a logical stream within a multiplexed connection
type Stream struct {
	ID       uint32
	state    uint32
	recvChan chan *MultiplexFrame
	done     chan struct{}
	conn     *MultiplexConn
}

// MultiplexConn manages a multiplexed connection
type MultiplexConn struct {
	conn       io.ReadWriteCloser
	mu         sync.RWMutex
	streams    map[uint32]*Stream
	nextID     uint32
	isClient   bool
	closed     atomic.Bool
	closeChan  chan struct{}
	writeMu    sync.Mutex
	bufferPool *BufferPool

	// accepted receives streams the remote side opened.
	accepted chan *Stream
}

// NewMultiplexConn creates a new multiplexed connection
func NewMultiplexConn(conn io.ReadWriteCloser, isClient bool) *MultiplexConn {
	mc := &MultiplexConn{
		conn:       conn,
		streams:    make(map[uint32]*Stream),
		isClient:   isClient,
		closeChan:  make(chan struct{}),
		bufferPool: DefaultBufferPool,
		accepted:   make(chan *Stream, 16),
	}

	// Client uses odd stream IDs, server uses even
	if isClient {
		mc.nextID = 1
	} else {
		mc.nextID = 2
	}

	// Start read loop
	go mc.readLoop()

	return mc
}

// OpenStream opens a new stream
func (mc *MultiplexConn) OpenStream() (*Stream, error) {
	if mc.closed.Load() {
		return nil, ErrStreamClosed
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if len(mc.streams) >= MaxStreams {
		return nil, ErrTooManyStreams
	}

	streamID := mc.nextID
	mc.nextID += 2 // Increment by 2 to maintain odd/even

	stream := &Stream{
		ID:       streamID,
		state:    StreamOpen,
		recvChan: make(chan *MultiplexFrame, 64),
		done:     make(chan struct{}),
		conn:     mc,
	}

	mc.streams[streamID] = stream
	return stream, nil
}

// AcceptStream blocks until the remote side opens a stream, or the
// connection closes.
func (mc *MultiplexConn) AcceptStream() (*Stream, error) {
	select {
	case s := <-mc.accepted:
		return s, nil
	case <-mc.closeChan:
		return nil, ErrStreamClosed
	}
}

// Close tears down the connection and every stream on it.
func (mc *MultiplexConn) Close() error {
	if !mc.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(mc.closeChan)

	mc.mu.Lock()
	for _, s := range mc.streams {
		s.closeLocal()
	}
	mc.streams = make(map[uint32]*Stream)
	mc.mu.Unlock()

	return mc.conn.Close()
}

// readLoop routes inbound frames to their streams. A frame for an
// unknown stream ID opened by the remote side registers a fresh stream
// and hands it to AcceptStream.
func (mc *MultiplexConn) readLoop() {
	defer mc.Close()

	header := make([]byte, MultiplexHeaderSize)
	for {
		if _, err := io.ReadFull(mc.conn, header); err != nil {
			return
		}

		h := Header{
			Magic:   header[0],
			Version: header[1],
			Type:    MessageType(header[2]),
			Flags:   MessageFlag(header[3]),
			Length:  binary.BigEndian.Uint32(header[8:]),
		}
		streamID := binary.BigEndian.Uint32(header[4:8])

		if h.Magic != MagicByte || h.Version != ProtocolVersion || h.Length > MaxMessageSize {
			return
		}

		var payload []byte
		if h.Length > 0 {
			payload = make([]byte, h.Length)
			if _, err := io.ReadFull(mc.conn, payload); err != nil {
				return
			}
		}

		frame := &MultiplexFrame{Header: h, StreamID: streamID, Payload: payload}

		mc.mu.Lock()
		stream, ok := mc.streams[streamID]
		if !ok {
			// Remote-initiated stream: register and surface it.
			stream = &Stream{
				ID:       streamID,
				state:    StreamOpen,
				recvChan: make(chan *MultiplexFrame, 64),
				done:     make(chan struct{}),
				conn:     mc,
			}
			mc.streams[streamID] = stream
			select {
			case mc.accepted <- stream:
			default:
				// Nobody accepting; drop the stream rather than block
				// the read loop.
				delete(mc.streams, streamID)
				stream = nil
			}
		}
		mc.mu.Unlock()

		if stream == nil {
			continue
		}
		select {
		case stream.recvChan <- frame:
		case <-stream.done:
		case <-mc.closeChan:
			return
		}
	}
}

// writeFrame serializes one frame onto the shared connection.
func (mc *MultiplexConn) writeFrame(streamID uint32, msgType MessageType, flags MessageFlag, payload []byte) error {
	if mc.closed.Load() {
		return ErrStreamClosed
	}

	mc.writeMu.Lock()
	defer mc.writeMu.Unlock()

	header := mc.bufferPool.Get(MultiplexHeaderSize)
	defer mc.bufferPool.Put(header)

	header[0] = MagicByte
	header[1] = ProtocolVersion
	header[2] = byte(msgType)
	header[3] = byte(flags)
	binary.BigEndian.PutUint32(header[4:8], streamID)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(payload)))

	if _, err := mc.conn.Write(header[:MultiplexHeaderSize]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := mc.conn.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// Send writes one message on the stream.
func (s *Stream) Send(msgType MessageType, payload []byte) error {
	if atomic.LoadUint32(&s.state) != StreamOpen {
		return ErrStreamClosed
	}
	return s.conn.writeFrame(s.ID, msgType, FlagNone, payload)
}

// Recv blocks for the next inbound frame on the stream.
func (s *Stream) Recv() (*MultiplexFrame, error) {
	select {
	case f := <-s.recvChan:
		return f, nil
	case <-s.done:
		return nil, ErrStreamClosed
	case <-s.conn.closeChan:
		return nil, ErrStreamClosed
	}
}

// Close removes the stream from its connection. The connection itself
// stays up for the other streams.
func (s *Stream) Close() error {
	s.conn.mu.Lock()
	delete(s.conn.streams, s.ID)
	s.conn.mu.Unlock()
	s.closeLocal()
	return nil
}

func (s *Stream) closeLocal() {
	if atomic.CompareAndSwapUint32(&s.state, StreamOpen, StreamClosed) {
		close(s.done)
	}
}
