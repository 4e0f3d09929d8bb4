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

package protocol

import (
	"io"
	"sync"

	"flyraft/internal/compression"
)

// The wire compressor seals bulk payloads -- replication batches and
// snapshot chunks -- before framing. FlagCompressed on the header
// marks a sealed payload; the compressor's own envelope records the
// algorithm, so the receiver needs no out-of-band agreement. Payloads
// below the codec's MinSize are stored as-is inside the envelope
// rather than paying compression overhead for nothing.
var (
	wireMu         sync.RWMutex
	wireCompressor = compression.NewCompressor(compression.DefaultConfig())
)

// SetWireCompression replaces the codec used for FlagCompressed
// frames. Both ends of a link decompress by the envelope's recorded
// algorithm, so nodes with different configured codecs interoperate.
func SetWireCompression(cfg compression.Config) {
	wireMu.Lock()
	defer wireMu.Unlock()
	wireCompressor = compression.NewCompressor(cfg)
}

func getWireCompressor() *compression.Compressor {
	wireMu.RLock()
	defer wireMu.RUnlock()
	return wireCompressor
}

// WriteMessageCompressed frames payload like WriteMessage, but runs it
// through the wire compressor and sets FlagCompressed. Use it for any
// path that can carry bulk data (append-entries batches, snapshot
// chunks); small control messages keep using WriteMessage.
func WriteMessageCompressed(w io.Writer, msgType MessageType, payload []byte) error {
	sealed, err := getWireCompressor().Compress(payload)
	if err != nil {
		return err
	}

	h := Header{
		Magic:   MagicByte,
		Version: ProtocolVersion,
		Type:    msgType,
		Flags:   FlagCompressed,
		Length:  uint32(len(sealed)),
	}
	if err := WriteHeader(w, h); err != nil {
		return err
	}
	if len(sealed) > 0 {
		if _, err := w.Write(sealed); err != nil {
			return err
		}
	}
	return nil
}

// DecodedPayload returns the message payload with a FlagCompressed
// envelope opened; plain frames pass through untouched.
func (m *Message) DecodedPayload() ([]byte, error) {
	if m.Header.Flags&FlagCompressed == 0 {
		return m.Payload, nil
	}
	if len(m.Payload) == 0 {
		return nil, ErrInvalidMessage
	}
	return getWireCompressor().Decompress(m.Payload, compression.Algorithm(m.Payload[0]))
}
