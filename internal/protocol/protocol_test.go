package protocol

import (
	"bytes"
	"testing"
)

func TestWriteAndReadHeader(t *testing.T) {
	tests := []struct {
		name   string
		header Header
	}{
		{
			name: "Vote request",
			header: Header{
				Magic:   MagicByte,
				Version: ProtocolVersion,
				Type:    MsgVoteRequest,
				Flags:   FlagNone,
				Length:  100,
			},
		},
		{
			name: "Append entries",
			header: Header{
				Magic:   MagicByte,
				Version: ProtocolVersion,
				Type:    MsgAppendEntries,
				Flags:   FlagNone,
				Length:  50,
			},
		},
		{
			name: "Compressed snapshot chunk",
			header: Header{
				Magic:   MagicByte,
				Version: ProtocolVersion,
				Type:    MsgInstallSnapshot,
				Flags:   FlagCompressed,
				Length:  1000,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)

			err := WriteHeader(buf, tt.header)
			if err != nil {
				t.Fatalf("WriteHeader failed: %v", err)
			}

			readHeader, err := ReadHeader(buf)
			if err != nil {
				t.Fatalf("ReadHeader failed: %v", err)
			}

			if readHeader != tt.header {
				t.Errorf("header mismatch: got %+v, want %+v", readHeader, tt.header)
			}
		})
	}
}

func TestReadHeaderRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{"bad magic", []byte{0x00, ProtocolVersion, 0x01, 0x00, 0, 0, 0, 0}, ErrInvalidMagic},
		{"bad version", []byte{MagicByte, 0x7F, 0x01, 0x00, 0, 0, 0, 0}, ErrInvalidVersion},
		{"oversize length", []byte{MagicByte, ProtocolVersion, 0x01, 0x00, 0xFF, 0xFF, 0xFF, 0xFF}, ErrMessageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadHeader(bytes.NewReader(tt.raw))
			if err != tt.want {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWriteAndReadMessage(t *testing.T) {
	payload := []byte("vote payload")
	buf := new(bytes.Buffer)

	if err := WriteMessage(buf, MsgVoteRequest, payload); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	msg, err := ReadMessage(buf)
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if msg.Header.Type != MsgVoteRequest {
		t.Errorf("type = %#x, want %#x", msg.Header.Type, MsgVoteRequest)
	}
	if !bytes.Equal(msg.Payload, payload) {
		t.Errorf("payload mismatch: %q", msg.Payload)
	}
}

func TestWriteAndReadEmptyMessage(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := WriteMessage(buf, MsgPing, nil); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	msg, err := ReadMessage(buf)
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if msg.Header.Length != 0 || len(msg.Payload) != 0 {
		t.Errorf("empty message carried payload: %+v", msg)
	}
}

func TestBufferPoolReuse(t *testing.T) {
	pool := NewBufferPool(1024)

	b := pool.Get(100)
	if len(b) != 100 {
		t.Fatalf("len = %d, want 100", len(b))
	}
	pool.Put(b)

	big := pool.Get(4096)
	if len(big) != 4096 {
		t.Fatalf("oversize request len = %d, want 4096", len(big))
	}
}
