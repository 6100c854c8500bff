package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "single_byte", payload: []byte{0x42}},
		{name: "small", payload: []byte("hello")},
		{name: "binary", payload: []byte{0x00, 0xFF, 0x7F, 0x80}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteFrame(&buf, tc.payload, DefaultMaxFrameBytes); err != nil {
				t.Fatalf("WriteFrame() error = %v", err)
			}
			if buf.Len() != FrameHeaderSize+len(tc.payload) {
				t.Errorf("frame length = %d, want %d", buf.Len(), FrameHeaderSize+len(tc.payload))
			}

			got, err := ReadFrame(&buf, DefaultMaxFrameBytes)
			if err != nil {
				t.Fatalf("ReadFrame() error = %v", err)
			}
			if !bytes.Equal(got, tc.payload) {
				t.Errorf("payload = %v, want %v", got, tc.payload)
			}
		})
	}
}

func TestWriteFrameRejectsEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, nil, DefaultMaxFrameBytes); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("WriteFrame(nil) error = %v, want ErrEmptyFrame", err)
	}
	if buf.Len() != 0 {
		t.Errorf("rejected write produced %d bytes", buf.Len())
	}
}

func TestReadFrameEmptyPrefix(t *testing.T) {
	data := []byte{0x00, 0x00, 0x00, 0x00}
	if _, err := ReadFrame(bytes.NewReader(data), DefaultMaxFrameBytes); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("ReadFrame() error = %v, want ErrEmptyFrame", err)
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	// A hostile prefix claiming 4 GiB against a 1 MiB limit must be rejected
	// without reading or allocating the claimed length.
	data := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	if _, err := ReadFrame(bytes.NewReader(data), 1<<20); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("ReadFrame() error = %v, want ErrFrameTooLarge", err)
	}
}

func TestWriteFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	payload := make([]byte, 32)
	if err := WriteFrame(&buf, payload, 16); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("WriteFrame() error = %v, want ErrFrameTooLarge", err)
	}
}

func TestReadFrameCleanClose(t *testing.T) {
	// EOF exactly on a frame boundary is a clean close.
	if _, err := ReadFrame(bytes.NewReader(nil), DefaultMaxFrameBytes); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame() error = %v, want io.EOF", err)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "partial_prefix", data: []byte{0x00, 0x00}},
		{name: "partial_payload", data: []byte{0x00, 0x00, 0x00, 0x05, 'a', 'b'}},
		{name: "missing_payload", data: []byte{0x00, 0x00, 0x00, 0x03}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tc.data), DefaultMaxFrameBytes)
			if !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Errorf("ReadFrame() error = %v, want io.ErrUnexpectedEOF", err)
			}
		})
	}
}

func TestStreamConnRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	sender := NewStreamConn(a, 0)
	receiver := NewStreamConn(b, 0)

	payload := []byte("document payload")
	written := make(chan struct{})
	go func() {
		defer close(written)
		sender.WriteFrame(payload)
	}()

	receiver.SetReadDeadline(time.Now().Add(time.Second))
	got, err := receiver.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = %q, want %q", got, payload)
	}
	if receiver.BytesRead() != uint64(FrameHeaderSize+len(payload)) {
		t.Errorf("BytesRead() = %d, want %d", receiver.BytesRead(), FrameHeaderSize+len(payload))
	}
	<-written
	if sender.BytesWritten() != uint64(FrameHeaderSize+len(payload)) {
		t.Errorf("BytesWritten() = %d, want %d", sender.BytesWritten(), FrameHeaderSize+len(payload))
	}
}

func TestStreamConnOversizedPrefixCountsHeaderOnly(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	receiver := NewStreamConn(b, 1<<20)

	go func() {
		var header [FrameHeaderSize]byte
		binary.BigEndian.PutUint32(header[:], 0xFFFFFFFF)
		a.Write(header[:])
	}()

	receiver.SetReadDeadline(time.Now().Add(time.Second))
	_, err := receiver.ReadFrame()
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("ReadFrame() error = %v, want ErrFrameTooLarge", err)
	}
	// The received-byte counter advanced by the prefix bytes only.
	if receiver.BytesRead() != FrameHeaderSize {
		t.Errorf("BytesRead() = %d, want %d", receiver.BytesRead(), FrameHeaderSize)
	}
}

func TestClampMaxFrameBytes(t *testing.T) {
	tests := []struct {
		name  string
		limit int64
		want  uint32
	}{
		{name: "zero_selects_default", limit: 0, want: DefaultMaxFrameBytes},
		{name: "negative_selects_default", limit: -1, want: DefaultMaxFrameBytes},
		{name: "in_range", limit: 4096, want: 4096},
		{name: "clamped_to_ceiling", limit: 1 << 40, want: HardMaxFrameBytes},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClampMaxFrameBytes(tc.limit); got != tc.want {
				t.Errorf("ClampMaxFrameBytes(%d) = %d, want %d", tc.limit, got, tc.want)
			}
		})
	}
}
