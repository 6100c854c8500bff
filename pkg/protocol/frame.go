package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"
)

// Framing errors.
var (
	// ErrFrameTooLarge is returned when a length prefix exceeds the
	// configured maximum. The claimed length is never read or allocated.
	ErrFrameTooLarge = errors.New("protocol: frame payload too large")

	// ErrEmptyFrame is returned for a zero-length prefix. The message schema
	// requires exactly one encoded object per frame, so an empty payload can
	// never be valid.
	ErrEmptyFrame = errors.New("protocol: empty frame")
)

// FrameConn is a transport that carries whole frame payloads. The stream
// implementation below applies the length-prefix framing; message-oriented
// transports such as WebSocket satisfy the interface directly because the
// transport already delimits messages.
type FrameConn interface {
	// ReadFrame returns the next frame payload. It returns io.EOF on a clean
	// close falling exactly on a frame boundary and io.ErrUnexpectedEOF when
	// the stream ends mid-frame.
	ReadFrame() ([]byte, error)

	// WriteFrame writes one payload as a single frame.
	WriteFrame(payload []byte) error

	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// ReadFrame reads one length-delimited frame from r, enforcing maxBytes.
// The limit is checked before any payload allocation.
func ReadFrame(r io.Reader, maxBytes uint32) ([]byte, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		// A clean close before any prefix byte is io.EOF; a partial prefix
		// is already io.ErrUnexpectedEOF from ReadFull.
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return nil, ErrEmptyFrame
	}
	if length > maxBytes {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			// The peer promised length bytes; any close here is truncation.
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes one length-delimited frame to w, enforcing maxBytes.
func WriteFrame(w io.Writer, payload []byte, maxBytes uint32) error {
	if len(payload) == 0 {
		return ErrEmptyFrame
	}
	if uint64(len(payload)) > uint64(maxBytes) {
		return ErrFrameTooLarge
	}

	buf := make([]byte, FrameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[FrameHeaderSize:], payload)
	_, err := w.Write(buf)
	return err
}

// StreamConn applies length-prefix framing to a net.Conn.
type StreamConn struct {
	conn     net.Conn
	maxBytes uint32

	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

// NewStreamConn wraps conn with framing. maxBytes of zero selects
// DefaultMaxFrameBytes.
func NewStreamConn(conn net.Conn, maxBytes uint32) *StreamConn {
	if maxBytes == 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	return &StreamConn{conn: conn, maxBytes: maxBytes}
}

// ReadFrame reads the next frame payload from the underlying stream.
func (s *StreamConn) ReadFrame() ([]byte, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(s.conn, header[:]); err != nil {
		return nil, err
	}
	s.bytesRead.Add(FrameHeaderSize)

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return nil, ErrEmptyFrame
	}
	if length > s.maxBytes {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(s.conn, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	s.bytesRead.Add(uint64(length))
	return payload, nil
}

// WriteFrame writes one payload as a length-delimited frame.
func (s *StreamConn) WriteFrame(payload []byte) error {
	if err := WriteFrame(s.conn, payload, s.maxBytes); err != nil {
		return err
	}
	s.bytesWritten.Add(FrameHeaderSize + uint64(len(payload)))
	return nil
}

// BytesRead returns the number of bytes consumed from the stream. An
// oversized frame advances this by the prefix bytes only.
func (s *StreamConn) BytesRead() uint64 { return s.bytesRead.Load() }

// BytesWritten returns the number of bytes written to the stream.
func (s *StreamConn) BytesWritten() uint64 { return s.bytesWritten.Load() }

// MaxFrameBytes returns the configured payload limit.
func (s *StreamConn) MaxFrameBytes() uint32 { return s.maxBytes }

func (s *StreamConn) Close() error { return s.conn.Close() }

func (s *StreamConn) SetReadDeadline(t time.Time) error { return s.conn.SetReadDeadline(t) }

func (s *StreamConn) SetWriteDeadline(t time.Time) error { return s.conn.SetWriteDeadline(t) }
