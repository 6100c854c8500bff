package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/beamui/beam/pkg/protocol"
)

// wsConn adapts a WebSocket connection to the FrameConn boundary. WebSocket
// messages are already length-delimited, so each binary message carries
// exactly one frame payload and the 4-byte prefix never appears on the
// wire.
type wsConn struct {
	ws       *websocket.Conn
	maxBytes uint32
}

func newWSConn(ws *websocket.Conn, maxBytes uint32) *wsConn {
	ws.SetReadLimit(int64(maxBytes))
	return &wsConn{ws: ws, maxBytes: maxBytes}
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, mapWSReadError(err)
	}
	if mt != websocket.BinaryMessage {
		return nil, fmt.Errorf("%w: non-binary websocket message", ErrProtocolViolation)
	}
	if len(data) == 0 {
		return nil, protocol.ErrEmptyFrame
	}
	return data, nil
}

func (c *wsConn) WriteFrame(payload []byte) error {
	if len(payload) == 0 {
		return protocol.ErrEmptyFrame
	}
	if uint64(len(payload)) > uint64(c.maxBytes) {
		return fmt.Errorf("%w: %d bytes exceeds limit %d",
			protocol.ErrFrameTooLarge, len(payload), c.maxBytes)
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, payload)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }

func (c *wsConn) Close() error {
	// Best effort: tell the peer we are going away before dropping the
	// socket.
	deadline := time.Now().Add(time.Second)
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.ws.Close()
}

// mapWSReadError translates gorilla's errors into the framing vocabulary
// the connection state machine understands.
func mapWSReadError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return fmt.Errorf("%w: websocket message exceeds read limit", protocol.ErrFrameTooLarge)
	}
	return err
}

// WebSocketHandler returns an http.Handler that upgrades requests and
// serves them as protocol connections. Mount it wherever the surrounding
// mux puts the realtime endpoint.
func (s *Server) WebSocketHandler() http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error response.
			s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		fc := newWSConn(ws, protocol.ClampMaxFrameBytes(s.cfg.MaxFrameBytes))
		if err := s.ServeFrameConn(r.Context(), fc); err != nil {
			s.logger.Warn("websocket connection ended with error",
				"remote", r.RemoteAddr, "error", err)
		}
	})
}
