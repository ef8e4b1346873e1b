package ndibridge

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsWriteTimeout bounds one frame write so a stuck peer cannot stall the
// publish loop indefinitely.
const wsWriteTimeout = 5 * time.Second

// wsStreamHeader announces the stream geometry once, right after connect,
// so receivers can size their buffers before the first binary frame.
type wsStreamHeader struct {
	Source string `json:"source"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	FPSNum int    `json:"fps_num"`
	FPSDen int    `json:"fps_den"`
}

// WebSocketSink pushes raw frames to a WebSocket peer: one JSON header on
// connect, then one binary message per frame.
type WebSocketSink struct {
	name string
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// NewWebSocketSink dials the peer and sends the stream header.
func NewWebSocketSink(rawURL, sourceName string, spec FrameSpec) (*WebSocketSink, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial websocket sink %q: %w", rawURL, err)
	}

	header := wsStreamHeader{
		Source: sourceName,
		Width:  spec.Width,
		Height: spec.Height,
		Format: spec.Format.String(),
		FPSNum: spec.Rate.Num,
		FPSDen: spec.Rate.Den,
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(header); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send stream header: %w", err)
	}
	return &WebSocketSink{name: sourceName, conn: conn}, nil
}

// Publish sends one frame as a binary message. Write failures mean the peer
// is gone; the connection cannot recover, so they are fatal.
func (s *WebSocketSink) Publish(buf []byte, spec FrameSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Fatal(ErrSinkClosed)
	}
	if len(buf) != spec.BufferSize() {
		return fmt.Errorf("frame buffer size %d, want %d", len(buf), spec.BufferSize())
	}

	s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
		return Fatal(fmt.Errorf("write frame: %w", err))
	}
	return nil
}

// Close sends a close frame and tears down the connection. Safe to call
// more than once.
func (s *WebSocketSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}

func (s *WebSocketSink) Name() string {
	return s.name + " (ws)"
}

func init() {
	factory := func(u *url.URL, sourceName string, spec FrameSpec) (OutputSink, error) {
		return NewWebSocketSink(u.String(), sourceName, spec)
	}
	RegisterSink("ws", factory)
	RegisterSink("wss", factory)
}
