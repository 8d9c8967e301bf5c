package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 64 << 10
)

// WSTransport carries bridge messages as JSON text frames over a WebSocket.
type WSTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes
}

// NewWSTransport wraps an upgraded connection.
func NewWSTransport(conn *websocket.Conn) *WSTransport {
	return &WSTransport{conn: conn}
}

// Send writes msg as one text frame.
func (w *WSTransport) Send(msg Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Serve reads client messages into s until the connection closes or ctx is
// cancelled. A normal close returns nil.
func (w *WSTransport) Serve(ctx context.Context, s *Session) error {
	w.conn.SetReadLimit(maxMessage)
	_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go w.keepAlive(ctx, stop)

	for {
		var msg Message
		if err := w.conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		if err := s.Handle(msg); err != nil {
			slog.Warn("bridge message rejected", "type", msg.Type, "error", err)
			s.SendError(msg.ID, err)
		}
	}
}

func (w *WSTransport) keepAlive(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.mu.Lock()
			err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			w.mu.Unlock()
			if err != nil {
				return
			}
		case <-ctx.Done():
			w.mu.Lock()
			_ = w.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			w.mu.Unlock()
			_ = w.conn.Close()
			return
		case <-stop:
			return
		}
	}
}
