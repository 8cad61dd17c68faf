// Package stream pushes feed views to WebSocket clients.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TimBasler1996/Melora-sub001/internal/broadcast"
	"github.com/TimBasler1996/Melora-sub001/internal/feed"
	"github.com/TimBasler1996/Melora-sub001/internal/geo"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// MessageTypeView is the type of a view message.
const MessageTypeView = "view"

// ViewSource publishes feed views.
type ViewSource interface {
	Subscribe() (<-chan feed.View, func())
}

// Message is the JSON frame sent for every published view.
type Message struct {
	Type       string               `json:"type"`
	Generation uint64               `json:"generation"`
	UpdatedAt  time.Time            `json:"updated_at"`
	Location   *geo.Point           `json:"location,omitempty"`
	Error      string               `json:"error,omitempty"`
	Items      []broadcast.Enriched `json:"items"`
}

// NewMessage converts a view to its wire form.
func NewMessage(v feed.View) Message {
	msg := Message{
		Type:       MessageTypeView,
		Generation: v.Generation,
		UpdatedAt:  v.UpdatedAt,
		Location:   v.Location,
		Items:      v.Items,
	}
	if msg.Items == nil {
		msg.Items = []broadcast.Enriched{}
	}
	if v.Err != nil {
		msg.Error = v.Err.Error()
	}
	return msg
}

// Broadcaster manages WebSocket connections and pushes the latest view to each.
type Broadcaster struct {
	source  ViewSource
	logger  *slog.Logger
	metrics *Metrics

	mu          sync.RWMutex
	connections map[*websocket.Conn]struct{}
}

// NewBroadcaster creates a broadcaster fed by source.
func NewBroadcaster(source ViewSource, logger *slog.Logger, metrics *Metrics) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		source:      source,
		logger:      logger,
		metrics:     metrics,
		connections: make(map[*websocket.Conn]struct{}),
	}
}

// Serve writes the current view and every later one to conn until the client
// disconnects or ctx is done. It closes conn before returning.
func (b *Broadcaster) Serve(ctx context.Context, conn *websocket.Conn) error {
	views, cancel := b.source.Subscribe()
	b.register(conn)
	defer func() {
		cancel()
		b.unregister(conn)
		conn.Close()
	}()

	closed := make(chan error, 1)
	go func() { closed <- b.readLoop(conn) }()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			return nil
		case err := <-closed:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				b.logger.WarnContext(ctx, "websocket connection closed unexpectedly", "error", err)
				return err
			}
			return nil
		case v, ok := <-views:
			if !ok {
				return nil
			}
			if err := b.write(conn, NewMessage(v)); err != nil {
				b.metrics.incWriteErrors()
				b.logger.WarnContext(ctx, "failed to send view to websocket client", "error", err)
				return err
			}
			b.metrics.incMessages()
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				if errors.Is(err, websocket.ErrCloseSent) {
					return nil
				}
				return err
			}
		}
	}
}

// ConnectionCount returns the number of active WebSocket connections.
func (b *Broadcaster) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.connections)
}

func (b *Broadcaster) register(conn *websocket.Conn) {
	b.mu.Lock()
	b.connections[conn] = struct{}{}
	n := len(b.connections)
	b.mu.Unlock()
	b.metrics.setConnections(n)
}

func (b *Broadcaster) unregister(conn *websocket.Conn) {
	b.mu.Lock()
	delete(b.connections, conn)
	n := len(b.connections)
	b.mu.Unlock()
	b.metrics.setConnections(n)
}

func (b *Broadcaster) write(conn *websocket.Conn, msg Message) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

// readLoop discards client frames and returns the error that ended the connection.
// Clients are not expected to send anything; reading keeps pong and close
// handling alive.
func (b *Broadcaster) readLoop(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return err
		}
	}
}
