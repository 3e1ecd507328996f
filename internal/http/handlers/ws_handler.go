package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/asset-gallery/backend/internal/auth"
	"github.com/asset-gallery/backend/internal/events"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	wsSendBuffer   = 32
	wsWriteTimeout = 10 * time.Second
)

// wsClient owns one connection. Only its writer goroutine writes to conn.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// kick stops the writer and closes the connection, which also ends the read loop.
func (c *wsClient) kick() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// WSHub fans monitor events out to WebSocket clients. It is fed either by a
// Redis subscriber (Start) or directly as an events.Publisher. Publishing
// never blocks: a client whose queue is full is disconnected.
type WSHub struct {
	token      string
	subscriber events.Subscriber
	log        *zap.Logger
	mu         sync.RWMutex
	clients    map[*wsClient]struct{}
}

// NewWSHub creates the hub. subscriber may be nil; an empty token accepts every client.
func NewWSHub(token string, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		token:      token,
		subscriber: subscriber,
		log:        log,
		clients:    make(map[*wsClient]struct{}),
	}
}

func (h *WSHub) Start(ctx context.Context) {
	if h.subscriber == nil {
		return
	}
	for _, stream := range []string{events.StreamActorStatus, events.StreamMonitor} {
		if err := h.subscriber.Subscribe(ctx, stream, h.broadcast); err != nil {
			h.log.Error("failed to subscribe", zap.String("stream", stream), zap.Error(err))
		}
	}
}

// Publish delivers the event to connected clients without a broker.
func (h *WSHub) Publish(_ context.Context, _ string, event events.Event) error {
	h.broadcast(event)
	return nil
}

func (h *WSHub) broadcast(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for cl := range h.clients {
		select {
		case cl.send <- data:
		case <-cl.done:
		default:
			h.log.Warn("dropping slow ws client", zap.String("remote", cl.conn.RemoteAddr().String()))
			cl.kick()
		}
	}
}

func (h *WSHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	if h.token != "" && !auth.TokenMatches(conn.Query("token"), h.token) {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	cl := &wsClient{
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
		done: make(chan struct{}),
	}
	writerDone := make(chan struct{})
	go h.writeLoop(cl, writerDone)

	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()

	// conn is recycled once this handler returns, so the writer must be gone by then.
	defer func() {
		h.mu.Lock()
		delete(h.clients, cl)
		h.mu.Unlock()
		cl.kick()
		<-writerDone
	}()

	// Read loop (keep alive / pings)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (h *WSHub) writeLoop(cl *wsClient, writerDone chan<- struct{}) {
	defer close(writerDone)

	for {
		select {
		case <-cl.done:
			return
		case data := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Debug("ws write failed", zap.Error(err))
				cl.kick()
				return
			}
		}
	}
}
