package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"FinCoord/internal/domain/models"
	domrepo "FinCoord/internal/domain/repository"
	applogger "FinCoord/pkg/logger"
)

// HubConfig tunes the results hub.
type HubConfig struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// ResultsHub streams coordination results to websocket subscribers. A client
// whose send buffer is full is disconnected.
type ResultsHub struct {
	cfg      HubConfig
	log      *applogger.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

var _ domrepo.ResultSink = (*ResultsHub)(nil)

func NewResultsHub(cfg HubConfig, log *applogger.Logger) *ResultsHub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 16
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if log == nil {
		log = applogger.Nop()
	}
	return &ResultsHub{
		cfg:     cfg,
		log:     log,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *ResultsHub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/results", h.Subscribe)
}

// Subscribe upgrades the request and streams results until the peer leaves.
func (h *ResultsHub) Subscribe(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", applogger.Error(err))
		return nil
	}
	cl := &client{conn: conn, send: make(chan []byte, h.cfg.SendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	h.clients[cl] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("websocket subscriber joined", applogger.String("remote", c.RealIP()), applogger.Int("subscribers", n))

	go h.writePump(cl)
	h.readPump(cl)
	return nil
}

// Clients is the number of connected subscribers.
func (h *ResultsHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *ResultsHub) Name() string { return "websocket" }

// Send broadcasts r to every subscriber without blocking.
func (h *ResultsHub) Send(_ context.Context, r *models.CoordinationResult) error {
	if r == nil {
		return nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", r.ID, err)
	}

	var slow []*client
	h.mu.RLock()
	for cl := range h.clients {
		select {
		case cl.send <- b:
		default:
			slow = append(slow, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range slow {
		h.log.Warn("websocket subscriber too slow, disconnecting")
		h.remove(cl)
	}
	return nil
}

// Close disconnects every subscriber.
func (h *ResultsHub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, cl := range clients {
		cl.close()
	}
	return nil
}

func (h *ResultsHub) remove(cl *client) {
	h.mu.Lock()
	delete(h.clients, cl)
	h.mu.Unlock()
	cl.close()
}

// readPump drains control frames and returns when the peer goes away.
func (h *ResultsHub) readPump(cl *client) {
	defer h.remove(cl)
	cl.conn.SetReadLimit(512)
	wait := 2 * h.cfg.PingInterval
	_ = cl.conn.SetReadDeadline(time.Now().Add(wait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *ResultsHub) writePump(cl *client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
