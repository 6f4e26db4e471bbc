// Package livereload pushes reload notifications to preview browsers over
// websockets.
package livereload

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	// HelloMessage is sent to every client once it connects.
	HelloMessage = "hello"
	// ReloadMessage tells clients to refresh.
	ReloadMessage = "reload"

	writeTimeout = 2 * time.Second
	closeTimeout = time.Second
)

type client struct {
	conn *websocket.Conn
}

// Hub is the registry of connected live-reload clients.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request, registers the client, sends the
// handshake and holds the connection until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("livereload: accept failed", slog.String("error", err.Error()))
		return
	}

	c := &client{conn: conn}
	if !h.register(c) {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.unregister(c)

	if err := h.send(r.Context(), c, HelloMessage); err != nil {
		h.logger.Debug("livereload: handshake failed", slog.String("error", err.Error()))
		_ = conn.CloseNow()
		return
	}
	h.logger.Debug("livereload: client connected", slog.String("remote", r.RemoteAddr))

	// Clients send nothing; CloseRead handles control frames and cancels
	// ctx once the connection drops.
	ctx := conn.CloseRead(r.Context())
	<-ctx.Done()
	_ = conn.CloseNow()
	h.logger.Debug("livereload: client disconnected", slog.String("remote", r.RemoteAddr))
}

// Broadcast sends the reload message to every client and drops any client
// the send fails for. It returns the number of clients reached.
func (h *Hub) Broadcast(ctx context.Context) int {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	type result struct {
		c   *client
		err error
	}
	results := make(chan result, len(targets))
	for _, c := range targets {
		go func() {
			results <- result{c: c, err: h.send(ctx, c, ReloadMessage)}
		}()
	}

	var failed []*client
	for range targets {
		res := <-results
		if res.err != nil {
			failed = append(failed, res.c)
		}
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, c := range failed {
			delete(h.clients, c)
		}
		h.mu.Unlock()
		for _, c := range failed {
			_ = c.conn.CloseNow()
		}
		h.logger.Debug("livereload: pruned clients", slog.Int("count", len(failed)))
	}

	reached := len(targets) - len(failed)
	h.logger.Info("livereload: reload sent", slog.Int("clients", reached))
	return reached
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones. It returns within
// closeTimeout even when clients stop responding.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	// Close waits for each peer's close frame; peers that do not answer
	// within closeTimeout are dropped.
	var wg sync.WaitGroup
	for c := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(closeTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		for c := range clients {
			_ = c.conn.CloseNow()
		}
		h.logger.Debug("livereload: forced close", slog.Int("clients", len(clients)))
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *Hub) send(ctx context.Context, c *client, msg string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, []byte(msg))
}
