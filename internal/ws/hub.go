// Package ws streams the board's state to browsers over a websocket.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/coreman2200/panelhttpd/internal/board"
	"github.com/coreman2200/panelhttpd/internal/diagnostics"
)

const writeWait = 200 * time.Millisecond

// Sampler is the board side of the hub.
type Sampler interface {
	Sample(ctx context.Context) board.Snapshot
}

// LineSource returns the display's current lines.
type LineSource interface {
	Lines(ctx context.Context, timeout time.Duration) ([]string, error)
}

// State is one message of the stream.
type State struct {
	T        int64          `json:"t"`
	Snapshot board.Snapshot `json:"snapshot"`
	Lines    []string       `json:"lines"`
}

// Hub accepts websocket clients on ServeHTTP and pushes State to all of them
// every interval while Run is active. It also pushes every Diagnostic it is
// given.
type Hub struct {
	board       Sampler
	lines       LineSource
	interval    time.Duration
	lineTimeout time.Duration
	log         zerolog.Logger

	up websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	last    State
}

func NewHub(b Sampler, l LineSource, interval, lineTimeout time.Duration, log zerolog.Logger) *Hub {
	return &Hub{
		board:       b,
		lines:       l,
		interval:    interval,
		lineTimeout: lineTimeout,
		log:         log,
		up:          websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:     map[*websocket.Conn]bool{},
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.up.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("upgrade")
		return
	}
	h.mu.Lock()
	h.clients[conn] = true
	last := h.last
	h.mu.Unlock()
	h.log.Debug().Str("remote", r.RemoteAddr).Msg("client connected")

	if last.T != 0 {
		h.send(conn, last)
	}

	// Clients only listen; reading detects the close.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Run samples and broadcasts until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.Broadcast(h.Sample(ctx))
		}
	}
}

// Sample reads the board and the display. When the display is busy the
// previous lines are kept.
func (h *Hub) Sample(ctx context.Context) State {
	st := State{T: time.Now().UnixMilli(), Snapshot: h.board.Sample(ctx)}
	lines, err := h.lines.Lines(ctx, h.lineTimeout)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		st.Lines = lines
	} else {
		st.Lines = h.last.Lines
	}
	h.last = st
	return st
}

// Broadcast sends st to every client.
func (h *Hub) Broadcast(st State) {
	b, err := json.Marshal(st)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal state")
		return
	}
	h.write(b)
}

// Report pushes d to every client.
func (h *Hub) Report(d diagnostics.Diagnostic) {
	b, err := json.Marshal(d)
	if err != nil {
		return
	}
	h.write(b)
}

// HandleHealth reports the client count and the last state sent.
func (h *Hub) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	resp := map[string]any{"clients": len(h.clients), "last": h.last}
	h.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) write(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			h.log.Debug().Err(err).Msg("write state")
			delete(h.clients, c)
			c.Close()
		}
	}
}

func (h *Hub) send(c *websocket.Conn, st State) {
	b, err := json.Marshal(st)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	c.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.WriteMessage(websocket.TextMessage, b)
}

func (h *Hub) drop(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.Close()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		c.Close()
		delete(h.clients, c)
	}
}
