package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// Hub pushes events to connected rider and admin sessions so a client waiting
// on an admin decision resumes without polling.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*hubConn]struct{}
}

type hubConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *hubConn) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *hubConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[*hubConn]struct{})}
}

// Notify writes ev to every open session of recipient. Having no session is
// not an error; the request resource can still be polled.
func (h *Hub) Notify(_ context.Context, recipient string, ev Event) error {
	h.mu.RLock()
	targets := make([]*hubConn, 0, len(h.conns[recipient]))
	for c := range h.conns[recipient] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(ev); err != nil {
			h.remove(recipient, c)
		}
	}
	return nil
}

// Serve upgrades the request and holds the session open until the client
// goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, recipient string) error {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &hubConn{ws: ws}
	h.add(recipient, c)
	defer h.remove(recipient, c)

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return nil
		case <-r.Context().Done():
			return nil
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return nil
			}
		}
	}
}

// Sessions reports how many sessions recipient has open.
func (h *Hub) Sessions(recipient string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[recipient])
}

func (h *Hub) add(recipient string, c *hubConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[recipient] == nil {
		h.conns[recipient] = make(map[*hubConn]struct{})
	}
	h.conns[recipient][c] = struct{}{}
}

func (h *Hub) remove(recipient string, c *hubConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[recipient][c]; !ok {
		return
	}
	delete(h.conns[recipient], c)
	if len(h.conns[recipient]) == 0 {
		delete(h.conns, recipient)
	}
	c.ws.Close()
}
