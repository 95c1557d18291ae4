// Package broadcast fans ingestion notices out to operators connected over
// line-delimited TCP or websocket.
package broadcast

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeTimeout = 2 * time.Second

type Hub struct {
	Log zerolog.Logger

	mu        sync.Mutex
	clients   map[net.Conn]struct{}
	wsClients map[*websocket.Conn]struct{}
}

type Stats struct {
	TCPClients int `json:"tcp_clients"`
	WSClients  int `json:"ws_clients"`
}

// Welcome is the first line every client receives.
type Welcome struct {
	Type      string `json:"type"`
	Transport string `json:"transport"`
	Clients   int    `json:"clients"`
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		Log:       log,
		clients:   make(map[net.Conn]struct{}),
		wsClients: make(map[*websocket.Conn]struct{}),
	}
}

func (h *Hub) Add(conn net.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) Remove(conn net.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

func (h *Hub) AddWS(ws *websocket.Conn) {
	h.mu.Lock()
	h.wsClients[ws] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) RemoveWS(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.wsClients, ws)
	h.mu.Unlock()
	_ = ws.Close()
}

// BroadcastJSON sends v as one JSON line to every client. Clients that
// cannot take the write within writeTimeout are dropped.
func (h *Hub) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.Log.Error().Err(err).Msg("encode broadcast")
		return
	}
	b = append(b, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	for c := range h.clients {
		_ = c.SetWriteDeadline(deadline)
		if _, err := c.Write(b); err != nil {
			h.Log.Debug().Err(err).Str("remote", c.RemoteAddr().String()).Msg("dropping tcp client")
			_ = c.Close()
			delete(h.clients, c)
		}
	}
	for ws := range h.wsClients {
		_ = ws.SetWriteDeadline(deadline)
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			h.Log.Debug().Err(err).Msg("dropping websocket client")
			_ = ws.Close()
			delete(h.wsClients, ws)
		}
	}
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		TCPClients: len(h.clients),
		WSClients:  len(h.wsClients),
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.Close()
		delete(h.clients, c)
	}
	for ws := range h.wsClients {
		_ = ws.Close()
		delete(h.wsClients, ws)
	}
}

func (h *Hub) welcome(transport string) []byte {
	st := h.Stats()
	b, _ := json.Marshal(Welcome{Type: "welcome", Transport: transport, Clients: st.TCPClients + st.WSClients})
	return append(b, '\n')
}
