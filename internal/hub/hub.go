// Package hub fans coordinator state out to dashboard observers over
// WebSocket and feeds their requests back in. Delivery is best-effort: a slow
// observer has stale messages dropped rather than stalling the broadcast, and
// the next full-state push makes it consistent again.
package hub

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/carnegiemellonracing/PiDAQ/internal/validate"
)

// Observer request actions.
const (
	ActionStartTest = "start_test"
	ActionStopTest  = "stop_test"
	ActionGetStatus = "get_status"
)

// Request is one observer intent read off a WebSocket connection.
type Request struct {
	Action    string `json:"action"`
	Name      string `json:"name,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

const (
	sendQueueDepth = 64
	writeTimeout   = 5 * time.Second
)

type observer struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub owns the observer connection set. Join, leave, and request callbacks
// are invoked from per-connection goroutines; the coordinator re-serializes
// them onto its event loop.
type Hub struct {
	logger   *log.Logger
	upgrader websocket.Upgrader

	mu        sync.RWMutex
	observers map[string]*observer

	OnJoin    func(observerID string)
	OnLeave   func(observerID string)
	OnRequest func(observerID string, req Request)
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The dashboard is served from a different origin in every
			// deployment we run; the original server allowed all origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		observers: make(map[string]*observer),
	}
}

// ServeHTTP upgrades the connection, registers the observer, and pumps its
// requests until the connection drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[hub] upgrade failed: %v", err)
		return
	}

	obs := &observer{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendQueueDepth),
	}

	h.mu.Lock()
	h.observers[obs.id] = obs
	count := len(h.observers)
	h.mu.Unlock()
	h.logger.Printf("[hub] observer %s connected (%d online)", obs.id, count)

	go obs.writePump()
	if h.OnJoin != nil {
		h.OnJoin(obs.id)
	}

	h.readLoop(obs)
}

func (h *Hub) readLoop(obs *observer) {
	defer h.drop(obs)
	for {
		_, raw, err := obs.conn.ReadMessage()
		if err != nil {
			return
		}
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			h.logger.Printf("[hub] bad request from %s: %v | payload=%s", obs.id, err, validate.Truncate(raw, 256))
			continue
		}
		if h.OnRequest != nil {
			h.OnRequest(obs.id, req)
		}
	}
}

func (h *Hub) drop(obs *observer) {
	h.mu.Lock()
	if _, ok := h.observers[obs.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.observers, obs.id)
	h.mu.Unlock()

	close(obs.send)
	_ = obs.conn.Close()
	h.logger.Printf("[hub] observer %s disconnected", obs.id)
	if h.OnLeave != nil {
		h.OnLeave(obs.id)
	}
}

func (obs *observer) writePump() {
	for msg := range obs.send {
		_ = obs.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := obs.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = obs.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Broadcast pushes one event to every observer, dropping it for observers
// whose send queue is full.
func (h *Hub) Broadcast(event string, data any) {
	msg, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		h.logger.Printf("[hub] marshal %s failed: %v", event, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, obs := range h.observers {
		select {
		case obs.send <- msg:
		default:
			h.logger.Printf("[hub] observer %s lagging, dropped %s", obs.id, event)
		}
	}
}

// SendTo pushes one event to a single observer.
func (h *Hub) SendTo(observerID string, event string, data any) {
	msg, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		h.logger.Printf("[hub] marshal %s failed: %v", event, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	obs, ok := h.observers[observerID]
	if !ok {
		return
	}
	select {
	case obs.send <- msg:
	default:
		h.logger.Printf("[hub] observer %s lagging, dropped %s", obs.id, event)
	}
}
