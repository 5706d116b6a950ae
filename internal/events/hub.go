// Package events implements EventHub: a websocket broadcast hub for
// maintenance and capture events, grounded on the teacher's WebSocketHub
// broadcast loop and adapted so what it carries is lifecycle/ingest
// events rather than raw chat messages.
package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// EventType names the fixed set of events EventHub broadcasts.
type EventType string

const (
	EventMemoryCaptured          EventType = "memory.captured"
	EventDecayCompleted          EventType = "decay.completed"
	EventConsolidateCompleted    EventType = "consolidate.completed"
	EventGCCompleted             EventType = "gc.completed"
	EventRerankSecondaryComplete EventType = "rerank.secondary.completed"
)

// Event is the envelope broadcast to every connected client.
type Event struct {
	Type      EventType   `json:"type"`
	Agent     string      `json:"agent,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// client is a connected websocket subscriber. Its send channel is buffered;
// a slow reader gets dropped rather than blocking the broadcast loop.
type client struct {
	send chan []byte
}

// Hub manages connected clients and broadcasts Events to all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool

	broadcast  chan Event
	register   chan *client
	unregister chan *client

	ctx    context.Context
	cancel context.CancelFunc

	now func() time.Time
}

// NewHub builds a Hub. Call Run in its own goroutine to start processing.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		ctx:        ctx,
		cancel:     cancel,
		now:        time.Now,
	}
}

// Run processes register/unregister/broadcast until Stop is called. Meant
// to run in its own goroutine for the lifetime of the process.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("events: marshal %s: %v", ev.Type, err)
				continue
			}
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			return
		}
	}
}

// Stop closes every client connection and halts Run.
func (h *Hub) Stop() {
	h.cancel()
	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
	}
	h.clients = make(map[*client]bool)
	h.mu.Unlock()
}

// Publish queues ev for broadcast to every connected client. Non-blocking:
// if the broadcast channel itself is saturated the event is dropped, since
// these are debug/observability signals, never the primary write path.
func (h *Hub) Publish(eventType EventType, agent string, payload interface{}) {
	ev := Event{Type: eventType, Agent: agent, Payload: payload, Timestamp: h.now()}
	select {
	case h.broadcast <- ev:
	default:
		log.Printf("events: broadcast channel full, dropping %s", eventType)
	}
}

// ClientCount reports how many clients are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a websocket connection and registers
// it as an event subscriber. It never reads application messages from the
// client; any inbound frame is drained and ignored, matching the teacher's
// own "currently just drain messages" readPump.
func (h *Hub) ServeWS(conn *websocket.Conn) {
	c := &client{send: make(chan []byte, 64)}
	h.register <- c

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.Read(context.Background()); err != nil {
				return
			}
		}
	}()

	for data := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			break
		}
	}
	h.unregister <- c
	_ = conn.Close(websocket.StatusNormalClosure, "")
	<-done
}
