package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Event types pushed to terminal rooms.
const (
	EventCartState      = "cart.state"
	EventPaymentState   = "payment.state"
	EventPaymentSettled = "payment.settled"
)

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// roomEvent routes an event to a single terminal room
type roomEvent struct {
	TerminalID uuid.UUID
	Event      Event
}

// Hub maintains the set of connected terminal screens and pushes state to them.
// A terminal may have several screens open (cashier + customer display).
type Hub struct {
	// Registered clients by terminal ID
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	broadcast chan *roomEvent

	// done is closed when Run returns; later sends give up instead of blocking.
	done chan struct{}

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *roomEvent, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is done, closing every
// client's send channel on the way out.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.terminalID] == nil {
				h.rooms[client.terminalID] = make(map[*Client]bool)
			}
			h.rooms[client.terminalID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

		case event := <-h.broadcast:
			message, err := json.Marshal(event.Event)
			if err != nil {
				log.Printf("ERROR: marshal %s event: %v", event.Event.Type, err)
				continue
			}

			h.mu.Lock()
			for client := range h.rooms[event.TerminalID] {
				select {
				case client.send <- message:
				default:
					// Slow screen: drop it, it will reconnect and re-read state.
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.rooms[client.terminalID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.terminalID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, clients := range h.rooms {
		for client := range clients {
			close(client.send)
		}
		delete(h.rooms, id)
	}
}

// addClient registers a screen. It reports false once the hub has stopped.
func (h *Hub) addClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) removeClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues an event for every screen of a terminal. Events published
// after the hub stopped are dropped.
func (h *Hub) Publish(terminalID uuid.UUID, event Event) {
	select {
	case h.broadcast <- &roomEvent{TerminalID: terminalID, Event: event}:
	case <-h.done:
	}
}

// Broadcast marshals payload into an event of the given type and queues it
// for the terminal's room. It satisfies terminal.Broadcaster.
func (h *Hub) Broadcast(terminalID uuid.UUID, eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: marshal %s payload: %v", eventType, err)
		return
	}
	h.Publish(terminalID, Event{Type: eventType, Payload: raw})
}

// Connected returns how many screens a terminal has open.
func (h *Hub) Connected(terminalID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[terminalID])
}
