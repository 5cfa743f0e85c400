package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-gaze/internal/log"
)

// Hub maintains the set of active viewers and broadcasts messages to them.
// The last broadcast message is replayed to viewers as they join, and a
// sequenced message older than the last one is discarded.
type Hub struct {
	name   string
	logger *slog.Logger

	clients map[*Client]bool

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	replay     chan *Client // resumed viewers asking for the latest message

	mu   sync.RWMutex // guards clients for ClientCount and last
	last *Message

	done    chan struct{} // closed when Run returns
	running atomic.Bool
	dropped atomic.Uint64
}

// New creates a new Hub
func New(name string) *Hub {
	return &Hub{
		name:       name,
		logger:     log.With("component", "hub", "hub", name),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		replay:     make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is done.
// A Hub can be run only once.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			last := h.last
			h.mu.Unlock()
			if last != nil {
				client.send <- *last
			}
			h.logger.Debug("viewer connected", "total", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("viewer disconnected", "remaining", count)

		case client := <-h.replay:
			// Only this loop closes client.send, so membership means open.
			h.mu.RLock()
			_, ok := h.clients[client]
			last := h.last
			h.mu.RUnlock()
			if ok && last != nil {
				select {
				case client.send <- *last:
				default:
				}
			}

		case message := <-h.broadcast:
			h.mu.Lock()
			if message.olderThan(h.last) {
				h.mu.Unlock()
				continue
			}
			h.last = &message
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow viewer; drop it rather than stall everyone.
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("dropped slow viewer")
				}
			}
			h.mu.Unlock()
		}
	}
}

// requestReplay asks the Run loop to resend the latest message to c.
// It returns without effect once the hub has stopped.
func (h *Hub) requestReplay(c *Client) {
	select {
	case h.replay <- c:
	case <-h.done:
	}
}

// Broadcast queues a message for all connected clients. It never blocks.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts an unsequenced message
func (h *Hub) BroadcastJSON(v any) error {
	return h.BroadcastSeq(0, v)
}

// BroadcastSeq encodes v and broadcasts it stamped with seq
func (h *Hub) BroadcastSeq(seq uint64, v any) error {
	msg, err := Encode(seq, v)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// Last returns the most recent message sent to viewers
func (h *Hub) Last() (Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.last == nil {
		return Message{}, false
	}
	return *h.last, true
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many broadcasts were discarded because the queue was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// IsRunning returns whether the hub loop is active
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
