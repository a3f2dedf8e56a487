package http

import (
	"context"
	"errors"
	"sync"

	"trivia-session-service/internal/app"
)

var errNotConnected = errors.New("player not connected")

type clientKey struct {
	contextID string
	userID    string
}

type client struct {
	send chan outboundMessage[any]
	// replaced is closed when a newer connection of the same player takes over.
	replaced chan struct{}
	once     sync.Once
}

func newClient() *client {
	return &client{send: make(chan outboundMessage[any], 32), replaced: make(chan struct{})}
}

func (c *client) retire() {
	c.once.Do(func() { close(c.replaced) })
}

// Hub tracks one websocket client per player and implements app.Presenter on top of them.
// Pushes never block: a client whose buffer is full misses the update and catches up on its
// next request.
type Hub struct {
	mu      sync.RWMutex
	clients map[clientKey]*client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[clientKey]*client)}
}

// register replaces any earlier connection of the same player and retires it.
func (h *Hub) register(contextID, userID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := clientKey{contextID, userID}
	if prev, ok := h.clients[key]; ok && prev != c {
		prev.retire()
	}
	h.clients[key] = c
}

func (h *Hub) unregister(contextID, userID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := clientKey{contextID, userID}
	if h.clients[key] == c {
		delete(h.clients, key)
	}
}

func (h *Hub) deliver(contextID, userID string, msg outboundMessage[any]) error {
	h.mu.RLock()
	c, ok := h.clients[clientKey{contextID, userID}]
	h.mu.RUnlock()
	if !ok {
		return errNotConnected
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return errors.New("client buffer full")
	}
}

func (h *Hub) PushQuestion(_ context.Context, view app.QuestionView) error {
	return h.deliver(view.ContextID, view.PlayerID, outboundMessage[any]{Type: "board", Payload: view})
}

func (h *Hub) PushResolution(_ context.Context, res app.Resolution) error {
	return h.deliver(res.ContextID, res.PlayerID, outboundMessage[any]{Type: "resolution", Payload: res})
}
