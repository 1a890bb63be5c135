package realtime

import (
	"sync"

	"github.com/google/uuid"

	apperrors "github.com/tkoivu/threadline-backend/internal/pkg/errors"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
)

const outboundBuffer = 64

// Hub tracks live socket clients by transport id and delivers outbound
// messages to them. Token frames are fire-and-forget: a full outbound
// buffer drops the frame rather than blocking the emitting handler, and
// the terminal step write restores consistency.
type Hub struct {
	mu      sync.RWMutex
	log     *logger.Logger
	clients map[string]*Client
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:     log.With("component", "Hub"),
		clients: make(map[string]*Client),
	}
}

func (h *Hub) NewClient(transportID string, sessionID uuid.UUID) *Client {
	client := &Client{
		TransportID: transportID,
		SessionID:   sessionID,
		Outbound:    make(chan Message, outboundBuffer),
		done:        make(chan struct{}),
		Logger:      h.log.With("transport_id", transportID),
	}
	h.mu.Lock()
	h.clients[transportID] = client
	h.mu.Unlock()
	return client
}

// Send delivers one message to the client bound to msg.Channel. A missing
// client means the session transport is gone.
func (h *Hub) Send(msg Message) error {
	if msg.Channel == "" {
		return apperrors.ErrTransportClosed
	}
	h.mu.RLock()
	client, ok := h.clients[msg.Channel]
	h.mu.RUnlock()
	if !ok {
		return apperrors.ErrTransportClosed
	}
	select {
	case client.Outbound <- msg:
		return nil
	default:
		h.log.Warn("Dropping outbound message; buffer full",
			"transport_id", msg.Channel, "event", msg.Event)
		return nil
	}
}

// Deliver routes one outbound message by its drop policy: token frames
// are fire-and-forget, everything else (ask prompts, terminal step
// frames, lifecycle events) backpressures until the client drains or
// disconnects.
func (h *Hub) Deliver(msg Message) error {
	if msg.Event == EventStreamToken {
		return h.Send(msg)
	}
	return h.SendOrBlock(msg)
}

// SendOrBlock delivers with backpressure for anything that must not be
// dropped (ask prompts, terminal step frames).
func (h *Hub) SendOrBlock(msg Message) error {
	h.mu.RLock()
	client, ok := h.clients[msg.Channel]
	h.mu.RUnlock()
	if !ok {
		return apperrors.ErrTransportClosed
	}
	select {
	case client.Outbound <- msg:
		return nil
	case <-client.done:
		return apperrors.ErrTransportClosed
	}
}

func (h *Hub) Client(transportID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[transportID]
	return c, ok
}

func (h *Hub) CloseClient(client *Client) {
	if client == nil {
		return
	}
	h.mu.Lock()
	existing, ok := h.clients[client.TransportID]
	if ok && existing == client {
		delete(h.clients, client.TransportID)
	}
	h.mu.Unlock()
	if !ok || existing != client {
		return
	}
	close(client.done)
	close(client.Outbound)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
