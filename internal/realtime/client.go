package realtime

import (
	"github.com/google/uuid"

	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
)

// Client is one live socket connection. TransportID rotates on reconnect;
// SessionID does not.
type Client struct {
	TransportID string
	SessionID   uuid.UUID
	Outbound    chan Message
	done        chan struct{}
	Logger      *logger.Logger
}

// Done is closed when the hub releases the client.
func (c *Client) Done() <-chan struct{} { return c.done }
