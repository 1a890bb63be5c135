package bus

import (
	"context"

	"github.com/tkoivu/threadline-backend/internal/realtime"
)

// Bus fans outbound messages across processes so an emit on one node
// reaches the socket held by another. Single-node deployments use the
// local loopback.
type Bus interface {
	Publish(ctx context.Context, msg realtime.Message) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error
	Close() error
}

// Local is the single-node Bus: publish forwards straight to the hub.
type Local struct {
	onMsg func(m realtime.Message)
}

func NewLocal() *Local { return &Local{} }

func (b *Local) Publish(ctx context.Context, msg realtime.Message) error {
	if b.onMsg != nil {
		b.onMsg(msg)
	}
	return nil
}

func (b *Local) StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error {
	b.onMsg = onMsg
	return nil
}

func (b *Local) Close() error { return nil }
