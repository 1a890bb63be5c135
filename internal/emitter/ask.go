package emitter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	types "github.com/tkoivu/threadline-backend/internal/domain"
	"github.com/tkoivu/threadline-backend/internal/domain/chat"
	apperrors "github.com/tkoivu/threadline-backend/internal/pkg/errors"
	"github.com/tkoivu/threadline-backend/internal/realtime"
	"github.com/tkoivu/threadline-backend/internal/session"
)

// AskKind selects what the UI should collect for a pending ask.
type AskKind string

const (
	AskText    AskKind = "text"
	AskFile    AskKind = "file"
	AskAction  AskKind = "action"
	AskElement AskKind = "element"
)

// AskSpec is the prompt shown to the user alongside its constraints. The
// zero Timeout falls back to 60 seconds.
type AskSpec struct {
	Kind    AskKind       `json:"type"`
	Timeout time.Duration `json:"-"`

	// File asks.
	Accept    []string `json:"accept,omitempty"`
	MaxFiles  int      `json:"max_files,omitempty"`
	MaxSizeMB int      `json:"max_size_mb,omitempty"`

	// Action asks.
	Keys []string `json:"keys,omitempty"`

	// Element asks.
	ElementID string `json:"element_id,omitempty"`

	// RaiseOnTimeout turns an expired ask into ErrTimeout instead of a
	// nil reply.
	RaiseOnTimeout bool `json:"-"`
}

// AskReply is whatever the user answered. Exactly one field is set,
// matching the ask kind.
type AskReply struct {
	Step    *types.Step             `json:"step,omitempty"`
	Files   []session.FileReference `json:"files,omitempty"`
	Action  map[string]any          `json:"action,omitempty"`
	Payload json.RawMessage         `json:"payload,omitempty"`
}

type pendingAsk struct {
	stepID uuid.UUID
	reply  chan *AskReply
}

const defaultAskTimeout = 60 * time.Second

// AskUser sends the prompt step to the UI and blocks until the user
// answers, the deadline passes or the session is stopped. Only one ask
// can be in flight per session.
func (e *Emitter) AskUser(ctx context.Context, step *types.Step, spec AskSpec) (*AskReply, error) {
	if step == nil {
		return nil, apperrors.Validationf("missing ask step")
	}
	if step.ID == uuid.Nil {
		step.ID = uuid.New()
	}
	if step.CreatedAt == "" {
		step.CreatedAt = chat.ISONow()
	}
	step.WaitForAnswer = true

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = defaultAskTimeout
	}

	pending := &pendingAsk{stepID: step.ID, reply: make(chan *AskReply, 1)}
	e.mu.Lock()
	if e.pending != nil {
		e.mu.Unlock()
		return nil, apperrors.Validationf("an ask is already pending for this session")
	}
	e.pending = pending
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		if e.pending == pending {
			e.pending = nil
		}
		e.mu.Unlock()
	}()

	if err := e.emit(ctx, realtime.EventAsk, map[string]any{
		"msg":     step,
		"spec":    spec,
		"timeout": int(timeout / time.Second),
	}); err != nil {
		return nil, err
	}
	if err := e.persist("create_step", e.dl.CreateStep(ctx, step)); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-pending.reply:
		if reply == nil && e.sess.ShouldStop() {
			// Stop clears the pending ask with a nil reply; surface it as
			// an interrupt, not a timeout. The emit path is already
			// refusing cancelled sessions, so publish the clear directly.
			_ = e.bus.Publish(context.Background(), realtime.Message{
				Channel: e.sess.TransportID(),
				Event:   realtime.EventClearAsk,
				Data:    map[string]any{"id": step.ID},
			})
			return nil, apperrors.ErrCancelled
		}
		_ = e.emit(ctx, realtime.EventClearAsk, map[string]any{"id": step.ID})
		return reply, nil
	case <-timer.C:
		_ = e.emit(ctx, realtime.EventAskTimeout, map[string]any{"id": step.ID})
		if spec.RaiseOnTimeout {
			return nil, apperrors.ErrTimeout
		}
		return nil, nil
	case <-ctx.Done():
		_ = e.bus.Publish(context.Background(), realtime.Message{
			Channel: e.sess.TransportID(),
			Event:   realtime.EventClearAsk,
			Data:    map[string]any{"id": step.ID},
		})
		if e.sess.CheckCancelled() != nil {
			return nil, apperrors.ErrCancelled
		}
		return nil, ctx.Err()
	}
}

// ResolveAsk delivers the user's answer to the pending ask, if any. The
// transport dispatcher calls this ahead of the regular message hook so a
// reply never double-fires as a fresh message.
func (e *Emitter) ResolveAsk(reply *AskReply) bool {
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()
	if pending == nil {
		return false
	}
	pending.reply <- reply
	return true
}

// HasPendingAsk reports whether the session is blocked on an answer.
func (e *Emitter) HasPendingAsk() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending != nil
}
