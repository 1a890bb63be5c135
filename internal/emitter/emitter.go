package emitter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tkoivu/threadline-backend/internal/datalayer"
	types "github.com/tkoivu/threadline-backend/internal/domain"
	"github.com/tkoivu/threadline-backend/internal/domain/chat"
	apperrors "github.com/tkoivu/threadline-backend/internal/pkg/errors"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
	"github.com/tkoivu/threadline-backend/internal/realtime"
	"github.com/tkoivu/threadline-backend/internal/realtime/bus"
	"github.com/tkoivu/threadline-backend/internal/session"
	"github.com/tkoivu/threadline-backend/internal/storage"
)

// Emitter is the per-session surface the application calls to announce
// steps, elements, tokens and prompts. Every call fans out to a transport
// send and, for persistent events, to a data-layer call routed through the
// session's write queue.
//
// Transient persistence failures are logged and dropped; the UI already
// has the content. FailOnPersistError forces propagation for critical
// messages.
type Emitter struct {
	log   *logger.Logger
	sess  *session.Session
	dl    datalayer.DataLayer
	store storage.Client
	bus   bus.Bus

	FailOnPersistError bool

	mu      sync.Mutex
	streams map[uuid.UUID]*streamBuffer
	pending *pendingAsk
}

type streamBuffer struct {
	input  strings.Builder
	output strings.Builder
}

func New(log *logger.Logger, sess *session.Session, dl datalayer.DataLayer, store storage.Client, b bus.Bus) *Emitter {
	return &Emitter{
		log:     log.With("component", "Emitter", "session_id", sess.ID.String()),
		sess:    sess,
		dl:      dl,
		store:   store,
		bus:     b,
		streams: map[uuid.UUID]*streamBuffer{},
	}
}

func (e *Emitter) Session() *session.Session { return e.sess }

// emit publishes one transport message addressed to this session's socket.
// ErrTransportClosed is swallowed after logging; the session may be
// between reconnects.
func (e *Emitter) emit(ctx context.Context, event realtime.Event, data any) error {
	if err := e.sess.CheckCancelled(); err != nil {
		return err
	}
	msg := realtime.Message{Channel: e.sess.TransportID(), Event: event, Data: data}
	if err := e.bus.Publish(ctx, msg); err != nil {
		if errors.Is(err, apperrors.ErrTransportClosed) {
			e.log.Debug("Transport gone while emitting", "event", event)
			return nil
		}
		e.log.Warn("Failed to publish transport message", "event", event, "error", err)
		return nil
	}
	return nil
}

func (e *Emitter) persist(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperrors.ErrPersistence) && !e.FailOnPersistError {
		e.log.Warn("Dropping transient persistence error", "op", op, "error", err)
		return nil
	}
	return err
}

// SendStep transmits the step and creates it durably. The first send is
// the creation; re-sending the same id lands as an upsert.
func (e *Emitter) SendStep(ctx context.Context, step *types.Step) error {
	if step == nil {
		return apperrors.Validationf("missing step")
	}
	e.finishStream(step)
	if err := e.emit(ctx, realtime.EventNewMessage, step); err != nil {
		return err
	}
	return e.persist("create_step", e.dl.CreateStep(ctx, step))
}

// UpdateStep transmits an update (the UI replaces by id) and merges it
// durably.
func (e *Emitter) UpdateStep(ctx context.Context, step *types.Step) error {
	if step == nil {
		return apperrors.Validationf("missing step")
	}
	e.finishStream(step)
	if err := e.emit(ctx, realtime.EventUpdateMessage, step); err != nil {
		return err
	}
	return e.persist("update_step", e.dl.UpdateStep(ctx, step))
}

func (e *Emitter) DeleteStep(ctx context.Context, stepID uuid.UUID) error {
	if err := e.emit(ctx, realtime.EventDeleteMessage, map[string]any{"id": stepID}); err != nil {
		return err
	}
	return e.persist("delete_step", e.dl.DeleteStep(ctx, stepID))
}

// StreamStart opens a token stream for the step. Tokens are best effort
// and never persisted; the terminal SendStep/UpdateStep carries the full
// buffered content and is authoritative.
func (e *Emitter) StreamStart(ctx context.Context, step *types.Step) error {
	if step == nil {
		return apperrors.Validationf("missing step")
	}
	step.Streaming = true
	if step.Start == nil {
		now := chat.ISONow()
		step.Start = &now
	}
	e.mu.Lock()
	e.streams[step.ID] = &streamBuffer{}
	e.mu.Unlock()
	return e.emit(ctx, realtime.EventStreamStart, step)
}

// SendToken appends (or, with isSequence, replaces) the buffered content
// of a streaming step and forwards the token to the UI.
func (e *Emitter) SendToken(ctx context.Context, stepID uuid.UUID, token string, isSequence, isInput bool) error {
	e.mu.Lock()
	buf, ok := e.streams[stepID]
	if ok {
		target := &buf.output
		if isInput {
			target = &buf.input
		}
		if isSequence {
			target.Reset()
		}
		target.WriteString(token)
	}
	e.mu.Unlock()
	if !ok {
		return apperrors.Validationf("no open stream for step %s", stepID)
	}
	return e.emit(ctx, realtime.EventStreamToken, map[string]any{
		"id":         stepID,
		"token":      token,
		"isSequence": isSequence,
		"isInput":    isInput,
	})
}

// finishStream closes any open stream for the step and folds the buffered
// content into it, making the terminal write authoritative even when
// individual tokens were dropped.
func (e *Emitter) finishStream(step *types.Step) {
	e.mu.Lock()
	buf, ok := e.streams[step.ID]
	if ok {
		delete(e.streams, step.ID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	if out := buf.output.String(); step.Output == "" && out != "" {
		step.Output = out
	}
	if in := buf.input.String(); step.Input == "" && in != "" {
		step.Input = in
	}
	step.Streaming = false
	if step.End == nil {
		now := chat.ISONow()
		step.End = &now
	}
	_ = e.emit(context.Background(), realtime.EventStreamEnd, map[string]any{"id": step.ID})
}

// SendElement uploads inline content to object storage (before the row is
// written, so the stored URL is always resolvable on read-back), transmits
// the element and persists it.
func (e *Emitter) SendElement(ctx context.Context, element *types.Element) error {
	if err := e.prepareElement(ctx, element); err != nil {
		return err
	}
	if err := e.emit(ctx, realtime.EventElement, element); err != nil {
		return err
	}
	return e.persist("create_element", e.dl.CreateElement(ctx, element))
}

// UpdateElement re-sends a mutable element (tasklist) under its original
// id.
func (e *Emitter) UpdateElement(ctx context.Context, element *types.Element) error {
	return e.SendElement(ctx, element)
}

func (e *Emitter) RemoveElement(ctx context.Context, elementID uuid.UUID) error {
	if err := e.emit(ctx, realtime.EventRemoveElement, map[string]any{"id": elementID}); err != nil {
		return err
	}
	return e.persist("delete_element", e.dl.DeleteElement(ctx, elementID))
}

func (e *Emitter) prepareElement(ctx context.Context, element *types.Element) error {
	if element == nil {
		return apperrors.Validationf("missing element")
	}
	if !element.Type.Valid() {
		return apperrors.Validationf("unknown element type %q", element.Type)
	}
	hasURL := element.URL != nil && *element.URL != ""
	hasKey := element.ObjectKey != nil && *element.ObjectKey != ""
	hasContent := len(element.Content) > 0
	sources := 0
	for _, has := range []bool{hasURL, hasKey, hasContent} {
		if has {
			sources++
		}
	}
	if sources != 1 {
		return apperrors.Validationf("element %q needs exactly one of url, object key or content", element.Name)
	}
	if element.ID == uuid.Nil {
		element.ID = uuid.New()
	}
	if element.CreatedAt == "" {
		element.CreatedAt = chat.ISONow()
	}
	if !hasContent {
		return nil
	}
	if e.store == nil {
		return apperrors.Validationf("element %q has inline content but no storage client is configured", element.Name)
	}
	if err := e.sess.CheckCancelled(); err != nil {
		return err
	}
	mime := ""
	if element.Mime != nil {
		mime = *element.Mime
	}
	key := fmt.Sprintf("threads/%s/files/%s", element.ThreadID, element.ID)
	uploaded, err := e.store.Upload(ctx, key, element.Content, mime, true)
	if err != nil {
		return e.persist("upload_element", err)
	}
	element.ObjectKey = &uploaded.ObjectKey
	element.URL = &uploaded.URL
	size := fmt.Sprintf("%d", len(element.Content))
	element.Size = &size
	element.Content = nil
	return nil
}

// Pure UI events; none of these persist anything.

func (e *Emitter) TaskStart(ctx context.Context) error {
	return e.emit(ctx, realtime.EventTaskStart, nil)
}

// TaskEnd ignores the cancellation flag: a cancelled handler still needs
// to clear the UI busy indicator on its way out.
func (e *Emitter) TaskEnd(ctx context.Context) error {
	msg := realtime.Message{Channel: e.sess.TransportID(), Event: realtime.EventTaskEnd}
	if err := e.bus.Publish(ctx, msg); err != nil && !errors.Is(err, apperrors.ErrTransportClosed) {
		e.log.Warn("Failed to publish task_end", "error", err)
	}
	return nil
}

func (e *Emitter) Toast(ctx context.Context, message, toastType string) error {
	return e.emit(ctx, realtime.EventToast, map[string]any{
		"message": message,
		"type":    toastType,
	})
}

func (e *Emitter) SetChatSettings(ctx context.Context, settings map[string]interface{}) error {
	e.sess.SetChatSettings(settings)
	return e.emit(ctx, realtime.EventChatSettings, settings)
}

func (e *Emitter) TokenUsage(ctx context.Context, count int) error {
	return e.emit(ctx, realtime.EventTokenUsage, count)
}

func (e *Emitter) FirstInteraction(ctx context.Context, interaction string) error {
	return e.emit(ctx, realtime.EventFirstInteraction, map[string]any{
		"interaction": interaction,
	})
}

func (e *Emitter) ResumeThread(ctx context.Context, thread *types.Thread) error {
	return e.emit(ctx, realtime.EventResumeThread, thread)
}

func (e *Emitter) Reload(ctx context.Context) error {
	return e.emit(ctx, realtime.EventReload, nil)
}
