package emitter

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/tkoivu/threadline-backend/internal/datalayer"
	types "github.com/tkoivu/threadline-backend/internal/domain"
	"github.com/tkoivu/threadline-backend/internal/domain/chat"
	apperrors "github.com/tkoivu/threadline-backend/internal/pkg/errors"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
	"github.com/tkoivu/threadline-backend/internal/realtime"
	"github.com/tkoivu/threadline-backend/internal/session"
	"github.com/tkoivu/threadline-backend/internal/storage"
)

// captureBus records published transport messages in order.
type captureBus struct {
	mu       sync.Mutex
	messages []realtime.Message
}

func (b *captureBus) Publish(ctx context.Context, msg realtime.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
	return nil
}

func (b *captureBus) StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error {
	return nil
}
func (b *captureBus) Close() error { return nil }

func (b *captureBus) events() []realtime.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]realtime.Event, 0, len(b.messages))
	for _, m := range b.messages {
		out = append(out, m.Event)
	}
	return out
}

// stubLayer is a DataLayer that records writes and optionally fails them.
type stubLayer struct {
	mu    sync.Mutex
	calls []string
	steps map[uuid.UUID]*types.Step
	err   error
}

func newStubLayer() *stubLayer {
	return &stubLayer{steps: map[uuid.UUID]*types.Step{}}
}

func (s *stubLayer) record(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, op)
	return nil
}

func (s *stubLayer) GetUser(ctx context.Context, identifier string) (*types.PersistedUser, error) {
	return nil, nil
}
func (s *stubLayer) CreateUser(ctx context.Context, user *types.PersistedUser) (*types.PersistedUser, error) {
	return user, nil
}
func (s *stubLayer) UpdateThread(ctx context.Context, threadID uuid.UUID, patch datalayer.ThreadPatch) error {
	return s.record("update_thread")
}
func (s *stubLayer) GetThread(ctx context.Context, threadID uuid.UUID) (*types.Thread, error) {
	return nil, nil
}
func (s *stubLayer) GetThreadAuthor(ctx context.Context, threadID uuid.UUID) (string, error) {
	return "", apperrors.ErrNotFound
}
func (s *stubLayer) ListThreads(ctx context.Context, p datalayer.Pagination, f datalayer.ThreadFilter) (*datalayer.PaginatedResponse, error) {
	return &datalayer.PaginatedResponse{}, nil
}
func (s *stubLayer) DeleteThread(ctx context.Context, threadID uuid.UUID) error {
	return s.record("delete_thread")
}
func (s *stubLayer) CreateStep(ctx context.Context, step *types.Step) error {
	if err := s.record("create_step"); err != nil {
		return err
	}
	s.mu.Lock()
	cp := *step
	s.steps[step.ID] = &cp
	s.mu.Unlock()
	return nil
}
func (s *stubLayer) UpdateStep(ctx context.Context, step *types.Step) error {
	if err := s.record("update_step"); err != nil {
		return err
	}
	s.mu.Lock()
	cp := *step
	s.steps[step.ID] = &cp
	s.mu.Unlock()
	return nil
}
func (s *stubLayer) DeleteStep(ctx context.Context, stepID uuid.UUID) error {
	return s.record("delete_step")
}
func (s *stubLayer) CreateElement(ctx context.Context, element *types.Element) error {
	return s.record("create_element")
}
func (s *stubLayer) GetElement(ctx context.Context, threadID, elementID uuid.UUID) (*types.Element, error) {
	return nil, nil
}
func (s *stubLayer) DeleteElement(ctx context.Context, elementID uuid.UUID) error {
	return s.record("delete_element")
}
func (s *stubLayer) UpsertFeedback(ctx context.Context, feedback *types.Feedback) (uuid.UUID, error) {
	return uuid.New(), s.record("upsert_feedback")
}
func (s *stubLayer) DeleteFeedback(ctx context.Context, feedbackID uuid.UUID) error {
	return s.record("delete_feedback")
}
func (s *stubLayer) BuildDebugURL(ctx context.Context) string { return "" }

var _ datalayer.DataLayer = (*stubLayer)(nil)

// uploadRecorder is a storage client that remembers upload order relative
// to data-layer writes.
type uploadRecorder struct {
	layer   *stubLayer
	uploads []string
	bodies  [][]byte

	persistedAt []int
}

// persistedAt records, for each upload, how many data-layer writes had
// already happened when it ran.
func (u *uploadRecorder) Upload(ctx context.Context, key string, data []byte, mime string, overwrite bool) (storage.Uploaded, error) {
	u.layer.mu.Lock()
	persisted := len(u.layer.calls)
	u.layer.mu.Unlock()
	u.uploads = append(u.uploads, key)
	u.bodies = append(u.bodies, append([]byte(nil), data...))
	u.persistedAt = append(u.persistedAt, persisted)
	return storage.Uploaded{ObjectKey: key, URL: "http://localhost:8000/storage/" + key}, nil
}

func (u *uploadRecorder) Delete(ctx context.Context, key string) error { return nil }

func fixture(t *testing.T) (*captureBus, *stubLayer, *session.Session, *Emitter) {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	b := &captureBus{}
	dl := newStubLayer()
	sess := session.New(log, session.Options{TransportID: "t-1"})
	sess.SetThreadID(uuid.New())
	store := &uploadRecorder{layer: dl}
	return b, dl, sess, New(log, sess, dl, store, b)
}

func messageStep(threadID uuid.UUID, output string) *types.Step {
	at := chat.ISONow()
	return &types.Step{
		ID:        uuid.New(),
		ThreadID:  threadID,
		Type:      chat.StepTypeAssistantMessage,
		Name:      "assistant",
		Output:    output,
		CreatedAt: at,
		Start:     &at,
	}
}

func TestSendStepEmitsAndPersists(t *testing.T) {
	b, dl, sess, em := fixture(t)
	ctx := context.Background()

	if err := em.SendStep(ctx, messageStep(sess.ThreadID(), "hello")); err != nil {
		t.Fatalf("SendStep: %v", err)
	}
	events := b.events()
	if len(events) != 1 || events[0] != realtime.EventNewMessage {
		t.Fatalf("expected one new_message, got %v", events)
	}
	if len(dl.calls) != 1 || dl.calls[0] != "create_step" {
		t.Fatalf("expected one create_step, got %v", dl.calls)
	}
	if b.messages[0].Channel != sess.TransportID() {
		t.Fatalf("message addressed to wrong channel: %q", b.messages[0].Channel)
	}
}

func TestStreamingTerminalWriteIsAuthoritative(t *testing.T) {
	b, dl, sess, em := fixture(t)
	ctx := context.Background()

	step := messageStep(sess.ThreadID(), "")
	if err := em.StreamStart(ctx, step); err != nil {
		t.Fatalf("StreamStart: %v", err)
	}
	if !step.Streaming {
		t.Fatal("StreamStart must mark the step streaming")
	}
	for _, tok := range []string{"Hel", "lo ", "world"} {
		if err := em.SendToken(ctx, step.ID, tok, false, false); err != nil {
			t.Fatalf("SendToken: %v", err)
		}
	}
	// A sequence token replaces everything buffered so far.
	if err := em.SendToken(ctx, step.ID, "Hello world!", true, false); err != nil {
		t.Fatalf("SendToken (sequence): %v", err)
	}

	if len(dl.calls) != 0 {
		t.Fatalf("tokens must never persist, got %v", dl.calls)
	}

	terminal := *step
	terminal.Output = ""
	if err := em.SendStep(ctx, &terminal); err != nil {
		t.Fatalf("SendStep (terminal): %v", err)
	}
	if terminal.Output != "Hello world!" {
		t.Fatalf("terminal write should carry the buffered content, got %q", terminal.Output)
	}
	if terminal.Streaming {
		t.Fatal("terminal write must clear the streaming flag")
	}
	if terminal.End == nil {
		t.Fatal("terminal write should stamp an end time")
	}

	events := b.events()
	wantTail := []realtime.Event{realtime.EventStreamEnd, realtime.EventNewMessage}
	if len(events) < len(wantTail) {
		t.Fatalf("too few events: %v", events)
	}
	for i, want := range wantTail {
		if events[len(events)-len(wantTail)+i] != want {
			t.Fatalf("expected tail %v, got %v", wantTail, events)
		}
	}
	persisted := dl.steps[step.ID]
	if persisted == nil || persisted.Output != "Hello world!" {
		t.Fatalf("persisted step should carry the full content: %+v", persisted)
	}
}

func TestSendTokenToInputBuffer(t *testing.T) {
	_, _, sess, em := fixture(t)
	ctx := context.Background()

	step := messageStep(sess.ThreadID(), "")
	if err := em.StreamStart(ctx, step); err != nil {
		t.Fatalf("StreamStart: %v", err)
	}
	if err := em.SendToken(ctx, step.ID, `{"query": "x"}`, false, true); err != nil {
		t.Fatalf("SendToken (input): %v", err)
	}
	terminal := *step
	if err := em.UpdateStep(ctx, &terminal); err != nil {
		t.Fatalf("UpdateStep: %v", err)
	}
	if terminal.Input != `{"query": "x"}` {
		t.Fatalf("input tokens should land in Input, got %q", terminal.Input)
	}
	if terminal.Output != "" {
		t.Fatalf("input tokens must not leak into Output, got %q", terminal.Output)
	}
}

func TestCancellationStopsEmits(t *testing.T) {
	b, dl, sess, em := fixture(t)
	ctx := context.Background()

	sess.SetShouldStop(true)
	err := em.SendStep(ctx, messageStep(sess.ThreadID(), "too late"))
	if !errors.Is(err, apperrors.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if len(b.messages) != 0 || len(dl.calls) != 0 {
		t.Fatal("a cancelled emit must not transmit or persist")
	}

	// TaskEnd still goes out so the UI spinner clears.
	if err := em.TaskEnd(ctx); err != nil {
		t.Fatalf("TaskEnd: %v", err)
	}
	if events := b.events(); len(events) != 1 || events[0] != realtime.EventTaskEnd {
		t.Fatalf("task_end should bypass cancellation, got %v", events)
	}
}

func TestPersistenceErrorsAreSwallowedByDefault(t *testing.T) {
	_, dl, sess, em := fixture(t)
	ctx := context.Background()

	dl.err = apperrors.Persistence(errors.New("db down"))
	if err := em.SendStep(ctx, messageStep(sess.ThreadID(), "x")); err != nil {
		t.Fatalf("transient persistence failure should be swallowed, got %v", err)
	}

	em.FailOnPersistError = true
	if err := em.SendStep(ctx, messageStep(sess.ThreadID(), "y")); !errors.Is(err, apperrors.ErrPersistence) {
		t.Fatalf("FailOnPersistError should propagate, got %v", err)
	}
}

func TestSendElementUploadsBeforePersisting(t *testing.T) {
	b, dl, sess, em := fixture(t)
	ctx := context.Background()

	element := &types.Element{
		ThreadID: sess.ThreadID(),
		ForID:    uuid.New(),
		Type:     chat.ElementTypeImage,
		Name:     "chart.png",
		Display:  chat.ElementDisplayInline,
		Content:  []byte("pngbytes"),
	}
	if err := em.SendElement(ctx, element); err != nil {
		t.Fatalf("SendElement: %v", err)
	}
	if element.ObjectKey == nil || element.URL == nil {
		t.Fatalf("upload should fill objectKey and url: %+v", element)
	}
	if element.Content != nil {
		t.Fatal("inline content must be dropped after upload")
	}
	if len(dl.calls) != 1 || dl.calls[0] != "create_element" {
		t.Fatalf("expected create_element after upload, got %v", dl.calls)
	}
	rec := em.store.(*uploadRecorder)
	if len(rec.persistedAt) != 1 || rec.persistedAt[0] != 0 {
		t.Fatalf("upload must run before the row is written, got %v", rec.persistedAt)
	}
	if events := b.events(); events[len(events)-1] != realtime.EventElement {
		t.Fatalf("expected element event, got %v", events)
	}
}

func TestSendElementRejectsAmbiguousSources(t *testing.T) {
	_, _, sess, em := fixture(t)
	ctx := context.Background()

	url := "https://example.com/x.png"
	ambiguous := &types.Element{
		ThreadID: sess.ThreadID(),
		Type:     chat.ElementTypeImage,
		Name:     "x.png",
		URL:      &url,
		Content:  []byte("also inline"),
	}
	if err := em.SendElement(ctx, ambiguous); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("two sources should be rejected, got %v", err)
	}

	empty := &types.Element{
		ThreadID: sess.ThreadID(),
		Type:     chat.ElementTypeImage,
		Name:     "empty.png",
	}
	if err := em.SendElement(ctx, empty); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("no source should be rejected, got %v", err)
	}
}
