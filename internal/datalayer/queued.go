package datalayer

import (
	"context"

	"github.com/google/uuid"

	types "github.com/tkoivu/threadline-backend/internal/domain"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
	"github.com/tkoivu/threadline-backend/internal/session"
)

// QueuedDataLayer wraps a live DataLayer with the per-session write queue.
// Until the session sees its first user message, step and element writes
// are buffered; the first user-message CreateStep drains the buffer in
// arrival order before being applied itself. User, thread and feedback
// operations always pass through.
//
// Rationale: a thread id is not known to be "real" until the user commits
// to it by sending a message; deferring writes prevents orphan steps for
// abandoned sessions.
type QueuedDataLayer struct {
	live DataLayer
	sess *session.Session
	log  *logger.Logger
}

var _ DataLayer = (*QueuedDataLayer)(nil)

func Queued(live DataLayer, sess *session.Session, log *logger.Logger) *QueuedDataLayer {
	return &QueuedDataLayer{
		live: live,
		sess: sess,
		log:  log.With("component", "QueuedDataLayer"),
	}
}

func (q *QueuedDataLayer) deferred() bool {
	return !q.sess.HasFirstInteraction()
}

func (q *QueuedDataLayer) GetUser(ctx context.Context, identifier string) (*types.PersistedUser, error) {
	return q.live.GetUser(ctx, identifier)
}

func (q *QueuedDataLayer) CreateUser(ctx context.Context, user *types.PersistedUser) (*types.PersistedUser, error) {
	return q.live.CreateUser(ctx, user)
}

func (q *QueuedDataLayer) UpdateThread(ctx context.Context, threadID uuid.UUID, patch ThreadPatch) error {
	return q.live.UpdateThread(ctx, threadID, patch)
}

func (q *QueuedDataLayer) GetThread(ctx context.Context, threadID uuid.UUID) (*types.Thread, error) {
	return q.live.GetThread(ctx, threadID)
}

func (q *QueuedDataLayer) GetThreadAuthor(ctx context.Context, threadID uuid.UUID) (string, error) {
	return q.live.GetThreadAuthor(ctx, threadID)
}

func (q *QueuedDataLayer) ListThreads(ctx context.Context, p Pagination, f ThreadFilter) (*PaginatedResponse, error) {
	return q.live.ListThreads(ctx, p, f)
}

func (q *QueuedDataLayer) DeleteThread(ctx context.Context, threadID uuid.UUID) error {
	return q.live.DeleteThread(ctx, threadID)
}

func (q *QueuedDataLayer) CreateStep(ctx context.Context, step *types.Step) error {
	if step != nil && step.Type == types.StepTypeUserMessage && q.deferred() {
		// First user message: flush everything buffered before this
		// write, then let it through.
		if err := q.sess.Queue().Drain(ctx); err != nil {
			return err
		}
		q.sess.MarkFirstInteraction()
		return q.live.CreateStep(ctx, step)
	}
	if q.deferred() {
		cp := *step
		q.sess.Queue().Enqueue("create_step", func(ctx context.Context) error {
			return q.live.CreateStep(ctx, &cp)
		})
		return nil
	}
	return q.live.CreateStep(ctx, step)
}

func (q *QueuedDataLayer) UpdateStep(ctx context.Context, step *types.Step) error {
	if q.deferred() {
		cp := *step
		q.sess.Queue().Enqueue("update_step", func(ctx context.Context) error {
			return q.live.UpdateStep(ctx, &cp)
		})
		return nil
	}
	return q.live.UpdateStep(ctx, step)
}

func (q *QueuedDataLayer) DeleteStep(ctx context.Context, stepID uuid.UUID) error {
	if q.deferred() {
		q.sess.Queue().Enqueue("delete_step", func(ctx context.Context) error {
			return q.live.DeleteStep(ctx, stepID)
		})
		return nil
	}
	return q.live.DeleteStep(ctx, stepID)
}

func (q *QueuedDataLayer) CreateElement(ctx context.Context, element *types.Element) error {
	if q.deferred() {
		cp := *element
		q.sess.Queue().Enqueue("create_element", func(ctx context.Context) error {
			return q.live.CreateElement(ctx, &cp)
		})
		return nil
	}
	return q.live.CreateElement(ctx, element)
}

func (q *QueuedDataLayer) GetElement(ctx context.Context, threadID, elementID uuid.UUID) (*types.Element, error) {
	return q.live.GetElement(ctx, threadID, elementID)
}

func (q *QueuedDataLayer) DeleteElement(ctx context.Context, elementID uuid.UUID) error {
	if q.deferred() {
		q.sess.Queue().Enqueue("delete_element", func(ctx context.Context) error {
			return q.live.DeleteElement(ctx, elementID)
		})
		return nil
	}
	return q.live.DeleteElement(ctx, elementID)
}

func (q *QueuedDataLayer) UpsertFeedback(ctx context.Context, feedback *types.Feedback) (uuid.UUID, error) {
	return q.live.UpsertFeedback(ctx, feedback)
}

func (q *QueuedDataLayer) DeleteFeedback(ctx context.Context, feedbackID uuid.UUID) error {
	return q.live.DeleteFeedback(ctx, feedbackID)
}

func (q *QueuedDataLayer) BuildDebugURL(ctx context.Context) string {
	return q.live.BuildDebugURL(ctx)
}
