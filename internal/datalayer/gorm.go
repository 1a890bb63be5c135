package datalayer

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tkoivu/threadline-backend/internal/data/repos"
	types "github.com/tkoivu/threadline-backend/internal/domain"
	"github.com/tkoivu/threadline-backend/internal/domain/chat"
	"github.com/tkoivu/threadline-backend/internal/pkg/dbctx"
	apperrors "github.com/tkoivu/threadline-backend/internal/pkg/errors"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
)

// GormDataLayer is the reference DataLayer over the SQL schema. It owns all
// write authority to the durable relations; callers never issue SQL.
type GormDataLayer struct {
	db        *gorm.DB
	log       *logger.Logger
	users     repos.UserRepo
	threads   repos.ThreadRepo
	steps     repos.StepRepo
	elements  repos.ElementRepo
	feedbacks repos.FeedbackRepo
}

func NewGormDataLayer(db *gorm.DB, baseLog *logger.Logger) *GormDataLayer {
	log := baseLog.With("component", "GormDataLayer")
	return &GormDataLayer{
		db:        db,
		log:       log,
		users:     repos.NewUserRepo(db, baseLog),
		threads:   repos.NewThreadRepo(db, baseLog),
		steps:     repos.NewStepRepo(db, baseLog),
		elements:  repos.NewElementRepo(db, baseLog),
		feedbacks: repos.NewFeedbackRepo(db, baseLog),
	}
}

func (l *GormDataLayer) dbc(ctx context.Context) dbctx.Context {
	return dbctx.Context{Ctx: ctx}
}

func (l *GormDataLayer) GetUser(ctx context.Context, identifier string) (*types.PersistedUser, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, nil
	}
	u, err := l.users.GetByIdentifier(l.dbc(ctx), identifier)
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	return u, nil
}

func (l *GormDataLayer) CreateUser(ctx context.Context, user *types.PersistedUser) (*types.PersistedUser, error) {
	if user == nil || strings.TrimSpace(user.Identifier) == "" {
		return nil, apperrors.Validationf("user identifier is required")
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	out, err := l.users.Upsert(l.dbc(ctx), user)
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	return out, nil
}

// UpdateThread upserts: the thread is created if absent, then only the
// provided fields are merged. Repeating the same call is a no-op.
func (l *GormDataLayer) UpdateThread(ctx context.Context, threadID uuid.UUID, patch ThreadPatch) error {
	if threadID == uuid.Nil {
		return apperrors.Validationf("thread id is required")
	}
	dbc := l.dbc(ctx)
	existing, err := l.threads.Ensure(dbc, threadID)
	if err != nil {
		return apperrors.Persistence(err)
	}
	updates := map[string]interface{}{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.UserID != nil {
		updates["userId"] = *patch.UserID
		if u, uerr := l.userIdentifierFor(ctx, *patch.UserID); uerr == nil && u != "" {
			updates["userIdentifier"] = u
		}
	}
	if patch.Metadata != nil {
		merged := map[string]interface{}{}
		if len(existing.Metadata) > 0 {
			_ = json.Unmarshal(existing.Metadata, &merged)
		}
		for k, v := range patch.Metadata {
			merged[k] = v
		}
		raw, merr := json.Marshal(merged)
		if merr != nil {
			return apperrors.Validationf("thread metadata not serializable: %v", merr)
		}
		updates["metadata"] = raw
	}
	if patch.Tags != nil {
		raw, merr := json.Marshal(patch.Tags)
		if merr != nil {
			return apperrors.Validationf("thread tags not serializable: %v", merr)
		}
		updates["tags"] = raw
	}
	if err := l.threads.UpdateFields(dbc, threadID, updates); err != nil {
		return apperrors.Persistence(err)
	}
	return nil
}

func (l *GormDataLayer) userIdentifierFor(ctx context.Context, userID uuid.UUID) (string, error) {
	var u types.PersistedUser
	if err := l.db.WithContext(ctx).Where("id = ?", userID).Take(&u).Error; err != nil {
		return "", err
	}
	return u.Identifier, nil
}

func (l *GormDataLayer) GetThread(ctx context.Context, threadID uuid.UUID) (*types.Thread, error) {
	if threadID == uuid.Nil {
		return nil, nil
	}
	dbc := l.dbc(ctx)
	thread, err := l.threads.GetByID(dbc, threadID)
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	if thread == nil {
		return nil, nil
	}
	steps, err := l.steps.ListByThread(dbc, threadID)
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	elements, err := l.elements.ListByThread(dbc, threadID)
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	thread.Steps = steps
	thread.Elements = elements
	return thread, nil
}

func (l *GormDataLayer) GetThreadAuthor(ctx context.Context, threadID uuid.UUID) (string, error) {
	thread, err := l.threads.GetByID(l.dbc(ctx), threadID)
	if err != nil {
		return "", apperrors.Persistence(err)
	}
	if thread == nil || thread.UserIdentifier == nil || *thread.UserIdentifier == "" {
		return "", apperrors.ErrNotFound
	}
	return *thread.UserIdentifier, nil
}

func (l *GormDataLayer) ListThreads(ctx context.Context, p Pagination, f ThreadFilter) (*PaginatedResponse, error) {
	if f.UserID == uuid.Nil {
		return nil, apperrors.ErrUnauthorized
	}
	if p.First <= 0 || p.First > 100 {
		p.First = 20
	}
	q := repos.ThreadListQuery{
		UserID:        f.UserID,
		Search:        f.Search,
		FeedbackValue: f.FeedbackValue,
		Limit:         p.First + 1,
	}
	if p.Cursor != "" {
		createdAt, id, err := DecodeCursor(p.Cursor)
		if err != nil {
			return nil, apperrors.Validationf("%v", err)
		}
		q.AfterCreatedAt = createdAt
		q.AfterID = &id
	}
	rows, err := l.threads.List(l.dbc(ctx), q)
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	resp := &PaginatedResponse{Data: rows}
	if len(rows) > p.First {
		resp.PageInfo.HasNextPage = true
		resp.Data = rows[:p.First]
	}
	if len(resp.Data) > 0 {
		first := EncodeCursor(resp.Data[0].CreatedAt, resp.Data[0].ID)
		last := EncodeCursor(resp.Data[len(resp.Data)-1].CreatedAt, resp.Data[len(resp.Data)-1].ID)
		resp.PageInfo.StartCursor = &first
		resp.PageInfo.EndCursor = &last
	}
	return resp, nil
}

// DeleteThread cascades explicitly so the contract holds on dialects
// without FK cascade (sqlite with constraints disabled during migration).
func (l *GormDataLayer) DeleteThread(ctx context.Context, threadID uuid.UUID) error {
	if threadID == uuid.Nil {
		return nil
	}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := l.feedbacks.DeleteByThread(dbc, threadID); err != nil {
			return err
		}
		if err := l.elements.DeleteByThread(dbc, threadID); err != nil {
			return err
		}
		if err := l.steps.DeleteByThread(dbc, threadID); err != nil {
			return err
		}
		return l.threads.Delete(dbc, threadID)
	})
	if err != nil {
		return apperrors.Persistence(err)
	}
	return nil
}

func (l *GormDataLayer) CreateStep(ctx context.Context, step *types.Step) error {
	if err := validateStep(step); err != nil {
		return err
	}
	dbc := l.dbc(ctx)
	// A step may reference a thread nobody has materialized yet.
	if _, err := l.threads.Ensure(dbc, step.ThreadID); err != nil {
		return apperrors.Persistence(err)
	}
	if step.CreatedAt == "" {
		step.CreatedAt = chat.ISONow()
	}
	if len(step.Metadata) == 0 {
		step.Metadata = []byte("{}")
	}
	// Children can arrive before their parents; materialize a stub run
	// parent so the thread's steps stay a forest.
	if step.ParentID != nil {
		exists, err := l.steps.ExistsInThread(dbc, step.ThreadID, *step.ParentID)
		if err != nil {
			return apperrors.Persistence(err)
		}
		if !exists {
			stub := &types.Step{
				ID:        *step.ParentID,
				ThreadID:  step.ThreadID,
				Type:      types.StepTypeRun,
				Name:      step.Name,
				CreatedAt: step.CreatedAt,
				Start:     step.Start,
				End:       step.End,
				Metadata:  []byte("{}"),
			}
			if err := l.steps.Upsert(dbc, stub); err != nil {
				return apperrors.Persistence(err)
			}
		}
	}
	if err := l.steps.Upsert(dbc, step); err != nil {
		return apperrors.Persistence(err)
	}
	return nil
}

// UpdateStep merges the mutable fields onto the stored row. CreatedAt is
// never overwritten; absent optional fields are left untouched.
func (l *GormDataLayer) UpdateStep(ctx context.Context, step *types.Step) error {
	if err := validateStep(step); err != nil {
		return err
	}
	dbc := l.dbc(ctx)
	existing, err := l.steps.GetByID(dbc, step.ID)
	if err != nil {
		return apperrors.Persistence(err)
	}
	if existing == nil {
		return l.CreateStep(ctx, step)
	}
	updates := map[string]interface{}{
		"output":        step.Output,
		"streaming":     step.Streaming,
		"isError":       step.IsError,
		"waitForAnswer": step.WaitForAnswer,
	}
	if step.Name != "" {
		updates["name"] = step.Name
	}
	if step.Input != "" {
		updates["input"] = step.Input
	}
	if step.Type != "" && step.Type != types.StepTypeUndefined {
		updates["type"] = step.Type
	}
	if step.Start != nil {
		updates["start"] = *step.Start
	}
	if step.End != nil {
		updates["end"] = *step.End
	}
	if len(step.Metadata) > 0 {
		updates["metadata"] = []byte(step.Metadata)
	}
	if len(step.Tags) > 0 {
		updates["tags"] = []byte(step.Tags)
	}
	if len(step.Generation) > 0 {
		updates["generation"] = []byte(step.Generation)
	}
	if step.ShowInput != nil {
		updates["showInput"] = *step.ShowInput
	}
	if step.Language != nil {
		updates["language"] = *step.Language
	}
	if err := l.steps.UpdateFields(dbc, step.ID, updates); err != nil {
		return apperrors.Persistence(err)
	}
	return nil
}

// DeleteStep removes the step together with its elements and feedback.
func (l *GormDataLayer) DeleteStep(ctx context.Context, stepID uuid.UUID) error {
	if stepID == uuid.Nil {
		return nil
	}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := l.elements.DeleteByStep(dbc, stepID); err != nil {
			return err
		}
		if err := l.feedbacks.DeleteByStep(dbc, stepID); err != nil {
			return err
		}
		return l.steps.Delete(dbc, stepID)
	})
	if err != nil {
		return apperrors.Persistence(err)
	}
	return nil
}

func (l *GormDataLayer) CreateElement(ctx context.Context, element *types.Element) error {
	if element == nil {
		return apperrors.Validationf("missing element")
	}
	if !element.Type.Valid() {
		return apperrors.Validationf("unknown element type %q", element.Type)
	}
	hasURL := element.URL != nil && *element.URL != ""
	hasKey := element.ObjectKey != nil && *element.ObjectKey != ""
	if !hasURL && !hasKey {
		return apperrors.Validationf("element %q has no url or object key; upload its content first", element.Name)
	}
	if element.ID == uuid.Nil {
		element.ID = uuid.New()
	}
	if element.CreatedAt == "" {
		element.CreatedAt = chat.ISONow()
	}
	dbc := l.dbc(ctx)
	if _, err := l.threads.Ensure(dbc, element.ThreadID); err != nil {
		return apperrors.Persistence(err)
	}
	if err := l.elements.Upsert(dbc, element); err != nil {
		return apperrors.Persistence(err)
	}
	return nil
}

func (l *GormDataLayer) GetElement(ctx context.Context, threadID, elementID uuid.UUID) (*types.Element, error) {
	if threadID == uuid.Nil || elementID == uuid.Nil {
		return nil, nil
	}
	e, err := l.elements.GetByID(l.dbc(ctx), threadID, elementID)
	if err != nil {
		return nil, apperrors.Persistence(err)
	}
	return e, nil
}

func (l *GormDataLayer) DeleteElement(ctx context.Context, elementID uuid.UUID) error {
	if elementID == uuid.Nil {
		return nil
	}
	if err := l.elements.Delete(l.dbc(ctx), elementID); err != nil {
		return apperrors.Persistence(err)
	}
	return nil
}

func (l *GormDataLayer) UpsertFeedback(ctx context.Context, feedback *types.Feedback) (uuid.UUID, error) {
	if feedback == nil || feedback.ForID == uuid.Nil {
		return uuid.Nil, apperrors.Validationf("feedback requires a step id")
	}
	if feedback.Value != 0 && feedback.Value != 1 {
		return uuid.Nil, apperrors.Validationf("feedback value must be 0 or 1, got %d", feedback.Value)
	}
	dbc := l.dbc(ctx)
	// Feedback may land before or after the step; fill the thread id
	// opportunistically when the step is already there.
	if feedback.ThreadID == nil {
		if step, err := l.steps.GetByID(dbc, feedback.ForID); err == nil && step != nil {
			feedback.ThreadID = &step.ThreadID
		}
	}
	// A step holds at most one feedback. An id-less submission adopts the
	// existing row's id so the write replaces instead of duplicating.
	if feedback.ID == uuid.Nil {
		existing, err := l.feedbacks.ListByStep(dbc, feedback.ForID)
		if err != nil {
			return uuid.Nil, apperrors.Persistence(err)
		}
		if len(existing) > 0 {
			feedback.ID = existing[0].ID
		}
	}
	out, err := l.feedbacks.Upsert(dbc, feedback)
	if err != nil {
		return uuid.Nil, apperrors.Persistence(err)
	}
	return out.ID, nil
}

func (l *GormDataLayer) DeleteFeedback(ctx context.Context, feedbackID uuid.UUID) error {
	if feedbackID == uuid.Nil {
		return nil
	}
	if err := l.feedbacks.Delete(l.dbc(ctx), feedbackID); err != nil {
		return apperrors.Persistence(err)
	}
	return nil
}

func (l *GormDataLayer) BuildDebugURL(ctx context.Context) string { return "" }

func validateStep(step *types.Step) error {
	if step == nil {
		return apperrors.Validationf("missing step")
	}
	if step.ID == uuid.Nil {
		return apperrors.Validationf("step id is required")
	}
	if step.ThreadID == uuid.Nil {
		return apperrors.Validationf("step thread id is required")
	}
	if step.Type != "" && !step.Type.Valid() {
		return apperrors.Validationf("unknown step type %q", step.Type)
	}
	if step.Start != nil && step.End != nil {
		s, serr := chat.ParseISO(*step.Start)
		e, eerr := chat.ParseISO(*step.End)
		if serr == nil && eerr == nil && e.Before(s) {
			return apperrors.Validationf("step end precedes start")
		}
	}
	return nil
}
