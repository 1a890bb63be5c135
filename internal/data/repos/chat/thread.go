package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/tkoivu/threadline-backend/internal/domain"
	"github.com/tkoivu/threadline-backend/internal/domain/chat"
	"github.com/tkoivu/threadline-backend/internal/pkg/dbctx"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
)

type ThreadListQuery struct {
	UserID        uuid.UUID
	Search        string
	FeedbackValue *int

	// Keyset cursor: rows strictly after (createdAt desc, id desc).
	AfterCreatedAt string
	AfterID        *uuid.UUID

	Limit int
}

type ThreadRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Thread, error)
	Ensure(dbc dbctx.Context, id uuid.UUID) (*types.Thread, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	List(dbc dbctx.Context, q ThreadListQuery) ([]*types.Thread, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type threadRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewThreadRepo(db *gorm.DB, log *logger.Logger) ThreadRepo {
	return &threadRepo{db: db, log: log.With("repo", "ThreadRepo")}
}

func (r *threadRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Thread, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.Thread
	if err := txx.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// Ensure materializes the thread row if it does not exist yet. Creation is
// lazy: the first step that references a thread id brings the row to life.
func (r *threadRepo) Ensure(dbc dbctx.Context, id uuid.UUID) (*types.Thread, error) {
	existing, err := r.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	now := chat.ISONow()
	row := &types.Thread{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  []byte("{}"),
	}
	if err := txx.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		// Lost a create race; the row is there now.
		again, gerr := r.GetByID(dbc, id)
		if gerr == nil && again != nil {
			return again, nil
		}
		return nil, err
	}
	return row, nil
}

func (r *threadRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updatedAt"] = chat.ISONow()
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.Thread{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *threadRepo) List(dbc dbctx.Context, q ThreadListQuery) ([]*types.Thread, error) {
	if q.UserID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 20
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}

	query := txx.WithContext(dbc.Ctx).
		Model(&types.Thread{}).
		Where(`"userId" = ?`, q.UserID)

	if s := strings.TrimSpace(q.Search); s != "" {
		like := "%" + s + "%"
		query = query.Where(
			`("name" LIKE ? OR EXISTS (
				SELECT 1 FROM "steps"
				WHERE "steps"."threadId" = "threads"."id"
				  AND ("steps"."input" LIKE ? OR "steps"."output" LIKE ?)
			))`, like, like, like)
	}
	if q.FeedbackValue != nil {
		query = query.Where(
			`EXISTS (
				SELECT 1 FROM "feedbacks"
				WHERE "feedbacks"."threadId" = "threads"."id"
				  AND "feedbacks"."value" = ?
			)`, *q.FeedbackValue)
	}
	if q.AfterCreatedAt != "" && q.AfterID != nil {
		query = query.Where(
			`("createdAt" < ? OR ("createdAt" = ? AND "id" < ?))`,
			q.AfterCreatedAt, q.AfterCreatedAt, *q.AfterID)
	}

	var out []*types.Thread
	if err := query.
		Order(`"createdAt" DESC, "id" DESC`).
		Limit(q.Limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the thread row. The postgres schema cascades to steps,
// elements and feedbacks; the data layer performs the cascade explicitly
// first so sqlite observes the same contract.
func (r *threadRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.Thread{}).Error
}
