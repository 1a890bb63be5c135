package chat

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/tkoivu/threadline-backend/internal/domain"
	"github.com/tkoivu/threadline-backend/internal/pkg/dbctx"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
)

type FeedbackRepo interface {
	Upsert(dbc dbctx.Context, row *types.Feedback) (*types.Feedback, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Feedback, error)
	ListByStep(dbc dbctx.Context, stepID uuid.UUID) ([]*types.Feedback, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
	DeleteByThread(dbc dbctx.Context, threadID uuid.UUID) error
	DeleteByStep(dbc dbctx.Context, stepID uuid.UUID) error
}

type feedbackRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFeedbackRepo(db *gorm.DB, log *logger.Logger) FeedbackRepo {
	return &feedbackRepo{db: db, log: log.With("repo", "FeedbackRepo")}
}

// Upsert is idempotent on id: a second write with the same id replaces
// value and comment.
func (r *feedbackRepo) Upsert(dbc dbctx.Context, row *types.Feedback) (*types.Feedback, error) {
	if row == nil {
		return nil, fmt.Errorf("missing row")
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "comment"}),
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *feedbackRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Feedback, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.Feedback
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

func (r *feedbackRepo) ListByStep(dbc dbctx.Context, stepID uuid.UUID) ([]*types.Feedback, error) {
	if stepID == uuid.Nil {
		return nil, fmt.Errorf("missing step_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Feedback
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Feedback{}).
		Where(`"forId" = ?`, stepID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *feedbackRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.Feedback{}).Error
}

func (r *feedbackRepo) DeleteByThread(dbc dbctx.Context, threadID uuid.UUID) error {
	if threadID == uuid.Nil {
		return fmt.Errorf("missing thread_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where(`"threadId" = ?`, threadID).
		Delete(&types.Feedback{}).Error
}

func (r *feedbackRepo) DeleteByStep(dbc dbctx.Context, stepID uuid.UUID) error {
	if stepID == uuid.Nil {
		return fmt.Errorf("missing step_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where(`"forId" = ?`, stepID).
		Delete(&types.Feedback{}).Error
}
