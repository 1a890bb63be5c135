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

type StepRepo interface {
	Upsert(dbc dbctx.Context, row *types.Step) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Step, error)
	ExistsInThread(dbc dbctx.Context, threadID, id uuid.UUID) (bool, error)
	ListByThread(dbc dbctx.Context, threadID uuid.UUID) ([]*types.Step, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
	DeleteByThread(dbc dbctx.Context, threadID uuid.UUID) error
}

type stepRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStepRepo(db *gorm.DB, log *logger.Logger) StepRepo {
	return &stepRepo{db: db, log: log.With("repo", "StepRepo")}
}

// Upsert writes the step, replacing mutable fields when the id already
// exists. Re-sending an id is how the emitter finalizes a streamed step.
func (r *stepRepo) Upsert(dbc dbctx.Context, row *types.Step) error {
	if row == nil || row.ID == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "type", "input", "output", "metadata", "tags",
				"start", "end", "generation", "showInput", "language",
				"streaming", "waitForAnswer", "isError",
			}),
		}).
		Create(row).Error
}

func (r *stepRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Step, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.Step
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

func (r *stepRepo) ExistsInThread(dbc dbctx.Context, threadID, id uuid.UUID) (bool, error) {
	if threadID == uuid.Nil || id == uuid.Nil {
		return false, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var count int64
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Step{}).
		Where(`"threadId" = ? AND "id" = ?`, threadID, id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *stepRepo) ListByThread(dbc dbctx.Context, threadID uuid.UUID) ([]*types.Step, error) {
	if threadID == uuid.Nil {
		return nil, fmt.Errorf("missing thread_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Step
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Step{}).
		Where(`"threadId" = ?`, threadID).
		Order(`"start" ASC, "createdAt" ASC`).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *stepRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if len(updates) == 0 {
		return nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.Step{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *stepRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.Step{}).Error
}

func (r *stepRepo) DeleteByThread(dbc dbctx.Context, threadID uuid.UUID) error {
	if threadID == uuid.Nil {
		return fmt.Errorf("missing thread_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where(`"threadId" = ?`, threadID).
		Delete(&types.Step{}).Error
}
