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

type ElementRepo interface {
	Upsert(dbc dbctx.Context, row *types.Element) error
	GetByID(dbc dbctx.Context, threadID, id uuid.UUID) (*types.Element, error)
	ListByThread(dbc dbctx.Context, threadID uuid.UUID) ([]*types.Element, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
	DeleteByThread(dbc dbctx.Context, threadID uuid.UUID) error
	DeleteByStep(dbc dbctx.Context, stepID uuid.UUID) error
}

type elementRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewElementRepo(db *gorm.DB, log *logger.Logger) ElementRepo {
	return &elementRepo{db: db, log: log.With("repo", "ElementRepo")}
}

// Upsert writes the element. Most kinds are written once; the tasklist kind
// re-sends the same id with rebuilt content, which lands here as an update.
func (r *elementRepo) Upsert(dbc dbctx.Context, row *types.Element) error {
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
				"url", "objectKey", "chainlitKey", "name", "display",
				"size", "page", "language", "mime", "autoPlay",
				"playerConfig", "props",
			}),
		}).
		Create(row).Error
}

func (r *elementRepo) GetByID(dbc dbctx.Context, threadID, id uuid.UUID) (*types.Element, error) {
	if threadID == uuid.Nil || id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.Element
	if err := txx.WithContext(dbc.Ctx).
		Where(`"threadId" = ? AND "id" = ?`, threadID, id).
		Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *elementRepo) ListByThread(dbc dbctx.Context, threadID uuid.UUID) ([]*types.Element, error) {
	if threadID == uuid.Nil {
		return nil, fmt.Errorf("missing thread_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Element
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Element{}).
		Where(`"threadId" = ?`, threadID).
		Order(`"createdAt" ASC`).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *elementRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.Element{}).Error
}

func (r *elementRepo) DeleteByThread(dbc dbctx.Context, threadID uuid.UUID) error {
	if threadID == uuid.Nil {
		return fmt.Errorf("missing thread_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where(`"threadId" = ?`, threadID).
		Delete(&types.Element{}).Error
}

func (r *elementRepo) DeleteByStep(dbc dbctx.Context, stepID uuid.UUID) error {
	if stepID == uuid.Nil {
		return fmt.Errorf("missing step_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where(`"forId" = ?`, stepID).
		Delete(&types.Element{}).Error
}
