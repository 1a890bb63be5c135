package chat

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/tkoivu/threadline-backend/internal/domain"
	"github.com/tkoivu/threadline-backend/internal/domain/chat"
	"github.com/tkoivu/threadline-backend/internal/pkg/dbctx"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
)

type UserRepo interface {
	GetByIdentifier(dbc dbctx.Context, identifier string) (*types.PersistedUser, error)
	Upsert(dbc dbctx.Context, row *types.PersistedUser) (*types.PersistedUser, error)
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, log *logger.Logger) UserRepo {
	return &userRepo{db: db, log: log.With("repo", "UserRepo")}
}

func (r *userRepo) GetByIdentifier(dbc dbctx.Context, identifier string) (*types.PersistedUser, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("missing identifier")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.PersistedUser
	if err := txx.WithContext(dbc.Ctx).
		Where("identifier = ?", identifier).
		Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// Upsert is keyed on identifier: an existing row keeps its surrogate id and
// creation timestamp, only metadata is refreshed.
func (r *userRepo) Upsert(dbc dbctx.Context, row *types.PersistedUser) (*types.PersistedUser, error) {
	if row == nil || strings.TrimSpace(row.Identifier) == "" {
		return nil, fmt.Errorf("missing identifier")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if row.CreatedAt == "" {
		row.CreatedAt = chat.ISONow()
	}
	if len(row.Metadata) == 0 {
		row.Metadata = []byte("{}")
	}
	if err := txx.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identifier"}},
			DoUpdates: clause.AssignmentColumns([]string{"metadata"}),
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	return r.GetByIdentifier(dbc, row.Identifier)
}
