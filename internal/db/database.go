package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	types "github.com/tkoivu/threadline-backend/internal/domain"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
)

// Service owns the durable schema. It accepts either a postgres DSN
// (postgres:// or postgresql://) or a sqlite path; an empty DSN falls back
// to an in-memory sqlite database, which is enough for headless demos.
type Service struct {
	db      *gorm.DB
	log     *logger.Logger
	dialect string
}

func New(log *logger.Logger, dsn string) (*Service, error) {
	serviceLog := log.With("service", "DBService")
	dsn = strings.TrimSpace(dsn)

	var (
		dial    gorm.Dialector
		dialect string
	)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		dial = postgres.Open(dsn)
		dialect = "postgres"
	case dsn == "":
		dial = sqlite.Open("file::memory:?cache=shared")
		dialect = "sqlite"
	default:
		dial = sqlite.Open(dsn)
		dialect = "sqlite"
	}

	serviceLog.Info("Connecting to database...", "dialect", dialect)
	gdb, err := gorm.Open(dial, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	return &Service{db: gdb, log: serviceLog, dialect: dialect}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) Dialect() string { return s.dialect }

// AutoMigrateAll creates the five conversation relations and, on postgres,
// the cascade constraints that make DeleteThread a single statement. The
// sqlite dialect relies on the data layer's explicit cascade instead.
func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating conversation tables...")
	if err := s.db.AutoMigrate(
		&types.PersistedUser{},
		&types.Thread{},
		&types.Step{},
		&types.Element{},
		&types.Feedback{},
	); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if s.dialect != "postgres" {
		return nil
	}
	s.log.Info("Configuring foreign key relationships...")
	alters := []struct {
		name string
		sql  string
	}{
		{"fk_threads_user", `
			ALTER TABLE "threads"
			ADD CONSTRAINT "fk_threads_user"
			FOREIGN KEY ("userId") REFERENCES "users"("id")
			ON DELETE CASCADE`},
		{"fk_steps_thread", `
			ALTER TABLE "steps"
			ADD CONSTRAINT "fk_steps_thread"
			FOREIGN KEY ("threadId") REFERENCES "threads"("id")
			ON DELETE CASCADE`},
		{"fk_elements_thread", `
			ALTER TABLE "elements"
			ADD CONSTRAINT "fk_elements_thread"
			FOREIGN KEY ("threadId") REFERENCES "threads"("id")
			ON DELETE CASCADE`},
		{"fk_feedbacks_thread", `
			ALTER TABLE "feedbacks"
			ADD CONSTRAINT "fk_feedbacks_thread"
			FOREIGN KEY ("threadId") REFERENCES "threads"("id")
			ON DELETE CASCADE`},
	}
	for _, a := range alters {
		drop := fmt.Sprintf(`ALTER TABLE %q DROP CONSTRAINT IF EXISTS %q`, tableFor(a.name), a.name)
		if err := s.db.Exec(drop).Error; err != nil {
			return fmt.Errorf("drop %s: %w", a.name, err)
		}
		if err := s.db.Exec(a.sql).Error; err != nil {
			return fmt.Errorf("add %s: %w", a.name, err)
		}
	}
	return nil
}

func tableFor(constraint string) string {
	switch constraint {
	case "fk_threads_user":
		return "threads"
	case "fk_steps_thread":
		return "steps"
	case "fk_elements_thread":
		return "elements"
	case "fk_feedbacks_thread":
		return "feedbacks"
	}
	return ""
}
