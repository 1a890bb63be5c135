package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tkoivu/threadline-backend/internal/datalayer"
	"github.com/tkoivu/threadline-backend/internal/db"
	"github.com/tkoivu/threadline-backend/internal/hooks"
	"github.com/tkoivu/threadline-backend/internal/observability"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
	"github.com/tkoivu/threadline-backend/internal/realtime"
	"github.com/tkoivu/threadline-backend/internal/realtime/bus"
	"github.com/tkoivu/threadline-backend/internal/session"
	"github.com/tkoivu/threadline-backend/internal/storage"
)

type App struct {
	Log       *logger.Logger
	Cfg       Config
	DB        *gorm.DB
	Router    *gin.Engine
	Repos     Repos
	DataLayer datalayer.DataLayer
	Hub       *realtime.Hub
	Bus       bus.Bus
	Sessions  *session.Registry
	Storage   storage.Client

	cancel       context.CancelFunc
	otelShutdown func(context.Context) error
}

const shutdownTimeout = 5 * time.Second

// New assembles the whole process. The hook registry carries the caller's
// conversation callbacks; pass an empty one for a bare persistence server.
func New(configFile string, hookSet *hooks.Registry) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log, configFile)
	if err != nil {
		log.Sync()
		return nil, err
	}

	dbService, err := db.New(log, cfg.DatabaseURL)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	theDB := dbService.DB()

	hub := realtime.NewHub(log)
	var b bus.Bus
	if cfg.RedisAddr != "" {
		b, err = bus.NewRedis(log, cfg.RedisAddr, "")
		if err != nil {
			log.Sync()
			return nil, fmt.Errorf("init redis bus: %w", err)
		}
	} else {
		b = bus.NewLocal()
	}

	store, err := resolveStorageClient(log, cfg)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	reposet := wireRepos(theDB, log)
	dl := datalayer.NewGormDataLayer(theDB, log)
	sessions := session.NewRegistry(log)
	if hookSet == nil {
		hookSet = &hooks.Registry{}
	}

	mw := wireMiddleware(log, cfg)
	handlerset := wireHandlers(log, cfg, dl, hub, b, sessions, hookSet, store, mw.Auth)
	router := wireRouter(cfg, handlerset, mw)

	return &App{
		Log:       log,
		Cfg:       cfg,
		DB:        theDB,
		Router:    router,
		Repos:     reposet,
		DataLayer: dl,
		Hub:       hub,
		Bus:       b,
		Sessions:  sessions,
		Storage:   store,
	}, nil
}

// Start launches the background plumbing: the bus forwarder that feeds
// the hub and, when enabled, tracing.
func (a *App) Start() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.otelShutdown = observability.InitOTel(ctx, a.Log, observability.OtelConfig{
		ServiceName: "threadline",
		Environment: a.Cfg.LogMode,
	})

	return a.Bus.StartForwarder(ctx, func(m realtime.Message) {
		if err := a.Hub.Deliver(m); err != nil {
			a.Log.Debug("Dropping message for absent transport", "channel", m.Channel, "event", m.Event)
		}
	})
}

func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Listening", "addr", a.Cfg.Addr())
	return a.Router.Run(a.Cfg.Addr())
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_ = a.otelShutdown(ctx)
		cancel()
		a.otelShutdown = nil
	}
	if a.Bus != nil {
		_ = a.Bus.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
