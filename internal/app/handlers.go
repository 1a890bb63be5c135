package app

import (
	"github.com/tkoivu/threadline-backend/internal/datalayer"
	"github.com/tkoivu/threadline-backend/internal/handlers"
	"github.com/tkoivu/threadline-backend/internal/hooks"
	"github.com/tkoivu/threadline-backend/internal/middleware"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
	"github.com/tkoivu/threadline-backend/internal/realtime"
	"github.com/tkoivu/threadline-backend/internal/realtime/bus"
	"github.com/tkoivu/threadline-backend/internal/session"
	"github.com/tkoivu/threadline-backend/internal/storage"
)

type Handlers struct {
	Thread   *handlers.ThreadHandler
	Feedback *handlers.FeedbackHandler
	Element  *handlers.ElementHandler
	Upload   *handlers.UploadHandler
	Socket   *handlers.SocketHandler
}

func wireHandlers(
	log *logger.Logger,
	cfg Config,
	dl datalayer.DataLayer,
	hub *realtime.Hub,
	b bus.Bus,
	sessions *session.Registry,
	hookSet *hooks.Registry,
	store storage.Client,
	auth *middleware.AuthMiddleware,
) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Thread:   handlers.NewThreadHandler(log, dl),
		Feedback: handlers.NewFeedbackHandler(log, dl, hookSet),
		Element:  handlers.NewElementHandler(log, dl),
		Upload:   handlers.NewUploadHandler(log, sessions),
		Socket:   handlers.NewSocketHandler(log, dl, hub, b, sessions, hookSet, store, auth, cfg.StorageRoot),
	}
}
