package app

import (
	"github.com/gin-gonic/gin"

	"github.com/tkoivu/threadline-backend/internal/server"
)

func wireRouter(cfg Config, handlerset Handlers, mw Middleware) *gin.Engine {
	storageDir := ""
	if cfg.GCSBucket == "" {
		storageDir = cfg.StorageRoot
	}
	return server.NewRouter(server.RouterConfig{
		AuthMiddleware:  mw.Auth,
		ThreadHandler:   handlerset.Thread,
		FeedbackHandler: handlerset.Feedback,
		ElementHandler:  handlerset.Element,
		UploadHandler:   handlerset.Upload,
		SocketHandler:   handlerset.Socket,
		StorageDir:      storageDir,
		AllowOrigins:    cfg.AllowOrigins,
	})
}
