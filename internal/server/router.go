package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tkoivu/threadline-backend/internal/handlers"
	"github.com/tkoivu/threadline-backend/internal/middleware"
)

type RouterConfig struct {
	AuthMiddleware  *middleware.AuthMiddleware
	ThreadHandler   *handlers.ThreadHandler
	FeedbackHandler *handlers.FeedbackHandler
	ElementHandler  *handlers.ElementHandler
	UploadHandler   *handlers.UploadHandler
	SocketHandler   *handlers.SocketHandler

	// StorageDir, when set, is served under /storage for locally stored
	// element files.
	StorageDir   string
	AllowOrigins []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// No-op until the tracer provider is installed at startup.
	router.Use(otelgin.Middleware("threadline-backend"))

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:80", "http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	// The socket does its own token check during the handshake.
	router.GET("/ws", cfg.SocketHandler.HandleConnection)
	if cfg.StorageDir != "" {
		router.Static("/storage", cfg.StorageDir)
	}

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}
	// Threads
	protected.POST("/project/threads", cfg.ThreadHandler.List)
	protected.GET("/project/thread/:id", cfg.ThreadHandler.Get)
	protected.PATCH("/project/thread/:id", cfg.ThreadHandler.Rename)
	protected.DELETE("/project/thread/:id", cfg.ThreadHandler.Delete)
	// Elements
	protected.GET("/project/thread/:id/element/:elementId", cfg.ElementHandler.Get)
	protected.DELETE("/project/element/:id", cfg.ElementHandler.Delete)
	// Feedback
	protected.PUT("/project/feedback", cfg.FeedbackHandler.Upsert)
	protected.DELETE("/project/feedback/:id", cfg.FeedbackHandler.Delete)
	// Session file uploads
	protected.POST("/project/file", cfg.UploadHandler.Upload)

	return router
}
