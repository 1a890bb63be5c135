package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tkoivu/threadline-backend/internal/datalayer"
	types "github.com/tkoivu/threadline-backend/internal/domain"
	"github.com/tkoivu/threadline-backend/internal/middleware"
	apperrors "github.com/tkoivu/threadline-backend/internal/pkg/errors"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
)

type ThreadHandler struct {
	log *logger.Logger
	dl  datalayer.DataLayer
}

func NewThreadHandler(log *logger.Logger, dl datalayer.DataLayer) *ThreadHandler {
	return &ThreadHandler{log: log.With("Handler", "ThreadHandler"), dl: dl}
}

type listThreadsRequest struct {
	First  int    `json:"first"`
	Cursor string `json:"cursor"`
	Filter struct {
		Search   string `json:"search"`
		Feedback *int   `json:"feedback"`
	} `json:"filter"`
}

// List returns one page of the calling user's threads, newest first.
func (th *ThreadHandler) List(c *gin.Context) {
	identifier := c.GetString(middleware.ContextIdentifier)

	var req listThreadsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	user, err := th.dl.GetUser(c.Request.Context(), identifier)
	if err != nil {
		RespondMapped(c, err)
		return
	}
	if user == nil {
		// No persisted user yet means no threads yet.
		RespondOK(c, &datalayer.PaginatedResponse{Data: []*types.Thread{}})
		return
	}
	page, err := th.dl.ListThreads(c.Request.Context(),
		datalayer.Pagination{First: req.First, Cursor: req.Cursor},
		datalayer.ThreadFilter{
			UserID:        user.ID,
			Search:        req.Filter.Search,
			FeedbackValue: req.Filter.Feedback,
		})
	if err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, page)
}

// Get returns a thread with its ordered steps and elements. Only the
// thread's author may read it.
func (th *ThreadHandler) Get(c *gin.Context) {
	threadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", apperrors.Validationf("bad thread id"))
		return
	}
	if !th.authorize(c, threadID) {
		return
	}
	thread, err := th.dl.GetThread(c.Request.Context(), threadID)
	if err != nil {
		RespondMapped(c, err)
		return
	}
	if thread == nil {
		RespondError(c, http.StatusNotFound, "not_found", apperrors.ErrNotFound)
		return
	}
	RespondOK(c, thread)
}

type renameThreadRequest struct {
	Name string `json:"name" binding:"required"`
}

// Rename updates the thread's display name.
func (th *ThreadHandler) Rename(c *gin.Context) {
	threadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", apperrors.Validationf("bad thread id"))
		return
	}
	var req renameThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	if !th.authorize(c, threadID) {
		return
	}
	if err := th.dl.UpdateThread(c.Request.Context(), threadID, datalayer.ThreadPatch{Name: &req.Name}); err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}

// Delete removes the thread and everything hanging off it.
func (th *ThreadHandler) Delete(c *gin.Context) {
	threadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", apperrors.Validationf("bad thread id"))
		return
	}
	if !th.authorize(c, threadID) {
		return
	}
	if err := th.dl.DeleteThread(c.Request.Context(), threadID); err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}

// authorize rejects the request unless the caller authored the thread.
// Missing threads read as not found, never as someone else's data.
func (th *ThreadHandler) authorize(c *gin.Context, threadID uuid.UUID) bool {
	identifier := c.GetString(middleware.ContextIdentifier)
	author, err := th.dl.GetThreadAuthor(c.Request.Context(), threadID)
	if err != nil {
		RespondMapped(c, err)
		return false
	}
	if author != identifier {
		RespondError(c, http.StatusUnauthorized, "unauthorized", apperrors.ErrUnauthorized)
		return false
	}
	return true
}
