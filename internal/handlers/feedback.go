package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tkoivu/threadline-backend/internal/datalayer"
	types "github.com/tkoivu/threadline-backend/internal/domain"
	"github.com/tkoivu/threadline-backend/internal/hooks"
	apperrors "github.com/tkoivu/threadline-backend/internal/pkg/errors"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
)

type FeedbackHandler struct {
	log   *logger.Logger
	dl    datalayer.DataLayer
	hooks *hooks.Registry
}

func NewFeedbackHandler(log *logger.Logger, dl datalayer.DataLayer, hookSet *hooks.Registry) *FeedbackHandler {
	return &FeedbackHandler{log: log.With("Handler", "FeedbackHandler"), dl: dl, hooks: hookSet}
}

type upsertFeedbackRequest struct {
	ID      *uuid.UUID `json:"id"`
	ForID   uuid.UUID  `json:"forId" binding:"required"`
	Value   int        `json:"value"`
	Comment *string    `json:"comment"`
}

// Upsert records or revises the verdict on a step. Re-submitting with the
// same id overwrites value and comment in place.
func (fh *FeedbackHandler) Upsert(c *gin.Context) {
	var req upsertFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	feedback := &types.Feedback{
		ForID:   req.ForID,
		Value:   req.Value,
		Comment: req.Comment,
	}
	if req.ID != nil {
		feedback.ID = *req.ID
	}
	id, err := fh.dl.UpsertFeedback(c.Request.Context(), feedback)
	if err != nil {
		RespondMapped(c, err)
		return
	}
	feedback.ID = id
	if fh.hooks != nil && fh.hooks.OnFeedback != nil {
		if err := fh.hooks.OnFeedback(c.Request.Context(), feedback); err != nil {
			fh.log.Warn("Feedback hook failed", "error", err)
		}
	}
	RespondOK(c, gin.H{"feedbackId": id})
}

func (fh *FeedbackHandler) Delete(c *gin.Context) {
	feedbackID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", apperrors.Validationf("bad feedback id"))
		return
	}
	if err := fh.dl.DeleteFeedback(c.Request.Context(), feedbackID); err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}
