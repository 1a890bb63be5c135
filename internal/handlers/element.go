package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tkoivu/threadline-backend/internal/datalayer"
	apperrors "github.com/tkoivu/threadline-backend/internal/pkg/errors"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
)

type ElementHandler struct {
	log *logger.Logger
	dl  datalayer.DataLayer
}

func NewElementHandler(log *logger.Logger, dl datalayer.DataLayer) *ElementHandler {
	return &ElementHandler{log: log.With("Handler", "ElementHandler"), dl: dl}
}

// Get resolves one element inside a thread, used by the side panel to
// lazy-load attachment metadata.
func (eh *ElementHandler) Get(c *gin.Context) {
	threadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", apperrors.Validationf("bad thread id"))
		return
	}
	elementID, err := uuid.Parse(c.Param("elementId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", apperrors.Validationf("bad element id"))
		return
	}
	element, err := eh.dl.GetElement(c.Request.Context(), threadID, elementID)
	if err != nil {
		RespondMapped(c, err)
		return
	}
	if element == nil {
		RespondError(c, http.StatusNotFound, "not_found", apperrors.ErrNotFound)
		return
	}
	RespondOK(c, element)
}

func (eh *ElementHandler) Delete(c *gin.Context) {
	elementID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", apperrors.Validationf("bad element id"))
		return
	}
	if err := eh.dl.DeleteElement(c.Request.Context(), elementID); err != nil {
		RespondMapped(c, err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}
