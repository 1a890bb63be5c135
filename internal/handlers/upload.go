package handlers

import (
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/tkoivu/threadline-backend/internal/pkg/errors"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
	"github.com/tkoivu/threadline-backend/internal/session"
)

type UploadHandler struct {
	log      *logger.Logger
	sessions *session.Registry
}

func NewUploadHandler(log *logger.Logger, sessions *session.Registry) *UploadHandler {
	return &UploadHandler{log: log.With("Handler", "UploadHandler"), sessions: sessions}
}

// Upload spools a multipart file into the session's scratch directory and
// registers it so a later message (or ask reply) can reference it by id.
// Nothing is persisted until the file is attached to a step.
func (uh *UploadHandler) Upload(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Query("session_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", apperrors.Validationf("bad session id"))
		return
	}
	sess, ok := uh.sessions.ByID(sessionID)
	if !ok {
		RespondError(c, http.StatusNotFound, "not_found", apperrors.ErrNotFound)
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", apperrors.Validationf("missing file part"))
		return
	}
	src, err := header.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	defer src.Close()

	fileID := uuid.NewString()
	dir := sess.FilesDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	dst := filepath.Join(dir, fileID)
	out, err := os.Create(dst)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	size, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "internal", err)
		return
	}

	mime := header.Header.Get("Content-Type")
	sess.AddFile(fileID, session.FileReference{
		Name: header.Filename,
		Path: dst,
		Size: size,
		Mime: mime,
		Type: "file",
	})
	uh.log.Debug("Spooled session file", "session_id", sessionID, "file_id", fileID, "size", size)
	RespondOK(c, gin.H{"id": fileID, "name": header.Filename, "type": mime, "size": size})
}
