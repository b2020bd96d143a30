package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"school-chat/internal/storage"
)

// FileStore persists an uploaded file and reports its public URL and kind.
type FileStore interface {
	Save(originalName string, r io.Reader, declared string) (storage.Stored, error)
}

type UploadHandler struct {
	store  FileStore
	logger *zap.Logger
}

func NewUploadHandler(store FileStore, logger *zap.Logger) *UploadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadHandler{store: store, logger: logger}
}

// Upload handles POST /files/upload with a multipart "file" field.
func (h *UploadHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	f, err := header.Open()
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	defer f.Close()

	stored, err := h.store.Save(header.Filename, f, header.Header.Get("Content-Type"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}
