package upload

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pace-quizz/backend/pkg/response"
	"github.com/pace-quizz/backend/pkg/storage"
)

// Uploader stores an object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, publicRead bool) (string, error)
}

// Result is the body of a successful upload.
type Result struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Filename    string `json:"filename"`
}

// Handler accepts presenter image uploads, e.g. session banners.
type Handler struct {
	store  Uploader
	logger *zap.Logger
}

// NewHandler creates an upload handler. A nil store disables uploads.
func NewHandler(store Uploader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// Image handles POST /upload with multipart field "file".
func (h *Handler) Image(c *gin.Context) {
	if h.store == nil {
		response.ServiceUnavailable(c, "storage is not configured")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, storage.MaxImageSize+1<<20)
	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file (form field: file)")
		return
	}
	if file.Size > storage.MaxImageSize {
		response.TooLarge(c, "file size exceeds 5MB limit")
		return
	}
	contentType, ok := storage.ImageContentType(file.Header.Get("Content-Type"), file.Filename)
	if !ok {
		response.BadRequest(c, "invalid file type: only jpg, png, webp and gif images allowed")
		return
	}

	rc, err := file.Open()
	if err != nil {
		h.logger.Error("open uploaded file failed", zap.Error(err))
		response.Internal(c, "failed to read file")
		return
	}
	defer rc.Close()

	key := storage.ImageKey(file.Filename)
	url, err := h.store.Upload(c.Request.Context(), key, contentType, rc, true)
	if err != nil {
		h.logger.Error("S3 upload failed", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to upload file to storage")
		return
	}
	response.Created(c, Result{Key: key, URL: url, ContentType: contentType, Size: file.Size, Filename: file.Filename})
}
