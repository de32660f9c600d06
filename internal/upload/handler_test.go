package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pace-quizz/backend/pkg/storage"
)

type memStore struct {
	keys  []string
	types []string
	sizes []int
	err   error
}

func (m *memStore) Upload(_ context.Context, key, contentType string, body io.Reader, _ bool) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.keys = append(m.keys, key)
	m.types = append(m.types, contentType)
	m.sizes = append(m.sizes, len(raw))
	return "https://cdn.example.com/" + key, nil
}

func multipartBody(t *testing.T, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func send(t *testing.T, h *Handler, filename, contentType string, content []byte) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/upload", h.Image)
	body, ct := multipartBody(t, filename, contentType, content)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestUploadImage(t *testing.T) {
	store := &memStore{}
	w := send(t, NewHandler(store, zaptest.NewLogger(t)), "banner.JPEG", "application/octet-stream", []byte("fake-jpeg"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.Len(t, store.keys, 1)
	assert.True(t, strings.HasPrefix(store.keys[0], storage.FolderImages+"/"))
	assert.True(t, strings.HasSuffix(store.keys[0], ".jpg"))
	assert.Equal(t, "image/jpeg", store.types[0])
	assert.Equal(t, len("fake-jpeg"), store.sizes[0])
	assert.Contains(t, w.Body.String(), "https://cdn.example.com/images/")
}

func TestUploadRejections(t *testing.T) {
	store := &memStore{}
	h := NewHandler(store, zaptest.NewLogger(t))

	assert.Equal(t, http.StatusBadRequest, send(t, h, "notes.txt", "text/plain", []byte("hi")).Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge, send(t, h, "big.png", "image/png", make([]byte, storage.MaxImageSize+1)).Code)
	assert.Empty(t, store.keys)

	store.err = errors.New("s3 down")
	assert.Equal(t, http.StatusInternalServerError, send(t, h, "ok.png", "image/png", []byte("png")).Code)

	assert.Equal(t, http.StatusServiceUnavailable, send(t, NewHandler(nil, nil), "ok.png", "image/png", []byte("png")).Code)
}
