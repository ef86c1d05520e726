package upload

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(t *testing.T, maxBytes int64) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	storage, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	r := gin.New()
	RegisterRoutes(r, r.Group("/api"), NewHandler(NewService(storage, maxBytes)))
	return r
}

func multipartRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if field != "" {
		part, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, w.WriteField("note", "no file here"))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestHandler_UploadAndServe(t *testing.T) {
	r := setupTestRouter(t, 0)
	content := []byte("hello cutout")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, multipartRequest(t, "file", "note.TXT", content))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	url := body["url"]
	assert.True(t, strings.HasPrefix(url, "/uploads/"))
	assert.True(t, strings.HasSuffix(url, ".txt"))

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	got, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestHandler_UploadNoFile(t *testing.T) {
	r := setupTestRouter(t, 0)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, multipartRequest(t, "", "", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"No file uploaded"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, multipartRequest(t, "image", "a.png", []byte("x")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_UploadTooLarge(t *testing.T) {
	r := setupTestRouter(t, 8)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, multipartRequest(t, "file", "big.bin", bytes.Repeat([]byte("x"), 64)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestHandler_ServeMissing(t *testing.T) {
	r := setupTestRouter(t, 0)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/uploads/nope.png", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
