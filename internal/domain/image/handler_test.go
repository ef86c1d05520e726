package image

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(t *testing.T, d Dispatcher) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewHandler(NewService(newTestRepository(t), d))
	r := gin.New()
	RegisterRoutes(r.Group("/api"), h)
	return r
}

func doRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestHandler_CreateDefaults(t *testing.T) {
	r := setupTestRouter(t, nil)

	rr := doRequest(r, http.MethodPost, "/api/images", map[string]any{"originalUrl": "/uploads/a.png"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	body := decode(t, rr)
	assert.Equal(t, "/uploads/a.png", body["originalUrl"])
	assert.Equal(t, "pending", body["status"])
	assert.Contains(t, body, "processedUrl")
	assert.Nil(t, body["processedUrl"])
	assert.NotZero(t, body["id"])
	assert.NotEmpty(t, body["createdAt"])
}

func TestHandler_CreateValidation(t *testing.T) {
	r := setupTestRouter(t, nil)

	cases := []struct {
		name  string
		body  any
		field string
	}{
		{"missing originalUrl", map[string]any{}, "originalUrl"},
		{"empty body", nil, "originalUrl"},
		{"empty originalUrl", map[string]any{"originalUrl": ""}, "originalUrl"},
		{"wrong type", map[string]any{"originalUrl": 12}, "originalUrl"},
		{"unknown status", map[string]any{"originalUrl": "/uploads/a.png", "status": "done"}, "status"},
		{"completed at creation", map[string]any{"originalUrl": "/uploads/a.png", "status": "completed"}, "status"},
		{"malformed json", "{", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(r, http.MethodPost, "/api/images", tc.body)
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			body := decode(t, rr)
			assert.Equal(t, tc.field, body["field"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestHandler_Lifecycle(t *testing.T) {
	r := setupTestRouter(t, nil)

	rr := doRequest(r, http.MethodPost, "/api/images", map[string]any{"originalUrl": "/uploads/a.png"})
	require.Equal(t, http.StatusCreated, rr.Code)
	id := strconv.FormatInt(int64(decode(t, rr)["id"].(float64)), 10)
	path := "/api/images/" + id

	rr = doRequest(r, http.MethodPatch, path, map[string]any{"status": "processing"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "processing", decode(t, rr)["status"])

	rr = doRequest(r, http.MethodPatch, path, map[string]any{"status": "completed", "processedUrl": "/uploads/a-nobg.png"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doRequest(r, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "/uploads/a-nobg.png", body["processedUrl"])

	rr = doRequest(r, http.MethodGet, "/api/images", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rr = doRequest(r, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())

	rr = doRequest(r, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = doRequest(r, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Image not found", decode(t, rr)["message"])
}

func TestHandler_UpdateErrors(t *testing.T) {
	r := setupTestRouter(t, nil)

	rr := doRequest(r, http.MethodPatch, "/api/images/404", map[string]any{"status": "failed"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(r, http.MethodGet, "/api/images/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "id", decode(t, rr)["field"])

	rr = doRequest(r, http.MethodPost, "/api/images", map[string]any{"originalUrl": "/uploads/a.png", "status": "failed"})
	require.Equal(t, http.StatusCreated, rr.Code)
	path := "/api/images/" + strconv.FormatInt(int64(decode(t, rr)["id"].(float64)), 10)

	rr = doRequest(r, http.MethodPatch, path, map[string]any{"status": "pending"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "status", decode(t, rr)["field"])

	rr = doRequest(r, http.MethodPatch, path, map[string]any{"processedUrl": "/uploads/x.png"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "processedUrl", decode(t, rr)["field"])
}

func TestHandler_Process(t *testing.T) {
	t.Run("unavailable", func(t *testing.T) {
		r := setupTestRouter(t, nil)
		rr := doRequest(r, http.MethodPost, "/api/images", map[string]any{"originalUrl": "/uploads/a.png"})
		require.Equal(t, http.StatusCreated, rr.Code)
		path := "/api/images/" + strconv.FormatInt(int64(decode(t, rr)["id"].(float64)), 10)

		rr = doRequest(r, http.MethodPost, path+"/process", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})

	t.Run("accepted then conflict", func(t *testing.T) {
		d := new(MockDispatcher)
		d.On("Dispatch", mock.Anything, mock.AnythingOfType("int64")).Return(nil)
		r := setupTestRouter(t, d)

		rr := doRequest(r, http.MethodPost, "/api/images", map[string]any{"originalUrl": "/uploads/a.png"})
		require.Equal(t, http.StatusCreated, rr.Code)
		path := "/api/images/" + strconv.FormatInt(int64(decode(t, rr)["id"].(float64)), 10)

		rr = doRequest(r, http.MethodPost, path+"/process", nil)
		require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
		assert.Equal(t, "pending", decode(t, rr)["status"])

		rr = doRequest(r, http.MethodPatch, path, map[string]any{"status": "processing"})
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doRequest(r, http.MethodPost, path+"/process", nil)
		assert.Equal(t, http.StatusConflict, rr.Code)
		d.AssertNumberOfCalls(t, "Dispatch", 1)
	})

	t.Run("unknown id", func(t *testing.T) {
		d := new(MockDispatcher)
		r := setupTestRouter(t, d)
		rr := doRequest(r, http.MethodPost, "/api/images/77/process", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

var _ Dispatcher = (*MockDispatcher)(nil)
