package upload

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"cutout/internal/pkg/logging"
	"cutout/internal/pkg/response"
)

// Handler handles HTTP requests for file uploads.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Upload godoc
// @Summary Upload a file
// @Description Stores the file under a unique name and returns its public URL.
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File to upload"
// @Success 200 {object} map[string]interface{}
// @Failure 400,413,500 {object} map[string]interface{}
// @Router /upload [post]
func (h *Handler) Upload(c *gin.Context) {
	if limit := h.service.MaxBytes(); limit > 0 {
		if c.Request.ContentLength > limit {
			response.Error(c, http.StatusRequestEntityTooLarge, ErrFileTooLarge.Error())
			return
		}
		// multipart framing adds a little on top of the file itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			response.Error(c, http.StatusRequestEntityTooLarge, ErrFileTooLarge.Error())
			return
		}
		response.Error(c, http.StatusBadRequest, "No file uploaded")
		return
	}

	up, err := h.service.Upload(c.Request.Context(), fileHeader)
	if err != nil {
		switch {
		case errors.Is(err, ErrFileTooLarge):
			response.Error(c, http.StatusRequestEntityTooLarge, err.Error())
		default:
			_ = c.Error(err)
			response.Error(c, http.StatusInternalServerError, "Upload failed")
		}
		return
	}

	logging.FromContext(c.Request.Context()).Info("file uploaded",
		"key", up.Key, "size", up.Size, "content_type", up.ContentType)
	c.JSON(http.StatusOK, gin.H{"url": up.URL})
}

// Serve godoc
// @Summary Download an uploaded file
// @Tags Uploads
// @Param key path string true "File name"
// @Success 200 {file} binary
// @Failure 404 {object} map[string]interface{}
// @Router /uploads/{key} [get]
func (h *Handler) Serve(c *gin.Context) {
	rc, obj, err := h.service.Open(c.Request.Context(), c.Param("key"))
	if err != nil {
		switch {
		case errors.Is(err, ErrObjectNotFound), errors.Is(err, ErrInvalidKey):
			response.Message(c, http.StatusNotFound, "File not found")
		default:
			response.Internal(c, err)
		}
		return
	}
	defer rc.Close()

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(c.Writer, c.Request, obj.Key, obj.ModTime, rs)
		return
	}
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, obj.Size, contentType, rc, nil)
}
