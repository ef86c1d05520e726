package image

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cutout/internal/pkg/logging"
	"cutout/internal/pkg/response"
	"cutout/internal/pkg/validator"
)

// Handler exposes the Record Store over HTTP.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List godoc
// @Summary List images
// @Tags Images
// @Produce json
// @Success 200 {array} Image
// @Router /images [get]
func (h *Handler) List(c *gin.Context) {
	images, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Internal(c, err)
		return
	}
	c.JSON(http.StatusOK, images)
}

// Get godoc
// @Summary Get an image by ID
// @Tags Images
// @Produce json
// @Param id path int true "Image ID"
// @Success 200 {object} Image
// @Failure 400,404 {object} map[string]interface{}
// @Router /images/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	img, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, img)
}

// Create godoc
// @Summary Create an image record
// @Tags Images
// @Accept json
// @Produce json
// @Param request body CreateImageRequest true "originalUrl and optional status"
// @Success 201 {object} Image
// @Failure 400 {object} map[string]interface{}
// @Router /images [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateImageRequest
	if !bind(c, &req) {
		return
	}
	var status *Status
	if req.Status != nil {
		s := Status(*req.Status)
		status = &s
	}
	img, err := h.service.Create(c.Request.Context(), *req.OriginalURL, status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, img)
}

// Update godoc
// @Summary Patch processedUrl and/or status
// @Tags Images
// @Accept json
// @Produce json
// @Param id path int true "Image ID"
// @Param request body UpdateImageRequest true "Fields to merge"
// @Success 200 {object} Image
// @Failure 400,404 {object} map[string]interface{}
// @Router /images/{id} [patch]
func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req UpdateImageRequest
	if !bind(c, &req) {
		return
	}
	img, err := h.service.Update(c.Request.Context(), id, req.Patch())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, img)
}

// Delete godoc
// @Summary Delete an image record (idempotent)
// @Tags Images
// @Param id path int true "Image ID"
// @Success 204
// @Router /images/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		response.Internal(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Process godoc
// @Summary Run background removal on the server
// @Tags Images
// @Produce json
// @Param id path int true "Image ID"
// @Success 202 {object} ProcessResponse
// @Failure 404,409,503 {object} map[string]interface{}
// @Router /images/{id}/process [post]
func (h *Handler) Process(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	img, err := h.service.Process(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	logging.FromContext(c.Request.Context()).Info("image dispatched for processing", "image_id", img.ID)
	c.JSON(http.StatusAccepted, ProcessResponse{ID: img.ID, Status: img.Status})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var te *TransitionError
	switch {
	case errors.Is(err, ErrImageNotFound):
		response.Message(c, http.StatusNotFound, "Image not found")
	case errors.As(err, &te):
		response.Validation(c, &validator.FieldError{Field: "status", Message: te.Error()})
	case errors.Is(err, ErrCreateCompleted):
		response.Validation(c, &validator.FieldError{Field: "status", Message: err.Error()})
	case errors.Is(err, ErrProcessedURLRequired), errors.Is(err, ErrProcessedURLNotAllowed):
		response.Validation(c, &validator.FieldError{Field: "processedUrl", Message: err.Error()})
	case errors.Is(err, ErrNotPending):
		response.Message(c, http.StatusConflict, "Image is not pending")
	case errors.Is(err, ErrDispatchUnavailable), errors.Is(err, ErrQueueFull):
		response.Message(c, http.StatusServiceUnavailable, err.Error())
	default:
		response.Internal(c, err)
	}
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Validation(c, &validator.FieldError{Field: "id", Message: "Expected number, received string"})
		return 0, false
	}
	return id, true
}

func bind(c *gin.Context, dst interface{}) bool {
	body, err := c.GetRawData()
	if err != nil {
		response.Validation(c, &validator.FieldError{Message: "Invalid request body"})
		return false
	}
	if fe := validator.Decode(body, dst); fe != nil {
		response.Validation(c, fe)
		return false
	}
	if fe := validator.Struct(dst); fe != nil {
		response.Validation(c, fe)
		return false
	}
	return true
}
