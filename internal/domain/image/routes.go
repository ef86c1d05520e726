package image

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the image routes under r (normally the /api group).
func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	images := r.Group("/images")
	{
		images.GET("", h.List)
		images.POST("", h.Create)
		images.GET("/:id", h.Get)
		images.PATCH("/:id", h.Update)
		images.DELETE("/:id", h.Delete)
		images.POST("/:id/process", h.Process)
	}
}
