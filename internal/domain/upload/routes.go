package upload

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the upload endpoint under api and file serving at
// /uploads on the root router.
func RegisterRoutes(r *gin.Engine, api *gin.RouterGroup, h *Handler) {
	api.POST("/upload", h.Upload)
	r.GET("/uploads/:key", h.Serve)
	r.HEAD("/uploads/:key", h.Serve)
}
