package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"cutout/internal/domain/image"
	"cutout/internal/domain/upload"
	"cutout/internal/middleware"
	"cutout/internal/pkg/response"
)

// Deps are the handlers and settings the router is assembled from.
type Deps struct {
	Images      *image.Handler
	Uploads     *upload.Handler
	CORSOrigins []string
	// Ping reports storage health for /healthz. Optional.
	Ping func(ctx context.Context) error
}

// NewRouter wires middleware and every route of the API.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.ErrorLogger(),
		middleware.CORS(d.CORSOrigins),
	)

	r.GET("/healthz", func(c *gin.Context) {
		if d.Ping != nil {
			if err := d.Ping(c.Request.Context()); err != nil {
				_ = c.Error(err)
				response.Message(c, http.StatusServiceUnavailable, "unavailable")
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	image.RegisterRoutes(api, d.Images)
	upload.RegisterRoutes(r, api, d.Uploads)

	r.NoRoute(func(c *gin.Context) {
		response.Message(c, http.StatusNotFound, "Not found")
	})
	return r
}
