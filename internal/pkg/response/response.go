package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cutout/internal/pkg/validator"
)

// Message writes {"message": msg}.
func Message(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{"message": message})
}

// Validation writes the first validation failure as a 400 {"message", "field"}.
func Validation(c *gin.Context, fe *validator.FieldError) {
	c.JSON(http.StatusBadRequest, gin.H{
		"message": fe.Message,
		"field":   fe.Field,
	})
}

// Error writes {"error": message}; used by the upload endpoint.
func Error(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{"error": message})
}

// Internal records err on the context for the error logger and answers 500.
func Internal(c *gin.Context, err error) {
	_ = c.Error(err)
	Message(c, http.StatusInternalServerError, "Internal Server Error")
}
