package devbackend

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
}

func success(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Response{Success: true, Message: message, Data: data})
}

func failure(c *gin.Context, status int, message string) {
	c.JSON(status, Response{Success: false, Message: message})
}

func badRequest(c *gin.Context, message string) {
	failure(c, http.StatusBadRequest, message)
}

func unauthorized(c *gin.Context, message string) {
	failure(c, http.StatusUnauthorized, message)
}
