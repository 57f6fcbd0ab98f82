package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIError is the JSON body of every non-2xx response from the API.
type APIError struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewAPIError creates a new APIError with the given message and optional details.
func NewAPIError(message string, details map[string]interface{}) *APIError {
	return &APIError{
		Error:   message,
		Details: details,
	}
}

// AbortWith sends status with an APIError body and aborts the request.
func AbortWith(c *gin.Context, status int, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(status, NewAPIError(message, details))
}

// AbortWithBadRequest sends a 400 Bad Request response and aborts the request.
func AbortWithBadRequest(c *gin.Context, message string, details map[string]interface{}) {
	AbortWith(c, http.StatusBadRequest, message, details)
}

// AbortWithNotFound sends a 404 Not Found response and aborts the request.
func AbortWithNotFound(c *gin.Context, message string, details map[string]interface{}) {
	AbortWith(c, http.StatusNotFound, message, details)
}

// AbortWithInternal sends a 500 Internal Server Error response and aborts the request.
func AbortWithInternal(c *gin.Context, message string, details map[string]interface{}) {
	AbortWith(c, http.StatusInternalServerError, message, details)
}

// Detail wraps err into a details map, the shape handlers attach to 4xx/5xx bodies.
func Detail(err error) map[string]interface{} {
	if err == nil {
		return nil
	}
	return map[string]interface{}{"reason": err.Error()}
}
