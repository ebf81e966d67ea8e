package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/distribo/services/recouvrement/internal/recovery"
	"example.com/distribo/services/recouvrement/internal/repositories"
	"example.com/distribo/services/recouvrement/internal/services"
)

// Error represents an API error mapped to an HTTP status once, at the
// boundary.
type Error struct {
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Code       string `json:"code,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// Common API errors
var (
	ErrInvalidRequest = &Error{Message: "Invalid request", StatusCode: http.StatusBadRequest, Code: "INVALID_REQUEST"}
	ErrNotFound       = &Error{Message: "Resource not found", StatusCode: http.StatusNotFound, Code: "NOT_FOUND"}
	ErrForbidden      = &Error{Message: "Forbidden", StatusCode: http.StatusForbidden, Code: "FORBIDDEN"}
	ErrUnauthorized   = &Error{Message: "Unauthorized", StatusCode: http.StatusUnauthorized, Code: "UNAUTHORIZED"}
	ErrInternalServer = &Error{Message: "Internal server error", StatusCode: http.StatusInternalServerError, Code: "INTERNAL_ERROR"}
)

// NewValidationError creates a validation error with a custom message
func NewValidationError(message string) *Error {
	return &Error{Message: message, StatusCode: http.StatusBadRequest, Code: "VALIDATION_ERROR"}
}

// RespondError maps any error to its HTTP response. Configuration-missing is
// not an error shape at all: it responds 200 with success:false and an
// instruction, so the frontend can prompt an administrator. Unknown errors
// become a generic 500 with no internal detail leaked.
func RespondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, recovery.ErrNotConfigured):
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "No recovery delay settings configured. Ask an administrator to define a default delay.",
		})
		return
	case errors.Is(err, repositories.ErrNotFound):
		respond(c, ErrNotFound)
		return
	case errors.Is(err, services.ErrLastGlobalSetting):
		respond(c, NewValidationError(err.Error()))
		return
	case errors.Is(err, services.ErrInvalidDays):
		respond(c, NewValidationError(err.Error()))
		return
	}

	var apiError *Error
	if errors.As(err, &apiError) {
		respond(c, apiError)
		return
	}

	log.Error().Err(err).Str("path", c.FullPath()).Msg("Unhandled error")
	respond(c, ErrInternalServer)
}

func respond(c *gin.Context, apiError *Error) {
	c.JSON(apiError.StatusCode, gin.H{
		"success": false,
		"error":   apiError.Message,
		"code":    apiError.Code,
	})
}
