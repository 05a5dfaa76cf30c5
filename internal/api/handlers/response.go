package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/pitchforge/pitch-builder-service/internal/pkg/errors"
)

// APIError is the wire shape of one error
type APIError struct {
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorEnvelope wraps every error response
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError maps an error onto the envelope. AppErrors carry their own
// status code and details; anything else is a 500.
func RespondError(c *gin.Context, err error) {
	if appErr, ok := apperrors.GetAppError(err); ok {
		c.JSON(appErr.StatusCode, ErrorEnvelope{
			Error: APIError{
				Message: appErr.Message,
				Code:    string(appErr.Code),
				Details: appErr.Details,
			},
		})
		return
	}

	msg := "internal server error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(http.StatusInternalServerError, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    string(apperrors.ErrCodeInternal),
		},
	})
}

// RespondOK writes a 200 payload
func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondCreated writes a 201 payload
func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
