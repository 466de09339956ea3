package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"clinic-booking-chatbot/services"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrSessionForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrMissingSessionID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with a status derived from it. Internal errors
// are recorded on the context for the request logger and not echoed.
func respondError(c *gin.Context, message string, err error) {
	status := statusFor(err)
	body := ErrorResponse{Error: message}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	} else {
		body.Details = err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}
