package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nutrilog/nutrilog-backend/internal/domain"
)

type APIError struct {
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	ConflictID string `json:"conflict_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondDomainError translates a service error into the HTTP surface.
// This is the only place error codes map to status codes.
func RespondDomainError(c *gin.Context, err error) {
	var svcErr *domain.Error
	if !errors.As(err, &svcErr) {
		c.JSON(http.StatusInternalServerError, ErrorEnvelope{
			Error: APIError{Message: "internal error", Code: string(domain.CodeInternal)},
		})
		return
	}
	var status int
	switch svcErr.Code {
	case domain.CodeInvalidInput, domain.CodeInvalidCursor:
		status = http.StatusBadRequest
	case domain.CodeNotFound:
		status = http.StatusNotFound
	case domain.CodeConflict, domain.CodeInvalidState:
		status = http.StatusConflict
	case domain.CodeUpstreamAuth, domain.CodeUpstreamRateLimited,
		domain.CodeUpstreamInvalidRequest, domain.CodeUpstreamUnavailable,
		domain.CodeUpstreamData:
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}
	message := svcErr.Message
	if status == http.StatusInternalServerError {
		// Internal details stay in the logs.
		message = "internal error"
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message:    message,
			Code:       string(svcErr.Code),
			ConflictID: svcErr.ConflictID,
		},
	})
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
