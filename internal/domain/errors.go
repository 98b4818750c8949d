package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode standardizes failure semantics across the service layer. The
// HTTP mapping lives in the handlers package only.
type ErrorCode string

const (
	CodeInvalidInput           ErrorCode = "invalid_input"
	CodeNotFound               ErrorCode = "not_found"
	CodeConflict               ErrorCode = "conflict"
	CodeInvalidState           ErrorCode = "invalid_state"
	CodeInvalidCursor          ErrorCode = "invalid_cursor"
	CodeUpstreamAuth           ErrorCode = "upstream_auth"
	CodeUpstreamRateLimited    ErrorCode = "upstream_rate_limited"
	CodeUpstreamInvalidRequest ErrorCode = "upstream_invalid_request"
	CodeUpstreamUnavailable    ErrorCode = "upstream_unavailable"
	CodeUpstreamData           ErrorCode = "upstream_data"
	CodeInternal               ErrorCode = "internal"
)

// Error is the canonical service error wrapper.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error

	// ConflictID carries the id of the resource blocking the operation,
	// disclosed on 409 responses so clients can resolve the conflict.
	ConflictID string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a service error with explicit code + operation.
func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// ConflictError builds a conflict error disclosing the blocking resource id.
func ConflictError(op, message, conflictID string) error {
	return &Error{
		Code:       CodeConflict,
		Op:         strings.TrimSpace(op),
		Message:    strings.TrimSpace(message),
		ConflictID: conflictID,
	}
}

// Wrap annotates an existing error with service error semantics.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, err.Error(), err)
}

// IsCode checks whether err (or a wrapped err) carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		return false
	}
	return svcErr.Code == code
}

// CodeOf extracts the error code when available.
func CodeOf(err error) ErrorCode {
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		return ""
	}
	return svcErr.Code
}
