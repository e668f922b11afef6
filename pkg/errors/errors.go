package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"lumecast/internal/core/domain"
)

// ErrorCode classifies application errors for the control surface.
type ErrorCode string

const (
	ErrCodeUnknownQuality     ErrorCode = "UNKNOWN_QUALITY"
	ErrCodeNotAuthorized      ErrorCode = "NOT_AUTHORIZED"
	ErrCodeDeviceAccessDenied ErrorCode = "DEVICE_ACCESS_DENIED"
	ErrCodeBackendCallFailed  ErrorCode = "BACKEND_CALL_FAILED"
	ErrCodeNegotiationFailed  ErrorCode = "NEGOTIATION_FAILED"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// AppError carries a code, a human-readable message and an HTTP status for
// the control API.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an application error.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap attaches a cause to an application error.
func Wrap(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Cause: err}
}

// FromDomain maps domain sentinel errors onto AppErrors so HTTP handlers
// never inspect sentinels themselves.
func FromDomain(err error) *AppError {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, domain.ErrUnknownQuality):
		return Wrap(err, ErrCodeUnknownQuality, "unknown quality key", http.StatusBadRequest)
	case stderrors.Is(err, domain.ErrNotAuthorized):
		return Wrap(err, ErrCodeNotAuthorized, "publishing requires a model account", http.StatusForbidden)
	case stderrors.Is(err, domain.ErrDeviceAccessDenied):
		return Wrap(err, ErrCodeDeviceAccessDenied, "camera or microphone unavailable, check permissions", http.StatusConflict)
	case stderrors.Is(err, domain.ErrBackendCallFailed):
		return Wrap(err, ErrCodeBackendCallFailed, "backend unavailable, try again", http.StatusBadGateway)
	case stderrors.Is(err, domain.ErrNegotiationFailed):
		return Wrap(err, ErrCodeNegotiationFailed, "viewer negotiation failed", http.StatusConflict)
	case stderrors.Is(err, domain.ErrSessionAlreadyLive):
		return Wrap(err, ErrCodeConflict, "a session is already active", http.StatusConflict)
	case stderrors.Is(err, domain.ErrNoActiveSession):
		return Wrap(err, ErrCodeConflict, "no active session", http.StatusConflict)
	case stderrors.Is(err, domain.ErrViewerNotFound):
		return Wrap(err, ErrCodeNotFound, "viewer not found", http.StatusNotFound)
	default:
		return Wrap(err, ErrCodeInternal, "internal error", http.StatusInternalServerError)
	}
}

// GetAppError extracts an AppError from an error chain, or nil.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}
