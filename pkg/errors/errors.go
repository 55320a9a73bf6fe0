package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shiftpoint/shiftpoint-attendance/pkg/i18n"
)

// Standard error types
var (
	ErrNotFound            = errors.New("resource not found")
	ErrBadRequest          = errors.New("bad request")
	ErrConflict            = errors.New("resource conflict")
	ErrInternal            = errors.New("internal server error")
	ErrValidation          = errors.New("validation error")
	ErrInvalidTimeRange    = errors.New("invalid shift time range")
	ErrMissingContext      = errors.New("business or outlet not selected")
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrRemoteFailure       = errors.New("remote attendance call failed")
	ErrPartialRefresh      = errors.New("partial cache refresh failure")
	ErrAlreadyInFlight     = errors.New("operation already in flight")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	MessageKey string            `json:"-"` // i18n key for localization
	Params     map[string]string `json:"-"` // Parameters for i18n interpolation
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Localize returns a localized version of the error message
func (e *AppError) Localize(ctx context.Context) string {
	if e.MessageKey == "" {
		return e.Message
	}
	return i18n.TFromContext(ctx, e.MessageKey, e.Params)
}

// LocalizeWith returns a localized version using a specific localizer
func (e *AppError) LocalizeWith(l *i18n.Localizer) string {
	if e.MessageKey == "" {
		return e.Message
	}
	return l.T(e.MessageKey, e.Params)
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		MessageKey: "errors.not_found",
		Params:     map[string]string{"resource": resource},
		StatusCode: http.StatusNotFound,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		MessageKey: "errors.bad_request",
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		MessageKey: "errors.conflict",
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		MessageKey: "errors.internal",
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		MessageKey: "errors.validation_failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// InvalidTimeRange is returned when a custom start/end pair cannot form a
// positive-duration window even after the overnight adjustment. Rejected
// before any network call.
func InvalidTimeRange(start, end string) *AppError {
	return &AppError{
		Err:        ErrInvalidTimeRange,
		Code:       "INVALID_TIME_RANGE",
		Message:    fmt.Sprintf("shift window %s-%s has no positive duration", start, end),
		MessageKey: "errors.invalid_time_range",
		Params:     map[string]string{"start": start, "end": end},
		StatusCode: http.StatusBadRequest,
	}
}

// MissingContext is returned when a clock operation is attempted without a
// selected business or outlet.
func MissingContext(what string) *AppError {
	return &AppError{
		Err:        ErrMissingContext,
		Code:       "MISSING_CONTEXT",
		Message:    fmt.Sprintf("%s not selected", what),
		MessageKey: "errors.missing_context",
		Params:     map[string]string{"what": what},
		StatusCode: http.StatusPreconditionFailed,
	}
}

// LocationUnavailable is returned when geolocation acquisition failed and the
// outlet policy mandates GPS.
func LocationUnavailable(reason error) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %v", ErrLocationUnavailable, reason),
		Code:       "LOCATION_UNAVAILABLE",
		Message:    "unable to determine device location",
		MessageKey: "errors.location_unavailable",
		StatusCode: http.StatusFailedDependency,
	}
}

// RemoteFailure carries a remote error message through verbatim. When the
// remote provided no message the localized fallback text is used.
func RemoteFailure(message string) *AppError {
	e := &AppError{
		Err:        ErrRemoteFailure,
		Code:       "REMOTE_FAILURE",
		Message:    message,
		StatusCode: http.StatusBadGateway,
	}
	if message == "" {
		e.Message = i18n.T("errors.remote_failure")
		e.MessageKey = "errors.remote_failure"
	}
	return e
}

// PartialRefresh marks a tolerated post-mutation refetch failure. The stale or
// optimistic value is retained; the mutation itself has succeeded.
func PartialRefresh(view string, cause error) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %v", ErrPartialRefresh, cause),
		Code:       "PARTIAL_REFRESH",
		Message:    fmt.Sprintf("refresh of %s view failed", view),
		MessageKey: "errors.partial_refresh",
		Params:     map[string]string{"view": view},
		StatusCode: http.StatusOK,
	}
}

// AlreadyInFlight is returned when a duplicate submission of an operation kind
// is dropped by the in-flight guard.
func AlreadyInFlight(operation string) *AppError {
	return &AppError{
		Err:        ErrAlreadyInFlight,
		Code:       "ALREADY_IN_FLIGHT",
		Message:    fmt.Sprintf("%s already in progress", operation),
		MessageKey: "errors.already_in_flight",
		Params:     map[string]string{"operation": operation},
		StatusCode: http.StatusTooManyRequests,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
