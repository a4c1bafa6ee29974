package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds shared across the engine. DomainErrors wrap them so callers can
// match with errors.Is.
var (
	ErrInvalidTransition     = errors.New("invalid transition")
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("concurrent update conflict")
	ErrNoEligibleAgent       = errors.New("no eligible agent")
	ErrNotificationDelivery  = errors.New("notification delivery failed")
	ErrDependencyUnavailable = errors.New("external dependency unavailable")
	ErrValidation            = errors.New("validation failed")
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return &DomainError{
		Code:       "VALIDATION_FAILED",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
		Err:        ErrValidation,
	}
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
		Err:        ErrNotFound,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

// NewInvalidTransition reports a status change the state machine rejects.
func NewInvalidTransition(message string, details map[string]any) error {
	return &DomainError{
		Code:       "INVALID_TRANSITION",
		Message:    message,
		HTTPStatus: http.StatusConflict,
		Details:    details,
		Err:        ErrInvalidTransition,
	}
}

// NewConflict reports a failed optimistic-concurrency check.
func NewConflict(message string, details map[string]any) error {
	return &DomainError{
		Code:       "CONCURRENT_UPDATE_CONFLICT",
		Message:    message,
		HTTPStatus: http.StatusConflict,
		Details:    details,
		Err:        ErrConflict,
	}
}

// NewNoEligibleAgent reports an empty assignment candidate pool.
func NewNoEligibleAgent(details map[string]any) error {
	return &DomainError{
		Code:       "NO_ELIGIBLE_AGENT",
		Message:    "no eligible agent available",
		HTTPStatus: http.StatusConflict,
		Details:    details,
		Err:        ErrNoEligibleAgent,
	}
}

// NewNotificationFailed wraps a sink failure. It is logged, never returned to API callers.
func NewNotificationFailed(channel string, err error) error {
	return &DomainError{
		Code:       "NOTIFICATION_DELIVERY_FAILED",
		Message:    fmt.Sprintf("notification to %s failed", channel),
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"channel": channel},
		Err:        errors.Join(ErrNotificationDelivery, err),
	}
}

// NewDependencyUnavailable wraps store or directory failures.
func NewDependencyUnavailable(dependency string, err error) error {
	return &DomainError{
		Code:       "DEPENDENCY_UNAVAILABLE",
		Message:    fmt.Sprintf("%s unavailable", dependency),
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"dependency": dependency},
		Err:        errors.Join(ErrDependencyUnavailable, err),
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return NewNotFound("resource", nil).(*DomainError)
	case errors.Is(err, ErrConflict):
		return NewConflict("resource was modified concurrently", nil).(*DomainError)
	case errors.Is(err, ErrInvalidTransition):
		return NewInvalidTransition(err.Error(), nil).(*DomainError)
	case errors.Is(err, ErrNoEligibleAgent):
		return NewNoEligibleAgent(nil).(*DomainError)
	case errors.Is(err, ErrValidation):
		return NewValidationError(err.Error(), nil).(*DomainError)
	case errors.Is(err, ErrDependencyUnavailable):
		return &DomainError{
			Code:       "DEPENDENCY_UNAVAILABLE",
			Message:    "dependency unavailable",
			HTTPStatus: http.StatusServiceUnavailable,
			Err:        err,
		}
	}
	return NewInternalError(err).(*DomainError)
}

// MapError converts err into a DomainError, keeping nil as nil.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
