package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType groups errors by the layer that produced them.
type ErrorType string

const (
	// Domain errors
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeConflict   ErrorType = "CONFLICT"
	ErrorTypeGone       ErrorType = "GONE"
	ErrorTypeStateMachine ErrorType = "STATE_MACHINE"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"

	// Application errors
	ErrorTypeInternal  ErrorType = "INTERNAL"
	ErrorTypeRateLimit ErrorType = "RATE_LIMIT"

	// Infrastructure errors
	ErrorTypeInfrastructure ErrorType = "INFRASTRUCTURE"
)

// Error codes used across services. Callers branch on codes, never on
// message text.
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeBookNotFound        = "BOOK_NOT_FOUND"
	CodeReservationNotFound = "RESERVATION_NOT_FOUND"
	CodeWalletNotFound      = "WALLET_NOT_FOUND"
	CodeNotFound            = "NOT_FOUND"
	CodeAlreadyDeleted      = "ALREADY_DELETED"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeDuplicateEvent      = "DUPLICATE_EVENT"
	CodeInvalidEventStream  = "INVALID_EVENT_STREAM"
	CodeEventSaveFailed     = "EVENT_SAVE_FAILED"
	CodeEventRetrievalFailed = "EVENT_RETRIEVAL_FAILED"
	CodeEventStoreUnavailable = "EVENT_STORE_UNAVAILABLE"
	CodeEventBusUnavailable = "EVENT_BUS_UNAVAILABLE"
	CodeCacheUnavailable    = "CACHE_UNAVAILABLE"
	CodeInsufficientFunds   = "INSUFFICIENT_FUNDS"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternalError       = "INTERNAL_ERROR"
)

// AppError is the single error shape that crosses layer boundaries.
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds structured context to the error.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause wraps an underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// Constructor functions for the error taxonomy.

// NewValidationError creates a VALIDATION_ERROR (400).
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       CodeValidationError,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFoundError creates a not-found error (404) with a resource-specific code,
// e.g. BOOK_NOT_FOUND.
func NewNotFoundError(code, resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

// NewAlreadyDeletedError creates a *_ALREADY_DELETED error (410).
func NewAlreadyDeletedError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeGone,
		Code:       fmt.Sprintf("%s_ALREADY_DELETED", resource),
		Message:    fmt.Sprintf("%s has already been deleted", resource),
		HTTPStatus: http.StatusGone,
	}
}

// NewStateTransitionError creates a <AGGREGATE>_CANNOT_BE_<TARGET> error (400).
// The aggregate command was rejected by its state-transition guard.
func NewStateTransitionError(aggregate, target, current string) *AppError {
	return &AppError{
		Type:       ErrorTypeStateMachine,
		Code:       fmt.Sprintf("%s_CANNOT_BE_%s", aggregate, target),
		Message:    fmt.Sprintf("%s in status %s cannot transition to %s", aggregate, current, target),
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewConcurrencyConflictError creates a CONCURRENCY_CONFLICT error (409).
func NewConcurrencyConflictError(aggregateID string, expected, actual int) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       CodeConcurrencyConflict,
		Message:    fmt.Sprintf("concurrency conflict for aggregate %s: expected version %d, actual version %d", aggregateID, expected, actual),
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicateEventError creates a DUPLICATE_EVENT error (409).
func NewDuplicateEventError(aggregateID string, version int) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       CodeDuplicateEvent,
		Message:    fmt.Sprintf("event version %d already exists for aggregate %s", version, aggregateID),
		HTTPStatus: http.StatusConflict,
	}
}

// NewInvalidEventStreamError creates an INVALID_EVENT_STREAM error.
func NewInvalidEventStreamError(aggregateID, reason string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       CodeInvalidEventStream,
		Message:    fmt.Sprintf("invalid event stream for aggregate %s: %s", aggregateID, reason),
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewInfrastructureError creates an infrastructure error (500) with the given code.
func NewInfrastructureError(code, message string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeInfrastructure,
		Code:       code,
		Message:    message,
		Cause:      err,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewUnauthorizedError creates an UNAUTHORIZED error (401).
func NewUnauthorizedError(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbiddenError creates a FORBIDDEN error (403).
func NewForbiddenError(message string) *AppError {
	if message == "" {
		message = "forbidden"
	}
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewInsufficientFundsError creates an INSUFFICIENT_FUNDS error (400).
func NewInsufficientFundsError(walletID string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       CodeInsufficientFunds,
		Message:    fmt.Sprintf("wallet %s has insufficient funds", walletID),
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewRateLimitError creates a RATE_LIMITED error (429).
func NewRateLimitError(limit int, window string) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimit,
		Code:       CodeRateLimited,
		Message:    fmt.Sprintf("rate limit exceeded: %d requests per %s", limit, window),
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// NewInternalError creates an INTERNAL_ERROR (500).
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       CodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Helper functions

// GetAppError extracts an AppError from an error chain.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	return GetAppError(err) != nil
}

// IsCode checks whether an error carries the given error code.
func IsCode(err error, code string) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == code
}

// IsConcurrencyConflict checks for CONCURRENCY_CONFLICT by code.
func IsConcurrencyConflict(err error) bool {
	return IsCode(err, CodeConcurrencyConflict)
}

// IsDuplicateEvent checks for DUPLICATE_EVENT by code.
func IsDuplicateEvent(err error) bool {
	return IsCode(err, CodeDuplicateEvent)
}

// IsNotFound checks whether the error is any not-found variant.
func IsNotFound(err error) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == ErrorTypeNotFound
}

// IsValidation checks whether the error is a validation error.
func IsValidation(err error) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == ErrorTypeValidation
}

// StatusOf maps an error to its HTTP status, defaulting to 500.
func StatusOf(err error) int {
	if appErr := GetAppError(err); appErr != nil && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Wrap wraps an error with additional context. AppErrors keep their code and
// status; anything else becomes an INTERNAL_ERROR.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr := GetAppError(err); appErr != nil {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}
	return NewInternalError(message).WithCause(err)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
