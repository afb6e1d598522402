// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal           = "INTERNAL_ERROR"
	CodeTransactionFailure = "TRANSACTION_FAILURE"

	// Validation errors (400)
	CodeValidation = "VALIDATION_ERROR"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict         = "CONFLICT"
	CodeAlreadyResolved  = "EXCEPTION_ALREADY_RESOLVED"
	CodeInsufficientWork = "INSUFFICIENT_PRODUCTION"
	CodeIdempotency      = "IDEMPOTENCY_CONFLICT"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewAlreadyResolved is returned when an exception resolution is attempted twice.
func NewAlreadyResolved(exceptionID any) *AppError {
	return &AppError{
		Code:       CodeAlreadyResolved,
		Message:    "Receiving exception is already resolved",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"exception_id": exceptionID},
	}
}

// NewInsufficientProduction is returned when a work order is completed before
// its target quantity was produced.
func NewInsufficientProduction(workOrderID any, produced, target int64) *AppError {
	return &AppError{
		Code:       CodeInsufficientWork,
		Message:    "Work order has not produced the target quantity",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"work_order_id": workOrderID,
			"produced":      produced,
			"target":        target,
		},
	}
}

// NewTransactionFailure wraps an error that aborted a database transaction
// (lock timeout, deadlock, constraint violation). Nothing from the
// transaction is visible after this error.
func NewTransactionFailure(err error) *AppError {
	return &AppError{
		Code:       CodeTransactionFailure,
		Message:    "Transaction aborted, no changes were recorded",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewIdempotencyConflict creates error when operation is already in progress
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Operation already in progress or completed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyMismatch is returned when the same idempotency key is reused for
// a different request (different user/operation/body hash).
func NewIdempotencyMismatch(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Idempotency key mismatch",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsValidation checks if error is CodeValidation
func IsValidation(err error) bool {
	return HasCode(err, CodeValidation)
}

// IsConflict reports whether err is any of the 409 conflict codes.
func IsConflict(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus == http.StatusConflict
	}
	return false
}
