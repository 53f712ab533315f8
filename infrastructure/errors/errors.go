// Package errors provides unified error handling for the transfer coordinator.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code.
type ErrorCode string

const (
	// ErrCodeValidation covers malformed or missing request fields on any
	// control-plane or RPC-inbound request.
	ErrCodeValidation ErrorCode = "XFER_1001"

	// ErrCodeExportUnavailable is returned when the source instance cannot
	// produce the requested export (platform not found, already exporting).
	ErrCodeExportUnavailable ErrorCode = "XFER_2001"

	// ErrCodeExportTimeout fires when the source instance does not respond
	// to an ExportPlatformRequest within the configured poll window.
	ErrCodeExportTimeout ErrorCode = "XFER_2002"

	// ErrCodeImportRefused is returned when the target instance rejects an
	// ImportPlatformRequest (capacity, duplicate name, incompatible version).
	ErrCodeImportRefused ErrorCode = "XFER_3001"

	// ErrCodeValidationFailure covers an explicit handleValidationFailure
	// report from the target instance.
	ErrCodeValidationFailure ErrorCode = "XFER_4001"

	// ErrCodeValidationTimeout fires when scheduleValidationTimeout's timer
	// elapses without a validation report.
	ErrCodeValidationTimeout ErrorCode = "XFER_4002"

	// ErrCodeCleanupFailure covers a failed DeleteSourcePlatformRequest or
	// UnlockSourcePlatformRequest during the cleanup phase.
	ErrCodeCleanupFailure ErrorCode = "XFER_5001"

	// ErrCodeNotFound covers lookups against the export store, transaction
	// log, or active-transfer map that miss.
	ErrCodeNotFound ErrorCode = "XFER_6001"

	// ErrCodeUnauthorized covers a missing or invalid service token on a
	// control-plane request (spec §10.7).
	ErrCodeUnauthorized ErrorCode = "XFER_7001"

	// ErrCodeInternal is the catch-all for unexpected coordinator-side
	// failures (persistence I/O, programmer error).
	ErrCodeInternal ErrorCode = "XFER_9001"
)

// ServiceError represents a structured error with code, message, and HTTP status.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError.
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error with a ServiceError.
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Validation errors

func InvalidInput(field, reason string) *ServiceError {
	return New(ErrCodeValidation, "invalid input", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

func MissingParameter(param string) *ServiceError {
	return New(ErrCodeValidation, "missing required parameter", http.StatusBadRequest).
		WithDetails("parameter", param)
}

// Export errors

func ExportUnavailable(platformID, reason string) *ServiceError {
	return New(ErrCodeExportUnavailable, "export unavailable", http.StatusConflict).
		WithDetails("platformId", platformID).
		WithDetails("reason", reason)
}

func ExportTimeout(transferID string) *ServiceError {
	return New(ErrCodeExportTimeout, "source instance did not respond to export request", http.StatusGatewayTimeout).
		WithDetails("transferId", transferID)
}

// Import errors

func ImportRefused(transferID, reason string) *ServiceError {
	return New(ErrCodeImportRefused, "target instance refused import", http.StatusConflict).
		WithDetails("transferId", transferID).
		WithDetails("reason", reason)
}

// Validation (post-transport) errors

func ValidationFailure(transferID, reason string) *ServiceError {
	return New(ErrCodeValidationFailure, "target validation failed", http.StatusUnprocessableEntity).
		WithDetails("transferId", transferID).
		WithDetails("reason", reason)
}

func ValidationTimeout(transferID string) *ServiceError {
	return New(ErrCodeValidationTimeout, "target validation timed out", http.StatusGatewayTimeout).
		WithDetails("transferId", transferID)
}

// Cleanup errors

func CleanupFailure(transferID, step string, err error) *ServiceError {
	return Wrap(ErrCodeCleanupFailure, "source cleanup step failed", http.StatusInternalServerError, err).
		WithDetails("transferId", transferID).
		WithDetails("step", step)
}

// Resource errors

func NotFound(resource, id string) *ServiceError {
	return New(ErrCodeNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

// Unauthorized covers a missing or invalid service token.
func Unauthorized(reason string) *ServiceError {
	return New(ErrCodeUnauthorized, "unauthorized", http.StatusUnauthorized).
		WithDetails("reason", reason)
}

// Internal errors

func Internal(message string, err error) *ServiceError {
	return Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
}

// Helper functions

// IsServiceError checks if an error is a ServiceError.
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain.
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status code for an error.
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
