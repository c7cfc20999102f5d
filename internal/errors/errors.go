// Package errors defines the ServiceError type returned to HTTP clients and
// constructors for the error classes the ledger exposes.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable machine-readable error identifier.
type ErrorCode string

const (
	CodeValidation         ErrorCode = "VALIDATION_FAILED"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeConflict           ErrorCode = "ALREADY_PROCESSED"
	CodePaymentRequired    ErrorCode = "PAYMENT_REQUIRED"
	CodePaymentFailed      ErrorCode = "PAYMENT_FAILED"
	CodePartialFailure     ErrorCode = "PAYMENT_NOT_RECORDED"
	CodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	CodeForbidden          ErrorCode = "FORBIDDEN"
	CodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	CodeRateLimited        ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeInternal           ErrorCode = "INTERNAL_ERROR"
	CodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// ServiceError carries an HTTP status and optional details alongside the
// underlying cause.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a key/value pair and returns e.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code ErrorCode, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

func Validation(message string, err error) *ServiceError {
	return newError(CodeValidation, http.StatusBadRequest, message, err)
}

func NotFound(message string, err error) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, message, err)
}

func Conflict(message string, err error) *ServiceError {
	return newError(CodeConflict, http.StatusConflict, message, err)
}

func PaymentRequired(message string) *ServiceError {
	return newError(CodePaymentRequired, http.StatusPaymentRequired, message, nil)
}

func PaymentFailed(err error) *ServiceError {
	return newError(CodePaymentFailed, http.StatusBadGateway, "payment failed; nothing was charged or recorded", err)
}

// PartialFailure reports a payment that succeeded on chain but could not be
// recorded. The tx hash is always surfaced so the user can quote it.
func PartialFailure(txHash string, err error) *ServiceError {
	return newError(CodePartialFailure, http.StatusBadGateway,
		"payment succeeded but could not be recorded; contact support with the transaction hash", err).
		WithDetails("tx_hash", txHash)
}

func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "authentication required"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

func Forbidden(message string) *ServiceError {
	if message == "" {
		message = "insufficient permissions"
	}
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

func InvalidToken(err error) *ServiceError {
	return newError(CodeInvalidToken, http.StatusUnauthorized, "invalid or expired token", err)
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimited, http.StatusTooManyRequests, "rate limit exceeded", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

func Unavailable(message string, err error) *ServiceError {
	return newError(CodeServiceUnavailable, http.StatusServiceUnavailable, message, err)
}

func Internal(message string, err error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// GetServiceError returns the first ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}
