package errors

import (
	"errors"
	"fmt"
)

// AppError represents an application error with additional context
type AppError struct {
	Code     string      `json:"code"`
	Message  string      `json:"message"`
	Internal error       `json:"-"`
	Details  interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Unwrap returns the internal error for errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Internal
}

// Error codes for the scan-and-alert pipeline
const (
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeCredential        = "CREDENTIAL_ERROR"
	ErrCodeProviderAuth      = "PROVIDER_AUTH_ERROR"
	ErrCodeProviderTransient = "PROVIDER_TRANSIENT_ERROR"
	ErrCodeDelivery          = "DELIVERY_ERROR"
)

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an error with an AppError
func Wrap(err error, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Internal: err}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// Internal creates an internal error
func Internal(message string, err error) *AppError {
	return Wrap(err, ErrCodeInternal, message)
}

// NotFound creates a not found error
func NotFound(entity string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", entity))
}

// ValidationError creates a validation error; never enters the queue
func ValidationError(message string, details interface{}) *AppError {
	return New(ErrCodeValidation, message).WithDetails(details)
}

// StoreError wraps a database failure
func StoreError(message string, err error) *AppError {
	return Wrap(err, ErrCodeStore, message)
}

// CredentialError marks a bad or tampered secret; fatal, never retried
func CredentialError(message string, err error) *AppError {
	return Wrap(err, ErrCodeCredential, message)
}

// ProviderAuthError marks rejected cloud credentials; fatal, surfaced to the scan job
func ProviderAuthError(provider string, err error) *AppError {
	return Wrap(err, ErrCodeProviderAuth,
		fmt.Sprintf("failed to authenticate with %s", provider))
}

// ProviderTransientError marks throttling or timeouts; retryable at the queue layer
func ProviderTransientError(provider string, err error) *AppError {
	return Wrap(err, ErrCodeProviderTransient,
		fmt.Sprintf("transient %s API failure", provider))
}

// DeliveryError marks a notification channel failure
func DeliveryError(channel string, err error) *AppError {
	return Wrap(err, ErrCodeDelivery,
		fmt.Sprintf("failed to deliver via %s", channel))
}

// permanentError marks a failure no retry can fix, independent of its
// code. It survives wrapping, so a DeliveryError built over a permanent
// channel failure stays non-retryable at the queue layer.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps an error so Retryable reports false for any error
// that carries it in its chain.
func Permanent(err error) error {
	return &permanentError{err: err}
}

// IsPermanent reports whether the chain carries a permanence mark.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Code extracts the AppError code, or INTERNAL_ERROR for plain errors.
func Code(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrCodeInternal
}

// Retryable reports whether the queue should schedule another attempt.
// Credential, provider-auth and validation failures are permanent; the
// rest is assumed transient.
func Retryable(err error) bool {
	if IsPermanent(err) {
		return false
	}
	switch Code(err) {
	case ErrCodeCredential, ErrCodeProviderAuth, ErrCodeValidation, ErrCodeNotFound:
		return false
	}
	return true
}
