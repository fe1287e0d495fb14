// Package apperr defines the error kinds shared by the context, weather and OTP components.
package apperr

import (
	"errors"
	"fmt"

	"github.com/AnshRaj112/krishi-advisor-backend/pkg/utils"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindExpired           Kind = "expired"
	KindInvalidCode       Kind = "invalid_code"
	KindAttemptsExhausted Kind = "attempts_exhausted"
	KindTransient         Kind = "transient"
	KindRateLimited       Kind = "rate_limited"
	KindDelivery          Kind = "delivery"
	KindConcurrency       Kind = "concurrency"
	KindUnavailable       Kind = "unavailable"
	KindInternal          Kind = "internal"
)

// ErrNotConfigured marks a collaborator that has no credentials.
var ErrNotConfigured = errors.New("not configured")

// Error is a classified error with an optional cause.
type Error struct {
	Kind    Kind
	Message string
	// Remaining is set for KindInvalidCode.
	Remaining int
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation returns a field-level validation error.
func Validation(field, message string) error {
	return &utils.ValidationError{Field: field, Message: message}
}

func NotFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Expired(message string) error {
	return &Error{Kind: KindExpired, Message: message}
}

func AttemptsExhausted(message string) error {
	return &Error{Kind: KindAttemptsExhausted, Message: message}
}

func InvalidCode(remaining int) error {
	return &Error{
		Kind:      KindInvalidCode,
		Message:   fmt.Sprintf("Invalid code, %d attempt(s) remaining", remaining),
		Remaining: remaining,
	}
}

func Transient(message string, err error) error {
	return &Error{Kind: KindTransient, Message: message, Err: err}
}

func RateLimited(message string, err error) error {
	return &Error{Kind: KindRateLimited, Message: message, Err: err}
}

func Delivery(message string, err error) error {
	return &Error{Kind: KindDelivery, Message: message, Err: err}
}

func Concurrency(message string, err error) error {
	return &Error{Kind: KindConcurrency, Message: message, Err: err}
}

func Unavailable(message string, err error) error {
	return &Error{Kind: KindUnavailable, Message: message, Err: err}
}

// KindOf reports the kind of err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var verr *utils.ValidationError
	if errors.As(err, &verr) {
		return KindValidation
	}
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Kind
	}
	return KindInternal
}

// Is reports whether err is of kind k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// IsRetryable reports whether the caller may retry the operation.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindRateLimited, KindConcurrency:
		return true
	}
	return false
}

// RemainingAttempts extracts the remaining attempt count from an invalid-code error.
func RemainingAttempts(err error) (int, bool) {
	var aerr *Error
	if errors.As(err, &aerr) && aerr.Kind == KindInvalidCode {
		return aerr.Remaining, true
	}
	return 0, false
}
