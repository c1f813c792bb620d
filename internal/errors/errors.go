package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeNotFound      ErrorType = "NOT_FOUND"
	ErrorTypeValidation    ErrorType = "VALIDATION"
	ErrorTypeInternal      ErrorType = "INTERNAL"
	ErrorTypeUnauthorized  ErrorType = "UNAUTHORIZED"
	ErrorTypeTransient     ErrorType = "TRANSIENT_NETWORK"
	ErrorTypeRefNotFound   ErrorType = "REF_NOT_FOUND"
	ErrorTypeRefConflict   ErrorType = "REF_CONFLICT"
	ErrorTypeFileNotFound  ErrorType = "FILE_NOT_FOUND"
	ErrorTypeWriteConflict ErrorType = "WRITE_CONFLICT"
	ErrorTypeMergeConflict ErrorType = "MERGE_CONFLICT"
	ErrorTypeDecode        ErrorType = "DECODE"
	ErrorTypeExhausted     ErrorType = "TRANSACTION_EXHAUSTED"
	ErrorTypeCanceled      ErrorType = "CANCELED"
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Attempt int       `json:"attempt,omitempty"`
	Details any       `json:"details,omitempty"`

	// Err is the underlying cause.
	Err error `json:"-"`
	// Cleanup holds branch deletions that failed while this error was unwinding.
	Cleanup error `json:"-"`
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

// Retryable reports whether the optimistic transaction loop may try again.
func (e *Error) Retryable() bool {
	switch e.Type {
	case ErrorTypeTransient, ErrorTypeWriteConflict, ErrorTypeMergeConflict:
		return true
	}
	return false
}

// TypeOf returns the type of the first *Error in err's chain, or
// ErrorTypeInternal when there is none.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// Is reports whether err carries an *Error of the given type.
func Is(err error, t ErrorType) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Type == t
}

func IsRetryable(err error) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Retryable()
}

func NotFound(message string) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

func ValidationError(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
		Code:    http.StatusBadRequest,
		Details: details,
	}
}

func Internal(message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Message: message,
		Code:    http.StatusInternalServerError,
		Err:     err,
	}
}

func Unauthorized(message string) *Error {
	return &Error{
		Type:    ErrorTypeUnauthorized,
		Message: message,
		Code:    http.StatusUnauthorized,
	}
}

func Transient(message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeTransient,
		Message: message,
		Code:    http.StatusBadGateway,
		Err:     err,
	}
}

func RefNotFound(name string) *Error {
	return &Error{
		Type:    ErrorTypeRefNotFound,
		Message: fmt.Sprintf("ref not found: %s", name),
		Code:    http.StatusNotFound,
	}
}

func RefConflict(name string) *Error {
	return &Error{
		Type:    ErrorTypeRefConflict,
		Message: fmt.Sprintf("ref already exists: %s", name),
		Code:    http.StatusConflict,
	}
}

func FileNotFound(path, ref string) *Error {
	return &Error{
		Type:    ErrorTypeFileNotFound,
		Message: fmt.Sprintf("file %s not found on %s", path, ref),
		Code:    http.StatusNotFound,
	}
}

func WriteConflict(path, ref string) *Error {
	return &Error{
		Type:    ErrorTypeWriteConflict,
		Message: fmt.Sprintf("file %s on %s changed since it was read", path, ref),
		Code:    http.StatusConflict,
	}
}

func MergeConflict(base, head string) *Error {
	return &Error{
		Type:    ErrorTypeMergeConflict,
		Message: fmt.Sprintf("cannot merge %s into %s: base has diverged", head, base),
		Code:    http.StatusConflict,
	}
}

func DecodeError(err error) *Error {
	return &Error{
		Type:    ErrorTypeDecode,
		Message: "stored document is not valid",
		Code:    http.StatusUnprocessableEntity,
		Err:     err,
	}
}

func Exhausted(attempts int, last error) *Error {
	return &Error{
		Type:    ErrorTypeExhausted,
		Message: fmt.Sprintf("transaction gave up after %d attempts", attempts),
		Code:    http.StatusServiceUnavailable,
		Attempt: attempts,
		Err:     last,
	}
}

func Canceled(err error) *Error {
	return &Error{
		Type:    ErrorTypeCanceled,
		Message: "transaction canceled",
		Code:    499,
		Err:     err,
	}
}
