// Package errors provides categorized domain errors for book metadata retrieval.
//
// Usage:
//
//	// In the client - return typed errors
//	if resp.StatusCode >= 500 {
//	    return errors.NetworkStatus(resp.StatusCode, "server error")
//	}
//
//	// In callers - check with errors.Is
//	if errors.Is(err, errors.ErrValidation) {
//	    fmt.Println(errors.UserMessage(err))
//	    return
//	}
//
//	// Timeouts are network errors too
//	errors.Is(errors.Timeout("deadline exceeded"), errors.ErrNetwork) // true
//
//	// Or use the Code directly for switch statements
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    switch domainErr.Code {
//	    case errors.CodeParse:
//	        log.Warn("layout changed", "source", domainErr.Source)
//	    }
//	}
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeValidation Code = "VALIDATION"
	CodeNetwork    Code = "NETWORK"
	CodeTimeout    Code = "TIMEOUT"
	CodeParse      Code = "PARSE"
	CodeCache      Code = "CACHE"
	CodeInternal   Code = "INTERNAL"
)

// Retryable reports whether failures with this code may succeed on a later attempt.
func (c Code) Retryable() bool {
	return c == CodeNetwork || c == CodeTimeout
}

// Error is a domain error with a code, message, and optional context.
type Error struct {
	Code       Code   `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	StatusCode int    `json:"status_code,omitempty"` // HTTP status for network errors
	Source     string `json:"source,omitempty"`      // page URL or book id for parse errors
	cause      error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Source != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Source)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code. A timeout also
// matches the network sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if e.Code == t.Code {
		return true
	}
	return e.Code == CodeTimeout && t.Code == CodeNetwork
}

// Retryable reports whether the operation that produced this error may be retried.
// Network errors carrying a 4xx status are final.
func (e *Error) Retryable() bool {
	if !e.Code.Retryable() {
		return false
	}
	return e.StatusCode < 400 || e.StatusCode >= 500
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	c := *e
	c.Details = details
	return &c
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.cause = err
	return &c
}

// WithSource attaches the page or record the error originated from.
func (e *Error) WithSource(source string) *Error {
	c := *e
	c.Source = source
	return &c
}

// Sentinel errors for use with errors.Is().
var (
	ErrValidation = &Error{Code: CodeValidation, Message: "validation error"}
	ErrNetwork    = &Error{Code: CodeNetwork, Message: "network error"}
	ErrTimeout    = &Error{Code: CodeTimeout, Message: "request timed out"}
	ErrParse      = &Error{Code: CodeParse, Message: "parse error"}
	ErrCache      = &Error{Code: CodeCache, Message: "cache error"}
	ErrInternal   = &Error{Code: CodeInternal, Message: "internal error"}
)

// Constructor functions for creating errors with custom messages.

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Network creates a transport-level network error.
func Network(msg string) *Error {
	return &Error{Code: CodeNetwork, Message: msg}
}

// NetworkStatus creates a network error for an unexpected HTTP status.
func NetworkStatus(status int, msg string) *Error {
	return &Error{Code: CodeNetwork, Message: msg, StatusCode: status}
}

// Timeout creates a timeout error.
func Timeout(msg string) *Error {
	return &Error{Code: CodeTimeout, Message: msg}
}

// Parse creates a parse error for the given source page or record.
func Parse(source, msg string) *Error {
	return &Error{Code: CodeParse, Message: msg, Source: source}
}

// Parsef creates a parse error with formatted message.
func Parsef(source, format string, args ...any) *Error {
	return &Error{Code: CodeParse, Message: fmt.Sprintf(format, args...), Source: source}
}

// Cache creates a cache error.
func Cache(msg string) *Error {
	return &Error{Code: CodeCache, Message: msg}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// IsRetryable reports whether err is a domain error that allows another attempt.
// Errors outside the domain taxonomy are treated as transport failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Retryable()
	}
	return true
}

// CodeOf returns the code of the outermost domain error in err's chain.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}

// UserMessage returns text suitable for showing to an end user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var domainErr *Error
	if !errors.As(err, &domainErr) {
		return "알 수 없는 오류가 발생했습니다."
	}
	switch domainErr.Code {
	case CodeValidation:
		return "검색어를 확인해 주세요: " + domainErr.Message
	case CodeTimeout:
		return "요청 시간이 초과되었습니다. 잠시 후 다시 시도해 주세요."
	case CodeNetwork:
		if domainErr.StatusCode >= 400 && domainErr.StatusCode < 500 {
			return fmt.Sprintf("요청을 처리할 수 없습니다 (HTTP %d).", domainErr.StatusCode)
		}
		return "네트워크 오류가 발생했습니다. 연결 상태를 확인해 주세요."
	case CodeParse:
		return "도서 정보를 해석하지 못했습니다. 사이트 구조가 변경되었을 수 있습니다."
	default:
		return "알 수 없는 오류가 발생했습니다."
	}
}
