package errmodel

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the caller-facing envelope.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConfiguration
	KindUpstream
)

// Envelope codes.
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeConfiguration        = "CONFIGURATION_ERROR"
	CodeUpstream             = "UPSTREAM_ERROR"
	CodeInternal             = "INTERNAL_ERROR"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodeInvalidPayload       = "INVALID_PAYLOAD"
	CodeUnauthorized         = "UNAUTHORIZED"
)

// Error is the classified error carried from the engine and the transport
// up to the HTTP boundary.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// StatusCode is the upstream HTTP status. Zero when no response was received.
	StatusCode int
	// Details is the raw upstream body, if any.
	Details any

	cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.StatusCode)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Validation builds a client-caused failure.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: message}
}

// Validationf is Validation with formatting.
func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

// WrapValidation builds a validation failure that also matches cause via errors.Is.
func WrapValidation(message string, cause error) *Error {
	e := Validation(message)
	e.cause = cause
	return e
}

// Configuration builds a failure caused by proxy misconfiguration.
func Configuration(message string) *Error {
	return &Error{Kind: KindConfiguration, Code: CodeConfiguration, Message: message}
}

// Upstream builds a failure reported by, or caused by reaching, the CRM API.
func Upstream(message string, statusCode int, details any, cause error) *Error {
	return &Error{
		Kind:       KindUpstream,
		Code:       CodeUpstream,
		Message:    message,
		StatusCode: statusCode,
		Details:    details,
		cause:      cause,
	}
}

// From converts any error into an *Error. Unknown errors become internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: err.Error(), cause: err}
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HTTPStatus maps an error to the status code of its envelope.
func HTTPStatus(e *Error) int {
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConfiguration:
		return http.StatusInternalServerError
	case KindUpstream:
		if e.StatusCode >= 400 && e.StatusCode <= 599 {
			return e.StatusCode
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
