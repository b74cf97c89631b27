package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind tags an Error with its place in the failure taxonomy.
type Kind string

const (
	KindAuth              Kind = "AUTH_ERROR"
	KindValidation        Kind = "VALIDATION_ERROR"
	KindInvalidRound      Kind = "INVALID_ROUND"
	KindGenerationInvalid Kind = "GENERATION_INVALID"
	KindRemoteService     Kind = "REMOTE_SERVICE_ERROR"
	KindInternal          Kind = "INTERNAL_ERROR"
)

// Error is the structured failure carried through the pipeline.
type Error struct {
	Kind    Kind     `json:"kind"`
	Op      string   `json:"op,omitempty"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
	Err     error    `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller may resend the same request and
// reasonably expect a different outcome.
func (e *Error) Retryable() bool {
	return e.Kind == KindRemoteService
}

// HTTPStatus maps the kind onto the inbound response code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindAuth:
		return http.StatusUnauthorized
	case KindValidation, KindInvalidRound:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func Auth(message string) *Error {
	return &Error{Kind: KindAuth, Message: message}
}

func Validation(message string, fields ...string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

func InvalidRound(round any) *Error {
	return &Error{Kind: KindInvalidRound, Message: fmt.Sprintf("Invalid round: %v. Must be 1 or 2", round)}
}

func GenerationInvalid(op, message string) *Error {
	return &Error{Kind: KindGenerationInvalid, Op: op, Message: message}
}

func Remote(op string, err error) *Error {
	return &Error{Kind: KindRemoteService, Op: op, Err: err}
}

func Remotef(op, format string, args ...any) *Error {
	return &Error{Kind: KindRemoteService, Op: op, Message: fmt.Sprintf(format, args...)}
}

// As extracts an *Error from err. Errors outside the taxonomy are
// reported as KindInternal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Err: err}
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
