package pdfquiz

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures that are shown to the user
type ErrorKind string

const (
	KindInvalidInput         ErrorKind = "invalid_input"
	KindExtractionFailed     ErrorKind = "extraction_failed"
	KindReadFailed           ErrorKind = "read_failed"
	KindServiceUnavailable   ErrorKind = "service_unavailable"
	KindMalformedResponse    ErrorKind = "malformed_response"
	KindConfigurationMissing ErrorKind = "configuration_missing"
)

var (
	// ErrInvalidTransition is returned when an event is not accepted in the current phase.
	ErrInvalidTransition = errors.New("event not allowed in current phase")
	// ErrSessionFrozen is returned when an answer is recorded after scoring began.
	ErrSessionFrozen = errors.New("quiz session is frozen")
)

// Error is a classified failure carrying a user-facing message
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// InvalidInput reports a rejected document or time limit.
func InvalidInput(format string, args ...interface{}) *Error {
	return newError(KindInvalidInput, nil, format, args...)
}

// KindOf returns the kind of a classified error, or "" when err is not one.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the user-facing text for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
