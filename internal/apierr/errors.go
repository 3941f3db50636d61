// Package apierr defines the typed errors surfaced by the tracker to its host.
//
// Every failure that reaches a caller of the engine is an *Error carrying a
// Code. Transport failures, malformed responses and local rejections (bad API
// key, oversized request) all share this shape so the host can branch on the
// code without string matching.
package apierr

import (
	"errors"
	"fmt"
)

// Code categorizes tracker errors.
type Code string

const (
	// CodeOther covers network failures, malformed JSON and an uninitialized tracker.
	CodeOther Code = "OTHER"

	// CodeMalformedAPIKey indicates the configured key is not 40 characters.
	CodeMalformedAPIKey Code = "MALFORMED_API_KEY"

	// CodeRequestTooBig indicates the serialized tracker request exceeded the size cap.
	CodeRequestTooBig Code = "REQUEST_TOO_BIG"

	// CodeHTTP401 indicates the gateway rejected the API key.
	CodeHTTP401 Code = "HTTP_401"

	// CodeHTTP500 indicates a server error; Message carries the response body.
	CodeHTTP500 Code = "HTTP_500"

	// CodeHTTP503 indicates the gateway is temporarily unavailable.
	CodeHTTP503 Code = "HTTP_503"
)

// Error is the error type returned by the tracker.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given code and message.
// An empty message becomes "General error".
func New(code Code, message string) *Error {
	if message == "" {
		message = "General error"
	}
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error with the given code around an existing error.
func Wrap(code Code, message string, err error) *Error {
	e := New(code, message)
	e.Err = err
	return e
}

// CodeOf returns the code of the first *Error in err's chain.
// Errors that are not *Error report CodeOther.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeOther
}

// Is reports whether err carries the given code.
// Uses errors.As to handle wrapped errors.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsRequestTooBig reports whether err is a size-limit rejection.
func IsRequestTooBig(err error) bool {
	return Is(err, CodeRequestTooBig)
}

// IsUnauthorized reports whether err is an invalid or malformed API key.
func IsUnauthorized(err error) bool {
	return Is(err, CodeHTTP401) || Is(err, CodeMalformedAPIKey)
}
