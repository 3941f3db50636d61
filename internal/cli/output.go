package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/personyze/tracker-go/internal/apierr"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The gateway or the engine reported an error
	ExitCommandError = 2 // Command error (bad config, bad arguments, unusable store)
)

// Error codes reported by the CLI itself. Gateway failures use the
// apierr code instead.
const (
	ErrCodeConfig    = "CONFIG"
	ErrCodeArguments = "ARGUMENTS"
)

// ExitError represents an error with a specific exit code.
// Commands report the error through the OutputFormatter before returning it.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// TextRenderer is implemented by payloads with a human-readable form.
type TextRenderer interface {
	RenderText(w io.Writer) error
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // apierr code, or CONFIG / ARGUMENTS
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	if r, ok := data.(TextRenderer); ok {
		return r.RenderText(f.Writer)
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns it as an ExitError. Tracker errors keep their
// apierr code and exit with ExitFailure.
func (f *OutputFormatter) Fail(message string, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		_ = f.Error(ErrCodeArguments, exitErr.Error(), nil)
		return exitErr
	}

	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		_ = f.Error(string(apiErr.Code), apiErr.Message, errorDetails(apiErr))
		return WrapExitError(ExitFailure, message, err)
	}
	_ = f.Error(string(apierr.CodeOther), err.Error(), nil)
	return WrapExitError(ExitFailure, message, err)
}

func errorDetails(err *apierr.Error) any {
	if err.Err == nil {
		return nil
	}
	return err.Err.Error()
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
