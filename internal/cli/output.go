package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit codes.
const (
	ExitSuccess = 0
	// ExitFailure: a call answered returnValue false, a scenario failed or
	// a validated file is invalid.
	ExitFailure = 1
	// ExitCommandError: bad flags, unreadable paths or unreachable storage.
	ExitCommandError = 2
)

// Codes carried in the error envelope of --format json.
const (
	ErrCodeGeneric         = "E001"
	ErrCodeNotFound        = "E005"
	ErrCodeInvalidConfig   = "E010"
	ErrCodeInvalidScenario = "E011"
	ErrCodeCallFailed      = "E020"
	ErrCodeTestFailed      = "E_TEST_FAILED"
)

// ExitError makes a command exit with Code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError caused by err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code. Errors that carry no
// ExitError exit with ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &exitErr):
		return exitErr.Code
	default:
		return ExitFailure
	}
}

// CLIResponse is the envelope written by --format json.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes a failed command inside CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results as plain text or as a
// CLIResponse envelope, depending on Format.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

func (f *OutputFormatter) envelope(r CLIResponse) error {
	return json.NewEncoder(f.Writer).Encode(r)
}

// Success writes data. Text mode prints it with fmt.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.envelope(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes a failure. Text mode shows details only with --verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.envelope(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	if _, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message); err != nil {
		return err
	}
	if !f.Verbose || details == nil {
		return nil
	}
	_, err := fmt.Fprintf(f.Writer, "Details: %v\n", details)
	return err
}
