package txn

import (
	"errors"
	"fmt"
)

// Error reports a transaction scoping failure that is not an operation
// failure: misconfiguration, a leaked handle, or a begin/commit failure.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Datasource is the logical datasource involved, if any.
	Datasource string

	// Message is a human-readable description.
	Message string

	// Err is the underlying driver or context error.
	Err error
}

// ErrorCode categorizes Error values.
type ErrorCode string

const (
	// CodeConfiguration indicates an unknown datasource, a missing default
	// datasource or an unusable connection setting.
	CodeConfiguration ErrorCode = "CONFIGURATION"

	// CodeContextLeak indicates a handle escaped the scope that owns it.
	CodeContextLeak ErrorCode = "CONTEXT_LEAK"

	// CodeBegin indicates the driver refused to begin a transaction.
	CodeBegin ErrorCode = "TX_BEGIN"

	// CodeCommit indicates the driver failed to commit.
	CodeCommit ErrorCode = "TX_COMMIT"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Datasource != "" {
		msg += fmt.Sprintf(" (datasource=%s)", e.Datasource)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsConfigurationError returns true if err is a configuration error.
// Uses errors.As to handle wrapped errors.
func IsConfigurationError(err error) bool {
	return hasCode(err, CodeConfiguration)
}

// IsContextLeak returns true if err reports a leaked handle.
func IsContextLeak(err error) bool {
	return hasCode(err, CodeContextLeak)
}

// IsCommitError returns true if err reports a failed commit.
func IsCommitError(err error) bool {
	return hasCode(err, CodeCommit)
}

func hasCode(err error, code ErrorCode) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}

func configError(datasource, format string, args ...any) *Error {
	return &Error{
		Code:       CodeConfiguration,
		Datasource: datasource,
		Message:    fmt.Sprintf(format, args...),
	}
}
