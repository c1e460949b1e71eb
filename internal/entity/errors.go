package entity

import (
	"errors"
	"fmt"
)

// DefaultErrorCode is the code of a BusinessError created without one.
const DefaultErrorCode = "00000"

// BusinessError is an application failure with a stable code for clients.
type BusinessError struct {
	Code    string
	Message string
}

// NewBusinessError creates a BusinessError with a formatted message.
func NewBusinessError(code, format string, args ...any) *BusinessError {
	if code == "" {
		code = DefaultErrorCode
	}
	return &BusinessError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Error formats the error as "[code]message".
func (e *BusinessError) Error() string {
	return fmt.Sprintf("[%s]%s", e.Code, e.Message)
}

// BusinessCode returns the code of the first BusinessError in err's chain.
func BusinessCode(err error) (string, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code, true
	}
	return "", false
}
