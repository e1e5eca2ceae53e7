package eventlogger

import (
	"errors"
	"fmt"
)

// Error definitions for the eventlogger module
var (
	// Configuration errors
	ErrInvalidLogLevel   = errors.New("invalid log level")
	ErrInvalidFormat     = errors.New("invalid log format")
	ErrInvalidOutputType = errors.New("invalid output target type")
	ErrMissingFilePath   = errors.New("missing file path for file output target")

	// Runtime errors
	ErrFileNotOpen = errors.New("file not open")
)

// OutputTargetError wraps errors from output target validation
type OutputTargetError struct {
	Index int
	Err   error
}

func (e *OutputTargetError) Error() string {
	return fmt.Sprintf("output target %d: %v", e.Index, e.Err)
}

func (e *OutputTargetError) Unwrap() error {
	return e.Err
}

// NewOutputTargetError creates a new OutputTargetError
func NewOutputTargetError(index int, err error) *OutputTargetError {
	return &OutputTargetError{
		Index: index,
		Err:   err,
	}
}
