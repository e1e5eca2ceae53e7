package scheduler

import (
	"errors"
)

// Module-specific errors for scheduler module.
var (
	ErrDuplicateJob   = errors.New("duplicate job name")
	ErrJobNotFound    = errors.New("job not found")
	ErrInvalidJob     = errors.New("invalid job")
	ErrStopTimeout    = errors.New("scheduler shutdown timed out")
	ErrNotInitialized = errors.New("scheduler module is not initialized")
)
