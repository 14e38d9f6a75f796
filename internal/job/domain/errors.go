package domain

import "errors"

var (
	ErrUnknownJobType    = errors.New("unknown job type")
	ErrInvalidMaxRetries = errors.New("max retries must be non-negative")
	ErrJobNotFound       = errors.New("job not found")
)
