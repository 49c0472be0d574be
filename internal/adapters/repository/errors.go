package repository

import "errors"

// Sentinel kinds for job store errors.
var (
	ErrNotFound    = errors.New("job not found")
	ErrInvalidJob  = errors.New("invalid job")
	ErrInvalidSpec = errors.New("invalid store spec")
)
