package config

import "errors"

// Sentinel errors. Load wraps ErrLoadConfig for unreadable sources and
// ErrInvalidConfig for values that fail Validate.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
