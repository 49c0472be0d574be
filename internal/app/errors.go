package service

import (
	"errors"

	"github.com/okian/irr/internal/adapters/repository"
	"github.com/okian/irr/internal/domain/irr"
)

// Sentinel errors returned by the service.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrBackpressure = errors.New("job queue is full")
	ErrJobNotFound  = repository.ErrNotFound
	ErrInvalidInput = irr.ErrInvalidInput
)
