// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/irr/internal/domain/cashflow"
)

// Status is the lifecycle state of an asynchronous job.
type Status string

// Job statuses. Pending is the only non-terminal one.
const (
	StatusPending    Status = "pending"
	StatusDone       Status = "done"
	StatusNoSolution Status = "no_solution"
	StatusInvalid    Status = "invalid"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the job will not change again.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusNoSolution, StatusInvalid, StatusFailed:
		return true
	}
	return false
}

// Job is an IRR computation submitted for asynchronous processing.
type Job struct {
	ID        string
	Flow      cashflow.Flow
	Precision float64

	Status     Status
	IRR        float64
	Method     string
	Iterations int
	Reason     string // no-solution reason or failure stage
	Error      string

	SubmittedAt time.Time
	CompletedAt time.Time
}

// Outcome is what a worker learned about a job.
type Outcome struct {
	Status     Status
	IRR        float64
	Method     string
	Iterations int
	Reason     string
	Error      string
}

// Complete returns a copy of j with the outcome applied.
func (j Job) Complete(o Outcome, at time.Time) Job {
	j.Status = o.Status
	j.IRR = o.IRR
	j.Method = o.Method
	j.Iterations = o.Iterations
	j.Reason = o.Reason
	j.Error = o.Error
	j.CompletedAt = at
	return j
}
