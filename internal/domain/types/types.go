// Package types contains the JSON shapes shared by the HTTP API and the CLI.
package types

import "time"

// ComputeRequest is the body of POST /irr and POST /jobs. Amounts are kept
// loosely typed so numeric strings are accepted; decode with UseNumber.
// A nil Precision means the server default.
type ComputeRequest struct {
	JobID     string         `json:"job_id,omitempty"`
	Cashflow  map[string]any `json:"cashflow"`
	Precision *float64       `json:"precision,omitempty"`
}

// BatchRequest is the body of POST /irr/batch.
type BatchRequest struct {
	Items []ComputeRequest `json:"items"`
}

// Result is a successful IRR computation.
type Result struct {
	IRR           float64 `json:"irr"`
	Percent       float64 `json:"percent"`
	Method        string  `json:"method"`
	Iterations    int     `json:"iterations"`
	Evaluations   int     `json:"evaluations"`
	BracketProbes int     `json:"bracket_probes"`
}

// BatchItem is one entry of a batch response: either a result or an error.
type BatchItem struct {
	Result *Result `json:"result,omitempty"`
	Error  *Error  `json:"error,omitempty"`
}

// BatchResponse is the body returned by POST /irr/batch, in request order.
type BatchResponse struct {
	Items []BatchItem `json:"items"`
}

// Error is the JSON error envelope.
type Error struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// Ack acknowledges a job submission.
type Ack struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Job is the read shape of GET /jobs/{id}.
type Job struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Precision   float64    `json:"precision"`
	IRR         *float64   `json:"irr,omitempty"`
	Method      string     `json:"method,omitempty"`
	Iterations  int        `json:"iterations,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
