package tools

import (
	"encoding/json"
	"time"
)

// Status classifies the outcome of a tool invocation.
type Status string

const (
	// StatusOK means the tool ran and returned a result.
	StatusOK Status = "ok"

	// StatusError means the invocation failed after exhausting retries.
	StatusError Status = "error"

	// StatusTimeout means the invocation exceeded its time budget.
	StatusTimeout Status = "timeout"

	// StatusRejected means the endpoint refused the call; rejections are
	// never retried.
	StatusRejected Status = "rejected"

	// StatusTruncated means the tool ran but its result was clipped to the
	// size limit.
	StatusTruncated Status = "truncated"

	// StatusUnknownTool means the tool is not in the registry; the endpoint
	// was never contacted.
	StatusUnknownTool Status = "unknown_tool"
)

// Descriptor describes one tool advertised by the endpoint.
type Descriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage

	// ReadOnly marks tools the endpoint annotates as side-effect free.
	// Only batches made up entirely of read-only tools dispatch concurrently.
	ReadOnly bool
}

// Request is one tool invocation requested by the model.
type Request struct {
	Tool          string
	Arguments     map[string]any
	UserID        string
	ChatID        string
	CorrelationID string
}

// Result is the normalized outcome of one invocation.
type Result struct {
	Tool          string
	CorrelationID string
	Status        Status
	Content       string
	Error         string
	Truncated     bool
	Duration      time.Duration
}

// OK reports whether the invocation produced usable content.
func (r *Result) OK() bool {
	return r.Status == StatusOK || r.Status == StatusTruncated
}
