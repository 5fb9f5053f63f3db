package crews

import (
	"time"

	"github.com/google/uuid"
)

// Status is the pipeline-level outcome of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Subject is what the crew analyzes.
type Subject struct {
	Name    string `json:"subject"`
	Context string `json:"context,omitempty"`
}

// CallTrace records how one member call went.
type CallTrace struct {
	Category        string       `json:"category"`
	AgentName       string       `json:"agent_name,omitempty"`
	State           CallState    `json:"state"`
	Transitions     []Transition `json:"transitions"`
	Attempts        int          `json:"attempts"`
	EstimatedTokens int          `json:"estimated_tokens"`
	ActualTokens    int          `json:"actual_tokens,omitempty"`
	Fallback        bool         `json:"fallback"`
	Error           string       `json:"error,omitempty"`
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      time.Time    `json:"finished_at"`
}

// Report is the aggregate of one crew run. Completed runs carry results,
// possibly with degraded fallback entries; failed runs carry the error.
type Report struct {
	ID         string              `json:"id"`
	Subject    Subject             `json:"subject"`
	Status     Status              `json:"status"`
	Results    map[string][]string `json:"results,omitempty"`
	Error      string              `json:"error,omitempty"`
	Failures   []FailureRecord     `json:"failures,omitempty"`
	Calls      []CallTrace         `json:"calls,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
}

func newReport(subject Subject, now time.Time) *Report {
	return &Report{
		ID:        uuid.NewString(),
		Subject:   subject,
		Results:   make(map[string][]string),
		StartedAt: now,
	}
}

func (r *Report) complete(now time.Time) {
	r.Status = StatusCompleted
	r.Error = ""
	r.FinishedAt = now
}

// fail drops partial results; a failed report only says why the run aborted.
func (r *Report) fail(err error, now time.Time) {
	r.Status = StatusFailed
	r.Results = nil
	r.Error = err.Error()
	r.FinishedAt = now
}

// Degraded reports whether any category holds a fallback entry.
func (r *Report) Degraded() bool {
	return len(r.Failures) > 0
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
