package crews

import (
	"github.com/BaSui01/strengthflow/agent/structured"
	"github.com/BaSui01/strengthflow/types"
)

const (
	// UnknownAgent names the placeholder agent of a fallback result.
	UnknownAgent = "Unknown Agent"

	InvalidJSONStrength   = "Could not parse agent output - invalid JSON"
	EmptyResponseStrength = "Could not parse agent output - empty response"
)

// FailureRecord describes one agent call whose output was replaced by a fallback.
type FailureRecord struct {
	AgentName string          `json:"agent_name"`
	Category  string          `json:"category,omitempty"`
	Kind      types.ErrorCode `json:"kind"`
	Reason    string          `json:"reason"`
}

// ComposeFallback builds the deterministic placeholder that takes the place of
// an unusable agent output, so aggregation never has a missing slot.
// Empty responses get their own strength message; every other failure is
// reported as invalid JSON.
func ComposeFallback(failure error) (structured.AgentResult, FailureRecord) {
	record := FailureRecord{
		AgentName: UnknownAgent,
		Kind:      types.ErrMalformedJSON,
		Reason:    "agent output could not be validated",
	}
	strength := InvalidJSONStrength

	if f, ok := structured.AsValidationFailure(failure); ok {
		record.Kind = f.Kind
		record.Reason = f.Reason
		if f.Empty() {
			strength = EmptyResponseStrength
		}
	} else if failure != nil {
		record.Reason = failure.Error()
	}

	return structured.AgentResult{
		AgentName: UnknownAgent,
		Strengths: []string{strength},
	}, record
}
