package crews

import (
	"fmt"
	"time"

	"github.com/BaSui01/strengthflow/types"
)

// CallState is the lifecycle state of one agent call.
type CallState string

const (
	StatePending    CallState = "PENDING"
	StateInFlight   CallState = "IN_FLIGHT"
	StateValidating CallState = "VALIDATING"
	StateFallback   CallState = "FALLBACK"
	StateDone       CallState = "DONE"
	// StateFailed ends a call that aborted the run (budget, provider or cancellation).
	StateFailed CallState = "FAILED"
)

// IsTerminal reports whether no further transition is allowed.
func (s CallState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// IN_FLIGHT -> PENDING is a retried call going back through admission.
var callTransitions = map[CallState][]CallState{
	StatePending:    {StateInFlight, StateFailed},
	StateInFlight:   {StateValidating, StatePending, StateFailed},
	StateValidating: {StateDone, StateFallback},
	StateFallback:   {StateDone},
}

// CanTransition reports whether from -> to is a legal call transition.
func CanTransition(from, to CallState) bool {
	for _, allowed := range callTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition records one state change.
type Transition struct {
	From CallState `json:"from"`
	To   CallState `json:"to"`
	At   time.Time `json:"at"`
}

// callMachine enforces the call lifecycle. It is owned by a single goroutine.
type callMachine struct {
	state        CallState
	history      []Transition
	now          func() time.Time
	onTransition func(from, to CallState)
}

func newCallMachine(now func() time.Time, onTransition func(from, to CallState)) *callMachine {
	return &callMachine{state: StatePending, now: now, onTransition: onTransition}
}

func (m *callMachine) State() CallState { return m.state }

func (m *callMachine) transition(to CallState) error {
	from := m.state
	if !CanTransition(from, to) {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("invalid call transition %s -> %s", from, to))
	}
	m.state = to
	m.history = append(m.history, Transition{From: from, To: to, At: m.now()})
	if m.onTransition != nil {
		m.onTransition(from, to)
	}
	return nil
}

func (m *callMachine) History() []Transition {
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}
