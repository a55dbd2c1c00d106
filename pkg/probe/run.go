package probe

import (
	"fmt"
	"time"
)

// RunState is one stage of the per-tool state machine
type RunState string

const (
	StateIdle         RunState = "Idle"
	StateConsentCheck RunState = "ConsentCheck"
	StateReady        RunState = "Ready"
	StateStaticChecks RunState = "StaticChecks"
	StateMonetizing   RunState = "Monetizing"
	StateFinalizing   RunState = "Finalizing"
	StateDone         RunState = "Done"
)

// SweepingState names the state for the i-th combo, counted from 1
func SweepingState(i int) RunState {
	return RunState(fmt.Sprintf("Sweeping(%d)", i))
}

// TestRun is the ordered outcome log of one tool run
type TestRun struct {
	ID          string        `json:"id"`
	ToolID      string        `json:"toolId"`
	State       RunState      `json:"state"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
	Outcomes    []TestOutcome `json:"outcomes"`
	Counts      Counts        `json:"counts"`
	// Cancelled is set when the run was stopped from outside before it
	// could finish its phases
	Cancelled   bool          `json:"cancelled,omitempty"`
}

// NewTestRun creates an idle run for a tool
func NewTestRun(id, toolID string, startedAt time.Time) TestRun {
	return TestRun{
		ID:        id,
		ToolID:    toolID,
		State:     StateIdle,
		StartedAt: startedAt,
		Outcomes:  []TestOutcome{},
	}
}

// Clone returns a deep copy safe to hand to other goroutines
func (r TestRun) Clone() TestRun {
	c := r
	c.Outcomes = make([]TestOutcome, len(r.Outcomes))
	copy(c.Outcomes, r.Outcomes)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

// Done reports whether the run reached its terminal state
func (r TestRun) Done() bool {
	return r.State == StateDone
}

// Find returns the outcomes with the given name, in order
func (r TestRun) Find(name string) []TestOutcome {
	var found []TestOutcome
	for _, o := range r.Outcomes {
		if o.Name == name {
			found = append(found, o)
		}
	}
	return found
}
