package harness

import (
	"github.com/roach88/fogtimer/internal/fog"
	"github.com/roach88/fogtimer/internal/trial"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Trial   int    `json:"trial"` // index into Scenario.Trials
	AtMs    int64  `json:"at_ms"` // offset from trial start
	Do      string `json:"do"`    // step action
	Freeze  int    `json:"freeze,omitempty"`
	Outcome string `json:"outcome"` // "ok", "ignored" or "error: ..."
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace contains every executed step in order.
	Trace []TraceEvent `json:"trace"`

	// Reports holds the final report of each trial that started.
	Reports []fog.Report `json:"reports"`

	// Archive is the persisted archive after the last trial.
	Archive []trial.Trial `json:"archive"`

	// Export is the CSV export of the whole archive, timestamps in UTC.
	Export []byte `json:"-"`

	// Errors contains expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Reports: []fog.Report{},
		Errors:  []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
