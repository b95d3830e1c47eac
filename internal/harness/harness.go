package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/fogtimer/internal/archive"
	"github.com/roach88/fogtimer/internal/engine"
	"github.com/roach88/fogtimer/internal/protocol"
	"github.com/roach88/fogtimer/internal/store"
	"github.com/roach88/fogtimer/internal/testutil"
	"github.com/roach88/fogtimer/internal/trial"
)

// Harness holds the collaborators of one scenario run.
type Harness struct {
	store   *store.Store
	archive *archive.Archive
	session *engine.Session
	clock   *testutil.ManualClock
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution errors (bad protocol file, store failures) are returned as
// errors; unmet expectations are recorded in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, zap.NewNop())
}

// RunWithLogger is Run with engine and archive logs sent to log.
func RunWithLogger(scenario *Scenario, log *zap.Logger) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	a, err := archive.Open(ctx, st, archive.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	clock := testutil.NewManualClockAt(scenario.StartTime())
	opts := []engine.Option{
		engine.WithClock(clock),
		engine.WithArchive(a),
		engine.WithIDGenerator(testutil.NewSequentialIDGenerator("trial")),
		engine.WithTickInterval(0),
		engine.WithLogger(log),
	}
	if scenario.Protocol != "" {
		p, err := protocol.Load(scenario.Protocol)
		if err != nil {
			return nil, fmt.Errorf("failed to load protocol: %w", err)
		}
		opts = append(opts, engine.WithLabelValidator(p))
	}

	h := &Harness{
		store:   st,
		archive: a,
		session: engine.NewSession(opts...),
		clock:   clock,
	}
	defer h.session.Close()

	result := NewResult()
	for i, ts := range scenario.Trials {
		if err := h.runTrial(ctx, i, ts, result); err != nil {
			return nil, fmt.Errorf("trial %d: %w", i, err)
		}
	}

	result.Archive = a.Trials()
	var buf bytes.Buffer
	if err := archive.WriteCSV(&buf, a.Rows(archive.Filter{}), time.UTC); err != nil {
		return nil, fmt.Errorf("failed to export: %w", err)
	}
	result.Export = buf.Bytes()
	return result, nil
}

func (h *Harness) runTrial(ctx context.Context, index int, ts TrialScript, result *Result) error {
	h.clock.Advance(ts.RestMs)
	start := h.clock.NowMillis()

	_, err := h.session.Start(ts.Patient, ts.TrialLabel())
	if ts.ExpectStartError != "" {
		if class := errorClass(err); class != ts.ExpectStartError {
			result.AddError(fmt.Sprintf("trials[%d]: start: expected %s error, got %s", index, ts.ExpectStartError, describe(err)))
		}
		return nil
	}
	if err != nil {
		result.AddError(fmt.Sprintf("trials[%d]: start: %v", index, err))
		return nil
	}

	for j, step := range ts.Steps {
		if step.At != nil {
			h.clock.Set(start + *step.At)
		}
		ev := TraceEvent{Trial: index, Do: step.Do, Freeze: step.Freeze}
		outcome, err := h.execute(ctx, step)
		if err != nil && !isExpectedClass(err) {
			return fmt.Errorf("step %d (%s): %w", j, step.Do, err)
		}
		ev.AtMs = h.clock.NowMillis() - start
		ev.Outcome = outcome
		result.addTrace(ev)

		checkStep(result, index, j, step, outcome, err)
	}

	report, ok := h.session.Report()
	if !ok {
		result.AddError(fmt.Sprintf("trials[%d]: trial did not stop", index))
		return nil
	}
	result.Reports = append(result.Reports, report)
	if ts.Expect != nil {
		for _, msg := range checkReport(*ts.Expect, report) {
			result.AddError(fmt.Sprintf("trials[%d]: %s", index, msg))
		}
	}
	return nil
}

// execute performs one step. The returned error is the step's domain
// error, if any; infrastructure failures are returned unclassified.
func (h *Harness) execute(ctx context.Context, step Step) (string, error) {
	switch step.Do {
	case DoPress:
		return okOrIgnored(h.session.PressFreeze()), nil
	case DoRelease:
		_, ok := h.session.ReleaseFreeze()
		return okOrIgnored(ok), nil
	case DoHold:
		if !h.session.PressFreeze() {
			return "ignored", nil
		}
		h.clock.Advance(step.DurationMs)
		_, ok := h.session.ReleaseFreeze()
		return okOrIgnored(ok), nil
	case DoStop:
		_, err := h.session.Stop(ctx)
		return outcomeOf(err), err
	case DoEdit:
		_, err := h.session.EditFreeze(ctx, step.Freeze, step.DurationMs)
		return outcomeOf(err), err
	case DoDelete:
		_, err := h.session.DeleteFreeze(ctx, step.Freeze)
		return outcomeOf(err), err
	default:
		return "", fmt.Errorf("unknown action %q", step.Do)
	}
}

func okOrIgnored(ok bool) string {
	if ok {
		return "ok"
	}
	return "ignored"
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	return "error: " + errorClass(err)
}

// errorClass maps a domain error to its scenario name.
func errorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case trial.IsNotFound(err):
		return ErrClassNotFound
	case trial.IsValidation(err):
		return ErrClassValidation
	case errors.Is(err, engine.ErrNotRunning):
		return ErrClassNotRunning
	case errors.Is(err, engine.ErrNoTrial):
		return ErrClassNoTrial
	default:
		return "unexpected"
	}
}

func isExpectedClass(err error) bool {
	return errorClass(err) != "unexpected"
}

func describe(err error) string {
	if err == nil {
		return "no error"
	}
	return fmt.Sprintf("%s (%v)", errorClass(err), err)
}
