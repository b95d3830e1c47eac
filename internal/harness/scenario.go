package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fogtimer/internal/trial"
)

// DefaultStartAt is the wall-clock time of the first trial when a scenario
// does not set start_at.
const DefaultStartAt = "2024-03-05T09:00:00Z"

// Scenario is a scripted sequence of trials.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// StartAt is the RFC 3339 wall-clock time at which the first trial starts.
	StartAt string `yaml:"start_at,omitempty"`

	// Protocol is an optional CUE protocol file used to validate labels.
	// Relative paths are resolved against the scenario file.
	Protocol string `yaml:"protocol,omitempty"`

	// Trials run in order on one session and one archive.
	Trials []TrialScript `yaml:"trials"`

	startAt time.Time
}

// TrialScript is one trial within a scenario.
type TrialScript struct {
	Patient string `yaml:"patient"`

	// Label is free text. Mutually exclusive with Condition/Task/Number.
	Label     string `yaml:"label,omitempty"`
	Condition string `yaml:"condition,omitempty"`
	Task      string `yaml:"task,omitempty"`
	Number    int    `yaml:"number,omitempty"`

	// RestMs is the pause between the previous trial's stop and this start.
	RestMs int64 `yaml:"rest_ms,omitempty"`

	Steps []Step `yaml:"steps"`

	// Expect is checked against the report after the last step.
	Expect *Expect `yaml:"expect,omitempty"`

	// ExpectStartError names the error class Start must fail with
	// ("validation"). The trial's steps are skipped when set.
	ExpectStartError string `yaml:"expect_start_error,omitempty"`
}

// Step is one operator intent.
type Step struct {
	// At is the offset from trial start in milliseconds. Omitted means
	// "immediately after the previous step".
	At *int64 `yaml:"at,omitempty"`

	// Do is one of press, release, hold, stop, edit, delete.
	Do string `yaml:"do"`

	// Freeze is the freeze id for edit and delete.
	Freeze int `yaml:"freeze,omitempty"`

	// DurationMs is the new duration for edit, or how long hold keeps the
	// press down.
	DurationMs int64 `yaml:"duration_ms,omitempty"`

	// Ignored asserts that a press or release was a no-op.
	Ignored bool `yaml:"ignored,omitempty"`

	// ExpectError names the error class the step must fail with:
	// not_found, validation, not_running or no_trial.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Expect is a subset match against a trial report.
type Expect struct {
	TotalDurationMs *int64         `yaml:"total_duration_ms,omitempty"`
	FreezeCount     *int           `yaml:"freeze_count,omitempty"`
	TotalFrozenMs   *int64         `yaml:"total_frozen_ms,omitempty"`
	PercentFrozen   *float64       `yaml:"percent_frozen,omitempty"`
	CumulativeGrade *int           `yaml:"cumulative_grade,omitempty"`
	FrequencyGrade  *int           `yaml:"frequency_grade,omitempty"`
	FrequencyText   string         `yaml:"frequency_text,omitempty"`
	Freezes         []ExpectFreeze `yaml:"freezes,omitempty"`
}

// ExpectFreeze is the expected shape of one recorded freeze.
type ExpectFreeze struct {
	ID         int   `yaml:"id"`
	StartMs    int64 `yaml:"start_ms"`
	DurationMs int64 `yaml:"duration_ms"`
}

// Step actions.
const (
	DoPress   = "press"
	DoRelease = "release"
	DoHold    = "hold"
	DoStop    = "stop"
	DoEdit    = "edit"
	DoDelete  = "delete"
)

// Error classes for ExpectError.
const (
	ErrClassNotFound   = "not_found"
	ErrClassValidation = "validation"
	ErrClassNotRunning = "not_running"
	ErrClassNoTrial    = "no_trial"
)

// TrialLabel returns the label the script describes.
func (ts TrialScript) TrialLabel() trial.Label {
	if ts.Condition != "" || ts.Task != "" {
		return trial.TaskLabel(ts.Condition, ts.Task, ts.Number)
	}
	return trial.FreeLabel(ts.Label)
}

// StartTime returns the parsed start_at time.
func (s *Scenario) StartTime() time.Time {
	return s.startAt
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Protocol != "" && !filepath.IsAbs(scenario.Protocol) {
		scenario.Protocol = filepath.Join(filepath.Dir(path), scenario.Protocol)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	startAt := s.StartAt
	if startAt == "" {
		startAt = DefaultStartAt
	}
	t, err := time.Parse(time.RFC3339, startAt)
	if err != nil {
		return fmt.Errorf("start_at: %w", err)
	}
	s.startAt = t

	if len(s.Trials) == 0 {
		return fmt.Errorf("trials list is required and must be non-empty")
	}
	for i := range s.Trials {
		if err := validateTrial(i, &s.Trials[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateTrial(index int, ts *TrialScript) error {
	if ts.Label != "" && (ts.Condition != "" || ts.Task != "") {
		return fmt.Errorf("trials[%d]: label and condition/task are mutually exclusive", index)
	}
	if ts.RestMs < 0 {
		return fmt.Errorf("trials[%d]: rest_ms must be non-negative", index)
	}
	if ts.ExpectStartError != "" {
		if ts.ExpectStartError != ErrClassValidation {
			return fmt.Errorf("trials[%d]: expect_start_error must be %q", index, ErrClassValidation)
		}
		return nil
	}
	if len(ts.Steps) == 0 {
		return fmt.Errorf("trials[%d]: steps list is required and must be non-empty", index)
	}

	var last int64
	stopped := false
	for j, step := range ts.Steps {
		where := fmt.Sprintf("trials[%d].steps[%d]", index, j)
		if step.At != nil {
			if *step.At < last {
				return fmt.Errorf("%s: at %d goes back in time (previous %d)", where, *step.At, last)
			}
			if stopped {
				return fmt.Errorf("%s: at is not allowed after stop", where)
			}
			last = *step.At
		}

		switch step.Do {
		case DoPress, DoRelease:
			if stopped && step.ExpectError == "" && !step.Ignored {
				return fmt.Errorf("%s: %s after stop must be marked ignored", where, step.Do)
			}
		case DoHold:
			if step.DurationMs <= 0 {
				return fmt.Errorf("%s: hold requires a positive duration_ms", where)
			}
			if stopped {
				return fmt.Errorf("%s: hold is not allowed after stop", where)
			}
			last += step.DurationMs
		case DoStop:
			if step.ExpectError == "" {
				stopped = true
			}
		case DoEdit:
			if step.Freeze == 0 {
				return fmt.Errorf("%s: edit requires freeze", where)
			}
		case DoDelete:
			if step.Freeze == 0 {
				return fmt.Errorf("%s: delete requires freeze", where)
			}
		case "":
			return fmt.Errorf("%s: do is required", where)
		default:
			return fmt.Errorf("%s: unknown action %q", where, step.Do)
		}

		switch step.ExpectError {
		case "", ErrClassNotFound, ErrClassValidation, ErrClassNotRunning, ErrClassNoTrial:
		default:
			return fmt.Errorf("%s: unknown expect_error %q", where, step.ExpectError)
		}
	}
	if !stopped {
		return fmt.Errorf("trials[%d]: steps must include stop", index)
	}
	return nil
}
