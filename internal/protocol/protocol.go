package protocol

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/fogtimer/internal/trial"
)

//go:embed schema.cue
var schemaSource string

//go:embed default.cue
var defaultSource string

// Protocol is a validated trial catalog.
type Protocol struct {
	Name          string   `json:"name"`
	Conditions    []string `json:"conditions"`
	Tasks         []string `json:"tasks"`
	TrialsPerTask int      `json:"trials_per_task"`
}

// LoadError reports a protocol that failed to parse or validate.
type LoadError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default returns the built-in protocol.
func Default() *Protocol {
	p, err := Parse("default.cue", []byte(defaultSource))
	if err != nil {
		panic(fmt.Sprintf("protocol: embedded default is invalid: %v", err))
	}
	return p
}

// Load reads and validates a protocol file.
func Load(path string) (*Protocol, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read protocol: %w", err)
	}
	return Parse(path, data)
}

// Parse compiles CUE source, unifies it with #Protocol and decodes it.
// filename is used only for error positions.
func Parse(filename string, src []byte) (*Protocol, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	def := schema.LookupPath(cue.ParsePath("#Protocol"))

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var p Protocol
	if err := unified.Decode(&p); err != nil {
		return nil, formatCUEError(err)
	}

	if dup := firstDuplicate(p.Conditions); dup != "" {
		return nil, &LoadError{Field: "conditions", Message: fmt.Sprintf("duplicate condition %q", dup), Pos: v.LookupPath(cue.ParsePath("conditions")).Pos()}
	}
	if dup := firstDuplicate(p.Tasks); dup != "" {
		return nil, &LoadError{Field: "tasks", Message: fmt.Sprintf("duplicate task %q", dup), Pos: v.LookupPath(cue.ParsePath("tasks")).Pos()}
	}

	for i := range p.Conditions {
		p.Conditions[i] = trial.NormalizeText(p.Conditions[i])
	}
	for i := range p.Tasks {
		p.Tasks[i] = trial.NormalizeText(p.Tasks[i])
	}
	return &p, nil
}

// TrialCount is the number of labels in the catalog.
func (p *Protocol) TrialCount() int {
	return len(p.Conditions) * len(p.Tasks) * p.TrialsPerTask
}

// ValidateLabel implements trial.LabelValidator.
func (p *Protocol) ValidateLabel(l trial.Label) error {
	if !l.IsStructured() {
		return nil
	}
	if !slices.Contains(p.Conditions, l.Condition) {
		return trial.NewValidationError("label", fmt.Sprintf("unknown condition %q", l.Condition))
	}
	if !slices.Contains(p.Tasks, l.Task) {
		return trial.NewValidationError("label", fmt.Sprintf("unknown task %q", l.Task))
	}
	if l.Number < 1 || l.Number > p.TrialsPerTask {
		return trial.NewValidationError("label", fmt.Sprintf("trial number must be between 1 and %d", p.TrialsPerTask))
	}
	return nil
}

// First returns the first label of the catalog.
func (p *Protocol) First() trial.Label {
	return trial.TaskLabel(p.Conditions[0], p.Tasks[0], 1)
}

// Next returns the label recorded after l: the next trial number, then the
// next task, then the next condition, wrapping to First after the last.
// Labels outside the catalog restart at First.
func (p *Protocol) Next(l trial.Label) trial.Label {
	if p.ValidateLabel(l) != nil || !l.IsStructured() {
		return p.First()
	}
	if l.Number < p.TrialsPerTask {
		return trial.TaskLabel(l.Condition, l.Task, l.Number+1)
	}
	ti := slices.Index(p.Tasks, l.Task)
	if ti+1 < len(p.Tasks) {
		return trial.TaskLabel(l.Condition, p.Tasks[ti+1], 1)
	}
	ci := slices.Index(p.Conditions, l.Condition)
	if ci+1 < len(p.Conditions) {
		return trial.TaskLabel(p.Conditions[ci+1], p.Tasks[0], 1)
	}
	return p.First()
}

// Labels enumerates every label in recording order.
func (p *Protocol) Labels() []trial.Label {
	out := make([]trial.Label, 0, p.TrialCount())
	for _, c := range p.Conditions {
		for _, t := range p.Tasks {
			for n := 1; n <= p.TrialsPerTask; n++ {
				out = append(out, trial.TaskLabel(c, t, n))
			}
		}
	}
	return out
}

func firstDuplicate(items []string) string {
	seen := make(map[string]bool, len(items))
	for _, s := range items {
		s = trial.NormalizeText(s)
		if seen[s] {
			return s
		}
		seen[s] = true
	}
	return ""
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &LoadError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return &LoadError{Field: "cue", Message: first.Error()}
}
