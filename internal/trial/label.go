package trial

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Label identifies the task performed in a trial.
//
// A label is either free-form Text, or a structured combination of
// Condition, Task and trial Number. Structured fields take precedence
// when Condition or Task is set.
type Label struct {
	Text      string `json:"text,omitempty"`
	Condition string `json:"condition,omitempty"`
	Task      string `json:"task,omitempty"`
	Number    int    `json:"number,omitempty"`
}

// LabelValidator checks a structured label against an external catalog.
// Implemented by protocol.Protocol.
type LabelValidator interface {
	ValidateLabel(Label) error
}

// FreeLabel creates a free-form label.
func FreeLabel(text string) Label {
	return Label{Text: text}
}

// TaskLabel creates a structured label.
func TaskLabel(condition, task string, number int) Label {
	return Label{Condition: condition, Task: task, Number: number}
}

// IsStructured reports whether the label uses the condition × task form.
func (l Label) IsStructured() bool {
	return l.Condition != "" || l.Task != ""
}

// String renders the label for reports and exports.
func (l Label) String() string {
	if l.IsStructured() {
		return fmt.Sprintf("%s - %s - Trial %d", l.Condition, l.Task, l.Number)
	}
	return l.Text
}

// Normalize returns the label with every text field NFC-normalized and trimmed.
func (l Label) Normalize() Label {
	return Label{
		Text:      NormalizeText(l.Text),
		Condition: NormalizeText(l.Condition),
		Task:      NormalizeText(l.Task),
		Number:    l.Number,
	}
}

// Validate checks the label's own shape. Catalog membership is checked
// separately by a LabelValidator.
func (l Label) Validate() error {
	if l.IsStructured() {
		if l.Condition == "" {
			return NewValidationError("label", "condition must not be empty")
		}
		if l.Task == "" {
			return NewValidationError("label", "task must not be empty")
		}
		if l.Number < 1 {
			return NewValidationError("label", "trial number must be at least 1")
		}
		return nil
	}
	if l.Text == "" {
		return NewValidationError("label", "must not be empty")
	}
	return nil
}

// NormalizeText applies NFC normalization and trims surrounding whitespace.
// Operator input from different keyboards must compare equal in the archive.
func NormalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// ValidatePatientID normalizes and checks a patient identifier.
func ValidatePatientID(id string) (string, error) {
	id = NormalizeText(id)
	if id == "" {
		return "", NewValidationError("patient_id", "must not be empty")
	}
	return id, nil
}
