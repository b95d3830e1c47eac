package trial

import "math"

// FreezeEvent is one closed freeze episode within a trial.
//
// StartOffsetMs is fixed at creation. DurationMs may be edited post-hoc, in
// which case EndOffsetMs is recomputed as StartOffsetMs + DurationMs.
type FreezeEvent struct {
	ID            int   `json:"id"`
	StartOffsetMs int64 `json:"start_offset_ms"`
	EndOffsetMs   int64 `json:"end_offset_ms"`
	DurationMs    int64 `json:"duration_ms"`
}

// Trial is one timed session for a patient and task label.
type Trial struct {
	ID              string        `json:"id"`
	PatientID       string        `json:"patient_id"`
	Label           Label         `json:"label"`
	StartTimestamp  int64         `json:"start_timestamp"` // epoch ms
	EndTimestamp    int64         `json:"end_timestamp"`   // epoch ms
	TotalDurationMs int64         `json:"total_duration_ms"`
	FreezeEvents    []FreezeEvent `json:"freeze_events"`
	NextFreezeID    int           `json:"next_freeze_id"`
}

// FreezeCount returns the number of recorded freeze episodes.
func (t *Trial) FreezeCount() int {
	return len(t.FreezeEvents)
}

// TotalFrozenMs returns the sum of all freeze durations.
func (t *Trial) TotalFrozenMs() int64 {
	return SumDurations(t.FreezeEvents)
}

// PercentFrozen returns total frozen time as a percentage of trial duration.
// Zero-duration trials report 0.
func (t *Trial) PercentFrozen() float64 {
	return PercentOf(t.TotalFrozenMs(), t.TotalDurationMs)
}

// FrozenTimeFromPercent converts PercentFrozen back into milliseconds of the
// trial duration. This is the "time spent frozen" line of the trial report.
func (t *Trial) FrozenTimeFromPercent() int64 {
	return int64(math.Round(float64(t.TotalDurationMs) * t.PercentFrozen() / 100))
}

// Clone returns a deep copy of the trial.
func (t Trial) Clone() Trial {
	c := t
	if t.FreezeEvents != nil {
		c.FreezeEvents = make([]FreezeEvent, len(t.FreezeEvents))
		copy(c.FreezeEvents, t.FreezeEvents)
	}
	return c
}

// Freeze returns the freeze event with the given id.
func (t *Trial) Freeze(id int) (FreezeEvent, bool) {
	i := indexOf(t.FreezeEvents, id)
	if i < 0 {
		return FreezeEvent{}, false
	}
	return t.FreezeEvents[i], true
}

// EditFreeze sets the duration of a recorded freeze episode.
func (t *Trial) EditFreeze(id int, durationMs int64) (FreezeEvent, error) {
	return editEvent(t.FreezeEvents, id, durationMs)
}

// DeleteFreeze permanently removes a recorded freeze episode.
func (t *Trial) DeleteFreeze(id int) error {
	events, err := deleteEvent(t.FreezeEvents, id)
	if err != nil {
		return err
	}
	t.FreezeEvents = events
	return nil
}

// Validate checks the structural invariants of a finalized trial.
// Used when loading persisted archives.
func (t *Trial) Validate() error {
	if t.PatientID == "" {
		return NewValidationError("patient_id", "must not be empty")
	}
	if t.EndTimestamp < t.StartTimestamp {
		return NewValidationError("end_timestamp", "precedes start_timestamp")
	}
	if t.TotalDurationMs != t.EndTimestamp-t.StartTimestamp {
		return NewValidationError("total_duration_ms", "does not match timestamps")
	}
	seen := make(map[int]bool, len(t.FreezeEvents))
	for _, ev := range t.FreezeEvents {
		if seen[ev.ID] {
			return NewValidationError("freeze_events", "duplicate freeze id")
		}
		seen[ev.ID] = true
		if ev.StartOffsetMs < 0 || ev.DurationMs < 0 {
			return NewValidationError("freeze_events", "negative offset or duration")
		}
		if ev.EndOffsetMs != ev.StartOffsetMs+ev.DurationMs {
			return NewValidationError("freeze_events", "end offset does not match duration")
		}
		if ev.ID >= t.NextFreezeID {
			return NewValidationError("next_freeze_id", "not above every freeze id")
		}
	}
	return nil
}

// SumDurations returns the total duration of the given events.
func SumDurations(events []FreezeEvent) int64 {
	var total int64
	for _, ev := range events {
		total += ev.DurationMs
	}
	return total
}

// PercentOf returns part/whole*100, or 0 when whole is not positive.
func PercentOf(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
