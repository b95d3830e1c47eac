package fog

import "github.com/roach88/fogtimer/internal/trial"

// Report is the derived summary of a finalized trial.
// It is recomputed from the trial on every read and never persisted.
type Report struct {
	TrialID               string              `json:"trial_id"`
	PatientID             string              `json:"patient_id"`
	Label                 string              `json:"label"`
	StartTimestamp        int64               `json:"start_timestamp"`
	EndTimestamp          int64               `json:"end_timestamp"`
	TotalDurationMs       int64               `json:"total_duration_ms"`
	FreezeCount           int                 `json:"freeze_count"`
	TotalFrozenMs         int64               `json:"total_frozen_ms"`
	PercentFrozen         float64             `json:"percent_frozen"`
	FrozenTimeFromPercent int64               `json:"frozen_time_from_percent_ms"`
	Cumulative            Cumulative          `json:"cumulative_grade"`
	Frequency             Frequency           `json:"frequency_grade"`
	CumulativeText        string              `json:"cumulative_grade_text"`
	FrequencyText         string              `json:"frequency_grade_text"`
	Freezes               []trial.FreezeEvent `json:"freezes"`
}

// Summarize computes the report for a trial.
func Summarize(t trial.Trial) Report {
	frozen := t.TotalFrozenMs()
	count := t.FreezeCount()
	cum, freq := Classify(t.TotalDurationMs, frozen, count, t.FreezeEvents)
	events := make([]trial.FreezeEvent, len(t.FreezeEvents))
	copy(events, t.FreezeEvents)
	return Report{
		TrialID:               t.ID,
		PatientID:             t.PatientID,
		Label:                 t.Label.String(),
		StartTimestamp:        t.StartTimestamp,
		EndTimestamp:          t.EndTimestamp,
		TotalDurationMs:       t.TotalDurationMs,
		FreezeCount:           count,
		TotalFrozenMs:         frozen,
		PercentFrozen:         t.PercentFrozen(),
		FrozenTimeFromPercent: t.FrozenTimeFromPercent(),
		Cumulative:            cum,
		Frequency:             freq,
		CumulativeText:        cum.String(),
		FrequencyText:         freq.Describe(count),
		Freezes:               events,
	}
}
