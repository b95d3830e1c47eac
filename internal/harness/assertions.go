package harness

import (
	"fmt"

	"github.com/roach88/fogtimer/internal/fog"
)

// checkStep compares a step's outcome with what the scenario declared.
func checkStep(result *Result, trialIndex, stepIndex int, step Step, outcome string, err error) {
	where := fmt.Sprintf("trials[%d].steps[%d] (%s)", trialIndex, stepIndex, step.Do)

	switch {
	case step.ExpectError != "":
		if class := errorClass(err); class != step.ExpectError {
			result.AddError(fmt.Sprintf("%s: expected %s error, got %s", where, step.ExpectError, describe(err)))
		}
	case err != nil:
		result.AddError(fmt.Sprintf("%s: unexpected error: %v", where, err))
	case step.Ignored && outcome != "ignored":
		result.AddError(fmt.Sprintf("%s: expected no-op, got %s", where, outcome))
	case !step.Ignored && outcome == "ignored":
		result.AddError(fmt.Sprintf("%s: unexpectedly ignored", where))
	}
}

// checkReport returns one message per unmet expectation.
func checkReport(want Expect, got fog.Report) []string {
	var msgs []string
	mismatch := func(field string, expected, actual any) {
		msgs = append(msgs, fmt.Sprintf("%s: expected %v, got %v", field, expected, actual))
	}

	if want.TotalDurationMs != nil && *want.TotalDurationMs != got.TotalDurationMs {
		mismatch("total_duration_ms", *want.TotalDurationMs, got.TotalDurationMs)
	}
	if want.FreezeCount != nil && *want.FreezeCount != got.FreezeCount {
		mismatch("freeze_count", *want.FreezeCount, got.FreezeCount)
	}
	if want.TotalFrozenMs != nil && *want.TotalFrozenMs != got.TotalFrozenMs {
		mismatch("total_frozen_ms", *want.TotalFrozenMs, got.TotalFrozenMs)
	}
	if want.PercentFrozen != nil {
		// Compared at the two-decimal precision of the report.
		w, g := fmt.Sprintf("%.2f", *want.PercentFrozen), fmt.Sprintf("%.2f", got.PercentFrozen)
		if w != g {
			mismatch("percent_frozen", w, g)
		}
	}
	if want.CumulativeGrade != nil && *want.CumulativeGrade != int(got.Cumulative) {
		mismatch("cumulative_grade", *want.CumulativeGrade, int(got.Cumulative))
	}
	if want.FrequencyGrade != nil && *want.FrequencyGrade != int(got.Frequency) {
		mismatch("frequency_grade", *want.FrequencyGrade, int(got.Frequency))
	}
	if want.FrequencyText != "" && want.FrequencyText != got.FrequencyText {
		mismatch("frequency_text", fmt.Sprintf("%q", want.FrequencyText), fmt.Sprintf("%q", got.FrequencyText))
	}

	if want.Freezes != nil {
		if len(want.Freezes) != len(got.Freezes) {
			mismatch("freezes", fmt.Sprintf("%d entries", len(want.Freezes)), fmt.Sprintf("%d entries", len(got.Freezes)))
			return msgs
		}
		for i, wf := range want.Freezes {
			gf := got.Freezes[i]
			if wf.ID != gf.ID || wf.StartMs != gf.StartOffsetMs || wf.DurationMs != gf.DurationMs {
				mismatch(fmt.Sprintf("freezes[%d]", i),
					fmt.Sprintf("{id:%d start:%d duration:%d}", wf.ID, wf.StartMs, wf.DurationMs),
					fmt.Sprintf("{id:%d start:%d duration:%d}", gf.ID, gf.StartOffsetMs, gf.DurationMs))
			}
		}
	}
	return msgs
}
