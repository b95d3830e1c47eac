package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/roach88/fogtimer/internal/fog"
	"github.com/roach88/fogtimer/internal/trial"
)

// writeReport prints a trial report in the layout shown on the trial screen.
func writeReport(w io.Writer, r fog.Report, loc *time.Location) {
	fmt.Fprintf(w, "Trial %s\n", r.TrialID)
	fmt.Fprintf(w, "  Patient:            %s\n", r.PatientID)
	fmt.Fprintf(w, "  Task:               %s\n", r.Label)
	fmt.Fprintf(w, "  Started:            %s\n", trial.FormatTimestamp(r.StartTimestamp, loc))
	fmt.Fprintf(w, "  Trial duration:     %s\n", trial.FormatDuration(r.TotalDurationMs))
	fmt.Fprintf(w, "  Freezes:            %d\n", r.FreezeCount)
	fmt.Fprintf(w, "  Total frozen:       %s\n", trial.FormatDuration(r.TotalFrozenMs))
	fmt.Fprintf(w, "  Percent frozen:     %.2f%%\n", r.PercentFrozen)
	fmt.Fprintf(w, "  Time spent frozen:  %s\n", trial.FormatDuration(r.FrozenTimeFromPercent))
	fmt.Fprintf(w, "  Cumulative grade:   %s\n", r.CumulativeText)
	fmt.Fprintf(w, "  Frequency grade:    %s\n", r.FrequencyText)

	if len(r.Freezes) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tStart\tEnd\tDuration")
	for _, ev := range r.Freezes {
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\n", ev.ID,
			trial.FormatDuration(ev.StartOffsetMs),
			trial.FormatDuration(ev.EndOffsetMs),
			trial.FormatDuration(ev.DurationMs))
	}
	_ = tw.Flush()
}

// summary is one line of the trial listing.
type summary struct {
	ID              string  `json:"id"`
	PatientID       string  `json:"patient_id"`
	Label           string  `json:"label"`
	StartTimestamp  int64   `json:"start_timestamp"`
	TotalDurationMs int64   `json:"total_duration_ms"`
	FreezeCount     int     `json:"freeze_count"`
	PercentFrozen   float64 `json:"percent_frozen"`
	Cumulative      int     `json:"cumulative_grade"`
	Frequency       int     `json:"frequency_grade"`
}

func summarize(r fog.Report) summary {
	return summary{
		ID:              r.TrialID,
		PatientID:       r.PatientID,
		Label:           r.Label,
		StartTimestamp:  r.StartTimestamp,
		TotalDurationMs: r.TotalDurationMs,
		FreezeCount:     r.FreezeCount,
		PercentFrozen:   r.PercentFrozen,
		Cumulative:      int(r.Cumulative),
		Frequency:       int(r.Frequency),
	}
}

// writeSummaries prints the listing as an aligned table.
func writeSummaries(w io.Writer, rows []summary, loc *time.Location) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATIENT\tTASK\tSTARTED\tDURATION\tFREEZES\tFROZEN\tCUM\tFREQ")
	for _, s := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%.2f%%\t%d\t%d\n",
			s.ID, s.PatientID, s.Label,
			trial.FormatTimestamp(s.StartTimestamp, loc),
			trial.FormatDuration(s.TotalDurationMs),
			s.FreezeCount, s.PercentFrozen, s.Cumulative, s.Frequency)
	}
	_ = tw.Flush()
}
