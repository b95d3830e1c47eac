package archive

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/fogtimer/internal/fog"
	"github.com/roach88/fogtimer/internal/trial"
)

// Columns is the export header. Column order and presence are a
// compatibility surface for downstream spreadsheets; append, never reorder.
var Columns = []string{
	"Patient ID",
	"Task",
	"Trial Start Time",
	"Trial End Time",
	"Trial Start Timestamp",
	"Trial End Timestamp",
	"Trial Duration (ms)",
	"Trial Duration",
	"Freeze Count",
	"Total Frozen (ms)",
	"Total Frozen",
	"Percent Frozen",
	"Cumulative Grade",
	"Frequency Grade",
	"Freeze ID",
	"Freeze Start (ms)",
	"Freeze Start",
	"Freeze End (ms)",
	"Freeze Duration (ms)",
	"Freeze Start Time",
	"Freeze End Time",
}

// quotedColumns are always quoted: free text that may contain delimiters.
var quotedColumns = map[int]bool{
	0:  true, // Patient ID
	1:  true, // Task
	12: true, // Cumulative Grade
	13: true, // Frequency Grade
}

// Row is one export line: a trial joined with one of its freezes.
// Freeze is nil for the single row emitted by a trial without freezes.
type Row struct {
	Trial  trial.Trial
	Report fog.Report
	Freeze *trial.FreezeEvent
}

// Filter selects trials for export. Zero value selects everything.
type Filter struct {
	PatientID string
	TrialID   string
}

func (f Filter) match(t trial.Trial) bool {
	if f.PatientID != "" && t.PatientID != f.PatientID {
		return false
	}
	if f.TrialID != "" && t.ID != f.TrialID {
		return false
	}
	return true
}

// Rows flattens the selected trials into export rows: one per freeze, or
// one blank-freeze row for a trial with no freezes.
func (a *Archive) Rows(filter Filter) []Row {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var rows []Row
	for _, t := range a.trials {
		if !filter.match(t) {
			continue
		}
		rows = append(rows, TrialRows(t.Clone())...)
	}
	return rows
}

// TrialRows flattens a single trial into export rows.
func TrialRows(t trial.Trial) []Row {
	report := fog.Summarize(t)
	if len(t.FreezeEvents) == 0 {
		return []Row{{Trial: t, Report: report}}
	}
	rows := make([]Row, len(t.FreezeEvents))
	for i := range t.FreezeEvents {
		ev := t.FreezeEvents[i]
		rows[i] = Row{Trial: t, Report: report, Freeze: &ev}
	}
	return rows
}

// Fields renders the row in Columns order. Absolute times use loc.
func (r Row) Fields(loc *time.Location) []string {
	t := r.Trial
	fields := []string{
		t.PatientID,
		t.Label.String(),
		trial.FormatTimeOfDay(t.StartTimestamp, loc),
		trial.FormatTimeOfDay(t.EndTimestamp, loc),
		trial.FormatTimestamp(t.StartTimestamp, loc),
		trial.FormatTimestamp(t.EndTimestamp, loc),
		strconv.FormatInt(t.TotalDurationMs, 10),
		trial.FormatDuration(t.TotalDurationMs),
		strconv.Itoa(r.Report.FreezeCount),
		strconv.FormatInt(r.Report.TotalFrozenMs, 10),
		trial.FormatDuration(r.Report.TotalFrozenMs),
		strconv.FormatFloat(r.Report.PercentFrozen, 'f', 2, 64),
		r.Report.CumulativeText,
		r.Report.FrequencyText,
	}
	if r.Freeze == nil {
		return append(fields, "", "", "", "", "", "", "")
	}
	ev := r.Freeze
	return append(fields,
		strconv.Itoa(ev.ID),
		strconv.FormatInt(ev.StartOffsetMs, 10),
		trial.FormatDuration(ev.StartOffsetMs),
		strconv.FormatInt(ev.EndOffsetMs, 10),
		strconv.FormatInt(ev.DurationMs, 10),
		trial.FormatTimeOfDay(t.StartTimestamp+ev.StartOffsetMs, loc),
		trial.FormatTimeOfDay(t.StartTimestamp+ev.EndOffsetMs, loc),
	)
}

// WriteCSV writes the header and rows as comma-separated UTF-8 text.
func WriteCSV(w io.Writer, rows []Row, loc *time.Location) error {
	bw := bufio.NewWriter(w)
	if err := writeLine(bw, Columns, nil); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, r := range rows {
		if err := writeLine(bw, r.Fields(loc), quotedColumns); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func writeLine(w *bufio.Writer, fields []string, forceQuote map[int]bool) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if forceQuote[i] || strings.ContainsAny(f, ",\"\r\n") {
			f = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
		}
		if _, err := w.WriteString(f); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// ExportFilename builds FoG_<patient>_<YYYYMMDD-HHMMSS>.csv for an export
// taken at now. An empty patient id means an export of every patient.
func ExportFilename(patientID string, now time.Time) string {
	p := unsafeFilenameChars.ReplaceAllString(trial.NormalizeText(patientID), "_")
	p = strings.Trim(p, "_")
	if p == "" {
		p = "all"
	}
	return fmt.Sprintf("FoG_%s_%s.csv", p, now.Format("20060102-150405"))
}
