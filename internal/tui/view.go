package tui

import (
	"fmt"
	"strings"

	"github.com/roach88/fogtimer/internal/engine"
	"github.com/roach88/fogtimer/internal/fog"
	"github.com/roach88/fogtimer/internal/trial"
)

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("FoG Trial Timer"))
	b.WriteString("\n\n")

	switch m.mode {
	case modeSetup:
		m.viewSetup(&b)
	default:
		m.viewTrial(&b)
	}

	if m.status != "" {
		b.WriteString("\n" + dimStyle.Render(m.status) + "\n")
	}
	if m.errText != "" {
		b.WriteString("\n" + errStyle.Render("Error: "+m.errText) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render(m.help()) + "\n")
	return b.String()
}

func (m model) viewSetup(b *strings.Builder) {
	b.WriteString("Patient: " + m.patient.View() + "\n")
	if len(m.labels) > 0 {
		l := m.labels[m.labelIdx]
		fmt.Fprintf(b, "Task:    %s %s\n", focusStyle.Render(l.String()),
			dimStyle.Render(fmt.Sprintf("(%d/%d)", m.labelIdx+1, len(m.labels))))
		return
	}
	b.WriteString("Task:    " + m.label.View() + "\n")
}

func (m model) viewTrial(b *strings.Builder) {
	s := m.snap
	fmt.Fprintf(b, "Patient: %s\nTask:    %s\n\n", s.PatientID, s.Label.String())

	clock := clockStyle.Render(trial.FormatDuration(s.ElapsedMs))
	switch {
	case s.State == engine.StateRunning && s.FreezeOpen:
		fmt.Fprintf(b, "%s  %s\n", clock, freezeStyle.Render("FREEZE"))
	case s.State == engine.StateRunning:
		fmt.Fprintf(b, "%s  %s\n", clock, runningStyle.Render("running"))
	default:
		fmt.Fprintf(b, "%s  %s\n", clock, dimStyle.Render(s.State.String()))
	}

	b.WriteString("\nFreezes:\n")
	if len(s.Freezes) == 0 {
		b.WriteString(dimStyle.Render("  none") + "\n")
	}
	for i, ev := range s.Freezes {
		line := fmt.Sprintf("#%d  start %s  duration %s", ev.ID,
			trial.FormatDuration(ev.StartOffsetMs), trial.FormatDuration(ev.DurationMs))
		if i == m.cursor {
			if m.mode == modeEdit {
				line += "  -> " + m.seconds.View()
			}
			b.WriteString(focusStyle.Render("> "+line) + "\n")
			continue
		}
		b.WriteString("  " + line + "\n")
	}

	if s.Report != nil {
		b.WriteString("\n" + reportStyle.Render(renderReport(*s.Report)) + "\n")
	}
}

func renderReport(r fog.Report) string {
	return strings.Join([]string{
		fmt.Sprintf("Trial duration:     %s", trial.FormatDuration(r.TotalDurationMs)),
		fmt.Sprintf("Freezes:            %d", r.FreezeCount),
		fmt.Sprintf("Total frozen:       %s", trial.FormatDuration(r.TotalFrozenMs)),
		fmt.Sprintf("Percent frozen:     %.2f%%", r.PercentFrozen),
		fmt.Sprintf("Time spent frozen:  %s", trial.FormatDuration(r.FrozenTimeFromPercent)),
		fmt.Sprintf("Cumulative grade:   %s", r.CumulativeText),
		fmt.Sprintf("Frequency grade:    %s", r.FrequencyText),
	}, "\n")
}

func (m model) help() string {
	switch m.mode {
	case modeSetup:
		if len(m.labels) > 0 {
			return "enter start • tab/shift+tab change task • esc back • ctrl+c quit"
		}
		return "enter start • tab switch field • esc back • ctrl+c quit"
	case modeEdit:
		return "enter save • esc cancel"
	}
	if m.snap.State == engine.StateRunning {
		return "space freeze on/off • s stop • ↑/↓ select • e edit • d delete • q quit"
	}
	keys := "n next trial • ↑/↓ select • e edit • d delete"
	if m.export != nil {
		keys += " • x export patient • X export all"
	}
	return keys + " • q quit"
}
