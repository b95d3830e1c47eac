// Package tui is the interactive trial screen.
//
// The screen is a presentation collaborator of engine.Session: it renders
// session snapshots and turns key presses into session intents. It never
// edits trial data itself.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/roach88/fogtimer/internal/engine"
	"github.com/roach88/fogtimer/internal/protocol"
	"github.com/roach88/fogtimer/internal/trial"
)

// refreshInterval drives redraws when no engine tick channel is wired.
const refreshInterval = 100 * time.Millisecond

// ExportFunc writes the archive (or one patient's trials) to a CSV file and
// returns its path.
type ExportFunc func(ctx context.Context, patientID string) (string, error)

// Config wires the screen to its collaborators.
type Config struct {
	Session  *engine.Session
	Protocol *protocol.Protocol // nil: labels are typed as free text
	Export   ExportFunc         // nil disables the export key
	Ticks    <-chan int64       // elapsed-time ticks from the session
	Patient  string             // initial patient id
}

type mode int

const (
	modeSetup mode = iota
	modeTrial
	modeEdit
)

type tickMsg int64

type refreshMsg struct{}

type exportDoneMsg struct {
	path string
	err  error
}

type model struct {
	ctx     context.Context
	session *engine.Session
	proto   *protocol.Protocol
	export  ExportFunc
	ticks   <-chan int64

	mode     mode
	snap     engine.Snapshot
	labels   []trial.Label
	labelIdx int
	cursor   int
	status   string
	errText  string
	width    int

	patient textinput.Model
	label   textinput.Model
	seconds textinput.Model
	focus   int // setup: 0 patient, 1 free label
}

func newModel(ctx context.Context, cfg Config) model {
	patient := textinput.New()
	patient.Placeholder = "Patient ID"
	patient.CharLimit = 64
	patient.SetValue(cfg.Patient)
	patient.Focus()

	label := textinput.New()
	label.Placeholder = "Task label"
	label.CharLimit = 128

	seconds := textinput.New()
	seconds.Placeholder = "seconds"
	seconds.CharLimit = 12

	m := model{
		ctx:     ctx,
		session: cfg.Session,
		proto:   cfg.Protocol,
		export:  cfg.Export,
		ticks:   cfg.Ticks,
		patient: patient,
		label:   label,
		seconds: seconds,
	}
	if cfg.Protocol != nil {
		m.labels = cfg.Protocol.Labels()
	}
	m.snap = cfg.Session.Snapshot()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.tickCmd())
}

func (m model) tickCmd() tea.Cmd {
	if m.ticks != nil {
		ch := m.ticks
		return func() tea.Msg {
			ms, ok := <-ch
			if !ok {
				return nil
			}
			return tickMsg(ms)
		}
	}
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.snap = m.session.Snapshot()
		return m, m.tickCmd()

	case refreshMsg:
		m.snap = m.session.Snapshot()
		return m, m.tickCmd()

	case exportDoneMsg:
		if msg.err != nil {
			m.errText = fmt.Sprintf("export failed: %v", msg.err)
		} else {
			m.errText = ""
			m.status = "exported " + msg.path
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		switch m.mode {
		case modeSetup:
			return m.updateSetup(msg)
		case modeEdit:
			return m.updateEdit(msg)
		default:
			return m.updateTrial(msg)
		}
	}
	return m, nil
}

func (m model) updateSetup(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if m.snap.State == engine.StateStopped {
			m.mode = modeTrial
			return m, nil
		}
		return m.quit()

	case "enter":
		return m.start()

	case "tab", "shift+tab":
		step := 1
		if msg.String() == "shift+tab" {
			step = -1
		}
		if len(m.labels) > 0 {
			m.labelIdx = (m.labelIdx + step + len(m.labels)) % len(m.labels)
			return m, nil
		}
		m.focus = 1 - m.focus
		if m.focus == 0 {
			m.label.Blur()
			m.patient.Focus()
		} else {
			m.patient.Blur()
			m.label.Focus()
		}
		return m, nil
	}

	var cmd tea.Cmd
	if m.focus == 0 {
		m.patient, cmd = m.patient.Update(msg)
	} else {
		m.label, cmd = m.label.Update(msg)
	}
	return m, cmd
}

func (m model) start() (tea.Model, tea.Cmd) {
	snap, err := m.session.Start(m.patient.Value(), m.currentLabel())
	if err != nil {
		m.errText = err.Error()
		return m, nil
	}
	m.snap = snap
	m.mode = modeTrial
	m.cursor = 0
	m.errText = ""
	m.status = "trial started"
	m.patient.Blur()
	m.label.Blur()
	return m, nil
}

func (m model) currentLabel() trial.Label {
	if len(m.labels) > 0 {
		return m.labels[m.labelIdx]
	}
	return trial.FreeLabel(m.label.Value())
}

func (m model) updateTrial(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.errText = ""
	switch msg.String() {
	case "q":
		return m.quit()

	case " ", "space":
		if m.snap.State != engine.StateRunning {
			return m, nil
		}
		if m.snap.FreezeOpen {
			if ev, ok := m.session.ReleaseFreeze(); ok {
				m.status = fmt.Sprintf("freeze %d recorded (%s)", ev.ID, trial.FormatDuration(ev.DurationMs))
			}
		} else if m.session.PressFreeze() {
			m.status = "freezing..."
		}

	case "s":
		report, err := m.session.Stop(m.ctx)
		switch {
		case errors.Is(err, engine.ErrNotRunning):
			return m, nil
		case err != nil:
			m.errText = err.Error()
		default:
			m.status = fmt.Sprintf("trial stopped: %s / %s", report.CumulativeText, report.FrequencyText)
		}

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.snap.Freezes)-1 {
			m.cursor++
		}

	case "d":
		ev, ok := m.selected()
		if !ok {
			return m, nil
		}
		if _, err := m.session.DeleteFreeze(m.ctx, ev.ID); err != nil {
			m.errText = err.Error()
		} else {
			m.status = fmt.Sprintf("freeze %d deleted", ev.ID)
		}

	case "e":
		ev, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.mode = modeEdit
		m.seconds.SetValue(strconv.FormatFloat(float64(ev.DurationMs)/1000, 'f', 3, 64))
		m.seconds.CursorEnd()
		m.seconds.Focus()
		return m, textinput.Blink

	case "n":
		if m.snap.State != engine.StateStopped {
			return m, nil
		}
		m.advanceLabel()
		m.mode = modeSetup
		m.focus = 0
		m.patient.Focus()
		m.status = ""
		return m, textinput.Blink

	case "x":
		if m.export == nil {
			return m, nil
		}
		m.status = "exporting..."
		return m, m.exportCmd(m.snap.PatientID)

	case "X":
		if m.export == nil {
			return m, nil
		}
		m.status = "exporting..."
		return m, m.exportCmd("")
	}

	m.snap = m.session.Snapshot()
	m.clampCursor()
	return m, nil
}

func (m model) updateEdit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeTrial
		m.seconds.Blur()
		return m, nil

	case "enter":
		ev, ok := m.selected()
		if !ok {
			m.mode = modeTrial
			return m, nil
		}
		secs, err := strconv.ParseFloat(strings.TrimSpace(m.seconds.Value()), 64)
		if err != nil {
			m.errText = "enter a number of seconds"
			return m, nil
		}
		if _, err := m.session.EditFreezeSeconds(m.ctx, ev.ID, secs); err != nil {
			m.errText = err.Error()
			return m, nil
		}
		m.errText = ""
		m.status = fmt.Sprintf("freeze %d set to %.3f s", ev.ID, secs)
		m.mode = modeTrial
		m.seconds.Blur()
		m.snap = m.session.Snapshot()
		return m, nil
	}

	var cmd tea.Cmd
	m.seconds, cmd = m.seconds.Update(msg)
	return m, cmd
}

// advanceLabel moves the label selection to the next protocol trial.
func (m *model) advanceLabel() {
	if len(m.labels) == 0 || m.proto == nil {
		return
	}
	next := m.proto.Next(m.snap.Label)
	for i, l := range m.labels {
		if l == next {
			m.labelIdx = i
			return
		}
	}
}

func (m model) selected() (trial.FreezeEvent, bool) {
	if m.cursor < 0 || m.cursor >= len(m.snap.Freezes) {
		return trial.FreezeEvent{}, false
	}
	return m.snap.Freezes[m.cursor], true
}

func (m *model) clampCursor() {
	if m.cursor >= len(m.snap.Freezes) {
		m.cursor = len(m.snap.Freezes) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m model) exportCmd(patientID string) tea.Cmd {
	ctx, export := m.ctx, m.export
	return func() tea.Msg {
		path, err := export(ctx, patientID)
		return exportDoneMsg{path: path, err: err}
	}
}

// quit stops a running trial first so a held session is never discarded.
func (m model) quit() (tea.Model, tea.Cmd) {
	if m.session.State() == engine.StateRunning {
		if _, err := m.session.Stop(m.ctx); err != nil {
			m.errText = err.Error()
		}
		m.snap = m.session.Snapshot()
	}
	return m, tea.Quit
}
