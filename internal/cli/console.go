package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/fogtimer/internal/engine"
	"github.com/roach88/fogtimer/internal/protocol"
	"github.com/roach88/fogtimer/internal/trial"
	"github.com/roach88/fogtimer/internal/tui"
)

// consoleHelp lists the line-mode commands.
const consoleHelp = `Commands:
  start <patient> [label]   start a trial; label is free text or
                            "condition / task / number"; omitted, the
                            next protocol task is used
  start                     next protocol task for the same patient
  press                     freeze on
  release                   freeze off
  stop                      stop the trial and show its report
  edit <freeze-id> <secs>   set a freeze duration
  delete <freeze-id>        remove a freeze
  status                    show the current trial
  export [all]              export this patient's trials (or all) as CSV
  help                      show this help
  quit                      stop any running trial and exit`

// Console drives a Session from line-oriented input, for terminals where
// the full-screen view is unavailable and for scripted use.
type Console struct {
	session  *engine.Session
	protocol *protocol.Protocol
	export   tui.ExportFunc
	loc      *time.Location

	in  io.Reader
	out io.Writer

	patient string
	label   trial.Label
}

// NewConsole creates a console. proto and export may be nil.
func NewConsole(s *engine.Session, proto *protocol.Protocol, export tui.ExportFunc, in io.Reader, out io.Writer) *Console {
	return &Console{
		session:  s,
		protocol: proto,
		export:   export,
		loc:      time.Local,
		in:       in,
		out:      out,
	}
}

// Run reads commands until quit, end of input, or ctx is cancelled. A
// trial still running at that point is stopped and archived.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	fmt.Fprintln(c.out, `fogtimer console. Type "help" for commands.`)
	for {
		select {
		case <-ctx.Done():
			c.finish()
			return ctx.Err()
		case err := <-readErr:
			c.finish()
			return err
		case line := <-lines:
			if quit := c.Execute(ctx, line); quit {
				c.finish()
				return nil
			}
		}
	}
}

// finish stops a running trial so no timing is lost on exit.
func (c *Console) finish() {
	if c.session.State() != engine.StateRunning {
		return
	}
	fmt.Fprintln(c.out, "Stopping running trial.")
	c.stop(context.Background())
}

// Execute runs one command line and reports whether the console should exit.
func (c *Console) Execute(ctx context.Context, line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "start":
		c.start(args)
	case "press", "p":
		if c.session.PressFreeze() {
			fmt.Fprintf(c.out, "Freeze on at %s\n", trial.FormatDuration(c.session.Elapsed()))
		} else {
			fmt.Fprintln(c.out, "Ignored: no trial running or freeze already on")
		}
	case "release", "r":
		if ev, ok := c.session.ReleaseFreeze(); ok {
			fmt.Fprintf(c.out, "Freeze %d off: %s\n", ev.ID, trial.FormatDuration(ev.DurationMs))
		} else {
			fmt.Fprintln(c.out, "Ignored: no freeze is on")
		}
	case "stop":
		c.stop(ctx)
	case "edit":
		c.edit(ctx, args)
	case "delete":
		c.delete(ctx, args)
	case "status":
		c.status()
	case "export":
		c.exportTrials(ctx, args)
	case "help", "?":
		fmt.Fprintln(c.out, consoleHelp)
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command %q. Type \"help\" for commands.\n", cmd)
	}
	return false
}

func (c *Console) start(args []string) {
	if c.session.State() == engine.StateRunning {
		fmt.Fprintln(c.out, "A trial is already running. Stop it first.")
		return
	}

	patient := c.patient
	if len(args) > 0 {
		patient = args[0]
		args = args[1:]
	}

	var label trial.Label
	switch {
	case len(args) > 0:
		parsed, err := parseLabel(strings.Join(args, " "))
		if err != nil {
			c.printError(err)
			return
		}
		label = parsed
	case c.protocol != nil && c.label.IsStructured():
		label = c.protocol.Next(c.label)
	case c.protocol != nil:
		label = c.protocol.First()
	default:
		c.printError(trial.NewValidationError("label", "must not be empty"))
		return
	}

	snap, err := c.session.Start(patient, label)
	if err != nil {
		c.printError(err)
		return
	}
	c.patient = snap.PatientID
	c.label = snap.Label
	fmt.Fprintf(c.out, "Trial %s started: %s, %s\n", snap.TrialID, snap.PatientID, snap.Label)
}

func (c *Console) stop(ctx context.Context) {
	report, err := c.session.Stop(ctx)
	if errors.Is(err, engine.ErrNotRunning) {
		fmt.Fprintln(c.out, "Ignored: no trial running")
		return
	}
	writeReport(c.out, report, c.loc)
	if err != nil {
		c.printError(err)
	}
}

func (c *Console) edit(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(c.out, "Usage: edit <freeze-id> <seconds>")
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		c.printError(trial.NewValidationError("freeze_id", fmt.Sprintf("%q is not an integer", args[0])))
		return
	}
	seconds, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		c.printError(trial.NewValidationError("duration", fmt.Sprintf("%q is not a number of seconds", args[1])))
		return
	}
	snap, err := c.session.EditFreezeSeconds(ctx, id, seconds)
	if err != nil {
		c.printError(err)
		return
	}
	for _, ev := range snap.Freezes {
		if ev.ID == id {
			c.printChange(snap, fmt.Sprintf("Freeze %d set to %s", id, trial.FormatDuration(ev.DurationMs)))
			return
		}
	}
	c.printChange(snap, fmt.Sprintf("Freeze %d updated", id))
}

func (c *Console) delete(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: delete <freeze-id>")
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		c.printError(trial.NewValidationError("freeze_id", fmt.Sprintf("%q is not an integer", args[0])))
		return
	}
	snap, err := c.session.DeleteFreeze(ctx, id)
	if err != nil {
		c.printError(err)
		return
	}
	c.printChange(snap, fmt.Sprintf("Freeze %d deleted", id))
}

// printChange reports an edit and, after Stop, the recomputed grades.
func (c *Console) printChange(snap engine.Snapshot, msg string) {
	fmt.Fprintln(c.out, msg)
	if snap.Report != nil {
		writeReport(c.out, *snap.Report, c.loc)
	}
}

func (c *Console) status() {
	snap := c.session.Snapshot()
	fmt.Fprintf(c.out, "State:    %s\n", snap.State)
	if snap.TrialID == "" {
		return
	}
	fmt.Fprintf(c.out, "Trial:    %s\n", snap.TrialID)
	fmt.Fprintf(c.out, "Patient:  %s\n", snap.PatientID)
	fmt.Fprintf(c.out, "Task:     %s\n", snap.Label)
	fmt.Fprintf(c.out, "Elapsed:  %s\n", trial.FormatDuration(snap.ElapsedMs))
	if snap.FreezeOpen {
		fmt.Fprintf(c.out, "Freeze:   on since %s\n", trial.FormatDuration(snap.OpenSinceMs))
	}
	for _, ev := range snap.Freezes {
		fmt.Fprintf(c.out, "  #%d  %s  +%s\n", ev.ID,
			trial.FormatDuration(ev.StartOffsetMs), trial.FormatDuration(ev.DurationMs))
	}
}

func (c *Console) exportTrials(ctx context.Context, args []string) {
	if c.export == nil {
		fmt.Fprintln(c.out, "Export is not available.")
		return
	}
	patient := c.patient
	if len(args) > 0 && strings.EqualFold(args[0], "all") {
		patient = ""
	}
	path, err := c.export(ctx, patient)
	if err != nil {
		c.printError(err)
		return
	}
	fmt.Fprintf(c.out, "Exported to %s\n", path)
}

func (c *Console) printError(err error) {
	fmt.Fprintf(c.out, "Error: %v\n", err)
}

// parseLabel reads "condition / task / number" as a structured label and
// anything else as free text.
func parseLabel(s string) (trial.Label, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return trial.FreeLabel(s), nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return trial.Label{}, trial.NewValidationError("label",
			fmt.Sprintf("trial number %q is not an integer", strings.TrimSpace(parts[2])))
	}
	return trial.TaskLabel(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), n), nil
}
