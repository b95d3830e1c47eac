package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/fogtimer/internal/archive"
	"github.com/roach88/fogtimer/internal/engine"
	"github.com/roach88/fogtimer/internal/tui"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Patient string
	Console bool // force the line console on a terminal

	// IDs allows overriding the trial id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs engine.IDGenerator

	// Clock allows overriding the session clock (for testing).
	Clock engine.Clock
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Time trials interactively",
		Long: `Start a timing session.

On a terminal a full-screen trial view is shown: hold or toggle space while
the patient is frozen, press s to stop. Otherwise, or with --console,
commands are read line by line from stdin (type "help").

Finished trials are saved to the archive database as soon as they stop.
Export settings are reloaded when the config file changes.

Examples:
  fogtimer run
  fogtimer run --patient P-017
  fogtimer run --console < session.txt`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Patient, "patient", "", "initial patient id")
	cmd.Flags().BoolVar(&opts.Console, "console", false, "use the line console even on a terminal")

	return cmd
}

func runSession(opts *RunOptions, cmd *cobra.Command) error {
	useTUI := !opts.Console && isTerminal(cmd.InOrStdin()) && isTerminal(cmd.OutOrStdout())

	e, err := openEnv(cmd, opts.RootOptions, envOptions{quietConsole: useTUI})
	if err != nil {
		return err
	}
	defer e.Close()
	e.watchConfig()

	proto, err := e.protocol()
	if err != nil {
		return err
	}

	sessionOpts := []engine.Option{
		engine.WithArchive(e.archive),
		engine.WithLabelValidator(proto),
		engine.WithTickInterval(e.cfg.TickInterval),
		engine.WithLogger(e.log.Named("session")),
	}
	if opts.IDs != nil {
		sessionOpts = append(sessionOpts, engine.WithIDGenerator(opts.IDs))
	}
	if opts.Clock != nil {
		sessionOpts = append(sessionOpts, engine.WithClock(opts.Clock))
	}

	var ticks <-chan int64
	if useTUI {
		var tick engine.TickFunc
		tick, ticks = tui.TickChannel()
		sessionOpts = append(sessionOpts, engine.WithTickFunc(tick))
	}

	session := engine.NewSession(sessionOpts...)
	defer session.Close()

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			e.log.Info("received signal, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	export := func(ctx context.Context, patientID string) (string, error) {
		res, err := e.exportCSV(archive.Filter{PatientID: patientID}, "", nil)
		return res.Path, err
	}

	e.log.Info("session starting",
		zap.String("db", e.cfg.Database),
		zap.String("protocol", proto.Name),
		zap.Bool("tui", useTUI))

	if useTUI {
		err = tui.Run(ctx, tui.Config{
			Session:  session,
			Protocol: proto,
			Export:   export,
			Ticks:    ticks,
			Patient:  opts.Patient,
		})
	} else {
		console := NewConsole(session, proto, export, cmd.InOrStdin(), cmd.OutOrStdout())
		if loc, locErr := e.exportConfig().Location(); locErr == nil {
			console.loc = loc
		}
		console.patient = opts.Patient
		err = console.Run(ctx)
	}

	// A trial still running after a signal is archived as it stands.
	if session.State() == engine.StateRunning {
		if _, stopErr := session.Stop(context.Background()); stopErr != nil {
			e.log.Error("running trial not archived on shutdown", zap.Error(stopErr))
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "session error", err)
	}
	e.log.Info("session ended", zap.Int("archived_trials", e.archive.Len()))
	return nil
}

// isTerminal reports whether v is a file attached to a terminal.
func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
