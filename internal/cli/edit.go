package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/fogtimer/internal/trial"
)

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <trial-id> <freeze-id> <seconds>",
		Short: "Correct the duration of an archived freeze",
		Long: `Set the duration of one freeze episode of an archived trial.

The episode keeps its start offset; its end moves to start + duration.
Totals, percent frozen and both grades are recomputed and saved.

Examples:
  fogtimer edit 0192f3c4-5b6a-7c8d-9e0f-112233445566 2 1.25`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runEdit(opts *RootOptions, args []string, cmd *cobra.Command) error {
	trialID := args[0]
	freezeID, err := parseFreezeID(args[1])
	if err != nil {
		return err
	}
	seconds, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return domainError("failed to edit freeze",
			trial.NewValidationError("duration", fmt.Sprintf("%q is not a number of seconds", args[2])))
	}
	durationMs, err := trial.SecondsToMillis(seconds)
	if err != nil {
		return domainError("failed to edit freeze", err)
	}

	e, err := openEnv(cmd, opts, envOptions{})
	if err != nil {
		return err
	}
	defer e.Close()

	report, err := e.archive.EditFreeze(commandContext(cmd), trialID, freezeID, durationMs)
	if err != nil {
		return domainError("failed to edit freeze", err)
	}
	opts.formatter(cmd).VerboseLog("freeze %d of trial %s set to %s", freezeID, trialID, trial.FormatDuration(durationMs))
	return e.printReport(opts, cmd, report)
}

// parseFreezeID parses a positive freeze id argument.
func parseFreezeID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 1 {
		return 0, domainError("invalid freeze id",
			trial.NewValidationError("freeze_id", fmt.Sprintf("%q is not a positive integer", s)))
	}
	return id, nil
}
