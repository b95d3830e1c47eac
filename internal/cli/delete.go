package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <trial-id> [freeze-id]",
		Short: "Delete an archived trial or one of its freezes",
		Long: `With a freeze id, remove that episode from an archived trial and
recompute its report. Freeze ids are not reused.

Without a freeze id, remove the whole trial from the archive.

Examples:
  fogtimer delete 0192f3c4-5b6a-7c8d-9e0f-112233445566 3
  fogtimer delete 0192f3c4-5b6a-7c8d-9e0f-112233445566`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(rootOpts, args, cmd)
		},
	}
	return cmd
}

// deletedTrial is the JSON payload of a whole-trial delete.
type deletedTrial struct {
	Deleted   string `json:"deleted"`
	Remaining int    `json:"remaining"`
}

func runDelete(opts *RootOptions, args []string, cmd *cobra.Command) error {
	trialID := args[0]
	freezeID := 0
	if len(args) == 2 {
		id, err := parseFreezeID(args[1])
		if err != nil {
			return err
		}
		freezeID = id
	}

	e, err := openEnv(cmd, opts, envOptions{})
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := commandContext(cmd)
	if freezeID != 0 {
		report, err := e.archive.DeleteFreeze(ctx, trialID, freezeID)
		if err != nil {
			return domainError("failed to delete freeze", err)
		}
		return e.printReport(opts, cmd, report)
	}

	if err := e.archive.DeleteTrial(ctx, trialID); err != nil {
		return domainError("failed to delete trial", err)
	}
	result := deletedTrial{Deleted: trialID, Remaining: e.archive.Len()}
	if opts.Format == "json" {
		return opts.formatter(cmd).Success(result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted trial %s (%d remaining)\n", result.Deleted, result.Remaining)
	return nil
}
