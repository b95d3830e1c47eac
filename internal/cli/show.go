package cli

import (
	"github.com/spf13/cobra"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <trial-id>",
		Short: "Show the report of an archived trial",
		Long: `Show the full report of one archived trial, including its
freeze episodes and both grades.

Examples:
  fogtimer show 0192f3c4-5b6a-7c8d-9e0f-112233445566
  fogtimer show 0192f3c4-5b6a-7c8d-9e0f-112233445566 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runShow(opts *RootOptions, trialID string, cmd *cobra.Command) error {
	e, err := openEnv(cmd, opts, envOptions{})
	if err != nil {
		return err
	}
	defer e.Close()

	report, err := e.archive.Report(trialID)
	if err != nil {
		return domainError("failed to show trial", err)
	}
	return e.printReport(opts, cmd, report)
}
