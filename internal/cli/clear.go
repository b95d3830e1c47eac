package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ClearOptions holds flags for the clear command.
type ClearOptions struct {
	*RootOptions
	Yes bool
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClearOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every trial from the archive",
		Long: `Remove every archived trial. Export first if the data is needed.

Examples:
  fogtimer export && fogtimer clear --yes`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm removal of all trials")

	return cmd
}

func runClear(opts *ClearOptions, cmd *cobra.Command) error {
	if !opts.Yes {
		return NewExitError(ExitCommandError, "refusing to clear the archive without --yes")
	}

	e, err := openEnv(cmd, opts.RootOptions, envOptions{})
	if err != nil {
		return err
	}
	defer e.Close()

	removed := e.archive.Len()
	if err := e.archive.Clear(commandContext(cmd)); err != nil {
		return WrapExitError(ExitCommandError, "failed to clear archive", err)
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(map[string]int{"removed": removed})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d trials\n", removed)
	return nil
}
