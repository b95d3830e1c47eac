package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fogtimer/internal/protocol"
)

// NewProtocolCommand creates the protocol command group.
func NewProtocolCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "protocol",
		Short: "Inspect trial protocols",
		Long: `A protocol lists the conditions and tasks of a testing session and
how many trials each task gets. It is written in CUE:

  name: "Clinic"
  conditions: ["OFF", "ON"]
  tasks: ["TUG", "Doorway"]
  trials_per_task: 2`,
	}

	cmd.AddCommand(newProtocolValidateCommand(rootOpts))
	cmd.AddCommand(newProtocolLabelsCommand(rootOpts))

	return cmd
}

// protocolSummary is the validate payload.
type protocolSummary struct {
	File     string             `json:"file"`
	Valid    bool               `json:"valid"`
	Trials   int                `json:"trials"`
	Protocol *protocol.Protocol `json:"protocol"`
}

func newProtocolValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a protocol file",
		Long: `Check a CUE protocol file against the protocol schema: a non-empty
name, at least one condition and one task without duplicates, and a
positive trial count.

Examples:
  fogtimer protocol validate ./clinic.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProtocolValidate(rootOpts, args[0], cmd)
		},
	}
}

func runProtocolValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	p, err := protocol.Load(path)
	if err != nil {
		var loadErr *protocol.LoadError
		if errors.As(err, &loadErr) {
			return WrapExitError(ExitFailure, "invalid protocol", err)
		}
		return WrapExitError(ExitCommandError, "failed to read protocol", err)
	}

	summary := protocolSummary{File: path, Valid: true, Trials: p.TrialCount(), Protocol: p}
	if opts.Format == "json" {
		return opts.formatter(cmd).Success(summary)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ %s: %s\n", path, p.Name)
	fmt.Fprintf(w, "  Conditions:       %s\n", strings.Join(p.Conditions, ", "))
	fmt.Fprintf(w, "  Tasks:            %s\n", strings.Join(p.Tasks, ", "))
	fmt.Fprintf(w, "  Trials per task:  %d\n", p.TrialsPerTask)
	fmt.Fprintf(w, "  Trials in total:  %d\n", summary.Trials)
	return nil
}

func newProtocolLabelsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "labels [file]",
		Short: "List the trial labels of a protocol in run order",
		Long: `List every trial label of a protocol in the order the trial screen
offers them. Without a file the built-in protocol is used.

Examples:
  fogtimer protocol labels
  fogtimer protocol labels ./clinic.cue`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := protocol.Default()
			if len(args) == 1 {
				loaded, err := protocol.Load(args[0])
				if err != nil {
					return WrapExitError(ExitFailure, "invalid protocol", err)
				}
				p = loaded
			}

			labels := p.Labels()
			if rootOpts.Format == "json" {
				return rootOpts.formatter(cmd).Success(labels)
			}
			w := cmd.OutOrStdout()
			for _, l := range labels {
				fmt.Fprintln(w, l.String())
			}
			return nil
		},
	}
}
