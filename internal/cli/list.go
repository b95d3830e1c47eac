package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fogtimer/internal/archive"
	"github.com/roach88/fogtimer/internal/fog"
	"github.com/roach88/fogtimer/internal/trial"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Patient string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived trials",
		Long: `List archived trials in the order they were recorded.

Examples:
  fogtimer list
  fogtimer list --patient P-017
  fogtimer list --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Patient, "patient", "", "only trials of this patient")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	e, err := openEnv(cmd, opts.RootOptions, envOptions{})
	if err != nil {
		return err
	}
	defer e.Close()

	filter := archive.Filter{PatientID: trial.NormalizeText(opts.Patient)}
	rows := []summary{}
	for _, t := range e.archive.Trials() {
		if filter.PatientID != "" && t.PatientID != filter.PatientID {
			continue
		}
		rows = append(rows, summarize(fog.Summarize(t)))
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		return out.Success(rows)
	}

	w := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintln(w, "No trials recorded.")
		return nil
	}
	loc, err := e.exportConfig().Location()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid export timezone", err)
	}
	writeSummaries(w, rows, loc)
	return nil
}
