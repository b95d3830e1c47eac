package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fogtimer/internal/archive"
	"github.com/roach88/fogtimer/internal/trial"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Patient string
	Trial   string
	Out     string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export archived trials as CSV",
		Long: `Write archived trials as CSV: one row per freeze episode, or a single
row with empty freeze columns for a trial without freezes.

Without --out the file is named FoG_<patient>_<YYYYMMDD-HHMMSS>.csv and
written to the configured export directory. Use --out - to write to stdout.
Times are rendered in the configured export timezone.

Examples:
  fogtimer export
  fogtimer export --patient P-017
  fogtimer export --out trials.csv
  fogtimer export --out - > trials.csv`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Patient, "patient", "", "only trials of this patient")
	cmd.Flags().StringVar(&opts.Trial, "trial", "", "only this trial")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output file, - for stdout")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	e, err := openEnv(cmd, opts.RootOptions, envOptions{})
	if err != nil {
		return err
	}
	defer e.Close()

	filter := archive.Filter{
		PatientID: trial.NormalizeText(opts.Patient),
		TrialID:   opts.Trial,
	}
	if filter.TrialID != "" {
		if _, err := e.archive.Get(filter.TrialID); err != nil {
			return domainError("failed to export", err)
		}
	}

	res, err := e.exportCSV(filter, opts.Out, cmd.OutOrStdout())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to export", err)
	}
	if res.Path == "-" {
		return nil
	}
	if opts.Format == "json" {
		return opts.formatter(cmd).Success(res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d rows to %s\n", res.Rows, res.Path)
	return nil
}
