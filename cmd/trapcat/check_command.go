package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"trapcat/internal/ingest"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var flags ingestFlags
	var jsonOutput bool
	var strict bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Reconcile metadata with the image directory without building a catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg, err := flags.apply(base)
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			progress, finish := newProgress(cmd.ErrOrStderr(), !jsonOutput)
			pipeline := &ingest.Pipeline{Config: cfg, Logger: logger, Progress: progress}
			result, err := pipeline.Check(cmd.Context())
			finish()
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := writeJSON(cmd, map[string]any{
					"run_id":         result.RunID,
					"rows":           result.Rows,
					"filenames":      result.Filenames,
					"finding_counts": findingCounts(result.Report),
					"findings":       nonNilFindings(result.Report.All()),
				}); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Checked %s rows (%s distinct filenames) against %s\n",
					count(result.Rows), count(result.Filenames), cfg.Paths.ImageRoot)
				fmt.Fprintln(out, renderFindingCounts(result.Report))
				if table := renderFindings(result.Report); table != "" {
					fmt.Fprintln(out, table)
				} else {
					fmt.Fprintln(out, "No findings")
				}
			}
			if strict && result.Report.Len() > 0 {
				return errors.New("check reported findings")
			}
			return nil
		},
	}

	flags.register(cmd, false)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output findings as JSON")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when any finding is reported")
	return cmd
}
