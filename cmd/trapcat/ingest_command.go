package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"trapcat/internal/catalog"
	"trapcat/internal/config"
	"trapcat/internal/findings"
	"trapcat/internal/ingest"
)

type ingestFlags struct {
	metadata string
	images   string
	out      string
	db       string
	workers  int
}

// apply returns a copy of cfg with command-line overrides.
func (f ingestFlags) apply(cfg *config.Config) (*config.Config, error) {
	out := *cfg
	overrides := []struct {
		value  string
		target *string
	}{
		{f.metadata, &out.Paths.MetadataFile},
		{f.images, &out.Paths.ImageRoot},
		{f.out, &out.Paths.CatalogPath},
		{f.db, &out.Paths.DatabasePath},
	}
	for _, o := range overrides {
		if strings.TrimSpace(o.value) == "" {
			continue
		}
		expanded, err := config.ExpandPath(strings.TrimSpace(o.value))
		if err != nil {
			return nil, err
		}
		*o.target = expanded
	}
	if f.workers > 0 {
		out.Ingest.Workers = f.workers
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (f *ingestFlags) register(cmd *cobra.Command, outputs bool) {
	cmd.Flags().StringVar(&f.metadata, "metadata", "", "Metadata CSV export (overrides paths.metadata_file)")
	cmd.Flags().StringVar(&f.images, "images", "", "Image root directory (overrides paths.image_root)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Worker pool size for file checks and decoding")
	if outputs {
		cmd.Flags().StringVar(&f.out, "out", "", "Catalog output path (overrides paths.catalog_path)")
		cmd.Flags().StringVar(&f.db, "db", "", "Store path (overrides paths.database_path)")
	}
}

type ingestSummary struct {
	RunID       string             `json:"run_id"`
	Rows        int                `json:"rows"`
	Filenames   int                `json:"filenames"`
	Counts      catalog.Counts     `json:"counts"`
	Findings    map[string]int     `json:"finding_counts"`
	Details     []findings.Finding `json:"findings"`
	CatalogPath string             `json:"catalog_path"`
	Stored      bool               `json:"stored"`
	Duration    string             `json:"duration"`
}

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var flags ingestFlags
	var jsonOutput bool
	var noDB bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Build the catalog from a metadata export and image directory",
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
			pipeline := &ingest.Pipeline{
				Config:    cfg,
				Logger:    logger,
				SkipStore: noDB,
				Progress:  progress,
			}
			result, err := pipeline.Run(cmd.Context())
			finish()
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, ingestSummary{
					RunID:       result.RunID,
					Rows:        result.Rows,
					Filenames:   result.Filenames,
					Counts:      result.Counts,
					Findings:    findingCounts(result.Report),
					Details:     nonNilFindings(result.Report.All()),
					CatalogPath: result.CatalogPath,
					Stored:      result.Stored,
					Duration:    result.Duration.Round(time.Millisecond).String(),
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ingestion complete (run %s)\n", result.RunID)
			rows := [][]string{
				{"Metadata rows", count(result.Rows)},
				{"Distinct filenames", count(result.Filenames)},
				{"Images", count(result.Counts.Images)},
				{"Annotations", count(result.Counts.Annotations)},
				{"Categories", count(result.Counts.Categories)},
				{"Findings", count(result.Report.Len())},
				{"Catalog", result.CatalogPath},
				{"Stored", yesNo(result.Stored)},
				{"Duration", result.Duration.Round(time.Millisecond).String()},
			}
			fmt.Fprintln(out, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
			fmt.Fprintln(out, renderCategoryCounts(result.Catalog.CategoryCounts()))
			if table := renderFindings(result.Report); table != "" {
				fmt.Fprintln(out, table)
			}
			return nil
		},
	}

	flags.register(cmd, true)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output summary as JSON")
	cmd.Flags().BoolVar(&noDB, "no-db", false, "Write only the catalog file")
	return cmd
}

func findingCounts(report *findings.Report) map[string]int {
	out := make(map[string]int)
	for kind, n := range report.Counts() {
		out[string(kind)] = n
	}
	return out
}

func nonNilFindings(all []findings.Finding) []findings.Finding {
	if all == nil {
		return []findings.Finding{}
	}
	return all
}
