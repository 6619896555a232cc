package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"trapcat/internal/catalog"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect catalog files",
	}
	catalogCmd.AddCommand(newCatalogStatsCommand())
	return catalogCmd
}

func newCatalogStatsCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:         "stats <catalog.json>",
		Short:       "Show entity and per-category counts of a catalog",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.ReadFile(args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, map[string]any{
					"info":       cat.Info,
					"counts":     cat.Counts(),
					"categories": cat.CategoryCounts(),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s v%d (%d), created %s\n",
				cat.Info.Name, cat.Info.Version, cat.Info.Year, cat.Info.DateCreated.Format("2006-01-02"))
			fmt.Fprintln(out, renderCounts(cat.Counts()))
			fmt.Fprintln(out, renderCategoryCounts(cat.CategoryCounts()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
