package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"trapcat/internal/catalog"
	"trapcat/internal/labeling"
	"trapcat/internal/schema"
	"trapcat/internal/store"
)

func newLabelCommand(ctx *commandContext) *cobra.Command {
	labelCmd := &cobra.Command{
		Use:   "label",
		Short: "Import proposals, promote detections and record reviews",
	}
	labelCmd.AddCommand(newLabelImportCommand(ctx))
	labelCmd.AddCommand(newLabelPromoteCommand(ctx))
	labelCmd.AddCommand(newLabelSubmitCommand(ctx))
	labelCmd.AddCommand(newLabelPendingCommand(ctx))
	labelCmd.AddCommand(newLabelExportCommand(ctx))
	return labelCmd
}

func newLabelImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <proposals.json>",
		Short: "Record model proposals as detections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read proposals: %w", err)
			}
			var proposals []labeling.Proposal
			if err := json.Unmarshal(data, &proposals); err != nil {
				return fmt.Errorf("decode proposals: %w", err)
			}
			return ctx.withLabeling(func(svc *labeling.Service) error {
				created, err := svc.ImportProposals(cmd.Context(), proposals)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %s proposals\n", count(len(created)))
				return nil
			})
		},
	}
}

func newLabelPromoteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "promote <detection-id>...",
		Short: "Move model detections into the review queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLabeling(func(svc *labeling.Service) error {
				promoted, err := svc.Promote(cmd.Context(), args)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Promoted %s detections\n", count(promoted))
				return nil
			})
		},
	}
}

func newLabelSubmitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <detection-id> <label>",
		Short: "Record a reviewer label (or \"unknown\") for a detection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLabeling(func(svc *labeling.Service) error {
				det, err := svc.Submit(cmd.Context(), labeling.Review{DetectionID: args[0], Label: args[1]})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Detection %s is %s (category %d)\n", det.ID, det.Kind, det.CategoryID)
				return nil
			})
		},
	}
}

type pendingDetection struct {
	schema.Detection
	FileName string `json:"file_name"`
	Category string `json:"category_name"`
}

func newLabelPendingCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List active detections awaiting review",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLabeling(func(svc *labeling.Service) error {
				dets, err := svc.Pending(cmd.Context())
				if err != nil {
					return err
				}
				items, err := describeDetections(cmd, svc.Store, dets)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No detections awaiting review")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					confidence := ""
					if item.Confidence != nil {
						confidence = strconv.FormatFloat(*item.Confidence, 'f', 2, 64)
					}
					rows = append(rows, []string{item.ID, item.FileName, item.Category, confidence})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Detection", "File", "Category", "Confidence"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func describeDetections(cmd *cobra.Command, st store.Store, dets []schema.Detection) ([]pendingDetection, error) {
	categories, err := st.Categories(cmd.Context())
	if err != nil {
		return nil, err
	}
	names := make(map[int]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	items := make([]pendingDetection, 0, len(dets))
	for _, det := range dets {
		img, err := st.Image(cmd.Context(), det.ImageID)
		if err != nil {
			return nil, fmt.Errorf("image for detection %s: %w", det.ID, err)
		}
		items = append(items, pendingDetection{Detection: det, FileName: img.FileName, Category: names[det.CategoryID]})
	}
	return items, nil
}

func newLabelExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export <catalog.json>",
		Short: "Write the current store contents as a catalog file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st store.Store) error {
				snap, err := st.Snapshot(cmd.Context())
				if err != nil {
					return err
				}
				cat, err := catalog.FromSnapshot(snap)
				if err != nil {
					return err
				}
				if err := catalog.WriteFile(args[0], cat); err != nil {
					return err
				}
				c := cat.Counts()
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %s images, %s annotations, %s categories to %s\n",
					count(c.Images), count(c.Annotations), count(c.Categories), args[0])
				return nil
			})
		},
	}
}
