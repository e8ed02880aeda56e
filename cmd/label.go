package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/tracker/internal/output"
)

var labelColor string

var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Manage issue labels",
	Long:  "Create and list labels. Apply them with 'tracker issue label'.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return labelListRun(cmd.Context())
	},
}

var labelListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all labels",
	RunE: func(cmd *cobra.Command, args []string) error {
		return labelListRun(cmd.Context())
	},
}

var labelCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new label",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return labelCreateRun(cmd.Context(), args[0])
	},
}

func init() {
	labelCreateCmd.Flags().StringVar(&labelColor, "color", "", "Display color, e.g. #d73a4a")

	labelCmd.AddCommand(labelListCmd)
	labelCmd.AddCommand(labelCreateCmd)
	rootCmd.AddCommand(labelCmd)
}

func labelListRun(ctx context.Context) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	labels, err := svc.ListLabels(ctx)
	if err != nil {
		return err
	}

	if ui.JSON {
		return ui.PrintJSON(labels)
	}

	if len(labels) == 0 {
		ui.Info("No labels. Use 'tracker label create <name>' to create one.")
		return nil
	}

	table := ui.Table([]string{"Name", "Color", "ID", "Created"})
	for _, l := range labels {
		_ = table.Append([]string{
			output.Cyan(l.Name),
			l.Color,
			shortID(l.ID),
			l.CreatedAt.Format("2006-01-02"),
		})
	}
	_ = table.Render()
	return nil
}

func labelCreateRun(ctx context.Context, name string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would create label: %s", name)
		return nil
	}

	label, err := svc.CreateLabel(ctx, name, labelColor)
	if err != nil {
		return fmt.Errorf("create label: %w", err)
	}

	if ui.JSON {
		return ui.PrintJSON(label)
	}
	ui.Success("Created label: %s", output.Cyan(label.Name))
	return nil
}
