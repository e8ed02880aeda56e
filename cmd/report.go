package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/output"
	"github.com/joescharf/tracker/internal/tracker"
)

var (
	reportFormat   string
	reportLimit    int
	exportStatus   string
	exportAssignee string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export issues as JSON, CSV, or Markdown",
	Long: `Export issues in various formats.

CSV output uses the same columns as 'tracker issue import', so an export can
be edited and imported into another database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun(cmd.Context())
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate reports",
	Long:  "Summaries of resolution time and open workload.",
}

var reportLatencyCmd = &cobra.Command{
	Use:   "latency",
	Short: "Average time from creation to close over closed issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportLatencyRun(cmd.Context())
	},
}

var reportAssigneesCmd = &cobra.Command{
	Use:   "assignees",
	Short: "Users with the most unresolved issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportAssigneesRun(cmd.Context())
	},
}

func init() {
	exportCmd.Flags().StringVar(&reportFormat, "format", "json", "Output format: json, csv, markdown")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "Only export issues with this status")
	exportCmd.Flags().StringVar(&exportAssignee, "assignee", "", "Only export issues assigned to this user")
	rootCmd.AddCommand(exportCmd)

	reportAssigneesCmd.Flags().IntVar(&reportLimit, "limit", 0, "Number of assignees (default from reports.top_assignees)")

	reportCmd.AddCommand(reportLatencyCmd)
	reportCmd.AddCommand(reportAssigneesCmd)
	rootCmd.AddCommand(reportCmd)
}

func exportRun(ctx context.Context) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	issues, err := allIssues(ctx, svc, tracker.ListQuery{Status: exportStatus, AssigneeID: exportAssignee})
	if err != nil {
		return err
	}

	switch reportFormat {
	case "json":
		return ui.PrintJSON(issues)
	case "csv":
		return writeIssuesCSV(ui.Out, issues)
	case "markdown":
		fmt.Fprintln(ui.Out, "# Issues")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| ID | Title | Status | Priority | Assignee | Version |")
		fmt.Fprintln(ui.Out, "|----|-------|--------|----------|----------|---------|")
		for _, i := range issues {
			fmt.Fprintf(ui.Out, "| %s | %s | %s | %s | %s | %d |\n",
				shortID(i.ID), i.Title, i.Status, i.Priority, deref(i.AssigneeID), i.Version)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", reportFormat)
	}
}

// allIssues walks every page of q.
func allIssues(ctx context.Context, svc *tracker.Service, q tracker.ListQuery) ([]*models.Issue, error) {
	q.Limit = tracker.MaxListLimit
	var issues []*models.Issue
	for q.Page = 1; ; q.Page++ {
		page, err := svc.ListIssues(ctx, q)
		if err != nil {
			return nil, err
		}
		issues = append(issues, page.Data...)
		if q.Page >= page.Meta.TotalPages {
			return issues, nil
		}
	}
}

// writeIssuesCSV writes issues with the importer's column layout.
func writeIssuesCSV(out io.Writer, issues []*models.Issue) error {
	w := csv.NewWriter(out)
	if err := w.Write(tracker.ImportColumns); err != nil {
		return err
	}
	for _, i := range issues {
		record := make([]string, len(tracker.ImportColumns))
		for n, col := range tracker.ImportColumns {
			switch col {
			case tracker.ColTitle:
				record[n] = i.Title
			case tracker.ColDescription:
				record[n] = i.Description
			case tracker.ColPriority:
				record[n] = string(i.Priority)
			case tracker.ColStatus:
				record[n] = string(i.Status)
			case tracker.ColAuthorID:
				record[n] = i.AuthorID
			case tracker.ColAssigneeID:
				record[n] = deref(i.AssigneeID)
			}
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func reportLatencyRun(ctx context.Context) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	report, err := svc.ResolutionLatency(ctx)
	if err != nil {
		return err
	}

	if ui.JSON {
		return ui.PrintJSON(report)
	}

	if report.Count == 0 {
		ui.Info("No closed issues yet.")
		return nil
	}
	avg := time.Duration(report.AverageResolutionTimeMs) * time.Millisecond
	fmt.Fprintf(ui.Out, "Closed issues:            %d\n", report.Count)
	fmt.Fprintf(ui.Out, "Average resolution time:  %s (%.2f minutes)\n",
		output.Cyan(avg.Round(time.Second).String()), report.AverageResolutionTimeMinutes)
	return nil
}

func reportAssigneesRun(ctx context.Context) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	counts, err := svc.TopAssignees(ctx, reportLimit)
	if err != nil {
		return err
	}

	if ui.JSON {
		return ui.PrintJSON(counts)
	}

	if len(counts) == 0 {
		ui.Info("No assigned open issues.")
		return nil
	}

	table := ui.Table([]string{"Assignee", "Username", "Unresolved"})
	for _, c := range counts {
		_ = table.Append([]string{
			c.AssigneeID,
			output.Cyan(c.Username),
			fmt.Sprintf("%d", c.Count),
		})
	}
	_ = table.Render()
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
