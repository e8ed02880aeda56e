package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/output"
	"github.com/joescharf/tracker/internal/tracker"
)

var (
	issueTitle      string
	issueDesc       string
	issuePriority   string
	issueStatus     string
	issueAuthor     string
	issueAssignee   string
	issueUnassign   bool
	issueVersion    int
	issuePage       int
	issueLimit      int
	issueLabelNames []string
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage issues",
	Long:  "Create, list, update and close issues. Issue IDs accept any unique prefix.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd.Context())
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new issue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun(cmd.Context())
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd.Context())
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details with comments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(cmd.Context(), args[0])
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <issue-id>",
	Short: "Update an issue",
	Long: `Update an issue.

Pass --version with the version you last saw to make sure nobody changed
the issue in between; the update is rejected with a conflict otherwise.
Without --version the current version is read first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueUpdateRun(cmd.Context(), args[0])
	},
}

var issueCloseCmd = &cobra.Command{
	Use:   "close <issue-id>",
	Short: "Close an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueCloseRun(cmd.Context(), args[0])
	},
}

var issueCommentCmd = &cobra.Command{
	Use:   "comment <issue-id> <text>",
	Short: "Add a comment to an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueCommentRun(cmd.Context(), args[0], args[1])
	},
}

var issueLabelCmd = &cobra.Command{
	Use:   "label <issue-id> [label-name...]",
	Short: "Replace the labels on an issue",
	Long:  "Replace the full label set of an issue. With no label names, all labels are removed.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueLabelRun(cmd.Context(), args[0], args[1:])
	},
}

var issueBulkStatusCmd = &cobra.Command{
	Use:   "bulk-status <status> <issue-id>...",
	Short: "Set the status of several issues at once",
	Long: `Set the status of several issues at once.

All-or-nothing: if any ID does not exist, no issue is changed.
IDs must be given in full.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueBulkStatusRun(cmd.Context(), args[0], args[1:])
	},
}

var issueTriageCmd = &cobra.Command{
	Use:   "triage <issue-id>",
	Short: "Ask the LLM for a suggested priority and summary",
	Long: `Ask the configured LLM for a suggested priority and a one-line summary.
The issue is not modified.

Requires ANTHROPIC_API_KEY environment variable or anthropic.api_key in config.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueTriageRun(cmd.Context(), args[0])
	},
}

func init() {
	issueAddCmd.Flags().StringVar(&issueTitle, "title", "", "Issue title (required)")
	issueAddCmd.Flags().StringVar(&issueDesc, "desc", "", "Issue description (required)")
	issueAddCmd.Flags().StringVar(&issuePriority, "priority", "", "Priority: LOW, MEDIUM, HIGH (default MEDIUM)")
	issueAddCmd.Flags().StringVar(&issueStatus, "status", "", "Status: OPEN, IN_PROGRESS, CLOSED (default OPEN)")
	issueAddCmd.Flags().StringVar(&issueAuthor, "author", "", "Author user ID (required)")
	issueAddCmd.Flags().StringVar(&issueAssignee, "assignee", "", "Assignee user ID")
	_ = issueAddCmd.MarkFlagRequired("title")
	_ = issueAddCmd.MarkFlagRequired("desc")
	_ = issueAddCmd.MarkFlagRequired("author")

	issueListCmd.Flags().StringVar(&issueStatus, "status", "", "Filter by status")
	issueListCmd.Flags().StringVar(&issuePriority, "priority", "", "Filter by priority")
	issueListCmd.Flags().StringVar(&issueAssignee, "assignee", "", "Filter by assignee user ID")
	issueListCmd.Flags().IntVar(&issuePage, "page", 1, "Page number")
	issueListCmd.Flags().IntVar(&issueLimit, "limit", 0, "Page size (default from list.default_limit)")

	issueUpdateCmd.Flags().StringVar(&issueStatus, "status", "", "New status")
	issueUpdateCmd.Flags().StringVar(&issuePriority, "priority", "", "New priority")
	issueUpdateCmd.Flags().StringVar(&issueTitle, "title", "", "New title")
	issueUpdateCmd.Flags().StringVar(&issueDesc, "desc", "", "New description")
	issueUpdateCmd.Flags().StringVar(&issueAssignee, "assignee", "", "New assignee user ID")
	issueUpdateCmd.Flags().BoolVar(&issueUnassign, "unassign", false, "Remove the assignee")
	issueUpdateCmd.Flags().IntVar(&issueVersion, "version", 0, "Expected current version")

	issueCloseCmd.Flags().IntVar(&issueVersion, "version", 0, "Expected current version")

	issueCommentCmd.Flags().StringVar(&issueAuthor, "author", "", "Comment author user ID (required)")
	_ = issueCommentCmd.MarkFlagRequired("author")

	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	issueCmd.AddCommand(issueCloseCmd)
	issueCmd.AddCommand(issueCommentCmd)
	issueCmd.AddCommand(issueLabelCmd)
	issueCmd.AddCommand(issueBulkStatusCmd)
	issueCmd.AddCommand(issueTriageCmd)
	rootCmd.AddCommand(issueCmd)
}

func issueAddRun(ctx context.Context) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	in := tracker.CreateIssueInput{
		Title:       issueTitle,
		Description: issueDesc,
		Status:      models.IssueStatus(strings.ToUpper(issueStatus)),
		Priority:    models.IssuePriority(strings.ToUpper(issuePriority)),
		AuthorID:    issueAuthor,
	}
	if issueAssignee != "" {
		in.AssigneeID = &issueAssignee
	}

	if dryRun {
		ui.DryRunMsg("Would add issue: %s", issueTitle)
		return nil
	}

	issue, err := svc.CreateIssue(ctx, in)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}

	if ui.JSON {
		return ui.PrintJSON(issue)
	}
	ui.Success("Created issue %s: %s", output.Cyan(shortID(issue.ID)), issue.Title)
	return nil
}

func issueListRun(ctx context.Context) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	page, err := svc.ListIssues(ctx, tracker.ListQuery{
		Status:     issueStatus,
		Priority:   issuePriority,
		AssigneeID: issueAssignee,
		Page:       issuePage,
		Limit:      issueLimit,
	})
	if err != nil {
		return err
	}

	if ui.JSON {
		return ui.PrintJSON(page)
	}

	if len(page.Data) == 0 {
		ui.Info("No issues found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Status", "Priority", "Assignee", "Ver", "Created"})
	for _, issue := range page.Data {
		assignee := ""
		if issue.AssigneeID != nil {
			assignee = *issue.AssigneeID
		}
		_ = table.Append([]string{
			shortID(issue.ID),
			issue.Title,
			output.StatusColor(string(issue.Status)),
			output.PriorityColor(string(issue.Priority)),
			assignee,
			fmt.Sprintf("%d", issue.Version),
			issue.CreatedAt.Format("2006-01-02"),
		})
	}
	_ = table.Render()
	ui.VerboseLog("Page %d of %d (%d issues)", page.Meta.Page, page.Meta.TotalPages, page.Meta.Total)
	return nil
}

func issueShowRun(ctx context.Context, ref string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	issue, err := findIssue(ctx, svc, ref)
	if err != nil {
		return err
	}

	if ui.JSON {
		return ui.PrintJSON(issue)
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(shortID(issue.ID)), issue.Title)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(issue.Status)))
	fmt.Fprintf(ui.Out, "  Priority:   %s\n", output.PriorityColor(string(issue.Priority)))
	fmt.Fprintf(ui.Out, "  Version:    %d\n", issue.Version)
	fmt.Fprintf(ui.Out, "  Author:     %s\n", userLabel(issue.AuthorID, issue.Author))
	if issue.AssigneeID != nil {
		fmt.Fprintf(ui.Out, "  Assignee:   %s\n", userLabel(*issue.AssigneeID, issue.Assignee))
	}
	if issue.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:       %s\n", issue.Description)
	}
	if len(issue.Labels) > 0 {
		names := make([]string, len(issue.Labels))
		for i, l := range issue.Labels {
			names[i] = l.Name
		}
		fmt.Fprintf(ui.Out, "  Labels:     %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(ui.Out, "  Created:    %s\n", issue.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Updated:    %s\n", issue.UpdatedAt.Format(time.RFC3339))
	if issue.ClosedAt != nil {
		fmt.Fprintf(ui.Out, "  Closed:     %s\n", issue.ClosedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", issue.ID)

	if len(issue.Comments) > 0 {
		fmt.Fprintln(ui.Out)
		fmt.Fprintf(ui.Out, "  Comments (%d):\n", len(issue.Comments))
		for _, c := range issue.Comments {
			fmt.Fprintf(ui.Out, "    %s  %s: %s\n",
				c.CreatedAt.Format("2006-01-02 15:04"), userLabel(c.AuthorID, c.Author), c.Content)
		}
	}

	return nil
}

func issueUpdateRun(ctx context.Context, ref string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	var patch models.IssuePatch
	if issueTitle != "" {
		patch.Title = &issueTitle
	}
	if issueDesc != "" {
		patch.Description = &issueDesc
	}
	if issueStatus != "" {
		st := models.IssueStatus(strings.ToUpper(issueStatus))
		patch.Status = &st
	}
	if issuePriority != "" {
		p := models.IssuePriority(strings.ToUpper(issuePriority))
		patch.Priority = &p
	}
	if issueAssignee != "" {
		patch.AssigneeSet = true
		patch.AssigneeID = &issueAssignee
	} else if issueUnassign {
		patch.AssigneeSet = true
	}

	if patch.Empty() {
		return fmt.Errorf("no updates specified (use --status, --priority, --title, --desc, --assignee or --unassign)")
	}

	issue, err := findIssue(ctx, svc, ref)
	if err != nil {
		return err
	}
	version := issueVersion
	if version == 0 {
		version = issue.Version
	}

	if dryRun {
		ui.DryRunMsg("Would update issue %s at version %d", shortID(issue.ID), version)
		return nil
	}

	updated, err := svc.UpdateIssue(ctx, issue.ID, patch, version)
	if err != nil {
		return updateError("update issue", err)
	}

	if ui.JSON {
		return ui.PrintJSON(updated)
	}
	ui.Success("Updated issue %s (version %d)", output.Cyan(shortID(updated.ID)), updated.Version)
	return nil
}

func issueCloseRun(ctx context.Context, ref string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	issue, err := findIssue(ctx, svc, ref)
	if err != nil {
		return err
	}
	version := issueVersion
	if version == 0 {
		version = issue.Version
	}

	if dryRun {
		ui.DryRunMsg("Would close issue %s: %s", shortID(issue.ID), issue.Title)
		return nil
	}

	closed := models.IssueStatusClosed
	updated, err := svc.UpdateIssue(ctx, issue.ID, models.IssuePatch{Status: &closed}, version)
	if err != nil {
		return updateError("close issue", err)
	}

	if ui.JSON {
		return ui.PrintJSON(updated)
	}
	ui.Success("Closed issue %s: %s", output.Cyan(shortID(updated.ID)), updated.Title)
	return nil
}

func issueCommentRun(ctx context.Context, ref, text string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	id, err := svc.ResolveIssueID(ctx, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would comment on issue %s", shortID(id))
		return nil
	}

	c, err := svc.AddComment(ctx, id, tracker.CommentInput{Content: text, AuthorID: issueAuthor})
	if err != nil {
		return fmt.Errorf("add comment: %w", err)
	}

	if ui.JSON {
		return ui.PrintJSON(c)
	}
	ui.Success("Commented on issue %s", output.Cyan(shortID(id)))
	return nil
}

func issueLabelRun(ctx context.Context, ref string, names []string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	id, err := svc.ResolveIssueID(ctx, ref)
	if err != nil {
		return err
	}

	labels, err := svc.ListLabels(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]string, len(labels))
	for _, l := range labels {
		byName[l.Name] = l.ID
	}

	labelIDs := make([]string, 0, len(names))
	for _, name := range names {
		labelID, ok := byName[name]
		if !ok {
			return fmt.Errorf("label not found: %s (create it with 'tracker label create %s')", name, name)
		}
		labelIDs = append(labelIDs, labelID)
	}

	if dryRun {
		ui.DryRunMsg("Would set %d labels on issue %s", len(labelIDs), shortID(id))
		return nil
	}

	issue, err := svc.SetIssueLabels(ctx, id, labelIDs)
	if err != nil {
		return fmt.Errorf("set labels: %w", err)
	}

	if ui.JSON {
		return ui.PrintJSON(issue)
	}
	if len(names) == 0 {
		ui.Success("Removed all labels from issue %s", output.Cyan(shortID(id)))
		return nil
	}
	ui.Success("Labelled issue %s: %s", output.Cyan(shortID(id)), strings.Join(names, ", "))
	return nil
}

func issueBulkStatusRun(ctx context.Context, status string, ids []string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would set %d issues to %s", len(ids), strings.ToUpper(status))
		return nil
	}

	n, err := svc.BulkSetStatus(ctx, ids, models.IssueStatus(strings.ToUpper(status)))
	if err != nil {
		return fmt.Errorf("bulk status: %w", err)
	}

	if ui.JSON {
		return ui.PrintJSON(map[string]int64{"updatedCount": n})
	}
	ui.Success("Updated %d issues to %s", n, output.StatusColor(strings.ToUpper(status)))
	return nil
}

func issueTriageRun(ctx context.Context, ref string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	id, err := svc.ResolveIssueID(ctx, ref)
	if err != nil {
		return err
	}

	ui.VerboseLog("Asking LLM to triage %s...", shortID(id))
	sug, err := svc.Triage(ctx, id)
	if err != nil {
		if errors.Is(err, tracker.ErrTriageUnavailable) {
			return fmt.Errorf("ANTHROPIC_API_KEY not set (set env var or anthropic.api_key in config)")
		}
		return fmt.Errorf("triage: %w", err)
	}

	if ui.JSON {
		return ui.PrintJSON(sug)
	}
	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(shortID(id)), sug.Summary)
	fmt.Fprintf(ui.Out, "  Suggested priority: %s\n", output.PriorityColor(string(sug.Priority)))
	if sug.Rationale != "" {
		fmt.Fprintf(ui.Out, "  Rationale:          %s\n", sug.Rationale)
	}
	return nil
}

// findIssue loads an issue by full ID or unique prefix.
func findIssue(ctx context.Context, svc *tracker.Service, ref string) (*models.Issue, error) {
	id, err := svc.ResolveIssueID(ctx, ref)
	if err != nil {
		return nil, err
	}
	return svc.GetIssue(ctx, id)
}

// updateError turns a version conflict into an actionable message.
func updateError(action string, err error) error {
	var ce *tracker.ConflictError
	if errors.As(err, &ce) {
		return fmt.Errorf("%s: issue %s was changed by someone else (now at version %d, you had %d); run 'tracker issue show %s' and retry: %w",
			action, shortID(ce.ID), ce.CurrentVersion, ce.ExpectedVersion, shortID(ce.ID), err)
	}
	return fmt.Errorf("%s: %w", action, err)
}

// userLabel renders a user as "username (id)" when the username is known.
func userLabel(id string, u *models.User) string {
	if u == nil || u.Username == "" {
		return id
	}
	return fmt.Sprintf("%s (%s)", u.Username, id)
}

// shortID returns a truncated ULID for display (first 12 chars).
func shortID(id string) string {
	return output.ShortID(id, 12)
}
