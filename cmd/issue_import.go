package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/tracker/internal/llm"
	"github.com/joescharf/tracker/internal/output"
	"github.com/joescharf/tracker/internal/tracker"
)

var (
	importMarkdown bool
	importUseLLM   bool
	importAuthor   string
)

var issueImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import issues from a CSV or markdown file",
	Long: `Import issues in bulk. Each row is created independently: bad rows are
reported and skipped, good rows are kept.

CSV files need a header row. Recognized columns are title, description,
priority, status, authorId and assigneeId; other columns are ignored.
Use "-" to read CSV from stdin.

Markdown files (*.md, or --markdown) are read as numbered or bulleted lists,
one issue per item; sub-items like "1.1 text" carry their parent's text in
the description. Priority is guessed from keywords in the title. With --llm
the notes are sent to the configured LLM instead, which requires
ANTHROPIC_API_KEY or anthropic.api_key in config. Markdown imports need
--author.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueImportRun(cmd.Context(), args[0])
	},
}

func init() {
	issueImportCmd.Flags().BoolVar(&importMarkdown, "markdown", false, "Treat the file as markdown notes")
	issueImportCmd.Flags().BoolVar(&importUseLLM, "llm", false, "Extract issues from markdown with the LLM")
	issueImportCmd.Flags().StringVar(&importAuthor, "author", "", "Author user ID for markdown imports")
	issueCmd.AddCommand(issueImportCmd)
}

func issueImportRun(ctx context.Context, file string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	opts := tracker.ImportOptions{DryRun: dryRun}
	markdown := importMarkdown || importUseLLM || strings.EqualFold(filepath.Ext(file), ".md")

	var report *tracker.ImportReport
	if markdown {
		table, err := markdownTable(ctx, file)
		if err != nil {
			return err
		}
		if len(table.Rows) == 0 {
			ui.Info("No issues found in file.")
			return nil
		}
		report, err = svc.ImportTable(ctx, table, opts)
		if err != nil {
			return err
		}
	} else {
		r, closeFn, err := openImportFile(file)
		if err != nil {
			return err
		}
		defer closeFn()

		report, err = svc.ImportIssues(ctx, r, opts)
		if err != nil {
			return err
		}
	}

	return printImportReport(report)
}

// openImportFile opens file for reading; "-" means stdin.
func openImportFile(file string) (io.Reader, func(), error) {
	if file == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, nil, fmt.Errorf("read file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// markdownTable turns markdown notes into import rows, either by local
// parsing or through the LLM.
func markdownTable(ctx context.Context, file string) (*tracker.Table, error) {
	if importAuthor == "" {
		return nil, fmt.Errorf("--author is required for markdown imports")
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	content := string(data)
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("file is empty: %s", file)
	}

	var extracted []llm.ExtractedIssue
	if importUseLLM {
		client := newLLMClient()
		if client == nil {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set (set env var or anthropic.api_key in config)")
		}
		ui.Info("Extracting issues with LLM...")
		extracted, err = client.ExtractIssues(ctx, content)
		if err != nil {
			return nil, fmt.Errorf("extract issues: %w", err)
		}
	} else {
		extracted = parseMarkdownIssues(content)
	}

	return extractedTable(extracted, importAuthor), nil
}

// extractedTable lays extracted issues out as importer rows.
func extractedTable(extracted []llm.ExtractedIssue, author string) *tracker.Table {
	t := &tracker.Table{Header: tracker.ImportColumns}
	for _, e := range extracted {
		t.Rows = append(t.Rows, tracker.Row{
			tracker.ColTitle:       e.Title,
			tracker.ColDescription: e.Description,
			tracker.ColPriority:    e.Priority,
			tracker.ColAuthorID:    author,
		})
	}
	return t
}

// parseSubIssueNumber checks if a line starts with a sub-issue number like "1.1" or "2.3."
// Returns the title text and true if it's a sub-issue, or empty and false otherwise.
func parseSubIssueNumber(line string) (title string, ok bool) {
	// Pattern: digits.digits[.] space text (e.g., "1.1 text" or "1.1. text")
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) || line[i] != '.' {
		return "", false
	}
	i++
	start := i
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == start {
		return "", false // "1. text" is a top-level item
	}
	if i < len(line) && line[i] == '.' {
		i++
	}
	if i >= len(line) || line[i] != ' ' {
		return "", false
	}
	title = strings.TrimSpace(line[i:])
	if title == "" {
		return "", false
	}
	return title, true
}

// listItemTitle returns the text of a "12. text", "- text" or "* text" item.
func listItemTitle(line string) (title string, numbered bool) {
	if len(line) <= 2 {
		return "", false
	}
	for i, c := range line {
		if c == '.' && i > 0 && i < 4 {
			return strings.TrimSpace(line[i+1:]), true
		}
		if c < '0' || c > '9' {
			break
		}
	}
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		return strings.TrimSpace(line[2:]), false
	}
	return "", false
}

// parseMarkdownIssues does a simple parse of markdown to extract numbered/bulleted items.
// The raw item line (prefixed by its parent for sub-items) becomes the description.
func parseMarkdownIssues(content string) []llm.ExtractedIssue {
	var issues []llm.ExtractedIssue
	lastParentLine := ""

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "#") {
			lastParentLine = ""
			continue
		}

		if subTitle, ok := parseSubIssueNumber(line); ok {
			desc := line
			if lastParentLine != "" {
				desc = lastParentLine + "\n" + line
			}
			issues = append(issues, llm.ExtractedIssue{
				Title:       subTitle,
				Description: desc,
				Priority:    string(classifyIssuePriority(subTitle)),
			})
			continue
		}

		title, numbered := listItemTitle(line)
		if title == "" {
			continue
		}
		// Only numbered items can be parents of sub-items.
		if numbered {
			lastParentLine = line
		}
		issues = append(issues, llm.ExtractedIssue{
			Title:       title,
			Description: line,
			Priority:    string(classifyIssuePriority(title)),
		})
	}

	return issues
}

func printImportReport(report *tracker.ImportReport) error {
	if ui.JSON {
		return ui.PrintJSON(report)
	}

	if len(report.Failures) > 0 {
		table := ui.Table([]string{"Row", "Kind", "Problem", "Title"})
		for _, f := range report.Failures {
			_ = table.Append([]string{
				fmt.Sprintf("%d", f.Row),
				string(f.Kind),
				failureMessage(f),
				f.Data[tracker.ColTitle],
			})
		}
		_ = table.Render()
	}

	if report.DryRun {
		ui.DryRunMsg("Would import %d of %d rows", report.Success, report.Total)
		return nil
	}
	ui.Success("Imported %s of %d rows", output.Cyan(fmt.Sprintf("%d", report.Success)), report.Total)
	if n := len(report.Failures); n > 0 {
		ui.Warning("Skipped %d rows", n)
	}
	return nil
}

func failureMessage(f tracker.ImportFailure) string {
	if f.Error != "" {
		return f.Error
	}
	parts := make([]string, len(f.Errors))
	for i, fe := range f.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return strings.Join(parts, "; ")
}
