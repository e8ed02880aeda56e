package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/store"
	"github.com/joescharf/tracker/internal/tracker"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestServer(t *testing.T) (*Server, *tracker.Service) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	svc := tracker.New(s, nil)
	return NewServer(svc, "test"), svc
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

func seedIssue(t *testing.T, svc *tracker.Service, title string) *models.Issue {
	t.Helper()
	issue, err := svc.CreateIssue(context.Background(), tracker.CreateIssueInput{
		Title:       title,
		Description: "about " + title,
		AuthorID:    "alice",
	})
	require.NoError(t, err)
	return issue
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestNewServer(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.NotNil(t, srv.MCPServer())
	assert.Equal(t, "dev", NewServer(nil, "").version)
}

func TestHandleListIssues_Empty(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleListIssues(context.Background(), callToolReq("tracker_list_issues", nil))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var page tracker.IssuePage
	resultJSON(t, result, &page)
	assert.Empty(t, page.Data)
	assert.Equal(t, 0, page.Meta.Total)
	assert.Equal(t, 1, page.Meta.Page)
}

func TestHandleListIssues_FilterAndPage(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()
	seedIssue(t, svc, "one")
	two := seedIssue(t, svc, "two")
	seedIssue(t, svc, "three")
	_, err := svc.BulkSetStatus(ctx, []string{two.ID}, models.IssueStatusClosed)
	require.NoError(t, err)

	result, err := srv.handleListIssues(ctx, callToolReq("tracker_list_issues", map[string]any{
		"status": "closed",
	}))
	require.NoError(t, err)
	var page tracker.IssuePage
	resultJSON(t, result, &page)
	require.Len(t, page.Data, 1)
	assert.Equal(t, two.ID, page.Data[0].ID)

	result, err = srv.handleListIssues(ctx, callToolReq("tracker_list_issues", map[string]any{
		"page":  float64(2),
		"limit": float64(2),
	}))
	require.NoError(t, err)
	resultJSON(t, result, &page)
	assert.Len(t, page.Data, 1)
	assert.Equal(t, 3, page.Meta.Total)
	assert.Equal(t, 2, page.Meta.TotalPages)
}

func TestHandleListIssues_InvalidFilter(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleListIssues(context.Background(), callToolReq("tracker_list_issues", map[string]any{
		"priority": "URGENT",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "priority")
}

func TestHandleGetIssue_ByPrefix(t *testing.T) {
	srv, svc := newTestServer(t)
	issue := seedIssue(t, svc, "Login broken")

	result, err := srv.handleGetIssue(context.Background(), callToolReq("tracker_get_issue", map[string]any{
		"issue_id": strings.ToLower(issue.ID[:20]),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var got models.Issue
	resultJSON(t, result, &got)
	assert.Equal(t, issue.ID, got.ID)
	assert.Equal(t, "Login broken", got.Title)
	require.NotNil(t, got.Author)
	assert.Equal(t, "alice", got.Author.ID)
}

func TestHandleGetIssue_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleGetIssue(context.Background(), callToolReq("tracker_get_issue", map[string]any{
		"issue_id": "01NOPE",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not found")
}

func TestHandleGetIssue_MissingID(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleGetIssue(context.Background(), callToolReq("tracker_get_issue", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "issue_id")
}

func TestHandleCreateIssue(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleCreateIssue(context.Background(), callToolReq("tracker_create_issue", map[string]any{
		"title":       "Crash on save",
		"description": "Saving a draft crashes",
		"author_id":   "bob",
		"priority":    "high",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var issue models.Issue
	resultJSON(t, result, &issue)
	assert.NotEmpty(t, issue.ID)
	assert.Equal(t, models.IssuePriorityHigh, issue.Priority)
	assert.Equal(t, models.IssueStatusOpen, issue.Status)
	assert.Equal(t, "bob", issue.AuthorID)
	assert.Equal(t, 1, issue.Version)
}

func TestHandleCreateIssue_Validation(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleCreateIssue(context.Background(), callToolReq("tracker_create_issue", map[string]any{
		"title": "No description",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "description")

	result, err = srv.handleCreateIssue(context.Background(), callToolReq("tracker_create_issue", map[string]any{
		"title":       "Bad status",
		"description": "x",
		"author_id":   "bob",
		"status":      "DONE",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "status")
}

func TestHandleUpdateIssue(t *testing.T) {
	srv, svc := newTestServer(t)
	issue := seedIssue(t, svc, "Login broken")

	result, err := srv.handleUpdateIssue(context.Background(), callToolReq("tracker_update_issue", map[string]any{
		"issue_id": issue.ID,
		"version":  float64(1),
		"status":   "in_progress",
		"title":    "Login broken on Safari",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var updated models.Issue
	resultJSON(t, result, &updated)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, models.IssueStatusInProgress, updated.Status)
	assert.Equal(t, "Login broken on Safari", updated.Title)
}

func TestHandleUpdateIssue_StaleVersion(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()
	issue := seedIssue(t, svc, "Login broken")

	_, err := svc.UpdateIssue(ctx, issue.ID, models.IssuePatch{Title: ptr("first")}, 1)
	require.NoError(t, err)

	result, err := srv.handleUpdateIssue(ctx, callToolReq("tracker_update_issue", map[string]any{
		"issue_id": issue.ID,
		"version":  float64(1),
		"title":    "second",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	text := resultText(t, result)
	assert.Contains(t, text, "version conflict")
	assert.Contains(t, text, "version 2")

	got, err := svc.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title)
}

func TestHandleUpdateIssue_AssignAndUnassign(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()
	issue := seedIssue(t, svc, "Login broken")

	result, err := srv.handleUpdateIssue(ctx, callToolReq("tracker_update_issue", map[string]any{
		"issue_id":    issue.ID,
		"version":     float64(1),
		"assignee_id": "alice",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	var updated models.Issue
	resultJSON(t, result, &updated)
	require.NotNil(t, updated.AssigneeID)
	assert.Equal(t, "alice", *updated.AssigneeID)

	result, err = srv.handleUpdateIssue(ctx, callToolReq("tracker_update_issue", map[string]any{
		"issue_id": issue.ID,
		"version":  float64(2),
		"unassign": true,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	updated = models.Issue{}
	resultJSON(t, result, &updated)
	assert.Nil(t, updated.AssigneeID)
	assert.Equal(t, 3, updated.Version)
}

func TestHandleUpdateIssue_MissingVersion(t *testing.T) {
	srv, svc := newTestServer(t)
	issue := seedIssue(t, svc, "Login broken")

	result, err := srv.handleUpdateIssue(context.Background(), callToolReq("tracker_update_issue", map[string]any{
		"issue_id": issue.ID,
		"title":    "x",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "version")
}

func TestHandleUpdateIssue_NoFields(t *testing.T) {
	srv, svc := newTestServer(t)
	issue := seedIssue(t, svc, "Login broken")

	result, err := srv.handleUpdateIssue(context.Background(), callToolReq("tracker_update_issue", map[string]any{
		"issue_id": issue.ID,
		"version":  float64(1),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "no fields provided")
}

func TestHandleBulkStatus(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()
	a := seedIssue(t, svc, "a")
	b := seedIssue(t, svc, "b")

	result, err := srv.handleBulkStatus(ctx, callToolReq("tracker_bulk_status", map[string]any{
		"issue_ids": []any{a.ID, b.ID},
		"status":    "CLOSED",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var out map[string]int64
	resultJSON(t, result, &out)
	assert.Equal(t, int64(2), out["updatedCount"])

	got, err := svc.GetIssue(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusClosed, got.Status)
}

func TestHandleBulkStatus_MissingIDChangesNothing(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()
	a := seedIssue(t, svc, "a")

	result, err := srv.handleBulkStatus(ctx, callToolReq("tracker_bulk_status", map[string]any{
		"issue_ids": []any{a.ID, "01MISSING"},
		"status":    "CLOSED",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	got, err := svc.GetIssue(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusOpen, got.Status)
	assert.Equal(t, 1, got.Version)
}

func TestHandleAddComment(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()
	issue := seedIssue(t, svc, "Login broken")

	result, err := srv.handleAddComment(ctx, callToolReq("tracker_add_comment", map[string]any{
		"issue_id":  issue.ID,
		"content":   "Reproduced on Firefox too",
		"author_id": "carol",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var c models.Comment
	resultJSON(t, result, &c)
	assert.Equal(t, "Reproduced on Firefox too", c.Content)
	assert.Equal(t, issue.ID, c.IssueID)

	got, err := svc.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Len(t, got.Comments, 1)
}

func TestHandleReport(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()
	issue := seedIssue(t, svc, "Login broken")
	_, err := svc.UpdateIssue(ctx, issue.ID, models.IssuePatch{
		AssigneeSet: true,
		AssigneeID:  ptr("alice"),
	}, 1)
	require.NoError(t, err)

	result, err := srv.handleReport(ctx, callToolReq("tracker_report", map[string]any{
		"kind": "top_assignees",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	var counts []store.AssigneeCount
	resultJSON(t, result, &counts)
	require.Len(t, counts, 1)
	assert.Equal(t, "alice", counts[0].AssigneeID)
	assert.Equal(t, 1, counts[0].Count)

	result, err = srv.handleReport(ctx, callToolReq("tracker_report", map[string]any{
		"kind": "latency",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	var latency tracker.LatencyReport
	resultJSON(t, result, &latency)
	assert.Equal(t, 0, latency.Count)

	result, err = srv.handleReport(ctx, callToolReq("tracker_report", map[string]any{
		"kind": "velocity",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "unknown report kind")
}

func ptr[T any](v T) *T { return &v }
