package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/tracker"
)

// Server exposes the tracker service as MCP tools.
type Server struct {
	svc     *tracker.Service
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(svc *tracker.Service, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{svc: svc, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("tracker", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.getIssueTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.updateIssueTool())
	srv.AddTool(s.bulkStatusTool())
	srv.AddTool(s.addCommentTool())
	srv.AddTool(s.reportTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// jsonResult marshals v into a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult turns a service error into a tool error with a short,
// model-readable explanation.
func errorResult(action string, err error) *mcp.CallToolResult {
	var ce *tracker.ConflictError
	switch {
	case errors.As(err, &ce):
		return mcp.NewToolResultError(fmt.Sprintf(
			"%s: version conflict, the issue is now at version %d; fetch it again and retry with that version",
			action, ce.CurrentVersion))
	case errors.Is(err, tracker.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("%s: not found: %v", action, err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", action, err))
}

// resolveID expands a full ID or unique prefix.
func (s *Server) resolveID(ctx context.Context, request mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	raw, err := request.RequireString("issue_id")
	if err != nil {
		return "", mcp.NewToolResultError("missing required parameter: issue_id")
	}
	id, err := s.svc.ResolveIssueID(ctx, raw)
	if err != nil {
		return "", errorResult("resolve issue", err)
	}
	return id, nil
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// tracker_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tracker_list_issues",
		mcp.WithDescription("List issues newest first, optionally filtered. Returns {data, meta} where data is an array of issues (id, title, description, status, priority, authorId, assigneeId, version, labels) and meta holds total, page, limit and totalPages."),
		mcp.WithString("status", mcp.Description("Status filter: OPEN, IN_PROGRESS, CLOSED")),
		mcp.WithString("priority", mcp.Description("Priority filter: LOW, MEDIUM, HIGH")),
		mcp.WithString("assignee_id", mcp.Description("Only issues assigned to this user")),
		mcp.WithNumber("page", mcp.Description("1-based page number (default 1)")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 10, max 100)")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, err := s.svc.ListIssues(ctx, tracker.ListQuery{
		Status:     request.GetString("status", ""),
		Priority:   request.GetString("priority", ""),
		AssigneeID: request.GetString("assignee_id", ""),
		Page:       request.GetInt("page", 0),
		Limit:      request.GetInt("limit", 0),
	})
	if err != nil {
		return errorResult("list issues", err), nil
	}
	return jsonResult(page)
}

// tracker_get_issue
func (s *Server) getIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tracker_get_issue",
		mcp.WithDescription("Get one issue with its author, assignee, labels and comments. The version field must be passed back to tracker_update_issue."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID (full ULID or unique prefix)")),
	)
	return tool, s.handleGetIssue
}

func (s *Server) handleGetIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := s.resolveID(ctx, request)
	if res != nil {
		return res, nil
	}
	issue, err := s.svc.GetIssue(ctx, id)
	if err != nil {
		return errorResult("get issue", err), nil
	}
	return jsonResult(issue)
}

// tracker_create_issue
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tracker_create_issue",
		mcp.WithDescription("Create a new issue. The author is created on first use. Returns the created issue as JSON."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Issue title")),
		mcp.WithString("description", mcp.Required(), mcp.Description("Issue description")),
		mcp.WithString("author_id", mcp.Required(), mcp.Description("ID of the reporting user")),
		mcp.WithString("priority", mcp.Description("LOW, MEDIUM or HIGH (default: MEDIUM)")),
		mcp.WithString("status", mcp.Description("OPEN, IN_PROGRESS or CLOSED (default: OPEN)")),
		mcp.WithString("assignee_id", mcp.Description("ID of an existing user to assign")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	description, err := request.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: description"), nil
	}
	authorID, err := request.RequireString("author_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: author_id"), nil
	}

	in := tracker.CreateIssueInput{
		Title:       title,
		Description: description,
		AuthorID:    authorID,
		Status:      models.IssueStatus(strings.ToUpper(request.GetString("status", ""))),
		Priority:    models.IssuePriority(strings.ToUpper(request.GetString("priority", ""))),
	}
	if assignee := request.GetString("assignee_id", ""); assignee != "" {
		in.AssigneeID = &assignee
	}

	issue, err := s.svc.CreateIssue(ctx, in)
	if err != nil {
		return errorResult("create issue", err), nil
	}
	return jsonResult(issue)
}

// tracker_update_issue
func (s *Server) updateIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tracker_update_issue",
		mcp.WithDescription("Update an issue using optimistic concurrency. Pass the version you last read; the update is rejected with a conflict if someone changed the issue since. Returns the updated issue as JSON with its new version."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID (full ULID or unique prefix)")),
		mcp.WithNumber("version", mcp.Required(), mcp.Description("The issue version you last read")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("status", mcp.Description("New status: OPEN, IN_PROGRESS, CLOSED")),
		mcp.WithString("priority", mcp.Description("New priority: LOW, MEDIUM, HIGH")),
		mcp.WithString("assignee_id", mcp.Description("Assign to this existing user")),
		mcp.WithBoolean("unassign", mcp.Description("Remove the current assignee")),
	)
	return tool, s.handleUpdateIssue
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := s.resolveID(ctx, request)
	if res != nil {
		return res, nil
	}
	version, err := request.RequireInt("version")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: version"), nil
	}

	var patch models.IssuePatch
	if title := request.GetString("title", ""); title != "" {
		patch.Title = &title
	}
	if desc := request.GetString("description", ""); desc != "" {
		patch.Description = &desc
	}
	if status := request.GetString("status", ""); status != "" {
		st := models.IssueStatus(strings.ToUpper(status))
		patch.Status = &st
	}
	if priority := request.GetString("priority", ""); priority != "" {
		p := models.IssuePriority(strings.ToUpper(priority))
		patch.Priority = &p
	}
	if assignee := request.GetString("assignee_id", ""); assignee != "" {
		patch.AssigneeSet = true
		patch.AssigneeID = &assignee
	} else if request.GetBool("unassign", false) {
		patch.AssigneeSet = true
	}

	if patch.Empty() {
		return mcp.NewToolResultError("no fields provided to update; specify at least one of: title, description, status, priority, assignee_id, unassign"), nil
	}

	issue, err := s.svc.UpdateIssue(ctx, id, patch, version)
	if err != nil {
		return errorResult("update issue", err), nil
	}
	return jsonResult(issue)
}

// tracker_bulk_status
func (s *Server) bulkStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tracker_bulk_status",
		mcp.WithDescription("Set the status of several issues at once. All-or-nothing: if any ID does not exist, no issue is changed. Versions are not checked. Returns {updatedCount}."),
		mcp.WithArray("issue_ids", mcp.Required(), mcp.WithStringItems(), mcp.Description("Full issue IDs")),
		mcp.WithString("status", mcp.Required(), mcp.Description("OPEN, IN_PROGRESS or CLOSED")),
	)
	return tool, s.handleBulkStatus
}

func (s *Server) handleBulkStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := request.RequireStringSlice("issue_ids")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_ids"), nil
	}
	status, err := request.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: status"), nil
	}

	n, err := s.svc.BulkSetStatus(ctx, ids, models.IssueStatus(strings.ToUpper(status)))
	if err != nil {
		return errorResult("bulk status", err), nil
	}
	return jsonResult(map[string]int64{"updatedCount": n})
}

// tracker_add_comment
func (s *Server) addCommentTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tracker_add_comment",
		mcp.WithDescription("Add a comment to an issue. Comments do not change the issue version."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID (full ULID or unique prefix)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Comment text")),
		mcp.WithString("author_id", mcp.Required(), mcp.Description("ID of the commenting user")),
	)
	return tool, s.handleAddComment
}

func (s *Server) handleAddComment(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, res := s.resolveID(ctx, request)
	if res != nil {
		return res, nil
	}
	content, err := request.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: content"), nil
	}
	authorID, err := request.RequireString("author_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: author_id"), nil
	}

	c, err := s.svc.AddComment(ctx, id, tracker.CommentInput{Content: content, AuthorID: authorID})
	if err != nil {
		return errorResult("add comment", err), nil
	}
	return jsonResult(c)
}

// tracker_report
func (s *Server) reportTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tracker_report",
		mcp.WithDescription("Run a report. 'latency' returns the average time from creation to close over closed issues. 'top_assignees' returns the users with the most unresolved issues."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("latency or top_assignees")),
		mcp.WithNumber("limit", mcp.Description("Number of assignees for top_assignees (default 3)")),
	)
	return tool, s.handleReport
}

func (s *Server) handleReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := request.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: kind"), nil
	}

	switch kind {
	case "latency":
		report, err := s.svc.ResolutionLatency(ctx)
		if err != nil {
			return errorResult("latency report", err), nil
		}
		return jsonResult(report)
	case "top_assignees":
		counts, err := s.svc.TopAssignees(ctx, request.GetInt("limit", 0))
		if err != nil {
			return errorResult("top assignees report", err), nil
		}
		return jsonResult(counts)
	}
	return mcp.NewToolResultError(fmt.Sprintf("unknown report kind %q; use latency or top_assignees", kind)), nil
}
