// Package tracker implements the issue tracker's operations on top of a
// store.Store. The HTTP API, the MCP server and the CLI all go through it.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/joescharf/tracker/internal/llm"
	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/store"
)

const (
	DefaultListLimit    = 10
	MaxListLimit        = 100
	DefaultTopAssignees = 3
)

// Triager produces triage suggestions for an issue.
type Triager interface {
	Triage(ctx context.Context, in llm.TriageInput) (*llm.Suggestion, error)
}

// Service exposes the tracker operations.
type Service struct {
	store        store.Store
	log          *slog.Logger
	triager      Triager
	defaultLimit int
	topN         int
}

// Option configures a Service.
type Option func(*Service)

// WithTriager enables Triage.
func WithTriager(t Triager) Option {
	return func(s *Service) { s.triager = t }
}

// WithDefaultLimit sets the page size used when a list query names none.
func WithDefaultLimit(n int) Option {
	return func(s *Service) {
		if n > 0 && n <= MaxListLimit {
			s.defaultLimit = n
		}
	}
}

// WithTopAssignees sets how many assignees TopAssignees returns by default.
func WithTopAssignees(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.topN = n
		}
	}
}

// New creates a Service. A nil logger discards log output.
func New(s store.Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	svc := &Service{
		store:        s,
		log:          logger,
		defaultLimit: DefaultListLimit,
		topN:         DefaultTopAssignees,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Ping checks that the store answers queries.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- Issues ---

// CreateIssueInput holds the fields of a new issue. Empty Status and
// Priority fall back to OPEN and MEDIUM.
type CreateIssueInput struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Status      models.IssueStatus   `json:"status,omitempty"`
	Priority    models.IssuePriority `json:"priority,omitempty"`
	AuthorID    string               `json:"authorId"`
	AssigneeID  *string              `json:"assigneeId,omitempty"`
}

func (in *CreateIssueInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.AuthorID = strings.TrimSpace(in.AuthorID)
	if in.Status == "" {
		in.Status = models.IssueStatusOpen
	}
	if in.Priority == "" {
		in.Priority = models.IssuePriorityMedium
	}
	if in.AssigneeID != nil && strings.TrimSpace(*in.AssigneeID) == "" {
		in.AssigneeID = nil
	}
}

func (in CreateIssueInput) validate() error {
	var fe fieldErrors
	if in.Title == "" {
		fe.add("title", "is required")
	}
	if in.Description == "" {
		fe.add("description", "is required")
	}
	if in.AuthorID == "" {
		fe.add("authorId", "is required")
	}
	if !in.Status.Valid() {
		fe.add("status", "must be one of %s", joinEnum(models.IssueStatuses))
	}
	if !in.Priority.Valid() {
		fe.add("priority", "must be one of %s", joinEnum(models.IssuePriorities))
	}
	return fe.err()
}

func (in CreateIssueInput) issue() *models.Issue {
	return &models.Issue{
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		AuthorID:    in.AuthorID,
		AssigneeID:  in.AssigneeID,
	}
}

// CreateIssue validates in and stores a new issue at version 1. The author
// is created on first reference.
func (s *Service) CreateIssue(ctx context.Context, in CreateIssueInput) (*models.Issue, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	issue := in.issue()
	if err := s.store.CreateIssue(ctx, issue, models.SyntheticUser(in.AuthorID, models.DefaultUserDomain)); err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	s.log.InfoContext(ctx, "issue created", "id", issue.ID, "author", issue.AuthorID)

	return s.store.GetIssue(ctx, issue.ID)
}

// GetIssue returns the issue with its author, assignee, labels and comments.
func (s *Service) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	return s.store.GetIssue(ctx, id)
}

// ResolveIssueID expands a unique ID prefix into a full issue ID.
func (s *Service) ResolveIssueID(ctx context.Context, prefix string) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", &ValidationError{Fields: []FieldError{{Field: "id", Message: "is required"}}}
	}
	ids, err := s.store.FindIssueIDs(ctx, prefix, 2)
	if err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("issue %s: %w", prefix, ErrNotFound)
	case 1:
		return ids[0], nil
	}
	return "", &ValidationError{Fields: []FieldError{{Field: "id", Message: fmt.Sprintf("prefix %q matches more than one issue", prefix)}}}
}

// ListQuery filters and paginates ListIssues. Page is 1-based.
type ListQuery struct {
	Status     string
	Priority   string
	AssigneeID string
	Page       int
	Limit      int
}

// PageMeta describes the window returned by ListIssues.
type PageMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// IssuePage is one page of issues.
type IssuePage struct {
	Data []*models.Issue `json:"data"`
	Meta PageMeta        `json:"meta"`
}

// ListIssues returns the issues matching q, newest first.
func (s *Service) ListIssues(ctx context.Context, q ListQuery) (*IssuePage, error) {
	var fe fieldErrors
	filter := store.IssueListFilter{AssigneeID: strings.TrimSpace(q.AssigneeID)}
	if q.Status != "" {
		filter.Status = models.IssueStatus(strings.ToUpper(q.Status))
		if !filter.Status.Valid() {
			fe.add("status", "must be one of %s", joinEnum(models.IssueStatuses))
		}
	}
	if q.Priority != "" {
		filter.Priority = models.IssuePriority(strings.ToUpper(q.Priority))
		if !filter.Priority.Valid() {
			fe.add("priority", "must be one of %s", joinEnum(models.IssuePriorities))
		}
	}
	if q.Page < 0 {
		fe.add("page", "must be positive")
	}
	if q.Limit < 0 {
		fe.add("limit", "must be positive")
	}
	if err := fe.err(); err != nil {
		return nil, err
	}

	page := max(q.Page, 1)
	limit := q.Limit
	if limit == 0 {
		limit = s.defaultLimit
	}
	limit = min(limit, MaxListLimit)

	var (
		total  int
		issues []*models.Issue
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.store.CountIssues(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		issues, err = s.store.ListIssues(gctx, filter, store.Page{Offset: (page - 1) * limit, Limit: limit})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if issues == nil {
		issues = []*models.Issue{}
	}
	return &IssuePage{
		Data: issues,
		Meta: PageMeta{
			Total:      total,
			Page:       page,
			Limit:      limit,
			TotalPages: (total + limit - 1) / limit,
		},
	}, nil
}

// --- Comments ---

// CommentInput holds the fields of a new comment.
type CommentInput struct {
	Content  string `json:"content"`
	AuthorID string `json:"authorId"`
}

// AddComment attaches a comment to an existing issue, creating the author
// on first reference.
func (s *Service) AddComment(ctx context.Context, issueID string, in CommentInput) (*models.Comment, error) {
	var fe fieldErrors
	in.Content = strings.TrimSpace(in.Content)
	in.AuthorID = strings.TrimSpace(in.AuthorID)
	if in.Content == "" {
		fe.add("content", "is required")
	}
	if in.AuthorID == "" {
		fe.add("authorId", "is required")
	}
	if err := fe.err(); err != nil {
		return nil, err
	}

	if _, err := s.store.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}

	c := &models.Comment{IssueID: issueID, AuthorID: in.AuthorID, Content: in.Content}
	author := models.SyntheticUser(in.AuthorID, models.DefaultUserDomain)
	if err := s.store.CreateComment(ctx, c, author); err != nil {
		return nil, fmt.Errorf("add comment: %w", err)
	}
	c.Author = author
	s.log.DebugContext(ctx, "comment added", "issue", issueID, "comment", c.ID)
	return c, nil
}

// ListComments returns an issue's comments, oldest first.
func (s *Service) ListComments(ctx context.Context, issueID string) ([]*models.Comment, error) {
	if _, err := s.store.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []*models.Comment{}
	}
	return comments, nil
}

// --- Labels ---

// CreateLabel stores a new label. Names are unique.
func (s *Service) CreateLabel(ctx context.Context, name, color string) (*models.Label, error) {
	var fe fieldErrors
	name = strings.TrimSpace(name)
	color = strings.TrimSpace(color)
	if name == "" {
		fe.add("name", "is required")
	}
	if color == "" {
		fe.add("color", "is required")
	}
	if err := fe.err(); err != nil {
		return nil, err
	}

	l := &models.Label{Name: name, Color: color}
	if err := s.store.CreateLabel(ctx, l); err != nil {
		return nil, fmt.Errorf("create label %s: %w", name, err)
	}
	return l, nil
}

func (s *Service) ListLabels(ctx context.Context) ([]*models.Label, error) {
	labels, err := s.store.ListLabels(ctx)
	if err != nil {
		return nil, err
	}
	if labels == nil {
		labels = []*models.Label{}
	}
	return labels, nil
}

// SetIssueLabels replaces the issue's labels with labelIDs. The issue
// version is not changed.
func (s *Service) SetIssueLabels(ctx context.Context, issueID string, labelIDs []string) (*models.Issue, error) {
	if _, err := s.store.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}
	if err := s.store.ReplaceIssueLabels(ctx, issueID, dedupe(labelIDs)); err != nil {
		return nil, fmt.Errorf("set labels: %w", err)
	}
	return s.store.GetIssue(ctx, issueID)
}

func joinEnum[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

// dedupe returns ids with blanks and repeats removed, keeping first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
