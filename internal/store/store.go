package store

import (
	"context"
	"errors"
	"time"

	"github.com/joescharf/tracker/internal/models"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConstraint is returned when a write violates a foreign key or check
	// constraint, e.g. an assignee or label that does not exist.
	ErrConstraint = errors.New("constraint violation")

	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")

	// ErrIncompleteSet is returned by bulk operations when some of the
	// requested records do not exist. Nothing is written in that case.
	ErrIncompleteSet = errors.New("one or more records not found")
)

// IssueListFilter specifies filters for listing issues.
type IssueListFilter struct {
	Status     models.IssueStatus
	Priority   models.IssuePriority
	AssigneeID string
}

// Page selects a window of an ordered result. A zero Limit means no limit.
type Page struct {
	Offset int
	Limit  int
}

// AssigneeCount is one row of the per-assignee workload aggregation.
type AssigneeCount struct {
	AssigneeID string `json:"assigneeId"`
	Username   string `json:"username"`
	Count      int    `json:"count"`
}

// IssueSpan holds the lifecycle timestamps of a closed issue.
type IssueSpan struct {
	CreatedAt time.Time
	ClosedAt  time.Time
}

// Store defines the persistence interface for tracker.
type Store interface {
	// Users
	EnsureUser(ctx context.Context, u *models.User) (bool, error)
	GetUser(ctx context.Context, id string) (*models.User, error)

	// Issues
	CreateIssue(ctx context.Context, issue *models.Issue, author *models.User) error
	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	ListIssues(ctx context.Context, filter IssueListFilter, page Page) ([]*models.Issue, error)
	CountIssues(ctx context.Context, filter IssueListFilter) (int, error)
	FindIssueIDs(ctx context.Context, prefix string, limit int) ([]string, error)
	ConditionalUpdateIssue(ctx context.Context, id string, expectedVersion int, patch models.IssuePatch) (int64, error)
	BulkUpdateIssueStatus(ctx context.Context, ids []string, status models.IssueStatus) (int64, error)

	// Comments
	CreateComment(ctx context.Context, c *models.Comment, author *models.User) error
	ListComments(ctx context.Context, issueID string) ([]*models.Comment, error)

	// Labels
	CreateLabel(ctx context.Context, label *models.Label) error
	ListLabels(ctx context.Context) ([]*models.Label, error)
	GetLabelByName(ctx context.Context, name string) (*models.Label, error)
	ReplaceIssueLabels(ctx context.Context, issueID string, labelIDs []string) error
	GetIssueLabels(ctx context.Context, issueID string) ([]*models.Label, error)

	// Reports
	ClosedIssueSpans(ctx context.Context) ([]IssueSpan, error)
	CountUnresolvedByAssignee(ctx context.Context, limit int) ([]AssigneeCount, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
