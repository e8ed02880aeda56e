package models

import "time"

// IssueStatus represents the state of an issue.
type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "OPEN"
	IssueStatusInProgress IssueStatus = "IN_PROGRESS"
	IssueStatusClosed     IssueStatus = "CLOSED"
)

// IssueStatuses lists every legal status in display order.
var IssueStatuses = []IssueStatus{IssueStatusOpen, IssueStatusInProgress, IssueStatusClosed}

// Valid reports whether s is one of the known statuses.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusOpen, IssueStatusInProgress, IssueStatusClosed:
		return true
	}
	return false
}

// IssuePriority represents the urgency of an issue.
type IssuePriority string

const (
	IssuePriorityLow    IssuePriority = "LOW"
	IssuePriorityMedium IssuePriority = "MEDIUM"
	IssuePriorityHigh   IssuePriority = "HIGH"
)

// IssuePriorities lists every legal priority from lowest to highest.
var IssuePriorities = []IssuePriority{IssuePriorityLow, IssuePriorityMedium, IssuePriorityHigh}

// Valid reports whether p is one of the known priorities.
func (p IssuePriority) Valid() bool {
	switch p {
	case IssuePriorityLow, IssuePriorityMedium, IssuePriorityHigh:
		return true
	}
	return false
}

// InitialVersion is the version every issue starts at.
const InitialVersion = 1

// Issue is a tracked work item. Version increases by one on every mutation
// and guards concurrent edits.
type Issue struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      IssueStatus   `json:"status"`
	Priority    IssuePriority `json:"priority"`
	AuthorID    string        `json:"authorId"`
	AssigneeID  *string       `json:"assigneeId"`
	Version     int           `json:"version"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	ClosedAt    *time.Time    `json:"closedAt,omitempty"`

	Author   *User      `json:"author,omitempty"`
	Assignee *User      `json:"assignee,omitempty"`
	Labels   []*Label   `json:"labels,omitempty"`
	Comments []*Comment `json:"comments,omitempty"`
}

// IssuePatch is a partial update. Nil fields are left untouched.
// AssigneeSet marks the assignee as part of the patch; with a nil
// AssigneeID it clears the assignee.
type IssuePatch struct {
	Title       *string
	Description *string
	Status      *IssueStatus
	Priority    *IssuePriority
	AssigneeSet bool
	AssigneeID  *string
}

// Empty reports whether the patch changes no fields.
func (p IssuePatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Priority == nil && !p.AssigneeSet
}
