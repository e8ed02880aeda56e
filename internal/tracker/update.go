package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joescharf/tracker/internal/models"
)

func validatePatch(patch *models.IssuePatch, expectedVersion int) error {
	var fe fieldErrors
	if patch.Title != nil {
		t := strings.TrimSpace(*patch.Title)
		patch.Title = &t
		if t == "" {
			fe.add("title", "must not be empty")
		}
	}
	if patch.Description != nil {
		d := strings.TrimSpace(*patch.Description)
		patch.Description = &d
		if d == "" {
			fe.add("description", "must not be empty")
		}
	}
	if patch.Status != nil && !patch.Status.Valid() {
		fe.add("status", "must be one of %s", joinEnum(models.IssueStatuses))
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		fe.add("priority", "must be one of %s", joinEnum(models.IssuePriorities))
	}
	if patch.AssigneeSet && patch.AssigneeID != nil && strings.TrimSpace(*patch.AssigneeID) == "" {
		fe.add("assigneeId", "must not be empty; use null to unassign")
	}
	if expectedVersion < models.InitialVersion {
		fe.add("version", "must be a positive integer")
	}
	return fe.err()
}

// UpdateIssue applies patch only if the stored version still equals
// expectedVersion. On success the issue comes back at expectedVersion+1.
// A stale version yields a *ConflictError and leaves the issue untouched.
// Conflicts are never retried here.
func (s *Service) UpdateIssue(ctx context.Context, id string, patch models.IssuePatch, expectedVersion int) (*models.Issue, error) {
	if err := validatePatch(&patch, expectedVersion); err != nil {
		return nil, err
	}

	n, err := s.store.ConditionalUpdateIssue(ctx, id, expectedVersion, patch)
	if err != nil {
		return nil, fmt.Errorf("update issue %s: %w", id, err)
	}

	if n == 0 {
		current, err := s.store.GetIssue(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("update issue %s: %w", id, err)
		}
		s.log.WarnContext(ctx, "version conflict", "id", id, "expected", expectedVersion, "current", current.Version)
		return nil, &ConflictError{ID: id, ExpectedVersion: expectedVersion, CurrentVersion: current.Version}
	}

	updated, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "issue updated", "id", id, "version", updated.Version)
	return updated, nil
}
