package tracker

import (
	"context"
	"fmt"

	"github.com/joescharf/tracker/internal/models"
)

// BulkSetStatus moves every listed issue to status, or none of them. Per-issue
// versions are not checked, but each one is incremented. A missing id fails
// the whole call with ErrPartialSetNotFound.
func (s *Service) BulkSetStatus(ctx context.Context, ids []string, status models.IssueStatus) (int64, error) {
	var fe fieldErrors
	unique := dedupe(ids)
	if len(unique) == 0 {
		fe.add("issueIds", "must contain at least one id")
	}
	if !status.Valid() {
		fe.add("status", "must be one of %s", joinEnum(models.IssueStatuses))
	}
	if err := fe.err(); err != nil {
		return 0, err
	}

	n, err := s.store.BulkUpdateIssueStatus(ctx, unique, status)
	if err != nil {
		return 0, fmt.Errorf("bulk set status: %w", err)
	}
	s.log.InfoContext(ctx, "bulk status updated", "status", status, "count", n)
	return n, nil
}
