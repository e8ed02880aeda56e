package tracker

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/joescharf/tracker/internal/llm"
	"github.com/joescharf/tracker/internal/store"
)

// LatencyReport is the mean time from creation to close over closed issues.
type LatencyReport struct {
	AverageResolutionTimeMs      int64   `json:"averageResolutionTimeMs"`
	AverageResolutionTimeMinutes float64 `json:"averageResolutionTimeMinutes"`
	Count                        int     `json:"count"`
}

// ResolutionLatency averages closedAt - createdAt over every CLOSED issue.
// With no closed issues all fields are zero.
func (s *Service) ResolutionLatency(ctx context.Context) (*LatencyReport, error) {
	spans, err := s.store.ClosedIssueSpans(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolution latency: %w", err)
	}
	report := &LatencyReport{Count: len(spans)}
	if len(spans) == 0 {
		return report, nil
	}

	var total time.Duration
	for _, sp := range spans {
		total += sp.ClosedAt.Sub(sp.CreatedAt)
	}
	avg := total / time.Duration(len(spans))
	report.AverageResolutionTimeMs = avg.Milliseconds()
	report.AverageResolutionTimeMinutes = math.Round(avg.Minutes()*100) / 100
	return report, nil
}

// TopAssignees returns the n users with the most unresolved issues. A
// non-positive n uses the configured default.
func (s *Service) TopAssignees(ctx context.Context, n int) ([]store.AssigneeCount, error) {
	if n <= 0 {
		n = s.topN
	}
	counts, err := s.store.CountUnresolvedByAssignee(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("top assignees: %w", err)
	}
	for i := range counts {
		if counts[i].Username == "" {
			counts[i].Username = "Unknown"
		}
	}
	if counts == nil {
		counts = []store.AssigneeCount{}
	}
	return counts, nil
}

// Triage asks the configured LLM for advice on an issue. The issue is not
// modified.
func (s *Service) Triage(ctx context.Context, id string) (*llm.Suggestion, error) {
	if s.triager == nil {
		return nil, ErrTriageUnavailable
	}
	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}

	in := llm.TriageInput{
		Title:       issue.Title,
		Description: issue.Description,
		Status:      string(issue.Status),
		Priority:    string(issue.Priority),
	}
	for _, c := range issue.Comments {
		in.Comments = append(in.Comments, c.Content)
	}

	suggestion, err := s.triager.Triage(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("triage issue %s: %w", id, err)
	}
	return suggestion, nil
}
