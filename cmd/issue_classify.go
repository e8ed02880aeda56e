package cmd

import (
	"strings"

	"github.com/joescharf/tracker/internal/models"
)

var (
	highPriorityKeywords = []string{
		"critical", "urgent", "blocker", "crash", "security",
		"data loss", "production down", "outage", "p0", "p1",
	}
	lowPriorityKeywords = []string{
		"minor", "nice to have", "cosmetic", "trivial", "typo",
		"low priority", "cleanup", "clean up",
	}
)

// classifyIssuePriority infers the issue priority from the title using keyword heuristics.
// High keywords are checked before low keywords. Defaults to MEDIUM.
func classifyIssuePriority(title string) models.IssuePriority {
	lower := strings.ToLower(title)

	for _, kw := range highPriorityKeywords {
		if strings.Contains(lower, kw) {
			return models.IssuePriorityHigh
		}
	}
	for _, kw := range lowPriorityKeywords {
		if strings.Contains(lower, kw) {
			return models.IssuePriorityLow
		}
	}
	return models.IssuePriorityMedium
}
