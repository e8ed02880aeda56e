package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joescharf/tracker/internal/models"
)

func TestClassifyIssuePriority(t *testing.T) {
	tests := []struct {
		title    string
		expected models.IssuePriority
	}{
		// High keywords
		{"Critical bug in payment", models.IssuePriorityHigh},
		{"Urgent: fix login", models.IssuePriorityHigh},
		{"Crash on startup", models.IssuePriorityHigh},
		{"Security vulnerability in auth", models.IssuePriorityHigh},
		{"Data loss when saving drafts", models.IssuePriorityHigh},
		{"P0 checkout outage", models.IssuePriorityHigh},

		// Low keywords
		{"Minor alignment issue", models.IssuePriorityLow},
		{"Nice to have: dark mode", models.IssuePriorityLow},
		{"Cosmetic button fix", models.IssuePriorityLow},
		{"Typo on the settings page", models.IssuePriorityLow},
		{"Clean up test fixtures", models.IssuePriorityLow},

		// Default
		{"Add search functionality", models.IssuePriorityMedium},
		{"Support CSV export", models.IssuePriorityMedium},

		// Case insensitivity
		{"CRITICAL failure", models.IssuePriorityHigh},

		// High takes precedence over low
		{"Minor crash in settings", models.IssuePriorityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifyIssuePriority(tt.title))
		})
	}
}
