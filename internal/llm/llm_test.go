package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTriagePrompt(t *testing.T) {
	t.Run("with all fields", func(t *testing.T) {
		system, user := buildTriagePrompt(TriageInput{
			Title:       "Login broken",
			Description: "Users cannot sign in after the deploy",
			Status:      "OPEN",
			Priority:    "LOW",
			Comments:    []string{"Seeing this too", "Started at 10:00"},
		})

		assert.Contains(t, system, "JSON object")
		assert.Contains(t, system, `"priority"`)
		assert.Contains(t, system, `"summary"`)
		assert.Contains(t, system, `"rationale"`)

		assert.Contains(t, user, "Title: Login broken")
		assert.Contains(t, user, "Status: OPEN")
		assert.Contains(t, user, "Current priority: LOW")
		assert.Contains(t, user, "Users cannot sign in")
		assert.Contains(t, user, "- Seeing this too\n")
	})

	t.Run("without comments", func(t *testing.T) {
		_, user := buildTriagePrompt(TriageInput{Title: "T", Description: "D"})

		assert.NotContains(t, user, "Comments:")
		assert.NotContains(t, user, "Status:")
	})

	t.Run("system prompt specifies valid priorities", func(t *testing.T) {
		system, _ := buildTriagePrompt(TriageInput{})

		assert.Contains(t, system, `"LOW"`)
		assert.Contains(t, system, `"MEDIUM"`)
		assert.Contains(t, system, `"HIGH"`)
	})
}

func TestBuildExtractPrompt(t *testing.T) {
	content := strings.Repeat("x", 10000)
	system, user := buildExtractPrompt(content)

	assert.Contains(t, system, "JSON array")
	assert.Contains(t, system, `"description"`)
	assert.Contains(t, user, content)
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n[1,2]\n```\n", `[1,2]`},
		{"surrounding space", "  {}  ", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFence(tt.in))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var s Suggestion
	require.NoError(t, decodeJSON("```json\n{\"priority\":\"high\",\"summary\":\"s\"}\n```", &s))
	assert.Equal(t, "high", s.Priority)
	assert.Equal(t, "s", s.Summary)

	err := decodeJSON("not json", &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "raw response: not json")
}
