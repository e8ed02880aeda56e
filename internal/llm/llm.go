package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ExtractedIssue holds a single issue extracted from free-form notes.
type ExtractedIssue struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// TriageInput is the issue content sent for triage.
type TriageInput struct {
	Title       string
	Description string
	Status      string
	Priority    string
	Comments    []string
}

// Suggestion is the model's triage advice for one issue.
type Suggestion struct {
	Priority  string `json:"priority"`
	Summary   string `json:"summary"`
	Rationale string `json:"rationale"`
}

// Client wraps the Anthropic API for issue triage and extraction.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildTriagePrompt constructs the system and user prompts for triage.
func buildTriagePrompt(in TriageInput) (system string, user string) {
	system = `You triage issues for a small engineering team. Given an issue, return a JSON object with exactly three fields:
- "priority": one of "LOW", "MEDIUM", "HIGH"
- "summary": a single sentence describing the problem
- "rationale": one or two sentences explaining the priority

Rules:
- Data loss, outages and security problems are HIGH
- Cosmetic problems and nice-to-haves are LOW
- When unsure, answer MEDIUM
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Title: ")
	sb.WriteString(in.Title)
	sb.WriteString("\n")
	if in.Status != "" {
		sb.WriteString("Status: ")
		sb.WriteString(in.Status)
		sb.WriteString("\n")
	}
	if in.Priority != "" {
		sb.WriteString("Current priority: ")
		sb.WriteString(in.Priority)
		sb.WriteString("\n")
	}
	sb.WriteString("\nDescription:\n")
	sb.WriteString(in.Description)
	sb.WriteString("\n")
	if len(in.Comments) > 0 {
		sb.WriteString("\nComments:\n")
		for _, c := range in.Comments {
			sb.WriteString("- ")
			sb.WriteString(c)
			sb.WriteString("\n")
		}
	}
	user = sb.String()
	return
}

// buildExtractPrompt constructs the system and user prompts for extracting
// issues from markdown notes.
func buildExtractPrompt(content string) (system string, user string) {
	system = `You extract structured issues from markdown notes. Return ONLY a JSON array of objects with these fields:
- "title": concise issue title
- "description": one or two sentences describing the issue; never empty
- "priority": one of "LOW", "MEDIUM", "HIGH"

Rules:
- Each numbered/bulleted item is one issue
- Default priority to "MEDIUM" unless context suggests otherwise
- Never create placeholder issues like "no issues specified" or "N/A"
- Return valid JSON only, no markdown fencing or explanation`

	user = "Extract issues from this markdown:\n\n" + content
	return
}

// Triage asks the model for a suggested priority and summary. It never
// changes the issue.
func (c *Client) Triage(ctx context.Context, in TriageInput) (*Suggestion, error) {
	systemPrompt, userPrompt := buildTriagePrompt(in)

	text, err := c.complete(ctx, systemPrompt, userPrompt, 1024)
	if err != nil {
		return nil, err
	}

	var s Suggestion
	if err := decodeJSON(text, &s); err != nil {
		return nil, err
	}
	s.Priority = strings.ToUpper(strings.TrimSpace(s.Priority))
	return &s, nil
}

// ExtractIssues sends markdown content to the LLM and returns structured issues.
func (c *Client) ExtractIssues(ctx context.Context, content string) ([]ExtractedIssue, error) {
	systemPrompt, userPrompt := buildExtractPrompt(content)

	text, err := c.complete(ctx, systemPrompt, userPrompt, 4096)
	if err != nil {
		return nil, err
	}

	var issues []ExtractedIssue
	if err := decodeJSON(text, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// complete sends one system+user exchange and returns the first text block.
func (c *Client) complete(ctx context.Context, system, user string, maxTokens int64) (string, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in API response")
}

// stripFence removes a surrounding markdown code fence, if present.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}

func decodeJSON(text string, v any) error {
	text = stripFence(text)
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	return nil
}
