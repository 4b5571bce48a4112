package insights

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/atelierhq/recall/internal/config"
	"github.com/atelierhq/recall/internal/memory"
)

// ErrAnalyzerUnavailable marks analyzer failures callers should treat as
// transient: API outages, timeouts, empty responses.
var ErrAnalyzerUnavailable = errors.New("insight analyzer unavailable")

// Analyzer distills a sample of global-tier records into natural-language
// insight strings.
type Analyzer interface {
	Analyze(ctx context.Context, category memory.Category, samples []memory.Record) ([]string, error)
}

const analyzerSystemPrompt = `You analyze anonymized observations collected from a design platform.
Given a list of observations in one category, extract the recurring patterns worth acting on.
Reply with one insight per line, each line starting with "- ". No preamble, no closing remarks.
Skip patterns supported by only a single observation.`

// ClaudeAnalyzer calls the Anthropic Messages API.
type ClaudeAnalyzer struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewClaudeAnalyzer creates an analyzer from config. The returned analyzer is
// safe for concurrent use.
func NewClaudeAnalyzer(cfg config.AnalyzerConfig) *ClaudeAnalyzer {
	return &ClaudeAnalyzer{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     anthropic.Model(cfg.Model),
		maxTokens: 1024,
	}
}

func (a *ClaudeAnalyzer) Analyze(ctx context.Context, category memory.Category, samples []memory.Record) ([]string, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: analyzerSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(category, samples))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("calling analyzer API: %w", ErrAnalyzerUnavailable)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	insights := parseInsights(text.String())
	if len(insights) == 0 {
		return nil, fmt.Errorf("analyzer returned no insights: %w", ErrAnalyzerUnavailable)
	}
	return insights, nil
}

func buildPrompt(category memory.Category, samples []memory.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Category: %s\nObservations (%d):\n", category, len(samples))
	for i, rec := range samples {
		fmt.Fprintf(&b, "%d. [relevance %.2f, seen %dx] %s\n", i+1, rec.RelevanceScore, rec.Frequency, rec.Content)
	}
	return b.String()
}

// parseInsights extracts one insight per non-empty line, tolerating the
// bullet and numbering styles models actually produce.
func parseInsights(text string) []string {
	var insights []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		for _, prefix := range []string{"- ", "* ", "• "} {
			line = strings.TrimPrefix(line, prefix)
		}
		if i := strings.IndexByte(line, '.'); i > 0 && i <= 2 && isDigits(line[:i]) {
			line = strings.TrimSpace(line[i+1:])
		}
		line = strings.TrimSpace(line)
		if line != "" {
			insights = append(insights, line)
		}
	}
	return insights
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
