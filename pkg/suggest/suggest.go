// Package suggest asks an OpenAI chat model for code-review suggestions and
// guarantees a non-empty advisory list even when the upstream is down.
package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are an expert code reviewer and programming mentor. " +
	"Provide concise, actionable suggestions to improve code quality, performance, and best practices."

// FallbackSuggestions is returned whenever the upstream call fails or yields
// nothing usable. The caller must never receive zero actionable output.
var FallbackSuggestions = []string{
	"Consider adding error handling around operations that can fail",
	"Look into optimizing your algorithm for better performance",
	"Add input validation to handle edge cases",
	"Consider breaking down complex functions into smaller ones",
	"Use meaningful variable names for better readability",
}

type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
	BaseURL   string // override for tests / proxies
}

type Client struct {
	api       *openai.Client
	model     string
	maxTokens int
}

func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = openai.GPT3Dot5Turbo
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:       openai.NewClientWithConfig(apiCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Suggest returns an ordered list of short advisory strings for the given
// source. The second return reports whether the fixed fallback list was used
// because the upstream failed or returned nothing parseable.
func (c *Client) Suggest(ctx context.Context, code, language, prompt string) ([]string, bool) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(code, language, prompt)},
		},
		MaxTokens:   c.maxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		slog.Warn("suggestion upstream call failed", "err", err)
		return FallbackSuggestions, true
	}
	if len(resp.Choices) == 0 {
		return FallbackSuggestions, true
	}

	suggestions := ParseSuggestions(resp.Choices[0].Message.Content)
	if len(suggestions) == 0 {
		return FallbackSuggestions, true
	}
	return suggestions, false
}

func buildPrompt(code, language, custom string) string {
	if language == "" {
		language = "code"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this %s and provide helpful suggestions for improvement:\n\n", language)
	fmt.Fprintf(&b, "CODE:\n```%s\n%s\n```\n", language, code)
	if custom != "" {
		b.WriteString("\n")
		b.WriteString(custom)
		b.WriteString("\n")
	}
	return b.String()
}

// ParseSuggestions extracts bullet or numbered lines from a model reply,
// stripping list markers and dropping fragments too short to act on.
func ParseSuggestions(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !isListItem(line) {
			continue
		}
		line = strings.TrimLeft(line, "•-*0123456789. \t")
		line = strings.TrimSpace(line)
		if len(line) > 10 {
			out = append(out, line)
		}
	}
	return out
}

func isListItem(line string) bool {
	if line == "" {
		return false
	}
	if strings.HasPrefix(line, "•") || strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*") {
		return true
	}
	return line[0] >= '0' && line[0] <= '9'
}
