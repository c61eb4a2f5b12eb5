package suggest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
}

func completionResponse(content string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  "gpt-3.5-turbo",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
	}
}

func TestSuggestParsesModelReply(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		content := "Here are some ideas:\n" +
			"- Cache the fibonacci results to avoid recomputation\n" +
			"2. Replace recursion with an iterative loop\n" +
			"- no\n" +
			"not a list item at all\n"
		_ = json.NewEncoder(w).Encode(completionResponse(content))
	})

	suggestions, fallback := c.Suggest(context.Background(), "fib(n)", "javascript", "")
	assert.False(t, fallback)
	assert.Equal(t, []string{
		"Cache the fibonacci results to avoid recomputation",
		"Replace recursion with an iterative loop",
	}, suggestions)
}

func TestSuggestFallsBackOnUpstreamError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	suggestions, fallback := c.Suggest(context.Background(), "x=1", "python", "")
	assert.True(t, fallback)
	assert.Equal(t, FallbackSuggestions, suggestions)
}

func TestSuggestFallsBackOnUnparseableReply(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionResponse("The code looks fine to me."))
	})

	suggestions, fallback := c.Suggest(context.Background(), "x=1", "python", "")
	assert.True(t, fallback)
	assert.NotEmpty(t, suggestions, "fallback list must never be empty")
}

func TestParseSuggestions(t *testing.T) {
	content := "• Use a map instead of a linear scan here\n" +
		"* Extract the parsing logic into its own function\n" +
		"10. Guard against nil before dereferencing the pointer\n" +
		"- tiny\n" +
		"\n" +
		"closing prose that should be ignored"

	got := ParseSuggestions(content)
	assert.Equal(t, []string{
		"Use a map instead of a linear scan here",
		"Extract the parsing logic into its own function",
		"Guard against nil before dereferencing the pointer",
	}, got)
}

func TestBuildPrompt(t *testing.T) {
	p := buildPrompt("x=1", "python", "focus on naming")
	assert.Contains(t, p, "Analyze this python")
	assert.Contains(t, p, "```python\nx=1\n```")
	assert.Contains(t, p, "focus on naming")

	p = buildPrompt("x=1", "", "")
	assert.Contains(t, p, "Analyze this code")
}
