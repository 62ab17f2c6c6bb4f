package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/domain"
)

func TestRenderPrompt(t *testing.T) {
	p, err := RenderPrompt("What is the fee?", []string{"Fee is 5%.", "Paid monthly."})
	require.NoError(t, err)
	assert.Equal(t, "You are a retrieval-augmented assistant. Answer strictly using provided context.", p.System)
	assert.Equal(t, "Question:\nWhat is the fee?\n\nContext:\nFee is 5%.\n\n---\n\nPaid monthly.", p.User)
	assert.Contains(t, p.String(), "[system]")
}

func TestRenderPromptCapsSnippets(t *testing.T) {
	snippets := make([]string, 30)
	for i := range snippets {
		snippets[i] = fmt.Sprintf("s%02d", i)
	}
	p, err := RenderPrompt("q", snippets)
	require.NoError(t, err)
	assert.Contains(t, p.User, "s19")
	assert.NotContains(t, p.User, "s20")
	assert.Equal(t, MaxPromptSnippets-1, strings.Count(p.User, "---"))
}

func TestRenderPromptNoSnippets(t *testing.T) {
	p, err := RenderPrompt("q", nil)
	require.NoError(t, err)
	assert.Equal(t, "Question:\nq\n\nContext:", p.User)
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestOpenAIGenerator(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "cmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gemini-1.5-flash",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "The fee is 5%."}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	answer, err := g.Generate(context.Background(), "What is the fee?", []string{"Fee is 5%."})
	require.NoError(t, err)
	assert.Equal(t, "The fee is 5%.", answer)
	assert.Equal(t, DefaultModel, got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Contains(t, got.Messages[1].Content, "Fee is 5%.")
}

func TestOpenAIGeneratorRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Resource has been exhausted","code":429}}`))
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "q", []string{"c"})
	var rl *domain.RateLimitError
	require.True(t, errors.As(err, &rl), "got %v", err)
	assert.Equal(t, 30*time.Second, rl.RetryAfter)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestOpenAIGeneratorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "q", nil)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.False(t, errors.Is(err, domain.ErrRateLimited))
}

func TestContextGenerator(t *testing.T) {
	out, err := ContextGenerator{}.Generate(context.Background(), "q", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "a\n\n---\n\nb", out)
	assert.Equal(t, "none", ContextGenerator{}.ModelName())
}
