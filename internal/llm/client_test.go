package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/pkg/circuitbreaker"
	"github.com/raj-deshmukh6403/AI-Communication-Interview-Helper/pkg/retry"
)

func newStubClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"

	return &Client{
		client:      openai.NewClientWithConfig(cfg),
		model:       "gpt-4o-mini",
		temperature: 0.7,
		maxTokens:   256,
		timeout:     5 * time.Second,
		cb:          circuitbreaker.NewCircuitBreaker("llm-test", circuitbreaker.Config{}),
		retryConfig: retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond},
	}
}

func TestCompleteEmptyChoicesReturnsError(t *testing.T) {
	c := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","choices":[]}`))
	})

	_, err := c.complete(context.Background(), CompletionRequest{
		Operation:  "evaluate_answer",
		UserPrompt: "Evaluate this answer.",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestCompleteReturnsTrimmedContent(t *testing.T) {
	c := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  hello  "}}]}`))
	})

	out, err := c.complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestDefaultEvaluationScores(t *testing.T) {
	eval := defaultEvaluation()

	assert.Equal(t, 75.0, eval.RelevanceScore)
	assert.Equal(t, 75.0, eval.ClarityScore)
	assert.Equal(t, 75.0, eval.CompletenessScore)
	assert.Equal(t, 75.0, eval.SpecificityScore)
	assert.Equal(t, 75.0, eval.OverallScore)
	assert.NotEmpty(t, eval.Feedback)
}

func TestStripJSONFences(t *testing.T) {
	fenced := "```json\n{\"a\": 1}\n```"
	assert.Equal(t, "{\"a\": 1}", stripJSONFences(fenced))
	assert.Equal(t, "{\"a\": 1}", stripJSONFences("{\"a\": 1}"))
}
