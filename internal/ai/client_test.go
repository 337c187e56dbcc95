package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"recruitrack/pkg/circuitbreaker"
	"recruitrack/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.AIConfig{
		Enabled:    true,
		BaseURL:    srv.URL + "/",
		APIKey:     "secret",
		ChatModel:  "chat-small",
		EmbedModel: "embed-small",
		Timeout:    2 * time.Second,
	}, zap.NewNop())
}

func chatAnswer(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
}

func TestClassifyText(t *testing.T) {
	var got chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		chatAnswer(w, "```json\n{\"category\": \" interview \", \"confidence\": 0.92, \"reasoning\": \"asks for a meeting\"}\n```")
	})

	res, err := client.ClassifyText(context.Background(), "Entretien mardi", []string{"interview", "other"}, "recruitment emails")
	require.NoError(t, err)
	assert.Equal(t, "interview", res.Label)
	assert.InDelta(t, 0.92, res.Confidence, 1e-9)
	assert.Equal(t, "asks for a meeting", res.Reasoning)

	assert.Equal(t, "chat-small", got.Model)
	assert.Equal(t, 200, got.MaxTokens)
	assert.InDelta(t, 0.1, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[1].Content, "interview, other")
	assert.Contains(t, got.Messages[1].Content, "recruitment emails")
}

func TestClassifyTextInvalidAnswer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatAnswer(w, "I think it is an interview")
	})

	_, err := client.ClassifyText(context.Background(), "x", []string{"interview"}, "")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestExtractStructured(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Messages[1].Content, `"company_name"`)
		chatAnswer(w, `{"company_name": "TechCorp", "job_title": null}`)
	})

	out, err := client.ExtractStructured(context.Background(), "mail", []byte(`{"properties":{"company_name":{}}}`))
	require.NoError(t, err)
	assert.Equal(t, "TechCorp", out["company_name"])
	assert.Nil(t, out["job_title"])
}

func TestEmbedSortsByIndex(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float64{0, 1}},
				{"index": 0, "embedding": []float64{1, 0}},
			},
		})
	})

	vectors, err := client.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}}, vectors)
}

func TestEmbedLengthMismatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{}})
	})

	_, err := client.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestCircuitOpensAfterFailures(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	for i := 0; i < 3; i++ {
		_, err := client.Embed(context.Background(), []string{"a"})
		require.Error(t, err)
	}
	_, err := client.Embed(context.Background(), []string{"a"})
	assert.True(t, errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen))
	assert.Equal(t, 3, calls)
}

func TestUnavailable(t *testing.T) {
	var svc Service = Unavailable{}
	_, err := svc.ClassifyText(context.Background(), "", nil, "")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = svc.ExtractStructured(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = svc.Embed(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}
