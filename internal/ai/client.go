package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"recruitrack/pkg/circuitbreaker"
	"recruitrack/pkg/config"
	"recruitrack/pkg/metrics"
	"recruitrack/pkg/otel"
	"recruitrack/pkg/trace"
)

// Client talks to an OpenAI compatible API (/chat/completions, /embeddings).
type Client struct {
	cfg        config.AIConfig
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewClient(cfg config.AIConfig, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	cbConfig := circuitbreaker.DefaultConfig()
	cbConfig.FailureThreshold = 3
	cbConfig.HalfOpenMaxRequests = 2
	cbConfig.OnStateChange = func(from, to circuitbreaker.State) {
		metrics.SetCircuitBreakerState("ai", int(to))
		logger.Warn("AI circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cb:         circuitbreaker.NewCircuitBreaker(cbConfig),
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

const classifySystemPrompt = `You classify recruitment emails. Answer with a single JSON object:
{"category": one of the allowed labels, "confidence": number between 0 and 1, "reasoning": short explanation}.`

// ClassifyText asks the model to pick one of labels for text.
func (c *Client) ClassifyText(ctx context.Context, text string, labels []string, hint string) (*Classification, error) {
	var prompt strings.Builder
	if hint != "" {
		prompt.WriteString(hint)
		prompt.WriteString("\n\n")
	}
	fmt.Fprintf(&prompt, "Allowed labels: %s\n\nEmail:\n%s", strings.Join(labels, ", "), text)

	content, err := c.chat(ctx, "classify_text", classifySystemPrompt, prompt.String(), 0.1, 200)
	if err != nil {
		return nil, err
	}

	var out Classification
	if err := decodeObject(content, &out); err != nil {
		return nil, err
	}
	out.Label = strings.TrimSpace(out.Label)
	return &out, nil
}

const extractSystemPrompt = `You extract structured data from recruitment emails. Answer with a single
JSON object that follows the given JSON schema. Use null for unknown fields.`

func (c *Client) ExtractStructured(ctx context.Context, text string, schema []byte) (map[string]any, error) {
	prompt := fmt.Sprintf("JSON schema:\n%s\n\nEmail:\n%s", schema, text)

	content, err := c.chat(ctx, "extract_structured", extractSystemPrompt, prompt, c.cfg.Temperature, c.cfg.MaxTokens)
	if err != nil {
		return nil, err
	}

	out := map[string]any{}
	if err := decodeObject(content, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp embedResponse
	err := c.call(ctx, "embed", "/embeddings", embedRequest{Model: c.cfg.EmbedModel, Input: texts}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrInvalidResponse, len(texts), len(resp.Data))
	}

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

func (c *Client) chat(ctx context.Context, capability, system, user string, temperature float64, maxTokens int) (string, error) {
	req := chatRequest{
		Model: c.cfg.ChatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    temperature,
		MaxTokens:      maxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	var resp chatResponse
	if err := c.call(ctx, capability, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// call POSTs body to path through the circuit breaker and decodes the JSON answer into out.
func (c *Client) call(ctx context.Context, capability, path string, body, out any) (err error) {
	ctx, span := otel.StartSpan(ctx, "ai."+capability, attribute.String("ai.endpoint", path))
	defer func() { otel.EndSpan(span, err) }()

	err = c.cb.Execute(func() error {
		start := time.Now()
		b, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return marshalErr
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(b))
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}
		if traceID := trace.FromContext(ctx); traceID != "" {
			req.Header.Set(trace.HeaderName, traceID)
		}

		resp, doErr := c.httpClient.Do(req)
		latency := time.Since(start)
		if doErr != nil {
			metrics.RecordAICallLatency(capability, "error", latency)
			return fmt.Errorf("failed to call ai service: %w", doErr)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			metrics.RecordAICallLatency(capability, fmt.Sprintf("%d", resp.StatusCode), latency)
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("ai service returned error %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		}

		metrics.RecordAICallLatency(capability, "success", latency)
		if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, decodeErr)
		}
		return nil
	})

	if err != nil {
		c.logger.Warn("AI call failed",
			zap.String("capability", capability),
			zap.String("trace_id", trace.FromContext(ctx)),
			zap.Error(err),
		)
	}
	return err
}
