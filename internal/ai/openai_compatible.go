package ai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"upsell-recommender/internal/metrics"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
}

type OpenAICompatibleClient struct {
	httpClient *http.Client
}

func NewOpenAICompatibleClient(timeout time.Duration) *OpenAICompatibleClient {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &OpenAICompatibleClient{
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *OpenAICompatibleClient) Complete(ctx context.Context, cfg ChatConfig, messages []ChatMessage) (string, error) {
	reqBody := map[string]interface{}{
		"model":       cfg.Model,
		"messages":    messages,
		"stream":      false,
		"temperature": 0.2,
	}
	raw, err := c.post(ctx, cfg, "/chat/completions", reqBody)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse llm json failed: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty llm choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// EmbedBatch returns one embedding per text. Blank texts are rejected because the
// provider would drop them and shift the result order.
func (c *OpenAICompatibleClient) EmbedBatch(ctx context.Context, cfg ChatConfig, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("embedding input %d is empty", i)
		}
	}

	reqBody := map[string]interface{}{
		"model": cfg.EmbeddingModel,
		"input": texts,
	}
	raw, err := c.post(ctx, cfg, "/embeddings", reqBody)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding batch json failed: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(parsed.Data), len(texts))
	}
	result := make([][]float32, len(texts))
	for i, d := range parsed.Data {
		idx := d.Index
		if idx < 0 || idx >= len(texts) || result[idx] != nil {
			idx = i
		}
		result[idx] = d.Embedding
	}
	return result, nil
}

func (c *OpenAICompatibleClient) post(ctx context.Context, cfg ChatConfig, path string, body interface{}) ([]byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal llm request failed: %w", err)
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build llm request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read llm response failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("llm response status %d: %s", resp.StatusCode, truncate(string(raw), 512))
	}
	return raw, nil
}

// HTTPOracle serves both the direct API and the gateway backends; they differ only
// in base URL and key.
type HTTPOracle struct {
	client  *OpenAICompatibleClient
	cfg     ChatConfig
	backend Backend
}

func NewHTTPOracle(backend Backend, cfg ChatConfig, timeout time.Duration) *HTTPOracle {
	return &HTTPOracle{
		client:  NewOpenAICompatibleClient(timeout),
		cfg:     cfg,
		backend: backend,
	}
}

func (o *HTTPOracle) Backend() string {
	return string(o.backend)
}

func (o *HTTPOracle) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := o.client.Complete(ctx, o.cfg, []ChatMessage{
		{Role: "system", Content: "You are a precise e-commerce merchandising assistant. Reply with JSON only."},
		{Role: "user", Content: prompt},
	})
	observe(o.Backend(), start, err)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (o *HTTPOracle) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return o.client.EmbedBatch(ctx, o.cfg, texts)
}

func observe(backend string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.OracleRequests.WithLabelValues(backend, outcome).Inc()
	metrics.OracleLatency.WithLabelValues(backend).Observe(time.Since(start).Seconds())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
