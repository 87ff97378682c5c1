package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codecontextai/codecontext/pkg/llm"
)

// EmbedderConfig configures an OpenAI-compatible embeddings backend.
type EmbedderConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	BatchSize int // texts per request
	Timeout   time.Duration
}

// Embedder calls an OpenAI-compatible /embeddings endpoint.
type Embedder struct {
	cfg        EmbedderConfig
	httpClient *http.Client
	maxRetries int
}

// NewEmbedder creates an embeddings client.
func NewEmbedder(cfg EmbedderConfig) *Embedder {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	return &Embedder{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: 3,
	}
}

func (e *Embedder) Dimension() int { return e.cfg.Dimension }

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per input text, in input order. Batches are sized
// by config; a failed batch fails the whole call.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(texts))
		vectors, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	data, err := json.Marshal(embeddingRequest{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		vectors, err := e.doOnce(ctx, data, len(texts))
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !llm.IsRetryable(err) || attempt == e.maxRetries {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, llm.ClassifyTransport("embeddings", ctx.Err())
		case <-time.After(retryDelay(attempt)):
		}
	}
	return nil, lastErr
}

func (e *Embedder) doOnce(ctx context.Context, body []byte, want int) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, llm.ClassifyTransport("embeddings", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.ClassifyTransport("embeddings", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, llm.ClassifyHTTP("embeddings", resp.StatusCode, string(bodyBytes))
	}

	var apiResp embeddingResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, llm.Malformed("embeddings", fmt.Sprintf("decode response: %v", err))
	}
	if len(apiResp.Data) != want {
		return nil, llm.Malformed("embeddings", fmt.Sprintf("got %d embeddings, want %d", len(apiResp.Data), want))
	}

	// The API reports indices; order by them rather than trusting array order.
	vectors := make([][]float32, want)
	for _, d := range apiResp.Data {
		if d.Index < 0 || d.Index >= want || len(d.Embedding) == 0 {
			return nil, llm.Malformed("embeddings", "embedding index out of range or empty vector")
		}
		if e.cfg.Dimension > 0 && len(d.Embedding) != e.cfg.Dimension {
			return nil, llm.Malformed("embeddings", fmt.Sprintf("dimension %d, want %d", len(d.Embedding), e.cfg.Dimension))
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
