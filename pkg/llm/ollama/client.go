// Package ollama implements an embeddings client for a local Ollama server.
package ollama

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

// Config for the Ollama embeddings client.
type Config struct {
	BaseURL     string // default http://localhost:11434
	Model       string // e.g. "nomic-embed-text"
	Dimension   int
	Concurrency int // parallel embedding requests
	Timeout     time.Duration
}

// Client wraps the Ollama embeddings HTTP API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new Ollama client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

func (c *Client) Dimension() int { return c.cfg.Dimension }

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates embeddings for all texts with bounded parallelism,
// preserving input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	type result struct {
		index     int
		embedding []float32
		err       error
	}
	results := make(chan result, len(texts))
	semaphore := make(chan struct{}, c.cfg.Concurrency)

	for i, text := range texts {
		go func(index int, prompt string) {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			emb, err := c.embedOne(ctx, prompt)
			results <- result{index: index, embedding: emb, err: err}
		}(i, text)
	}

	embeddings := make([][]float32, len(texts))
	for range texts {
		res := <-results
		if res.err != nil {
			return nil, fmt.Errorf("embedding failed for text %d: %w", res.index, res.err)
		}
		embeddings[res.index] = res.embedding
	}
	return embeddings, nil
}

func (c *Client) embedOne(ctx context.Context, prompt string) ([]float32, error) {
	data, err := json.Marshal(embeddingRequest{Model: c.cfg.Model, Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, llm.ClassifyTransport("ollama", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.ClassifyTransport("ollama", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, llm.ClassifyHTTP("ollama", resp.StatusCode, string(bodyBytes))
	}

	var apiResp embeddingResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, llm.Malformed("ollama", fmt.Sprintf("decode response: %v", err))
	}
	if len(apiResp.Embedding) == 0 {
		return nil, llm.Malformed("ollama", "empty embedding in response")
	}
	if c.cfg.Dimension > 0 && len(apiResp.Embedding) != c.cfg.Dimension {
		return nil, llm.Malformed("ollama", fmt.Sprintf("dimension %d, want %d", len(apiResp.Embedding), c.cfg.Dimension))
	}
	return apiResp.Embedding, nil
}

// Ping checks connectivity to the Ollama server.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status: %d", resp.StatusCode)
	}
	return nil
}
