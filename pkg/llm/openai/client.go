// Package openai implements an OpenAI-compatible chat provider. The same
// wire shape serves xAI Grok, Moonshot Kimi (via NVIDIA NIM) and any other
// /chat/completions endpoint; only BaseURL and credentials differ.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/codecontextai/codecontext/pkg/llm"
)

// Config for an OpenAI-compatible chat client.
type Config struct {
	ID      string // provider id, e.g. "grok"
	Name    string // display name
	BaseURL string // e.g. "https://api.x.ai/v1"
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client wraps one OpenAI-compatible /chat/completions backend.
type Client struct {
	cfg        Config
	httpClient *http.Client
	maxRetries int
}

// NewClient creates a client for one configured provider.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: 3,
	}
}

func (c *Client) Descriptor() llm.Descriptor {
	return llm.Descriptor{ID: c.cfg.ID, Name: c.cfg.Name, Model: c.cfg.Model}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// GenerateChatReply answers a question with system context and history.
func (c *Client) GenerateChatReply(ctx context.Context, req llm.ChatRequest) (string, error) {
	messages := make([]message, 0, len(req.History)+2)
	messages = append(messages, message{Role: "system", Content: req.SystemContext})
	for _, m := range req.History {
		messages = append(messages, message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, message{Role: "user", Content: req.Question})

	return c.complete(ctx, chatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: llm.ChatTemperature,
		MaxTokens:   llm.ChatMaxTokens,
	})
}

// GenerateEdit returns the full proposed replacement content for a file.
func (c *Client) GenerateEdit(ctx context.Context, req llm.EditRequest) (string, error) {
	content, err := c.complete(ctx, chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "user", Content: llm.RenderEditPrompt(req)},
		},
		Temperature: llm.EditTemperature,
		MaxTokens:   llm.EditMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return llm.StripCodeFence(content), nil
}

// complete posts one chat completion with bounded retry on rate limiting.
func (c *Client) complete(ctx context.Context, reqBody chatCompletionRequest) (string, error) {
	if c.cfg.APIKey == "" {
		return "", &llm.ProviderError{Provider: c.cfg.ID, Kind: llm.KindUnauthenticated, Message: "API key not configured"}
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		content, retryAfter, err := c.doOnce(ctx, data)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !llm.IsRetryable(err) || attempt == c.maxRetries {
			return "", err
		}
		delay := retryDelay(attempt)
		if retryAfter > 0 {
			delay = retryAfter
		}
		select {
		case <-ctx.Done():
			return "", llm.ClassifyTransport(c.cfg.ID, ctx.Err())
		case <-time.After(delay):
		}
	}
	return "", lastErr
}

func (c *Client) doOnce(ctx context.Context, body []byte) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, llm.ClassifyTransport(c.cfg.ID, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, llm.ClassifyTransport(c.cfg.ID, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", parseRetryAfter(resp), llm.ClassifyHTTP(c.cfg.ID, resp.StatusCode, string(bodyBytes))
	}

	var apiResp chatCompletionResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", 0, llm.Malformed(c.cfg.ID, fmt.Sprintf("decode response: %v", err))
	}
	if apiResp.Error.Message != "" {
		return "", 0, llm.Malformed(c.cfg.ID, fmt.Sprintf("API error: %s (%s)", apiResp.Error.Message, apiResp.Error.Type))
	}
	if len(apiResp.Choices) == 0 {
		return "", 0, llm.Malformed(c.cfg.ID, "no choices in response")
	}
	return apiResp.Choices[0].Message.Content, 0, nil
}

func parseRetryAfter(resp *http.Response) time.Duration {
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return 0
	}
	secs, err := strconv.Atoi(ra)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// retryDelay is exponential backoff capped at 5s.
func retryDelay(attempt int) time.Duration {
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
