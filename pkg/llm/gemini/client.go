// Package gemini implements the Google Gemini chat provider over the
// generateContent REST API.
package gemini

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

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Config for the Gemini client.
type Config struct {
	ID      string // provider id, normally "gemini"
	Name    string
	BaseURL string // override for testing
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client wraps the Gemini generateContent API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	maxRetries int
}

// NewClient creates a Gemini client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
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

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"` // "user" or "model"
	Parts []part `json:"parts"`
}

type generateRequest struct {
	SystemInstruction *content          `json:"system_instruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GenerateChatReply answers a question with system context and history.
// History roles map user → user and assistant → model.
func (c *Client) GenerateChatReply(ctx context.Context, req llm.ChatRequest) (string, error) {
	contents := make([]content, 0, len(req.History)+1)
	for _, m := range req.History {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}
	contents = append(contents, content{Role: "user", Parts: []part{{Text: req.Question}}})

	return c.generate(ctx, generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: req.SystemContext}}},
		Contents:          contents,
		GenerationConfig:  &generationConfig{Temperature: llm.ChatTemperature, MaxOutputTokens: llm.ChatMaxTokens},
	})
}

// GenerateEdit returns the full proposed replacement content for a file.
func (c *Client) GenerateEdit(ctx context.Context, req llm.EditRequest) (string, error) {
	text, err := c.generate(ctx, generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: llm.RenderEditPrompt(req)}}}},
		GenerationConfig: &generationConfig{Temperature: llm.EditTemperature, MaxOutputTokens: llm.EditMaxTokens},
	})
	if err != nil {
		return "", err
	}
	return llm.StripCodeFence(text), nil
}

func (c *Client) generate(ctx context.Context, reqBody generateRequest) (string, error) {
	if c.cfg.APIKey == "" {
		return "", &llm.ProviderError{Provider: c.cfg.ID, Kind: llm.KindUnauthenticated, Message: "API key not configured"}
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		text, err := c.doOnce(ctx, data)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !llm.IsRetryable(err) || attempt == c.maxRetries {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", llm.ClassifyTransport(c.cfg.ID, ctx.Err())
		case <-time.After(200 * time.Millisecond << attempt):
		}
	}
	return "", lastErr
}

func (c *Client) doOnce(ctx context.Context, body []byte) (string, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.cfg.BaseURL, c.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", llm.ClassifyTransport(c.cfg.ID, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", llm.ClassifyTransport(c.cfg.ID, err)
	}

	if resp.StatusCode != http.StatusOK {
		// Gemini reports a bad key as 400 INVALID_ARGUMENT rather than 401.
		var apiResp generateResponse
		if json.Unmarshal(bodyBytes, &apiResp) == nil && apiResp.Error.Status == "INVALID_ARGUMENT" {
			return "", &llm.ProviderError{Provider: c.cfg.ID, Kind: llm.KindUnauthenticated, Status: resp.StatusCode, Message: apiResp.Error.Message}
		}
		return "", llm.ClassifyHTTP(c.cfg.ID, resp.StatusCode, string(bodyBytes))
	}

	var apiResp generateResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", llm.Malformed(c.cfg.ID, fmt.Sprintf("decode response: %v", err))
	}
	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		return "", llm.Malformed(c.cfg.ID, "no candidates in response")
	}

	var text string
	for _, p := range apiResp.Candidates[0].Content.Parts {
		text += p.Text
	}
	return text, nil
}
