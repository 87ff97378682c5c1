package llm

import (
	"context"
	"sync"
)

// MockProvider is a configurable Provider for testing.
type MockProvider struct {
	mu sync.Mutex

	ID        string
	ChatFunc  func(ctx context.Context, req ChatRequest) (string, error)
	EditFunc  func(ctx context.Context, req EditRequest) (string, error)
	ChatCalls []ChatRequest
	EditCalls []EditRequest
}

// NewMockProvider creates a mock with echoing defaults.
func NewMockProvider(id string) *MockProvider {
	return &MockProvider{
		ID: id,
		ChatFunc: func(ctx context.Context, req ChatRequest) (string, error) {
			return "Answer to: " + req.Question, nil
		},
		EditFunc: func(ctx context.Context, req EditRequest) (string, error) {
			return req.FileContent, nil
		},
	}
}

func (m *MockProvider) Descriptor() Descriptor {
	return Descriptor{ID: m.ID, Name: "Mock " + m.ID, Model: "mock-model"}
}

func (m *MockProvider) GenerateChatReply(ctx context.Context, req ChatRequest) (string, error) {
	m.mu.Lock()
	m.ChatCalls = append(m.ChatCalls, req)
	m.mu.Unlock()
	return m.ChatFunc(ctx, req)
}

func (m *MockProvider) GenerateEdit(ctx context.Context, req EditRequest) (string, error) {
	m.mu.Lock()
	m.EditCalls = append(m.EditCalls, req)
	m.mu.Unlock()
	return m.EditFunc(ctx, req)
}

// MockEmbedder is a deterministic EmbeddingProvider for testing: the vector
// is a pure function of the text, so identical texts land close together and
// different texts do not.
type MockEmbedder struct {
	mu sync.Mutex

	Dim        int
	EmbedFunc  func(ctx context.Context, texts []string) ([][]float32, error)
	EmbedCalls [][]string
}

// NewMockEmbedder creates a mock embedder with dim-sized hashed vectors.
func NewMockEmbedder(dim int) *MockEmbedder {
	m := &MockEmbedder{Dim: dim}
	m.EmbedFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			vec := make([]float32, dim)
			for j, r := range text {
				vec[(j+int(r))%dim] += 1
			}
			out[i] = vec
		}
		return out, nil
	}
	return m
}

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.EmbedCalls = append(m.EmbedCalls, texts)
	m.mu.Unlock()
	return m.EmbedFunc(ctx, texts)
}

func (m *MockEmbedder) Dimension() int { return m.Dim }

// FailingEmbedder always returns an unavailable error. Useful for testing
// the no-silent-zero-vector contract.
type FailingEmbedder struct{ Dim int }

func (f *FailingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, &ProviderError{Provider: "mock-embed", Kind: KindUnavailable, Message: "backend down"}
}

func (f *FailingEmbedder) Dimension() int { return f.Dim }
