package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codecontextai/codecontext/pkg/llm"
)

func TestEmbed(t *testing.T) {
	// Echo a vector derived from the prompt so ordering is observable.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != "POST" {
			t.Errorf("unexpected method: %s", r.Method)
		}

		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("unexpected model: %s", req.Model)
		}

		var n float32
		fmt.Sscanf(req.Prompt, "text-%f", &n)
		json.NewEncoder(w).Encode(embeddingResponse{Embedding: []float32{n, n}})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Model: "nomic-embed-text", Dimension: 2, Concurrency: 3})

	texts := []string{"text-0", "text-1", "text-2", "text-3", "text-4"}
	vectors, err := client.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vectors))
	}
	for i, v := range vectors {
		if v[0] != float32(i) {
			t.Errorf("vector %d out of order: %v", i, v)
		}
	}
}

func TestEmbed_Empty(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://unreachable.invalid"})
	vectors, err := client.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil for no texts, got %v", vectors)
	}
}

func TestEmbed_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Model: "m"})
	_, err := client.Embed(context.Background(), []string{"a"})
	if llm.KindOf(err) != llm.KindUnavailable {
		t.Errorf("expected unavailable, got %v", err)
	}
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embeddingResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Model: "m", Dimension: 2})
	_, err := client.Embed(context.Background(), []string{"a"})
	if llm.KindOf(err) != llm.KindMalformedResponse {
		t.Errorf("expected malformed response, got %v", err)
	}
}

func TestEmbed_EmptyEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embedding":[]}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Model: "m"})
	_, err := client.Embed(context.Background(), []string{"a"})
	if llm.KindOf(err) != llm.KindMalformedResponse {
		t.Errorf("expected malformed response, got %v", err)
	}
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}

	server.Close()
	if err := client.Ping(context.Background()); err == nil {
		t.Error("expected error after server shutdown")
	}
}
