package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/codecontextai/codecontext/pkg/llm"
)

func embeddingBody(vectors ...[]float32) string {
	data := make([]map[string]interface{}, 0, len(vectors))
	for i, v := range vectors {
		data = append(data, map[string]interface{}{"index": i, "embedding": v})
	}
	b, _ := json.Marshal(map[string]interface{}{"data": data})
	return string(b)
}

func TestEmbedder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", got)
		}

		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if len(req.Input) != 2 {
			t.Fatalf("expected 2 inputs, got %d", len(req.Input))
		}

		// Report indices out of order; the client must reorder by index.
		w.Write([]byte(`{"data":[
			{"index":1,"embedding":[0.3,0.4]},
			{"index":0,"embedding":[0.1,0.2]}
		]}`))
	}))
	defer server.Close()

	emb := NewEmbedder(EmbedderConfig{BaseURL: server.URL, APIKey: "test-key", Model: "text-embedding-3-small", Dimension: 2})
	vectors, err := emb.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if vectors[0][0] != 0.1 || vectors[1][0] != 0.3 {
		t.Errorf("vectors not ordered by index: %v", vectors)
	}
}

func TestEmbedder_Batches(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)

		var req embeddingRequest
		json.NewDecoder(r.Body).Decode(&req)
		vectors := make([][]float32, len(req.Input))
		for i := range vectors {
			vectors[i] = []float32{0.5, 0.5}
		}
		w.Write([]byte(embeddingBody(vectors...)))
	}))
	defer server.Close()

	emb := NewEmbedder(EmbedderConfig{BaseURL: server.URL, Model: "m", BatchSize: 2})
	vectors, err := emb.Embed(context.Background(), []string{"a", "b", "c", "d", "e"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vectors) != 5 {
		t.Errorf("expected 5 vectors, got %d", len(vectors))
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 batch requests for 5 texts at batch size 2, got %d", got)
	}
}

func TestEmbedder_DimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(embeddingBody([]float32{0.1, 0.2, 0.3})))
	}))
	defer server.Close()

	emb := NewEmbedder(EmbedderConfig{BaseURL: server.URL, Model: "m", Dimension: 2})
	_, err := emb.Embed(context.Background(), []string{"a"})
	if llm.KindOf(err) != llm.KindMalformedResponse {
		t.Errorf("expected malformed response, got %v", err)
	}
}

func TestEmbedder_RetriesRateLimit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(embeddingBody([]float32{0.1, 0.2})))
	}))
	defer server.Close()

	emb := NewEmbedder(EmbedderConfig{BaseURL: server.URL, Model: "m"})
	vectors, err := emb.Embed(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("expected 1 vector, got %d", len(vectors))
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected 2 requests, got %d", got)
	}
}

func TestEmbedder_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(embeddingBody([]float32{0.1, 0.2})))
	}))
	defer server.Close()

	emb := NewEmbedder(EmbedderConfig{BaseURL: server.URL, Model: "m"})
	_, err := emb.Embed(context.Background(), []string{"a", "b"})
	if llm.KindOf(err) != llm.KindMalformedResponse {
		t.Errorf("expected malformed response, got %v", err)
	}
}
