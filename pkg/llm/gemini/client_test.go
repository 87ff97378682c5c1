package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/codecontextai/codecontext/pkg/llm"
)

func candidateBody(texts ...string) string {
	parts := make([]map[string]string, 0, len(texts))
	for _, t := range texts {
		parts = append(parts, map[string]string{"text": t})
	}
	b, _ := json.Marshal(map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{"parts": parts}},
		},
	})
	return string(b)
}

func testClient(baseURL string) *Client {
	return NewClient(Config{ID: "gemini", Name: "Gemini", BaseURL: baseURL, APIKey: "test-key", Model: "gemini-2.0-flash"})
}

func TestGenerateChatReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-2.0-flash:generateContent" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("unexpected api key header: %s", got)
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "system ctx" {
			t.Errorf("system instruction missing: %+v", req.SystemInstruction)
		}
		if len(req.Contents) != 3 {
			t.Fatalf("expected 3 contents, got %d", len(req.Contents))
		}
		// Assistant turns map to the model role on the wire.
		if req.Contents[1].Role != "model" {
			t.Errorf("expected model role for assistant turn, got %s", req.Contents[1].Role)
		}
		if last := req.Contents[2]; last.Role != "user" || last.Parts[0].Text != "why?" {
			t.Errorf("unexpected final content: %+v", last)
		}

		w.Write([]byte(candidateBody("because ", "it parses.")))
	}))
	defer server.Close()

	client := testClient(server.URL)
	reply, err := client.GenerateChatReply(context.Background(), llm.ChatRequest{
		SystemContext: "system ctx",
		History: []llm.Message{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
		Question: "why?",
	})
	if err != nil {
		t.Fatalf("GenerateChatReply failed: %v", err)
	}
	if reply != "because it parses." {
		t.Errorf("parts not concatenated: %q", reply)
	}
}

func TestGenerateEdit_StripsFence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(candidateBody("```python\nprint(1)\n```")))
	}))
	defer server.Close()

	client := testClient(server.URL)
	content, err := client.GenerateEdit(context.Background(), llm.EditRequest{
		Instruction: "print something",
		FilePath:    "main.py",
		FileContent: "",
	})
	if err != nil {
		t.Fatalf("GenerateEdit failed: %v", err)
	}
	if content != "print(1)\n" {
		t.Errorf("fence not stripped: %q", content)
	}
}

func TestBadKeyMapsToUnauthenticated(t *testing.T) {
	// Gemini reports a rejected key as 400 INVALID_ARGUMENT, not 401.
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.GenerateChatReply(context.Background(), llm.ChatRequest{Question: "q"})
	if llm.KindOf(err) != llm.KindUnauthenticated {
		t.Errorf("expected unauthenticated, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("auth failures must not be retried, got %d requests", got)
	}
}

func TestPlainBadRequestIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "malformed content", http.StatusBadRequest)
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.GenerateChatReply(context.Background(), llm.ChatRequest{Question: "q"})
	if llm.KindOf(err) != llm.KindUnavailable {
		t.Errorf("expected unavailable, got %v", err)
	}
}

func TestRateLimitRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(candidateBody("ok")))
	}))
	defer server.Close()

	client := testClient(server.URL)
	reply, err := client.GenerateChatReply(context.Background(), llm.ChatRequest{Question: "q"})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if reply != "ok" {
		t.Errorf("unexpected reply: %q", reply)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected 2 requests, got %d", got)
	}
}

func TestNoCandidatesIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.GenerateChatReply(context.Background(), llm.ChatRequest{Question: "q"})
	if llm.KindOf(err) != llm.KindMalformedResponse {
		t.Errorf("expected malformed response, got %v", err)
	}
}

func TestNoAPIKey(t *testing.T) {
	client := NewClient(Config{ID: "gemini", Model: "gemini-2.0-flash"})

	_, err := client.GenerateChatReply(context.Background(), llm.ChatRequest{Question: "q"})
	if llm.KindOf(err) != llm.KindUnauthenticated {
		t.Errorf("expected unauthenticated, got %v", err)
	}
}
