package llm

import (
	"context"
	"strings"
)

// Message is one turn of a chat transcript.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ChatRequest carries an assembled question for a provider. SystemContext
// holds the instruction block and retrieved evidence; History is oldest
// first and already trimmed to budget by the assembler.
type ChatRequest struct {
	SystemContext string
	History       []Message
	Question      string
}

// EditRequest asks a provider for the complete replacement content of one
// file. The provider returns the whole file, never a diff.
type EditRequest struct {
	Instruction string
	FilePath    string
	FileContent string
	Evidence    string // optional cross-file context, may be empty
}

// Descriptor identifies a configured provider.
type Descriptor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

// Provider is one backend language model reachable through the gateway.
// Both calls are whole-response: no streaming in this contract.
type Provider interface {
	Descriptor() Descriptor

	// GenerateChatReply answers a question given system context and history.
	GenerateChatReply(ctx context.Context, req ChatRequest) (string, error)

	// GenerateEdit returns the full proposed replacement content for a file.
	GenerateEdit(ctx context.Context, req EditRequest) (string, error)
}

// EmbeddingProvider maps texts to fixed-dimensional dense vectors. Embedding
// N texts returns N vectors in input order; the same text always embeds to
// the same vector for a given model. A backend failure is reported as a
// *ProviderError, never substituted with zero vectors.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Generation knobs shared across providers.
const (
	ChatTemperature = 0.7
	EditTemperature = 0.2
	ChatMaxTokens   = 4096
	EditMaxTokens   = 8192
)

// StripCodeFence removes a wrapping markdown code fence from model output.
// Models routinely wrap edited files in ```lang ... ``` despite instructions.
// Unfenced output is returned untouched so byte-identical echoes stay
// byte-identical.
func StripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	firstNewline := strings.Index(trimmed, "\n")
	if firstNewline == -1 {
		return s
	}
	inner := trimmed[firstNewline+1:]
	if strings.HasSuffix(inner, "```") {
		inner = inner[:len(inner)-3]
	}
	if !strings.HasSuffix(inner, "\n") {
		inner += "\n"
	}
	return inner
}
