package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codecontextai/codecontext/pkg/db"
	"github.com/codecontextai/codecontext/pkg/llm"
	"github.com/codecontextai/codecontext/pkg/prompt"
	"github.com/codecontextai/codecontext/pkg/search"
)

// ChatStore is the persistence surface the chat service needs
type ChatStore interface {
	ProjectStore
	ListChatMessages(projectID string, limit int) ([]*db.ChatMessage, error)
	AppendChatMessage(projectID, role, content string, sources []db.SourceRef) (int64, error)
	ClearChatMessages(projectID string) error
}

// Searcher retrieves evidence for a question
type Searcher interface {
	Search(ctx context.Context, projectID, query string, opts search.Options) ([]*search.Hit, error)
}

// Chat answers questions about ready projects with retrieved evidence
type Chat struct {
	store    ChatStore
	searcher Searcher
	registry *llm.Registry
	locks    *projectLocks
}

// NewChat creates a chat service
func NewChat(store ChatStore, searcher Searcher, registry *llm.Registry) *Chat {
	return &Chat{
		store:    store,
		searcher: searcher,
		registry: registry,
		locks:    newProjectLocks(),
	}
}

// Reply is one answered chat turn
type Reply struct {
	Answer   string
	Sources  []db.SourceRef
	Provider string
}

// Ask answers a question about a project. The user question and the
// assistant reply are appended to the stored history only after the
// provider succeeds, so a failed turn leaves the history untouched.
func (c *Chat) Ask(ctx context.Context, projectID, question, providerID string) (*Reply, error) {
	project, err := requireReady(c.store, projectID)
	if err != nil {
		return nil, err
	}

	// One turn at a time per project keeps history append order sane
	unlock := c.locks.lock(projectID)
	defer unlock()

	history, err := c.store.ListChatMessages(projectID, prompt.MaxHistoryMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	hits, err := c.searcher.Search(ctx, projectID, question, search.Options{})
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	evidence := prompt.Assemble(hits, 0)
	provider := c.registry.Get(providerID)

	answer, err := provider.GenerateChatReply(ctx, llm.ChatRequest{
		SystemContext: llm.RenderChatSystem(evidence.Block),
		History:       prompt.History(history, 0),
		Question:      question,
	})
	if err != nil {
		return nil, err
	}

	sources := prompt.Sources(evidence.Hits)

	if _, err := c.store.AppendChatMessage(projectID, db.RoleUser, question, nil); err != nil {
		return nil, fmt.Errorf("failed to store question: %w", err)
	}
	if _, err := c.store.AppendChatMessage(projectID, db.RoleAssistant, answer, sources); err != nil {
		return nil, fmt.Errorf("failed to store reply: %w", err)
	}

	slog.Debug("Chat turn complete",
		"project_id", project.ID,
		"provider", provider.Descriptor().ID,
		"evidence_hits", len(evidence.Hits))

	return &Reply{
		Answer:   answer,
		Sources:  sources,
		Provider: provider.Descriptor().ID,
	}, nil
}

// History returns a project's stored conversation
func (c *Chat) History(projectID string, limit int) ([]*db.ChatMessage, error) {
	project, err := c.store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}
	return c.store.ListChatMessages(projectID, limit)
}

// Clear deletes a project's conversation history
func (c *Chat) Clear(projectID string) error {
	project, err := c.store.GetProject(projectID)
	if err != nil {
		return err
	}
	if project == nil {
		return ErrProjectNotFound
	}
	return c.store.ClearChatMessages(projectID)
}
