package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codecontextai/codecontext/pkg/db"
	"github.com/codecontextai/codecontext/pkg/llm"
	"github.com/codecontextai/codecontext/pkg/patch"
	"github.com/codecontextai/codecontext/pkg/prompt"
	"github.com/codecontextai/codecontext/pkg/repo"
	"github.com/codecontextai/codecontext/pkg/search"
)

// EditStore is the persistence surface the edit service needs
type EditStore interface {
	ProjectStore
	InsertEditProposal(p *db.EditProposal) (int64, error)
	GetEditProposal(id int64) (*db.EditProposal, error)
	MarkProposalApplied(id int64) error
	ListEditProposals(projectID string, limit int) ([]*db.EditProposal, error)
}

// FileIndexer re-indexes a single file after a change
type FileIndexer interface {
	IndexSingleFile(ctx context.Context, project *db.Project, relPath string) error
}

// Edit generates and applies model-proposed file edits
type Edit struct {
	store    EditStore
	searcher Searcher
	registry *llm.Registry
	indexer  FileIndexer
	locks    *projectLocks
}

// NewEdit creates an edit service
func NewEdit(store EditStore, searcher Searcher, registry *llm.Registry, indexer FileIndexer) *Edit {
	return &Edit{
		store:    store,
		searcher: searcher,
		registry: registry,
		indexer:  indexer,
		locks:    newProjectLocks(),
	}
}

// Propose asks a provider for a complete rewrite of one file, records the
// proposal, and returns it. An empty patch means the model judged the file
// already satisfies the instruction.
func (e *Edit) Propose(ctx context.Context, projectID, filePath, instruction, providerID string) (*db.EditProposal, error) {
	project, err := requireReady(e.store, projectID)
	if err != nil {
		return nil, err
	}

	// Env files are served masked, an edit generated from masked content
	// would overwrite real secrets with placeholders.
	if repo.DetectLanguage(filePath) == "env" {
		return nil, fmt.Errorf("%w: %s", ErrNotEditable, filePath)
	}

	base, err := repo.ReadFile(project.RootPath, filePath)
	if err != nil {
		return nil, err
	}

	// Cross-file evidence helps the model keep call sites consistent
	hits, err := e.searcher.Search(ctx, projectID, instruction, search.Options{})
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	evidence := prompt.Assemble(hits, 0)

	provider := e.registry.Get(providerID)

	proposed, err := provider.GenerateEdit(ctx, llm.EditRequest{
		Instruction: instruction,
		FilePath:    filePath,
		FileContent: base,
		Evidence:    evidence.Block,
	})
	if err != nil {
		return nil, err
	}

	patchText, err := patch.Diff(filePath, base, proposed)
	if err != nil {
		return nil, err
	}

	proposal := &db.EditProposal{
		ProjectID:       projectID,
		FilePath:        filePath,
		Instruction:     instruction,
		Provider:        provider.Descriptor().ID,
		ProposedContent: proposed,
		Patch:           patchText,
		BaseHash:        patch.HashContent(base),
	}
	if _, err := e.store.InsertEditProposal(proposal); err != nil {
		return nil, fmt.Errorf("failed to store proposal: %w", err)
	}

	slog.Info("Edit proposed",
		"project_id", projectID,
		"file", filePath,
		"proposal_id", proposal.ID,
		"provider", proposal.Provider,
		"no_changes", patchText == "")

	return proposal, nil
}

// Apply writes a proposal to disk. The target file must still match the
// base the proposal was generated against, and the stored patch must still
// derive from that base. The file is re-indexed after a successful write.
func (e *Edit) Apply(ctx context.Context, proposalID int64) (*patch.Result, error) {
	proposal, err := e.store.GetEditProposal(proposalID)
	if err != nil {
		return nil, err
	}
	if proposal == nil {
		return nil, ErrProposalNotFound
	}
	if proposal.Applied {
		return nil, ErrProposalAlreadyApplied
	}

	project, err := requireReady(e.store, proposal.ProjectID)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(proposal.ProjectID)
	defer unlock()

	base, err := repo.ReadFile(project.RootPath, proposal.FilePath)
	if err != nil {
		return nil, err
	}
	if patch.HashContent(base) != proposal.BaseHash {
		return nil, fmt.Errorf("%w: %s", patch.ErrConcurrentModification, proposal.FilePath)
	}
	if err := patch.Validate(proposal.FilePath, base, proposal.ProposedContent, proposal.Patch); err != nil {
		return nil, fmt.Errorf("proposal %d rejected: %w", proposalID, err)
	}

	result, err := patch.Apply(project.RootPath, proposal.FilePath, proposal.BaseHash, proposal.ProposedContent)
	if err != nil {
		return nil, err
	}

	if err := e.store.MarkProposalApplied(proposalID); err != nil {
		return nil, fmt.Errorf("failed to mark proposal applied: %w", err)
	}

	if result.Changed && e.indexer != nil {
		if err := e.indexer.IndexSingleFile(ctx, project, proposal.FilePath); err != nil {
			// The edit is on disk, a failed re-index only delays search
			// freshness until the watcher catches up.
			slog.Warn("Re-index after edit failed",
				"project_id", project.ID,
				"file", proposal.FilePath,
				"error", err)
		}
	}

	slog.Info("Edit applied",
		"project_id", project.ID,
		"file", proposal.FilePath,
		"proposal_id", proposalID,
		"changed", result.Changed)

	return result, nil
}

// Proposals lists recent proposals for a project
func (e *Edit) Proposals(projectID string, limit int) ([]*db.EditProposal, error) {
	project, err := e.store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}
	return e.store.ListEditProposals(projectID, limit)
}

// Proposal fetches one proposal
func (e *Edit) Proposal(proposalID int64) (*db.EditProposal, error) {
	proposal, err := e.store.GetEditProposal(proposalID)
	if err != nil {
		return nil, err
	}
	if proposal == nil {
		return nil, ErrProposalNotFound
	}
	return proposal, nil
}
