// Package session orchestrates chat and edit flows over indexed projects.
package session

import (
	"errors"
	"sync"

	"github.com/codecontextai/codecontext/pkg/db"
)

var (
	// ErrProjectNotFound is returned for unknown project IDs
	ErrProjectNotFound = errors.New("project not found")

	// ErrProjectNotReady is returned when a project is still indexing or
	// failed to index.
	ErrProjectNotReady = errors.New("project is not ready")

	// ErrProposalNotFound is returned for unknown proposal IDs
	ErrProposalNotFound = errors.New("edit proposal not found")

	// ErrProposalAlreadyApplied is returned when applying a proposal twice
	ErrProposalAlreadyApplied = errors.New("edit proposal already applied")

	// ErrNotEditable is returned for files that must not be edited through
	// the model, such as env files whose content is served masked.
	ErrNotEditable = errors.New("file cannot be edited")
)

// ProjectStore is the project lookup surface shared by chat and edit
type ProjectStore interface {
	GetProject(id string) (*db.Project, error)
}

// requireReady loads a project and gates on ready status
func requireReady(store ProjectStore, projectID string) (*db.Project, error) {
	project, err := store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}
	if project.Status != db.ProjectStatusReady {
		return nil, ErrProjectNotReady
	}
	return project, nil
}

// projectLocks serializes operations per project. Chat turns must not
// interleave in the stored history, and edits must not race each other.
type projectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newProjectLocks() *projectLocks {
	return &projectLocks{locks: make(map[string]*sync.Mutex)}
}

func (p *projectLocks) lock(projectID string) func() {
	p.mu.Lock()
	l, ok := p.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[projectID] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}
