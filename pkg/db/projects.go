package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Project lifecycle statuses
const (
	ProjectStatusIndexing = "indexing"
	ProjectStatusReady    = "ready"
	ProjectStatusError    = "error"
)

// Project source types
const (
	SourceTypeGit   = "git"
	SourceTypeZip   = "zip"
	SourceTypeLocal = "local"
)

// Project represents a tracked repository
type Project struct {
	ID           string
	Name         string
	SourceType   string
	SourceURL    string
	RootPath     string
	Status       string
	TotalFiles   int
	TotalChunks  int
	ErrorMessage string
	ClaimedAt    sql.NullTime
	CreatedAt    time.Time
}

// CreateProject inserts a new project in indexing status
func (db *DB) CreateProject(p *Project) error {
	if p.ID == "" {
		return fmt.Errorf("project id cannot be empty")
	}
	if p.Status == "" {
		p.Status = ProjectStatusIndexing
	}

	_, err := db.conn.Exec(`
		INSERT INTO projects (id, name, source_type, source_url, root_path, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.SourceType, p.SourceURL, p.RootPath, p.Status)

	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID, returns nil if not found
func (db *DB) GetProject(id string) (*Project, error) {
	var p Project
	var sourceURL, errMsg sql.NullString

	err := db.conn.QueryRow(`
		SELECT id, name, source_type, source_url, root_path, status,
		       total_files, total_chunks, error_message, claimed_at, created_at
		FROM projects
		WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.SourceType, &sourceURL, &p.RootPath, &p.Status,
		&p.TotalFiles, &p.TotalChunks, &errMsg, &p.ClaimedAt, &p.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	p.SourceURL = sourceURL.String
	p.ErrorMessage = errMsg.String
	return &p, nil
}

// ListProjects returns all projects ordered by creation time, newest first
func (db *DB) ListProjects() ([]*Project, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, source_type, source_url, root_path, status,
		       total_files, total_chunks, error_message, claimed_at, created_at
		FROM projects
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var p Project
		var sourceURL, errMsg sql.NullString

		err := rows.Scan(&p.ID, &p.Name, &p.SourceType, &sourceURL, &p.RootPath, &p.Status,
			&p.TotalFiles, &p.TotalChunks, &errMsg, &p.ClaimedAt, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}

		p.SourceURL = sourceURL.String
		p.ErrorMessage = errMsg.String
		projects = append(projects, &p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}
	return projects, nil
}

// UpdateProjectStatus sets the project status and error message.
// Pass an empty errorMessage for non-error transitions.
func (db *DB) UpdateProjectStatus(id, status, errorMessage string) error {
	res, err := db.conn.Exec(`
		UPDATE projects SET status = ?, error_message = ? WHERE id = ?
	`, status, nullIfEmpty(errorMessage), id)
	if err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}
	return requireOneRow(res, "project", id)
}

// MarkProjectReady transitions a project to ready with final counts
func (db *DB) MarkProjectReady(id string, totalFiles, totalChunks int) error {
	res, err := db.conn.Exec(`
		UPDATE projects
		SET status = ?, total_files = ?, total_chunks = ?, error_message = NULL, claimed_at = NULL
		WHERE id = ?
	`, ProjectStatusReady, totalFiles, totalChunks, id)
	if err != nil {
		return fmt.Errorf("failed to mark project ready: %w", err)
	}
	return requireOneRow(res, "project", id)
}

// UpdateProjectTotals refreshes counts without changing status.
// Used after incremental single-file re-indexing.
func (db *DB) UpdateProjectTotals(id string) error {
	_, err := db.conn.Exec(`
		UPDATE projects
		SET total_files = (SELECT COUNT(*) FROM files WHERE project_id = ?),
		    total_chunks = (SELECT COUNT(*) FROM chunks WHERE project_id = ?)
		WHERE id = ?
	`, id, id, id)
	if err != nil {
		return fmt.Errorf("failed to update project totals: %w", err)
	}
	return nil
}

// ClaimNextIndexingProject atomically claims the oldest unclaimed project in
// indexing status. Claims older than staleAfter are treated as abandoned and
// reclaimable. Returns nil when nothing is queued.
func (db *DB) ClaimNextIndexingProject(staleAfter time.Duration) (*Project, error) {
	cutoff := time.Now().UTC().Add(-staleAfter).Format("2006-01-02 15:04:05")

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRow(`
		SELECT id FROM projects
		WHERE status = ? AND (claimed_at IS NULL OR claimed_at < ?)
		ORDER BY created_at, id
		LIMIT 1
	`, ProjectStatusIndexing, cutoff).Scan(&id)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select claimable project: %w", err)
	}

	if _, err := tx.Exec("UPDATE projects SET claimed_at = CURRENT_TIMESTAMP WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("failed to claim project: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	return db.GetProject(id)
}

// DeleteProject removes a project and all dependent rows.
// vec_chunks has no FK to chunks (virtual table), so its rows are deleted
// explicitly before the cascade fires.
func (db *DB) DeleteProject(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	if db.hasVec {
		_, err = tx.Exec("DELETE FROM vec_chunks WHERE project_id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete project vectors: %w", err)
		}
	}

	res, err := tx.Exec("DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if err := requireOneRow(res, "project", id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// ListReadyProjects returns projects available for chat and edit operations
func (db *DB) ListReadyProjects() ([]*Project, error) {
	projects, err := db.ListProjects()
	if err != nil {
		return nil, err
	}
	ready := projects[:0]
	for _, p := range projects {
		if p.Status == ProjectStatusReady {
			ready = append(ready, p)
		}
	}
	return ready, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func requireOneRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s not found: %s", kind, id)
	}
	return nil
}
