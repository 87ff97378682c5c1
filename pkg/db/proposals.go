package db

import (
	"database/sql"
	"fmt"
	"time"
)

// EditProposal records a generated edit and whether it was applied
type EditProposal struct {
	ID              int64
	ProjectID       string
	FilePath        string
	Instruction     string
	Provider        string
	ProposedContent string
	Patch           string
	BaseHash        string
	Applied         bool
	CreatedAt       time.Time
	AppliedAt       sql.NullTime
}

// InsertEditProposal stores a new proposal and returns its ID
func (db *DB) InsertEditProposal(p *EditProposal) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO edit_proposals (project_id, file_path, instruction, provider, proposed_content, patch, base_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ProjectID, p.FilePath, p.Instruction, p.Provider, p.ProposedContent, p.Patch, p.BaseHash)
	if err != nil {
		return 0, fmt.Errorf("failed to insert edit proposal: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get proposal id: %w", err)
	}
	p.ID = id
	return id, nil
}

// GetEditProposal retrieves a proposal by ID, returns nil if not found
func (db *DB) GetEditProposal(id int64) (*EditProposal, error) {
	var p EditProposal
	var applied int

	err := db.conn.QueryRow(`
		SELECT id, project_id, file_path, instruction, provider, proposed_content,
		       patch, base_hash, applied, created_at, applied_at
		FROM edit_proposals
		WHERE id = ?
	`, id).Scan(&p.ID, &p.ProjectID, &p.FilePath, &p.Instruction, &p.Provider,
		&p.ProposedContent, &p.Patch, &p.BaseHash, &applied, &p.CreatedAt, &p.AppliedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get edit proposal: %w", err)
	}

	p.Applied = applied != 0
	return &p, nil
}

// MarkProposalApplied flags a proposal as applied
func (db *DB) MarkProposalApplied(id int64) error {
	res, err := db.conn.Exec(`
		UPDATE edit_proposals SET applied = 1, applied_at = CURRENT_TIMESTAMP WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark proposal applied: %w", err)
	}
	return requireOneRow(res, "edit proposal", fmt.Sprintf("%d", id))
}

// ListEditProposals returns the most recent limit proposals for a project,
// newest first. limit <= 0 returns all.
func (db *DB) ListEditProposals(projectID string, limit int) ([]*EditProposal, error) {
	query := `
		SELECT id, project_id, file_path, instruction, provider, proposed_content,
		       patch, base_hash, applied, created_at, applied_at
		FROM edit_proposals
		WHERE project_id = ?
		ORDER BY id DESC`
	args := []interface{}{projectID}

	if limit > 0 {
		query += "\nLIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query edit proposals: %w", err)
	}
	defer rows.Close()

	var proposals []*EditProposal
	for rows.Next() {
		var p EditProposal
		var applied int

		err := rows.Scan(&p.ID, &p.ProjectID, &p.FilePath, &p.Instruction, &p.Provider,
			&p.ProposedContent, &p.Patch, &p.BaseHash, &applied, &p.CreatedAt, &p.AppliedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proposal row: %w", err)
		}

		p.Applied = applied != 0
		proposals = append(proposals, &p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating proposals: %w", err)
	}
	return proposals, nil
}
