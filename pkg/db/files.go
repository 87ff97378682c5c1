package db

import (
	"database/sql"
	"fmt"
)

// File indexing statuses
const (
	FileStatusIndexed = "indexed"
	FileStatusError   = "error"
)

// File represents a tracked file within a project
type File struct {
	ID           int64
	ProjectID    string
	Path         string
	Language     string
	ContentHash  string
	LastModTime  int64
	Status       string
	ErrorMessage string
	IndexedAt    sql.NullTime
}

// UpsertFile inserts or updates a file record and returns its ID.
// The (project_id, path) pair is the natural key.
func (db *DB) UpsertFile(f *File) (int64, error) {
	if f.ProjectID == "" || f.Path == "" {
		return 0, fmt.Errorf("project id and path are required")
	}
	if f.Status == "" {
		f.Status = FileStatusIndexed
	}

	// mattn/go-sqlite3 supports RETURNING but LastInsertId is unreliable
	// for upserts, so read the id back explicitly.
	_, err := db.conn.Exec(`
		INSERT INTO files (project_id, path, language, content_hash, last_mod_time, status, error_message, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(project_id, path) DO UPDATE SET
			language = excluded.language,
			content_hash = excluded.content_hash,
			last_mod_time = excluded.last_mod_time,
			status = excluded.status,
			error_message = excluded.error_message,
			indexed_at = CURRENT_TIMESTAMP
	`, f.ProjectID, f.Path, f.Language, f.ContentHash, f.LastModTime, f.Status, nullIfEmpty(f.ErrorMessage))
	if err != nil {
		return 0, fmt.Errorf("failed to upsert file: %w", err)
	}

	var id int64
	err = db.conn.QueryRow(
		"SELECT id FROM files WHERE project_id = ? AND path = ?",
		f.ProjectID, f.Path,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read file id: %w", err)
	}

	f.ID = id
	return id, nil
}

// GetFile retrieves a file by project and path, returns nil if not found
func (db *DB) GetFile(projectID, path string) (*File, error) {
	var f File
	var errMsg sql.NullString

	err := db.conn.QueryRow(`
		SELECT id, project_id, path, language, content_hash, last_mod_time, status, error_message, indexed_at
		FROM files
		WHERE project_id = ? AND path = ?
	`, projectID, path).Scan(&f.ID, &f.ProjectID, &f.Path, &f.Language, &f.ContentHash,
		&f.LastModTime, &f.Status, &errMsg, &f.IndexedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	f.ErrorMessage = errMsg.String
	return &f, nil
}

// ListFiles returns all files for a project ordered by path
func (db *DB) ListFiles(projectID string) ([]*File, error) {
	rows, err := db.conn.Query(`
		SELECT id, project_id, path, language, content_hash, last_mod_time, status, error_message, indexed_at
		FROM files
		WHERE project_id = ?
		ORDER BY path
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		var f File
		var errMsg sql.NullString

		err := rows.Scan(&f.ID, &f.ProjectID, &f.Path, &f.Language, &f.ContentHash,
			&f.LastModTime, &f.Status, &errMsg, &f.IndexedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}

		f.ErrorMessage = errMsg.String
		files = append(files, &f)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating files: %w", err)
	}
	return files, nil
}

// MarkFileError records an indexing failure for a file
func (db *DB) MarkFileError(projectID, path, message string) error {
	f := &File{
		ProjectID:    projectID,
		Path:         path,
		Status:       FileStatusError,
		ErrorMessage: message,
	}
	_, err := db.UpsertFile(f)
	return err
}

// DeleteFile removes a file and its chunks, including vector rows
func (db *DB) DeleteFile(projectID, path string) error {
	f, err := db.GetFile(projectID, path)
	if err != nil {
		return err
	}
	if f == nil {
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	if db.hasVec {
		_, err = tx.Exec(`
			DELETE FROM vec_chunks
			WHERE chunk_id IN (SELECT id FROM chunks WHERE file_id = ?)
		`, f.ID)
		if err != nil {
			return fmt.Errorf("failed to delete file vectors: %w", err)
		}
	}

	if _, err := tx.Exec("DELETE FROM files WHERE id = ?", f.ID); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// CountFiles returns the number of files tracked for a project
func (db *DB) CountFiles(projectID string) (int64, error) {
	var count int64
	err := db.conn.QueryRow("SELECT COUNT(*) FROM files WHERE project_id = ?", projectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return count, nil
}
