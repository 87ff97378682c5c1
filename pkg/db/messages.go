package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Chat message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SourceRef identifies a chunk that grounded an assistant reply
type SourceRef struct {
	FilePath  string  `json:"file_path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Symbol    string  `json:"symbol,omitempty"`
	Score     float64 `json:"score"`
}

// ChatMessage is one turn of a project conversation
type ChatMessage struct {
	ID        int64
	ProjectID string
	Role      string
	Content   string
	Sources   []SourceRef
	CreatedAt time.Time
}

// AppendChatMessage appends a message to a project's conversation.
// Sources are stored as JSON and only populated for assistant turns.
func (db *DB) AppendChatMessage(projectID, role, content string, sources []SourceRef) (int64, error) {
	var sourcesJSON interface{}
	if len(sources) > 0 {
		data, err := json.Marshal(sources)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal sources: %w", err)
		}
		sourcesJSON = string(data)
	}

	res, err := db.conn.Exec(`
		INSERT INTO chat_messages (project_id, role, content, sources)
		VALUES (?, ?, ?, ?)
	`, projectID, role, content, sourcesJSON)
	if err != nil {
		return 0, fmt.Errorf("failed to insert chat message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get message id: %w", err)
	}
	return id, nil
}

// ListChatMessages returns the most recent limit messages in chronological
// order. limit <= 0 returns the full history.
func (db *DB) ListChatMessages(projectID string, limit int) ([]*ChatMessage, error) {
	query := `
		SELECT id, project_id, role, content, sources, created_at
		FROM chat_messages
		WHERE project_id = ?
		ORDER BY id DESC`
	args := []interface{}{projectID}

	if limit > 0 {
		query += "\nLIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*ChatMessage
	for rows.Next() {
		var m ChatMessage
		var sourcesJSON sql.NullString

		err := rows.Scan(&m.ID, &m.ProjectID, &m.Role, &m.Content, &sourcesJSON, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}

		if sourcesJSON.Valid && sourcesJSON.String != "" {
			if err := json.Unmarshal([]byte(sourcesJSON.String), &m.Sources); err != nil {
				return nil, fmt.Errorf("failed to unmarshal sources for message %d: %w", m.ID, err)
			}
		}
		messages = append(messages, &m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	// Reverse into chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ClearChatMessages deletes a project's conversation history
func (db *DB) ClearChatMessages(projectID string) error {
	_, err := db.conn.Exec("DELETE FROM chat_messages WHERE project_id = ?", projectID)
	if err != nil {
		return fmt.Errorf("failed to clear chat messages: %w", err)
	}
	return nil
}
