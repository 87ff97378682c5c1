package db

import (
	"fmt"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// Chunk represents a stored code chunk with its metadata
type Chunk struct {
	ID        int64
	ChunkKey  string
	ProjectID string
	FileID    int64
	FilePath  string
	Symbol    string
	Language  string
	StartLine int // 1-indexed
	EndLine   int // 1-indexed, inclusive
	Content   string
}

// SearchResult pairs a chunk with its cosine distance to the query
type SearchResult struct {
	Chunk    *Chunk
	Distance float64 // Cosine distance (lower is more similar)
}

// Score converts cosine distance to a similarity score in [-1, 1]
func (r *SearchResult) Score() float64 {
	return 1.0 - r.Distance
}

// ReplaceFileChunks atomically replaces all chunks for a file with a new set.
// Old chunk rows and their vectors are deleted and the new ones inserted in a
// single transaction, so concurrent searches never see a half-indexed file.
// embeddings must be parallel to chunks.
func (db *DB) ReplaceFileChunks(fileID int64, chunks []*Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunk/embedding count mismatch: %d vs %d", len(chunks), len(embeddings))
	}
	for i, emb := range embeddings {
		if len(emb) != db.embeddingDim {
			return fmt.Errorf("embedding %d dimension mismatch: expected %d, got %d", i, db.embeddingDim, len(emb))
		}
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin replace transaction: %w", err)
	}
	defer tx.Rollback()

	if db.hasVec {
		_, err = tx.Exec(`
			DELETE FROM vec_chunks
			WHERE chunk_id IN (SELECT id FROM chunks WHERE file_id = ?)
		`, fileID)
		if err != nil {
			return fmt.Errorf("failed to delete old vectors: %w", err)
		}
	}

	if _, err := tx.Exec("DELETE FROM chunks WHERE file_id = ?", fileID); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}

	insertChunk, err := tx.Prepare(`
		INSERT INTO chunks (chunk_key, project_id, file_id, file_path, symbol, language, start_line, end_line, content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer insertChunk.Close()

	for i, c := range chunks {
		res, err := insertChunk.Exec(c.ChunkKey, c.ProjectID, fileID, c.FilePath,
			c.Symbol, c.Language, c.StartLine, c.EndLine, c.Content)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ChunkKey, err)
		}

		chunkID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get chunk id: %w", err)
		}
		c.ID = chunkID
		c.FileID = fileID

		if !db.hasVec {
			continue
		}

		embBytes, err := sqlite_vec.SerializeFloat32(embeddings[i])
		if err != nil {
			return fmt.Errorf("failed to serialize embedding: %w", err)
		}
		_, err = tx.Exec("INSERT INTO vec_chunks (chunk_id, project_id, embedding) VALUES (?, ?, ?)", chunkID, c.ProjectID, embBytes)
		if err != nil {
			return fmt.Errorf("failed to insert vector: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk replacement: %w", err)
	}
	return nil
}

// pathFilterOversample widens the KNN fetch when a path prefix is
// requested, since the prefix is applied after the vector search.
const pathFilterOversample = 4

// SearchSimilar finds the k chunks in a project nearest to the query
// embedding by cosine distance. The project_id partition key constrains
// the KNN scan to the project's own vectors, so k is honored per project
// regardless of how many other projects share the table. pathPrefix,
// when non-empty, restricts results to chunks whose file path starts
// with it; it is applied after the vector search over an oversampled
// fetch. Ties are broken by chunk id so ranking is deterministic.
func (db *DB) SearchSimilar(projectID string, queryEmbedding []float32, k int, pathPrefix string) ([]*SearchResult, error) {
	if len(queryEmbedding) != db.embeddingDim {
		return nil, fmt.Errorf("query embedding dimension mismatch: expected %d, got %d", db.embeddingDim, len(queryEmbedding))
	}
	if k <= 0 {
		k = 10
	}

	queryBytes, err := sqlite_vec.SerializeFloat32(queryEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query embedding: %w", err)
	}

	fetchK := k
	if pathPrefix != "" {
		fetchK = k * pathFilterOversample
	}

	query := `
		SELECT c.id, c.chunk_key, c.project_id, c.file_id, c.file_path,
		       c.symbol, c.language, c.start_line, c.end_line, c.content,
		       v.distance
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_id
		WHERE v.embedding MATCH ?
		  AND k = ?
		  AND v.project_id = ?
		ORDER BY v.distance, c.id`

	rows, err := db.conn.Query(query, queryBytes, fetchK, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar chunks: %w", err)
	}
	defer rows.Close()

	var results []*SearchResult
	for rows.Next() {
		var c Chunk
		var distance float64

		err := rows.Scan(&c.ID, &c.ChunkKey, &c.ProjectID, &c.FileID, &c.FilePath,
			&c.Symbol, &c.Language, &c.StartLine, &c.EndLine, &c.Content, &distance)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}

		results = append(results, &SearchResult{Chunk: &c, Distance: distance})
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}
	return filterByPathPrefix(results, pathPrefix, k), nil
}

// filterByPathPrefix keeps results under pathPrefix, truncated to k.
// An empty prefix keeps everything up to k.
func filterByPathPrefix(results []*SearchResult, pathPrefix string, k int) []*SearchResult {
	filtered := results[:0]
	for _, r := range results {
		if pathPrefix != "" && !strings.HasPrefix(r.Chunk.FilePath, pathPrefix) {
			continue
		}
		filtered = append(filtered, r)
		if len(filtered) == k {
			break
		}
	}
	return filtered
}

// GetFileChunks retrieves all chunks for a file ordered by position
func (db *DB) GetFileChunks(fileID int64) ([]*Chunk, error) {
	rows, err := db.conn.Query(`
		SELECT id, chunk_key, project_id, file_id, file_path, symbol, language, start_line, end_line, content
		FROM chunks
		WHERE file_id = ?
		ORDER BY start_line, id
	`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var c Chunk
		err := rows.Scan(&c.ID, &c.ChunkKey, &c.ProjectID, &c.FileID, &c.FilePath,
			&c.Symbol, &c.Language, &c.StartLine, &c.EndLine, &c.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		chunks = append(chunks, &c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}
	return chunks, nil
}

// CountProjectChunks returns the total number of chunks for a project
func (db *DB) CountProjectChunks(projectID string) (int64, error) {
	var count int64
	err := db.conn.QueryRow("SELECT COUNT(*) FROM chunks WHERE project_id = ?", projectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}
