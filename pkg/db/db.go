package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection with our schema
type DB struct {
	conn         *sql.DB
	path         string
	embeddingDim int
	hasVec       bool
}

// Config holds database configuration
type Config struct {
	Path         string // Database file path
	EmbeddingDim int    // Dimension of embedding vectors (e.g., 384, 768, 1536)
	SkipVecTable bool   // Skip creating vec_chunks table (for testing without sqlite-vec)
}

// Open opens or creates a database with the given configuration
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.EmbeddingDim)
	}

	// Ensure parent directory exists
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dbExists := false
	if _, err := os.Stat(cfg.Path); err == nil {
		dbExists = true
	}

	// Enable sqlite-vec extension for all future connections
	sqlite_vec.Auto()

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", cfg.Path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool (single writer, multiple readers)
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	db := &DB{
		conn:         conn,
		path:         cfg.Path,
		embeddingDim: cfg.EmbeddingDim,
		hasVec:       !cfg.SkipVecTable,
	}

	if err := db.initSchema(dbExists, cfg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Set file permissions to 0600 (user read/write only)
	if err := os.Chmod(cfg.Path, 0600); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set database permissions: %w", err)
	}

	return db, nil
}

// initSchema creates tables and indexes if they don't exist
func (db *DB) initSchema(dbExists bool, cfg Config) error {
	// WAL first so the schema transaction itself goes through WAL
	if _, err := db.conn.Exec(EnableWALMode); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.conn.Exec(SetWALCheckpoint); err != nil {
		return fmt.Errorf("failed to set WAL checkpoint: %w", err)
	}
	if _, err := db.conn.Exec(EnableForeignKeys); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Create tables in dependency order
	schemas := []string{
		CreateMetaTable,
		CreateProjectsTable,
		CreateProjectsStatusIndex,
		CreateFilesTable,
		CreateFilesProjectIndex,
		CreateChunksTable,
		CreateChunksProjectIndex,
		CreateChunksFileIndex,
		CreateChatMessagesTable,
		CreateChatMessagesProjectIndex,
		CreateEditProposalsTable,
		CreateEditProposalsProjectIndex,
	}

	// Only create vec_chunks if not skipped (requires sqlite-vec extension)
	if !cfg.SkipVecTable {
		schemas = append(schemas, fmt.Sprintf(CreateVecChunksTableTemplate, db.embeddingDim))
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, schema := range schemas {
		if _, err := tx.Exec(schema); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}

	if !dbExists {
		// New database - set initial metadata
		now := time.Now().UTC().Format(time.RFC3339)
		metaInserts := map[string]string{
			MetaKeySchemaVersion: SchemaVersion,
			MetaKeyCreatedAt:     now,
			MetaKeyEmbeddingDim:  fmt.Sprintf("%d", db.embeddingDim),
		}
		for key, value := range metaInserts {
			_, err := tx.Exec("INSERT INTO meta (key, value) VALUES (?, ?)", key, value)
			if err != nil {
				return fmt.Errorf("failed to insert meta %s: %w", key, err)
			}
		}
	} else {
		// Existing database - validate embedding dimension, a mismatch
		// would make every similarity query meaningless.
		var storedDim string
		err := tx.QueryRow("SELECT value FROM meta WHERE key = ?", MetaKeyEmbeddingDim).Scan(&storedDim)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to read embedding dimension: %w", err)
		}
		if err == nil && storedDim != fmt.Sprintf("%d", db.embeddingDim) {
			return fmt.Errorf("embedding dimension mismatch: database has %s, config has %d", storedDim, db.embeddingDim)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}

	return nil
}

// Close closes the database connection and flushes WAL
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	// Checkpoint WAL before closing
	_, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	closeErr := db.conn.Close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to checkpoint WAL: %v\n", err)
	}

	db.conn = nil

	return closeErr
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// EmbeddingDim returns the configured embedding dimension
func (db *DB) EmbeddingDim() int {
	return db.embeddingDim
}

// GetMeta retrieves a metadata value by key
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("meta key not found: %s", key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta: %w", err)
	}
	return value, nil
}

// SetMeta stores a metadata key-value pair
func (db *DB) SetMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set meta: %w", err)
	}
	return nil
}

// HealthCheck verifies database connectivity and schema
func (db *DB) HealthCheck() error {
	if err := db.conn.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	version, err := db.GetMeta(MetaKeySchemaVersion)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("schema version mismatch: expected %s, got %s", SchemaVersion, version)
	}

	var journalMode string
	err = db.conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode)
	if err != nil {
		return fmt.Errorf("failed to check journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("WAL mode not enabled, got: %s", journalMode)
	}

	return nil
}
