package db

// Schema version for migration tracking
const SchemaVersion = "1.0.0"

// DDL statements for database initialization
const (
	// Meta table stores configuration and version info
	CreateMetaTable = `
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`

	// Projects table is the root entity; vector and chat state hang off it
	// and are destroyed with it.
	CreateProjectsTable = `
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    source_type TEXT NOT NULL,
    source_url TEXT,
    root_path TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'indexing',
    total_files INTEGER NOT NULL DEFAULT 0,
    total_chunks INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    claimed_at DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`

	CreateProjectsStatusIndex = `
CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status, claimed_at);`

	// Files table tracks indexed files for change detection and per-file
	// chunk replacement.
	CreateFilesTable = `
CREATE TABLE IF NOT EXISTS files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    path TEXT NOT NULL,
    language TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL DEFAULT '',
    last_mod_time INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'indexed',
    error_message TEXT,
    indexed_at DATETIME,
    UNIQUE(project_id, path)
);`

	CreateFilesProjectIndex = `
CREATE INDEX IF NOT EXISTS idx_files_project ON files(project_id);`

	// Chunks table holds chunk text and metadata; embeddings live in the
	// vec_chunks virtual table keyed by the chunk rowid.
	CreateChunksTable = `
CREATE TABLE IF NOT EXISTS chunks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    chunk_key TEXT NOT NULL,
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    file_path TEXT NOT NULL,
    symbol TEXT NOT NULL DEFAULT '',
    language TEXT NOT NULL DEFAULT '',
    start_line INTEGER NOT NULL,
    end_line INTEGER NOT NULL,
    content TEXT NOT NULL
);`

	CreateChunksProjectIndex = `
CREATE INDEX IF NOT EXISTS idx_chunks_project ON chunks(project_id);`

	CreateChunksFileIndex = `
CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_id);`

	// Vec_chunks virtual table for vector similarity search.
	// Dimension must be specified at creation time. Cosine distance suits
	// text embeddings; raw vectors are stored, no pre-normalization assumed.
	// project_id is a partition key: KNN with a project_id constraint scans
	// only that project's vectors, so k is applied per project rather than
	// across the whole table.
	CreateVecChunksTableTemplate = `
CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    chunk_id INTEGER PRIMARY KEY,
    project_id TEXT partition key,
    embedding FLOAT[%d] distance_metric=cosine
);`

	// Chat messages are append-only and ordered by rowid.
	CreateChatMessagesTable = `
CREATE TABLE IF NOT EXISTS chat_messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    sources TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`

	CreateChatMessagesProjectIndex = `
CREATE INDEX IF NOT EXISTS idx_chat_messages_project ON chat_messages(project_id);`

	// Edit proposals record every generated edit and whether it was applied.
	CreateEditProposalsTable = `
CREATE TABLE IF NOT EXISTS edit_proposals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    file_path TEXT NOT NULL,
    instruction TEXT NOT NULL,
    provider TEXT NOT NULL,
    proposed_content TEXT NOT NULL,
    patch TEXT NOT NULL DEFAULT '',
    base_hash TEXT NOT NULL DEFAULT '',
    applied INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    applied_at DATETIME
);`

	CreateEditProposalsProjectIndex = `
CREATE INDEX IF NOT EXISTS idx_edit_proposals_project ON edit_proposals(project_id, file_path);`

	// Enable WAL mode for concurrent reads/writes
	EnableWALMode = `PRAGMA journal_mode=WAL;`

	// Set reasonable WAL checkpoint parameters
	SetWALCheckpoint = `PRAGMA wal_autocheckpoint=1000;`

	// Enable foreign key constraints
	EnableForeignKeys = `PRAGMA foreign_keys=ON;`
)

// MetaKeys are standard keys stored in the meta table
const (
	MetaKeySchemaVersion = "schema_version"
	MetaKeyCreatedAt     = "created_at"
	MetaKeyEmbeddingDim  = "embedding_dimension"
)
