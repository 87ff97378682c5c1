package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(Config{
		Path:         dbPath,
		EmbeddingDim: 384,
		SkipVecTable: true,
	})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_NewDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	cfg := Config{
		Path:         dbPath,
		EmbeddingDim: 384,
		SkipVecTable: true,
	}

	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("Database file was not created")
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		t.Fatalf("Failed to stat database file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected permissions 0600, got %o", info.Mode().Perm())
	}

	if db.EmbeddingDim() != 384 {
		t.Errorf("Expected embedding dim 384, got %d", db.EmbeddingDim())
	}

	version, err := db.GetMeta(MetaKeySchemaVersion)
	if err != nil {
		t.Fatalf("Failed to read schema version: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("Expected schema version %s, got %s", SchemaVersion, version)
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		errMsg string
	}{
		{
			name:   "empty path",
			config: Config{Path: "", EmbeddingDim: 384, SkipVecTable: true},
			errMsg: "path cannot be empty",
		},
		{
			name:   "zero dimension",
			config: Config{Path: "/tmp/test.db", EmbeddingDim: 0, SkipVecTable: true},
			errMsg: "must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := Open(tt.config)
			if err == nil {
				db.Close()
				t.Fatalf("Expected error containing %q, got nil", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Expected error containing %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestOpen_DimensionMismatch(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := Open(Config{Path: dbPath, EmbeddingDim: 384, SkipVecTable: true})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	db.Close()

	_, err = Open(Config{Path: dbPath, EmbeddingDim: 768, SkipVecTable: true})
	if err == nil {
		t.Fatal("Expected dimension mismatch error, got nil")
	}
	if !strings.Contains(err.Error(), "dimension mismatch") {
		t.Errorf("Expected dimension mismatch error, got %q", err.Error())
	}
}

func TestProjectLifecycle(t *testing.T) {
	db := openTestDB(t)

	p := &Project{
		ID:         "proj-1",
		Name:       "demo",
		SourceType: SourceTypeGit,
		SourceURL:  "https://example.com/demo.git",
		RootPath:   "/tmp/projects/proj-1",
	}
	if err := db.CreateProject(p); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	got, err := db.GetProject("proj-1")
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected project, got nil")
	}
	if got.Status != ProjectStatusIndexing {
		t.Errorf("Expected status indexing, got %s", got.Status)
	}
	if got.SourceURL != p.SourceURL {
		t.Errorf("Expected source URL %s, got %s", p.SourceURL, got.SourceURL)
	}

	if err := db.MarkProjectReady("proj-1", 12, 84); err != nil {
		t.Fatalf("MarkProjectReady failed: %v", err)
	}

	got, err = db.GetProject("proj-1")
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got.Status != ProjectStatusReady {
		t.Errorf("Expected status ready, got %s", got.Status)
	}
	if got.TotalFiles != 12 || got.TotalChunks != 84 {
		t.Errorf("Expected totals 12/84, got %d/%d", got.TotalFiles, got.TotalChunks)
	}

	if err := db.UpdateProjectStatus("proj-1", ProjectStatusError, "clone failed"); err != nil {
		t.Fatalf("UpdateProjectStatus failed: %v", err)
	}
	got, _ = db.GetProject("proj-1")
	if got.ErrorMessage != "clone failed" {
		t.Errorf("Expected error message, got %q", got.ErrorMessage)
	}
}

func TestGetProject_NotFound(t *testing.T) {
	db := openTestDB(t)

	p, err := db.GetProject("missing")
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if p != nil {
		t.Errorf("Expected nil for missing project, got %+v", p)
	}
}

func TestUpdateProjectStatus_NotFound(t *testing.T) {
	db := openTestDB(t)

	err := db.UpdateProjectStatus("missing", ProjectStatusReady, "")
	if err == nil {
		t.Fatal("Expected error for missing project, got nil")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected not found error, got %q", err.Error())
	}
}

func TestClaimNextIndexingProject(t *testing.T) {
	db := openTestDB(t)

	// No projects queued
	p, err := db.ClaimNextIndexingProject(10 * time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextIndexingProject failed: %v", err)
	}
	if p != nil {
		t.Fatalf("Expected nil claim on empty queue, got %+v", p)
	}

	if err := db.CreateProject(&Project{ID: "a", Name: "a", SourceType: SourceTypeLocal, RootPath: "/tmp/a"}); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if err := db.CreateProject(&Project{ID: "b", Name: "b", SourceType: SourceTypeLocal, RootPath: "/tmp/b"}); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	// First claim takes the oldest
	p, err = db.ClaimNextIndexingProject(10 * time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextIndexingProject failed: %v", err)
	}
	if p == nil || p.ID != "a" {
		t.Fatalf("Expected to claim project a, got %+v", p)
	}
	if !p.ClaimedAt.Valid {
		t.Error("Expected claimed_at to be set")
	}

	// Second claim skips the claimed project
	p, err = db.ClaimNextIndexingProject(10 * time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextIndexingProject failed: %v", err)
	}
	if p == nil || p.ID != "b" {
		t.Fatalf("Expected to claim project b, got %+v", p)
	}

	// Both claimed, nothing left
	p, err = db.ClaimNextIndexingProject(10 * time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextIndexingProject failed: %v", err)
	}
	if p != nil {
		t.Fatalf("Expected nil, got %+v", p)
	}

	// A negative stale window makes existing claims immediately reclaimable
	p, err = db.ClaimNextIndexingProject(-time.Second)
	if err != nil {
		t.Fatalf("ClaimNextIndexingProject failed: %v", err)
	}
	if p == nil {
		t.Fatal("Expected stale claim to be reclaimed")
	}
}

func TestFileUpsert(t *testing.T) {
	db := openTestDB(t)

	if err := db.CreateProject(&Project{ID: "p1", Name: "p1", SourceType: SourceTypeLocal, RootPath: "/tmp/p1"}); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	f := &File{
		ProjectID:   "p1",
		Path:        "src/main.go",
		Language:    "go",
		ContentHash: "abc123",
		LastModTime: 1000,
	}
	id1, err := db.UpsertFile(f)
	if err != nil {
		t.Fatalf("UpsertFile failed: %v", err)
	}
	if id1 == 0 {
		t.Fatal("Expected non-zero file id")
	}

	// Upserting the same path updates in place and keeps the id
	f.ContentHash = "def456"
	f.LastModTime = 2000
	id2, err := db.UpsertFile(f)
	if err != nil {
		t.Fatalf("UpsertFile update failed: %v", err)
	}
	if id2 != id1 {
		t.Errorf("Expected stable id %d, got %d", id1, id2)
	}

	got, err := db.GetFile("p1", "src/main.go")
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	if got.ContentHash != "def456" || got.LastModTime != 2000 {
		t.Errorf("Upsert did not update fields: %+v", got)
	}

	count, err := db.CountFiles("p1")
	if err != nil {
		t.Fatalf("CountFiles failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 file, got %d", count)
	}
}

func TestReplaceFileChunks(t *testing.T) {
	db := openTestDB(t)

	if err := db.CreateProject(&Project{ID: "p1", Name: "p1", SourceType: SourceTypeLocal, RootPath: "/tmp/p1"}); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	fileID, err := db.UpsertFile(&File{ProjectID: "p1", Path: "a.go", Language: "go", ContentHash: "h1"})
	if err != nil {
		t.Fatalf("UpsertFile failed: %v", err)
	}

	emb := make([]float32, 384)
	chunks := []*Chunk{
		{ChunkKey: "k1", ProjectID: "p1", FilePath: "a.go", Symbol: "Foo", Language: "go", StartLine: 1, EndLine: 10, Content: "func Foo() {}"},
		{ChunkKey: "k2", ProjectID: "p1", FilePath: "a.go", Symbol: "Bar", Language: "go", StartLine: 11, EndLine: 20, Content: "func Bar() {}"},
	}
	if err := db.ReplaceFileChunks(fileID, chunks, [][]float32{emb, emb}); err != nil {
		t.Fatalf("ReplaceFileChunks failed: %v", err)
	}

	got, err := db.GetFileChunks(fileID)
	if err != nil {
		t.Fatalf("GetFileChunks failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(got))
	}
	if got[0].Symbol != "Foo" || got[1].Symbol != "Bar" {
		t.Errorf("Unexpected chunk order: %s, %s", got[0].Symbol, got[1].Symbol)
	}

	// Replacing again swaps the full set
	replacement := []*Chunk{
		{ChunkKey: "k3", ProjectID: "p1", FilePath: "a.go", Symbol: "Baz", Language: "go", StartLine: 1, EndLine: 5, Content: "func Baz() {}"},
	}
	if err := db.ReplaceFileChunks(fileID, replacement, [][]float32{emb}); err != nil {
		t.Fatalf("ReplaceFileChunks replace failed: %v", err)
	}

	got, err = db.GetFileChunks(fileID)
	if err != nil {
		t.Fatalf("GetFileChunks failed: %v", err)
	}
	if len(got) != 1 || got[0].ChunkKey != "k3" {
		t.Fatalf("Expected single k3 chunk after replace, got %+v", got)
	}

	count, err := db.CountProjectChunks("p1")
	if err != nil {
		t.Fatalf("CountProjectChunks failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 chunk, got %d", count)
	}
}

func TestReplaceFileChunks_CountMismatch(t *testing.T) {
	db := openTestDB(t)

	err := db.ReplaceFileChunks(1, []*Chunk{{ChunkKey: "k"}}, nil)
	if err == nil {
		t.Fatal("Expected count mismatch error, got nil")
	}
	if !strings.Contains(err.Error(), "mismatch") {
		t.Errorf("Expected mismatch error, got %q", err.Error())
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	db := openTestDB(t)

	if err := db.CreateProject(&Project{ID: "p1", Name: "p1", SourceType: SourceTypeLocal, RootPath: "/tmp/p1"}); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	fileID, err := db.UpsertFile(&File{ProjectID: "p1", Path: "a.go", ContentHash: "h"})
	if err != nil {
		t.Fatalf("UpsertFile failed: %v", err)
	}
	emb := make([]float32, 384)
	chunks := []*Chunk{{ChunkKey: "k1", ProjectID: "p1", FilePath: "a.go", StartLine: 1, EndLine: 2, Content: "x"}}
	if err := db.ReplaceFileChunks(fileID, chunks, [][]float32{emb}); err != nil {
		t.Fatalf("ReplaceFileChunks failed: %v", err)
	}
	if _, err := db.AppendChatMessage("p1", RoleUser, "hello", nil); err != nil {
		t.Fatalf("AppendChatMessage failed: %v", err)
	}

	if err := db.DeleteProject("p1"); err != nil {
		t.Fatalf("DeleteProject failed: %v", err)
	}

	if p, _ := db.GetProject("p1"); p != nil {
		t.Error("Project still present after delete")
	}
	if count, _ := db.CountFiles("p1"); count != 0 {
		t.Errorf("Expected 0 files after delete, got %d", count)
	}
	if count, _ := db.CountProjectChunks("p1"); count != 0 {
		t.Errorf("Expected 0 chunks after delete, got %d", count)
	}
	msgs, err := db.ListChatMessages("p1", 0)
	if err != nil {
		t.Fatalf("ListChatMessages failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("Expected 0 messages after delete, got %d", len(msgs))
	}
}

func TestChatMessages(t *testing.T) {
	db := openTestDB(t)

	if err := db.CreateProject(&Project{ID: "p1", Name: "p1", SourceType: SourceTypeLocal, RootPath: "/tmp/p1"}); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	if _, err := db.AppendChatMessage("p1", RoleUser, "what does Foo do?", nil); err != nil {
		t.Fatalf("AppendChatMessage failed: %v", err)
	}
	sources := []SourceRef{{FilePath: "a.go", StartLine: 1, EndLine: 10, Symbol: "Foo", Score: 0.91}}
	if _, err := db.AppendChatMessage("p1", RoleAssistant, "Foo does X", sources); err != nil {
		t.Fatalf("AppendChatMessage failed: %v", err)
	}

	msgs, err := db.ListChatMessages("p1", 0)
	if err != nil {
		t.Fatalf("ListChatMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Errorf("Messages out of order: %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if len(msgs[0].Sources) != 0 {
		t.Errorf("User message should have no sources, got %d", len(msgs[0].Sources))
	}
	if len(msgs[1].Sources) != 1 || msgs[1].Sources[0].Symbol != "Foo" {
		t.Errorf("Assistant sources not round-tripped: %+v", msgs[1].Sources)
	}

	// Limit returns the most recent messages, still chronological
	for i := 0; i < 5; i++ {
		if _, err := db.AppendChatMessage("p1", RoleUser, "more", nil); err != nil {
			t.Fatalf("AppendChatMessage failed: %v", err)
		}
	}
	msgs, err = db.ListChatMessages("p1", 3)
	if err != nil {
		t.Fatalf("ListChatMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages with limit, got %d", len(msgs))
	}
	if msgs[0].ID >= msgs[1].ID || msgs[1].ID >= msgs[2].ID {
		t.Error("Limited messages not in chronological order")
	}

	if err := db.ClearChatMessages("p1"); err != nil {
		t.Fatalf("ClearChatMessages failed: %v", err)
	}
	msgs, _ = db.ListChatMessages("p1", 0)
	if len(msgs) != 0 {
		t.Errorf("Expected empty history after clear, got %d", len(msgs))
	}
}

func TestEditProposals(t *testing.T) {
	db := openTestDB(t)

	if err := db.CreateProject(&Project{ID: "p1", Name: "p1", SourceType: SourceTypeLocal, RootPath: "/tmp/p1"}); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	p := &EditProposal{
		ProjectID:       "p1",
		FilePath:        "a.go",
		Instruction:     "rename Foo to Bar",
		Provider:        "openai",
		ProposedContent: "func Bar() {}",
		Patch:           "--- a/a.go\n+++ b/a.go\n",
		BaseHash:        "abc",
	}
	id, err := db.InsertEditProposal(p)
	if err != nil {
		t.Fatalf("InsertEditProposal failed: %v", err)
	}

	got, err := db.GetEditProposal(id)
	if err != nil {
		t.Fatalf("GetEditProposal failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected proposal, got nil")
	}
	if got.Applied {
		t.Error("New proposal should not be applied")
	}
	if got.Instruction != p.Instruction {
		t.Errorf("Expected instruction %q, got %q", p.Instruction, got.Instruction)
	}

	if err := db.MarkProposalApplied(id); err != nil {
		t.Fatalf("MarkProposalApplied failed: %v", err)
	}
	got, _ = db.GetEditProposal(id)
	if !got.Applied {
		t.Error("Expected proposal to be applied")
	}
	if !got.AppliedAt.Valid {
		t.Error("Expected applied_at to be set")
	}

	missing, err := db.GetEditProposal(9999)
	if err != nil {
		t.Fatalf("GetEditProposal failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for missing proposal, got %+v", missing)
	}
}

func TestVecTablePartitionsByProject(t *testing.T) {
	// The KNN k limit applies within a partition, so one project's
	// nearest chunks cannot be crowded out by another project's
	// vectors. Without the partition key, k would be applied across
	// the whole table before the project filter.
	ddl := fmt.Sprintf(CreateVecChunksTableTemplate, 384)
	if !strings.Contains(ddl, "project_id TEXT partition key") {
		t.Fatalf("vec_chunks DDL must partition by project_id, got:\n%s", ddl)
	}
}

func TestFilterByPathPrefix(t *testing.T) {
	mk := func(path string) *SearchResult {
		return &SearchResult{Chunk: &Chunk{FilePath: path}}
	}
	results := []*SearchResult{
		mk("src/api/auth.go"),
		mk("docs/readme.md"),
		mk("src/api/users.go"),
		mk("src/db/conn.go"),
	}

	got := filterByPathPrefix(results, "src/", 2)
	if len(got) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(got))
	}
	if got[0].Chunk.FilePath != "src/api/auth.go" || got[1].Chunk.FilePath != "src/api/users.go" {
		t.Errorf("Unexpected filtered paths: %q, %q", got[0].Chunk.FilePath, got[1].Chunk.FilePath)
	}

	all := []*SearchResult{mk("a.go"), mk("b.go")}
	if got := filterByPathPrefix(all, "", 10); len(got) != 2 {
		t.Errorf("Empty prefix should keep everything, got %d results", len(got))
	}
	if got := filterByPathPrefix(all, "", 1); len(got) != 1 {
		t.Errorf("Expected truncation to k=1, got %d results", len(got))
	}
}
