// Package indexer turns project trees into searchable chunk embeddings.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/codecontextai/codecontext/pkg/chunker"
	"github.com/codecontextai/codecontext/pkg/db"
	"github.com/codecontextai/codecontext/pkg/llm"
	"github.com/codecontextai/codecontext/pkg/patch"
	"github.com/codecontextai/codecontext/pkg/repo"
)

// Defaults for indexing throughput and failure handling
const (
	DefaultConcurrency = 4
	DefaultBatchSize   = 64

	// FailureThreshold is the fraction of files that may fail before the
	// whole project is marked as errored instead of ready.
	FailureThreshold = 0.2
)

// Store is the persistence surface the indexer needs
type Store interface {
	GetFile(projectID, path string) (*db.File, error)
	ListFiles(projectID string) ([]*db.File, error)
	UpsertFile(f *db.File) (int64, error)
	MarkFileError(projectID, path, message string) error
	DeleteFile(projectID, path string) error
	ReplaceFileChunks(fileID int64, chunks []*db.Chunk, embeddings [][]float32) error
	MarkProjectReady(id string, totalFiles, totalChunks int) error
	UpdateProjectStatus(id, status, errorMessage string) error
	UpdateProjectTotals(id string) error
}

// Config holds indexer configuration
type Config struct {
	Concurrency int
	BatchSize   int
}

// Indexer chunks, embeds and stores project files
type Indexer struct {
	store       Store
	embedder    llm.EmbeddingProvider
	chunker     *chunker.Chunker
	concurrency int
	batchSize   int
}

// New creates an indexer with defaults filled in
func New(cfg *Config, store Store, embedder llm.EmbeddingProvider) *Indexer {
	if cfg == nil {
		cfg = &Config{}
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Indexer{
		store:       store,
		embedder:    embedder,
		chunker:     chunker.New(chunker.Config{}),
		concurrency: concurrency,
		batchSize:   batchSize,
	}
}

// Result summarizes an indexing run
type Result struct {
	FilesIndexed int
	FilesSkipped int
	FilesFailed  int
	TotalChunks  int
}

// IndexProject indexes every file under a project root and transitions the
// project to ready or error. Files failing individually are recorded but do
// not abort the run unless the failure ratio crosses FailureThreshold.
func (idx *Indexer) IndexProject(ctx context.Context, project *db.Project) (*Result, error) {
	slog.Info("Indexing project", "project_id", project.ID, "root", project.RootPath)

	files, err := repo.ScanFiles(project.RootPath)
	if err != nil {
		msg := fmt.Sprintf("scan failed: %v", err)
		if dbErr := idx.store.UpdateProjectStatus(project.ID, db.ProjectStatusError, msg); dbErr != nil {
			slog.Error("Failed to record project error", "project_id", project.ID, "error", dbErr)
		}
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}

	var mu sync.Mutex
	result := &Result{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)

	for _, f := range files {
		f := f
		g.Go(func() error {
			chunks, skipped, err := idx.indexOne(gctx, project, f)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.FilesFailed++
				slog.Warn("File indexing failed", "project_id", project.ID, "file", f.Path, "error", err)
				if dbErr := idx.store.MarkFileError(project.ID, f.Path, err.Error()); dbErr != nil {
					slog.Error("Failed to record file error", "file", f.Path, "error", dbErr)
				}
			case skipped:
				result.FilesSkipped++
			default:
				result.FilesIndexed++
				result.TotalChunks += chunks
			}
			// Per-file failures are tolerated, only a cancelled context
			// stops the group.
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		// A cancelled run is not a failed project. Leaving the status at
		// indexing lets the stale-claim sweep hand it to the next worker
		// after a restart; error is reserved for the project itself being
		// unindexable.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			slog.Info("Indexing interrupted, leaving project for retry", "project_id", project.ID)
			return result, fmt.Errorf("indexing interrupted: %w", err)
		}
		if stErr := idx.store.UpdateProjectStatus(project.ID, db.ProjectStatusError, "indexing interrupted"); stErr != nil {
			slog.Error("Failed to record project error", "project_id", project.ID, "error", stErr)
		}
		return result, fmt.Errorf("indexing interrupted: %w", err)
	}

	if err := idx.pruneDeleted(project, files); err != nil {
		slog.Warn("Failed to prune deleted files", "project_id", project.ID, "error", err)
	}

	attempted := result.FilesIndexed + result.FilesSkipped + result.FilesFailed
	if attempted > 0 && float64(result.FilesFailed)/float64(attempted) > FailureThreshold {
		msg := fmt.Sprintf("%d of %d files failed to index", result.FilesFailed, attempted)
		if err := idx.store.UpdateProjectStatus(project.ID, db.ProjectStatusError, msg); err != nil {
			return result, fmt.Errorf("failed to record project error: %w", err)
		}
		return result, fmt.Errorf("indexing failed: %s", msg)
	}

	totalFiles := result.FilesIndexed + result.FilesSkipped
	totalChunks, err := idx.countChunks(project.ID)
	if err != nil {
		totalChunks = result.TotalChunks
	}
	if err := idx.store.MarkProjectReady(project.ID, totalFiles, totalChunks); err != nil {
		return result, fmt.Errorf("failed to mark project ready: %w", err)
	}

	slog.Info("Project indexed",
		"project_id", project.ID,
		"files_indexed", result.FilesIndexed,
		"files_skipped", result.FilesSkipped,
		"files_failed", result.FilesFailed,
		"chunks", totalChunks)

	return result, nil
}

// countChunks asks the store for the real chunk total when it can
func (idx *Indexer) countChunks(projectID string) (int, error) {
	counter, ok := idx.store.(interface {
		CountProjectChunks(projectID string) (int64, error)
	})
	if !ok {
		return 0, errors.New("store does not count chunks")
	}
	n, err := counter.CountProjectChunks(projectID)
	return int(n), err
}

// indexOne processes a single scanned file. Returns the chunk count and
// whether the file was skipped as unchanged.
func (idx *Indexer) indexOne(ctx context.Context, project *db.Project, f *repo.FileInfo) (int, bool, error) {
	content, err := repo.ReadFile(project.RootPath, f.Path)
	if err != nil {
		if errors.Is(err, repo.ErrNotTextFile) {
			return 0, true, nil
		}
		return 0, false, err
	}

	hash := patch.HashContent(content)

	existing, err := idx.store.GetFile(project.ID, f.Path)
	if err != nil {
		return 0, false, err
	}
	if existing != nil && existing.ContentHash == hash && existing.Status == db.FileStatusIndexed {
		return 0, true, nil
	}

	chunks := idx.chunker.Chunk(f.Path, content, f.Language)

	fileID, err := idx.store.UpsertFile(&db.File{
		ProjectID:   project.ID,
		Path:        f.Path,
		Language:    f.Language,
		ContentHash: hash,
		LastModTime: f.ModTime,
		Status:      db.FileStatusIndexed,
	})
	if err != nil {
		return 0, false, err
	}

	if len(chunks) == 0 {
		// Empty file, clear any stale chunks
		if err := idx.store.ReplaceFileChunks(fileID, nil, nil); err != nil {
			return 0, false, err
		}
		return 0, false, nil
	}

	embeddings, err := idx.embedChunks(ctx, chunks)
	if err != nil {
		return 0, false, fmt.Errorf("embedding failed: %w", err)
	}

	records := make([]*db.Chunk, len(chunks))
	for i, c := range chunks {
		records[i] = &db.Chunk{
			ChunkKey:  chunker.StableID(project.ID, c.FilePath, hash, c.StartLine, c.EndLine),
			ProjectID: project.ID,
			FilePath:  c.FilePath,
			Symbol:    c.Symbol,
			Language:  c.Language,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Content:   c.Content,
		}
	}

	if err := idx.store.ReplaceFileChunks(fileID, records, embeddings); err != nil {
		return 0, false, err
	}

	return len(records), false, nil
}

// embedChunks embeds chunk contents in batches
func (idx *Indexer) embedChunks(ctx context.Context, chunks []chunker.Chunk) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(chunks))

	for start := 0; start < len(chunks); start += idx.batchSize {
		end := start + idx.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		batch, err := idx.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), len(texts))
		}
		embeddings = append(embeddings, batch...)
	}

	return embeddings, nil
}

// pruneDeleted removes DB records for files no longer present on disk
func (idx *Indexer) pruneDeleted(project *db.Project, scanned []*repo.FileInfo) error {
	present := make(map[string]bool, len(scanned))
	for _, f := range scanned {
		present[f.Path] = true
	}

	tracked, err := idx.store.ListFiles(project.ID)
	if err != nil {
		return err
	}

	for _, f := range tracked {
		if present[f.Path] {
			continue
		}
		slog.Debug("Pruning deleted file", "project_id", project.ID, "file", f.Path)
		if err := idx.store.DeleteFile(project.ID, f.Path); err != nil {
			return err
		}
	}
	return nil
}

// IndexSingleFile re-indexes one file after a change notification. A file
// that vanished from disk is pruned instead. Project totals are refreshed
// either way.
func (idx *Indexer) IndexSingleFile(ctx context.Context, project *db.Project, relPath string) error {
	lang := repo.DetectLanguage(relPath)
	if lang == "" {
		return nil
	}

	_, info, err := repo.StatWithin(project.RootPath, relPath)
	if errors.Is(err, repo.ErrPathNotFound) {
		if err := idx.store.DeleteFile(project.ID, relPath); err != nil {
			return err
		}
		return idx.store.UpdateProjectTotals(project.ID)
	}
	if err != nil {
		return err
	}

	f := &repo.FileInfo{
		Path:     relPath,
		Language: lang,
		Size:     info.Size(),
		ModTime:  info.ModTime().Unix(),
	}

	if _, _, err := idx.indexOne(ctx, project, f); err != nil {
		if dbErr := idx.store.MarkFileError(project.ID, relPath, err.Error()); dbErr != nil {
			slog.Error("Failed to record file error", "file", relPath, "error", dbErr)
		}
		return err
	}

	return idx.store.UpdateProjectTotals(project.ID)
}
