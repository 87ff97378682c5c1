// Package search retrieves project code relevant to a natural language
// query by embedding the query and ranking chunks by vector similarity.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/codecontextai/codecontext/pkg/db"
	"github.com/codecontextai/codecontext/pkg/llm"
)

// Defaults for retrieval tuning
const (
	DefaultTopK           = 8  // results returned to callers
	DefaultOversample     = 3  // raw KNN fetch multiplier, feeds the merge step
	DefaultAdjacencyLines = 10 // max line gap for merging chunks from one file
)

// Config tunes the engine. Zero values fall back to the defaults above.
type Config struct {
	TopK           int
	Oversample     int
	AdjacencyLines int
}

// Store is the vector search surface the engine needs
type Store interface {
	SearchSimilar(projectID string, queryEmbedding []float32, k int, pathPrefix string) ([]*db.SearchResult, error)
}

// Hit is one ranked piece of evidence
type Hit struct {
	FilePath  string
	Symbol    string
	Language  string
	StartLine int
	EndLine   int
	Content   string
	Score     float64
}

// Engine embeds queries and searches the chunk index
type Engine struct {
	store     Store
	embedder  llm.EmbeddingProvider
	logger    *slog.Logger
	topK      int
	oversamp  int
	adjacency int
}

// New creates a search engine. cfg may be nil for defaults.
func New(cfg *Config, store Store, embedder llm.EmbeddingProvider, logger *slog.Logger) *Engine {
	if cfg == nil {
		cfg = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:     store,
		embedder:  embedder,
		logger:    logger,
		topK:      cfg.TopK,
		oversamp:  cfg.Oversample,
		adjacency: cfg.AdjacencyLines,
	}
	if e.topK <= 0 {
		e.topK = DefaultTopK
	}
	if e.oversamp <= 0 {
		e.oversamp = DefaultOversample
	}
	if e.adjacency <= 0 {
		e.adjacency = DefaultAdjacencyLines
	}
	return e
}

// Options tunes a single search
type Options struct {
	TopK       int    // overrides the engine's configured top-k when > 0
	PathPrefix string // restrict results to one file or directory
}

// Search returns the top chunks for a query, with chunks from the same file
// merged when their line ranges touch or sit within the configured adjacency
// threshold. An empty index yields an empty result, not an error.
func (e *Engine) Search(ctx context.Context, projectID, query string, opts Options) ([]*Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = e.topK
	}

	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}

	// Oversample so merging adjacent chunks still leaves topK candidates
	raw, err := e.store.SearchSimilar(projectID, vectors[0], topK*e.oversamp, opts.PathPrefix)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	if len(raw) == 0 {
		return []*Hit{}, nil
	}

	hits := mergeAdjacent(raw, e.adjacency)

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	e.logger.Debug("search complete",
		"project_id", projectID,
		"raw_results", len(raw),
		"merged_results", len(hits))

	return hits, nil
}

// mergeAdjacent collapses same-file chunks whose line ranges overlap or sit
// within adjacency lines of each other. The merged hit spans the union of
// lines, keeps the best score, and stitches content in line order.
func mergeAdjacent(results []*db.SearchResult, adjacency int) []*Hit {
	// Files are visited in first-seen order so equal-score hits keep the
	// ranking the store returned them in.
	byFile := make(map[string][]*db.SearchResult)
	var fileOrder []string
	for _, r := range results {
		if _, ok := byFile[r.Chunk.FilePath]; !ok {
			fileOrder = append(fileOrder, r.Chunk.FilePath)
		}
		byFile[r.Chunk.FilePath] = append(byFile[r.Chunk.FilePath], r)
	}

	var hits []*Hit
	for _, path := range fileOrder {
		group := byFile[path]
		sort.Slice(group, func(i, j int) bool {
			if group[i].Chunk.StartLine != group[j].Chunk.StartLine {
				return group[i].Chunk.StartLine < group[j].Chunk.StartLine
			}
			return group[i].Chunk.ID < group[j].Chunk.ID
		})

		var current *Hit
		var currentEnd int
		for _, r := range group {
			c := r.Chunk
			if current != nil && c.StartLine <= currentEnd+adjacency {
				// Extend the open range
				if c.EndLine > currentEnd {
					if c.StartLine > currentEnd {
						current.Content += "\n" + c.Content
					} else {
						current.Content += "\n" + tailLines(c.Content, c.EndLine-currentEnd)
					}
					currentEnd = c.EndLine
					current.EndLine = c.EndLine
				}
				if score := r.Score(); score > current.Score {
					current.Score = score
				}
				if current.Symbol == "" || strings.HasPrefix(current.Symbol, "<") {
					current.Symbol = c.Symbol
				}
				continue
			}

			current = &Hit{
				FilePath:  c.FilePath,
				Symbol:    c.Symbol,
				Language:  c.Language,
				StartLine: c.StartLine,
				EndLine:   c.EndLine,
				Content:   c.Content,
				Score:     r.Score(),
			}
			currentEnd = c.EndLine
			hits = append(hits, current)
		}
	}
	return hits
}

// tailLines returns the last n lines of content
func tailLines(content string, n int) string {
	lines := strings.Split(content, "\n")
	if n >= len(lines) {
		return content
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
