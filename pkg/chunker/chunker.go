package chunker

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Chunk is a contiguous span of a source file treated as one retrieval unit.
// Line numbers are 1-indexed and inclusive.
type Chunk struct {
	FilePath  string
	Language  string
	Symbol    string
	StartLine int
	EndLine   int
	Content   string
}

// Config holds chunking policy knobs.
type Config struct {
	MaxLines      int // structural units longer than this are split
	MinLines      int // structural units shorter than this are merged with a sibling
	FallbackLines int // window size for the line-window fallback
	OverlapLines  int // overlap between consecutive fallback windows
}

// DefaultConfig returns the chunking defaults.
func DefaultConfig() Config {
	return Config{
		MaxLines:      200,
		MinLines:      3,
		FallbackLines: 150,
		OverlapLines:  20,
	}
}

// Chunker splits file content into retrieval units. Chunking is deterministic:
// identical input always yields identical boundaries.
type Chunker struct {
	cfg Config
}

// New creates a chunker with the given config, filling in defaults for
// unset fields.
func New(cfg Config) *Chunker {
	def := DefaultConfig()
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = def.MaxLines
	}
	if cfg.MinLines <= 0 {
		cfg.MinLines = def.MinLines
	}
	if cfg.FallbackLines <= 0 {
		cfg.FallbackLines = def.FallbackLines
	}
	if cfg.OverlapLines < 0 || cfg.OverlapLines >= cfg.FallbackLines {
		cfg.OverlapLines = def.OverlapLines
	}
	return &Chunker{cfg: cfg}
}

// Chunk splits a file into ordered, non-overlapping chunks. Structural
// boundaries are used when the language has a parser or heuristic; otherwise
// the content is windowed by lines. Empty content yields no chunks.
func (c *Chunker) Chunk(path, content, language string) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var units []unit
	switch language {
	case "go":
		units = goUnits(content)
	case "python":
		units = pythonUnits(content)
	case "javascript", "typescript":
		units = javascriptUnits(content)
	}

	lines := strings.Split(content, "\n")

	if len(units) == 0 {
		return c.windowChunks(path, lines, language)
	}

	units = c.normalizeUnits(units, len(lines))

	var chunks []Chunk
	for _, u := range units {
		if u.end-u.start+1 > c.cfg.MaxLines {
			chunks = append(chunks, c.splitUnit(path, lines, language, u)...)
			continue
		}
		chunks = append(chunks, Chunk{
			FilePath:  path,
			Language:  language,
			Symbol:    u.symbol,
			StartLine: u.start,
			EndLine:   u.end,
			Content:   joinLines(lines, u.start, u.end),
		})
	}
	return chunks
}

// unit is a structural candidate chunk before size normalization.
type unit struct {
	symbol string
	start  int // 1-indexed
	end    int // 1-indexed inclusive
}

// normalizeUnits clips units to the file, drops empty ones and merges units
// smaller than MinLines into the following sibling (the trailing one merges
// backwards).
func (c *Chunker) normalizeUnits(units []unit, totalLines int) []unit {
	var clipped []unit
	for _, u := range units {
		if u.start < 1 {
			u.start = 1
		}
		if u.end > totalLines {
			u.end = totalLines
		}
		if u.end < u.start {
			continue
		}
		clipped = append(clipped, u)
	}

	var merged []unit
	for i := 0; i < len(clipped); i++ {
		u := clipped[i]
		for u.end-u.start+1 < c.cfg.MinLines && i+1 < len(clipped) {
			next := clipped[i+1]
			u.end = next.end
			// Prefer a real symbol over a synthetic marker like <imports>.
			if strings.HasPrefix(u.symbol, "<") && !strings.HasPrefix(next.symbol, "<") {
				u.symbol = next.symbol
			}
			i++
		}
		if u.end-u.start+1 < c.cfg.MinLines && len(merged) > 0 {
			merged[len(merged)-1].end = u.end
			continue
		}
		merged = append(merged, u)
	}
	return merged
}

// splitUnit breaks an oversized structural unit into line windows, keeping
// the unit's symbol on each piece.
func (c *Chunker) splitUnit(path string, lines []string, language string, u unit) []Chunk {
	var chunks []Chunk
	part := 0
	for start := u.start; start <= u.end; start += c.cfg.MaxLines {
		end := min(start+c.cfg.MaxLines-1, u.end)
		symbol := u.symbol
		if part > 0 {
			symbol = fmt.Sprintf("%s[%d]", u.symbol, part)
		}
		chunks = append(chunks, Chunk{
			FilePath:  path,
			Language:  language,
			Symbol:    symbol,
			StartLine: start,
			EndLine:   end,
			Content:   joinLines(lines, start, end),
		})
		part++
	}
	return chunks
}

// windowChunks is the fallback for languages without structural support:
// fixed-size sliding line windows with overlap. Every line is covered by at
// least one chunk and no chunk exceeds the window size.
func (c *Chunker) windowChunks(path string, lines []string, language string) []Chunk {
	total := len(lines)
	if total <= c.cfg.FallbackLines {
		return []Chunk{{
			FilePath:  path,
			Language:  language,
			Symbol:    "<file>",
			StartLine: 1,
			EndLine:   total,
			Content:   joinLines(lines, 1, total),
		}}
	}

	stride := c.cfg.FallbackLines - c.cfg.OverlapLines
	var chunks []Chunk
	idx := 0
	for start := 1; start <= total; start += stride {
		end := min(start+c.cfg.FallbackLines-1, total)
		chunks = append(chunks, Chunk{
			FilePath:  path,
			Language:  language,
			Symbol:    fmt.Sprintf("<block_%d>", idx),
			StartLine: start,
			EndLine:   end,
			Content:   joinLines(lines, start, end),
		})
		idx++
		if end >= total {
			break
		}
	}
	return chunks
}

// StableID derives a chunk id from path, line range and the file's content
// hash. Re-indexing unchanged content yields the same id.
func StableID(projectID, path, contentHash string, startLine, endLine int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d|%d", projectID, path, contentHash, startLine, endLine)))
	return fmt.Sprintf("%x", sum[:12])
}

func joinLines(lines []string, start, end int) string {
	return strings.Join(lines[start-1:end], "\n")
}
