// Package patch turns proposed file contents into unified diffs and applies
// them to project trees with optimistic concurrency control.
package patch

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/codecontextai/codecontext/pkg/repo"
)

// ErrConcurrentModification is returned when the file on disk no longer
// matches the base the proposal was generated against.
var ErrConcurrentModification = errors.New("file changed since proposal was generated")

// ContextLines is the number of unchanged lines shown around each hunk
const ContextLines = 3

// HashContent returns the sha256 hex digest of file content
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Diff renders a unified diff between two versions of a file. Identical
// inputs produce an empty string, which callers treat as a no-op proposal.
func Diff(path, before, after string) (string, error) {
	if before == after {
		return "", nil
	}

	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  ContextLines,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return "", fmt.Errorf("failed to render diff: %w", err)
	}
	return text, nil
}

// Validate checks that a stored patch still derives from the given base and
// proposed contents. A proposal whose diff cannot be reproduced was
// corrupted and must not be applied.
func Validate(path, base, proposed, storedPatch string) error {
	regenerated, err := Diff(path, base, proposed)
	if err != nil {
		return err
	}
	if regenerated != storedPatch {
		return fmt.Errorf("stored patch does not match its base and proposed content")
	}
	return nil
}

// Result reports what Apply did
type Result struct {
	Changed bool
	NewHash string
}

// Apply writes proposed content to a project file. The current on-disk
// content must hash to baseHash or ErrConcurrentModification is returned.
// Content identical to the base is a successful no-op. The write goes
// through a temp file and rename so readers never see a partial file.
func Apply(root, rel, baseHash, proposed string) (*Result, error) {
	abs, _, err := repo.StatWithin(root, rel)
	if err != nil {
		return nil, err
	}

	current, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}
	if HashContent(string(current)) != baseHash {
		return nil, fmt.Errorf("%w: %s", ErrConcurrentModification, rel)
	}

	if string(current) == proposed {
		return &Result{Changed: false, NewHash: baseHash}, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(abs), ".patch-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(proposed); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	// Preserve the original file mode
	if info, err := os.Stat(abs); err == nil {
		os.Chmod(tmpName, info.Mode().Perm())
	}

	if err := os.Rename(tmpName, abs); err != nil {
		return nil, fmt.Errorf("failed to replace %s: %w", rel, err)
	}

	return &Result{Changed: true, NewHash: HashContent(proposed)}, nil
}
