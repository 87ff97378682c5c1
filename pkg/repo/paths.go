package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveWithin resolves a client-supplied relative path against a project
// root and guarantees the result stays inside it. Absolute paths, empty
// paths and ".." escapes are rejected with ErrPathTraversal.
func ResolveWithin(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrPathTraversal)
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, rel)
	}

	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, rel)
	}

	abs := filepath.Join(root, cleaned)

	// Join+Clean already prevents escapes, this guards against a
	// pathological root value.
	rootClean := filepath.Clean(root)
	if abs != rootClean && !strings.HasPrefix(abs, rootClean+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, rel)
	}

	return abs, nil
}

// StatWithin resolves a path and verifies it exists as a regular file
func StatWithin(root, rel string) (string, os.FileInfo, error) {
	abs, err := ResolveWithin(root, rel)
	if err != nil {
		return "", nil, err
	}

	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return "", nil, fmt.Errorf("%w: %s", ErrPathNotFound, rel)
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to stat %s: %w", rel, err)
	}
	if info.IsDir() {
		return "", nil, fmt.Errorf("%w: %s is a directory", ErrPathNotFound, rel)
	}

	return abs, info, nil
}
