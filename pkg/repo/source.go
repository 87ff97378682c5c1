package repo

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
)

// CloneGit performs a shallow clone of url into dest. The destination
// directory is removed on failure so a retry starts clean.
func CloneGit(ctx context.Context, url, dest string) error {
	if url == "" {
		return fmt.Errorf("clone url cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create clone parent: %w", err)
	}

	_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
	})
	if err != nil {
		os.RemoveAll(dest)
		return fmt.Errorf("failed to clone %s: %w", url, err)
	}
	return nil
}

// ExtractZip unpacks an uploaded archive into dest. Entries that would
// escape dest are rejected. If the archive wraps everything in a single
// top-level directory (the GitHub download layout), that directory is
// flattened away.
func ExtractZip(zipPath, dest string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create extraction dir: %w", err)
	}

	strip := commonRootDir(r.File)

	for _, f := range r.File {
		name := filepath.ToSlash(f.Name)
		if strip != "" {
			name = strings.TrimPrefix(name, strip)
			if name == "" {
				continue
			}
		}

		target, err := ResolveWithin(dest, name)
		if err != nil {
			return fmt.Errorf("unsafe archive entry %s: %w", f.Name, err)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", name, err)
			}
			continue
		}

		if err := extractFile(f, target); err != nil {
			return fmt.Errorf("failed to extract %s: %w", name, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return nil
}

// commonRootDir returns "dir/" when every entry in the archive lives under
// a single top-level directory, empty string otherwise.
func commonRootDir(files []*zip.File) string {
	root := ""
	for _, f := range files {
		name := filepath.ToSlash(f.Name)
		if name == "" {
			continue
		}
		idx := strings.Index(name, "/")
		if idx < 0 {
			// Top-level file, nothing to flatten
			return ""
		}
		dir := name[:idx+1]
		if dir == "../" || dir == "./" {
			// Never flatten relative segments, let extraction reject them
			return ""
		}
		if root == "" {
			root = dir
		} else if dir != root {
			return ""
		}
	}
	return root
}
