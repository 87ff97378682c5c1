package repo

import (
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// MaxFileSize is the upper bound for indexable files. Larger files are
// almost always generated artifacts or data dumps.
const MaxFileSize = 500 * 1024

// ignoredDirs are directory names skipped during scanning
var ignoredDirs = map[string]bool{
	".git":          true,
	".hg":           true,
	".svn":          true,
	"node_modules":  true,
	"vendor":        true,
	"__pycache__":   true,
	".venv":         true,
	"venv":          true,
	"dist":          true,
	"build":         true,
	"target":        true,
	".idea":         true,
	".vscode":       true,
	".next":         true,
	".cache":        true,
	".tox":          true,
	".pytest_cache": true,
	".mypy_cache":   true,
	"coverage":      true,
	"egg-info":      true,
}

// FileInfo describes an indexable file found during a scan.
// Path is relative to the project root, slash-separated.
type FileInfo struct {
	Path     string
	Language string
	Size     int64
	ModTime  int64
}

// ScanFiles walks a project tree and returns its indexable files sorted by
// path. Ignored directories, unrecognized file types, and files over
// MaxFileSize are skipped.
func ScanFiles(root string) ([]*FileInfo, error) {
	var files []*FileInfo

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if ignoredDirs[name] || strings.HasSuffix(name, ".egg-info") {
				return filepath.SkipDir
			}
			if strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		lang := DetectLanguage(path)
		if lang == "" {
			return nil
		}
		// Hidden files are skipped unless explicitly recognized (.env)
		if strings.HasPrefix(name, ".") && lang != "env" {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > MaxFileSize {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		files = append(files, &FileInfo{
			Path:     filepath.ToSlash(rel),
			Language: lang,
			Size:     info.Size(),
			ModTime:  info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ReadFile returns the text content of a project file. Secrets in env files
// are masked. Binary and oversized files return ErrNotTextFile.
func ReadFile(root, rel string) (string, error) {
	abs, info, err := StatWithin(root, rel)
	if err != nil {
		return "", err
	}
	if info.Size() > MaxFileSize {
		return "", fmt.Errorf("%w: %s exceeds size limit", ErrNotTextFile, rel)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", rel, err)
	}
	if isBinary(data) {
		return "", fmt.Errorf("%w: %s contains binary data", ErrNotTextFile, rel)
	}

	content := string(data)
	if DetectLanguage(rel) == "env" {
		content = MaskEnvValues(content)
	}
	return content, nil
}

// isBinary sniffs the content type of the first 512 bytes. Text-based
// application formats (json, xml, scripts) count as text.
func isBinary(data []byte) bool {
	sniff := data
	if len(sniff) > 512 {
		sniff = sniff[:512]
	}
	contentType := http.DetectContentType(sniff)

	if strings.HasPrefix(contentType, "application/") {
		for _, a := range []string{"json", "xml", "javascript", "x-sh", "x-perl", "x-python"} {
			if strings.Contains(contentType, a) {
				return false
			}
		}
		return true
	}
	return !strings.HasPrefix(contentType, "text/")
}

var envAssignPattern = regexp.MustCompile(`^(\s*(?:export\s+)?[A-Za-z_][A-Za-z0-9_]*\s*=)`)

// MaskEnvValues replaces values in KEY=VALUE lines with a placeholder so
// env files can be indexed and displayed without leaking secrets. Keys,
// comments and blank lines are preserved.
func MaskEnvValues(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if m := envAssignPattern.FindString(line); m != "" {
			lines[i] = m + "***MASKED***"
		}
	}
	return strings.Join(lines, "\n")
}

// TreeNode is one entry in a project file tree
type TreeNode struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Type     string      `json:"type"` // "file" or "directory"
	Language string      `json:"language,omitempty"`
	Size     int64       `json:"size,omitempty"`
	Children []*TreeNode `json:"children,omitempty"`
}

// BuildTree assembles a nested file tree from a flat scan result.
// Directories sort before files, both alphabetically.
func BuildTree(files []*FileInfo) []*TreeNode {
	root := &TreeNode{Type: "directory"}
	nodes := map[string]*TreeNode{"": root}

	for _, f := range files {
		parts := strings.Split(f.Path, "/")
		parentKey := ""
		for i := 0; i < len(parts)-1; i++ {
			key := strings.Join(parts[:i+1], "/")
			if _, ok := nodes[key]; !ok {
				dir := &TreeNode{Name: parts[i], Path: key, Type: "directory"}
				nodes[key] = dir
				parent := nodes[parentKey]
				parent.Children = append(parent.Children, dir)
			}
			parentKey = key
		}

		parent := nodes[parentKey]
		parent.Children = append(parent.Children, &TreeNode{
			Name:     parts[len(parts)-1],
			Path:     f.Path,
			Type:     "file",
			Language: f.Language,
			Size:     f.Size,
		})
	}

	sortTree(root)
	return root.Children
}

func sortTree(n *TreeNode) {
	sort.Slice(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.Type != b.Type {
			return a.Type == "directory"
		}
		return a.Name < b.Name
	})
	for _, c := range n.Children {
		if c.Type == "directory" {
			sortTree(c)
		}
	}
}
