package repo

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"main.go", "go"},
		{"src/app.py", "python"},
		{"web/index.tsx", "typescript"},
		{"Dockerfile", "dockerfile"},
		{"Makefile", "makefile"},
		{".env", "env"},
		{".env.local", "env"},
		{"README.md", "markdown"},
		{"photo.png", ""},
		{"binary.exe", ""},
	}
	for _, tt := range tests {
		if got := DetectLanguage(tt.path); got != tt.want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestScanFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "src/util.py", "def f(): pass\n")
	writeFile(t, root, "node_modules/dep/index.js", "ignored")
	writeFile(t, root, ".git/config", "ignored")
	writeFile(t, root, "image.png", "\x89PNG not scanned anyway")
	writeFile(t, root, ".env", "SECRET=abc\n")
	writeFile(t, root, ".hidden.md", "skipped dotfile")
	writeFile(t, root, "big.go", strings.Repeat("x", MaxFileSize+1))

	files, err := ScanFiles(root)
	if err != nil {
		t.Fatalf("ScanFiles failed: %v", err)
	}

	got := make(map[string]string)
	for _, f := range files {
		got[f.Path] = f.Language
	}

	want := map[string]string{
		".env":        "env",
		"main.go":     "go",
		"src/util.py": "python",
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d files, got %d: %v", len(want), len(got), got)
	}
	for path, lang := range want {
		if got[path] != lang {
			t.Errorf("Expected %s with language %s, got %s", path, lang, got[path])
		}
	}

	// Sorted by path
	for i := 1; i < len(files); i++ {
		if files[i-1].Path >= files[i].Path {
			t.Errorf("Files not sorted: %s before %s", files[i-1].Path, files[i].Path)
		}
	}
}

func TestReadFile_MasksEnv(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".env", "# comment\nAPI_KEY=supersecret\nexport DB_URL=postgres://u:p@h/db\n\nPLAIN\n")

	content, err := ReadFile(root, ".env")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if strings.Contains(content, "supersecret") || strings.Contains(content, "postgres://") {
		t.Errorf("Secrets leaked: %q", content)
	}
	if !strings.Contains(content, "API_KEY=") {
		t.Errorf("Key names should survive masking: %q", content)
	}
	if !strings.Contains(content, "# comment") {
		t.Errorf("Comments should survive masking: %q", content)
	}
}

func TestReadFile_Binary(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "data.json", "{\"a\":1}\x00junk")

	_, err := ReadFile(root, "data.json")
	if !errors.Is(err, ErrNotTextFile) {
		t.Errorf("Expected ErrNotTextFile, got %v", err)
	}
}

func TestReadFile_NotFound(t *testing.T) {
	root := t.TempDir()

	_, err := ReadFile(root, "missing.go")
	if !errors.Is(err, ErrPathNotFound) {
		t.Errorf("Expected ErrPathNotFound, got %v", err)
	}
}

func TestResolveWithin(t *testing.T) {
	root := "/data/projects/p1"
	tests := []struct {
		name    string
		rel     string
		wantErr bool
	}{
		{"simple", "main.go", false},
		{"nested", "src/app/main.go", false},
		{"dot segments resolved", "src/../main.go", false},
		{"escape", "../other/secret", true},
		{"deep escape", "a/../../..", true},
		{"absolute", "/etc/passwd", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			abs, err := ResolveWithin(root, tt.rel)
			if tt.wantErr {
				if !errors.Is(err, ErrPathTraversal) {
					t.Errorf("Expected ErrPathTraversal, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveWithin failed: %v", err)
			}
			if !strings.HasPrefix(abs, root+string(filepath.Separator)) {
				t.Errorf("Resolved path %q outside root", abs)
			}
		})
	}
}

func TestBuildTree(t *testing.T) {
	files := []*FileInfo{
		{Path: "src/app/main.go", Language: "go", Size: 10},
		{Path: "src/util.go", Language: "go", Size: 5},
		{Path: "README.md", Language: "markdown", Size: 3},
	}

	tree := BuildTree(files)
	if len(tree) != 2 {
		t.Fatalf("Expected 2 top-level nodes, got %d", len(tree))
	}

	// Dirs sort before files
	if tree[0].Name != "src" || tree[0].Type != "directory" {
		t.Errorf("Expected src dir first, got %+v", tree[0])
	}
	if tree[1].Name != "README.md" || tree[1].Type != "file" {
		t.Errorf("Expected README.md second, got %+v", tree[1])
	}

	src := tree[0]
	if len(src.Children) != 2 {
		t.Fatalf("Expected 2 children under src, got %d", len(src.Children))
	}
	if src.Children[0].Name != "app" {
		t.Errorf("Expected app dir first under src, got %s", src.Children[0].Name)
	}
	if src.Children[1].Path != "src/util.go" {
		t.Errorf("Expected src/util.go, got %s", src.Children[1].Path)
	}
}

func makeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create zip failed: %v", err)
	}
	w := zip.NewWriter(f)
	for name, content := range entries {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip create entry failed: %v", err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("zip write failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("file close failed: %v", err)
	}
	return path
}

func TestExtractZip_FlattensSingleRoot(t *testing.T) {
	zipPath := makeZip(t, map[string]string{
		"myrepo-main/main.go":    "package main\n",
		"myrepo-main/src/app.py": "def f(): pass\n",
	})
	dest := t.TempDir()

	if err := ExtractZip(zipPath, dest); err != nil {
		t.Fatalf("ExtractZip failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "main.go")); err != nil {
		t.Errorf("Expected flattened main.go: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "src", "app.py")); err != nil {
		t.Errorf("Expected flattened src/app.py: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "myrepo-main")); !os.IsNotExist(err) {
		t.Error("Wrapper directory should have been flattened away")
	}
}

func TestExtractZip_MixedRootNotFlattened(t *testing.T) {
	zipPath := makeZip(t, map[string]string{
		"a/main.go": "package main\n",
		"top.go":    "package top\n",
	})
	dest := t.TempDir()

	if err := ExtractZip(zipPath, dest); err != nil {
		t.Fatalf("ExtractZip failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "a", "main.go")); err != nil {
		t.Errorf("Expected a/main.go preserved: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "top.go")); err != nil {
		t.Errorf("Expected top.go preserved: %v", err)
	}
}

func TestExtractZip_RejectsTraversal(t *testing.T) {
	zipPath := makeZip(t, map[string]string{
		"../evil.sh": "rm -rf /\n",
	})
	dest := t.TempDir()

	err := ExtractZip(zipPath, dest)
	if err == nil {
		t.Fatal("Expected traversal rejection, got nil")
	}
	if !errors.Is(err, ErrPathTraversal) {
		t.Errorf("Expected ErrPathTraversal, got %v", err)
	}
}

func TestMaskEnvValues(t *testing.T) {
	in := "KEY=value\n# note\nexport TOKEN=abc123\nnot an assignment\n"
	out := MaskEnvValues(in)

	if strings.Contains(out, "value") || strings.Contains(out, "abc123") {
		t.Errorf("Values not masked: %q", out)
	}
	if !strings.Contains(out, "KEY=***MASKED***") {
		t.Errorf("Expected masked KEY, got %q", out)
	}
	if !strings.Contains(out, "export TOKEN=***MASKED***") {
		t.Errorf("Expected masked export TOKEN, got %q", out)
	}
	if !strings.Contains(out, "# note") || !strings.Contains(out, "not an assignment") {
		t.Errorf("Non-assignment lines should be untouched: %q", out)
	}
}
