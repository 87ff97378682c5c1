package repo

import (
	"path/filepath"
	"strings"
)

// languageByExtension maps file extensions to language identifiers used by
// the chunker. Extensions not listed here are still indexed as plain text
// unless they fail the binary sniff.
var languageByExtension = map[string]string{
	".go":    "go",
	".py":    "python",
	".pyi":   "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".cjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".rs":    "rust",
	".php":   "php",
	".swift": "swift",
	".kt":    "kotlin",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".zsh":   "shell",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".scss":  "css",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".xml":   "xml",
	".md":    "markdown",
	".rst":   "markdown",
	".txt":   "text",
	".proto": "proto",
	".tf":    "terraform",
}

// specialFilenames covers extension-less files worth indexing
var specialFilenames = map[string]string{
	"dockerfile": "dockerfile",
	"makefile":   "makefile",
	"rakefile":   "ruby",
	"gemfile":    "ruby",
	".env":       "env",
}

// DetectLanguage returns the language identifier for a path, or empty string
// when the file type is not recognized.
func DetectLanguage(path string) string {
	base := strings.ToLower(filepath.Base(path))
	if lang, ok := specialFilenames[base]; ok {
		return lang
	}
	if strings.HasPrefix(base, ".env.") {
		return "env"
	}
	ext := strings.ToLower(filepath.Ext(path))
	return languageByExtension[ext]
}
