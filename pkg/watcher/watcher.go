// Package watcher tracks ready project trees and reports debounced file
// changes so the index stays current without full re-scans.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codecontextai/codecontext/pkg/repo"
)

// Change describes one debounced file event
type Change struct {
	ProjectID string
	Path      string // relative to the project root, slash-separated
}

// Config holds watcher configuration
type Config struct {
	DebounceDelay time.Duration // delay before reporting a change (default: 1s)
	OnChange      func(change Change)
}

// ProjectWatcher watches project roots recursively for file changes
type ProjectWatcher struct {
	watcher  *fsnotify.Watcher
	onChange func(Change)
	debounce time.Duration

	mu       sync.Mutex
	roots    map[string]string // projectID -> absolute root
	dirOwner map[string]string // watched dir -> projectID
	pending  map[string]*time.Timer
}

// New creates a project watcher
func New(cfg *Config) (*ProjectWatcher, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.DebounceDelay == 0 {
		cfg.DebounceDelay = time.Second
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &ProjectWatcher{
		watcher:  w,
		onChange: cfg.OnChange,
		debounce: cfg.DebounceDelay,
		roots:    make(map[string]string),
		dirOwner: make(map[string]string),
		pending:  make(map[string]*time.Timer),
	}, nil
}

// WatchProject registers a project root and all its subdirectories.
// fsnotify watches are not recursive, every directory is added separately.
func (w *ProjectWatcher) WatchProject(projectID, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve root: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.roots[projectID]; ok {
		return nil
	}
	w.roots[projectID] = abs

	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != abs && (strings.HasPrefix(name, ".") || ignoredDir(name)) {
			return filepath.SkipDir
		}
		return w.addDirLocked(path, projectID)
	})
	if err != nil {
		return fmt.Errorf("failed to watch project %s: %w", projectID, err)
	}

	slog.Info("Watching project", "project_id", projectID, "root", abs)
	return nil
}

// UnwatchProject drops all watches belonging to a project
func (w *ProjectWatcher) UnwatchProject(projectID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.roots, projectID)
	for dir, owner := range w.dirOwner {
		if owner != projectID {
			continue
		}
		if err := w.watcher.Remove(dir); err != nil {
			slog.Debug("Failed to remove watch", "dir", dir, "error", err)
		}
		delete(w.dirOwner, dir)
	}
}

func (w *ProjectWatcher) addDirLocked(dir, projectID string) error {
	if _, ok := w.dirOwner[dir]; ok {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.dirOwner[dir] = projectID
	return nil
}

// Start consumes filesystem events until the context is cancelled
func (w *ProjectWatcher) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			slog.Warn("Watcher error", "error", err)
		}
	}
}

func (w *ProjectWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	// New directories must be added to the watch set
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			name := filepath.Base(event.Name)
			if !strings.HasPrefix(name, ".") && !ignoredDir(name) {
				w.mu.Lock()
				if owner := w.ownerOf(event.Name); owner != "" {
					if err := w.addDirLocked(event.Name, owner); err != nil {
						slog.Debug("Failed to watch new dir", "dir", event.Name, "error", err)
					}
				}
				w.mu.Unlock()
			}
			return
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	projectID := w.ownerOf(event.Name)
	if projectID == "" {
		return
	}
	root := w.roots[projectID]

	rel, err := filepath.Rel(root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	// Only indexable file types produce changes
	if repo.DetectLanguage(rel) == "" {
		return
	}

	key := projectID + "|" + rel
	if timer, exists := w.pending[key]; exists {
		timer.Stop()
	}
	w.pending[key] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, key)
		w.mu.Unlock()

		if w.onChange != nil {
			w.onChange(Change{ProjectID: projectID, Path: rel})
		}
	})
}

// ownerOf finds the project whose root contains path. Callers hold w.mu.
func (w *ProjectWatcher) ownerOf(path string) string {
	// Longest root wins when trees nest
	var bestID string
	var bestLen int
	for id, root := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			if len(root) > bestLen {
				bestID = id
				bestLen = len(root)
			}
		}
	}
	return bestID
}

// Watched returns the watched directories, sorted, for diagnostics
func (w *ProjectWatcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	dirs := make([]string, 0, len(w.dirOwner))
	for dir := range w.dirOwner {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

// Close stops the watcher and cancels pending notifications
func (w *ProjectWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, timer := range w.pending {
		timer.Stop()
	}
	w.pending = make(map[string]*time.Timer)

	return w.watcher.Close()
}

// ignoredDir mirrors the scanner's directory skip list
func ignoredDir(name string) bool {
	switch name {
	case "node_modules", "vendor", "__pycache__", "venv", "dist", "build", "target", "coverage":
		return true
	}
	return strings.HasSuffix(name, ".egg-info")
}
