package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codecontextai/codecontext/pkg/config"
	"github.com/codecontextai/codecontext/pkg/db"
	"github.com/codecontextai/codecontext/pkg/indexer"
	"github.com/codecontextai/codecontext/pkg/llm"
	"github.com/codecontextai/codecontext/pkg/llm/gemini"
	"github.com/codecontextai/codecontext/pkg/llm/ollama"
	"github.com/codecontextai/codecontext/pkg/llm/openai"
	"github.com/codecontextai/codecontext/pkg/search"
	"github.com/codecontextai/codecontext/pkg/server"
	"github.com/codecontextai/codecontext/pkg/session"
	"github.com/codecontextai/codecontext/pkg/watcher"
	"github.com/codecontextai/codecontext/pkg/worker"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: codecontext [serve|init|status|version]")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		handleServe()
	case "init":
		handleInit()
	case "status":
		handleStatus()
	case "version":
		fmt.Printf("codecontext version %s\n", version)
	default:
		fmt.Println("Unknown command:", os.Args[1])
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".codecontext", "config.yaml")
}

func handleInit() {
	cfg, err := config.Load(defaultConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if _, err := os.Stat(cfg.Database.Path); err == nil {
		fmt.Println("Database already exists at", cfg.Database.Path)
		return
	}

	database, err := db.Open(db.Config{
		Path:         cfg.Database.Path,
		EmbeddingDim: cfg.Embedding.Dimension,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	database.SetMeta("created_at", time.Now().UTC().Format(time.RFC3339))
	fmt.Println("✓ Database initialized at", cfg.Database.Path)
	fmt.Printf("✓ Embedding dimension: %d\n", cfg.Embedding.Dimension)
}

func handleStatus() {
	cfg, err := config.Load(defaultConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	database, err := db.Open(db.Config{
		Path:         cfg.Database.Path,
		EmbeddingDim: cfg.Embedding.Dimension,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	projects, err := database.ListProjects()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("CodeContext Status")
	fmt.Println("==================")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	fmt.Printf("Projects:  %d\n", len(projects))
	fmt.Println()

	for _, p := range projects {
		fmt.Printf("  %s  [%s]\n", p.Name, p.Status)
		fmt.Printf("    id:     %s\n", p.ID)
		fmt.Printf("    files:  %d\n", p.TotalFiles)
		fmt.Printf("    chunks: %d\n", p.TotalChunks)
		if p.ErrorMessage != "" {
			fmt.Printf("    error:  %s\n", p.ErrorMessage)
		}
	}
}

func handleServe() {
	serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := serveFlags.String("config", defaultConfigPath(), "Path to config file")
	logLevelStr := serveFlags.String("loglevel", "info", "Log level (debug, info, warn, error)")
	serveFlags.Parse(os.Args[2:])

	logLevel := slog.LevelInfo
	switch *logLevelStr {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	// API keys may live in a .env next to the binary
	if err := godotenv.Load(); err == nil {
		slog.Debug("Loaded environment from .env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	database, err := db.Open(db.Config{
		Path:         cfg.Database.Path,
		EmbeddingDim: cfg.Embedding.Dimension,
	})
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.HealthCheck(); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", cfg.Database.Path, "dimension", cfg.Embedding.Dimension)

	embedder := buildEmbedder(cfg)
	registry, err := buildRegistry(cfg)
	if err != nil {
		slog.Error("No usable chat providers", "error", err)
		fmt.Fprintln(os.Stderr, "Set at least one provider API key (see providers[].api_key_env in the config).")
		os.Exit(1)
	}

	engine := search.New(&search.Config{
		TopK:           cfg.Retrieval.TopK,
		Oversample:     cfg.Retrieval.Oversample,
		AdjacencyLines: cfg.Retrieval.AdjacencyLines,
	}, database, embedder, slog.Default())
	idx := indexer.New(&indexer.Config{
		Concurrency: cfg.Indexing.Concurrency,
		BatchSize:   cfg.Indexing.BatchSize,
	}, database, embedder)

	chat := session.NewChat(database, engine, registry)
	edit := session.NewEdit(database, engine, registry, idx)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fw *watcher.ProjectWatcher
	if cfg.Indexing.Watch {
		fw, err = watcher.New(&watcher.Config{
			DebounceDelay: cfg.Indexing.DebounceDelay,
			OnChange: func(change watcher.Change) {
				project, err := database.GetProject(change.ProjectID)
				if err != nil || project == nil {
					return
				}
				if err := idx.IndexSingleFile(ctx, project, change.Path); err != nil {
					slog.Warn("Failed to re-index changed file",
						"project_id", change.ProjectID, "path", change.Path, "error", err)
				}
			},
		})
		if err != nil {
			slog.Error("Failed to start file watcher", "error", err)
			os.Exit(1)
		}
		defer fw.Close()

		go func() {
			if err := fw.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("File watcher error", "error", err)
			}
		}()

		// Resume watching projects that were ready before the restart
		ready, err := database.ListReadyProjects()
		if err != nil {
			slog.Warn("Failed to list ready projects for watching", "error", err)
		}
		for _, p := range ready {
			if err := fw.WatchProject(p.ID, p.RootPath); err != nil {
				slog.Warn("Failed to watch project", "project_id", p.ID, "error", err)
			}
		}
	}

	runner := worker.RunnerFunc(func(ctx context.Context, project *db.Project) error {
		result, err := idx.IndexProject(ctx, project)
		if err != nil {
			return err
		}
		slog.Info("Project indexed",
			"project_id", project.ID,
			"indexed", result.FilesIndexed,
			"skipped", result.FilesSkipped,
			"failed", result.FilesFailed)
		if fw != nil {
			if err := fw.WatchProject(project.ID, project.RootPath); err != nil {
				slog.Warn("Failed to watch project", "project_id", project.ID, "error", err)
			}
		}
		return nil
	})

	indexWorker := worker.NewIndexWorker(&worker.Config{
		PollInterval: cfg.Indexing.PollInterval,
	}, database, runner)

	go func() {
		if err := indexWorker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Index worker error", "error", err)
		}
	}()

	srv := server.New(server.Config{
		Store:       database,
		Chat:        chat,
		Edit:        edit,
		Registry:    registry,
		ProjectsDir: cfg.Storage.ProjectsDir,
		UploadsDir:  cfg.Storage.UploadsDir,
		CORSOrigins: cfg.Server.CORSOrigins,
		OnProjectDeleted: func(projectID string) {
			if fw != nil {
				fw.UnwatchProject(projectID)
			}
		},
	})

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: srv.Handler(),
	}

	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Addr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("Shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown did not finish cleanly", "error", err)
	}
	slog.Info("Shutdown complete")
}

// buildEmbedder picks the embedding backend from configuration. Ollama is
// the default, an OpenAI-compatible endpoint is the alternative.
func buildEmbedder(cfg *config.Config) llm.EmbeddingProvider {
	if cfg.Embedding.Provider == "openai" {
		return openai.NewEmbedder(openai.EmbedderConfig{
			BaseURL:   cfg.Embedding.BaseURL,
			APIKey:    cfg.Embedding.APIKey,
			Model:     cfg.Embedding.Model,
			Dimension: cfg.Embedding.Dimension,
			BatchSize: cfg.Embedding.BatchSize,
			Timeout:   cfg.Embedding.Timeout,
		})
	}
	return ollama.NewClient(ollama.Config{
		BaseURL:     cfg.Embedding.BaseURL,
		Model:       cfg.Embedding.Model,
		Dimension:   cfg.Embedding.Dimension,
		Concurrency: cfg.Embedding.Concurrency,
		Timeout:     cfg.Embedding.Timeout,
	})
}

// buildRegistry instantiates every configured provider that has a resolved
// API key. Providers with missing keys are skipped with a warning so one
// unset variable does not take the whole server down.
func buildRegistry(cfg *config.Config) (*llm.Registry, error) {
	var providers []llm.Provider
	for _, pc := range cfg.Providers {
		if pc.APIKey == "" {
			slog.Warn("Skipping provider, API key not set", "provider", pc.ID, "env", pc.APIKeyEnv)
			continue
		}
		switch pc.Kind {
		case "openai":
			providers = append(providers, openai.NewClient(openai.Config{
				ID:      pc.ID,
				Name:    pc.Name,
				BaseURL: pc.BaseURL,
				APIKey:  pc.APIKey,
				Model:   pc.Model,
				Timeout: pc.Timeout,
			}))
		case "gemini":
			providers = append(providers, gemini.NewClient(gemini.Config{
				ID:      pc.ID,
				Name:    pc.Name,
				BaseURL: pc.BaseURL,
				APIKey:  pc.APIKey,
				Model:   pc.Model,
				Timeout: pc.Timeout,
			}))
		}
	}

	defaultID := cfg.DefaultProvider
	if len(providers) > 0 {
		found := false
		for _, p := range providers {
			if p.Descriptor().ID == defaultID {
				found = true
				break
			}
		}
		if !found {
			defaultID = providers[0].Descriptor().ID
		}
	}
	return llm.NewRegistry(providers, defaultID)
}
