package server

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codecontextai/codecontext/pkg/db"
	"github.com/codecontextai/codecontext/pkg/repo"
	"github.com/codecontextai/codecontext/pkg/session"
)

type projectResponse struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	SourceType   string           `json:"source_type"`
	SourceURL    string           `json:"source_url,omitempty"`
	Status       string           `json:"status"`
	TotalFiles   int              `json:"total_files"`
	TotalChunks  int              `json:"total_chunks"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	FileTree     []*repo.TreeNode `json:"file_tree,omitempty"`
}

func projectJSON(p *db.Project) *projectResponse {
	return &projectResponse{
		ID:           p.ID,
		Name:         p.Name,
		SourceType:   p.SourceType,
		SourceURL:    p.SourceURL,
		Status:       p.Status,
		TotalFiles:   p.TotalFiles,
		TotalChunks:  p.TotalChunks,
		ErrorMessage: p.ErrorMessage,
		CreatedAt:    p.CreatedAt,
	}
}

func (s *Server) handleHealthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"providers": s.cfg.Registry.Descriptors(),
		"default":   s.cfg.Registry.DefaultID(),
	})
}

func (s *Server) handleListProjects(c *gin.Context) {
	projects, err := s.cfg.Store.ListProjects()
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]*projectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectJSON(p))
	}
	c.JSON(http.StatusOK, gin.H{"projects": out})
}

func (s *Server) handleGetProject(c *gin.Context) {
	p, err := s.cfg.Store.GetProject(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if p == nil {
		writeError(c, session.ErrProjectNotFound)
		return
	}

	resp := projectJSON(p)
	if p.Status == db.ProjectStatusReady {
		files, err := repo.ScanFiles(p.RootPath)
		if err != nil {
			writeError(c, err)
			return
		}
		resp.FileTree = repo.BuildTree(files)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetFile(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		writeBadRequest(c, "path query parameter is required")
		return
	}

	p, err := s.cfg.Store.GetProject(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if p == nil {
		writeError(c, session.ErrProjectNotFound)
		return
	}

	content, err := repo.ReadFile(p.RootPath, path)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"path":     path,
		"content":  content,
		"language": repo.DetectLanguage(path),
	})
}

func (s *Server) handleDeleteProject(c *gin.Context) {
	id := c.Param("id")

	p, err := s.cfg.Store.GetProject(id)
	if err != nil {
		writeError(c, err)
		return
	}
	if p == nil {
		writeError(c, session.ErrProjectNotFound)
		return
	}

	if s.cfg.OnProjectDeleted != nil {
		s.cfg.OnProjectDeleted(id)
	}

	if err := s.cfg.Store.DeleteProject(id); err != nil {
		writeError(c, err)
		return
	}

	// Checkout removal is best effort, the database row is authoritative.
	if p.RootPath != "" {
		if err := os.RemoveAll(p.RootPath); err != nil {
			slog.Warn("failed to remove project checkout", "project_id", id, "path", p.RootPath, "error", err)
		}
	}

	slog.Info("project deleted", "project_id", id, "name", p.Name)
	c.JSON(http.StatusOK, gin.H{"message": "project deleted"})
}
