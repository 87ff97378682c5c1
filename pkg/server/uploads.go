package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codecontextai/codecontext/pkg/db"
	"github.com/codecontextai/codecontext/pkg/repo"
)

// handleUploadGitHub clones a repository and queues it for indexing.
// Acquisition is synchronous, the response reports status "indexing"
// and the background worker picks the project up from there.
func (s *Server) handleUploadGitHub(c *gin.Context) {
	repoURL := strings.TrimSpace(c.PostForm("url"))
	if repoURL == "" {
		writeBadRequest(c, "url form field is required")
		return
	}
	if err := validateGitURL(repoURL); err != nil {
		writeBadRequest(c, err.Error())
		return
	}

	id := uuid.NewString()
	dest := filepath.Join(s.cfg.ProjectsDir, id)

	if err := repo.CloneGit(c.Request.Context(), repoURL, dest); err != nil {
		writeBadRequest(c, fmt.Sprintf("failed to clone repository: %v", err))
		return
	}

	project := &db.Project{
		ID:         id,
		Name:       repoNameFromURL(repoURL),
		SourceType: db.SourceTypeGit,
		SourceURL:  repoURL,
		RootPath:   dest,
		Status:     db.ProjectStatusIndexing,
	}
	if err := s.cfg.Store.CreateProject(project); err != nil {
		os.RemoveAll(dest)
		writeError(c, err)
		return
	}

	slog.Info("project created", "project_id", id, "name", project.Name, "source", "git")
	c.JSON(http.StatusCreated, gin.H{
		"project_id": id,
		"name":       project.Name,
		"status":     project.Status,
	})
}

// handleUploadZip accepts a multipart zip archive and extracts it into a
// fresh project directory.
func (s *Server) handleUploadZip(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		writeBadRequest(c, "file form field is required")
		return
	}
	if !strings.HasSuffix(strings.ToLower(file.Filename), ".zip") {
		writeBadRequest(c, "only .zip archives are accepted")
		return
	}

	id := uuid.NewString()

	if err := os.MkdirAll(s.cfg.UploadsDir, 0o755); err != nil {
		writeError(c, err)
		return
	}
	zipPath := filepath.Join(s.cfg.UploadsDir, id+".zip")
	if err := c.SaveUploadedFile(file, zipPath); err != nil {
		writeError(c, err)
		return
	}
	defer os.Remove(zipPath)

	dest := filepath.Join(s.cfg.ProjectsDir, id)
	if err := repo.ExtractZip(zipPath, dest); err != nil {
		os.RemoveAll(dest)
		writeBadRequest(c, fmt.Sprintf("failed to extract archive: %v", err))
		return
	}

	project := &db.Project{
		ID:         id,
		Name:       strings.TrimSuffix(filepath.Base(file.Filename), filepath.Ext(file.Filename)),
		SourceType: db.SourceTypeZip,
		RootPath:   dest,
		Status:     db.ProjectStatusIndexing,
	}
	if err := s.cfg.Store.CreateProject(project); err != nil {
		os.RemoveAll(dest)
		writeError(c, err)
		return
	}

	slog.Info("project created", "project_id", id, "name", project.Name, "source", "zip")
	c.JSON(http.StatusCreated, gin.H{
		"project_id": id,
		"name":       project.Name,
		"status":     project.Status,
	})
}

func validateGitURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid repository url")
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("repository url must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("repository url is missing a host")
	}
	return nil
}

func repoNameFromURL(raw string) string {
	name := strings.TrimSuffix(raw, "/")
	name = strings.TrimSuffix(name, ".git")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		name = "repository"
	}
	return name
}
