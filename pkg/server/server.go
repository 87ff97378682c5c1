// Package server exposes the HTTP API over gin.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/codecontextai/codecontext/pkg/db"
	"github.com/codecontextai/codecontext/pkg/llm"
	"github.com/codecontextai/codecontext/pkg/patch"
	"github.com/codecontextai/codecontext/pkg/session"
)

// Store is the project surface the HTTP layer needs
type Store interface {
	ListProjects() ([]*db.Project, error)
	GetProject(id string) (*db.Project, error)
	CreateProject(p *db.Project) error
	DeleteProject(id string) error
}

// ChatService answers questions about projects
type ChatService interface {
	Ask(ctx context.Context, projectID, question, providerID string) (*session.Reply, error)
	History(projectID string, limit int) ([]*db.ChatMessage, error)
	Clear(projectID string) error
}

// EditService proposes and applies file edits
type EditService interface {
	Propose(ctx context.Context, projectID, filePath, instruction, providerID string) (*db.EditProposal, error)
	Apply(ctx context.Context, proposalID int64) (*patch.Result, error)
	Proposals(projectID string, limit int) ([]*db.EditProposal, error)
	Proposal(proposalID int64) (*db.EditProposal, error)
}

// Config holds server wiring
type Config struct {
	Store       Store
	Chat        ChatService
	Edit        EditService
	Registry    *llm.Registry
	ProjectsDir string
	UploadsDir  string
	CORSOrigins []string

	// OnProjectDeleted lets the serve loop drop file watches
	OnProjectDeleted func(projectID string)
}

// Server is the HTTP API
type Server struct {
	cfg    Config
	router *gin.Engine
}

// New builds the router with all routes registered
func New(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	s := &Server{cfg: cfg, router: router}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/healthcheck", s.handleHealthcheck)

	api := s.router.Group("/api")
	{
		api.GET("/providers", s.handleProviders)

		api.GET("/projects", s.handleListProjects)
		api.GET("/projects/:id", s.handleGetProject)
		api.GET("/projects/:id/file", s.handleGetFile)
		api.DELETE("/projects/:id", s.handleDeleteProject)

		api.POST("/upload/github", s.handleUploadGitHub)
		api.POST("/upload/zip", s.handleUploadZip)

		api.POST("/chat/:id", s.handleChat)
		api.GET("/chat/:id/history", s.handleChatHistory)
		api.DELETE("/chat/:id/history", s.handleChatClear)

		api.POST("/edit/:id", s.handleEditPropose)
		api.POST("/edit/:id/apply", s.handleEditApply)
		api.GET("/edit/:id/proposals", s.handleEditProposals)
	}
}

// Handler returns the underlying http.Handler
func (s *Server) Handler() *gin.Engine {
	return s.router
}

// requestLogger logs one line per request
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		slog.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start).Round(time.Millisecond).String(),
			"client", c.ClientIP())
	}
}
