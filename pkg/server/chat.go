package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codecontextai/codecontext/pkg/db"
	"github.com/codecontextai/codecontext/pkg/prompt"
)

type chatRequest struct {
	Question string `json:"question"`
	Provider string `json:"provider"`
}

type chatMessageResponse struct {
	ID        int64          `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Sources   []db.SourceRef `json:"sources,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "invalid request body")
		return
	}
	if req.Question == "" {
		writeBadRequest(c, "question is required")
		return
	}

	reply, err := s.cfg.Chat.Ask(c.Request.Context(), c.Param("id"), req.Question, req.Provider)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"answer":   reply.Answer,
		"sources":  reply.Sources,
		"provider": reply.Provider,
	})
}

func (s *Server) handleChatHistory(c *gin.Context) {
	messages, err := s.cfg.Chat.History(c.Param("id"), prompt.MaxHistoryMessages)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]*chatMessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, &chatMessageResponse{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			Sources:   m.Sources,
			CreatedAt: m.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

func (s *Server) handleChatClear(c *gin.Context) {
	if err := s.cfg.Chat.Clear(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "history cleared"})
}
