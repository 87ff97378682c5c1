package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codecontextai/codecontext/pkg/db"
)

type editRequest struct {
	Instruction string `json:"instruction"`
	FilePath    string `json:"file_path"`
	Provider    string `json:"provider"`
}

type applyRequest struct {
	ProposalID int64 `json:"proposal_id"`

	// Propose-and-apply in one call. When instruction and file_path are
	// set, a fresh proposal is generated and applied immediately.
	Instruction string `json:"instruction"`
	FilePath    string `json:"file_path"`
	Provider    string `json:"provider"`
}

type proposalResponse struct {
	ID          int64     `json:"id"`
	FilePath    string    `json:"file_path"`
	Instruction string    `json:"instruction"`
	Provider    string    `json:"provider"`
	Patch       string    `json:"patch"`
	Applied     bool      `json:"applied"`
	CreatedAt   time.Time `json:"created_at"`
}

func proposalJSON(p *db.EditProposal) *proposalResponse {
	return &proposalResponse{
		ID:          p.ID,
		FilePath:    p.FilePath,
		Instruction: p.Instruction,
		Provider:    p.Provider,
		Patch:       p.Patch,
		Applied:     p.Applied,
		CreatedAt:   p.CreatedAt,
	}
}

func (s *Server) handleEditPropose(c *gin.Context) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "invalid request body")
		return
	}
	if req.Instruction == "" {
		writeBadRequest(c, "instruction is required")
		return
	}
	if req.FilePath == "" {
		writeBadRequest(c, "file_path is required")
		return
	}

	proposal, err := s.cfg.Edit.Propose(c.Request.Context(), c.Param("id"), req.FilePath, req.Instruction, req.Provider)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"proposal_id": proposal.ID,
		"file_path":   proposal.FilePath,
		"patch":       proposal.Patch,
	})
}

// handleEditApply applies a proposal. Three body shapes are accepted: an
// explicit proposal_id, an instruction plus file_path to propose and apply
// in one call, or an empty body to apply the latest unapplied proposal.
func (s *Server) handleEditApply(c *gin.Context) {
	var req applyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBadRequest(c, "invalid request body")
			return
		}
	}

	var proposal *db.EditProposal
	var err error
	switch {
	case req.Instruction != "" || req.FilePath != "":
		if req.Instruction == "" {
			writeBadRequest(c, "instruction is required")
			return
		}
		if req.FilePath == "" {
			writeBadRequest(c, "file_path is required")
			return
		}
		proposal, err = s.cfg.Edit.Propose(c.Request.Context(), c.Param("id"), req.FilePath, req.Instruction, req.Provider)
	default:
		proposal, err = s.resolveProposal(c.Param("id"), req.ProposalID)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := s.cfg.Edit.Apply(c.Request.Context(), proposal.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	message := "edit applied"
	if !result.Changed {
		message = "no changes to apply"
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   message,
		"file_path": proposal.FilePath,
	})
}

func (s *Server) handleEditProposals(c *gin.Context) {
	proposals, err := s.cfg.Edit.Proposals(c.Param("id"), 50)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]*proposalResponse, 0, len(proposals))
	for _, p := range proposals {
		out = append(out, proposalJSON(p))
	}
	c.JSON(http.StatusOK, gin.H{"proposals": out})
}

func (s *Server) resolveProposal(projectID string, proposalID int64) (*db.EditProposal, error) {
	if proposalID > 0 {
		p, err := s.cfg.Edit.Proposal(proposalID)
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	proposals, err := s.cfg.Edit.Proposals(projectID, 50)
	if err != nil {
		return nil, err
	}
	for _, p := range proposals {
		if !p.Applied {
			return p, nil
		}
	}
	return nil, errNoPendingProposal
}
