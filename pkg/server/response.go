package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codecontextai/codecontext/pkg/llm"
	"github.com/codecontextai/codecontext/pkg/patch"
	"github.com/codecontextai/codecontext/pkg/repo"
	"github.com/codecontextai/codecontext/pkg/session"
)

// errNoPendingProposal is returned when an apply request names no proposal
// and the project has none waiting.
var errNoPendingProposal = errors.New("no pending edit proposal")

// errorBody is the envelope every error response uses
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps domain errors onto HTTP status codes and machine-readable
// error codes. Unrecognized errors become opaque 500s, their detail goes to
// the log, not the client.
func writeError(c *gin.Context, err error) {
	status, code, message := classify(err)

	if status >= http.StatusInternalServerError {
		slog.Error("Request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err)
	}

	c.AbortWithStatusJSON(status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, session.ErrProjectNotFound):
		return http.StatusNotFound, "project_not_found", "project not found"
	case errors.Is(err, session.ErrProposalNotFound):
		return http.StatusNotFound, "proposal_not_found", "edit proposal not found"
	case errors.Is(err, errNoPendingProposal):
		return http.StatusNotFound, "no_pending_proposal", "no pending edit proposal for this project"
	case errors.Is(err, repo.ErrPathNotFound):
		return http.StatusNotFound, "path_not_found", "file not found in project"
	case errors.Is(err, repo.ErrPathTraversal):
		return http.StatusForbidden, "path_traversal", "path escapes project root"
	case errors.Is(err, session.ErrProjectNotReady):
		return http.StatusConflict, "not_ready", "project is not ready"
	case errors.Is(err, patch.ErrConcurrentModification):
		return http.StatusConflict, "concurrent_modification", "file changed since the edit was proposed"
	case errors.Is(err, session.ErrProposalAlreadyApplied):
		return http.StatusConflict, "already_applied", "edit proposal was already applied"
	case errors.Is(err, session.ErrNotEditable):
		return http.StatusForbidden, "not_editable", "this file cannot be edited"
	case errors.Is(err, repo.ErrNotTextFile):
		return http.StatusUnprocessableEntity, "not_text", "file is not indexable text"
	}

	var perr *llm.ProviderError
	if errors.As(err, &perr) {
		switch perr.Kind {
		case llm.KindUnauthenticated:
			return http.StatusUnauthorized, string(perr.Kind), "provider rejected the configured credentials"
		case llm.KindRateLimited:
			return http.StatusTooManyRequests, string(perr.Kind), "provider rate limit exceeded"
		default:
			return http.StatusBadGateway, string(perr.Kind), "provider request failed"
		}
	}

	return http.StatusInternalServerError, "internal", "internal server error"
}

// writeBadRequest reports a malformed client request
func writeBadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{
		Error: errorDetail{Code: "bad_request", Message: message},
	})
}
