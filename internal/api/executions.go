package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-rules/internal/automation"
)

// Execution list paging.
const (
	defaultExecutionLimit = 50
	maxExecutionLimit     = 500
)

// handleListRuleExecutions returns the newest executions of one rule.
// The rule need not be active; history outlives removal.
func (s *Server) handleListRuleExecutions(w http.ResponseWriter, r *http.Request) {
	uid, ok := ruleUIDParam(w, r)
	if !ok {
		return
	}
	s.listExecutions(w, r, uid)
}

// handleListExecutions returns the newest executions across rules.
//
// Query parameters:
//   - rule_uid: restrict to one rule
//   - limit: 1-500, default 50
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("rule_uid")
	if len(uid) > maxPathParamLen {
		writeBadRequest(w, "rule_uid exceeds maximum length")
		return
	}
	s.listExecutions(w, r, uid)
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request, ruleUID string) {
	if s.repo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "execution history is not enabled")
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	execs, err := s.repo.ListExecutions(r.Context(), ruleUID, limit)
	if err != nil {
		s.logger.Error("listing executions failed", "rule_uid", ruleUID, "error", err)
		writeInternalError(w, "failed to list executions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": execs, "count": len(execs)})
}

// handleGetExecution returns a single execution by ID.
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "execution history is not enabled")
		return
	}
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxPathParamLen {
		writeBadRequest(w, "invalid execution ID")
		return
	}

	exec, err := s.repo.GetExecution(r.Context(), id)
	if err != nil {
		if errors.Is(err, automation.ErrExecutionNotFound) {
			writeNotFound(w, "execution not found")
			return
		}
		writeInternalError(w, "failed to get execution")
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultExecutionLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxExecutionLimit {
		return 0, errors.New("limit must be between 1 and 500")
	}
	return n, nil
}
