package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-rules/internal/audit"
	"github.com/nerrad567/gray-logic-rules/internal/automation"
)

// ruleRequest is the body of POST /rules. Rules created over HTTP are
// declarative: they always run the default body.
type ruleRequest struct {
	UID           string                    `json:"uid,omitempty"`
	Name          string                    `json:"name"`
	Description   string                    `json:"description,omitempty"`
	Tags          []string                  `json:"tags,omitempty"`
	Triggers      []automation.Module       `json:"triggers"`
	Conditions    []automation.Module       `json:"conditions"`
	Actions       []automation.Module       `json:"actions"`
	Configuration *automation.Configuration `json:"configuration,omitempty"`
}

func (req ruleRequest) rule() *automation.Rule {
	return &automation.Rule{
		UID:           req.UID,
		Name:          req.Name,
		Description:   req.Description,
		Tags:          req.Tags,
		Triggers:      req.Triggers,
		Conditions:    req.Conditions,
		Actions:       req.Actions,
		Configuration: req.Configuration,
	}
}

// ruleResponse is an active rule with its lifecycle state.
type ruleResponse struct {
	*automation.Rule
	State      automation.RuleState `json:"state"`
	CustomBody bool                 `json:"custom_body"`
}

// runRequest is the optional body of POST /rules/{uid}/run.
type runRequest struct {
	Inputs automation.Inputs `json:"inputs"`
}

// handleListRules returns a summary of every active rule.
func (s *Server) handleListRules(w http.ResponseWriter, _ *http.Request) {
	rules := s.engine.Rules()
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules, "count": len(rules)})
}

// handleCreateRule activates a declarative rule.
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	uid, err := s.scope.AddRule(r.Context(), req.rule())
	if err != nil {
		switch {
		case errors.Is(err, automation.ErrInvalidRule),
			errors.Is(err, automation.ErrUnresolvedModuleType),
			errors.Is(err, automation.ErrInvalidConfiguration),
			errors.Is(err, automation.ErrConfigDecode):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		case errors.Is(err, automation.ErrRuleExists):
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		default:
			s.logger.Error("adding rule failed", "error", err, "request_id", requestID(r))
			writeInternalError(w, "failed to add rule")
		}
		return
	}

	rule, ok := s.engine.Rule(uid)
	if !ok {
		// Removed between AddRule and here.
		writeNotFound(w, "rule not found")
		return
	}
	state, _ := s.engine.State(uid)
	s.logger.Info("rule added via API", "rule_uid", uid, "subject", subjectOf(r))
	s.recordAudit(r, audit.ActionCreate, uid, map[string]any{
		"name":       rule.Name,
		"triggers":   len(rule.Triggers),
		"conditions": len(rule.Conditions),
		"actions":    len(rule.Actions),
	})
	writeJSON(w, http.StatusCreated, ruleResponse{Rule: rule, State: state, CustomBody: rule.Body != nil})
}

// handleGetRule returns one active rule.
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	uid, ok := ruleUIDParam(w, r)
	if !ok {
		return
	}

	rule, found := s.engine.Rule(uid)
	if !found {
		writeNotFound(w, "rule not found")
		return
	}
	state, _ := s.engine.State(uid)
	writeJSON(w, http.StatusOK, ruleResponse{Rule: rule, State: state, CustomBody: rule.Body != nil})
}

// handleDeleteRule deactivates and removes a rule, whoever added it.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	uid, ok := ruleUIDParam(w, r)
	if !ok {
		return
	}
	if _, found := s.engine.State(uid); !found {
		writeNotFound(w, "rule not found")
		return
	}

	if err := s.scope.RemoveRule(r.Context(), uid); err != nil {
		s.logger.Error("removing rule failed", "rule_uid", uid, "error", err)
		writeInternalError(w, "failed to remove rule")
		return
	}
	s.logger.Info("rule removed via API", "rule_uid", uid, "subject", subjectOf(r))
	s.recordAudit(r, audit.ActionDelete, uid, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleRunRule queues a manual run. Conditions still apply.
func (s *Server) handleRunRule(w http.ResponseWriter, r *http.Request) {
	uid, ok := ruleUIDParam(w, r)
	if !ok {
		return
	}

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.engine.RunNow(uid, req.Inputs); err != nil {
		switch {
		case errors.Is(err, automation.ErrRuleNotFound):
			writeNotFound(w, "rule not found")
		case errors.Is(err, automation.ErrQueueFull):
			writeError(w, http.StatusTooManyRequests, ErrCodeBusy, "rule event queue is full")
		default:
			writeInternalError(w, "failed to run rule")
		}
		return
	}
	s.recordAudit(r, audit.ActionRun, uid, map[string]any{"inputs": len(req.Inputs)})
	writeJSON(w, http.StatusAccepted, map[string]any{"rule_uid": uid, "status": "queued"})
}

// ruleUIDParam extracts {uid}, writing a 400 when it is unusable.
func ruleUIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid := chi.URLParam(r, "uid")
	if uid == "" || len(uid) > maxPathParamLen {
		writeBadRequest(w, "invalid rule UID")
		return "", false
	}
	return uid, true
}

// subjectOf returns the token subject of the caller, for audit logging.
func subjectOf(r *http.Request) string {
	if claims := claimsFromContext(r.Context()); claims != nil {
		return claims.Subject
	}
	return ""
}
