package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-rules/internal/audit"
)

// recordAudit stores an audit entry for a rule change. Failures are logged
// and never fail the request.
func (s *Server) recordAudit(r *http.Request, action, ruleUID string, details map[string]any) {
	if s.audit == nil {
		return
	}
	entry := &audit.Entry{
		Action:  action,
		RuleUID: ruleUID,
		Subject: subjectOf(r),
		Source:  "api",
		Details: details,
	}
	if err := s.audit.Create(r.Context(), entry); err != nil {
		s.logger.Error("failed to record audit entry",
			"action", action,
			"rule_uid", ruleUID,
			"error", err,
			"request_id", requestID(r),
		)
	}
}

// handleListAudit returns audit entries, newest first.
//
// Query parameters:
//   - action: create, delete or run
//   - rule_uid, subject: exact match
//   - limit: 1-200 (default 50)
//   - offset: entries to skip
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit log is not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:  q.Get("action"),
		RuleUID: q.Get("rule_uid"),
		Subject: q.Get("subject"),
	}
	for _, v := range []string{filter.Action, filter.RuleUID, filter.Subject} {
		if len(v) > maxPathParamLen {
			writeBadRequest(w, "query parameter exceeds maximum length")
			return
		}
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries failed", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
