package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-rules/internal/auth"
)

// defaultMetricsPath is used when metrics.path is empty.
const defaultMetricsPath = "/metrics"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus exposition (no auth, scraped on the local network)
	if s.gatherer != nil && s.metrics.Enabled {
		path := s.metrics.Path
		if path == "" {
			path = defaultMetricsPath
		}
		r.Handle(path, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.With(s.requirePermission(auth.PermRuleRead)).Get("/status", s.handleStatus)

			r.Route("/types", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermTypeRead))
				r.Get("/", s.handleListTypes)
				r.Get("/{kind}/{typeID}", s.handleGetType)
			})

			r.Route("/rules", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermRuleRead)).Get("/", s.handleListRules)
				r.With(s.requirePermission(auth.PermRuleManage)).Post("/", s.handleCreateRule)

				r.Route("/{uid}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermRuleRead)).Get("/", s.handleGetRule)
					r.With(s.requirePermission(auth.PermRuleManage)).Delete("/", s.handleDeleteRule)
					r.With(s.requirePermission(auth.PermRuleExecute)).Post("/run", s.handleRunRule)
					r.With(s.requirePermission(auth.PermRuleRead)).Get("/executions", s.handleListRuleExecutions)
				})
			})

			r.Route("/executions", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermRuleRead))
				r.Get("/", s.handleListExecutions)
				r.Get("/{id}", s.handleGetExecution)
			})

			r.With(s.requirePermission(auth.PermAuditRead)).Get("/audit", s.handleListAudit)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": s.version,
	}
	if s.mqtt != nil {
		resp["mqtt_connected"] = s.mqtt.IsConnected()
	}
	writeJSON(w, http.StatusOK, resp)
}
