package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-rules/internal/automation"
)

// maxPathParamLen limits path and query parameter length.
const maxPathParamLen = 128

// handleListTypes returns registered module types.
//
// Query parameters:
//   - kind: trigger, condition or action; all kinds when absent
func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	kinds := automation.AllModuleKinds()
	if k := r.URL.Query().Get("kind"); k != "" {
		kind, err := automation.ParseModuleKind(k)
		if err != nil {
			writeBadRequest(w, "kind must be trigger, condition or action")
			return
		}
		kinds = []automation.ModuleKind{kind}
	}

	registry := s.engine.Registry()
	types := make([]automation.ModuleType, 0)
	for _, kind := range kinds {
		types = append(types, registry.Types(kind)...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"types": types, "count": len(types)})
}

// handleGetType returns one module type with its parameter schema.
func (s *Server) handleGetType(w http.ResponseWriter, r *http.Request) {
	kind, err := automation.ParseModuleKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeBadRequest(w, "kind must be trigger, condition or action")
		return
	}
	typeID := chi.URLParam(r, "typeID")
	if typeID == "" || len(typeID) > maxPathParamLen {
		writeBadRequest(w, "invalid type ID")
		return
	}

	typ, ok := s.engine.Registry().Type(kind, typeID)
	if !ok {
		writeNotFound(w, "type not found")
		return
	}
	writeJSON(w, http.StatusOK, typ)
}
