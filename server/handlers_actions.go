package server

import (
	"net/http"

	"github.com/teranos/mplan/plan"
	"github.com/teranos/mplan/sym"
)

// ListActionsResponse wraps action listings and search results
type ListActionsResponse struct {
	Actions []plan.Action `json:"actions"`
	Count   int           `json:"count"`
}

// HandleActions lists all actions
// GET /api/actions
func (s *Server) HandleActions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	actions, err := s.plans.ListActions()
	if err != nil {
		s.writeStoreError(w, err, "list actions")
		return
	}
	if actions == nil {
		actions = []plan.Action{}
	}
	writeJSON(w, http.StatusOK, ListActionsResponse{Actions: actions, Count: len(actions)})
}

// HandleActionSearch searches actions by name for autocomplete
// GET /api/actions/search?q={query}
func (s *Server) HandleActionSearch(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	query := r.URL.Query().Get("q")
	results, err := s.plans.SearchActions(query)
	if err != nil {
		s.writeStoreError(w, err, "search actions")
		return
	}
	if results == nil {
		results = []plan.Action{}
	}
	s.logger.Debugw(sym.Search+" Action search", "query", query, "results", len(results))
	writeJSON(w, http.StatusOK, ListActionsResponse{Actions: results, Count: len(results)})
}

// HandleAction handles a single action
// PATCH /api/actions/{id} renames, DELETE /api/actions/{id} removes
func (s *Server) HandleAction(w http.ResponseWriter, r *http.Request) {
	parts := extractPathParts(r.URL.Path, "/api/actions/")
	if len(parts) != 1 {
		writeError(w, http.StatusBadRequest, "Invalid path format")
		return
	}
	actionID := parts[0]

	switch r.Method {
	case http.MethodPatch:
		var req struct {
			Name string `json:"name"`
		}
		if readJSON(w, r, &req) != nil {
			return
		}
		if err := s.plans.RenameAction(actionID, req.Name); err != nil {
			s.writeStoreError(w, err, "rename action")
			return
		}
		writeJSON(w, http.StatusOK, plan.Action{ID: actionID, Name: req.Name})

	case http.MethodDelete:
		if err := s.plans.DeleteAction(actionID); err != nil {
			s.writeStoreError(w, err, "delete action")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
