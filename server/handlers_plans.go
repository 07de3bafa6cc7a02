package server

import (
	"net/http"

	"github.com/teranos/mplan/plan"
	"github.com/teranos/mplan/sym"
)

// CreatePlanRequest is the body for creating or renaming a plan
type CreatePlanRequest struct {
	Name string `json:"name"`
}

// AddItemRequest is the body for adding an item to a plan.
// Either ActionID or ActionName identifies the action.
type AddItemRequest struct {
	ActionID   string `json:"action_id,omitempty"`
	ActionName string `json:"action_name,omitempty"`
	Position   int64  `json:"position"`
}

// ReorderRequest is the body for rewriting a plan's item order
type ReorderRequest struct {
	ItemIDs []string `json:"item_ids"`
}

// ListPlansResponse wraps the plan listing
type ListPlansResponse struct {
	Plans []plan.ActionPlan `json:"plans"`
	Count int               `json:"count"`
}

// HandlePlans handles the plan collection
// GET /api/plans lists active plans, POST /api/plans creates one
func (s *Server) HandlePlans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		plans, err := s.plans.ListPlans()
		if err != nil {
			s.writeStoreError(w, err, "list plans")
			return
		}
		if plans == nil {
			plans = []plan.ActionPlan{}
		}
		writeJSON(w, http.StatusOK, ListPlansResponse{Plans: plans, Count: len(plans)})

	case http.MethodPost:
		var req CreatePlanRequest
		if readJSON(w, r, &req) != nil {
			return
		}
		created, err := s.plans.CreatePlan(req.Name)
		if err != nil {
			s.writeStoreError(w, err, "create plan")
			return
		}
		s.logger.Infow(sym.Plan+" Plan created", "plan_id", shortID(created.ID), "name", created.Name)
		writeJSON(w, http.StatusCreated, created)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandlePlan handles a single plan and its sub-resources
// GET/PATCH/DELETE /api/plans/{id}
// POST /api/plans/{id}/items
// PUT /api/plans/{id}/items/order
// POST /api/plans/{id}/executions
func (s *Server) HandlePlan(w http.ResponseWriter, r *http.Request) {
	parts := extractPathParts(r.URL.Path, "/api/plans/")
	if len(parts) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid path format")
		return
	}
	planID := parts[0]

	if len(parts) == 1 {
		s.handlePlanResource(w, r, planID)
		return
	}

	switch {
	case parts[1] == "items" && len(parts) == 2:
		s.handleAddItem(w, r, planID)
	case parts[1] == "items" && len(parts) == 3 && parts[2] == "order":
		s.handleReorder(w, r, planID)
	case parts[1] == "executions" && len(parts) == 2:
		s.handleStartExecution(w, r, planID)
	default:
		writeError(w, http.StatusNotFound, "Unknown plan resource")
	}
}

func (s *Server) handlePlanResource(w http.ResponseWriter, r *http.Request, planID string) {
	switch r.Method {
	case http.MethodGet:
		detail, err := s.plans.GetPlan(planID)
		if err != nil {
			s.writeStoreError(w, err, "get plan")
			return
		}
		if detail.Items == nil {
			detail.Items = []plan.ActionItem{}
		}
		writeJSON(w, http.StatusOK, detail)

	case http.MethodPatch:
		var req CreatePlanRequest
		if readJSON(w, r, &req) != nil {
			return
		}
		if err := s.plans.RenamePlan(planID, req.Name); err != nil {
			s.writeStoreError(w, err, "rename plan")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": planID, "name": req.Name})

	case http.MethodDelete:
		if err := s.plans.DeletePlan(planID); err != nil {
			s.writeStoreError(w, err, "delete plan")
			return
		}
		s.logger.Infow(sym.Plan+" Plan deleted", "plan_id", shortID(planID))
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request, planID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req AddItemRequest
	if readJSON(w, r, &req) != nil {
		return
	}

	item, err := s.plans.AddItem(planID, req.ActionID, req.ActionName, req.Position)
	if err != nil {
		s.writeStoreError(w, err, "add item")
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request, planID string) {
	if !requireMethod(w, r, http.MethodPut) {
		return
	}
	var req ReorderRequest
	if readJSON(w, r, &req) != nil {
		return
	}

	if err := s.plans.ReorderItems(planID, req.ItemIDs); err != nil {
		s.writeStoreError(w, err, "reorder items")
		return
	}

	detail, err := s.plans.GetPlan(planID)
	if err != nil {
		s.writeStoreError(w, err, "get plan")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleStartExecution(w http.ResponseWriter, r *http.Request, planID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	detail, err := s.execs.Start(planID)
	if err != nil {
		s.writeStoreError(w, err, "start execution")
		return
	}

	s.logger.Infow(sym.Exec+" Execution started",
		"execution_id", shortID(detail.ID),
		"plan", detail.PlanName,
		"items", len(detail.Items),
	)
	s.broadcastExecutionUpdate(detail.ID, "execution_started")
	writeJSON(w, http.StatusCreated, detail)
}

// HandleItem handles a single plan item
// DELETE /api/items/{id}
func (s *Server) HandleItem(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodDelete) {
		return
	}

	parts := extractPathParts(r.URL.Path, "/api/items/")
	if len(parts) != 1 {
		writeError(w, http.StatusBadRequest, "Invalid path format")
		return
	}

	if err := s.plans.RemoveItem(parts[0]); err != nil {
		s.writeStoreError(w, err, "remove item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
