package server

import (
	"net/http"

	"github.com/teranos/mplan/execution"
	"github.com/teranos/mplan/sym"
)

// ToggleItemRequest is the body for checking an item off or back on
type ToggleItemRequest struct {
	Finished bool `json:"finished"`
}

// ToggleItemResponse reports the resulting item state. FinishedDisplay is
// empty while the item is unfinished.
type ToggleItemResponse struct {
	Finished        bool   `json:"finished"`
	FinishedDisplay string `json:"finished_display,omitempty"`
}

// ListExecutionsResponse wraps execution listings
type ListExecutionsResponse struct {
	Executions []ExecutionSummary `json:"executions"`
	Count      int                `json:"count"`
}

// ExecutionSummary is a listing row with display timestamps
type ExecutionSummary struct {
	execution.Summary
	StartedDisplay  string `json:"started_display"`
	FinishedDisplay string `json:"finished_display,omitempty"`
}

// HandleExecutions lists executions
// GET /api/executions?state=open|finished (default open)
func (s *Server) HandleExecutions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	var summaries []execution.Summary
	var err error
	switch state := r.URL.Query().Get("state"); state {
	case "", "open":
		summaries, err = s.execs.ListOpen()
	case "finished":
		summaries, err = s.execs.ListFinished()
	default:
		writeError(w, http.StatusBadRequest, "Invalid state filter: "+state)
		return
	}
	if err != nil {
		s.writeStoreError(w, err, "list executions")
		return
	}

	rows := make([]ExecutionSummary, 0, len(summaries))
	for _, summary := range summaries {
		row := ExecutionSummary{
			Summary:        summary,
			StartedDisplay: execution.FormatTimestamp(summary.Started),
		}
		if summary.IsFinished() {
			row.FinishedDisplay = execution.FormatTimestamp(*summary.Finished)
		}
		rows = append(rows, row)
	}
	writeJSON(w, http.StatusOK, ListExecutionsResponse{Executions: rows, Count: len(rows)})
}

// HandleExecution handles a single execution and its sub-resources
// GET/DELETE /api/executions/{id}
// GET /api/executions/{id}/status
// POST /api/executions/{id}/finish
// POST /api/executions/{id}/reopen
// POST /api/executions/{id}/items/{itemExecutionId}
func (s *Server) HandleExecution(w http.ResponseWriter, r *http.Request) {
	parts := extractPathParts(r.URL.Path, "/api/executions/")
	if len(parts) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid path format")
		return
	}
	executionID := parts[0]

	if len(parts) == 1 {
		s.handleExecutionResource(w, r, executionID)
		return
	}

	switch {
	case parts[1] == "status" && len(parts) == 2:
		s.handleExecutionStatus(w, r, executionID)
	case parts[1] == "finish" && len(parts) == 2:
		s.handleFinishExecution(w, r, executionID)
	case parts[1] == "reopen" && len(parts) == 2:
		s.handleReopenExecution(w, r, executionID)
	case parts[1] == "items" && len(parts) == 3:
		s.handleToggleItem(w, r, executionID, parts[2])
	default:
		writeError(w, http.StatusNotFound, "Unknown execution resource")
	}
}

func (s *Server) handleExecutionResource(w http.ResponseWriter, r *http.Request, executionID string) {
	switch r.Method {
	case http.MethodGet:
		detail, err := s.execs.Get(executionID)
		if err != nil {
			s.writeStoreError(w, err, "get execution")
			return
		}
		writeJSON(w, http.StatusOK, detail)

	case http.MethodDelete:
		if err := s.execs.Delete(executionID); err != nil {
			s.writeStoreError(w, err, "delete execution")
			return
		}
		s.logger.Infow(sym.Exec+" Execution deleted", "execution_id", shortID(executionID))
		s.broadcastExecutionUpdate(executionID, "execution_deleted")
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleExecutionStatus(w http.ResponseWriter, r *http.Request, executionID string) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	status, err := s.execs.Status(executionID)
	if err != nil {
		s.writeStoreError(w, err, "execution status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":    status.Total,
		"finished": status.Finished,
		"complete": status.Complete(),
	})
}

func (s *Server) handleFinishExecution(w http.ResponseWriter, r *http.Request, executionID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	detail, err := s.execs.Finish(executionID)
	if err != nil {
		s.writeStoreError(w, err, "finish execution")
		return
	}

	s.logger.Infow(sym.Check+" Execution finished",
		"execution_id", shortID(executionID),
		"plan", detail.PlanName,
	)
	s.broadcastExecutionUpdate(executionID, "execution_finished")
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleReopenExecution(w http.ResponseWriter, r *http.Request, executionID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	detail, err := s.execs.Reopen(executionID)
	if err != nil {
		s.writeStoreError(w, err, "reopen execution")
		return
	}

	s.logger.Infow(sym.Exec+" Execution reopened", "execution_id", shortID(executionID))
	s.broadcastExecutionUpdate(executionID, "execution_reopened")
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleToggleItem(w http.ResponseWriter, r *http.Request, executionID, itemExecutionID string) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req ToggleItemRequest
	if readJSON(w, r, &req) != nil {
		return
	}

	item, err := s.execs.SetItemFinished(itemExecutionID, req.Finished)
	if err != nil {
		s.writeStoreError(w, err, "toggle item")
		return
	}

	// The item carries its own execution reference; broadcast on that one
	// rather than trusting the path segment.
	s.broadcastExecutionUpdate(item.ExecutionID, "item_toggled")
	writeJSON(w, http.StatusOK, ToggleItemResponse{
		Finished:        item.IsFinished(),
		FinishedDisplay: item.FinishedDisplay(),
	})
}
