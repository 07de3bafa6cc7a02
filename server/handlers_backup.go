package server

import (
	"net/http"

	"github.com/teranos/mplan/backup"
	"github.com/teranos/mplan/sym"
)

// HandleBackup exports or restores the full planner state, admin only
// GET /api/backup downloads a backup document
// POST /api/backup validates and restores one, replacing all planner data
func (s *Server) HandleBackup(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		doc, err := s.backups.Export()
		if err != nil {
			s.writeStoreError(w, err, "export backup")
			return
		}
		s.logger.Infow(sym.Backup+" Backup exported",
			"plans", len(doc.ActionPlans),
			"executions", len(doc.Executions),
		)
		w.Header().Set("Content-Disposition", `attachment; filename="mplan-backup.json"`)
		writeJSON(w, http.StatusOK, doc)

	case http.MethodPost:
		var doc backup.Document
		if readJSON(w, r, &doc) != nil {
			return
		}
		if err := s.backups.Import(&doc); err != nil {
			s.writeStoreError(w, err, "import backup")
			return
		}
		s.logger.Infow(sym.Backup+" Backup restored",
			"plans", len(doc.ActionPlans),
			"executions", len(doc.Executions),
		)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"restored_plans":      len(doc.ActionPlans),
			"restored_executions": len(doc.Executions),
		})

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
