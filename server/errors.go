package server

import (
	"net/http"

	"github.com/teranos/mplan/errors"
)

// writeStoreError maps a store error onto an HTTP status. The sentinel
// message, not the full wrapped chain, goes to the client; storage errors
// are logged server-side and surface as a generic 500.
func (s *Server) writeStoreError(w http.ResponseWriter, err error, operation string) {
	switch {
	case errors.IsInvalidRequestError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.IsUnauthorizedError(err):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.IsForbiddenError(err):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.IsNotFoundError(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.IsConflictError(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Errorw("Operation failed", "operation", operation, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
