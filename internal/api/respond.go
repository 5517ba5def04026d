package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// errorBody is the JSON shape of every error response the dashboard renders
type errorBody struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message, hint string) {
	s.writeJSON(w, status, errorBody{Error: message, Hint: hint})
}

// writeConfigError renders the explanatory message shown when no GitHub
// credential is configured
func (s *Server) writeConfigError(w http.ResponseWriter) {
	s.writeError(w, http.StatusServiceUnavailable,
		"GitHub token not configured",
		"set REPOLENS_GITHUB_TOKEN (or GITHUB_TOKEN) and restart the server")
}

// writeNotFound renders the formatted not-found page body
func (s *Server) writeNotFound(w http.ResponseWriter, what string) {
	s.writeError(w, http.StatusNotFound, what+" not found", "back to the repository index: /api/repos")
}

// writeInternal renders the generic error panel for unexpected failures
func (s *Server) writeInternal(w http.ResponseWriter, err error) {
	s.logger.Error("Unexpected handler error", zap.Error(err))
	s.writeError(w, http.StatusInternalServerError,
		"something went wrong rendering this view",
		"back to the repository index: /api/repos")
}
