package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/michaelbrown/pyrun/internal/harness"
)

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// runRequest accepts dependencies either as a list or as the literal text
// the command line takes.
type runRequest struct {
	Dependencies        []string `json:"dependencies"`
	DependenciesLiteral string   `json:"dependencies_literal"`
	Code                string   `json:"code"`
}

func (rr runRequest) toRequest() (harness.Request, error) {
	if rr.DependenciesLiteral != "" {
		return harness.NewRequest(rr.DependenciesLiteral, rr.Code)
	}
	return harness.NewRequestList(rr.Dependencies, rr.Code)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var rr runRequest
	if err := decodeJSON(r, &rr); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	req, err := rr.toRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.runner.Run(r.Context(), req)
	if err != nil {
		var bootErr *harness.BootstrapError
		if errors.As(err, &bootErr) {
			s.logger.Error("runtime unavailable", "err", err)
			writeError(w, http.StatusServiceUnavailable, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if out.RunID != "" {
		w.Header().Set("X-Run-ID", out.RunID)
	}
	writeJSON(w, http.StatusOK, out)
}
