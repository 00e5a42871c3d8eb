package fsauthority

import (
	"encoding/json"
	"net/http"
	"time"
)

// Server exposes an Authority over the fixed HTTP tool contract every
// worker's toolclient.Client speaks: a health check, two POST tools, and
// a roots listing.
type Server struct {
	authority *Authority
	mux       *http.ServeMux
}

// NewServer wires handlers for /health, /tools/validate_path,
// /tools/save_file, and /allowed_roots onto a, following the teacher's
// mux-per-server convention.
func NewServer(a *Authority) *Server {
	mux := http.NewServeMux()
	s := &Server{authority: a, mux: mux}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/tools/validate_path", s.handleValidatePath)
	mux.HandleFunc("/tools/save_file", s.handleSaveFile)
	mux.HandleFunc("/allowed_roots", s.handleAllowedRoots)

	return s
}

// Handler returns the server's http.Handler, for embedding in an
// *http.Server with its own timeouts.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"service":       "filesystem",
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"allowed_roots": s.authority.Roots(),
	})
}

func (s *Server) handleValidatePath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	result := s.authority.Validate(req.Path)
	resp := map[string]interface{}{
		"path":       result.Path,
		"is_allowed": result.IsAllowed,
	}
	if result.IsAllowed {
		resp["resolved_path"] = result.ResolvedPath
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSaveFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	bytesWritten, err := s.authority.Save(req.FilePath, req.Content)
	if err != nil {
		if _, ok := err.(*ErrPathDisallowed); ok {
			writeJSON(w, http.StatusForbidden, map[string]string{
				"detail": "access denied: path is outside every allowed root",
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"detail": "failed to save file",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"file_path":     req.FilePath,
		"bytes_written": bytesWritten,
	})
}

func (s *Server) handleAllowedRoots(w http.ResponseWriter, r *http.Request) {
	roots := s.authority.Roots()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"allowed_roots": roots,
		"total_roots":   len(roots),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
