package web

import (
	"io"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/cytodx/internal/core"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// handleTemplate downloads the batch CSV template.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+core.TemplateFilename+`"`)
	io.WriteString(w, core.TemplateCSV())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCallStatus reports the outbound call limiter.
// Used for monitoring and to check if the service can accept more work.
func (s *Server) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	var status core.CallLimiterStatus
	if l := s.service.Limiter(); l != nil {
		status = l.Status()
	}
	writeJSON(w, http.StatusOK, status)
}

// handleAudit lists the most recent submission audit entries.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		respondError(w, r, errAuditDisabled, http.StatusNotFound)
		return
	}

	limit := parseIntParam(r, "limit", defaultAuditLimit)
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	entries, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []core.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
