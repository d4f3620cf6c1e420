package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/roach88/switchyard/internal/dispatch"
	"github.com/roach88/switchyard/internal/engine"
)

// maxEventBytes caps the edit event request body. Events are a handful of
// integers, so anything near this limit is garbage.
const maxEventBytes = 1 << 20

// handleEdits accepts one edit event, routes the affected staging rows,
// and reports the per-row outcome counts.
func (s *Server) handleEdits(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	ev, err := dispatch.DecodeEvent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid edit event: "+err.Error())
		return
	}

	summary := s.dispatcher.HandleEdit(r.Context(), ev)
	writeJSON(w, http.StatusOK, summary)
}

// handleSweep re-scans the whole staging table.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	summary, err := s.dispatcher.Sweep(r.Context())
	if err != nil {
		slog.Error("sweep request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleLedger lists routing ledger entries in append order.
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.Ledger().Entries(r.Context())
	if err != nil {
		slog.Error("ledger read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "ledger read failed")
		return
	}
	if entries == nil {
		entries = []engine.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

// handleHealthz reports liveness and whether the store answers.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	names, err := s.engine.Store().TableNames(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"tables": len(names),
	})
}

// writeJSON encodes v as the response body. Encoding errors are logged,
// not surfaced: the status line is already on the wire.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
