package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/chatpanel/server/history"
)

// HistoryHandler serves the history index read-only over REST.
type HistoryHandler struct {
	index history.Store
}

func NewHistoryHandler(index history.Store) *HistoryHandler {
	return &HistoryHandler{index: index}
}

// HandleList handles GET /api/sessions
func (h *HistoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": h.index.List(),
	})
}

// HandleGet handles GET /api/sessions/{id}
func (h *HistoryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	rec, ok := h.index.Get(sessionID)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *HistoryHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.HandleList)
	mux.HandleFunc("GET /api/sessions/{id}", h.HandleGet)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
