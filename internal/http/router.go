package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/obiente/translate/batchscribe/internal/progress"
	"github.com/obiente/translate/batchscribe/internal/ws"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// NewRouter exposes health, the latest progress snapshot and the live progress stream.
func NewRouter(current func() progress.Snapshot, hub *ws.Hub) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}).Methods(http.MethodGet)
	r.HandleFunc("/progress", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, current())
	}).Methods(http.MethodGet)
	r.HandleFunc("/ws/progress", hub.Handle).Methods(http.MethodGet)
	return r
}
