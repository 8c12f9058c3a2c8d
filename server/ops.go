package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/t1mm4te/MusicCircles/core/bot"
	"github.com/t1mm4te/MusicCircles/logger"
)

// NewOpsRouter builds the small operational HTTP surface: a liveness probe
// and a session counter. Nothing here is user-facing.
func NewOpsRouter(sessions *bot.Store) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "healthy"})
	}).Methods(http.MethodGet)

	r.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]int{"active_sessions": sessions.Count()})
	}).Methods(http.MethodGet)

	return r
}

// Start serves the ops endpoints until the listener fails.
func Start(addr string, sessions *bot.Store) error {
	logger.Info("ops server listening", logger.String("addr", addr))
	return http.ListenAndServe(addr, NewOpsRouter(sessions))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("writing ops response failed", logger.ErrorField(err))
	}
}
