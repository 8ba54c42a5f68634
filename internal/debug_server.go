package internal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

type StatsProvider func() map[string]any

// StartDebugServer exposes the coordinator's diagnostic snapshot at
// GET /stats. It is an operator surface, not part of the client API,
// so it lives on its own port.
func StartDebugServer(log *slog.Logger, port int, provider StatsProvider) {
	mux := http.NewServeMux()

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := json.NewEncoder(w).Encode(provider()); err != nil {
			log.Error("Failed to encode stats", "error", err)
		}
	})

	go func() {
		// Listens on all interfaces so the endpoint is reachable over the network
		if err := http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", port), mux); err != nil {
			log.Error("Debug server stopped", "error", err)
		}
	}()
}
