package handler

import (
	"net/http"

	"nakamura/internal/config"
)

// Version is reported by the status endpoint.
const Version = "0.1.0"

func statusHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"service": "nakamura",
			"version": Version,
			"status":  "operational",
		}
		if cfg != nil {
			body["environment"] = cfg.Environment
			body["backend"] = cfg.Backend
		}
		writeJSON(w, http.StatusOK, body)
	}
}
