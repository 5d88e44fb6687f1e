package handlers

import (
	"encoding/json"
	"log"
	"net/http"
)

// HandleHealth responds to health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"wsClients": h.hub.ClientCount(),
	}); err != nil {
		log.Printf("[Health] Failed to encode response: %v", err)
	}
}
