package router

import (
	"net/http"

	"baladi-api/internal/handlers"
)

// Setup configures and returns the HTTP router with all application routes.
func Setup(h *handlers.Handler) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", h.HandleHealth)

	// Listing endpoints
	mux.HandleFunc("/listings", h.HandleListings)
	mux.HandleFunc("/listings/{id}", h.HandleListing)

	// Media ingestion
	mux.HandleFunc("/media", h.HandleMedia)

	// Refresh-hint stream
	mux.HandleFunc("/ws", h.HandleWS)

	return mux
}
