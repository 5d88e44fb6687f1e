package handlers

import "net/http"

// HandleWS attaches the client to the refresh-hint stream.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r)
}
