package handler

import (
	"fmt"
	"log"
	"net/http"

	"github.com/misprint/carddrop/internal/core/service"
)

// LiveFeedHandler bridges one HTTP connection to one listener inbox,
// streaming published item snapshots as server-sent events.
type LiveFeedHandler struct {
	hub *service.BroadcastHub
}

func NewLiveFeedHandler(hub *service.BroadcastHub) *LiveFeedHandler {
	return &LiveFeedHandler{hub: hub}
}

func (h *LiveFeedHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	listener := h.hub.Subscribe()
	// Cleanup runs exactly once, however the loop below exits.
	defer func() {
		h.hub.Unsubscribe(listener)
		log.Printf("live feed client removed, %d active", h.hub.Len())
	}()

	log.Printf("live feed client connected, %d active", h.hub.Len())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		msg, err := listener.Next(r.Context())
		if err != nil {
			// Connection closed or server shutting down.
			return
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
			return
		}
		flusher.Flush()
	}
}
