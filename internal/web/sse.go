package web

import (
	"encoding/json"
	"net/http"

	"github.com/farewatch/farewatch/pkg/models"
)

// streamSSE forwards chunks to the client as server-sent events, one
// `data:` line per chunk. It returns true when the stream carried an
// error chunk. Client disconnects just stop the writes; the request
// context cancellation stops the producer.
func (h *Handler) streamSSE(w http.ResponseWriter, r *http.Request, chunks <-chan models.ChatChunk) bool {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Disables buffering in nginx-style reverse proxies.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	failed := false

	for chunk := range chunks {
		if chunk.Type == models.ChunkError {
			failed = true
		}
		if h.metrics != nil {
			h.metrics.ChunkEmitted(string(chunk.Type))
		}

		data, err := json.Marshal(chunk)
		if err != nil {
			h.logger.Error("chunk marshal failed", "error", err)
			continue
		}
		if _, err := w.Write(append(append([]byte("data: "), data...), '\n', '\n')); err != nil {
			// Client went away; keep draining so the producer can finish.
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	return failed
}
