package panel

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rendis/vsm/internal/streaming"
)

// handleSSE streams canvas events. ?diagram= and ?types=a,b narrow the stream.
func (s *PanelServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	filter := streaming.EventFilter{DiagramID: r.URL.Query().Get("diagram")}
	if types := r.URL.Query().Get("types"); types != "" {
		filter.EventTypes = strings.Split(types, ",")
	}
	s.serveSSE(w, r, filter)
}

// serveSSE is the common SSE implementation.
func (s *PanelServer) serveSSE(w http.ResponseWriter, r *http.Request, filter streaming.EventFilter) {
	if s.deps.Hub == nil {
		http.Error(w, "live updates disabled", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch, cancel, err := s.deps.Hub.Subscribe(r.Context(), filter)
	if err != nil {
		s.deps.Logger.Error("SSE subscribe failed", "error", err)
		http.Error(w, "subscribe failed", http.StatusInternalServerError)
		return
	}
	defer cancel()

	if s.deps.Telemetry != nil {
		s.deps.Telemetry.StreamClients.Inc()
		defer s.deps.Telemetry.StreamClients.Dec()
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
			flusher.Flush()
		}
	}
}
