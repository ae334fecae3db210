package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 25 * time.Second

// handleEvents streams session events to the authenticated participant as
// Server-Sent Events. Only events addressed to the caller are delivered.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, p := s.participant(w, r)
	if p == nil {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteInternal(w, fmt.Errorf("response writer does not support streaming"))
		return
	}

	events, cancel, err := s.events.Subscribe(r.Context(), sess.ID)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			if ev.Recipient != p.Number {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("event encoding failed", "session_id", sess.ID, "type", ev.Type, "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
			flusher.Flush()
		}
	}
}
