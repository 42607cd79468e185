package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/convault/convault/internal/vault"
)

var eventsHeartbeatInterval = 15 * time.Second

// indexSummary is the first SSE/WS frame on every connection: where the
// store stands right now, before any live events arrive.
type indexSummary struct {
	Profile       string `json:"profile"`
	Conversations int    `json:"conversations"`
	Dirty         int    `json:"dirty"`
	ReadOnly      bool   `json:"readOnly"`
}

func (s *Server) currentIndexSummary() indexSummary {
	summary := indexSummary{
		Profile:  s.cfg.Profile,
		ReadOnly: s.cfg.ReadOnly,
		Dirty:    s.store.DirtyCount(),
	}
	if result, err := s.store.List(vault.ListOptions{}); err == nil {
		summary.Conversations = result.Total
	}
	return summary
}

// handleEvents streams store lifecycle events over SSE. The first frame is
// an index summary; heartbeat comments keep proxies from idling out the
// connection.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "stream unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeSSEEvent(w, flusher, "index", s.currentIndexSummary()); err != nil {
		return
	}

	events, unsubscribe := s.store.Subscribe()
	defer unsubscribe()

	heartbeatTicker := time.NewTicker(eventsHeartbeatInterval)
	defer heartbeatTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeatTicker.C:
			if err := writeSSEComment(w, flusher, "keepalive"); err != nil {
				return
			}
		case ev, open := <-events:
			if !open {
				// Store closed; the stream ends with it.
				return
			}
			if err := writeSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
				return
			}
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeSSEComment(w http.ResponseWriter, flusher http.Flusher, comment string) error {
	if _, err := fmt.Fprintf(w, ": %s\n\n", comment); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
