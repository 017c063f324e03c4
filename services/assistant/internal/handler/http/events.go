package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/utafrali/shopassist/pkg/errors"
	"github.com/utafrali/shopassist/pkg/httputil"
)

// Events handles GET /api/v1/sessions/{sessionId}/events. It streams every
// snapshot as a server-sent event until the client goes away or the session
// is disposed. Heartbeats keep the session from being reaped while a client
// is watching.
func (h *SessionHandler) Events(heartbeat time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := h.session(w, r)
		if !ok {
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			httputil.WriteError(w, r, apperrors.Internal(errors.New("response writer cannot flush")), h.logger)
			return
		}

		ch, cancel := s.Subscribe()
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		id := chi.URLParam(r, "sessionId")
		for {
			select {
			case <-r.Context().Done():
				return

			case snap, open := <-ch:
				if !open {
					fmt.Fprint(w, "event: closed\ndata: {}\n\n")
					flusher.Flush()
					return
				}
				payload, err := json.Marshal(snap)
				if err != nil {
					h.logger.ErrorContext(r.Context(), "failed to encode snapshot", slog.String("error", err.Error()))
					return
				}
				if _, err := fmt.Fprintf(w, "id: %d\nevent: snapshot\ndata: %s\n\n", snap.Version, payload); err != nil {
					return
				}
				flusher.Flush()

			case <-ticker.C:
				if _, err := h.sessions.Get(id); err != nil {
					return
				}
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}
