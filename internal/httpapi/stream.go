package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"notathome.app/internal/obs"
)

// streamSession serves one session's live events over Server-Sent Events.
// Subscribers see entries recorded after they connect; there is no replay.
func (a *API) streamSession(w http.ResponseWriter, r *http.Request, id string) {
	if a.hub == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}

	sess, err := a.sessions.Get(r.Context(), id)
	if err != nil {
		handleSessionError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.hub.Subscribe(ctx, sess.ID)
	obs.AddStreamSubscribers(1)
	defer obs.AddStreamSubscribers(-1)

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream online\n\n"))
	flusher.Flush()

	for event := range ch {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
		flusher.Flush()
	}
}
