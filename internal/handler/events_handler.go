package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/arenastore/checkout-bff-go/internal/infra/notify"
	"github.com/arenastore/checkout-bff-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// attemptEventsHandler streams the attempt's feed (toasts and state
// snapshots) as server-sent events. The connection closes when the client
// disconnects; the attempt itself is unaffected.
func attemptEventsHandler(svc *service.CheckoutService, hub *notify.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		attemptID := chi.URLParam(r, "attemptId")

		// ownership check before subscribing
		snap, err := svc.GetAttempt(ctx, attemptID, BuyerIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming não suportado")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		events, cancel := hub.Subscribe(attemptID)
		defer cancel()

		// initial snapshot so the client renders without waiting
		writeSSE(w, "state", snap)
		flusher.Flush()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, open := <-events:
				if !open {
					return
				}
				switch ev.Kind {
				case notify.KindToast:
					writeSSE(w, "toast", ev.Toast)
				case notify.KindState:
					writeSSE(w, "state", ev.Snapshot)
				}
				flusher.Flush()
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
