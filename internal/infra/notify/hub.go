// Package notify fans toasts and state snapshots out to the browser.
// Each checkout attempt has its own feed; the SSE handler subscribes and
// relays whatever the flows publish.
package notify

import (
	"sync"
	"time"

	"github.com/arenastore/checkout-bff-go/internal/domain"

	"go.uber.org/zap"
)

const (
	KindToast = "toast"
	KindState = "state"
)

// FeedEvent is one message on an attempt's feed.
type FeedEvent struct {
	Kind     string                  `json:"kind"` // toast | state
	Toast    *domain.Toast           `json:"toast,omitempty"`
	Snapshot *domain.AttemptSnapshot `json:"snapshot,omitempty"`
	At       time.Time               `json:"at"`
}

// Hub implements port.Notifier and feeds per-attempt subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan FeedEvent]struct{}
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[chan FeedEvent]struct{}),
		logger: logger,
	}
}

// Subscribe registers a feed consumer for one attempt. The returned cancel
// func removes the subscription and closes the channel; safe to call twice.
func (h *Hub) Subscribe(attemptID string) (<-chan FeedEvent, func()) {
	ch := make(chan FeedEvent, 16)

	h.mu.Lock()
	if h.subs[attemptID] == nil {
		h.subs[attemptID] = make(map[chan FeedEvent]struct{})
	}
	h.subs[attemptID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[attemptID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, attemptID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (h *Hub) publish(attemptID string, ev FeedEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[attemptID] {
		select {
		case ch <- ev:
		default:
			// slow consumer: drop rather than stall the payment flow
			h.logger.Debug("notify: dropping event for slow subscriber",
				zap.String("attempt_id", attemptID),
				zap.String("kind", ev.Kind),
			)
		}
	}
}

// Toast surfaces a user-facing message for the attempt.
func (h *Hub) Toast(attemptID string, toast domain.Toast) {
	h.publish(attemptID, FeedEvent{Kind: KindToast, Toast: &toast, At: toast.At})
}

// StateChanged pushes a fresh snapshot of the attempt.
func (h *Hub) StateChanged(attemptID string, snapshot *domain.AttemptSnapshot) {
	h.publish(attemptID, FeedEvent{Kind: KindState, Snapshot: snapshot, At: snapshot.UpdatedAt})
}
