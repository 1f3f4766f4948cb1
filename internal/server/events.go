package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/francaflow/flow-go/internal/upload"
)

const (
	subscriberBuffer  = 64
	eventWriteTimeout = 5 * time.Second
)

// Hub fans relay events out to websocket subscribers. A subscriber that
// falls behind loses events rather than slowing the relay.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan upload.RelayEvent]struct{}
	logger *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	return &Hub{subs: make(map[chan upload.RelayEvent]struct{}), logger: logger}
}

// Publish delivers ev to every subscriber without blocking. Usable as an
// upload.RelayOptions observer.
func (h *Hub) Publish(ev upload.RelayEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Debug("event dropped for slow subscriber")
		}
	}
}

// Subscribe registers a subscriber. The returned func unregisters it and
// closes the channel.
func (h *Hub) Subscribe() (<-chan upload.RelayEvent, func()) {
	ch := make(chan upload.RelayEvent, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

// handleEvents streams relay events as JSON websocket messages until the
// peer goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil {
		s.writeError(w, http.StatusServiceUnavailable, "event feed disabled")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow() //nolint:errcheck // best-effort close

	ctx := conn.CloseRead(r.Context())

	events, unsubscribe := s.deps.Events.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if err := writeEvent(ctx, conn, ev); err != nil {
				s.logger.Debug("event feed closed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev upload.RelayEvent) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()

	return wsjson.Write(ctx, conn, ev)
}
