package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"judgedescrow/core/events"
	"judgedescrow/core/types"
)

const (
	streamBuffer       = 32
	streamWriteTimeout = 10 * time.Second
)

// EventHub broadcasts committed escrow events to websocket subscribers. It
// implements events.Emitter so it can sit in the engine's fanout. A
// subscriber that falls behind misses events instead of stalling the engine.
type EventHub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan *types.Event
	closed bool
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[uint64]chan *types.Event)}
}

// Emit implements events.Emitter.
func (h *EventHub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	typed, ok := evt.(interface{ Event() *types.Event })
	if !ok || typed.Event() == nil {
		return
	}
	payload := typed.Event()

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called once the subscriber is done; the channel is closed by cancel or by
// Close, whichever comes first.
func (h *EventHub) Subscribe() (<-chan *types.Event, func()) {
	ch := make(chan *types.Event, streamBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
}

// Subscribers reports how many streams are attached.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every open stream and rejects later subscriptions.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

func (er *escrowRoutes) streamEvents(w http.ResponseWriter, r *http.Request) {
	var filter string
	if raw := strings.TrimSpace(r.URL.Query().Get("payer")); raw != "" {
		payer, err := parseAddress("payer", raw)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		filter = payer.Hex()
	}

	// Subscribe before the upgrade so nothing committed after the handshake
	// completes is missed.
	updates, cancel := er.stream.Subscribe()
	defer cancel()

	// Streams outlive the server's per-request deadlines.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		er.logger.Debug("event stream upgrade failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := pumpEvents(ctx, conn, updates, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func pumpEvents(ctx context.Context, conn *websocket.Conn, updates <-chan *types.Event, payer string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if payer != "" && !strings.EqualFold(evt.Attribute("payer"), payer) {
				continue
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
