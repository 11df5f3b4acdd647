// Package progress provides WebSocket broadcasting of per-run stage events so
// an external UI can render pipeline progress in real time.
package progress

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/sitesentinel/internal/pipeline"
)

const (
	// sendBuffer bounds how far a slow client may fall behind before stage
	// events are dropped for it.
	sendBuffer = 16

	writeTimeout = 5 * time.Second
)

// Subscription is one client's registration for a run's stage events. Each
// subscription owns a buffered send channel drained by its own writer
// goroutine, so the pipeline never writes to a socket directly.
type Subscription struct {
	runID string
	orgID string
	conn  *websocket.Conn
	send  chan []byte

	closeOnce sync.Once
}

// writeLoop drains queued events onto the connection. A write error or missed
// deadline abandons the loop; the handler's read loop notices the dead
// connection and unsubscribes.
func (s *Subscription) writeLoop() {
	for data := range s.send {
		if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return
		}
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Warn("failed to send stage event to websocket client",
				"error", err,
				"run_id", s.runID,
			)
			return
		}
	}
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.send) })
}

// Broadcaster manages run subscriptions and fans out stage events.
// It implements pipeline.Observer; sends are fire-and-forget and a slow or
// broken client never blocks a run.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]bool // runID -> subscriptions
}

// NewBroadcaster creates a new stage event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[string]map[*Subscription]bool),
	}
}

// Subscribe registers a WebSocket connection for a run on behalf of one org.
// Delivery is tenant-scoped: the subscription only ever receives events of
// runs owned by that org.
func (b *Broadcaster) Subscribe(runID, orgID string, conn *websocket.Conn) *Subscription {
	sub := &Subscription{
		runID: runID,
		orgID: orgID,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
	}
	go sub.writeLoop()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[runID] == nil {
		b.subs[runID] = make(map[*Subscription]bool)
	}
	b.subs[runID][sub] = true
	return sub
}

// Unsubscribe removes a subscription and stops its writer.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if conns, ok := b.subs[sub.runID]; ok {
		delete(conns, sub)
		if len(conns) == 0 {
			delete(b.subs, sub.runID)
		}
	}
	b.mu.Unlock()

	sub.close()
}

// StageTransition queues a stage event for the run's subscribers. The queueing
// never blocks: a subscriber whose buffer is full has the event dropped, and a
// subscriber whose org does not own the run is skipped entirely.
func (b *Broadcaster) StageTransition(event pipeline.StageEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs, exists := b.subs[event.RunID]
	if !exists || len(subs) == 0 {
		return
	}

	// Serialize once
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal stage event", "error", err)
		return
	}

	for sub := range subs {
		if sub.orgID != event.OrgID {
			continue
		}
		select {
		case sub.send <- data:
		default:
			slog.Warn("dropping stage event for slow websocket client",
				"run_id", event.RunID,
			)
		}
	}
}

// ConnectionCount returns the number of active subscriptions for a run.
func (b *Broadcaster) ConnectionCount(runID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if subs, exists := b.subs[runID]; exists {
		return len(subs)
	}
	return 0
}
