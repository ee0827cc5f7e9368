// Package feed implements the one-directional live event stream: typed
// events pushed into bounded per-subscriber queues. Subscribers joining
// late see only future events; history lives in the recorder, never here.
package feed

import (
	"sync"
	"time"
)

// Event kinds published on the feed.
const (
	EventTurn    = "turn"
	EventState   = "state"
	EventMetrics = "metrics"
)

// subscriberBuffer bounds each subscriber's queue. A subscriber that falls
// this far behind is dropped rather than allowed to block the session.
const subscriberBuffer = 64

// Event is one feed message.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// TurnData is the payload of a turn-completed event.
type TurnData struct {
	Turn      int    `json:"turn"`
	Speaker   string `json:"speaker"`
	Content   string `json:"content"`
	LatencyMs int64  `json:"latency_ms"`
}

// StateData is the payload of a state-changed event. Error carries the
// fatal condition when a retry budget is exhausted.
type StateData struct {
	State       string `json:"state"`
	NextSpeaker string `json:"next_speaker,omitempty"`
	Error       string `json:"error,omitempty"`
}

// MetricsData is the payload of a metrics-updated event. Nil pointers are
// metrics that are undefined at this turn. All values here are running
// estimates; authoritative full-series values appear only in the analysis.
type MetricsData struct {
	Turn           int      `json:"turn"`
	Basin          string   `json:"basin"`
	Coherence      string   `json:"coherence"`
	IntegrityLabel string   `json:"integrity_label"`
	IntegrityScore float64  `json:"integrity_score"`
	Velocity       *float64 `json:"velocity,omitempty"`
	Curvature      *float64 `json:"curvature,omitempty"`
	Alpha          *float64 `json:"alpha,omitempty"`
	Voice          *float64 `json:"voice,omitempty"`
}

// Subscriber receives events on C until Cancel is called or the hub drops
// it for falling behind. C is closed in either case.
type Subscriber struct {
	C    <-chan Event
	ch   chan Event
	hub  *Hub
	once sync.Once
}

// Cancel detaches the subscriber from the hub.
func (s *Subscriber) Cancel() {
	s.hub.remove(s)
}

// Hub fans events out to subscribers. Publishing never blocks: a full
// subscriber queue causes that subscriber to be dropped.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscriber]struct{})}
}

// Subscribe registers a new subscriber. On a closed hub the returned
// subscriber's channel is already closed.
func (h *Hub) Subscribe() *Subscriber {
	ch := make(chan Event, subscriberBuffer)
	s := &Subscriber{C: ch, ch: ch, hub: h}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Publish delivers evt to every subscriber without blocking.
func (h *Hub) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.ch <- evt:
		default:
			// Slow consumer: drop it rather than stall the session.
			delete(h.subs, s)
			s.closeOnce()
		}
	}
}

// Close drops all subscribers and closes their channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		s.closeOnce()
	}
}

// Len reports the current subscriber count.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) remove(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		s.closeOnce()
	}
}

func (s *Subscriber) closeOnce() {
	s.once.Do(func() { close(s.ch) })
}
