package event

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// subscriberBuffer sizes each subscriber channel. A websocket client that
// falls further behind than this starts losing events rather than stalling
// the engine.
const subscriberBuffer = 256

// Hub fans events out to any number of subscribers. Emit never blocks:
// events to a full subscriber are dropped and counted.
type Hub struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	nextID  int
	dropped uint64
	log     *logrus.Entry
}

// NewHub returns an empty hub.
func NewHub(log *logrus.Logger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		subs: map[int]chan Event{},
		log:  log.WithField("component", "event-hub"),
	}
}

// Subscribe registers a new consumer. The returned cancel func removes the
// subscription and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Emit delivers ev to every subscriber that has room for it.
func (h *Hub) Emit(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped++
			if h.dropped%100 == 1 {
				h.log.WithFields(logrus.Fields{
					"type":    ev.Type,
					"dropped": h.dropped,
				}).Warn("slow subscriber, dropping events")
			}
		}
	}
}

// Dropped returns the cumulative count of undeliverable events.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// NopSink discards all events. Benchmark harnesses construct engines with it
// to measure strategies without delivery overhead.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// Recorder is a test sink that keeps every emitted event in order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a snapshot copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType filters the recorded events by type tag.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
