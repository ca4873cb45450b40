package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	channerics "github.com/niceyeti/channerics/channels"

	"dispatch/event"
	"dispatch/model"
)

var transportTypes = []model.TransportType{model.Stretcher, model.Wheelchair, model.Bed}

// Simulator is the optional synthetic-load generator: at a fixed real-time
// interval it creates a request between two distinct random departments with
// random type and urgency, which re-plans as any intake does. It can be
// started and stopped at any time.
type Simulator struct {
	d        *Dispatcher
	interval time.Duration

	mu      sync.Mutex
	rng     *rand.Rand
	running bool
	stop    context.CancelFunc
}

func newSimulator(d *Dispatcher, interval time.Duration, seed int64) *Simulator {
	return &Simulator{
		d:        d,
		interval: interval,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Start launches the generator loop; a second Start is a no-op.
func (s *Simulator) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(s.d.ctx)
	s.running = true
	s.stop = cancel

	s.d.sink.Emit(event.Event{
		Type:    event.SimulationEvent,
		Payload: event.SimulationPayload{Kind: "started", Running: true},
	})
	go s.loop(ctx)
}

// Stop halts the loop. Requests already created stay in the system.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.stop()

	s.d.sink.Emit(event.Event{
		Type:    event.SimulationEvent,
		Payload: event.SimulationPayload{Kind: "stopped", Running: false},
	})
}

// Running reports whether the loop is live.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Simulator) loop(ctx context.Context) {
	nodes := s.d.g.Nodes()
	if len(nodes) < 2 {
		return
	}
	for range channerics.NewTicker(ctx.Done(), s.interval) {
		s.mu.Lock()
		oi := s.rng.Intn(len(nodes))
		di := s.rng.Intn(len(nodes) - 1)
		if di >= oi {
			di++
		}
		tt := transportTypes[s.rng.Intn(len(transportTypes))]
		urgent := s.rng.Intn(2) == 0
		s.mu.Unlock()

		r, err := s.d.CreateRequest(nodes[oi], nodes[di], string(tt), urgent)
		if err != nil {
			continue
		}
		s.d.sink.Emit(event.Event{
			Type: event.SimulationEvent,
			Payload: event.SimulationPayload{
				Kind:        "new_request",
				Origin:      r.Origin,
				Destination: r.Destination,
				Type:        string(r.Type),
				Urgent:      r.Urgent,
				Running:     true,
			},
		})
	}
}
