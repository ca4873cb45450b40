package model

import "sync"

// ShiftManager tracks mandatory rest for one transporter. Crossing the
// workload threshold after completing a request sends the worker to the
// lounge for RestDuration simulated seconds. A resting worker keeps its
// queue but does not consume it.
type ShiftManager struct {
	// RestThreshold is the cumulative workload that triggers rest.
	RestThreshold float64
	// RestDuration is how long rest lasts, in simulated seconds.
	RestDuration float64

	mu      sync.Mutex
	resting bool
}

// ShouldRest reports whether the given workload mandates a rest cycle.
func (s *ShiftManager) ShouldRest(workload float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.resting && workload >= s.RestThreshold
}

// BeginRest flips the worker into the resting substate.
func (s *ShiftManager) BeginRest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resting = true
}

// EndRest flips the worker back to working.
func (s *ShiftManager) EndRest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resting = false
}

// Resting reports the current substate.
func (s *ShiftManager) Resting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resting
}
