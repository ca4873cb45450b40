package model

import (
	"math"
	"sync/atomic"
)

// Meter is a lock-free cumulative workload counter. Movement goroutines add
// to it, the idle-decay loop subtracts from it, and event emission reads it,
// all without taking the transporter lock. The float is bit-cast through an
// atomic.Uint64; mutations use a CAS loop so concurrent add and decay never
// lose updates.
type Meter struct {
	bits atomic.Uint64
}

// Load returns the current workload.
func (m *Meter) Load() float64 {
	return math.Float64frombits(m.bits.Load())
}

// Set overwrites the workload.
func (m *Meter) Set(v float64) {
	m.bits.Store(math.Float64bits(v))
}

// Add applies delta and returns the new value, floored at zero so decay can
// never drive the meter negative.
func (m *Meter) Add(delta float64) float64 {
	for {
		old := m.bits.Load()
		next := math.Float64frombits(old) + delta
		if next < 0 {
			next = 0
		}
		if m.bits.CompareAndSwap(old, math.Float64bits(next)) {
			return next
		}
	}
}
