package engine

import (
	"context"
	"time"

	channerics "github.com/niceyeti/channerics/channels"

	"dispatch/event"
)

// tickCadence is the real-time interval between clock_tick events.
const tickCadence = 100 * time.Millisecond

// Clock is the monotonic simulated-time source: Now is real seconds since
// construction scaled by the speed factor. The speed factor is fixed at
// startup.
type Clock struct {
	speed float64
	start time.Time
}

// NewClock starts a clock at sim-time zero.
func NewClock(speed float64) *Clock {
	return &Clock{speed: speed, start: time.Now()}
}

// Now returns the current simulated time in seconds.
func (c *Clock) Now() float64 {
	return time.Since(c.start).Seconds() * c.speed
}

// Speed returns the immutable speed factor.
func (c *Clock) Speed() float64 { return c.speed }

// EmitTicks publishes clock_tick events at a fixed real-time cadence until
// ctx is cancelled. Run it on its own goroutine.
func (c *Clock) EmitTicks(ctx context.Context, sink event.Sink) {
	for range channerics.NewTicker(ctx.Done(), tickCadence) {
		sink.Emit(event.Event{
			Type:    event.ClockTick,
			Payload: event.ClockTickPayload{SimTime: c.Now()},
		})
	}
}
