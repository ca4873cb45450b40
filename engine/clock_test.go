package engine

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"dispatch/event"
)

func TestClock(t *testing.T) {
	Convey("Given a clock at 100x speed", t, func() {
		c := NewClock(100)
		So(c.Speed(), ShouldEqual, 100)

		Convey("Simulated time is scaled wall time and monotonic", func() {
			t1 := c.Now()
			time.Sleep(20 * time.Millisecond)
			t2 := c.Now()
			So(t2, ShouldBeGreaterThan, t1)
			So(t2, ShouldBeGreaterThan, 1) // 20ms wall is 2 sim seconds
		})

		Convey("EmitTicks publishes clock events until cancelled", func() {
			rec := &event.Recorder{}
			ctx, cancel := context.WithCancel(context.Background())
			go c.EmitTicks(ctx, rec)

			So(eventually(func() bool { return len(rec.OfType(event.ClockTick)) >= 1 }), ShouldBeTrue)
			cancel()

			tick := rec.OfType(event.ClockTick)[0].Payload.(event.ClockTickPayload)
			So(tick.SimTime, ShouldBeGreaterThan, 0)
		})
	})
}
