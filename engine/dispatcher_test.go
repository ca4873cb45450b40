package engine

import (
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"dispatch/event"
	"dispatch/graph"
	"dispatch/model"
	"dispatch/strategy"
)

// lineGraph is a line hospital: Lounge -1- A -5- B -10- C.
func lineGraph() *graph.Graph {
	g, err := graph.Build(
		[]string{model.Lounge, "A", "B", "C"},
		[]graph.Corridor{
			{From: model.Lounge, To: "A", Weight: 1},
			{From: "A", To: "B", Weight: 5},
			{From: "B", To: "C", Weight: 10},
		})
	if err != nil {
		panic(err)
	}
	return g
}

func testEngine(t *testing.T, opts Options) (*Dispatcher, *event.Recorder) {
	t.Helper()
	if opts.SpeedFactor == 0 {
		opts.SpeedFactor = 1000
	}
	if opts.RestThreshold == 0 {
		opts.RestThreshold = 1e9 // out of reach unless a test opts in
	}
	if opts.Seed == 0 {
		opts.Seed = 1
	}
	if opts.SimInterval == 0 {
		opts.SimInterval = time.Hour
	}
	rec := &event.Recorder{}
	d, err := New(lineGraph(), rec, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(d.Close)
	return d, rec
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

// settled reports whether no solve is in flight or demanded.
func settled(d *Dispatcher) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.solving && !d.dirty
}

func TestEndToEndTransport(t *testing.T) {
	Convey("Given one worker staged at A", t, func() {
		d, rec := testEngine(t, Options{})
		w, err := d.AddWorker("W")
		So(err, ShouldBeNil)
		w.Relocate("A")

		Convey("A request from A to C is planned, walked, and completed", func() {
			r, err := d.CreateRequest("A", "C", "wheelchair", false)
			So(err, ShouldBeNil)

			So(eventually(func() bool { return r.Status() == model.StatusCompleted }), ShouldBeTrue)
			So(w.CurrentNode(), ShouldEqual, "C")

			Convey("The workload peaked at the path weight", func() {
				var peak float64
				for _, ev := range rec.OfType(event.WorkloadUpdate) {
					if p := ev.Payload.(event.WorkloadPayload); p.Workload > peak {
						peak = p.Workload
					}
				}
				So(peak, ShouldAlmostEqual, 15)
			})

			Convey("The walk was announced before completion", func() {
				walk, done := -1, -1
				for i, ev := range rec.Events() {
					switch ev.Type {
					case event.TransporterUpdate:
						if walk == -1 {
							walk = i
						}
					case event.TransportCompleted:
						if done == -1 {
							done = i
						}
					}
				}
				So(walk, ShouldBeGreaterThanOrEqualTo, 0)
				So(done, ShouldBeGreaterThan, walk)
			})

			Convey("The request's status history is pending, ongoing, completed", func() {
				var statuses []string
				for _, ev := range rec.OfType(event.TransportStatusUpdate) {
					p := ev.Payload.(event.TransportStatusPayload)
					if p.Request.ID == r.ID {
						statuses = append(statuses, p.Status)
					}
				}
				So(statuses[0], ShouldEqual, "pending")
				So(statuses, ShouldContain, "ongoing")
				So(statuses[len(statuses)-1], ShouldEqual, "completed")
			})
		})
	})
}

func TestRestAfterThreshold(t *testing.T) {
	Convey("Given a worker whose next job crosses the rest threshold", t, func() {
		d, rec := testEngine(t, Options{RestThreshold: 10, RestDuration: 2})
		w, _ := d.AddWorker("W")
		w.Relocate("A")

		Convey("Completing the job sends the worker home to rest", func() {
			r, err := d.CreateRequest("A", "C", "stretcher", false)
			So(err, ShouldBeNil)

			So(eventually(func() bool { return r.Status() == model.StatusCompleted }), ShouldBeTrue)
			So(eventually(func() bool {
				return !w.Shift.Resting() && w.CurrentNode() == model.Lounge
			}), ShouldBeTrue)

			var statuses []string
			for _, ev := range rec.OfType(event.TransporterStatusUpdate) {
				statuses = append(statuses, ev.Payload.(event.TransporterStatusPayload).Status)
			}
			So(statuses, ShouldContain, "resting")
			So(statuses[len(statuses)-1], ShouldEqual, "active")

			Convey("Rest end triggers a follow-up plan", func() {
				So(eventually(func() bool { return d.PlansApplied() >= 2 }), ShouldBeTrue)
			})
		})
	})
}

func TestInFlightPreservation(t *testing.T) {
	Convey("Given a worker mid-transport", t, func() {
		// Real-time speed keeps the first walk in flight for the whole test.
		d, _ := testEngine(t, Options{SpeedFactor: 1})
		w, _ := d.AddWorker("W")
		w.Relocate("A")

		r1, err := d.CreateRequest("A", "C", "bed", false)
		So(err, ShouldBeNil)
		So(eventually(func() bool {
			return r1.Status() == model.StatusOngoing && w.CurrentTask() == r1
		}), ShouldBeTrue)

		Convey("New requests re-plan around the current task, not through it", func() {
			r2, err := d.CreateRequest("A", "B", "bed", false)
			So(err, ShouldBeNil)
			r3, err := d.CreateRequest("B", "C", "bed", false)
			So(err, ShouldBeNil)

			So(eventually(func() bool { return w.QueueLen() == 2 }), ShouldBeTrue)
			So(w.CurrentTask(), ShouldEqual, r1)
			So(r1.Status(), ShouldEqual, model.StatusOngoing)

			Convey("Queued requests stay pending and appear exactly once", func() {
				So(r2.Status(), ShouldEqual, model.StatusPending)
				So(r3.Status(), ShouldEqual, model.StatusPending)

				seen := map[string]int{}
				for _, q := range w.Queue() {
					seen[q.ID]++
				}
				So(seen[r2.ID], ShouldEqual, 1)
				So(seen[r3.ID], ShouldEqual, 1)
			})
		})
	})
}

func TestIntakeValidation(t *testing.T) {
	Convey("Given a running engine", t, func() {
		d, _ := testEngine(t, Options{})

		Convey("Requests validate nodes and type", func() {
			_, err := d.CreateRequest("Nowhere", "A", "bed", false)
			So(errors.Is(err, ErrUnknownNode), ShouldBeTrue)

			_, err = d.CreateRequest("A", "Nowhere", "bed", false)
			So(errors.Is(err, ErrUnknownNode), ShouldBeTrue)

			_, err = d.CreateRequest("A", "B", "gurney", false)
			So(errors.Is(err, ErrBadTransportType), ShouldBeTrue)
		})

		Convey("Worker names are unique", func() {
			_, err := d.AddWorker("W")
			So(err, ShouldBeNil)
			_, err = d.AddWorker("W")
			So(errors.Is(err, ErrDuplicateWorker), ShouldBeTrue)
		})

		Convey("Operations on unknown entities report not-found", func() {
			So(errors.Is(d.RemoveWorker("ghost"), ErrWorkerNotFound), ShouldBeTrue)
			So(errors.Is(d.SetWorkerStatus("ghost", true), ErrWorkerNotFound), ShouldBeTrue)
			So(errors.Is(d.ReturnHome("ghost"), ErrWorkerNotFound), ShouldBeTrue)
			So(errors.Is(d.RemoveRequest("ghost"), ErrRequestNotFound), ShouldBeTrue)
		})
	})
}

func TestRequestRemoval(t *testing.T) {
	Convey("Given a pending request with no fleet to serve it", t, func() {
		d, rec := testEngine(t, Options{})
		r, err := d.CreateRequest("A", "B", "stretcher", false)
		So(err, ShouldBeNil)

		Convey("Removal cancels it and drops it from the views", func() {
			So(d.RemoveRequest(r.ID), ShouldBeNil)
			So(r.Status(), ShouldEqual, model.StatusCancelled)

			views := d.RequestViews()
			for _, refs := range views {
				for _, ref := range refs {
					So(ref.ID, ShouldNotEqual, r.ID)
				}
			}

			cancelled := false
			for _, ev := range rec.OfType(event.TransportStatusUpdate) {
				p := ev.Payload.(event.TransportStatusPayload)
				if p.Request.ID == r.ID && p.Status == "cancelled" {
					cancelled = true
				}
			}
			So(cancelled, ShouldBeTrue)
		})
	})
}

func TestWorkerLifecycle(t *testing.T) {
	Convey("Given a registered worker", t, func() {
		d, _ := testEngine(t, Options{})
		w, err := d.AddWorker("W")
		So(err, ShouldBeNil)

		Convey("Status toggles deactivate and reactivate", func() {
			So(d.SetWorkerStatus("W", false), ShouldBeNil)
			So(w.Active(), ShouldBeFalse)
			So(d.Workers()[0].Status, ShouldEqual, "inactive")

			So(d.SetWorkerStatus("W", true), ShouldBeNil)
			So(w.Active(), ShouldBeTrue)
		})

		Convey("Deactivation returns queued work to the pending set", func() {
			r := model.NewRequest("A", "B", model.Stretcher, false)
			w.SetQueue([]*model.Request{r})
			So(d.SetWorkerStatus("W", false), ShouldBeNil)
			So(w.QueueLen(), ShouldEqual, 0)
			So(r.Status(), ShouldEqual, model.StatusPending)
		})

		Convey("Removal deactivates and forgets the worker", func() {
			So(d.RemoveWorker("W"), ShouldBeNil)
			So(w.Active(), ShouldBeFalse)
			_, found := d.Worker("W")
			So(found, ShouldBeFalse)
			So(d.Workers(), ShouldBeEmpty)
		})

		Convey("ReturnHome walks an idle worker back to the lounge", func() {
			w.Relocate("C")
			So(d.ReturnHome("W"), ShouldBeNil)
			So(eventually(func() bool { return w.CurrentNode() == model.Lounge }), ShouldBeTrue)

			Convey("And is a no-op when already there", func() {
				So(d.ReturnHome("W"), ShouldBeNil)
			})
		})
	})
}

func TestStrategySwap(t *testing.T) {
	Convey("Given a running engine", t, func() {
		d, _ := testEngine(t, Options{})
		So(d.StrategyName(), ShouldEqual, strategy.NameILPMakespan)

		Convey("A known strategy swaps in and re-plans", func() {
			So(d.SetStrategy(strategy.NameRandom), ShouldBeNil)
			So(d.StrategyName(), ShouldEqual, strategy.NameRandom)
		})

		Convey("An unknown strategy is rejected without a swap", func() {
			So(d.SetStrategy("greedy"), ShouldNotBeNil)
			So(d.StrategyName(), ShouldEqual, strategy.NameILPMakespan)
		})
	})
}

func TestQueuePopInvalidatesInFlightSolve(t *testing.T) {
	Convey("Given a solve in flight while a worker pops its queue", t, func() {
		d, _ := testEngine(t, Options{})
		w1, err := d.AddWorker("W1")
		So(err, ShouldBeNil)
		w2, err := d.AddWorker("W2")
		So(err, ShouldBeNil)
		w1.Relocate("A")
		w2.Relocate("A")
		So(eventually(func() bool { return settled(d) }), ShouldBeTrue)

		// A pending request parked in W1's queue, registered as intake does.
		r := model.NewRequest("A", "B", model.Bed, false)
		d.mu.Lock()
		d.requests = append(d.requests, r)
		d.byID[r.ID] = r
		d.mu.Unlock()
		w1.SetQueue([]*model.Request{r})

		// Take the re-plan snapshot exactly as ScheduleReplan does.
		d.mu.Lock()
		strat := d.strat
		fleet := append([]*model.Transporter(nil), d.workers...)
		assignable := d.assignableLocked()
		snapVersion := d.version
		d.solving = true
		d.mu.Unlock()
		So(assignable, ShouldContain, r)

		// Mid-solve, W1's movement loop pops the request into its
		// current task and pins it.
		So(d.nextTask(w1), ShouldEqual, r)
		r.Pin()

		Convey("The stale plan is rejected instead of double-assigning", func() {
			d.solveAndApply(strat, fleet, assignable, snapVersion)
			So(eventually(func() bool { return settled(d) }), ShouldBeTrue)

			So(w1.CurrentTask(), ShouldEqual, r)
			So(w1.QueueLen(), ShouldEqual, 0)
			So(w2.CurrentTask(), ShouldBeNil)
			So(w2.QueueLen(), ShouldEqual, 0)
			So(r.Status(), ShouldEqual, model.StatusOngoing)
			So(r.Assignee(), ShouldEqual, "W1")
		})
	})
}

func TestQueueContinuationSkipsCancelled(t *testing.T) {
	Convey("Given a queue whose head went terminal while parked", t, func() {
		d, _ := testEngine(t, Options{})
		w, err := d.AddWorker("W")
		So(err, ShouldBeNil)
		So(eventually(func() bool { return settled(d) }), ShouldBeTrue)

		dead := model.NewRequest("A", "B", model.Stretcher, false)
		dead.MarkCancelled()
		live := model.NewRequest("B", "C", model.Stretcher, false)
		w.SetQueue([]*model.Request{dead, live})

		Convey("The continuation pop lands on the live request", func() {
			So(d.nextTask(w), ShouldEqual, live)
			So(live.Status(), ShouldEqual, model.StatusOngoing)
			So(dead.Status(), ShouldEqual, model.StatusCancelled)
			So(w.QueueLen(), ShouldEqual, 0)
		})

		Convey("An all-terminal queue yields nothing", func() {
			w.SetQueue([]*model.Request{dead})
			So(d.nextTask(w), ShouldBeNil)
		})
	})
}

func TestRemoveRequestInFlight(t *testing.T) {
	Convey("Given a worker walking the pickup leg", t, func() {
		// Slow enough that the removal lands mid-leg.
		d, rec := testEngine(t, Options{SpeedFactor: 100})
		w, err := d.AddWorker("W")
		So(err, ShouldBeNil)
		w.Relocate("A")

		r, err := d.CreateRequest("B", "C", "stretcher", false)
		So(err, ShouldBeNil)
		So(eventually(func() bool { return r.Status() == model.StatusOngoing }), ShouldBeTrue)

		Convey("Cancelling drops the transport at the pickup", func() {
			So(d.RemoveRequest(r.ID), ShouldBeNil)
			So(r.Status(), ShouldEqual, model.StatusCancelled)

			So(eventually(func() bool {
				return w.CurrentTask() == nil && w.CurrentNode() == "B"
			}), ShouldBeTrue)
			So(rec.OfType(event.TransportCompleted), ShouldBeEmpty)
		})
	})
}

func TestRemoveRequestFlushesQueuedCopy(t *testing.T) {
	Convey("Given a busy worker with a queued request", t, func() {
		// Real-time speed keeps the current task in flight throughout.
		d, _ := testEngine(t, Options{SpeedFactor: 1})
		w, err := d.AddWorker("W")
		So(err, ShouldBeNil)
		w.Relocate("A")

		r1, err := d.CreateRequest("A", "C", "bed", false)
		So(err, ShouldBeNil)
		So(eventually(func() bool { return w.CurrentTask() == r1 }), ShouldBeTrue)

		r2, err := d.CreateRequest("A", "B", "bed", false)
		So(err, ShouldBeNil)
		So(eventually(func() bool { return w.QueueLen() == 1 }), ShouldBeTrue)

		Convey("Removal re-plans the queued copy away immediately", func() {
			So(d.RemoveRequest(r2.ID), ShouldBeNil)
			So(r2.Status(), ShouldEqual, model.StatusCancelled)
			So(eventually(func() bool { return w.QueueLen() == 0 }), ShouldBeTrue)
			So(w.CurrentTask(), ShouldEqual, r1)
			So(r1.Status(), ShouldEqual, model.StatusOngoing)
		})
	})
}

func TestSimulatorToggle(t *testing.T) {
	Convey("Given the synthetic-load generator", t, func() {
		d, rec := testEngine(t, Options{SimInterval: 5 * time.Millisecond})
		So(d.SimulationRunning(), ShouldBeFalse)

		Convey("Starting it feeds requests into the engine", func() {
			d.ToggleSimulation(true)
			So(d.SimulationRunning(), ShouldBeTrue)

			So(eventually(func() bool {
				return len(d.RequestViews()[string(model.StatusPending)]) >= 2
			}), ShouldBeTrue)

			d.ToggleSimulation(false)
			So(d.SimulationRunning(), ShouldBeFalse)

			var kinds []string
			for _, ev := range rec.OfType(event.SimulationEvent) {
				kinds = append(kinds, ev.Payload.(event.SimulationPayload).Kind)
			}
			So(kinds, ShouldContain, "started")
			So(kinds, ShouldContain, "new_request")
			So(kinds, ShouldContain, "stopped")
		})
	})
}
