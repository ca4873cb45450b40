package engine

import (
	"fmt"
	"math"

	"dispatch/event"
	"dispatch/model"
	"dispatch/strategy"
)

// applyPlanLocked installs a fresh plan onto the live fleet, preserving
// in-flight work. Callers hold the dispatcher lock, which serializes plan
// application. Rules per worker:
//
//  1. resting: replace the queue wholesale, leave the current task alone;
//     the rest-end re-plan will pick things up.
//  2. busy: preserve the current task, filter its (origin, destination)
//     duplicate out of the fresh list, replace the queue with the rest.
//  3. idle with work: pop the head as the current task and spawn the
//     movement loop; the tail becomes the queue.
//  4. idle without work: clear everything.
//
// A plan may only hand out pending requests. Anything else means the world
// moved underneath the solve (a movement loop popped the request, or a
// removal landed); the whole plan is refused and the caller retries via the
// dirty flag.
func (d *Dispatcher) applyPlanLocked(strat strategy.Strategy, plan strategy.Plan) error {
	for name, assigned := range plan {
		for _, r := range assigned {
			if s := r.Status(); s != model.StatusPending {
				return fmt.Errorf("plan assigns %s request %s to %s", s, r.ID, name)
			}
		}
	}

	for _, t := range d.workers {
		if !t.Active() {
			continue
		}
		assigned := plan[t.Name]

		switch {
		case t.Shift.Resting():
			t.SetQueue(assigned)
			d.emitLog(fmt.Sprintf("%s is currently resting and will not be assigned new requests.", t.Name))

		case t.Busy() && t.CurrentTask() != nil:
			cur := t.CurrentTask()
			filtered := assigned[:0:0]
			for _, r := range assigned {
				if r.Origin == cur.Origin && r.Destination == cur.Destination {
					continue
				}
				filtered = append(filtered, r)
			}
			t.SetQueue(filtered)
			d.emitLog(fmt.Sprintf("Preserving current task for %s: %s -> %s.", t.Name, cur.Origin, cur.Destination))

		case len(assigned) > 0:
			head := assigned[0]
			t.SetCurrentTask(head)
			head.Assign(t.Name)
			head.MarkOngoing()
			d.sink.Emit(event.Event{
				Type:    event.TransportStatusUpdate,
				Payload: event.TransportStatusPayload{Request: head.Ref(), Status: string(model.StatusOngoing)},
			})
			t.SetQueue(assigned[1:])
			d.emitLog(fmt.Sprintf("Assigned %s to: %s -> %s.", t.Name, head.Origin, head.Destination))
			go d.processTransport(t, head)

		default:
			t.SetCurrentTask(nil)
			t.SetQueue(nil)
			d.emitLog(fmt.Sprintf("%s is idle.", t.Name))
		}
	}

	d.version++
	d.plans++
	d.logPlanSummaryLocked(strat)
	return nil
}

// logPlanSummaryLocked emits a per-worker task summary with travel-time
// estimates after each plan application.
func (d *Dispatcher) logPlanSummaryLocked(strat strategy.Strategy) {
	for _, t := range d.workers {
		if !t.Active() {
			continue
		}
		total := 0.0
		if cur := t.CurrentTask(); cur != nil {
			est := strat.EstimateTravelTime(d.g, t, cur)
			if !math.IsInf(est, 1) {
				total += est
			}
			d.emitLog(fmt.Sprintf("  In progress: %s -> %s (~%.1fs)", cur.Origin, cur.Destination, est))
		}
		for i, r := range t.Queue() {
			est := strat.EstimateTravelTime(d.g, t, r)
			if !math.IsInf(est, 1) {
				total += est
			}
			d.emitLog(fmt.Sprintf("  Queued[%d]: %s -> %s (~%.1fs)", i+1, r.Origin, r.Destination, est))
		}
		if total > 0 {
			d.emitLog(fmt.Sprintf("Estimated total completion time for %s: ~%.1f seconds", t.Name, total))
		}
	}
}
