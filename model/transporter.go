package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	channerics "github.com/niceyeti/channerics/channels"
	"github.com/sirupsen/logrus"

	"dispatch/event"
	"dispatch/graph"
)

// Lounge is the designated home and rest node. Every transporter starts
// here and returns here for rest cycles.
const Lounge = "Transporter Lounge"

// Transporter is one human worker moving requests through the hospital.
// Identity, graph handle and sink are immutable; node, activity, task and
// queue are guarded by the mutex and mutated only by the worker's own
// movement goroutine and by the executor under the dispatcher lock. The
// workload meter is atomic so decay and movement never contend on the lock.
type Transporter struct {
	Name  string
	Shift *ShiftManager

	g     *graph.Graph
	sink  event.Sink
	speed float64
	log   *logrus.Entry

	mu          sync.Mutex
	currentNode string
	active      bool
	busy        bool
	current     *Request
	queue       []*Request

	workload Meter
}

// NewTransporter returns an active, idle worker at the lounge.
func NewTransporter(name string, g *graph.Graph, sink event.Sink, speed float64, shift *ShiftManager) *Transporter {
	if shift == nil {
		shift = &ShiftManager{RestThreshold: 40, RestDuration: 15}
	}
	return &Transporter{
		Name:        name,
		Shift:       shift,
		g:           g,
		sink:        sink,
		speed:       speed,
		log:         logrus.WithFields(logrus.Fields{"component": "transporter", "name": name}),
		currentNode: Lounge,
		active:      true,
	}
}

// CurrentNode returns the worker's department.
func (t *Transporter) CurrentNode() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentNode
}

// Active reports whether the worker participates in planning and movement.
func (t *Transporter) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// SetActive flips activity and announces the change. Deactivation cancels
// any in-flight movement at the next edge boundary.
func (t *Transporter) SetActive(active bool) {
	t.mu.Lock()
	t.active = active
	t.mu.Unlock()

	status := "inactive"
	if active {
		status = "active"
	}
	t.sink.Emit(event.Event{
		Type:    event.TransporterStatusUpdate,
		Payload: event.TransporterStatusPayload{Name: t.Name, Status: status},
	})
}

// Busy reports whether a current task exists.
func (t *Transporter) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.busy
}

// CurrentTask returns the in-flight request, if any.
func (t *Transporter) CurrentTask() *Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// SetCurrentTask installs (or clears, with nil) the in-flight request,
// keeping the is_busy invariant in lockstep.
func (t *Transporter) SetCurrentTask(r *Request) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = r
	t.busy = r != nil
}

// Queue returns a snapshot copy of the task queue.
func (t *Transporter) Queue() []*Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Request, len(t.queue))
	copy(out, t.queue)
	return out
}

// SetQueue replaces the task queue wholesale and stamps the assignee on
// every entry.
func (t *Transporter) SetQueue(reqs []*Request) {
	t.mu.Lock()
	t.queue = append([]*Request(nil), reqs...)
	t.mu.Unlock()
	for _, r := range reqs {
		r.Assign(t.Name)
	}
}

// PopQueue removes and returns the queue head, or nil when empty.
func (t *Transporter) PopQueue() *Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 {
		return nil
	}
	head := t.queue[0]
	t.queue = t.queue[1:]
	return head
}

// QueueLen returns the queue length.
func (t *Transporter) QueueLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Relocate teleports the worker, bypassing movement. Benchmark fixtures and
// scenario setups use it to stage fleets; live traffic never does.
func (t *Transporter) Relocate(node string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentNode = node
}

// Workload returns the cumulative workload.
func (t *Transporter) Workload() float64 { return t.workload.Load() }

// SetWorkload overwrites the meter; benchmark harnesses use it to reset
// fleets between rounds.
func (t *Transporter) SetWorkload(v float64) { t.workload.Set(v) }

// MoveTo walks the worker along the shortest path to dst, sleeping
// weight/speed of wall time per edge and advancing the authoritative node at
// each step. The full path plus per-edge durations is announced up front so
// a UI can animate. Returns false without moving when the worker is
// inactive or no path exists; an in-flight walk also fails at the next edge
// boundary if the worker is deactivated or ctx is cancelled. On success the
// workload grows by exactly the path weight.
func (t *Transporter) MoveTo(ctx context.Context, dst string) bool {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		t.emitLog(fmt.Sprintf("%s is inactive and cannot move to %s.", t.Name, dst))
		return false
	}
	src := t.currentNode
	t.mu.Unlock()

	path, total, ok := t.g.ShortestPath(src, dst)
	if !ok {
		t.emitLog(fmt.Sprintf("%s cannot reach %s from %s.", t.Name, dst, src))
		return false
	}

	if len(path) > 1 {
		durations := make([]float64, len(path)-1)
		for i := 1; i < len(path); i++ {
			w, _ := t.g.EdgeWeight(path[i-1], path[i])
			durations[i-1] = w / t.speed
		}
		t.sink.Emit(event.Event{
			Type:    event.TransporterUpdate,
			Payload: event.TransporterUpdatePayload{Name: t.Name, Path: path, Durations: durations},
		})
	}

	for i := 1; i < len(path); i++ {
		w, _ := t.g.EdgeWeight(path[i-1], path[i])
		if !t.sleep(ctx, w) {
			return false
		}
		if !t.Active() {
			t.emitLog(fmt.Sprintf("%s was deactivated mid-route at %s.", t.Name, path[i-1]))
			return false
		}
		t.mu.Lock()
		t.currentNode = path[i]
		t.mu.Unlock()
	}

	load := t.workload.Add(total)
	t.sink.Emit(event.Event{
		Type:    event.WorkloadUpdate,
		Payload: event.WorkloadPayload{Name: t.Name, Workload: load},
	})
	return true
}

// sleep blocks for simSeconds of simulated time, scaled to wall time by the
// speed factor. Returns false on cancellation.
func (t *Transporter) sleep(ctx context.Context, simSeconds float64) bool {
	d := time.Duration(simSeconds / t.speed * float64(time.Second))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Rest drives one full rest cycle: flag resting, walk to the lounge, sleep
// the configured duration, flag working again. The walk is best-effort; an
// unreachable lounge still rests the worker in place.
func (t *Transporter) Rest(ctx context.Context) {
	t.Shift.BeginRest()
	t.sink.Emit(event.Event{
		Type:    event.TransporterStatusUpdate,
		Payload: event.TransporterStatusPayload{Name: t.Name, Status: "resting"},
	})
	t.emitLog(fmt.Sprintf("%s has reached their limit and is heading to the lounge for rest.", t.Name))

	t.MoveTo(ctx, Lounge)
	t.sleep(ctx, t.Shift.RestDuration)

	t.Shift.EndRest()
	t.sink.Emit(event.Event{
		Type:    event.TransporterStatusUpdate,
		Payload: event.TransporterStatusPayload{Name: t.Name, Status: "active"},
	})
	t.emitLog(fmt.Sprintf("%s is now rested and ready for new assignments!", t.Name))
}

// DecayWorkload reduces the workload by one unit per simulated second while
// the worker stays idle, floored at zero. It returns when the worker becomes
// busy again, the meter empties, or ctx is cancelled. Best-effort: losing a
// race with new work only delays decay, never corrupts the meter.
func (t *Transporter) DecayWorkload(ctx context.Context) {
	interval := time.Duration(float64(time.Second) / t.speed)
	for range channerics.NewTicker(ctx.Done(), interval) {
		if t.Busy() {
			return
		}
		if t.workload.Add(-1) == 0 {
			return
		}
	}
}

// View is the read-model snapshot served by the command API.
type View struct {
	Name            string  `json:"name"`
	CurrentLocation string  `json:"current_location"`
	Status          string  `json:"status"`
	Busy            bool    `json:"is_busy"`
	Resting         bool    `json:"resting"`
	Workload        float64 `json:"workload"`
	QueueLength     int     `json:"queue_length"`
}

// Snapshot copies the worker's observable state under the lock.
func (t *Transporter) Snapshot() View {
	t.mu.Lock()
	node := t.currentNode
	active := t.active
	busy := t.busy
	qlen := len(t.queue)
	t.mu.Unlock()

	status := "inactive"
	if active {
		status = "active"
	}
	return View{
		Name:            t.Name,
		CurrentLocation: node,
		Status:          status,
		Busy:            busy,
		Resting:         t.Shift.Resting(),
		Workload:        t.workload.Load(),
		QueueLength:     qlen,
	}
}

func (t *Transporter) emitLog(msg string) {
	t.log.Info(msg)
	t.sink.Emit(event.Log(msg))
}
