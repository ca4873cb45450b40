// Package engine wires the dispatcher core: request intake, fleet registry,
// re-plan scheduling, plan application, and the per-worker movement loops.
// One Dispatcher is one independent engine instance; benchmark harnesses
// construct many side by side.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"dispatch/event"
	"dispatch/graph"
	"dispatch/model"
	"dispatch/strategy"
)

// Intake and command errors, mapped to the API error taxonomy by the server.
var (
	ErrDuplicateWorker  = errors.New("transporter with this name already exists")
	ErrWorkerNotFound   = errors.New("transporter not found")
	ErrRequestNotFound  = errors.New("transport request not found")
	ErrUnknownNode      = errors.New("unknown department")
	ErrBadTransportType = errors.New("unknown transport type")
	ErrNoPath           = errors.New("no path to destination")
	ErrWorkerBusy       = errors.New("transporter is busy")
)

// Options configures one engine instance.
type Options struct {
	// SpeedFactor scales simulated seconds to wall time (default 10x).
	SpeedFactor float64
	// CoalesceInterval is the pause between a finished solve and the
	// follow-up solve that a dirty flag demands (default 0).
	CoalesceInterval time.Duration
	// SolverTimeout bounds each ILP solve; zero means unbounded.
	SolverTimeout time.Duration
	// RestThreshold and RestDuration configure new workers' shifts.
	RestThreshold float64
	RestDuration  float64
	// Strategy names the initial planner (default ilp:makespan).
	Strategy string
	// Seed feeds the random baseline and the simulator.
	Seed int64
	// SimInterval is the synthetic-load generator cadence in real time.
	SimInterval time.Duration
}

func (o *Options) normalize() {
	if o.SpeedFactor <= 0 {
		o.SpeedFactor = 10
	}
	if o.RestThreshold <= 0 {
		o.RestThreshold = 40
	}
	if o.RestDuration <= 0 {
		o.RestDuration = 15
	}
	if o.Strategy == "" {
		o.Strategy = strategy.NameILPMakespan
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	if o.SimInterval <= 0 {
		o.SimInterval = 10 * time.Second
	}
}

// Dispatcher owns the master registry of workers and requests, triggers
// re-planning on every relevant mutation, and drives each worker's movement
// loop. All fleet/request mutation and plan application is serialized by a
// single mutex with short critical sections. ILP solves run outside the
// lock against a stable copy of the roster and the assignable set; worker
// positions are read live during the solve, so a version counter rejects
// any plan whose snapshot predates a committed mutation, including a
// movement loop popping its queue.
type Dispatcher struct {
	g     *graph.Graph
	sink  event.Sink
	clock *Clock
	opts  Options
	log   *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	workers   []*model.Transporter
	byName    map[string]*model.Transporter
	requests  []*model.Request // registry, creation order
	byID      map[string]*model.Request
	strat     strategy.Strategy
	stratName string
	version   uint64
	solving   bool
	dirty     bool
	plans     uint64

	sim *Simulator
}

// New constructs an engine over a built graph. The clock tick emitter
// starts immediately; Close stops everything.
func New(g *graph.Graph, sink event.Sink, opts Options) (*Dispatcher, error) {
	opts.normalize()
	strat, err := strategy.New(opts.Strategy, opts.Seed, opts.SolverTimeout)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		g:         g,
		sink:      sink,
		clock:     NewClock(opts.SpeedFactor),
		opts:      opts,
		log:       logrus.WithField("component", "dispatcher"),
		ctx:       ctx,
		cancel:    cancel,
		byName:    map[string]*model.Transporter{},
		byID:      map[string]*model.Request{},
		strat:     strat,
		stratName: opts.Strategy,
	}
	d.sim = newSimulator(d, opts.SimInterval, opts.Seed)
	go d.clock.EmitTicks(ctx, sink)
	return d, nil
}

// Close cancels all movement loops, the simulator and the clock emitter.
func (d *Dispatcher) Close() {
	d.sim.Stop()
	d.cancel()
}

// Clock exposes the engine's simulated-time source.
func (d *Dispatcher) Clock() *Clock { return d.clock }

// Graph exposes the read-only hospital graph.
func (d *Dispatcher) Graph() *graph.Graph { return d.g }

// --- Intake operations -----------------------------------------------------

// AddWorker registers a new transporter at the lounge and re-plans.
func (d *Dispatcher) AddWorker(name string) (*model.Transporter, error) {
	d.mu.Lock()
	if _, dup := d.byName[name]; dup {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDuplicateWorker, name)
	}
	shift := &model.ShiftManager{
		RestThreshold: d.opts.RestThreshold,
		RestDuration:  d.opts.RestDuration,
	}
	t := model.NewTransporter(name, d.g, d.sink, d.opts.SpeedFactor, shift)
	d.workers = append(d.workers, t)
	d.byName[name] = t
	d.version++
	d.mu.Unlock()

	d.sink.Emit(event.Event{
		Type:    event.NewTransporter,
		Payload: event.NewTransporterPayload{Name: name, CurrentLocation: model.Lounge},
	})
	d.emitLog(fmt.Sprintf("%s added at %s and is ready for assignments.", name, model.Lounge))
	d.ScheduleReplan()
	return t, nil
}

// RemoveWorker deactivates the worker (cancelling movement at the next edge
// boundary), returns its queued requests to the pending set, and drops it
// from the registry.
func (d *Dispatcher) RemoveWorker(name string) error {
	d.mu.Lock()
	t, ok := d.byName[name]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrWorkerNotFound, name)
	}
	delete(d.byName, name)
	for i, w := range d.workers {
		if w == t {
			d.workers = append(d.workers[:i], d.workers[i+1:]...)
			break
		}
	}
	t.SetQueue(nil)
	d.version++
	d.mu.Unlock()

	t.SetActive(false)
	d.emitLog(fmt.Sprintf("%s removed from service.", name))
	d.ScheduleReplan()
	return nil
}

// SetWorkerStatus activates or deactivates a worker. Reactivation is a
// re-plan trigger; deactivation parks the worker's queued requests back in
// the pending set until the next re-plan.
func (d *Dispatcher) SetWorkerStatus(name string, active bool) error {
	d.mu.Lock()
	t, ok := d.byName[name]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrWorkerNotFound, name)
	}
	if !active {
		t.SetQueue(nil)
	}
	d.version++
	d.mu.Unlock()

	t.SetActive(active)
	if active {
		d.emitLog(fmt.Sprintf("%s is back in service.", name))
		d.ScheduleReplan()
	} else {
		d.emitLog(fmt.Sprintf("%s is out of service.", name))
	}
	return nil
}

// CreateRequest validates and registers a pending request, then re-plans.
func (d *Dispatcher) CreateRequest(origin, destination, transportType string, urgent bool) (*model.Request, error) {
	if !d.g.HasNode(origin) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, origin)
	}
	if !d.g.HasNode(destination) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, destination)
	}
	if !model.ValidTransportType(transportType) {
		return nil, fmt.Errorf("%w: %q", ErrBadTransportType, transportType)
	}

	r := model.NewRequest(origin, destination, model.TransportType(transportType), urgent)
	d.mu.Lock()
	d.requests = append(d.requests, r)
	d.byID[r.ID] = r
	d.version++
	d.mu.Unlock()

	d.emitLog(fmt.Sprintf("Transport request created: %s (urgent: %v)", r, urgent))
	d.sink.Emit(event.Event{
		Type:    event.TransportStatusUpdate,
		Payload: event.TransportStatusPayload{Request: r.Ref(), Status: string(model.StatusPending)},
	})
	d.ScheduleReplan()
	return r, nil
}

// RemoveRequest cancels a non-terminal request (pulling it out of whatever
// queue holds it at the next plan application) or drops a terminal one from
// the registry.
func (d *Dispatcher) RemoveRequest(id string) error {
	d.mu.Lock()
	r, ok := d.byID[id]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrRequestNotFound, id)
	}
	delete(d.byID, id)
	for i, q := range d.requests {
		if q == r {
			d.requests = append(d.requests[:i], d.requests[i+1:]...)
			break
		}
	}
	d.version++
	d.mu.Unlock()

	if r.MarkCancelled() {
		d.sink.Emit(event.Event{
			Type:    event.TransportStatusUpdate,
			Payload: event.TransportStatusPayload{Request: r.Ref(), Status: string(model.StatusCancelled)},
		})
		// Flush any queued copy promptly; an in-flight holder drops the
		// cancelled task at its next leg boundary.
		d.ScheduleReplan()
	}
	d.emitLog(fmt.Sprintf("Request %s removed.", id))
	return nil
}

// SetStrategy swaps the planner at runtime and re-plans.
func (d *Dispatcher) SetStrategy(name string) error {
	strat, err := strategy.New(name, d.opts.Seed, d.opts.SolverTimeout)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.strat = strat
	d.stratName = name
	d.version++
	d.mu.Unlock()

	d.emitLog(fmt.Sprintf("Assignment strategy switched to: %s", name))
	d.ScheduleReplan()
	return nil
}

// PlansApplied counts successfully committed plan applications.
func (d *Dispatcher) PlansApplied() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.plans
}

// StrategyName returns the active planner's registry name.
func (d *Dispatcher) StrategyName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stratName
}

// ReturnHome sends an idle worker back to the lounge.
func (d *Dispatcher) ReturnHome(name string) error {
	d.mu.Lock()
	t, ok := d.byName[name]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrWorkerNotFound, name)
	}
	if t.Busy() {
		return fmt.Errorf("%w: %q", ErrWorkerBusy, name)
	}
	if t.CurrentNode() == model.Lounge {
		d.emitLog(fmt.Sprintf("%s is already in the lounge.", name))
		return nil
	}
	if _, _, ok := d.g.ShortestPath(t.CurrentNode(), model.Lounge); !ok {
		return fmt.Errorf("%w: %s to %s", ErrNoPath, t.CurrentNode(), model.Lounge)
	}
	go func() {
		if t.MoveTo(d.ctx, model.Lounge) {
			d.emitLog(fmt.Sprintf("%s has returned to the %s.", name, model.Lounge))
		}
	}()
	return nil
}

// ToggleSimulation starts or stops the synthetic-load generator.
func (d *Dispatcher) ToggleSimulation(running bool) {
	if running {
		d.sim.Start()
	} else {
		d.sim.Stop()
	}
}

// SimulationRunning reports the generator state.
func (d *Dispatcher) SimulationRunning() bool { return d.sim.Running() }

// --- Snapshots ---------------------------------------------------------------

// Workers returns a consistent view of the fleet.
func (d *Dispatcher) Workers() []model.View {
	d.mu.Lock()
	fleet := append([]*model.Transporter(nil), d.workers...)
	d.mu.Unlock()

	views := make([]model.View, 0, len(fleet))
	for _, t := range fleet {
		views = append(views, t.Snapshot())
	}
	return views
}

// Worker looks up one transporter by name.
func (d *Dispatcher) Worker(name string) (*model.Transporter, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.byName[name]
	return t, ok
}

// RequestViews groups all registered requests by lifecycle status.
func (d *Dispatcher) RequestViews() map[string][]event.RequestRef {
	d.mu.Lock()
	all := append([]*model.Request(nil), d.requests...)
	d.mu.Unlock()

	out := map[string][]event.RequestRef{}
	for _, r := range all {
		s := string(r.Status())
		out[s] = append(out[s], r.Ref())
	}
	return out
}

// --- Re-plan scheduling ------------------------------------------------------

// ScheduleReplan requests a whole-fleet re-optimization. Triggers arriving
// while a solve is in flight collapse into a single follow-up run (dirty
// flag + single-slot token); solves never run concurrently.
func (d *Dispatcher) ScheduleReplan() {
	d.mu.Lock()
	if d.solving {
		d.dirty = true
		d.mu.Unlock()
		return
	}
	d.solving = true
	strat := d.strat
	fleet := append([]*model.Transporter(nil), d.workers...)
	assignable := d.assignableLocked()
	snapVersion := d.version
	d.mu.Unlock()

	go d.solveAndApply(strat, fleet, assignable, snapVersion)
}

// assignableLocked gathers, in creation order, every request a re-plan may
// move: the pending ones, whether sitting in the pending set or parked in
// some worker's queue. In-flight (ongoing) tasks are pinned to their worker
// and excluded. Callers hold the dispatcher lock.
func (d *Dispatcher) assignableLocked() []*model.Request {
	out := make([]*model.Request, 0, len(d.requests))
	for _, r := range d.requests {
		if r.Status() == model.StatusPending && r.Reassignable() {
			out = append(out, r)
		}
	}
	return out
}

func (d *Dispatcher) solveAndApply(
	strat strategy.Strategy,
	fleet []*model.Transporter,
	assignable []*model.Request,
	snapVersion uint64,
) {
	// The solve is the long step; it runs outside the dispatcher lock.
	plan, ok := strat.Plan(fleet, assignable, d.g)

	d.mu.Lock()
	d.solving = false
	noPlan := false
	switch {
	case !ok:
		// No-plan: leave all state untouched.
		d.log.WithField("requests", len(assignable)).Warn("optimization failed or infeasible")
		noPlan = true
	case d.version != snapVersion:
		// The world moved on mid-solve; this plan is stale.
		d.dirty = true
	default:
		if err := d.applyPlanLocked(strat, plan); err != nil {
			d.log.WithError(err).Error("plan rejected")
			d.dirty = true
		}
	}
	again := d.dirty
	d.dirty = false
	d.mu.Unlock()

	if noPlan {
		d.emitLog("Optimization failed or no assignments available.")
	}

	if again {
		if d.opts.CoalesceInterval > 0 {
			select {
			case <-time.After(d.opts.CoalesceInterval):
			case <-d.ctx.Done():
				return
			}
		}
		if d.ctx.Err() == nil {
			d.ScheduleReplan()
		}
	}
}

// --- Movement loop -------------------------------------------------------------

// processTransport drives one worker through one request and then onward
// through its queue. It runs on the worker's own goroutine; per-edge sleeps
// and the rest duration are its only suspension points.
func (d *Dispatcher) processTransport(t *model.Transporter, r *model.Request) {
	d.emitLog(fmt.Sprintf("%s started transport from %s to %s.", t.Name, r.Origin, r.Destination))

	// Leaving toward the pickup pins the request to this worker.
	r.Pin()

	switch {
	case !t.MoveTo(d.ctx, r.Origin):
		d.emitLog(fmt.Sprintf("%s failed to reach %s.", t.Name, r.Origin))
		t.SetCurrentTask(nil)
		return

	case r.Status() == model.StatusCancelled:
		// Removed underfoot; drop it at the pickup instead of walking a
		// dead transport.
		d.emitLog(fmt.Sprintf("%s abandoned transport %s -> %s: request was cancelled.", t.Name, r.Origin, r.Destination))

	case !t.MoveTo(d.ctx, r.Destination):
		d.emitLog(fmt.Sprintf("%s failed to reach %s.", t.Name, r.Destination))
		t.SetCurrentTask(nil)
		return

	default:
		r.MarkCompleted()
		d.emitLog(fmt.Sprintf("%s completed transport from %s to %s.", t.Name, r.Origin, r.Destination))
		d.sink.Emit(event.Event{
			Type: event.TransportCompleted,
			Payload: event.TransportCompletedPayload{
				Transporter: t.Name,
				Origin:      r.Origin,
				Destination: r.Destination,
			},
		})
		d.sink.Emit(event.Event{
			Type:    event.TransportStatusUpdate,
			Payload: event.TransportStatusPayload{Request: r.Ref(), Status: string(model.StatusCompleted)},
		})
	}

	// Workload cooldown runs in the background and stops on new work.
	go t.DecayWorkload(d.ctx)

	if t.Shift.ShouldRest(t.Workload()) {
		t.Rest(d.ctx)
		// Freshly rested capacity may change the optimal assignment.
		d.ScheduleReplan()
	}

	if next := d.nextTask(t); next != nil {
		d.sink.Emit(event.Event{
			Type:    event.TransportStatusUpdate,
			Payload: event.TransportStatusPayload{Request: next.Ref(), Status: string(model.StatusOngoing)},
		})
		d.processTransport(t, next)
		return
	}
	t.SetCurrentTask(nil)
}

// nextTask advances the worker to its next runnable queued request under the
// dispatcher lock, skipping entries that went terminal while parked. The
// version bump invalidates any in-flight solve whose snapshot still saw the
// popped request as assignable; without it a stale plan could hand the same
// request to a second worker.
func (d *Dispatcher) nextTask(t *model.Transporter) *model.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		next := t.PopQueue()
		if next == nil {
			return nil
		}
		if !next.MarkOngoing() {
			continue
		}
		t.SetCurrentTask(next)
		d.version++
		return next
	}
}

func (d *Dispatcher) emitLog(msg string) {
	d.log.Info(msg)
	d.sink.Emit(event.Log(msg))
}
