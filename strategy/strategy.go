// Package strategy contains the pluggable assignment planners. A strategy
// turns the current fleet, the assignable requests and the hospital graph
// into a whole-fleet plan: an ordered task list per transporter. Strategies
// are stateless between invocations; all durable state lives on the
// dispatcher and the transporters.
package strategy

import (
	"fmt"
	"math"
	"time"

	"dispatch/graph"
	"dispatch/model"
)

// Plan maps transporter name to its ordered task list. The union of all
// lists partitions the assignable request set.
type Plan map[string][]*model.Request

// Strategy is the planner contract. Plan returns ok == false when the
// problem is infeasible (a no-plan); an empty request set yields an empty
// plan and ok == true. EstimateTravelTime is the scheduler's currency:
// worker -> origin plus origin -> destination shortest-path weight,
// deliberately ignoring queue predecessors.
type Strategy interface {
	Plan(workers []*model.Transporter, requests []*model.Request, g *graph.Graph) (Plan, bool)
	EstimateTravelTime(g *graph.Graph, w *model.Transporter, r *model.Request) float64
}

// Estimate computes the travel-time currency for one (worker, request)
// pair. An unreachable leg yields +Inf, which planners treat as "this
// worker cannot serve this request".
func Estimate(g *graph.Graph, w *model.Transporter, r *model.Request) float64 {
	_, toOrigin, ok := g.ShortestPath(w.CurrentNode(), r.Origin)
	if !ok {
		return math.Inf(1)
	}
	_, toDest, ok := g.ShortestPath(r.Origin, r.Destination)
	if !ok {
		return math.Inf(1)
	}
	return toOrigin + toDest
}

// activeOnly filters the fleet down to workers eligible for new plans.
func activeOnly(workers []*model.Transporter) []*model.Transporter {
	out := make([]*model.Transporter, 0, len(workers))
	for _, w := range workers {
		if w.Active() {
			out = append(out, w)
		}
	}
	return out
}

// emptyPlan returns a valid plan with an empty list per worker.
func emptyPlan(workers []*model.Transporter) Plan {
	plan := make(Plan, len(workers))
	for _, w := range workers {
		plan[w.Name] = nil
	}
	return plan
}

// Names of the selectable strategies.
const (
	NameRandom      = "random"
	NameILPMakespan = "ilp:makespan"
	NameILPEqual    = "ilp:equal"
	NameILPUrgency  = "ilp:urgency"
)

// New builds a strategy by name. seed feeds the random baseline so
// perturbation runs are reproducible; timeout bounds each ILP solve
// (zero means unbounded).
func New(name string, seed int64, timeout time.Duration) (Strategy, error) {
	switch name {
	case NameRandom:
		return NewRandom(seed), nil
	case NameILPMakespan:
		return NewILP(ModeMakespan, timeout), nil
	case NameILPEqual:
		return NewILP(ModeEqualWorkload, timeout), nil
	case NameILPUrgency:
		return NewILP(ModeUrgencyFirst, timeout), nil
	}
	return nil, fmt.Errorf("strategy: unknown strategy %q", name)
}
