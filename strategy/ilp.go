package strategy

import (
	"math"
	"sort"
	"time"

	"dispatch/graph"
	"dispatch/model"
)

// Mode selects the ILP objective.
type Mode int

const (
	// ModeMakespan minimizes the largest per-worker estimated workload.
	ModeMakespan Mode = iota
	// ModeEqualWorkload minimizes the spread between the most and least
	// loaded workers (linearization of the squared-deviation objective).
	ModeEqualWorkload
	// ModeUrgencyFirst minimizes total weighted service estimate, with
	// urgent requests discounted to half cost so they win assignments.
	ModeUrgencyFirst
)

func (m Mode) String() string {
	switch m {
	case ModeMakespan:
		return "makespan"
	case ModeEqualWorkload:
		return "equal_workload"
	case ModeUrgencyFirst:
		return "urgency_first"
	}
	return "unknown"
}

// urgencyDiscount is the estimate multiplier for urgent requests under
// ModeUrgencyFirst.
const urgencyDiscount = 0.5

// ILP is the integer-program optimizer. The model assigns every request to
// exactly one worker (x[t,r] binary) and derives queue order
// deterministically afterwards, since none of the three objectives
// constrains the pairwise order variables: any topological order is
// optimal, so ties break by objective-weighted estimate ascending, then
// request id. Solving is an exact branch-and-bound; when the configured
// timeout expires the best incumbent found so far is returned, and only a
// truly infeasible model yields a no-plan.
type ILP struct {
	mode    Mode
	timeout time.Duration
}

// NewILP returns the optimizer in the given mode. timeout zero means solve
// to proven optimality.
func NewILP(mode Mode, timeout time.Duration) *ILP {
	return &ILP{mode: mode, timeout: timeout}
}

// Mode returns the configured objective.
func (s *ILP) Mode() Mode { return s.mode }

// EstimateTravelTime implements the strategy contract with the shared
// shortest-path estimate.
func (s *ILP) EstimateTravelTime(g *graph.Graph, w *model.Transporter, r *model.Request) float64 {
	return Estimate(g, w, r)
}

// Plan builds and solves the assignment model.
func (s *ILP) Plan(workers []*model.Transporter, requests []*model.Request, g *graph.Graph) (Plan, bool) {
	eligible := activeOnly(workers)
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].Name < eligible[j].Name })

	plan := emptyPlan(eligible)
	if len(requests) == 0 {
		return plan, true
	}
	if len(eligible) == 0 {
		return nil, false
	}

	// Estimate matrix: raw travel-time currency plus the objective-weighted
	// copy used by the urgency objective and the ordering tie-break.
	raw := make([][]float64, len(requests))
	weighted := make([][]float64, len(requests))
	for ri, r := range requests {
		raw[ri] = make([]float64, len(eligible))
		weighted[ri] = make([]float64, len(eligible))
		feasible := false
		for ti, w := range eligible {
			e := Estimate(g, w, r)
			raw[ri][ti] = e
			weighted[ri][ti] = e
			if s.mode == ModeUrgencyFirst && r.Urgent {
				weighted[ri][ti] = e * urgencyDiscount
			}
			if !math.IsInf(e, 1) {
				feasible = true
			}
		}
		if !feasible {
			// No worker can reach this request at all: infeasible model.
			return nil, false
		}
	}

	var deadline time.Time
	if s.timeout > 0 {
		deadline = time.Now().Add(s.timeout)
	}
	assign, ok := solveAssignment(&assignmentProblem{
		workers:  len(eligible),
		raw:      raw,
		weighted: weighted,
		mode:     s.mode,
		deadline: deadline,
	})
	if !ok {
		return nil, false
	}

	for ri, ti := range assign {
		name := eligible[ti].Name
		plan[name] = append(plan[name], requests[ri])
	}

	// Queue-order extraction: objective-weighted estimate ascending, then
	// request id for full determinism.
	for _, w := range eligible {
		list := plan[w.Name]
		sort.SliceStable(list, func(i, j int) bool {
			wi := s.orderKey(g, w, list[i])
			wj := s.orderKey(g, w, list[j])
			if wi != wj {
				return wi < wj
			}
			return list[i].ID < list[j].ID
		})
		plan[w.Name] = list
	}
	return plan, true
}

func (s *ILP) orderKey(g *graph.Graph, w *model.Transporter, r *model.Request) float64 {
	e := Estimate(g, w, r)
	if s.mode == ModeUrgencyFirst && r.Urgent {
		return e * urgencyDiscount
	}
	return e
}
