package strategy

import (
	"math"
	"sort"
	"time"
)

// assignmentProblem is the solver input: per-(request, worker) estimates and
// an objective mode. raw feeds the per-worker workload expressions, weighted
// feeds the urgency objective. A +Inf entry means the worker cannot serve
// the request.
type assignmentProblem struct {
	workers  int
	raw      [][]float64
	weighted [][]float64
	mode     Mode
	deadline time.Time
}

// deadlineCheckStride controls how often the search consults the wall clock.
const deadlineCheckStride = 256

// solveAssignment finds assign[r] = worker index minimizing the mode's
// objective, via depth-first branch-and-bound. Candidate workers at each
// level are tried cheapest-increment first, so the initial dive is a greedy
// incumbent and the deadline path always has something to return. ok is
// false only when no complete assignment exists.
func solveAssignment(p *assignmentProblem) (assign []int, ok bool) {
	n := len(p.raw)
	s := &searcher{
		p:       p,
		order:   branchOrder(p),
		loads:   make([]float64, p.workers),
		current: make([]int, n),
		best:    math.Inf(1),
	}
	s.dfs(0)
	if s.incumbent == nil {
		return nil, false
	}
	return s.incumbent, true
}

// branchOrder sorts request indices by descending cheapest estimate, so the
// most constrained (most expensive) requests are placed high in the tree
// where pruning bites hardest.
func branchOrder(p *assignmentProblem) []int {
	n := len(p.raw)
	minEst := make([]float64, n)
	for r := 0; r < n; r++ {
		minEst[r] = math.Inf(1)
		for t := 0; t < p.workers; t++ {
			if p.raw[r][t] < minEst[r] {
				minEst[r] = p.raw[r][t]
			}
		}
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return minEst[order[i]] > minEst[order[j]] })
	return order
}

type searcher struct {
	p       *assignmentProblem
	order   []int
	loads   []float64
	current []int
	wsum    float64 // running urgency-weighted sum

	best      float64
	incumbent []int
	nodes     int
	expired   bool
}

func (s *searcher) dfs(depth int) {
	if s.expired {
		return
	}
	s.nodes++
	if s.nodes%deadlineCheckStride == 0 && !s.p.deadline.IsZero() && time.Now().After(s.p.deadline) {
		s.expired = true
		return
	}

	if depth == len(s.order) {
		obj := s.objective()
		if obj < s.best {
			s.best = obj
			s.incumbent = append([]int(nil), s.current...)
		}
		return
	}

	r := s.order[depth]

	// Try workers cheapest objective increment first.
	cands := make([]int, 0, s.p.workers)
	for t := 0; t < s.p.workers; t++ {
		if !math.IsInf(s.p.raw[r][t], 1) {
			cands = append(cands, t)
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return s.increment(r, cands[i]) < s.increment(r, cands[j])
	})

	for _, t := range cands {
		s.loads[t] += s.p.raw[r][t]
		s.wsum += s.p.weighted[r][t]
		s.current[r] = t
		if s.lowerBound(depth+1) < s.best {
			s.dfs(depth + 1)
		}
		s.loads[t] -= s.p.raw[r][t]
		s.wsum -= s.p.weighted[r][t]
		if s.expired {
			return
		}
	}
}

// increment scores how much assigning request r to worker t would hurt the
// objective, used only to order branches.
func (s *searcher) increment(r, t int) float64 {
	switch s.p.mode {
	case ModeUrgencyFirst:
		return s.p.weighted[r][t]
	case ModeEqualWorkload, ModeMakespan:
		return s.loads[t] + s.p.raw[r][t]
	}
	return s.p.raw[r][t]
}

func (s *searcher) objective() float64 {
	switch s.p.mode {
	case ModeMakespan:
		return maxOf(s.loads)
	case ModeEqualWorkload:
		return maxOf(s.loads) - minOf(s.loads)
	case ModeUrgencyFirst:
		return s.wsum
	}
	return math.Inf(1)
}

// lowerBound is an admissible bound on the objective of any completion of
// the partial assignment at the given depth.
func (s *searcher) lowerBound(depth int) float64 {
	remMin := 0.0
	for _, r := range s.order[depth:] {
		m := math.Inf(1)
		for t := 0; t < s.p.workers; t++ {
			v := s.p.raw[r][t]
			if s.p.mode == ModeUrgencyFirst {
				v = s.p.weighted[r][t]
			}
			if v < m {
				m = v
			}
		}
		remMin += m
	}

	switch s.p.mode {
	case ModeMakespan:
		// Loads only grow, so the current max is a floor.
		return maxOf(s.loads)
	case ModeEqualWorkload:
		// The least-loaded worker can gain at most all remaining work, so
		// the spread cannot drop below curMax - (curMin + remaining).
		lb := maxOf(s.loads) - (minOf(s.loads) + remMin)
		if lb < 0 {
			lb = 0
		}
		return lb
	case ModeUrgencyFirst:
		return s.wsum + remMin
	}
	return 0
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}
