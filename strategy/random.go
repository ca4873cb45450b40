package strategy

import (
	"math/rand"
	"sync"

	"dispatch/graph"
	"dispatch/model"
)

// Random assigns each request, in input order, to a uniformly chosen active
// worker. It is the baseline for benchmarking the optimizer and doubles as
// a stress/perturbation generator. The RNG is seeded at construction so a
// fixed seed plus a fixed request stream reproduces the same assignment.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom returns the baseline strategy with a deterministic RNG.
func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

// Plan appends each request to a random active worker's list.
func (s *Random) Plan(workers []*model.Transporter, requests []*model.Request, _ *graph.Graph) (Plan, bool) {
	eligible := activeOnly(workers)
	plan := emptyPlan(eligible)
	if len(requests) == 0 {
		return plan, true
	}
	if len(eligible) == 0 {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range requests {
		pick := eligible[s.rng.Intn(len(eligible))]
		plan[pick.Name] = append(plan[pick.Name], r)
	}
	return plan, true
}

// EstimateTravelTime returns a flat unit cost; the baseline does not consult
// the graph.
func (s *Random) EstimateTravelTime(_ *graph.Graph, _ *model.Transporter, _ *model.Request) float64 {
	return 1
}
