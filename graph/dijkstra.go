package graph

import "container/heap"

// ShortestPath computes the minimum-weight path from src to dst using
// Dijkstra over a min-heap of (distance, node) pairs with a lazy
// decrease-key: shorter rediscoveries push duplicates and stale entries are
// skipped when popped. Ties on distance break toward the lexicographically
// smaller node so plans are deterministic.
//
// src == dst yields the single-node path with weight 0. An unreachable or
// unknown pair returns ok == false; callers treat that as a planning
// failure for the pair, not an error.
func (g *Graph) ShortestPath(src, dst string) (path []string, total float64, ok bool) {
	if !g.HasNode(src) || !g.HasNode(dst) {
		return nil, 0, false
	}
	if src == dst {
		return []string{src}, 0, true
	}

	dist := map[string]float64{src: 0}
	prev := map[string]string{}
	done := map[string]bool{}

	pq := &nodeQueue{{node: src, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		item := heap.Pop(pq).(nodeItem)
		if done[item.node] {
			continue
		}
		done[item.node] = true
		if item.node == dst {
			break
		}
		for _, e := range g.Neighbors(item.node) {
			if done[e.To] {
				continue
			}
			cand := item.dist + e.Weight
			if best, seen := dist[e.To]; !seen || cand < best {
				dist[e.To] = cand
				prev[e.To] = item.node
				heap.Push(pq, nodeItem{node: e.To, dist: cand})
			}
		}
	}

	if !done[dst] {
		return nil, 0, false
	}

	// Walk predecessors back to src, then reverse in place.
	for at := dst; ; at = prev[at] {
		path = append(path, at)
		if at == src {
			break
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, dist[dst], true
}

type nodeItem struct {
	node string
	dist float64
}

// nodeQueue is a min-heap over (dist, node) with lexicographic node
// tie-break.
type nodeQueue []nodeItem

func (q nodeQueue) Len() int { return len(q) }

func (q nodeQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].node < q[j].node
}

func (q nodeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *nodeQueue) Push(x interface{}) { *q = append(*q, x.(nodeItem)) }

func (q *nodeQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
