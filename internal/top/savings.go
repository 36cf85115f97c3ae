package top

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// saving scores merging the route ending at customer I with the route
// starting at customer J.
type saving struct {
	I, J  int
	Value float64
}

// ValidateParams rejects alpha/beta values that would make the merge score
// or the quasi-geometric draw undefined. Checked before any work so a
// failure never leaves partial state behind.
func ValidateParams(alpha, beta float64) error {
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return fmt.Errorf("top: alpha must be in [0,1], got %v", alpha)
	}
	if math.IsNaN(beta) || beta <= 0 || beta >= 1 {
		return fmt.Errorf("top: beta must be in (0,1), got %v", beta)
	}
	return nil
}

// geometricIndex draws a position in [0,n) from the quasi-geometric
// distribution f(x) ~ beta*(1-beta)^x. Beta near 1 is almost greedy, beta
// near 0 approaches a uniform pick. Pure function of (n, beta, rng) so the
// draw is reproducible and testable apart from the savings list.
func geometricIndex(rng *rand.Rand, beta float64, n int) int {
	if n <= 1 {
		return 0
	}
	u := rng.Float64()
	for u == 0 {
		u = rng.Float64()
	}
	return int(math.Log(u)/math.Log(1-beta)) % n
}

// Construct builds a feasible solution with the biased-randomized savings
// heuristic. It starts from one trivial depot->c->sink route per servable
// customer, scores every tail/head merge with
//
//	(1-alpha)*(d(i,sink)+d(depot,j)-d(i,j)) + alpha*(reward(i)+reward(j))
//
// and repeatedly commits the merge drawn from the descending candidate list
// by geometricIndex. Merging stops when the route count reaches the truck
// limit or no candidate remains; surplus routes are dropped keeping the
// top K by reward and their customers go back to the unrouted set.
//
// Identical (problem, alpha, beta, rng stream) inputs produce identical
// output.
func Construct(p *Problem, alpha, beta float64, rng *rand.Rand) (*Solution, error) {
	if err := ValidateParams(alpha, beta); err != nil {
		return nil, err
	}

	depot, sink := p.Depot(), p.Sink()

	// Trivial route per customer whose solo round trip fits the budget.
	// The rest can never be served and are unrouted from the start.
	s := NewSolution(p)
	routeOf := make(map[int]int) // customer -> index into s.Routes
	for c := depot + 1; c < sink; c++ {
		if p.RoundTrip(c) > p.TMax {
			continue
		}
		routeOf[c] = len(s.Routes)
		s.Routes = append(s.Routes, Route{Seq: []int{depot, c, sink}})
		delete(s.Unrouted, c)
	}

	savings := make([]saving, 0, len(routeOf)*(len(routeOf)-1))
	for i := range routeOf {
		for j := range routeOf {
			if i == j {
				continue
			}
			distSave := p.Dist(i, sink) + p.Dist(depot, j) - p.Dist(i, j)
			rewardSave := p.Reward(i) + p.Reward(j)
			savings = append(savings, saving{I: i, J: j, Value: (1-alpha)*distSave + alpha*rewardSave})
		}
	}
	sort.Slice(savings, func(a, b int) bool {
		if savings[a].Value != savings[b].Value {
			return savings[a].Value > savings[b].Value
		}
		if savings[a].I != savings[b].I {
			return savings[a].I < savings[b].I
		}
		return savings[a].J < savings[b].J
	})

	live := len(s.Routes)
	for len(savings) > 0 && live > p.Trucks {
		idx := geometricIndex(rng, beta, len(savings))
		sv := savings[idx]
		savings = append(savings[:idx], savings[idx+1:]...)

		ri, okI := routeOf[sv.I]
		rj, okJ := routeOf[sv.J]
		if !okI || !okJ || ri == rj {
			continue
		}
		a, b := &s.Routes[ri], &s.Routes[rj]
		// The merge is only defined tail-to-head.
		if a.Seq[len(a.Seq)-2] != sv.I || b.Seq[1] != sv.J {
			continue
		}
		merged := a.Length(p) - p.Dist(sv.I, sink) + p.Dist(sv.I, sv.J) + b.Length(p) - p.Dist(depot, sv.J)
		if merged > p.TMax {
			continue
		}
		a.Seq = append(a.Seq[:len(a.Seq)-1], b.Seq[1:]...)
		for _, c := range b.Seq[1 : len(b.Seq)-1] {
			routeOf[c] = ri
		}
		b.Seq = nil
		live--
	}

	compact(p, s)
	return s, nil
}

// compact drops emptied route slots, then enforces the truck limit by
// keeping the K most rewarding routes. Customers of dropped routes return
// to the unrouted set.
func compact(p *Problem, s *Solution) {
	kept := s.Routes[:0]
	for _, r := range s.Routes {
		if len(r.Seq) > 0 {
			kept = append(kept, r)
		}
	}
	s.Routes = kept

	if len(s.Routes) > p.Trucks {
		sort.SliceStable(s.Routes, func(a, b int) bool {
			return s.Routes[a].Reward(p) > s.Routes[b].Reward(p)
		})
		for _, r := range s.Routes[p.Trucks:] {
			for _, c := range r.Seq[1 : len(r.Seq)-1] {
				s.Unrouted[c] = struct{}{}
			}
		}
		s.Routes = s.Routes[:p.Trucks]
	}
}
