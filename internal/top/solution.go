package top

import (
	"fmt"
	"sort"
)

// Route is an ordered node sequence starting at the depot and ending at the
// sink. Only the sequence is stored; length, reward and slack are views
// recomputed from it so they cannot drift after a mutation.
type Route struct {
	Seq []int
}

// Length is the cumulative travel time of the route.
func (r Route) Length(p *Problem) float64 {
	total := 0.0
	for i := 0; i+1 < len(r.Seq); i++ {
		total += p.Dist(r.Seq[i], r.Seq[i+1])
	}
	return total
}

// Reward is the summed reward of the customers on the route.
func (r Route) Reward(p *Problem) float64 {
	total := 0.0
	for _, c := range r.Seq {
		total += p.Reward(c)
	}
	return total
}

// Slack is the unused time budget of the route.
func (r Route) Slack(p *Problem) float64 { return p.TMax - r.Length(p) }

// Size is the number of served customers (endpoints excluded).
func (r Route) Size() int { return len(r.Seq) - 2 }

func (r Route) clone() Route {
	return Route{Seq: append([]int(nil), r.Seq...)}
}

// Solution is a set of at most K routes plus the set of unrouted customers.
// An unrouted customer is a normal outcome of the reward/time trade-off,
// not an error.
type Solution struct {
	Routes   []Route
	Unrouted map[int]struct{}
}

// NewSolution returns an empty solution with every servable customer
// unrouted.
func NewSolution(p *Problem) *Solution {
	s := &Solution{Unrouted: make(map[int]struct{}, p.N())}
	for c := p.Depot() + 1; c < p.Sink(); c++ {
		s.Unrouted[c] = struct{}{}
	}
	return s
}

// Reward is the total collected reward.
func (s *Solution) Reward(p *Problem) float64 {
	total := 0.0
	for _, r := range s.Routes {
		total += r.Reward(p)
	}
	return total
}

// Length is the total travelled time over all routes.
func (s *Solution) Length(p *Problem) float64 {
	total := 0.0
	for _, r := range s.Routes {
		total += r.Length(p)
	}
	return total
}

// UnroutedList returns the unrouted customers in ascending order.
func (s *Solution) UnroutedList() []int {
	out := make([]int, 0, len(s.Unrouted))
	for c := range s.Unrouted {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

// Clone deep-copies the solution so a candidate can be mutated without
// touching the incumbent.
func (s *Solution) Clone() *Solution {
	c := &Solution{
		Routes:   make([]Route, len(s.Routes)),
		Unrouted: make(map[int]struct{}, len(s.Unrouted)),
	}
	for i, r := range s.Routes {
		c.Routes[i] = r.clone()
	}
	for u := range s.Unrouted {
		c.Unrouted[u] = struct{}{}
	}
	return c
}

// Validate checks every structural invariant: route endpoints, the time
// budget, the truck limit, and the partition between routed and unrouted
// customers. It is used by tests and by the API boundary when a solution is
// submitted from outside.
func (s *Solution) Validate(p *Problem) error {
	if len(s.Routes) > p.Trucks {
		return fmt.Errorf("solution: %d routes exceed %d trucks", len(s.Routes), p.Trucks)
	}
	seen := make(map[int]struct{})
	for ri, r := range s.Routes {
		if len(r.Seq) < 2 || r.Seq[0] != p.Depot() || r.Seq[len(r.Seq)-1] != p.Sink() {
			return fmt.Errorf("solution: route %d must run depot to sink", ri)
		}
		for _, c := range r.Seq[1 : len(r.Seq)-1] {
			if c <= p.Depot() || c >= p.Sink() {
				return fmt.Errorf("solution: route %d visits non-servable node %d", ri, c)
			}
			if _, dup := seen[c]; dup {
				return fmt.Errorf("solution: customer %d appears in more than one route", c)
			}
			seen[c] = struct{}{}
			if _, ok := s.Unrouted[c]; ok {
				return fmt.Errorf("solution: customer %d is both routed and unrouted", c)
			}
		}
		if l := r.Length(p); l > p.TMax+1e-9 {
			return fmt.Errorf("solution: route %d length %.2f exceeds budget %.2f", ri, l, p.TMax)
		}
	}
	for c := p.Depot() + 1; c < p.Sink(); c++ {
		_, routed := seen[c]
		_, unrouted := s.Unrouted[c]
		if routed == unrouted {
			return fmt.Errorf("solution: customer %d must be exactly one of routed or unrouted", c)
		}
	}
	return nil
}

// Better reports whether a beats b under the lexicographic objective:
// higher reward wins, equal reward falls back to shorter length. A reward
// gain always dominates any length change.
func Better(p *Problem, a, b *Solution) bool {
	ra, rb := a.Reward(p), b.Reward(p)
	if ra != rb {
		return ra > rb
	}
	return a.Length(p) < b.Length(p)-1e-9
}
