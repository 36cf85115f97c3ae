package top

import (
	"math"
	"sort"
)

const lengthEps = 1e-9

// SearchOptions tunes the local search. The zero value is not useful; use
// DefaultSearchOptions as the base.
type SearchOptions struct {
	// DensityThreshold caps which routed customers are tried as removal
	// candidates: only those whose reward per unit of marginal time falls
	// below it. Inf considers every customer.
	DensityThreshold float64
}

// DefaultSearchOptions considers every customer for removal.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{DensityThreshold: math.Inf(1)}
}

// Improve runs ImproveWith with the default options.
func Improve(p *Problem, s *Solution) *Solution {
	return ImproveWith(p, s, DefaultSearchOptions())
}

// ImproveWith applies first-improvement sweeps over the move families
// (2-opt, relocate, insertion, swap, removal) until a full pass yields no
// improvement. Every accepted move is a strict lexicographic improvement
// (reward first, then length), so the search terminates and is idempotent:
// calling it again on a local optimum changes nothing.
//
// The solution is mutated in place and returned.
func ImproveWith(p *Problem, s *Solution, opts SearchOptions) *Solution {
	for {
		improved := false
		improved = twoOptPass(p, s) || improved
		improved = relocatePass(p, s) || improved
		improved = insertPass(p, s) || improved
		improved = swapPass(p, s) || improved
		improved = removalPass(p, s, opts) || improved
		if !improved {
			return s
		}
	}
}

// twoOptPass reverses intra-route segments that shorten a route. The
// customer set is untouched, and with a symmetric matrix the length only
// drops, so the time budget keeps holding; it is still re-checked to guard
// the invariant.
func twoOptPass(p *Problem, s *Solution) bool {
	improved := false
	for ri := range s.Routes {
		seq := s.Routes[ri].Seq
		for again := true; again; {
			again = false
			for i := 1; i < len(seq)-2; i++ {
				for k := i + 1; k < len(seq)-1; k++ {
					a, b := seq[i-1], seq[i]
					c, d := seq[k], seq[k+1]
					delta := p.Dist(a, c) + p.Dist(b, d) - p.Dist(a, b) - p.Dist(c, d)
					if delta >= -lengthEps {
						continue
					}
					for x, y := i, k; x < y; x, y = x+1, y-1 {
						seq[x], seq[y] = seq[y], seq[x]
					}
					if s.Routes[ri].Length(p) > p.TMax+lengthEps {
						// Cannot happen on a symmetric matrix; undo if it ever does.
						for x, y := i, k; x < y; x, y = x+1, y-1 {
							seq[x], seq[y] = seq[y], seq[x]
						}
						continue
					}
					again = true
					improved = true
				}
			}
		}
	}
	return improved
}

// insertionPoint is the cheapest feasible position for customer c over all
// routes, by marginal time cost; ties prefer the position leaving the most
// slack afterwards. route == len(s.Routes) means "open a new route", offered
// only while a truck is idle.
type insertionPoint struct {
	route, pos int
	cost       float64
	slack      float64
}

func cheapestInsertion(p *Problem, s *Solution, c int, skipRoute int) (insertionPoint, bool) {
	best := insertionPoint{cost: math.Inf(1), slack: math.Inf(-1)}
	found := false
	for ri := range s.Routes {
		if ri == skipRoute {
			continue
		}
		r := s.Routes[ri]
		length := r.Length(p)
		for pos := 1; pos < len(r.Seq); pos++ {
			prev, next := r.Seq[pos-1], r.Seq[pos]
			cost := p.Dist(prev, c) + p.Dist(c, next) - p.Dist(prev, next)
			if length+cost > p.TMax+lengthEps {
				continue
			}
			slack := p.TMax - (length + cost)
			if cost < best.cost-lengthEps || (cost <= best.cost+lengthEps && slack > best.slack) {
				best = insertionPoint{route: ri, pos: pos, cost: cost, slack: slack}
				found = true
			}
		}
	}
	if len(s.Routes) < p.Trucks && skipRoute != len(s.Routes) {
		cost := p.RoundTrip(c)
		if cost <= p.TMax+lengthEps {
			slack := p.TMax - cost
			if !found || cost < best.cost-lengthEps || (cost <= best.cost+lengthEps && slack > best.slack) {
				best = insertionPoint{route: len(s.Routes), pos: 1, cost: cost, slack: slack}
				found = true
			}
		}
	}
	return best, found
}

func applyInsertion(p *Problem, s *Solution, c int, ip insertionPoint) {
	if ip.route == len(s.Routes) {
		s.Routes = append(s.Routes, Route{Seq: []int{p.Depot(), c, p.Sink()}})
	} else {
		seq := s.Routes[ip.route].Seq
		seq = append(seq, 0)
		copy(seq[ip.pos+1:], seq[ip.pos:])
		seq[ip.pos] = c
		s.Routes[ip.route].Seq = seq
	}
	delete(s.Unrouted, c)
}

// relocatePass moves one routed customer to a cheaper position, in its own
// route or another. Reward is unchanged, so the move is accepted only when
// it strictly shortens the solution.
func relocatePass(p *Problem, s *Solution) bool {
	improved := false
	for ri := 0; ri < len(s.Routes); ri++ {
		seq := s.Routes[ri].Seq
		for pos := 1; pos < len(seq)-1; pos++ {
			c := seq[pos]
			removeGain := p.Dist(seq[pos-1], c) + p.Dist(c, seq[pos+1]) - p.Dist(seq[pos-1], seq[pos+1])

			// Detach c, look for a strictly cheaper home, else put it back.
			s.Routes[ri].Seq = append(seq[:pos:pos], seq[pos+1:]...)
			ip, ok := cheapestInsertion(p, s, c, len(s.Routes))
			if ok && ip.cost < removeGain-lengthEps {
				applyInsertion(p, s, c, ip)
				dropEmptyRoutes(s)
				improved = true
				ri = -1 // indices shifted; restart the scan
				break
			}
			restored := make([]int, 0, len(seq))
			restored = append(restored, seq[:pos]...)
			restored = append(restored, c)
			restored = append(restored, seq[pos+1:]...)
			s.Routes[ri].Seq = restored
			seq = restored
		}
	}
	return improved
}

// insertPass serves unrouted customers at their cheapest feasible spot.
// Inserting a rewarded customer dominates the added length, so any feasible
// insertion of one is an improvement; a zero-reward customer only enters if
// it somehow shortens the tour. This is where the solver decides a customer
// is worth visiting.
func insertPass(p *Problem, s *Solution) bool {
	improved := false
	for again := true; again; {
		again = false
		for _, c := range s.UnroutedList() {
			ip, ok := cheapestInsertion(p, s, c, -1)
			if !ok {
				continue
			}
			if p.Reward(c) <= 0 && ip.cost >= -lengthEps {
				continue
			}
			applyInsertion(p, s, c, ip)
			improved = true
			again = true
		}
	}
	return improved
}

// swapPass exchanges customers between two routes when both stay within
// budget and the total length strictly drops, and replaces a routed
// customer with an unrouted one of higher reward when the swap is feasible.
func swapPass(p *Problem, s *Solution) bool {
	improved := false

	// Inter-route exchange.
	for a := 0; a < len(s.Routes); a++ {
		for b := a + 1; b < len(s.Routes); b++ {
			if swapBetween(p, s, a, b) {
				improved = true
			}
		}
	}

	// Replacement by a better unrouted customer at the same position.
	for ri := range s.Routes {
		seq := s.Routes[ri].Seq
		for pos := 1; pos < len(seq)-1; pos++ {
			c := seq[pos]
			base := s.Routes[ri].Length(p)
			detached := base - p.Dist(seq[pos-1], c) - p.Dist(c, seq[pos+1]) + p.Dist(seq[pos-1], seq[pos+1])
			for _, u := range s.UnroutedList() {
				gain := p.Reward(u) - p.Reward(c)
				cost := p.Dist(seq[pos-1], u) + p.Dist(u, seq[pos+1]) - p.Dist(seq[pos-1], seq[pos+1])
				newLen := detached + cost
				if newLen > p.TMax+lengthEps {
					continue
				}
				if gain > 0 || (gain == 0 && newLen < base-lengthEps) {
					seq[pos] = u
					delete(s.Unrouted, u)
					s.Unrouted[c] = struct{}{}
					improved = true
					break // neighborhood changed; the next sweep revisits
				}
			}
		}
	}
	return improved
}

func swapBetween(p *Problem, s *Solution, a, b int) bool {
	improved := false
	ra, rb := &s.Routes[a], &s.Routes[b]
	for i := 1; i < len(ra.Seq)-1; i++ {
		for j := 1; j < len(rb.Seq)-1; j++ {
			before := ra.Length(p) + rb.Length(p)
			ra.Seq[i], rb.Seq[j] = rb.Seq[j], ra.Seq[i]
			la, lb := ra.Length(p), rb.Length(p)
			if la <= p.TMax+lengthEps && lb <= p.TMax+lengthEps && la+lb < before-lengthEps {
				improved = true
				continue
			}
			ra.Seq[i], rb.Seq[j] = rb.Seq[j], ra.Seq[i]
		}
	}
	return improved
}

// removalPass tries dropping low-density customers (reward per marginal
// time, ascending, capped by the density threshold) and re-filling the
// freed budget with insertions. The compound move is kept only when it
// strictly improves the lexicographic objective; a plain removal never
// survives on its own.
func removalPass(p *Problem, s *Solution, opts SearchOptions) bool {
	type candidate struct {
		route, pos int
		density    float64
	}
	var cands []candidate
	for ri, r := range s.Routes {
		for pos := 1; pos < len(r.Seq)-1; pos++ {
			c := r.Seq[pos]
			marginal := p.Dist(r.Seq[pos-1], c) + p.Dist(c, r.Seq[pos+1]) - p.Dist(r.Seq[pos-1], r.Seq[pos+1])
			density := math.Inf(1)
			if marginal > lengthEps {
				density = p.Reward(c) / marginal
			}
			if density < opts.DensityThreshold {
				cands = append(cands, candidate{route: ri, pos: pos, density: density})
			}
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].density < cands[j].density })

	for _, cand := range cands {
		c := s.Routes[cand.route].Seq[cand.pos]
		trial := s.Clone()
		seq := trial.Routes[cand.route].Seq
		trial.Routes[cand.route].Seq = append(seq[:cand.pos:cand.pos], seq[cand.pos+1:]...)
		trial.Unrouted[c] = struct{}{}
		dropEmptyRoutes(trial)
		insertPass(p, trial)
		twoOptPass(p, trial)
		if Better(p, trial, s) {
			*s = *trial
			return true
		}
	}
	return false
}

// dropEmptyRoutes removes depot->sink shells left behind by relocation or
// removal; an unused truck contributes nothing.
func dropEmptyRoutes(s *Solution) {
	kept := s.Routes[:0]
	for _, r := range s.Routes {
		if r.Size() > 0 {
			kept = append(kept, r)
		}
	}
	s.Routes = kept
}
