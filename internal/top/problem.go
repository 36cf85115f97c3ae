// Package top implements the optimization core for the Team Orienteering
// Problem: a biased-randomized savings constructor, a local search layer,
// a parallel multi-start driver and a Monte Carlo robustness evaluator.
//
// Not every customer has to be served. Each route starts at the depot
// (index 0), ends at the sink (last index) and must fit the per-vehicle
// time budget; the objective is maximizing collected reward first and
// minimizing travelled length second.
package top

import (
	"fmt"
	"math"
)

// Customer is a node of the instance. Depot and sink are customers with
// reward 0 and fixed roles.
type Customer struct {
	ID     int
	X, Y   float64
	Reward float64
}

// Problem is the immutable instance shared by all solver components.
// Index 0 is the depot, the last index is the sink, everything between is
// servable. The distance matrix is computed once and never mutated, so it
// is safe to share across workers without synchronization.
type Problem struct {
	Name      string
	Trucks    int
	TMax      float64
	Customers []Customer

	dist [][]float64
}

// NewProblem validates the instance and precomputes the Euclidean distance
// matrix. Distances are rounded to two decimals, matching the benchmark
// convention, so route lengths are stable across re-evaluation orders.
func NewProblem(name string, trucks int, tmax float64, customers []Customer) (*Problem, error) {
	if trucks < 1 {
		return nil, fmt.Errorf("problem: trucks must be >= 1, got %d", trucks)
	}
	if tmax < 0 || math.IsNaN(tmax) {
		return nil, fmt.Errorf("problem: tmax must be >= 0, got %v", tmax)
	}
	if len(customers) < 2 {
		return nil, fmt.Errorf("problem: need at least depot and sink, got %d customers", len(customers))
	}
	n := len(customers)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := euclidean(customers[i].X, customers[i].Y, customers[j].X, customers[j].Y)
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	cs := make([]Customer, n)
	copy(cs, customers)
	return &Problem{Name: name, Trucks: trucks, TMax: tmax, Customers: cs, dist: dist}, nil
}

// Depot returns the index of the route start node.
func (p *Problem) Depot() int { return 0 }

// Sink returns the index of the route end node.
func (p *Problem) Sink() int { return len(p.Customers) - 1 }

// N returns the total node count, depot and sink included.
func (p *Problem) N() int { return len(p.Customers) }

// Dist returns the travel time between nodes i and j.
func (p *Problem) Dist(i, j int) float64 { return p.dist[i][j] }

// Reward returns the reward of node i (0 for depot and sink).
func (p *Problem) Reward(i int) float64 {
	if i == p.Depot() || i == p.Sink() {
		return 0
	}
	return p.Customers[i].Reward
}

// RoundTrip is the depot -> i -> sink time, the cost of serving i alone.
func (p *Problem) RoundTrip(i int) float64 {
	return p.dist[p.Depot()][i] + p.dist[i][p.Sink()]
}

func euclidean(x1, y1, x2, y2 float64) float64 {
	return math.Round(math.Hypot(x1-x2, y1-y2)*100) / 100
}
