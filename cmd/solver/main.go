// Command solver runs the optimizer on a single instance file and prints the
// result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"toproute/internal/instance"
	"toproute/internal/top"
)

func main() {
	var (
		path       = flag.String("instance", "", "path to an instance file (required)")
		iterations = flag.Int("iterations", 1000, "number of multi-start iterations")
		workers    = flag.Int("workers", 0, "worker count (0 = GOMAXPROCS)")
		seed       = flag.Int64("seed", 0, "base random seed")
		alpha      = flag.Float64("alpha", -1, "savings/reward blend in [0,1]; negative picks one by grid scan")
		trials     = flag.Int("trials", 0, "Monte Carlo trials per incumbent (0 = deterministic only)")
		noise      = flag.Float64("noise", 0.05, "travel-time variance level for the robustness layer")
		budgetMs   = flag.Int("budget-ms", 0, "wall-clock budget in milliseconds (0 = none)")
	)
	flag.Parse()

	if *path == "" {
		flag.Usage()
		os.Exit(2)
	}

	p, err := instance.LoadFile(*path)
	if err != nil {
		log.Fatalf("%v", err)
	}

	opts := top.SolveOptions{
		Iterations: *iterations,
		Workers:    *workers,
		Seed:       *seed,
		Alpha:      *alpha,
		Trials:     *trials,
		Noise:      top.NoiseModel{Level: *noise},
	}
	if *budgetMs > 0 {
		opts.TimeBudget = time.Duration(*budgetMs) * time.Millisecond
	}
	opts.OnImprovement = func(e top.ProgressEvent) {
		fmt.Fprintf(os.Stderr, "iter %d: reward %.2f length %.2f (%d routes, %d unrouted)\n",
			e.Iteration, e.Reward, e.Length, e.Routes, e.Unrouted)
	}

	res, err := top.Solve(context.Background(), p, opts)
	if err != nil {
		log.Fatalf("solve: %v", err)
	}

	type routeOut struct {
		Seq    []int   `json:"seq"`
		Reward float64 `json:"reward"`
		Length float64 `json:"length"`
	}
	out := struct {
		Instance   string     `json:"instance"`
		Trucks     int        `json:"trucks"`
		TMax       float64    `json:"tmax"`
		Reward     float64    `json:"reward"`
		Length     float64    `json:"length"`
		Routes     []routeOut `json:"routes"`
		Unrouted   []int      `json:"unrouted"`
		Iterations int        `json:"iterations"`
		Alpha      float64    `json:"alpha"`
		ElapsedMs  int64      `json:"elapsedMs"`
	}{
		Instance:   p.Name,
		Trucks:     p.Trucks,
		TMax:       p.TMax,
		Reward:     res.Best.Reward(p),
		Length:     res.Best.Length(p),
		Unrouted:   res.Best.UnroutedList(),
		Iterations: res.Stats.Iterations,
		Alpha:      res.Stats.Alpha,
		ElapsedMs:  res.Stats.Elapsed.Milliseconds(),
	}
	for _, rt := range res.Best.Routes {
		out.Routes = append(out.Routes, routeOut{Seq: rt.Seq, Reward: rt.Reward(p), Length: rt.Length(p)})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode: %v", err)
	}
}
