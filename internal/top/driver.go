package top

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// SolveOptions configures the multi-start driver. Zero fields fall back to
// the defaults applied by Solve.
type SolveOptions struct {
	Iterations int           // multi-start iterations, default 1000
	TimeBudget time.Duration // wall-clock cap, 0 = none
	Workers    int           // parallel workers, default NumCPU
	Seed       int64         // run-level seed; iteration i uses Seed+i+1

	// Alpha < 0 selects the best alpha by a greedy grid scan before the
	// randomized iterations start (step 0.05 over [0,1]).
	Alpha float64

	// Beta schedule: iteration i runs with
	// max(BetaMin, BetaStart - BetaStep*floor(i/WindowSize)), starting
	// near-greedy and widening the search as the run progresses. Keeping
	// beta a pure function of the iteration index is what makes the run
	// reproducible no matter how iterations land on workers.
	BetaStart float64 // default 0.99
	BetaMin   float64 // default 0.10
	BetaStep  float64 // default 0.05

	WindowSize int // iterations per beta step, default 30

	Search SearchOptions

	// Robustness scoring. Trials > 0 keeps an elite pool scored by a short
	// simulation and re-scores it with LongTrials at the end.
	Trials     int
	LongTrials int // default 50 * Trials
	Elites     int // default 5
	Noise      NoiseModel

	// OnImprovement is invoked (under the driver lock) whenever the
	// incumbent is replaced.
	OnImprovement func(ProgressEvent)
}

// ProgressEvent describes an incumbent update.
type ProgressEvent struct {
	Iteration int     `json:"iteration"`
	Reward    float64 `json:"reward"`
	Length    float64 `json:"length"`
	Routes    int     `json:"routes"`
	Unrouted  int     `json:"unrouted"`
}

// Stats summarizes a driver run, mirroring what the solver reports to the
// API layer.
type Stats struct {
	Iterations         int           `json:"iterations"`
	Improvements       int           `json:"improvements"`
	Alpha              float64       `json:"alpha"`
	BestReward         float64       `json:"bestReward"`
	BestLength         float64       `json:"bestLength"`
	BestExpectedReward float64       `json:"bestExpectedReward,omitempty"`
	Elapsed            time.Duration `json:"elapsed"`
}

// Result is the outcome of a Solve run. BestRobust is only set when
// robustness scoring was requested and may equal Best.
type Result struct {
	Best       *Solution
	BestRobust *Solution
	Stats      Stats
}

// Solve runs best-of-N independent (construct -> improve) iterations and
// returns the lexicographically best solution seen. Iterations share
// nothing but the incumbent and the beta schedule: worker i derives its
// random stream from Seed+i+1, so results are reproducible regardless of
// how iterations land on workers. Budgets (iteration count, wall clock,
// ctx cancellation) are checked between iterations, never mid-move.
func Solve(ctx context.Context, p *Problem, opts SolveOptions) (Result, error) {
	if p == nil {
		return Result{}, fmt.Errorf("top: nil problem")
	}
	applyDefaults(&opts)
	if opts.Alpha >= 0 {
		if err := ValidateParams(opts.Alpha, opts.BetaStart); err != nil {
			return Result{}, err
		}
	}
	if err := ValidateParams(0, opts.BetaStart); err != nil {
		return Result{}, err
	}
	if err := ValidateParams(0, opts.BetaMin); err != nil {
		return Result{}, err
	}

	start := time.Now()
	var deadline time.Time
	if opts.TimeBudget > 0 {
		deadline = start.Add(opts.TimeBudget)
	}

	// Greedy baseline: scan the alpha grid with a near-deterministic beta
	// and keep the best refined solution as the first incumbent.
	alpha := opts.Alpha
	baseRng := rand.New(rand.NewSource(opts.Seed))
	var best *Solution
	if alpha < 0 {
		best, alpha = greedyBaseline(p, opts.Search, baseRng)
	} else {
		s, err := Construct(p, alpha, greedyBeta, baseRng)
		if err != nil {
			return Result{}, err
		}
		best = ImproveWith(p, s, opts.Search)
	}

	d := &driverState{
		p:        p,
		opts:     opts,
		alpha:    alpha,
		best:     best,
		bestIter: -1,
	}
	if opts.Trials > 0 {
		d.bestExpected = d.expectedReward(best, opts.Trials, rand.New(rand.NewSource(opts.Seed)))
		d.elites = append(d.elites, best)
	}

	var next atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				iter := int(next.Add(1)) - 1
				if iter >= opts.Iterations {
					return
				}
				if ctx.Err() != nil {
					return
				}
				if !deadline.IsZero() && time.Now().After(deadline) {
					return
				}
				d.runIteration(iter)
			}
		}()
	}
	wg.Wait()

	res := Result{Best: d.best, Stats: d.snapshot()}
	res.Stats.Elapsed = time.Since(start)
	if opts.Trials > 0 {
		res.BestRobust, res.Stats.BestExpectedReward = d.pickRobust()
	}
	return res, nil
}

// greedyBeta is close enough to 1 that the biased draw is effectively a
// greedy pick, while staying inside beta's open interval.
const greedyBeta = 0.999999

func applyDefaults(opts *SolveOptions) {
	if opts.Iterations <= 0 {
		opts.Iterations = 1000
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.BetaStart == 0 {
		opts.BetaStart = 0.99
	}
	if opts.BetaMin == 0 {
		opts.BetaMin = 0.10
	}
	if opts.BetaStep == 0 {
		opts.BetaStep = 0.05
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = 30
	}
	if opts.Search.DensityThreshold == 0 {
		opts.Search = DefaultSearchOptions()
	}
	if opts.Trials > 0 {
		if opts.LongTrials <= 0 {
			opts.LongTrials = 50 * opts.Trials
		}
		if opts.Elites <= 0 {
			opts.Elites = 5
		}
		if opts.Noise.Level == 0 {
			opts.Noise = DefaultNoise()
		}
	}
}

// greedyBaseline replays the constructor across the alpha grid and keeps
// the best refined solution together with its alpha.
func greedyBaseline(p *Problem, search SearchOptions, rng *rand.Rand) (*Solution, float64) {
	var best *Solution
	bestAlpha := 0.0
	for a := 0.0; a <= 1.0+1e-9; a += 0.05 {
		alpha := a
		if alpha > 1 {
			alpha = 1
		}
		s, err := Construct(p, alpha, greedyBeta, rng)
		if err != nil {
			continue
		}
		s = ImproveWith(p, s, search)
		if best == nil || Better(p, s, best) {
			best, bestAlpha = s, alpha
		}
	}
	return best, bestAlpha
}

// driverState is the only shared mutable state between iterations: the
// incumbent and the elite pool, both behind one mutex.
type driverState struct {
	p    *Problem
	opts SolveOptions

	mu           sync.Mutex
	alpha        float64
	iterations   int
	improvements int
	best         *Solution
	bestIter     int
	bestExpected float64
	elites       []*Solution
}

// betaFor is the beta schedule: a pure function of the iteration index so
// a run is reproducible under any worker interleaving.
func betaFor(iter int, opts SolveOptions) float64 {
	beta := opts.BetaStart - opts.BetaStep*float64(iter/opts.WindowSize)
	if beta < opts.BetaMin {
		return opts.BetaMin
	}
	return beta
}

func (d *driverState) runIteration(iter int) {
	rng := rand.New(rand.NewSource(d.opts.Seed + int64(iter) + 1))

	s, err := Construct(d.p, d.alpha, betaFor(iter, d.opts), rng)
	if err != nil {
		return
	}
	s = ImproveWith(d.p, s, d.opts.Search)

	expected := 0.0
	if d.opts.Trials > 0 {
		expected = d.expectedReward(s, d.opts.Trials, rng)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.iterations++

	if Better(d.p, s, d.best) || (!Better(d.p, d.best, s) && iter < d.bestIter) {
		// Strictly better, or equal objective from an earlier iteration:
		// the second clause keeps the winner deterministic under any
		// worker interleaving.
		strictly := Better(d.p, s, d.best)
		d.best, d.bestIter = s, iter
		if strictly {
			d.improvements++
			if d.opts.OnImprovement != nil {
				d.opts.OnImprovement(ProgressEvent{
					Iteration: iter,
					Reward:    s.Reward(d.p),
					Length:    s.Length(d.p),
					Routes:    len(s.Routes),
					Unrouted:  len(s.Unrouted),
				})
			}
		}
	}

	if d.opts.Trials > 0 && expected > d.bestExpected {
		d.bestExpected = expected
		d.elites = append(d.elites, s)
		if len(d.elites) > d.opts.Elites {
			d.elites = d.elites[1:]
		}
	}
}

func (d *driverState) expectedReward(s *Solution, trials int, rng *rand.Rand) float64 {
	rep, err := Evaluate(d.p, s, trials, d.opts.Noise, rng)
	if err != nil {
		return 0
	}
	return rep.ExpectedReward
}

// pickRobust re-scores the elite pool with the long simulation and returns
// the solution with the highest expected reward.
func (d *driverState) pickRobust() (*Solution, float64) {
	d.mu.Lock()
	elites := append([]*Solution(nil), d.elites...)
	d.mu.Unlock()
	rng := rand.New(rand.NewSource(d.opts.Seed))
	var best *Solution
	bestExp := 0.0
	for _, s := range elites {
		exp := d.expectedReward(s, d.opts.LongTrials, rng)
		if best == nil || exp > bestExp {
			best, bestExp = s, exp
		}
	}
	return best, bestExp
}

func (d *driverState) snapshot() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Iterations:   d.iterations,
		Improvements: d.improvements,
		Alpha:        d.alpha,
		BestReward:   d.best.Reward(d.p),
		BestLength:   d.best.Length(d.p),
	}
}
