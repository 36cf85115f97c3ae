package top

import (
	"fmt"
	"math"
	"math/rand"
)

// NoiseModel perturbs travel times during simulation. Each leg time is
// drawn from a lognormal distribution with the deterministic distance as
// mean and Level*mean as variance.
type NoiseModel struct {
	Level float64
}

// DefaultNoise matches the benchmark convention of 5% variance.
func DefaultNoise() NoiseModel { return NoiseModel{Level: 0.05} }

// RouteReport is the simulated outcome of a single route.
type RouteReport struct {
	Seq            []int
	Reward         float64
	Length         float64
	OnTimeProb     float64
	ExpectedReward float64
}

// RobustnessReport scores a solution under sampled travel times: the
// probability each route finishes within budget and the reward actually
// expected once late routes forfeit theirs. The solution itself is never
// modified.
type RobustnessReport struct {
	Trials              int
	DeterministicReward float64
	ExpectedReward      float64
	RewardStdDev        float64
	Routes              []RouteReport
}

// Evaluate runs trials Monte Carlo repetitions of the solution. A route
// collects its reward in a trial only when its sampled duration stays
// within TMax; rewards of late routes are lost for that trial.
func Evaluate(p *Problem, s *Solution, trials int, noise NoiseModel, rng *rand.Rand) (RobustnessReport, error) {
	if trials < 1 {
		return RobustnessReport{}, fmt.Errorf("top: trials must be >= 1, got %d", trials)
	}
	if noise.Level < 0 || math.IsNaN(noise.Level) {
		return RobustnessReport{}, fmt.Errorf("top: noise level must be >= 0, got %v", noise.Level)
	}

	report := RobustnessReport{
		Trials:              trials,
		DeterministicReward: s.Reward(p),
		Routes:              make([]RouteReport, len(s.Routes)),
	}
	// Per-leg lognormal parameters, derived once per route.
	legs := make([][]lnParams, len(s.Routes))
	for ri, r := range s.Routes {
		report.Routes[ri] = RouteReport{
			Seq:    append([]int(nil), r.Seq...),
			Reward: r.Reward(p),
			Length: r.Length(p),
		}
		legs[ri] = make([]lnParams, len(r.Seq)-1)
		for i := 0; i+1 < len(r.Seq); i++ {
			legs[ri][i] = lognormalParams(p.Dist(r.Seq[i], r.Seq[i+1]), noise.Level)
		}
	}

	onTime := make([]int, len(s.Routes))
	sum, sumSq := 0.0, 0.0
	for t := 0; t < trials; t++ {
		total := 0.0
		for ri := range s.Routes {
			elapsed := 0.0
			for _, lp := range legs[ri] {
				elapsed += sampleLognormal(rng, lp.mu, lp.sigma)
			}
			if elapsed <= p.TMax {
				onTime[ri]++
				total += report.Routes[ri].Reward
			}
		}
		sum += total
		sumSq += total * total
	}

	n := float64(trials)
	report.ExpectedReward = sum / n
	variance := sumSq/n - report.ExpectedReward*report.ExpectedReward
	if variance > 0 {
		report.RewardStdDev = math.Sqrt(variance)
	}
	for ri := range report.Routes {
		prob := float64(onTime[ri]) / n
		report.Routes[ri].OnTimeProb = prob
		report.Routes[ri].ExpectedReward = prob * report.Routes[ri].Reward
	}
	return report, nil
}

type lnParams struct{ mu, sigma float64 }

// lognormalParams converts a target mean/variance pair into the mu/sigma of
// the underlying normal distribution.
func lognormalParams(mean, level float64) lnParams {
	if mean <= 0 || level == 0 {
		return lnParams{mu: mean, sigma: 0}
	}
	variance := level * mean
	s2 := math.Log(1 + variance/(mean*mean))
	return lnParams{mu: math.Log(mean) - s2/2, sigma: math.Sqrt(s2)}
}

func sampleLognormal(rng *rand.Rand, mu, sigma float64) float64 {
	if sigma == 0 {
		// Degenerate leg: mu carries the deterministic time.
		return mu
	}
	return math.Exp(mu + sigma*rng.NormFloat64())
}
