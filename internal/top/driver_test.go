package top

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSolveRejectsBadOptions(t *testing.T) {
	p := clusterProblem(t, 2, 14)
	_, err := Solve(context.Background(), p, SolveOptions{Alpha: 1.5})
	require.Error(t, err)
	_, err = Solve(context.Background(), p, SolveOptions{Alpha: 0.3, BetaStart: 1.2})
	require.Error(t, err)
	_, err = Solve(context.Background(), nil, SolveOptions{})
	require.Error(t, err)
}

func TestSolveIncumbentRewardMonotonic(t *testing.T) {
	p := clusterProblem(t, 2, 13)
	var rewards []float64
	_, err := Solve(context.Background(), p, SolveOptions{
		Iterations: 120,
		Workers:    1,
		Seed:       17,
		Alpha:      -1,
		OnImprovement: func(e ProgressEvent) {
			rewards = append(rewards, e.Reward)
		},
	})
	require.NoError(t, err)
	for i := 1; i < len(rewards); i++ {
		require.GreaterOrEqual(t, rewards[i], rewards[i-1])
	}
}

func TestSolveDeterministicAcrossWorkerCounts(t *testing.T) {
	p := clusterProblem(t, 2, 13)
	run := func(workers int) Result {
		res, err := Solve(context.Background(), p, SolveOptions{
			Iterations: 80,
			Workers:    workers,
			Seed:       5,
			Alpha:      -1,
		})
		require.NoError(t, err)
		return res
	}
	a, b := run(1), run(4)
	require.Equal(t, a.Best.Reward(p), b.Best.Reward(p))
	require.InDelta(t, a.Best.Length(p), b.Best.Length(p), 1e-9)
}

func TestSolveBeatsOrMatchesGreedyBaseline(t *testing.T) {
	p := clusterProblem(t, 2, 13)
	rng := newRng(0)
	base, alpha := greedyBaseline(p, DefaultSearchOptions(), rng)
	require.GreaterOrEqual(t, alpha, 0.0)

	res, err := Solve(context.Background(), p, SolveOptions{Iterations: 150, Seed: 0, Alpha: -1})
	require.NoError(t, err)
	require.GreaterOrEqual(t, res.Best.Reward(p), base.Reward(p))
	require.NoError(t, res.Best.Validate(p))
	require.Positive(t, res.Stats.Iterations)
}

func TestSolveHonorsContextCancellation(t *testing.T) {
	p := clusterProblem(t, 2, 13)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Solve(ctx, p, SolveOptions{Iterations: 1_000_000, Seed: 1, Alpha: 0.3})
	require.NoError(t, err)
	// Budgets are checked between iterations: a cancelled context still
	// yields the greedy baseline.
	require.NotNil(t, res.Best)
	require.Less(t, res.Stats.Iterations, 1_000_000)
}

func TestSolveTimeBudget(t *testing.T) {
	p := clusterProblem(t, 2, 13)
	start := time.Now()
	res, err := Solve(context.Background(), p, SolveOptions{
		Iterations: 10_000_000,
		TimeBudget: 50 * time.Millisecond,
		Seed:       2,
		Alpha:      0.3,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Best)
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestSolveRobustnessPicksElite(t *testing.T) {
	p := clusterProblem(t, 2, 13)
	res, err := Solve(context.Background(), p, SolveOptions{
		Iterations: 60,
		Seed:       9,
		Alpha:      -1,
		Trials:     200,
	})
	require.NoError(t, err)
	require.NotNil(t, res.BestRobust)
	require.NoError(t, res.BestRobust.Validate(p))
	require.Greater(t, res.Stats.BestExpectedReward, 0.0)
	require.LessOrEqual(t, res.Stats.BestExpectedReward, res.BestRobust.Reward(p)+1e-9)
}
