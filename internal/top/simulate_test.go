package top

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluateValidation(t *testing.T) {
	p := corridorProblem(t, 1, 100, 5, 2, 4)
	s := NewSolution(p)
	_, err := Evaluate(p, s, 0, DefaultNoise(), newRng(1))
	require.Error(t, err)
	_, err = Evaluate(p, s, 100, NoiseModel{Level: -1}, newRng(1))
	require.Error(t, err)
}

func TestEvaluateZeroNoiseIsDeterministic(t *testing.T) {
	p := corridorProblem(t, 1, 100, 5, 2, 4, 6)
	s, err := Construct(p, 0.5, greedyBeta, newRng(1))
	require.NoError(t, err)
	Improve(p, s)

	rep, err := Evaluate(p, s, 500, NoiseModel{Level: 0}, newRng(2))
	require.NoError(t, err)
	require.Equal(t, s.Reward(p), rep.DeterministicReward)
	require.Equal(t, rep.DeterministicReward, rep.ExpectedReward)
	require.Zero(t, rep.RewardStdDev)
	for ri, rr := range rep.Routes {
		require.Equal(t, 1.0, rr.OnTimeProb)
		require.Equal(t, rr.Reward, rr.ExpectedReward)
		require.InDelta(t, s.Routes[ri].Length(p), rr.Length, 1e-9)
	}
}

func TestEvaluateTightBudgetLosesReward(t *testing.T) {
	// Route length exactly at the budget: with multiplicative noise about
	// half of the trials run late, so the expected reward drops below the
	// deterministic one.
	p := corridorProblem(t, 1, 10, 5, 2, 4, 6)
	s := NewSolution(p)
	s.Routes = []Route{{Seq: []int{0, 1, 2, 3, 4}}}
	for _, c := range []int{1, 2, 3} {
		delete(s.Unrouted, c)
	}
	require.InDelta(t, 10.0, s.Routes[0].Length(p), 1e-9)

	rep, err := Evaluate(p, s, 2000, DefaultNoise(), newRng(3))
	require.NoError(t, err)
	require.Less(t, rep.ExpectedReward, rep.DeterministicReward)
	require.Greater(t, rep.ExpectedReward, 0.0)
	require.Greater(t, rep.RewardStdDev, 0.0)
	require.Len(t, rep.Routes, 1)
	prob := rep.Routes[0].OnTimeProb
	require.Greater(t, prob, 0.2)
	require.Less(t, prob, 0.8)
}

func TestEvaluateDoesNotMutateSolution(t *testing.T) {
	p := corridorProblem(t, 2, 20, 5, 2, 4, 6)
	s, err := Construct(p, 0.5, 0.5, newRng(4))
	require.NoError(t, err)
	before := s.Clone()

	_, err = Evaluate(p, s, 200, DefaultNoise(), newRng(5))
	require.NoError(t, err)
	require.Equal(t, before.Routes, s.Routes)
	require.Equal(t, before.UnroutedList(), s.UnroutedList())
}
