package top

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// corridorProblem lays customers on a line between depot (0,0) and sink
// (length,0), all with the given reward.
func corridorProblem(t *testing.T, trucks int, tmax float64, reward float64, xs ...float64) *Problem {
	t.Helper()
	cs := []Customer{{ID: 0, X: 0, Y: 0}}
	for i, x := range xs {
		cs = append(cs, Customer{ID: i + 1, X: x, Y: 0, Reward: reward})
	}
	cs = append(cs, Customer{ID: len(xs) + 1, X: 10, Y: 0})
	p, err := NewProblem("corridor", trucks, tmax, cs)
	require.NoError(t, err)
	return p
}

// clusterProblem is a small two-cluster instance with mixed rewards, used
// where a bit of structure matters.
func clusterProblem(t *testing.T, trucks int, tmax float64) *Problem {
	t.Helper()
	cs := []Customer{
		{ID: 0, X: 0, Y: 0},
		{ID: 1, X: 2, Y: 1, Reward: 10},
		{ID: 2, X: 2.5, Y: 1.2, Reward: 20},
		{ID: 3, X: 3, Y: 0.8, Reward: 15},
		{ID: 4, X: 7, Y: -1, Reward: 25},
		{ID: 5, X: 7.5, Y: -1.3, Reward: 10},
		{ID: 6, X: 8, Y: -0.7, Reward: 30},
		{ID: 7, X: 5, Y: 3, Reward: 5},
		{ID: 8, X: 10, Y: 0, Reward: 0},
	}
	p, err := NewProblem("cluster", trucks, tmax, cs)
	require.NoError(t, err)
	return p
}

func newRng(seed int64) *rand.Rand { return rand.New(rand.NewSource(seed)) }
