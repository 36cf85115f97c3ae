package top

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewProblemValidation(t *testing.T) {
	cs := []Customer{{ID: 0}, {ID: 1}}
	_, err := NewProblem("x", 0, 10, cs)
	require.Error(t, err)
	_, err = NewProblem("x", 1, -1, cs)
	require.Error(t, err)
	_, err = NewProblem("x", 1, 10, cs[:1])
	require.Error(t, err)
	_, err = NewProblem("x", 1, 10, cs)
	require.NoError(t, err)
}

func TestDistanceMatrix(t *testing.T) {
	p, err := NewProblem("tri", 1, 100, []Customer{
		{ID: 0, X: 0, Y: 0},
		{ID: 1, X: 3, Y: 4, Reward: 7},
		{ID: 2, X: 1, Y: 1, Reward: 3},
		{ID: 3, X: 10, Y: 0},
	})
	require.NoError(t, err)

	require.Equal(t, 5.0, p.Dist(0, 1))
	require.Equal(t, p.Dist(1, 2), p.Dist(2, 1), "matrix must be symmetric")
	require.Equal(t, 1.41, p.Dist(0, 2), "distances are rounded to two decimals")
	require.Zero(t, p.Dist(2, 2))

	require.Equal(t, 0, p.Depot())
	require.Equal(t, 3, p.Sink())
	require.Zero(t, p.Reward(p.Depot()))
	require.Zero(t, p.Reward(p.Sink()))
	require.Equal(t, 7.0, p.Reward(1))
	require.Equal(t, p.Dist(0, 1)+p.Dist(1, 3), p.RoundTrip(1))
}

func TestProblemCopiesCustomers(t *testing.T) {
	in := []Customer{{ID: 0}, {ID: 1, X: 1, Reward: 2}, {ID: 2, X: 2}}
	p, err := NewProblem("copy", 1, 10, in)
	require.NoError(t, err)
	in[1].Reward = 99
	require.Equal(t, 2.0, p.Reward(1))
}
