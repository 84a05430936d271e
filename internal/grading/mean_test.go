package grading

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWeightedMeanOfEqualWeights(t *testing.T) {
	mean, ok := WeightedMean([]Weighted{
		{Value: Ptr(56.12), Weight: 1},
		{Value: Ptr(12.59), Weight: 1},
		{Value: Ptr(10.00), Weight: 1},
		{Value: Ptr(0.00), Weight: 1},
	})
	require.True(t, ok)
	require.Equal(t, 19.6775, Round(mean, DefaultDecimals))
}

func TestWeightedMeanSkipsNullGrades(t *testing.T) {
	mean, ok := WeightedMean([]Weighted{
		{Value: nil, Weight: 1},
		{Value: Ptr(45.54321), Weight: 1},
	})
	require.True(t, ok)
	require.Equal(t, 45.54321, Round(mean, DefaultDecimals))
}

func TestWeightedMeanHonoursWeights(t *testing.T) {
	mean, ok := WeightedMean([]Weighted{
		{Value: Ptr(100), Weight: 3},
		{Value: Ptr(20), Weight: 1},
		{Value: Ptr(0), Weight: 0},
	})
	require.True(t, ok)
	require.Equal(t, 80.0, mean)
}

func TestWeightedMeanWithoutContributions(t *testing.T) {
	_, ok := WeightedMean([]Weighted{{Value: nil, Weight: 1}, {Value: Ptr(50), Weight: 0}})
	require.False(t, ok)

	_, ok = WeightedMean(nil)
	require.False(t, ok)
}

func TestWeightedMeanSingleEntry(t *testing.T) {
	mean, ok := WeightedMean([]Weighted{{Value: Ptr(72.5), Weight: 1}})
	require.True(t, ok)
	require.Equal(t, 72.5, mean)
}

func TestDiffer(t *testing.T) {
	require.False(t, Differ(nil, nil, 5))
	require.True(t, Differ(nil, Ptr(0), 5))
	require.True(t, Differ(Ptr(0), nil, 5))
	require.False(t, Differ(Ptr(19.677500001), Ptr(19.6775), 5))
	require.True(t, Differ(Ptr(19.6775), Ptr(19.6776), 5))
}

func TestScaleAndFormat(t *testing.T) {
	require.Equal(t, 40.0, Scale(50, 80))
	require.Equal(t, 80.0, Scale(120, 80))
	require.Equal(t, "-", Format(nil, 0))
	require.Equal(t, "20", Format(Ptr(19.6775), 0))
	require.Equal(t, "19.68", Format(Ptr(19.6775), 2))
}
