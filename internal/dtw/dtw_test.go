package dtw

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func scalarCost(a, b float64) float64 {
	d := a - b
	return d * d
}

func TestCompareIdenticalSequencesIsZero(t *testing.T) {
	seq := []float64{1, 2, 3, 4, 5}
	assert.Zero(t, Compare(seq, seq, 0, scalarCost))
}

func TestCompareToleratesTimeWarp(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	b := []float64{1, 1, 2, 3, 4, 5, 5} // same shape, stretched
	dist := Compare(a, b, 0, scalarCost)
	assert.Less(t, dist, 1.0)
}

func TestCompareEmptySequenceIsInfinite(t *testing.T) {
	assert.True(t, math.IsInf(Compare([]float64{}, []float64{1, 2}, 0, scalarCost), 1))
}

func TestCompareWithBandVsWithoutBand(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	b := []float64{8, 7, 6, 5, 4, 3, 2, 1}
	unconstrained := Compare(a, b, 0, scalarCost)
	banded := Compare(a, b, 1, scalarCost)
	assert.GreaterOrEqual(t, banded, unconstrained, "a tighter band can only raise or match the optimal cost")
}

func TestPartialCompareEarlyTermination(t *testing.T) {
	a := make([]float64, 200)
	b := make([]float64, 200)
	for i := range a {
		a[i] = float64(i)
		b[i] = float64(i) + 1000 // wildly different, high cost
	}
	_, completed := PartialCompare(a, b, 0, scalarCost, 1.0)
	assert.False(t, completed)
}

func TestPartialCompareMatchesCompareWhenNotTerminated(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{1, 2, 3}
	full := Compare(a, b, 0, scalarCost)
	partial, completed := PartialCompare(a, b, 0, scalarCost, math.MaxFloat64)
	assert.True(t, completed)
	assert.InDelta(t, full, partial, 1e-9)
}

func TestSimilarityDecaysWithDistance(t *testing.T) {
	near := Similarity(0.1, 0.5)
	far := Similarity(10, 0.5)
	assert.Greater(t, near, far)
	assert.InDelta(t, 1.0, Similarity(0, 0.5), 1e-9)
	assert.Zero(t, Similarity(math.Inf(1), 0.5))
}
