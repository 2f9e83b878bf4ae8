package dtw

import (
	"testing"

	"pgregory.net/rapid"
)

// TestCompareSelfDistanceIsAlwaysZero is the §8 "determinism" and
// "idempotence" property applied to the comparator itself: comparing any
// non-empty sequence against itself always yields zero distance, regardless
// of the values involved or how many times it's repeated.
func TestCompareSelfDistanceIsAlwaysZero(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seq := rapid.SliceOfN(rapid.Float64Range(-1000, 1000), 1, 64).Draw(t, "seq")

		first := Compare(seq, seq, 0, scalarCost)
		second := Compare(seq, seq, 0, scalarCost)

		if first != 0 {
			t.Fatalf("Compare(seq, seq) = %v, want 0", first)
		}
		if first != second {
			t.Fatalf("Compare is not deterministic: %v != %v", first, second)
		}
	})
}

// TestCompareIsNeverNegative checks the DTW accumulated-cost invariant:
// since every step cost is a squared difference, the normalized path cost
// can never be negative.
func TestCompareIsNeverNegative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.SliceOfN(rapid.Float64Range(-1000, 1000), 1, 32).Draw(t, "a")
		b := rapid.SliceOfN(rapid.Float64Range(-1000, 1000), 1, 32).Draw(t, "b")
		band := rapid.IntRange(0, 40).Draw(t, "band")

		dist := Compare(a, b, band, scalarCost)
		if dist < 0 {
			t.Fatalf("Compare returned negative distance %v for a=%v b=%v", dist, a, b)
		}
	})
}

// TestSimilarityIsBoundedUnitInterval checks §4.9's exp(-alpha*distance)
// mapping always lands in [0,1] for any non-negative distance and
// non-negative alpha.
func TestSimilarityIsBoundedUnitInterval(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		distance := rapid.Float64Range(0, 1e6).Draw(t, "distance")
		alpha := rapid.Float64Range(0, 10).Draw(t, "alpha")

		sim := Similarity(distance, alpha)
		if sim < 0 || sim > 1 {
			t.Fatalf("Similarity(%v, %v) = %v, out of [0,1]", distance, alpha, sim)
		}
	})
}
