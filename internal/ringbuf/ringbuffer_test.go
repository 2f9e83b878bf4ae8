package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendChunkRejectsInvalidAudio(t *testing.T) {
	b := New(16, DropPolicyStrict)
	err := b.AppendChunk([]float64{1, 2, nan()})
	assert.ErrorIs(t, err, ErrInvalidAudio)
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestTakeWindowWaitsForEnoughSamples(t *testing.T) {
	b := New(32, DropPolicyStrict)
	b.RegisterReader("r")

	_, ok := b.TakeWindow("r", 8, 4)
	assert.False(t, ok)

	require.NoError(t, b.AppendChunk([]float64{1, 2, 3, 4, 5, 6, 7, 8}))
	window, ok := b.TakeWindow("r", 8, 4)
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8}, window)
}

func TestTakeWindowAdvancesByHop(t *testing.T) {
	b := New(32, DropPolicyStrict)
	b.RegisterReader("r")
	require.NoError(t, b.AppendChunk([]float64{1, 2, 3, 4, 5, 6}))

	w1, ok := b.TakeWindow("r", 4, 2)
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3, 4}, w1)

	w2, ok := b.TakeWindow("r", 4, 2)
	require.True(t, ok)
	assert.Equal(t, []float64{3, 4, 5, 6}, w2)
}

func TestAppendChunkStrictBackpressure(t *testing.T) {
	b := New(4, DropPolicyStrict)
	b.RegisterReader("r")
	err := b.AppendChunk([]float64{1, 2, 3, 4, 5})
	assert.ErrorIs(t, err, ErrBackpressure)
}

func TestAppendChunkDropsOldestUnderDropPolicy(t *testing.T) {
	b := New(4, DropPolicyOldest)
	b.RegisterReader("r")
	require.NoError(t, b.AppendChunk([]float64{1, 2, 3, 4, 5, 6}))
	assert.Positive(t, b.DropCount())
}

func TestIndependentReaderCursors(t *testing.T) {
	b := New(32, DropPolicyStrict)
	b.RegisterReader("early")
	require.NoError(t, b.AppendChunk([]float64{1, 2, 3, 4}))
	b.RegisterReader("late")
	require.NoError(t, b.AppendChunk([]float64{5, 6, 7, 8}))

	// "early" attached before either chunk, so it sees all 8 samples.
	window, ok := b.TakeWindow("early", 8, 8)
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8}, window)

	// "late" attached after the first chunk, so it only ever sees the
	// second one — a new reader never sees samples written before it
	// registered.
	_, ok = b.TakeWindow("late", 8, 8)
	assert.False(t, ok)
	window, ok = b.TakeWindow("late", 4, 4)
	require.True(t, ok)
	assert.Equal(t, []float64{5, 6, 7, 8}, window)
}
