package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFit(t *testing.T) {
	b, err := Fit([]string{"without_mask", "with_mask", "with_mask", "without_mask"})
	require.NoError(t, err)
	assert.Equal(t, []string{"with_mask", "without_mask"}, b.Classes())
	assert.Equal(t, 2, b.NumClasses())

	_, err = Fit([]string{"with_mask", "with_mask"})
	require.Error(t, err)
	_, err = Fit(nil)
	require.Error(t, err)
}

func TestTransform(t *testing.T) {
	b, err := Fit([]string{"with_mask", "without_mask"})
	require.NoError(t, err)
	encoded, err := b.Transform([]string{"without_mask", "with_mask", "without_mask"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 0}, {0, 1}}, encoded)

	_, err = b.Transform([]string{"with_mask", "half_mask"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "half_mask")
}

func TestRoundTrip(t *testing.T) {
	observed := []string{"cat", "dog", "bird", "dog", "fish"}
	b, err := Fit(observed)
	require.NoError(t, err)
	assert.Equal(t, 4, b.NumClasses())
	encoded, err := b.Transform(observed)
	require.NoError(t, err)
	for ii, vector := range encoded {
		decoded, err := b.DecodeArgMax(vector)
		require.NoError(t, err)
		assert.Equal(t, observed[ii], decoded)
	}

	// Probabilities decode to the most likely class.
	decoded, err := b.DecodeArgMax([]float32{0.1, 0.2, 0.6, 0.1})
	require.NoError(t, err)
	assert.Equal(t, "dog", decoded)

	_, err = b.DecodeArgMax([]float32{1, 0})
	require.Error(t, err)
	_, err = b.Decode(4)
	require.Error(t, err)
}

func TestFromClasses(t *testing.T) {
	b, err := FromClasses([]string{"with_mask", "without_mask"})
	require.NoError(t, err)
	idx, err := b.Index("without_mask")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = FromClasses([]string{"without_mask", "with_mask"})
	require.Error(t, err)
	_, err = FromClasses([]string{"a", "a", "b"})
	require.Error(t, err)
}

func TestArgMax(t *testing.T) {
	assert.Equal(t, 0, ArgMax([]float32{0.5, 0.5}))
	assert.Equal(t, 1, ArgMax([]float32{0.4, 0.6}))
	assert.Equal(t, 2, ArgMax([]float32{-3, -2, -1}))
}
