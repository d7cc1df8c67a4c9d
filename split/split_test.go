package split

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeClasses(counts ...int) []int {
	var classIdx []int
	for class, count := range counts {
		for range count {
			classIdx = append(classIdx, class)
		}
	}
	return classIdx
}

func countPerClass(classIdx, subset []int, numClasses int) []int {
	counts := make([]int, numClasses)
	for _, exampleIdx := range subset {
		counts[classIdx[exampleIdx]]++
	}
	return counts
}

func TestTrainTestBalanced(t *testing.T) {
	classIdx := makeClasses(10, 10)
	train, test, err := TrainTest(classIdx, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, test, 4)
	assert.Len(t, train, 16)
	assert.Equal(t, []int{2, 2}, countPerClass(classIdx, test, 2))
	assert.Equal(t, []int{8, 8}, countPerClass(classIdx, train, 2))

	// Disjoint and complete.
	all := append(slices.Clone(train), test...)
	slices.Sort(all)
	for ii, exampleIdx := range all {
		require.Equal(t, ii, exampleIdx)
	}
}

func TestTrainTestProportions(t *testing.T) {
	for _, counts := range [][]int{{70, 30}, {13, 7}, {50, 25, 25}, {101, 3}, {5, 5, 5, 6}} {
		classIdx := makeClasses(counts...)
		n := len(classIdx)
		for _, fraction := range []float64{0.1, 0.2, 0.25, 0.5} {
			train, test, err := TrainTest(classIdx, fraction, 7)
			if err != nil {
				// Only acceptable failure: too few test examples for the number of classes.
				require.Less(t, int(float64(n)*fraction+1), len(counts)+1, "counts=%v, fraction=%g", counts, fraction)
				continue
			}
			require.Equal(t, n, len(train)+len(test))
			testCounts := countPerClass(classIdx, test, len(counts))
			trainCounts := countPerClass(classIdx, train, len(counts))
			for class, count := range counts {
				want := float64(count) * float64(len(test)) / float64(n)
				assert.InDelta(t, want, float64(testCounts[class]), 1.0, "counts=%v, fraction=%g, class=%d", counts, fraction, class)
				assert.Positive(t, trainCounts[class])
			}
		}
	}
}

func TestTrainTestSize(t *testing.T) {
	classIdx := makeClasses(15, 15)
	_, test, err := TrainTest(classIdx, 0.1, 1)
	require.NoError(t, err)
	assert.Len(t, test, 3)

	classIdx = makeClasses(11, 10)
	_, test, err = TrainTest(classIdx, 0.2, 1)
	require.NoError(t, err)
	assert.Len(t, test, 5) // ceil(4.2)
}

func TestTrainTestDeterministic(t *testing.T) {
	classIdx := makeClasses(20, 12)
	train1, test1, err := TrainTest(classIdx, 0.25, 42)
	require.NoError(t, err)
	train2, test2, err := TrainTest(classIdx, 0.25, 42)
	require.NoError(t, err)
	assert.Equal(t, train1, train2)
	assert.Equal(t, test1, test2)

	_, test3, err := TrainTest(classIdx, 0.25, 43)
	require.NoError(t, err)
	assert.NotEqual(t, test1, test3)
}

func TestTrainTestErrors(t *testing.T) {
	classIdx := makeClasses(10, 10)
	for _, fraction := range []float64{0, 1, -0.5, 1.5} {
		_, _, err := TrainTest(classIdx, fraction, 0)
		require.Error(t, err, "fraction=%g", fraction)
	}
	_, _, err := TrainTest(nil, 0.2, 0)
	require.Error(t, err)
	_, _, err = TrainTest(makeClasses(5, 5), 0.1, 0)
	require.Error(t, err) // Single test example for 2 classes.
	_, _, err = TrainTest([]int{0, -1}, 0.5, 0)
	require.Error(t, err)
}
