package pipeline

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/maskdetector/maskdetector/classifier"
	"github.com/maskdetector/maskdetector/dataset"
	"github.com/maskdetector/maskdetector/evaluate"
	"github.com/maskdetector/maskdetector/internal/synthetic"
	"github.com/maskdetector/maskdetector/model"
	"github.com/maskdetector/maskdetector/persist"
	"github.com/maskdetector/maskdetector/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

// newTestRun creates a small dataset with 10 images per category and a configuration to train a
// small CNN on it for one epoch.
func newTestRun(t *testing.T) (*context.Context, Config) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "dataset")
	config := DefaultConfig()
	require.NoError(t, synthetic.WriteDataset(dataDir, config.Categories, 10, 40, 1))
	config.DataDir = dataDir
	config.ModelDir = filepath.Join(dir, "mask_detector.model")
	config.PlotPath = filepath.Join(dir, "plot.png")
	config.HistoryPath = filepath.Join(dir, "history.csv")
	config.Verbose = false

	ctx := CreateDefaultContext()
	ctx.SetParams(map[string]any{
		model.ParamBackbone:        "cnn",
		model.ParamImageSize:       32,
		model.ParamCNNNumLayers:    2,
		model.ParamCNNNumFilters:   4,
		model.ParamHeadHiddenNodes: 8,
		ParamBatchSize:             4,
		schedule.ParamNumEpochs:    1,
	})
	return ctx, config
}

func TestRun(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx, config := newTestRun(t)
	result, err := Run(backend, ctx, config)
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, []string{"with_mask", "without_mask"}, result.Classes)

	// 20 examples with test fraction 0.2: 4 test (2 per class) and 16 train (8 per class).
	require.Len(t, result.TestIndices, 4)
	require.Len(t, result.TrainIndices, 16)
	testPerClass := make([]int, 2)
	for _, idx := range result.TestIndices {
		testPerClass[idx/10]++ // Examples are loaded in category order.
	}
	assert.Equal(t, []int{2, 2}, testPerClass)

	// One epoch: exactly one entry of each metric.
	require.Equal(t, 1, result.History.Len())
	assert.Len(t, result.History.Accuracy, 1)
	assert.Len(t, result.History.ValLoss, 1)
	assert.Len(t, result.History.ValAccuracy, 1)

	require.Len(t, result.Predictions, 4)
	assert.Equal(t, 4, result.Report.Total)

	// Backbone is frozen.
	for _, group := range model.ParameterGroups(ctx) {
		assert.Equal(t, group.Group == model.GroupHead, group.Trainable, "group %q", group.Group)
	}

	// Artifacts.
	for _, path := range []string{config.PlotPath, config.HistoryPath} {
		info, err := os.Stat(path)
		require.NoError(t, err, "missing %q", path)
		assert.Greater(t, info.Size(), int64(0))
	}
	history, err := persist.LoadHistoryCSV(config.HistoryPath)
	require.NoError(t, err)
	assert.InDeltaSlice(t, result.History.ValAccuracy, history.ValAccuracy, 1e-6)

	// The reloaded model reproduces the predictions.
	c, err := classifier.NewWithBackend(backend, config.ModelDir)
	require.NoError(t, err)
	assert.Equal(t, result.Classes, c.Classes())
	ds, err := dataset.Load(dataset.LoaderConfig{Dir: config.DataDir, Categories: config.Categories, ImageSize: 32})
	require.NoError(t, err)
	imgs := make([]image.Image, len(result.TestIndices))
	for ii, idx := range result.TestIndices {
		imgs[ii] = ds.Samples[idx].Image
	}
	classIdx, probs, err := c.PredictBatch(imgs)
	require.NoError(t, err)
	assert.Equal(t, evaluate.ArgMax(result.Predictions), classIdx)
	for ii := range probs {
		assert.InDeltaSlice(t, result.Predictions[ii], probs[ii], 1e-5)
	}
}

func TestRunErrors(t *testing.T) {
	backend := graphtest.BuildTestBackend()

	// Batch larger than the training partition.
	ctx, config := newTestRun(t)
	ctx.SetParam(ParamBatchSize, 32)
	_, err := Run(backend, ctx, config)
	require.Error(t, err)

	// Missing category directory.
	ctx, config = newTestRun(t)
	config.Categories = []string{"with_mask", "half_mask"}
	_, err = Run(backend, ctx, config)
	require.Error(t, err)

	// Invalid test fraction.
	ctx, config = newTestRun(t)
	config.TestFraction = 1.5
	_, err = Run(backend, ctx, config)
	require.Error(t, err)
}

func TestAugmentationFromContext(t *testing.T) {
	ctx := CreateDefaultContext()
	assert.Equal(t, dataset.DefaultAugmentation, AugmentationFromContext(ctx))
	ctx.SetParams(map[string]any{
		ParamAugmentationRotationDegrees: 0.0,
		ParamAugmentationZoom:            0.0,
		ParamAugmentationWidthShift:      0.0,
		ParamAugmentationHeightShift:     0.0,
		ParamAugmentationShearDegrees:    0.0,
		ParamAugmentationHorizontalFlip:  false,
	})
	assert.True(t, AugmentationFromContext(ctx).IsIdentity())
}

func TestNewBatches(t *testing.T) {
	ctx, config := newTestRun(t)
	ds, err := dataset.Load(dataset.LoaderConfig{Dir: config.DataDir, Categories: config.Categories, ImageSize: 8})
	require.NoError(t, err)
	classIdx := make([]int, ds.Len())
	for ii := range classIdx {
		classIdx[ii] = ii / 10
	}
	trainIdx, testIdx := []int{0, 1, 2, 10, 11, 12}, []int{3, 13, 4}

	trainDS, testDS, err := newBatches(ctx, config, ds, classIdx, 2, trainIdx, testIdx, 4, 2)
	require.NoError(t, err)
	assert.True(t, trainDS.Augmented())
	assert.Equal(t, 1, trainDS.StepsPerEpoch())
	assert.False(t, testDS.Augmented())
	assert.Equal(t, 2, testDS.StepsPerEpoch())
	assert.Equal(t, []int{0, 1, 0}, testDS.ClassIndices())

	// No augmentation configured.
	ctx.SetParams(map[string]any{
		ParamAugmentationRotationDegrees: 0.0,
		ParamAugmentationZoom:            0.0,
		ParamAugmentationWidthShift:      0.0,
		ParamAugmentationHeightShift:     0.0,
		ParamAugmentationShearDegrees:    0.0,
		ParamAugmentationHorizontalFlip:  false,
	})
	trainDS, _, err = newBatches(ctx, config, ds, classIdx, 2, trainIdx, testIdx, 4, 2)
	require.NoError(t, err)
	assert.False(t, trainDS.Augmented())
}
