// Copyright 2026 The maskdetector Authors. SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/maskdetector/maskdetector/dataset"
	"github.com/maskdetector/maskdetector/model"
	"github.com/maskdetector/maskdetector/schedule"
)

// Context hyperparameters read by Run, besides the ones of the model, schedule and optimizers packages.
const (
	ParamBatchSize     = "batch_size"
	ParamEvalBatchSize = "eval_batch_size"

	// ParamParallelBatches is the number of training batches prepared in parallel with training. 0 disables it.
	ParamParallelBatches = "parallel_batches"

	// ParamRunID is set by Run with a unique identifier of the training run, and saved along the model.
	ParamRunID = "run_id"

	ParamAugmentationRotationDegrees = "augmentation_rotation_degrees"
	ParamAugmentationZoom            = "augmentation_zoom"
	ParamAugmentationWidthShift      = "augmentation_width_shift"
	ParamAugmentationHeightShift     = "augmentation_height_shift"
	ParamAugmentationShearDegrees    = "augmentation_shear_degrees"
	ParamAugmentationHorizontalFlip  = "augmentation_horizontal_flip"
)

// ParamsExcludedFromSaving lists the hyperparameters that are not saved with the model, since they
// only make sense in the machine where it was trained.
var ParamsExcludedFromSaving = []string{
	model.ParamInceptionWeightsDir, ParamParallelBatches,
}

// Config of a training run. The model hyperparameters are not here, they are set in the context,
// see CreateDefaultContext.
type Config struct {
	// DataDir holds one sub-directory of images per category.
	DataDir string

	// Categories are the names of the sub-directories of DataDir to load.
	Categories []string

	// TestFraction of the examples held out for evaluation.
	TestFraction float64

	// Seed used for the split, shuffling and augmentation.
	Seed int64

	// ModelDir where the trained model is saved. Previous contents are removed.
	ModelDir string

	// PlotPath where the training curves are saved. Skipped if empty.
	PlotPath string

	// HistoryPath where the per-epoch metrics are saved as CSV. Skipped if empty.
	HistoryPath string

	// LoadParallelism is the number of images decoded concurrently. 0 uses all CPUs.
	LoadParallelism int

	// Verbose displays progress bars and the report as a table.
	Verbose bool
}

// DefaultConfig returns the configuration used by default.
func DefaultConfig() Config {
	return Config{
		DataDir:      "dataset",
		Categories:   []string{"with_mask", "without_mask"},
		TestFraction: 0.20,
		Seed:         42,
		ModelDir:     "mask_detector.model",
		PlotPath:     "plot.png",
		Verbose:      true,
	}
}

// CreateDefaultContext sets the context with default hyperparameters to use with Run.
func CreateDefaultContext() *context.Context {
	ctx := context.New()
	ctx.SetParams(map[string]any{
		// Backbone used: "inception" (pretrained InceptionV3) or "cnn" (small CNN trained from scratch).
		model.ParamBackbone:          "inception",
		model.ParamBackboneTrainable: false,
		model.ParamImageSize:         224,

		// batch_size for training.
		ParamBatchSize: 96,

		// eval_batch_size can be larger than training, it's more efficient. If 0, uses batch_size.
		ParamEvalBatchSize:   0,
		ParamParallelBatches: 0,

		// Training: Adam with inverse time decay of the learning rate.
		schedule.ParamNumEpochs:      20,
		optimizers.ParamLearningRate: 1e-4,
		schedule.ParamDecay:          -1.0, // learning_rate / num_epochs.

		// Head on top of the backbone.
		model.ParamHeadHiddenNodes: 128,
		model.ParamHeadDropoutRate: 0.5,

		// Image augmentation of the training examples.
		ParamAugmentationRotationDegrees: dataset.DefaultAugmentation.RotationDegrees,
		ParamAugmentationZoom:            dataset.DefaultAugmentation.Zoom,
		ParamAugmentationWidthShift:      dataset.DefaultAugmentation.WidthShift,
		ParamAugmentationHeightShift:     dataset.DefaultAugmentation.HeightShift,
		ParamAugmentationShearDegrees:    dataset.DefaultAugmentation.ShearDegrees,
		ParamAugmentationHorizontalFlip:  dataset.DefaultAugmentation.HorizontalFlip,

		// InceptionV3 backbone ("backbone": "inception").
		model.ParamInceptionWeightsDir: "~/.cache/maskdetector/inceptionv3",
		model.ParamInceptionPretrained: true,

		// CNN backbone ("backbone": "cnn").
		model.ParamCNNNumLayers:  3,
		model.ParamCNNNumFilters: 16,
	})
	return ctx
}

// AugmentationFromContext returns the augmentation configured in the context, with dataset.DefaultAugmentation
// values for the missing parameters.
func AugmentationFromContext(ctx *context.Context) dataset.AugmentationConfig {
	def := dataset.DefaultAugmentation
	return dataset.AugmentationConfig{
		RotationDegrees: context.GetParamOr(ctx, ParamAugmentationRotationDegrees, def.RotationDegrees),
		Zoom:            context.GetParamOr(ctx, ParamAugmentationZoom, def.Zoom),
		WidthShift:      context.GetParamOr(ctx, ParamAugmentationWidthShift, def.WidthShift),
		HeightShift:     context.GetParamOr(ctx, ParamAugmentationHeightShift, def.HeightShift),
		ShearDegrees:    context.GetParamOr(ctx, ParamAugmentationShearDegrees, def.ShearDegrees),
		HorizontalFlip:  context.GetParamOr(ctx, ParamAugmentationHorizontalFlip, def.HorizontalFlip),
	}
}
