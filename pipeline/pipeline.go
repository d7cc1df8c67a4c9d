// Copyright 2026 The maskdetector Authors. SPDX-License-Identifier: Apache-2.0

// Package pipeline trains a mask detector end-to-end: it loads the images, encodes the labels, splits
// the examples, trains the model head on top of the frozen backbone, evaluates the model on the held-out
// examples and saves the model, the training curves and the history.
//
// Each stage runs exactly once, in that order, and the first error aborts the run.
package pipeline

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/data"
	"github.com/google/uuid"
	"github.com/maskdetector/maskdetector/dataset"
	"github.com/maskdetector/maskdetector/evaluate"
	"github.com/maskdetector/maskdetector/labels"
	"github.com/maskdetector/maskdetector/model"
	"github.com/maskdetector/maskdetector/persist"
	"github.com/maskdetector/maskdetector/schedule"
	"github.com/maskdetector/maskdetector/split"
	"github.com/maskdetector/maskdetector/trainer"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Result of a training run.
type Result struct {
	// RunID uniquely identifies the run. It is saved with the model as the ParamRunID hyperparameter.
	RunID string

	// Classes in the order of the model outputs.
	Classes []string

	History *trainer.History
	Report  *evaluate.Report

	// TrainIndices and TestIndices are the indices of the loaded examples used for training and evaluation.
	TrainIndices, TestIndices []int

	// Predictions holds the probabilities predicted for each test example, in the order of TestIndices.
	Predictions [][]float32
}

// Run trains and evaluates a mask detector. The model hyperparameters are read from ctx, see CreateDefaultContext.
//
// The trained variables are left in ctx, and saved to config.ModelDir.
func Run(backend backends.Backend, ctx *context.Context, config Config) (*Result, error) {
	result := &Result{RunID: uuid.NewString()}
	ctx.SetParam(ParamRunID, result.RunID)
	klog.V(1).Infof("Training run %s", result.RunID)

	imageSize := context.GetParamOr(ctx, model.ParamImageSize, 224)
	batchSize := context.GetParamOr(ctx, ParamBatchSize, 0)
	if batchSize <= 0 {
		return nil, errors.Errorf("%q must be > 0 (maybe it was not set?): %d", ParamBatchSize, batchSize)
	}
	evalBatchSize := context.GetParamOr(ctx, ParamEvalBatchSize, 0)
	if evalBatchSize <= 0 {
		evalBatchSize = batchSize
	}
	numEpochs := context.GetParamOr(ctx, schedule.ParamNumEpochs, 0)
	if numEpochs <= 0 {
		return nil, errors.Errorf("%q must be > 0: %d", schedule.ParamNumEpochs, numEpochs)
	}

	// Load images.
	fmt.Println("[INFO] loading images...")
	ds, err := dataset.Load(dataset.LoaderConfig{
		Dir:         data.ReplaceTildeInDir(config.DataDir),
		Categories:  config.Categories,
		ImageSize:   imageSize,
		Parallelism: config.LoadParallelism,
		Verbose:     config.Verbose,
	})
	if err != nil {
		return nil, err
	}

	// Encode labels.
	binarizer, err := labels.Fit(ds.Labels())
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid labels in %q", config.DataDir)
	}
	result.Classes = binarizer.Classes()
	ctx.SetParam(model.ParamClassNames, result.Classes)
	classIdx, err := binarizer.Indices(ds.Labels())
	if err != nil {
		return nil, err
	}

	// Split.
	result.TrainIndices, result.TestIndices, err = split.TrainTest(classIdx, config.TestFraction, config.Seed)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to split %d examples", ds.Len())
	}
	klog.Infof("Split: %s training examples, %s test examples",
		humanize.Comma(int64(len(result.TrainIndices))), humanize.Comma(int64(len(result.TestIndices))))
	trainDS, testDS, err := newBatches(ctx, config, ds, classIdx, binarizer.NumClasses(),
		result.TrainIndices, result.TestIndices, batchSize, evalBatchSize)
	if err != nil {
		return nil, err
	}

	// Model: download pretrained weights, if needed, and freeze the backbone.
	fmt.Println("[INFO] compiling model...")
	if weightsDir := context.GetParamOr(ctx, model.ParamInceptionWeightsDir, ""); weightsDir != "" {
		ctx.SetParam(model.ParamInceptionWeightsDir, data.ReplaceTildeInDir(weightsDir))
	}
	if err = model.Prepare(ctx); err != nil {
		return nil, err
	}
	if !context.GetParamOr(ctx, model.ParamBackboneTrainable, false) {
		model.Freeze(ctx)
	}

	// Train.
	fmt.Println("[INFO] training head...")
	result.History, err = trainer.Train(backend, ctx, trainDS, testDS, trainer.Config{
		NumEpochs:      numEpochs,
		ParallelBuffer: context.GetParamOr(ctx, ParamParallelBatches, 0),
		Verbose:        config.Verbose,
	})
	if err != nil {
		return nil, err
	}
	for _, group := range model.ParameterGroups(ctx) {
		klog.V(1).Infof("Parameters %q: %s variables, %s values, trainable=%v", group.Group,
			humanize.Comma(int64(len(group.Variables))), humanize.Comma(int64(group.NumParameters())), group.Trainable)
	}

	// Evaluate.
	fmt.Println("[INFO] evaluating network...")
	result.Predictions, err = evaluate.Predict(backend, ctx, testDS)
	if err != nil {
		return nil, err
	}
	result.Report, err = evaluate.NewReport(result.Classes, testDS.ClassIndices(), evaluate.ArgMax(result.Predictions))
	if err != nil {
		return nil, err
	}
	if config.Verbose {
		fmt.Println(result.Report)
	} else {
		klog.Infof("Classification report:\n%s", result.Report.Plain())
	}

	// Save.
	fmt.Println("[INFO] saving mask detector model...")
	if err = persist.SaveModel(ctx, data.ReplaceTildeInDir(config.ModelDir), ParamsExcludedFromSaving...); err != nil {
		return nil, err
	}
	if config.PlotPath != "" {
		if err = persist.SavePlot(result.History, data.ReplaceTildeInDir(config.PlotPath)); err != nil {
			return nil, err
		}
	}
	if config.HistoryPath != "" {
		if err = persist.SaveHistoryCSV(result.History, data.ReplaceTildeInDir(config.HistoryPath)); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// newBatches creates the training batches (shuffled, incomplete batch dropped, augmented as configured in ctx)
// and the test batches, in order and never augmented.
func newBatches(ctx *context.Context, config Config, ds *dataset.Dataset, classIdx []int, numClasses int,
	trainIdx, testIdx []int, batchSize, evalBatchSize int) (trainDS, testDS *dataset.Batches, err error) {
	trainDS, err = dataset.NewBatches("train", ds, trainIdx, classIdx, numClasses, batchSize)
	if err != nil {
		return
	}
	trainDS.Shuffle(config.Seed).DropIncompleteBatch(true)
	if augmentation := AugmentationFromContext(ctx); !augmentation.IsIdentity() {
		trainDS.WithAugmentation(dataset.NewAugmenter(augmentation, config.Seed))
	}
	testDS, err = dataset.NewBatches("test", ds, testIdx, classIdx, numClasses, evalBatchSize)
	return
}
