// Copyright 2026 The maskdetector Authors. SPDX-License-Identifier: Apache-2.0

// Package trainer fits the model head on the training batches, one epoch at a time,
// and records the training and validation loss and accuracy of every epoch.
package trainer

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/data"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/metrics"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/maskdetector/maskdetector/dataset"
	"github.com/maskdetector/maskdetector/model"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Names of the training metrics, as reported by the progress bar.
const (
	MetricLoss     = "Mean Loss"
	MetricAccuracy = "Mean Accuracy"
)

// Config of the training loop.
type Config struct {
	// NumEpochs to train. Must be > 0.
	NumEpochs int

	// ParallelBuffer, if > 0, yields the training batches in parallel (see data.CustomParallel),
	// keeping up to ParallelBuffer batches ready.
	ParallelBuffer int

	// Verbose shows a progress bar while training.
	Verbose bool
}

// History holds one entry per epoch trained.
type History struct {
	Loss, Accuracy       []float64
	ValLoss, ValAccuracy []float64
}

// Len returns the number of epochs recorded.
func (h *History) Len() int { return len(h.Loss) }

// Train fits the model configured in ctx (see model.ModelGraph) on trainDS, and evaluates it on valDS after
// every epoch with trainer.Eval. Validation is forward-only, runs the model in inference mode and doesn't update
// any variable. valDS must not be augmented.
//
// The backbone is kept frozen unless the context parameter model.ParamBackboneTrainable is set.
func Train(backend backends.Backend, ctx *context.Context, trainDS, valDS *dataset.Batches, config Config) (*History, error) {
	if config.NumEpochs <= 0 {
		return nil, errors.Errorf("number of epochs must be > 0, got %d", config.NumEpochs)
	}
	if trainDS.StepsPerEpoch() == 0 {
		return nil, errors.Errorf("batch size %d is larger than the %d examples of dataset %q: no training steps per epoch",
			trainDS.BatchSize(), trainDS.Len(), trainDS.Name())
	}
	if valDS.Len() == 0 {
		return nil, errors.Errorf("validation dataset %q is empty", valDS.Name())
	}
	if valDS.Augmented() {
		return nil, errors.Errorf("validation dataset %q must not be augmented", valDS.Name())
	}

	newMetrics := func() []metrics.Interface {
		return []metrics.Interface{
			metrics.NewMeanMetric(MetricLoss, "#loss", metrics.LossMetricType, model.LossGraph, nil),
			metrics.NewMeanMetric(MetricAccuracy, "#acc", metrics.AccuracyMetricType, model.AccuracyGraph, nil),
		}
	}
	trainer := train.NewTrainer(backend, ctx, model.ModelGraph, model.Loss,
		model.NewOptimizer(ctx),
		newMetrics(), // trainMetrics
		newMetrics()) // evalMetrics
	trainLossIdx, trainAccuracyIdx, err := metricIndices(trainer.TrainMetrics())
	if err != nil {
		return nil, errors.WithMessage(err, "training metrics")
	}
	evalLossIdx, evalAccuracyIdx, err := metricIndices(trainer.EvalMetrics())
	if err != nil {
		return nil, errors.WithMessage(err, "evaluation metrics")
	}

	loop := train.NewLoop(trainer)
	if config.Verbose {
		commandline.AttachProgressBar(loop)
	}
	var ds train.Dataset = trainDS
	if config.ParallelBuffer > 0 {
		var stop func()
		ds, stop = prefetch(trainDS, config.ParallelBuffer)
		defer stop()
	}

	history := &History{}
	for epoch := range config.NumEpochs {
		start := time.Now()
		var trainValues, evalValues []*tensors.Tensor
		err := exceptions.TryCatch[error](func() {
			var err error
			trainValues, err = loop.RunEpochs(ds, 1)
			if err != nil {
				panic(err)
			}
		})
		if err != nil {
			return history, errors.WithMessagef(err, "while training epoch %d/%d", epoch+1, config.NumEpochs)
		}
		if len(trainValues) <= max(trainLossIdx, trainAccuracyIdx) {
			return history, errors.Errorf("epoch %d returned %d training metrics, expected at least %d",
				epoch+1, len(trainValues), max(trainLossIdx, trainAccuracyIdx)+1)
		}
		history.Loss = append(history.Loss, scalarMetric(trainValues[trainLossIdx]))
		history.Accuracy = append(history.Accuracy, scalarMetric(trainValues[trainAccuracyIdx]))

		err = exceptions.TryCatch[error](func() {
			var err error
			valDS.Reset()
			evalValues, err = trainer.Eval(valDS)
			valDS.Reset()
			if err != nil {
				panic(err)
			}
		})
		if err != nil {
			return history, errors.WithMessagef(err, "while validating epoch %d/%d", epoch+1, config.NumEpochs)
		}
		if len(evalValues) <= max(evalLossIdx, evalAccuracyIdx) {
			return history, errors.Errorf("epoch %d returned %d validation metrics, expected at least %d",
				epoch+1, len(evalValues), max(evalLossIdx, evalAccuracyIdx)+1)
		}
		history.ValLoss = append(history.ValLoss, scalarMetric(evalValues[evalLossIdx]))
		history.ValAccuracy = append(history.ValAccuracy, scalarMetric(evalValues[evalAccuracyIdx]))

		klog.Infof("Epoch %d/%d (%s): loss=%.4f accuracy=%.4f val_loss=%.4f val_accuracy=%.4f",
			epoch+1, config.NumEpochs, time.Since(start).Round(time.Millisecond),
			history.Loss[epoch], history.Accuracy[epoch], history.ValLoss[epoch], history.ValAccuracy[epoch])
	}
	klog.V(1).Infof("Median train step: %d microseconds", loop.MedianTrainStepDuration().Microseconds())
	return history, nil
}

// metricIndices returns the positions of the loss and accuracy metrics, the trainer prepends its own metrics.
// If more than one metric has the same name, the last one is used.
func metricIndices(all []metrics.Interface) (lossIdx, accuracyIdx int, err error) {
	lossIdx, accuracyIdx = -1, -1
	for ii, m := range all {
		switch m.Name() {
		case MetricLoss:
			lossIdx = ii
		case MetricAccuracy:
			accuracyIdx = ii
		}
	}
	if lossIdx < 0 || accuracyIdx < 0 {
		err = errors.Errorf("metrics %q and %q not found in trainer", MetricLoss, MetricAccuracy)
	}
	return
}

// stoppableDataset yields io.EOF once stopped.
type stoppableDataset struct {
	train.Dataset
	stopped atomic.Bool
}

// Yield implements train.Dataset.
func (s *stoppableDataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	if s.stopped.Load() {
		err = io.EOF
		return
	}
	return s.Dataset.Yield()
}

// prefetch yields ds in parallel (see data.CustomParallel), keeping up to buffer batches ready.
// The returned stop function ends the prefetching goroutines and discards the batches not consumed.
func prefetch(ds train.Dataset, buffer int) (parallel train.Dataset, stop func()) {
	source := &stoppableDataset{Dataset: ds}
	parallelDS := data.CustomParallel(source).Buffer(buffer).Start()
	stop = func() {
		source.stopped.Store(true)
		for {
			_, inputs, _, err := parallelDS.Yield()
			if err != nil || inputs == nil {
				return
			}
		}
	}
	return parallelDS, stop
}

func scalarMetric(t *tensors.Tensor) float64 {
	switch v := t.Value().(type) {
	case float32:
		return float64(v)
	case float64:
		return v
	default:
		exceptions.Panicf("unexpected metric value %v of type %T", v, v)
	}
	return 0
}
