// Copyright 2026 The maskdetector Authors. SPDX-License-Identifier: Apache-2.0

// Package evaluate runs the trained model over held-out data and reports classification quality:
// per-class precision, recall, F1 and support, plus accuracy and averages.
package evaluate

import (
	"io"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/maskdetector/maskdetector/labels"
	"github.com/maskdetector/maskdetector/model"
	"github.com/pkg/errors"
)

// Predictor runs the model forward only, without updating any variable.
// The compiled graphs are cached, so a Predictor can be reused across epochs while the variables change.
type Predictor struct {
	exec *context.Exec
}

// NewPredictor creates a Predictor for the model in ctx. The model variables must already exist, either because
// the model was trained or loaded from a checkpoint.
func NewPredictor(backend backends.Backend, ctx *context.Context) *Predictor {
	return &Predictor{
		exec: context.NewExec(backend, ctx.Reuse(), func(ctx *context.Context, images *Node) *Node {
			return model.ModelGraph(ctx, nil, []*Node{images})[0]
		}),
	}
}

// PredictBatch returns the probabilities for a batch of images shaped `[batch_size, height, width, 3]`,
// with values from 0.0 to 1.0.
func (p *Predictor) PredictBatch(images *tensors.Tensor) (probs [][]float32, err error) {
	err = exceptions.TryCatch[error](func() {
		probs = p.exec.Call(images)[0].Value().([][]float32)
	})
	return
}

// Predict returns the probabilities of every example yielded by ds, in order.
// The dataset is reset before and after.
func (p *Predictor) Predict(ds train.Dataset) ([][]float32, error) {
	ds.Reset()
	defer ds.Reset()
	var all [][]float32
	for {
		_, inputs, _, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "while reading dataset %q", ds.Name())
		}
		probs, err := p.PredictBatch(inputs[0])
		if err != nil {
			return nil, errors.WithMessagef(err, "while predicting dataset %q", ds.Name())
		}
		all = append(all, probs...)
	}
	return all, nil
}

// Predict is a shortcut to NewPredictor(backend, ctx).Predict(ds).
func Predict(backend backends.Backend, ctx *context.Context, ds train.Dataset) ([][]float32, error) {
	return NewPredictor(backend, ctx).Predict(ds)
}

// ArgMax returns the most probable class of each prediction.
func ArgMax(probs [][]float32) []int {
	predicted := make([]int, len(probs))
	for ii, row := range probs {
		predicted[ii] = labels.ArgMax(row)
	}
	return predicted
}
