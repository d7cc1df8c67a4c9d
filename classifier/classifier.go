// Copyright 2026 The maskdetector Authors. SPDX-License-Identifier: Apache-2.0

// Package classifier loads a mask detector saved with persist.SaveModel and classifies images with it.
//
// To use it, create a Classifier with New(), and then call its Classify or PredictBatch methods
// with images of any size: they are resized to the model's input size.
package classifier

import (
	"image"
	"os"

	"github.com/disintegration/imaging"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/types/tensors"
	timage "github.com/gomlx/gomlx/types/tensors/images"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/maskdetector/maskdetector/dataset"
	"github.com/maskdetector/maskdetector/labels"
	"github.com/maskdetector/maskdetector/model"
	"github.com/pkg/errors"
)

// Classifier holds the mask detector compiled.
// It uses the backend configured with GOMLX_BACKEND, if it is set.
type Classifier struct {
	backend backends.Backend

	// ctx with the model's weights.
	ctx *context.Context

	binarizer *labels.Binarizer
	imageSize int
	toTensor  *timage.ToTensorConfig

	// exec returns the probabilities of each class for a batch of images.
	exec *context.Exec
}

// New loads the model saved in checkpointDir, using the default backend.
func New(checkpointDir string) (*Classifier, error) {
	var backend backends.Backend
	err := exceptions.TryCatch[error](func() { backend = backends.MustNew() })
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create backend")
	}
	return NewWithBackend(backend, checkpointDir)
}

// NewWithBackend loads the model saved in checkpointDir, and compiles it for the given backend.
func NewWithBackend(backend backends.Backend, checkpointDir string) (*Classifier, error) {
	if info, err := os.Stat(checkpointDir); err != nil || !info.IsDir() {
		return nil, errors.Errorf("model directory %q not found", checkpointDir)
	}
	c := &Classifier{
		backend:  backend,
		ctx:      context.New(),
		toTensor: timage.ToTensor(dtypes.Float32).MaxValue(255.0),
	}

	// All hyperparameters are read from the checkpoint, so the same model is built.
	_, err := checkpoints.Load(c.ctx).
		Dir(checkpointDir).
		Done()
	if err != nil {
		return nil, errors.WithMessagef(err, "failed while loading mask detector model from %q", checkpointDir)
	}
	// Pretrained weights are part of the checkpoint already.
	c.ctx.SetParam(model.ParamInceptionPretrained, false)
	c.ctx = c.ctx.Reuse() // Creating a new variable is an error: all must come from the checkpoint.

	classNames := context.GetParamOr(c.ctx, model.ParamClassNames, []string(nil))
	c.binarizer, err = labels.FromClasses(classNames)
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid class names in model %q", checkpointDir)
	}
	c.imageSize = context.GetParamOr(c.ctx, model.ParamImageSize, 0)
	if c.imageSize <= 0 {
		return nil, errors.Errorf("model %q has invalid %q=%d", checkpointDir, model.ParamImageSize, c.imageSize)
	}

	c.exec = context.NewExec(c.backend, c.ctx, func(ctx *context.Context, images *Node) *Node {
		return model.ModelGraph(ctx, nil, []*Node{images})[0]
	})
	return c, nil
}

// Classes returns the class names, in the order of the model outputs.
func (c *Classifier) Classes() []string { return c.binarizer.Classes() }

// ImageSize returns the side of the square images the model takes as input.
func (c *Classifier) ImageSize() int { return c.imageSize }

// PredictBatch returns the most probable class index of each image and the probabilities of every class.
func (c *Classifier) PredictBatch(imgs []image.Image) (classIdx []int, probs [][]float32, err error) {
	if len(imgs) == 0 {
		return nil, nil, errors.New("no images to classify")
	}
	resized := make([]image.Image, len(imgs))
	for ii, img := range imgs {
		if img == nil {
			return nil, nil, errors.Errorf("image #%d is nil", ii)
		}
		resized[ii] = dataset.Resize(img, c.imageSize, imaging.NearestNeighbor)
	}
	input := c.toTensor.Batch(resized)
	var outputs []*tensors.Tensor
	err = exceptions.TryCatch[error](func() { outputs = c.exec.Call(input) })
	if err != nil {
		return nil, nil, errors.WithMessage(err, "failed to run model")
	}
	probs = outputs[0].Value().([][]float32)
	classIdx = make([]int, len(probs))
	for ii, row := range probs {
		classIdx[ii] = labels.ArgMax(row)
	}
	return classIdx, probs, nil
}

// Classify returns the most probable class name of the image and its probability.
func (c *Classifier) Classify(img image.Image) (className string, probability float32, err error) {
	classIdx, probs, err := c.PredictBatch([]image.Image{img})
	if err != nil {
		return "", 0, err
	}
	className, err = c.binarizer.Decode(classIdx[0])
	if err != nil {
		return "", 0, err
	}
	return className, probs[0][classIdx[0]], nil
}
