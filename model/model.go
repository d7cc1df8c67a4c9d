// Copyright 2026 The maskdetector Authors. SPDX-License-Identifier: Apache-2.0

// Package model builds the transfer learning classifier: a pretrained convolutional backbone,
// frozen by default, with a small trainable classification head on top.
//
// The model is created under the "/model" scope of the context: backbone variables under
// "/model/backbone" and head variables under "/model/head". All hyperparameters are read from
// the context, so a model saved with its context parameters can be rebuilt exactly.
package model

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/examples/inceptionv3"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/losses"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	timage "github.com/gomlx/gomlx/types/tensors/images"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/maskdetector/maskdetector/schedule"
	"golang.org/x/exp/maps"
)

// Context hyperparameters used by the model.
const (
	// ParamBackbone selects the feature extractor, one of the keys of Backbones.
	ParamBackbone = "backbone"

	// ParamBackboneTrainable allows fine-tuning of the backbone. Defaults to false.
	ParamBackboneTrainable = "backbone_trainable"

	// ParamImageSize is the side of the square input images.
	ParamImageSize = "image_size"

	// ParamClassNames holds the sorted class names. The head has one output per class.
	ParamClassNames = "class_names"

	// ParamHeadHiddenNodes is the number of nodes of the hidden layer of the head.
	ParamHeadHiddenNodes = "head_hidden_nodes"

	// ParamHeadDropoutRate is the dropout rate applied after the hidden layer of the head, during training only.
	ParamHeadDropoutRate = "head_dropout_rate"
)

// Scopes used for the model variables.
const (
	Scope         = "model"
	BackboneScope = "backbone"
	HeadScope     = "head"
)

// BackboneFn builds the feature extractor for images preprocessed to the range [-1.0, 1.0].
// It returns features shaped `[batch_size, height, width, channels]` or `[batch_size, features]`.
type BackboneFn func(ctx *context.Context, images *Node) *Node

// Backbones maps a backbone name to its graph building function.
// It holds the predefined backbones, but one can insert new ones.
var Backbones = map[string]BackboneFn{
	"inception": InceptionV3Backbone,
	"cnn":       CNNBackbone,
}

var _ train.ModelFn = ModelGraph

// ModelGraph builds the classifier graph. It implements train.ModelFn.
//
// inputs: only one tensor, the images shaped `[batch_size, height, width, 3]` with values from 0.0 to 1.0.
//
// It returns the probabilities of each class, shaped `[batch_size, num_classes]`.
func ModelGraph(ctx *context.Context, spec any, inputs []*Node) []*Node {
	_ = spec // Not needed.
	images := inputs[0]
	g := images.Graph()
	schedule.InverseTimeDecay(ctx, g, dtypes.Float32).FromContext().Done()

	ctx = ctx.In(Scope)
	numClasses := NumClasses(ctx)
	images.AssertRank(4)

	backboneName := context.GetParamOr(ctx, ParamBackbone, "inception")
	backboneFn, found := Backbones[backboneName]
	if !found {
		exceptions.Panicf("unknown backbone %q: valid values are %q", backboneName, slices.Sorted(maps.Keys(Backbones)))
	}
	images = inceptionv3.PreprocessImage(images, 1.0, timage.ChannelsLast) // Scale to [-1.0, 1.0].
	backboneCtx := ctx.In(BackboneScope)
	features := backboneFn(backboneCtx, images)
	setTrainableInScope(ctx, backboneCtx.Scope(), context.GetParamOr(ctx, ParamBackboneTrainable, false))

	logits := Head(ctx.In(HeadScope), features, numClasses)
	return []*Node{Softmax(logits)}
}

// NumClasses returns the number of classes configured in the context, given by ParamClassNames.
func NumClasses(ctx *context.Context) int {
	classNames := context.GetParamOr(ctx, ParamClassNames, []string(nil))
	if len(classNames) < 2 {
		exceptions.Panicf("context parameter %q must hold at least 2 class names, got %q", ParamClassNames, classNames)
	}
	return len(classNames)
}

// Head builds the classification head on top of the backbone features: global average pooling,
// a hidden dense layer with ReLU activation, dropout and the final dense layer.
//
// It returns the logits shaped `[batch_size, num_classes]`.
func Head(ctx *context.Context, features *Node, numClasses int) *Node {
	batchSize := features.Shape().Dimensions[0]
	if features.Rank() == 4 {
		features = ReduceMean(features, 1, 2) // Global average pooling over the spatial axes.
	}
	features = Reshape(features, batchSize, -1)

	hiddenNodes := context.GetParamOr(ctx, ParamHeadHiddenNodes, 128)
	x := layers.Dense(ctx.In("hidden"), features, true, hiddenNodes)
	x = activations.Relu(x)
	if dropoutRate := context.GetParamOr(ctx, ParamHeadDropoutRate, 0.5); dropoutRate > 0 {
		x = layers.DropoutStatic(ctx, x, dropoutRate)
	}
	return layers.Dense(ctx.In("readout"), x, true, numClasses)
}

// Loss is the mean categorical cross-entropy of the predicted probabilities.
// It implements losses.LossFn.
func Loss(labels, predictions []*Node) *Node {
	return ReduceAllMean(losses.CategoricalCrossEntropy(labels, predictions))
}

var _ losses.LossFn = Loss

// AccuracyGraph returns, for each example, 1.0 if the most probable class matches the label and 0.0 otherwise.
// It can be used with metrics.NewMeanMetric.
func AccuracyGraph(_ *context.Context, labels, predictions []*Node) *Node {
	probs := predictions[0]
	want := ArgMax(labels[0], -1, dtypes.Int32)
	got := ArgMax(probs, -1, dtypes.Int32)
	return ConvertDType(Equal(want, got), probs.DType())
}

// LossGraph returns the categorical cross-entropy of each example.
// It can be used with metrics.NewMeanMetric.
func LossGraph(_ *context.Context, labels, predictions []*Node) *Node {
	return losses.CategoricalCrossEntropy(labels, predictions)
}

// NewOptimizer returns the Adam optimizer with the learning rate configured in the context.
// The learning rate decay is built by ModelGraph, see package schedule.
func NewOptimizer(ctx *context.Context) optimizers.Interface {
	learningRate := context.GetParamOr(ctx, optimizers.ParamLearningRate, 1e-4)
	return optimizers.Adam().LearningRate(learningRate).Done()
}
