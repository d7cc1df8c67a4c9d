// Copyright 2026 The maskdetector Authors. SPDX-License-Identifier: Apache-2.0

package model

import (
	"github.com/gomlx/gomlx/examples/inceptionv3"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/pkg/errors"
)

const (
	// ParamInceptionWeightsDir is the directory where the InceptionV3 pretrained weights are downloaded to.
	ParamInceptionWeightsDir = "inception_weights_dir"

	// ParamInceptionPretrained selects whether to load the pretrained weights. Defaults to true.
	// It is disabled when rebuilding a saved model, since the weights are already in the checkpoint.
	ParamInceptionPretrained = "inception_pretrained"

	// ParamCNNNumLayers is the number of strided convolutions of the "cnn" backbone.
	ParamCNNNumLayers = "cnn_num_layers"

	// ParamCNNNumFilters is the number of channels of each convolution of the "cnn" backbone.
	ParamCNNNumFilters = "cnn_num_filters"
)

// Prepare is executed before training: it downloads the pretrained weights required by the
// backbone configured in the context, if any.
func Prepare(ctx *context.Context) error {
	if context.GetParamOr(ctx, ParamBackbone, "inception") != "inception" ||
		!context.GetParamOr(ctx, ParamInceptionPretrained, true) {
		return nil
	}
	weightsDir := context.GetParamOr(ctx, ParamInceptionWeightsDir, "")
	if weightsDir == "" {
		return errors.Errorf("context parameter %q must be set to download the InceptionV3 weights", ParamInceptionWeightsDir)
	}
	if err := inceptionv3.DownloadAndUnpackWeights(weightsDir); err != nil {
		return errors.WithMessagef(err, "failed to download InceptionV3 weights to %q", weightsDir)
	}
	return nil
}

// InceptionV3Backbone uses the InceptionV3 model, without the classification top and without pooling,
// with the ImageNet pretrained weights from Keras.
//
// The images must be at least 75x75. It returns features shaped `[batch_size, height, width, 2048]`.
func InceptionV3Backbone(ctx *context.Context, images *Node) *Node {
	var weightsDir string
	if context.GetParamOr(ctx, ParamInceptionPretrained, true) {
		weightsDir = context.GetParamOr(ctx, ParamInceptionWeightsDir, "")
	}
	return inceptionv3.BuildGraph(ctx, images).
		PreTrained(weightsDir).
		SetPooling(inceptionv3.NoPooling).
		ClassificationTop(false).
		Trainable(context.GetParamOr(ctx, ParamBackboneTrainable, false)).
		Done()
}

// CNNBackbone is a small convolutional feature extractor trained from scratch, with no download needed.
// Each layer is a 3x3 convolution with stride 2 followed by a ReLU.
//
// It returns features shaped `[batch_size, height/2^num_layers, width/2^num_layers, num_filters]`.
func CNNBackbone(ctx *context.Context, images *Node) *Node {
	numLayers := context.GetParamOr(ctx, ParamCNNNumLayers, 3)
	numFilters := context.GetParamOr(ctx, ParamCNNNumFilters, 16)
	x := images
	for layerIdx := range numLayers {
		ctx := ctx.Inf("%03d_conv", layerIdx)
		x = layers.Convolution(ctx, x).Filters(numFilters).KernelSize(3).Strides(2).PadSame().Done()
		x = activations.Relu(x)
	}
	return x
}
