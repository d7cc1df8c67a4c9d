package model

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

func newTestContext() *context.Context {
	ctx := context.New()
	ctx.SetParams(map[string]any{
		ParamBackbone:        "cnn",
		ParamClassNames:      []string{"with_mask", "without_mask"},
		ParamImageSize:       16,
		ParamCNNNumLayers:    2,
		ParamCNNNumFilters:   4,
		ParamHeadHiddenNodes: 8,
	})
	return ctx
}

func randomImages(batchSize, size int) *tensors.Tensor {
	values := make([]float32, batchSize*size*size*3)
	for ii := range values {
		values[ii] = float32((ii*7919)%255) / 255.0
	}
	return tensors.FromFlatDataAndDimensions(values, batchSize, size, size, 3)
}

func TestModelGraph(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := newTestContext()
	exec := context.NewExec(backend, ctx, func(ctx *context.Context, images *Node) *Node {
		return ModelGraph(ctx, nil, []*Node{images})[0]
	})
	var outputs []*tensors.Tensor
	require.NotPanics(t, func() { outputs = exec.Call(randomImages(3, 16)) })
	probs := outputs[0].Value().([][]float32)
	require.Len(t, probs, 3)
	for _, row := range probs {
		require.Len(t, row, 2)
		assert.InDelta(t, 1.0, float64(row[0]+row[1]), 1e-5)
	}

	// Inference is deterministic: dropout is only active during training.
	again := exec.Call(randomImages(3, 16))[0].Value().([][]float32)
	assert.Equal(t, probs, again)
}

func TestParameterGroups(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := newTestContext()
	exec := context.NewExec(backend, ctx, func(ctx *context.Context, images *Node) *Node {
		return ModelGraph(ctx, nil, []*Node{images})[0]
	})
	require.NotPanics(t, func() { exec.Call(randomImages(1, 16)) })

	groups := ParameterGroups(ctx)
	require.Len(t, groups, 2)
	backbone, head := groups[0], groups[1]
	assert.Equal(t, GroupBackbone, backbone.Group)
	assert.Equal(t, "/model/backbone", GroupBackbone.ScopePath())
	assert.NotEmpty(t, backbone.Variables)
	assert.False(t, backbone.Trainable)
	assert.Equal(t, GroupHead, head.Group)
	assert.Len(t, head.Variables, 4) // Weights and biases of 2 dense layers.
	assert.True(t, head.Trainable)
	// hidden: 4*8+8, readout: 8*2+2
	assert.Equal(t, 4*8+8+8*2+2, head.NumParameters())
	for _, v := range backbone.Variables {
		assert.False(t, v.Trainable, "variable %s::%s", v.Scope(), v.Name())
	}

	require.NoError(t, SetGroupTrainable(ctx, GroupBackbone, true))
	assert.True(t, ParameterGroups(ctx)[0].Trainable)
	require.NoError(t, SetGroupTrainable(ctx, GroupHead, false))
	assert.False(t, ParameterGroups(ctx)[1].Trainable)
	require.Error(t, SetGroupTrainable(ctx, Group("neck"), false))

	Freeze(ctx)
	assert.False(t, ParameterGroups(ctx)[0].Trainable)
	assert.False(t, context.GetParamOr(ctx, ParamBackboneTrainable, true))
}

func TestModelGraphErrors(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	for _, params := range []map[string]any{
		{ParamBackbone: "resnet"},
		{ParamClassNames: []string{"only_one"}},
	} {
		ctx := newTestContext()
		ctx.SetParams(params)
		exec := context.NewExec(backend, ctx, func(ctx *context.Context, images *Node) *Node {
			return ModelGraph(ctx, nil, []*Node{images})[0]
		})
		require.Panics(t, func() { exec.Call(randomImages(1, 16)) }, "params=%v", params)
	}
}

func TestMetricsGraphs(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	exec := MustNewExec(backend, func(labels, probs *Node) (accuracy, loss, meanLoss *Node) {
		accuracy = AccuracyGraph(nil, []*Node{labels}, []*Node{probs})
		loss = LossGraph(nil, []*Node{labels}, []*Node{probs})
		meanLoss = Loss([]*Node{labels}, []*Node{probs})
		return
	})
	labels := [][]float32{{1, 0}, {0, 1}, {0, 1}}
	probs := [][]float32{{0.9, 0.1}, {0.8, 0.2}, {0.3, 0.7}}
	outputs := exec.Call(labels, probs)
	assert.Equal(t, []float32{1, 0, 1}, outputs[0].Value())
	losses := outputs[1].Value().([]float32)
	assert.InDelta(t, 0.105361, losses[0], 1e-5)
	assert.InDelta(t, 1.609438, losses[1], 1e-5)
	assert.InDelta(t, 0.356675, losses[2], 1e-5)
	assert.InDelta(t, (0.105361+1.609438+0.356675)/3, tensors.ToScalar[float32](outputs[2]), 1e-5)
}

func TestInceptionV3Backbone(t *testing.T) {
	if testing.Short() {
		fmt.Println("- model: TestInceptionV3Backbone disabled for go test --short because it requires downloading a large file with weights.")
		return
	}
	weightsDir := filepath.Join(os.TempDir(), "maskdetector_inceptionv3")
	ctx := newTestContext()
	ctx.SetParams(map[string]any{
		ParamBackbone:            "inception",
		ParamInceptionWeightsDir: weightsDir,
	})
	require.NoError(t, Prepare(ctx))
	backend := graphtest.BuildTestBackend()
	exec := context.NewExec(backend, ctx, func(ctx *context.Context, images *Node) *Node {
		return ModelGraph(ctx, nil, []*Node{images})[0]
	})
	var outputs []*tensors.Tensor
	require.NotPanics(t, func() { outputs = exec.Call(randomImages(2, 80)) })
	assert.Equal(t, []int{2, 2}, outputs[0].Shape().Dimensions)
	for _, group := range ParameterGroups(ctx) {
		if group.Group == GroupBackbone {
			assert.False(t, group.Trainable)
			assert.Greater(t, group.NumParameters(), 20_000_000)
		}
	}
}
