package schedule

import (
	"testing"

	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

func learningRateExec(t *testing.T, ctx *context.Context, training bool) func() float64 {
	backend := graphtest.BuildTestBackend()
	exec := context.NewExec(backend, ctx, func(ctx *context.Context, x *Node) *Node {
		g := x.Graph()
		ctx.SetTraining(g, training)
		InverseTimeDecay(ctx, g, dtypes.Float32).FromContext().Done()
		lr := optimizers.LearningRateVar(ctx, dtypes.Float32, 0).ValueGraph(g)
		return Add(lr, x)
	})
	return func() float64 {
		var outputs []*tensors.Tensor
		require.NotPanics(t, func() { outputs = exec.Call(float32(0)) })
		return float64(tensors.ToScalar[float32](outputs[0]))
	}
}

func TestInverseTimeDecay(t *testing.T) {
	ctx := context.New()
	ctx.SetParams(map[string]any{
		optimizers.ParamLearningRate: 0.1,
		ParamDecay:                   -1.0,
		ParamNumEpochs:               4,
	})
	step := learningRateExec(t, ctx, true)
	for ii := range 5 {
		assert.InDelta(t, At(0.1, 0.1/4, int64(ii)), step(), 1e-6, "step %d", ii)
	}
}

func TestInverseTimeDecayDisabled(t *testing.T) {
	// No decay configured.
	ctx := context.New()
	ctx.SetParams(map[string]any{optimizers.ParamLearningRate: 0.01})
	step := learningRateExec(t, ctx, true)
	for range 3 {
		assert.InDelta(t, 0.01, step(), 1e-7)
	}

	// Inference graphs don't change the learning rate.
	ctx = context.New()
	ctx.SetParams(map[string]any{optimizers.ParamLearningRate: 0.01, ParamDecay: 0.5})
	step = learningRateExec(t, ctx, false)
	for range 3 {
		assert.InDelta(t, 0.01, step(), 1e-7)
	}
}

func TestAt(t *testing.T) {
	assert.Equal(t, 1e-4, At(1e-4, 5e-6, 0))
	assert.InDelta(t, 1e-4/1.5, At(1e-4, 0.5, 1), 1e-12)
}
