// Copyright 2026 The maskdetector Authors. SPDX-License-Identifier: Apache-2.0

// Package schedule implements an inverse time decay of the learning rate:
//
//	lr(step) = lr / (1 + decay*step)
//
// where step is the number of optimizer updates already applied (0 for the first update).
//
// See InverseTimeDecay for details and example of usage.
package schedule

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gopjrt/dtypes"
)

var (
	// ParamDecay is the context parameter with the decay rate per training step.
	//
	//   - 0: disables the decay (default).
	//   - Positive value: decay rate per step.
	//   - Negative value: the decay rate is set to learning_rate / num_epochs (see ParamNumEpochs).
	ParamDecay = "learning_rate_decay"

	// ParamNumEpochs is the number of training epochs, used when ParamDecay is negative.
	ParamNumEpochs = "num_epochs"
)

// Scope used by the schedule for its own step counter, under optimizers.Scope.
const Scope = "inverse_time_decay"

// Config is returned by InverseTimeDecay to configure the schedule. When finished
// configuring, call Done.
type Config struct {
	graph        *Graph
	ctx          *context.Context
	dtype        dtypes.DType
	learningRate float64
	decay        float64
}

// InverseTimeDecay creates a configuration of the learning rate decay.
// It must be called within the model graph function, with the root context, since the learning rate
// variable used by the optimizers lives in the root context.
//
// Example:
//
//	func modelGraph(ctx *context.Context, spec any, inputs []*Node) []*Node {
//		g := inputs[0].Graph()
//		schedule.InverseTimeDecay(ctx, g, dtypes.Float32).FromContext().Done()
//		...
//	}
func InverseTimeDecay(ctx *context.Context, graph *Graph, dtype dtypes.DType) *Config {
	return &Config{
		ctx:   ctx,
		graph: graph,
		dtype: dtype,
	}
}

// FromContext configures the schedule from the context, using the keys optimizers.ParamLearningRate,
// ParamDecay and ParamNumEpochs.
func (c *Config) FromContext() *Config {
	c.learningRate = context.GetParamOr(c.ctx, optimizers.ParamLearningRate, 0.0)
	c.decay = context.GetParamOr(c.ctx, ParamDecay, 0.0)
	if c.decay < 0 {
		numEpochs := context.GetParamOr(c.ctx, ParamNumEpochs, 0)
		if numEpochs <= 0 {
			exceptions.Panicf("%q is negative, so %q must be set to a positive value, got %d",
				ParamDecay, ParamNumEpochs, numEpochs)
		}
		c.decay = c.learningRate / float64(numEpochs)
	}
	return c
}

// LearningRate sets the initial learning rate.
func (c *Config) LearningRate(learningRate float64) *Config {
	c.learningRate = learningRate
	return c
}

// Decay sets the decay rate per step. If 0 the schedule is disabled.
func (c *Config) Decay(decay float64) *Config {
	c.decay = decay
	return c
}

// Done generates the computation graph that updates the learning rate at every training step.
// It is a no-op if the graph is not a training graph or if the decay is 0.
func (c *Config) Done() {
	ctx := c.ctx.Checked(false)
	if !ctx.IsTraining(c.graph) || c.decay == 0 {
		return
	}
	if c.learningRate <= 0 {
		exceptions.Panicf("learning rate not configured for schedule.InverseTimeDecay and also "+
			"not set in the context as parameter %q", optimizers.ParamLearningRate)
	}
	if c.decay < 0 {
		exceptions.Panicf("invalid negative decay %g for schedule.InverseTimeDecay", c.decay)
	}

	step := optimizers.IncrementGlobalStepGraph(ctx.In(optimizers.Scope).In(Scope), c.graph, c.dtype)
	step = MinusOne(step) // The counter starts at 1.
	lr := Inverse(OnePlus(MulScalar(step, c.decay)))
	lr = MulScalar(lr, c.learningRate)
	lrVar := optimizers.LearningRateVarWithValue(ctx, c.dtype, c.learningRate)
	lrVar.SetValueGraph(lr)
}

// At returns the learning rate after step updates, as computed by the graph.
func At(learningRate, decay float64, step int64) float64 {
	return learningRate / (1 + decay*float64(step))
}
