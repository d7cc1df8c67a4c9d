// Copyright 2026 The maskdetector Authors. SPDX-License-Identifier: Apache-2.0

package model

import (
	"strings"

	"github.com/gomlx/gomlx/ml/context"
	"github.com/pkg/errors"
)

// Group of model parameters whose trainability is toggled together.
type Group string

const (
	GroupBackbone Group = BackboneScope
	GroupHead     Group = HeadScope
)

// Groups lists all parameter groups of the model.
var Groups = []Group{GroupBackbone, GroupHead}

// ScopePath returns the absolute scope of the variables of the group.
func (g Group) ScopePath() string {
	return context.ScopeSeparator + Scope + context.ScopeSeparator + string(g)
}

// ParameterGroup describes the variables of one group.
type ParameterGroup struct {
	Group     Group
	Variables []*context.Variable

	// Trainable is true if all variables of the group are trainable.
	Trainable bool
}

// NumParameters returns the total number of scalar values of the group variables.
func (pg ParameterGroup) NumParameters() int {
	var total int
	for _, v := range pg.Variables {
		total += v.Shape().Size()
	}
	return total
}

// inScope returns whether the variable is in the scope or any of its sub-scopes.
func inScope(v *context.Variable, scope string) bool {
	return v.Scope() == scope || strings.HasPrefix(v.Scope(), scope+context.ScopeSeparator)
}

// ParameterGroups returns the variables of each group of the model, in the order of Groups.
//
// The variables only exist after the model graph has been built at least once (or loaded from a checkpoint).
func ParameterGroups(ctx *context.Context) []ParameterGroup {
	groups := make([]ParameterGroup, len(Groups))
	for ii, group := range Groups {
		groups[ii].Group = group
		groups[ii].Trainable = true
	}
	ctx.EnumerateVariables(func(v *context.Variable) {
		for ii, group := range Groups {
			if inScope(v, group.ScopePath()) {
				groups[ii].Variables = append(groups[ii].Variables, v)
				groups[ii].Trainable = groups[ii].Trainable && v.Trainable
				return
			}
		}
	})
	for ii := range groups {
		if len(groups[ii].Variables) == 0 {
			groups[ii].Trainable = false
		}
	}
	return groups
}

// SetGroupTrainable sets the trainability of every existing variable of the group.
//
// To make it permanent across graph building (ModelGraph re-applies the configuration for the backbone),
// set the ParamBackboneTrainable hyperparameter instead.
func SetGroupTrainable(ctx *context.Context, group Group, trainable bool) error {
	found := false
	for _, g := range Groups {
		if g == group {
			found = true
			break
		}
	}
	if !found {
		return errors.Errorf("unknown parameter group %q, valid groups are %q", group, Groups)
	}
	setTrainableInScope(ctx, group.ScopePath(), trainable)
	return nil
}

// Freeze marks every existing backbone variable as not trainable and sets ParamBackboneTrainable to false,
// so the backbone stays frozen in future graphs built by ModelGraph.
func Freeze(ctx *context.Context) {
	ctx.SetParam(ParamBackboneTrainable, false)
	setTrainableInScope(ctx, GroupBackbone.ScopePath(), false)
}

func setTrainableInScope(ctx *context.Context, scope string, trainable bool) {
	ctx.EnumerateVariables(func(v *context.Variable) {
		if inScope(v, scope) {
			v.SetTrainable(trainable)
		}
	})
}
