// Copyright 2026 The maskdetector Authors. SPDX-License-Identifier: Apache-2.0

// Package persist writes the artifacts of a training run: the model checkpoint, the training curves plot
// and the per-epoch history table.
package persist

import (
	"os"

	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// SaveModel writes all variables of ctx (frozen backbone included) and its hyperparameters to dir,
// replacing any previous contents.
//
// The checkpoint is self-describing: the hyperparameters stored hold everything needed to rebuild the
// model graph, see package classifier. Parameters listed in excludeParams (e.g. local paths) are not saved.
func SaveModel(ctx *context.Context, dir string, excludeParams ...string) error {
	if dir == "" {
		return errors.New("model directory not given")
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "failed to remove previous model in %q", dir)
	}
	handler, err := checkpoints.Build(ctx).
		Dir(dir).
		Keep(1).
		ExcludeParams(excludeParams...).
		Done()
	if err != nil {
		return errors.WithMessagef(err, "failed to create checkpoint in %q", dir)
	}
	if err = handler.Save(); err != nil {
		return errors.WithMessagef(err, "failed to save model to %q", dir)
	}
	klog.V(1).Infof("Model saved to %q", dir)
	return nil
}
