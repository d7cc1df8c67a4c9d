// Copyright 2026 The maskdetector Authors. SPDX-License-Identifier: Apache-2.0

// Package labels converts category names to one-hot encoded vectors and back.
//
// The mapping is fixed when the Binarizer is fitted: classes are the sorted unique
// category names, and the class index is the position in that sorted list.
package labels

import (
	"slices"

	"github.com/pkg/errors"
)

// Binarizer maps category names to class indices and one-hot vectors.
// It is immutable after Fit, and safe for concurrent use.
type Binarizer struct {
	classes []string
	index   map[string]int
}

// Fit creates a Binarizer from the labels observed in a dataset.
//
// It returns an error if fewer than 2 distinct labels are given, since a classifier
// can't be trained on a single class.
func Fit(observed []string) (*Binarizer, error) {
	index := make(map[string]int)
	for _, label := range observed {
		index[label] = -1
	}
	if len(index) < 2 {
		return nil, errors.Errorf("labels.Fit requires at least 2 distinct labels, got %d (%q)", len(index), observed)
	}
	classes := make([]string, 0, len(index))
	for label := range index {
		classes = append(classes, label)
	}
	slices.Sort(classes)
	for ii, label := range classes {
		index[label] = ii
	}
	return &Binarizer{classes: classes, index: index}, nil
}

// FromClasses recreates a Binarizer from an already sorted list of classes, usually
// the ones stored with a saved model.
func FromClasses(classes []string) (*Binarizer, error) {
	if !slices.IsSorted(classes) {
		return nil, errors.Errorf("classes must be sorted, got %q", classes)
	}
	b, err := Fit(classes)
	if err != nil {
		return nil, err
	}
	if len(b.classes) != len(classes) {
		return nil, errors.Errorf("classes must be unique, got %q", classes)
	}
	return b, nil
}

// Classes returns a copy of the class names, in index order.
func (b *Binarizer) Classes() []string {
	return slices.Clone(b.classes)
}

// NumClasses is the number of columns of the one-hot encoding.
func (b *Binarizer) NumClasses() int {
	return len(b.classes)
}

// Index returns the class index of label.
func (b *Binarizer) Index(label string) (int, error) {
	idx, found := b.index[label]
	if !found {
		return 0, errors.Errorf("unknown label %q, known classes are %q", label, b.classes)
	}
	return idx, nil
}

// Indices converts a list of labels to their class indices.
func (b *Binarizer) Indices(labels []string) ([]int, error) {
	indices := make([]int, len(labels))
	for ii, label := range labels {
		idx, err := b.Index(label)
		if err != nil {
			return nil, errors.WithMessagef(err, "label #%d", ii)
		}
		indices[ii] = idx
	}
	return indices, nil
}

// OneHot returns the one-hot vector for the class index idx.
func (b *Binarizer) OneHot(idx int) []float32 {
	v := make([]float32, len(b.classes))
	v[idx] = 1
	return v
}

// Transform encodes labels into a `[N][NumClasses]` one-hot matrix.
//
// The encoding always has one column per class, including the 2 classes case.
func (b *Binarizer) Transform(labels []string) ([][]float32, error) {
	indices, err := b.Indices(labels)
	if err != nil {
		return nil, err
	}
	encoded := make([][]float32, len(indices))
	for ii, idx := range indices {
		encoded[ii] = b.OneHot(idx)
	}
	return encoded, nil
}

// Decode returns the class name for the class index idx.
func (b *Binarizer) Decode(idx int) (string, error) {
	if idx < 0 || idx >= len(b.classes) {
		return "", errors.Errorf("class index %d out of range [0, %d)", idx, len(b.classes))
	}
	return b.classes[idx], nil
}

// DecodeArgMax returns the class with the largest value in vector, which can be a
// one-hot encoding or a probability distribution. Ties go to the lowest index.
func (b *Binarizer) DecodeArgMax(vector []float32) (string, error) {
	if len(vector) != len(b.classes) {
		return "", errors.Errorf("vector has %d values, but there are %d classes", len(vector), len(b.classes))
	}
	return b.classes[ArgMax(vector)], nil
}

// ArgMax returns the index of the largest value. Ties go to the lowest index.
func ArgMax(vector []float32) int {
	best := 0
	for ii, v := range vector {
		if v > vector[best] {
			best = ii
		}
	}
	return best
}
