// Copyright 2026 The maskdetector Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"image"
	"io"
	"math/rand"
	"slices"
	"sync"

	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/types/tensors"
	timage "github.com/gomlx/gomlx/types/tensors/images"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Batches implements train.Dataset over a subset of the samples of a Dataset.
//
// Each Yield returns:
//
//   - spec: the *Batches itself.
//   - inputs: one tensor with the images, shaped `[batch_size, height, width, 3]`, with values from 0.0 to 1.0.
//   - labels: one tensor with the one-hot encoded classes, shaped `[batch_size, num_classes]`.
//
// Training batches (see Shuffle, DropIncompleteBatch and WithAugmentation) are usually
// reshuffled and augmented, while evaluation batches keep the order of the subset.
type Batches struct {
	name       string
	samples    []Sample
	classIdx   []int
	numClasses int
	batchSize  int
	toTensor   *timage.ToTensorConfig

	dropIncomplete bool
	augmenter      *Augmenter

	// muOrder protects order, next and shuffle.
	muOrder sync.Mutex
	order   []int
	next    int
	shuffle *rand.Rand
}

var (
	assertBatchesIsTrainDataset *Batches
	_                           train.Dataset = assertBatchesIsTrainDataset
)

// NewBatches creates a dataset that yields the samples of ds selected by indices, in batches of batchSize.
//
// classIdx holds the class index of each sample in ds (not only the selected ones), and numClasses is the
// width of the one-hot labels.
func NewBatches(name string, ds *Dataset, indices, classIdx []int, numClasses, batchSize int) (*Batches, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("invalid batch size %d for dataset %q", batchSize, name)
	}
	if len(classIdx) != ds.Len() {
		return nil, errors.Errorf("dataset %q has %d samples but %d class indices were given", name, ds.Len(), len(classIdx))
	}
	b := &Batches{
		name:       name,
		samples:    make([]Sample, len(indices)),
		classIdx:   make([]int, len(indices)),
		numClasses: numClasses,
		batchSize:  batchSize,
		toTensor:   timage.ToTensor(dtypes.Float32).MaxValue(255.0),
	}
	for ii, sampleIdx := range indices {
		if sampleIdx < 0 || sampleIdx >= ds.Len() {
			return nil, errors.Errorf("sample index %d out of range for dataset %q with %d samples", sampleIdx, name, ds.Len())
		}
		class := classIdx[sampleIdx]
		if class < 0 || class >= numClasses {
			return nil, errors.Errorf("sample %q has class index %d, but there are only %d classes",
				ds.Samples[sampleIdx].Path, class, numClasses)
		}
		b.samples[ii] = ds.Samples[sampleIdx]
		b.classIdx[ii] = class
	}
	b.Reset()
	return b, nil
}

// Shuffle the order of the samples at every Reset, using a random number generator initialized with seed.
// It returns itself, to allow chain of method calls.
func (b *Batches) Shuffle(seed int64) *Batches {
	b.muOrder.Lock()
	b.shuffle = rand.New(rand.NewSource(seed))
	b.muOrder.Unlock()
	b.Reset()
	return b
}

// DropIncompleteBatch configures whether the last batch of an epoch, if smaller than the batch size, is dropped.
// It returns itself, to allow chain of method calls.
func (b *Batches) DropIncompleteBatch(drop bool) *Batches {
	b.dropIncomplete = drop
	return b
}

// WithAugmentation applies the augmenter to every image yielded. Set to nil to disable.
// It returns itself, to allow chain of method calls.
func (b *Batches) WithAugmentation(augmenter *Augmenter) *Batches {
	b.augmenter = augmenter
	return b
}

// Augmented returns whether the images yielded are randomly augmented.
func (b *Batches) Augmented() bool { return b.augmenter != nil }

// Name implements train.Dataset.
func (b *Batches) Name() string { return b.name }

// Len returns the number of samples in the subset.
func (b *Batches) Len() int { return len(b.samples) }

// BatchSize returns the configured batch size.
func (b *Batches) BatchSize() int { return b.batchSize }

// StepsPerEpoch returns the number of batches yielded until io.EOF.
func (b *Batches) StepsPerEpoch() int {
	if b.dropIncomplete {
		return len(b.samples) / b.batchSize
	}
	return (len(b.samples) + b.batchSize - 1) / b.batchSize
}

// ClassIndices returns the class index of each sample of the subset, in the order they are yielded
// when not shuffled.
func (b *Batches) ClassIndices() []int {
	return b.classIdx
}

// Reset implements train.Dataset. It restarts the epoch, reshuffling if configured.
func (b *Batches) Reset() {
	b.muOrder.Lock()
	defer b.muOrder.Unlock()
	if len(b.order) != len(b.samples) {
		b.order = make([]int, len(b.samples))
	}
	for ii := range b.order {
		b.order[ii] = ii
	}
	if b.shuffle != nil {
		b.shuffle.Shuffle(len(b.order), func(i, j int) { b.order[i], b.order[j] = b.order[j], b.order[i] })
	}
	b.next = 0
}

// nextIndices reserves the sample indices of the next batch.
func (b *Batches) nextIndices() ([]int, error) {
	b.muOrder.Lock()
	defer b.muOrder.Unlock()
	remaining := len(b.order) - b.next
	if remaining <= 0 || (b.dropIncomplete && remaining < b.batchSize) {
		return nil, io.EOF
	}
	n := min(remaining, b.batchSize)
	indices := slices.Clone(b.order[b.next : b.next+n])
	b.next += n
	return indices, nil
}

// Yield implements train.Dataset. It is safe for concurrent use, so it can be wrapped with data.Parallel.
func (b *Batches) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	indices, err := b.nextIndices()
	if err != nil {
		return
	}
	images := make([]image.Image, len(indices))
	oneHot := make([][]float32, len(indices))
	for ii, sampleIdx := range indices {
		img := b.samples[sampleIdx].Image
		if b.augmenter != nil {
			img = b.augmenter.Augment(img)
		}
		images[ii] = img
		oneHot[ii] = make([]float32, b.numClasses)
		oneHot[ii][b.classIdx[sampleIdx]] = 1
	}
	spec = b
	inputs = []*tensors.Tensor{b.toTensor.Batch(images)}
	labels = []*tensors.Tensor{tensors.FromValue(oneHot)}
	return
}
