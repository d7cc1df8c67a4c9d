// Copyright 2026 The maskdetector Authors. SPDX-License-Identifier: Apache-2.0

// Package dataset loads labeled images from a directory tree, augments them and serves them in
// batches as a train.Dataset.
//
// The expected layout is one subdirectory per category, each holding the image files of that category:
//
//	dataset/
//	  with_mask/
//	    0001.jpg
//	    ...
//	  without_mask/
//	    0001.jpg
//	    ...
package dataset

import (
	"image"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/ml/data"
	"github.com/maskdetector/maskdetector/internal/workerspool"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// DefaultExtensions are common image file extensions, to be used as LoaderConfig.Extensions to skip other files.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff"}

// Sample is one decoded image, resized to the loader's square resolution, and its category.
type Sample struct {
	Image *image.NRGBA
	Label string
	Path  string
}

// Dataset holds all the samples loaded, in the order of Categories and then of file names.
type Dataset struct {
	Samples    []Sample
	Categories []string
}

// Len returns the number of samples.
func (ds *Dataset) Len() int { return len(ds.Samples) }

// Labels returns the category of each sample.
func (ds *Dataset) Labels() []string {
	labels := make([]string, len(ds.Samples))
	for ii, sample := range ds.Samples {
		labels[ii] = sample.Label
	}
	return labels
}

// LoaderConfig configures Load.
type LoaderConfig struct {
	// Dir is the root directory, with one subdirectory per category.
	Dir string

	// Categories are the names of the subdirectories to read.
	Categories []string

	// ImageSize is the side of the square images after resizing.
	ImageSize int

	// Filter used for resizing. The zero value is nearest neighbor.
	Filter imaging.ResampleFilter

	// Extensions of the files to read, compared case-insensitively. Other files and subdirectories are
	// skipped with a warning. If empty, every entry of the category directories is read, and any entry that
	// is not a decodable image aborts the load.
	Extensions []string

	// Parallelism is the number of images decoded concurrently. Defaults to runtime.NumCPU().
	Parallelism int

	// Verbose displays a progress bar while loading.
	Verbose bool
}

type imageFile struct {
	path, label string
	size        int64
}

// Load reads, decodes and resizes every image under the configured category subdirectories.
//
// Any file that fails to decode aborts the load with an error naming the file.
// Files are only skipped if LoaderConfig.Extensions is set.
func Load(config LoaderConfig) (*Dataset, error) {
	if len(config.Categories) == 0 {
		return nil, errors.New("no categories configured for loading")
	}
	if config.ImageSize <= 0 {
		return nil, errors.Errorf("invalid image size %d", config.ImageSize)
	}
	filterExtensions := len(config.Extensions) > 0
	rootDir := data.ReplaceTildeInDir(config.Dir)

	var files []imageFile
	var totalSize int64
	for _, category := range config.Categories {
		dir := filepath.Join(rootDir, category)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list images of category %q", category)
		}
		for _, entry := range entries {
			if filterExtensions {
				ext := filepath.Ext(entry.Name())
				if entry.IsDir() || !slices.ContainsFunc(config.Extensions, func(e string) bool { return strings.EqualFold(e, ext) }) {
					klog.Warningf("Ignoring %q: not an image file extension", filepath.Join(dir, entry.Name()))
					continue
				}
			} else if entry.IsDir() {
				return nil, errors.Errorf("unexpected subdirectory %q in category %q", filepath.Join(dir, entry.Name()), category)
			}
			info, err := entry.Info()
			if err != nil {
				return nil, errors.Wrapf(err, "failed to stat %q", filepath.Join(dir, entry.Name()))
			}
			files = append(files, imageFile{path: filepath.Join(dir, entry.Name()), label: category, size: info.Size()})
			totalSize += info.Size()
		}
	}
	klog.V(1).Infof("Loading %s images (%s) from %q", humanize.Comma(int64(len(files))), humanize.Bytes(uint64(totalSize)), rootDir)

	var bar *progressbar.ProgressBar
	if config.Verbose {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("loading images"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish())
	}

	parallelism := config.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	samples := make([]Sample, len(files))
	loadErrors := make([]error, len(files))
	pool := workerspool.New(parallelism)
	for fileIdx, file := range files {
		pool.WaitToStart(func() {
			img, err := ReadImage(file.path, config.ImageSize, config.Filter)
			if err != nil {
				loadErrors[fileIdx] = err
			} else {
				samples[fileIdx] = Sample{Image: img, Label: file.label, Path: file.path}
			}
			if bar != nil {
				_ = bar.Add(1)
			}
		})
	}
	pool.Wait()
	if bar != nil {
		_ = bar.Finish()
	}
	for _, err := range loadErrors {
		if err != nil {
			return nil, err
		}
	}
	return &Dataset{Samples: samples, Categories: slices.Clone(config.Categories)}, nil
}

// ReadImage decodes the image file and resizes it to size x size, without preserving the aspect ratio.
func ReadImage(path string, size int, filter imaging.ResampleFilter) (*image.NRGBA, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read image %q", path)
	}
	return Resize(img, size, filter), nil
}

// Resize img to size x size, without preserving the aspect ratio.
func Resize(img image.Image, size int, filter imaging.ResampleFilter) *image.NRGBA {
	return imaging.Resize(img, size, size, filter)
}
