// Copyright 2026 The maskdetector Authors. SPDX-License-Identifier: Apache-2.0

// maskdetector trains a face mask detector by transfer learning: a pretrained InceptionV3 backbone,
// frozen, with a small classification head trained on top.
//
// The dataset directory must hold one sub-directory of images per category, by default "with_mask"
// and "without_mask". Model hyperparameters can be changed with -set, e.g.:
//
//	$ maskdetector -dataset=~/data/masks -set="num_epochs=5;batch_size=32;backbone=cnn"
//
// The backend is selected with the GOMLX_BACKEND environment variable.
package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"github.com/maskdetector/maskdetector/pipeline"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	defaultConfig = pipeline.DefaultConfig()

	flagDataset      = flag.String("dataset", defaultConfig.DataDir, "Directory with one sub-directory of images per category.")
	flagCategories   = flag.String("categories", strings.Join(defaultConfig.Categories, ","), "Comma-separated list of categories (sub-directories of -dataset).")
	flagTestFraction = flag.Float64("test_fraction", defaultConfig.TestFraction, "Fraction of the examples held out for evaluation.")
	flagSeed         = flag.Int64("seed", defaultConfig.Seed, "Seed for the split, shuffling and augmentation.")
	flagModel        = flag.String("model", defaultConfig.ModelDir, "Directory where to save the trained model. Previous contents are removed.")
	flagPlot         = flag.String("plot", defaultConfig.PlotPath, "Path of the training curves plot: \".svg\", \".png\", \".jpg\" or \".pdf\". Empty to skip.")
	flagHistory      = flag.String("history", "", "Path of a CSV file with the metrics of each epoch. Empty to skip.")
	flagParallelism  = flag.Int("load_parallelism", 0, "Number of images decoded concurrently. 0 uses all cores.")
	flagQuiet        = flag.Bool("quiet", false, "Disable progress bars.")
)

func main() {
	ctx := pipeline.CreateDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()
	_ = must.M1(commandline.ParseContextSettings(ctx, *settings))
	if !*flagQuiet {
		fmt.Println(commandline.SprintContextSettings(ctx))
	}

	config := pipeline.Config{
		DataDir:         *flagDataset,
		Categories:      strings.Split(*flagCategories, ","),
		TestFraction:    *flagTestFraction,
		Seed:            *flagSeed,
		ModelDir:        *flagModel,
		PlotPath:        *flagPlot,
		HistoryPath:     *flagHistory,
		LoadParallelism: *flagParallelism,
		Verbose:         !*flagQuiet,
	}
	backend := backends.MustNew()
	klog.V(1).Infof("Backend %q: %s", backend.Name(), backend.Description())
	result, err := pipeline.Run(backend, ctx, config)
	if err != nil {
		klog.Fatalf("Failed to train mask detector: %+v", err)
	}
	fmt.Printf("Model %s saved to %q\n", result.RunID, config.ModelDir)
}
