// Copyright 2026 The maskdetector Authors. SPDX-License-Identifier: Apache-2.0

package persist

import (
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/maskdetector/maskdetector/trainer"
	"github.com/pkg/errors"
)

// EpochColumn is the name of the column with the epoch number, starting from 1.
const EpochColumn = "epoch"

// HistoryDataFrame converts the training history to a table with one row per epoch.
func HistoryDataFrame(history *trainer.History) dataframe.DataFrame {
	epochs := make([]int, history.Len())
	for ii := range epochs {
		epochs[ii] = ii + 1
	}
	columns := []series.Series{series.New(epochs, series.Int, EpochColumn)}
	for _, curve := range Curves(history) {
		columns = append(columns, series.New(curve.Values, series.Float, curve.Name))
	}
	return dataframe.New(columns...)
}

// SaveHistoryCSV writes the training history as a CSV file, with a header and one row per epoch.
func SaveHistoryCSV(history *trainer.History, path string) error {
	df := HistoryDataFrame(history)
	if df.Err != nil {
		return errors.Wrap(df.Err, "failed to convert training history")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create history file %q", path)
	}
	if err = df.WriteCSV(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to write history to %q", path)
	}
	return errors.Wrapf(f.Close(), "failed to close history file %q", path)
}

// LoadHistoryCSV reads back a history written by SaveHistoryCSV.
func LoadHistoryCSV(path string) (*trainer.History, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open history file %q", path)
	}
	defer func() { _ = f.Close() }()
	df := dataframe.ReadCSV(f)
	if df.Err != nil {
		return nil, errors.Wrapf(df.Err, "failed to parse history file %q", path)
	}
	history := &trainer.History{}
	targets := map[string]*[]float64{
		"train_loss": &history.Loss,
		"val_loss":   &history.ValLoss,
		"train_acc":  &history.Accuracy,
		"val_acc":    &history.ValAccuracy,
	}
	for name, target := range targets {
		col := df.Col(name)
		if col.Err != nil {
			return nil, errors.Wrapf(col.Err, "history file %q", path)
		}
		*target = col.Float()
	}
	return history, nil
}
