// Copyright 2026 The maskdetector Authors. SPDX-License-Identifier: Apache-2.0

package persist

import (
	"os"
	"path/filepath"
	"strings"

	mg "github.com/erkkah/margaid"
	"github.com/maskdetector/maskdetector/trainer"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Labels of the training curves plot.
const (
	PlotTitle  = "Training Loss and Accuracy"
	PlotXLabel = "Epoch #"
	PlotYLabel = "Loss/Accuracy"
)

// Curve is one named series of the training curves plot, with one value per epoch.
type Curve struct {
	Name   string
	Values []float64
}

// Curves returns the series plotted for a history, in the order they are drawn.
func Curves(history *trainer.History) []Curve {
	return []Curve{
		{"train_loss", history.Loss},
		{"val_loss", history.ValLoss},
		{"train_acc", history.Accuracy},
		{"val_acc", history.ValAccuracy},
	}
}

// SavePlot draws the training curves of history, by epoch, to path.
//
// The format is given by the file extension: ".svg" is rendered with Margaid, any other format
// supported by gonum plot (".png", ".jpg", ".pdf", ".tif", ...) with gonum plot.
func SavePlot(history *trainer.History, path string) error {
	if history.Len() == 0 {
		return errors.New("cannot plot an empty training history")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create directory for plot %q", path)
		}
	}
	if strings.ToLower(filepath.Ext(path)) == ".svg" {
		return saveMargaidPlot(history, path)
	}
	return saveGonumPlot(history, path)
}

func saveGonumPlot(history *trainer.History, path string) error {
	p := plot.New()
	p.Title.Text = PlotTitle
	p.X.Label.Text = PlotXLabel
	p.Y.Label.Text = PlotYLabel
	p.Legend.Left = true
	p.Legend.Top = false
	p.Add(plotter.NewGrid())

	for ii, curve := range Curves(history) {
		points := make(plotter.XYs, len(curve.Values))
		for epoch, value := range curve.Values {
			points[epoch].X = float64(epoch)
			points[epoch].Y = value
		}
		line, err := plotter.NewLine(points)
		if err != nil {
			return errors.Wrapf(err, "invalid values for curve %q", curve.Name)
		}
		line.Color = plotutil.Color(ii)
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(curve.Name, line)
	}
	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "failed to save plot to %q", path)
	}
	return nil
}

func saveMargaidPlot(history *trainer.History, path string) error {
	curves := Curves(history)
	allSeries := make([]*mg.Series, 0, len(curves))
	allPoints := mg.NewSeries()
	for _, curve := range curves {
		s := mg.NewSeries(mg.Titled(curve.Name))
		for epoch, value := range curve.Values {
			v := mg.MakeValue(float64(epoch), value)
			s.Add(v)
			allPoints.Add(v)
		}
		allSeries = append(allSeries, s)
	}
	diagram := mg.New(800, 600,
		mg.WithAutorange(mg.XAxis, allSeries...),
		mg.WithAutorange(mg.YAxis, allSeries...),
		mg.WithInset(70),
		mg.WithPadding(2),
		mg.WithColorScheme(90),
		mg.WithBackgroundColor("#f8f8f8"),
	)
	for _, s := range allSeries {
		diagram.Line(s, mg.UsingAxes(mg.XAxis, mg.YAxis), mg.UsingMarker("square"), mg.UsingStrokeWidth(2))
	}
	diagram.Axis(allPoints, mg.XAxis, diagram.ValueTicker('f', 0, 10), false, PlotXLabel)
	diagram.Axis(allPoints, mg.YAxis, diagram.ValueTicker('f', 2, 10), true, PlotYLabel)
	diagram.Frame()
	diagram.Title(PlotTitle)
	diagram.Legend(mg.BottomLeft)

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create plot file %q", path)
	}
	if err = diagram.Render(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to render plot to %q", path)
	}
	return errors.Wrapf(f.Close(), "failed to close plot file %q", path)
}
