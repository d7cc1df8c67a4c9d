// Copyright 2026 The maskdetector Authors. SPDX-License-Identifier: Apache-2.0

package evaluate

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// ClassMetrics holds the classification metrics of one class, or an average over classes.
type ClassMetrics struct {
	Name                  string
	Precision, Recall, F1 float64
	Support               int
}

// Report is a classification report over a set of predictions.
// Divisions by zero (e.g. precision of a class never predicted) are reported as 0.
type Report struct {
	// PerClass metrics, in class index order.
	PerClass []ClassMetrics

	// Accuracy is the fraction of correct predictions.
	Accuracy float64

	// MacroAvg is the unweighted mean over classes, WeightedAvg is weighted by support.
	MacroAvg, WeightedAvg ClassMetrics

	// Confusion[trueClass][predictedClass] counts the predictions.
	Confusion [][]int

	// Total number of examples.
	Total int
}

// NewReport compares the true class indices with the predicted ones.
func NewReport(classes []string, trueIdx, predIdx []int) (*Report, error) {
	if len(trueIdx) != len(predIdx) {
		return nil, errors.Errorf("got %d true labels but %d predictions", len(trueIdx), len(predIdx))
	}
	if len(trueIdx) == 0 {
		return nil, errors.New("cannot create a classification report without examples")
	}
	numClasses := len(classes)
	r := &Report{
		PerClass:  make([]ClassMetrics, numClasses),
		Confusion: make([][]int, numClasses),
		Total:     len(trueIdx),
	}
	for ii := range r.Confusion {
		r.Confusion[ii] = make([]int, numClasses)
	}
	var correct int
	for ii, want := range trueIdx {
		got := predIdx[ii]
		if want < 0 || want >= numClasses || got < 0 || got >= numClasses {
			return nil, errors.Errorf("example #%d has class %d and prediction %d, but there are only %d classes",
				ii, want, got, numClasses)
		}
		r.Confusion[want][got]++
		if want == got {
			correct++
		}
	}
	r.Accuracy = float64(correct) / float64(r.Total)

	r.MacroAvg.Name = "macro avg"
	r.WeightedAvg.Name = "weighted avg"
	for class := range numClasses {
		truePositives := r.Confusion[class][class]
		var predicted, support int
		for other := range numClasses {
			predicted += r.Confusion[other][class]
			support += r.Confusion[class][other]
		}
		m := ClassMetrics{
			Name:      classes[class],
			Precision: safeDiv(float64(truePositives), float64(predicted)),
			Recall:    safeDiv(float64(truePositives), float64(support)),
			Support:   support,
		}
		m.F1 = safeDiv(2*m.Precision*m.Recall, m.Precision+m.Recall)
		r.PerClass[class] = m

		r.MacroAvg.Precision += m.Precision / float64(numClasses)
		r.MacroAvg.Recall += m.Recall / float64(numClasses)
		r.MacroAvg.F1 += m.F1 / float64(numClasses)
		weight := float64(support) / float64(r.Total)
		r.WeightedAvg.Precision += m.Precision * weight
		r.WeightedAvg.Recall += m.Recall * weight
		r.WeightedAvg.F1 += m.F1 * weight
	}
	r.MacroAvg.Support = r.Total
	r.WeightedAvg.Support = r.Total
	return r, nil
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// Plain renders the report as plain text, one line per class followed by accuracy and averages.
func (r *Report) Plain() string {
	nameWidth := len(r.WeightedAvg.Name)
	for _, m := range r.PerClass {
		nameWidth = max(nameWidth, len(m.Name))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%*s %9s %9s %9s %9s\n\n", nameWidth, "", "precision", "recall", "f1-score", "support")
	line := func(m ClassMetrics) {
		fmt.Fprintf(&sb, "%*s %9.2f %9.2f %9.2f %9d\n", nameWidth, m.Name, m.Precision, m.Recall, m.F1, m.Support)
	}
	for _, m := range r.PerClass {
		line(m)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "%*s %9s %9s %9.2f %9d\n", nameWidth, "accuracy", "", "", r.Accuracy, r.Total)
	line(r.MacroAvg)
	line(r.WeightedAvg)
	return sb.String()
}

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	summaryRowStyle = lipgloss.NewStyle().Bold(true).
			PaddingLeft(1).PaddingRight(1)
)

// String renders the report as a table for the terminal.
func (r *Report) String() string {
	numClasses := len(r.PerClass)
	table := lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			switch {
			case row < 0:
				s = headerRowStyle
				return
			case row >= numClasses:
				s = summaryRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			if col == 0 {
				s = s.Align(lipgloss.Left)
			} else {
				s = s.Align(lipgloss.Right)
			}
			return
		}).
		Headers("", "precision", "recall", "f1-score", "support")
	row := func(m ClassMetrics) {
		table.Row(m.Name, fmt.Sprintf("%.2f", m.Precision), fmt.Sprintf("%.2f", m.Recall),
			fmt.Sprintf("%.2f", m.F1), humanize.Comma(int64(m.Support)))
	}
	for _, m := range r.PerClass {
		row(m)
	}
	table.Row("accuracy", "", "", fmt.Sprintf("%.2f", r.Accuracy), humanize.Comma(int64(r.Total)))
	row(r.MacroAvg)
	row(r.WeightedAvg)
	return table.Render()
}
