// Copyright 2026 The maskdetector Authors. SPDX-License-Identifier: Apache-2.0

// Package synthetic generates small labeled image directories, used for tests and demos
// that must run without the real dataset.
package synthetic

import (
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// WriteDataset creates dir/<category>/NNNN.png with perCategory images for each category.
//
// Each category gets its own background hue and the first category has a light rectangle
// covering the lower half of the "face", so a classifier can separate them easily.
// Images are size x size, and generated deterministically from seed.
func WriteDataset(dir string, categories []string, perCategory, size int, seed int64) error {
	rng := rand.New(rand.NewSource(seed))
	for categoryIdx, category := range categories {
		categoryDir := filepath.Join(dir, category)
		if err := os.MkdirAll(categoryDir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create %q", categoryDir)
		}
		for ii := range perCategory {
			img := Face(size, categoryIdx, rng)
			path := filepath.Join(categoryDir, fmt.Sprintf("%04d.png", ii))
			if err := imaging.Save(img, path); err != nil {
				return errors.Wrapf(err, "failed to save %q", path)
			}
		}
	}
	return nil
}

// Face draws a noisy square image for the given category index.
func Face(size, categoryIdx int, rng *rand.Rand) *image.NRGBA {
	base := color.NRGBA{
		R: uint8(200 - 60*(categoryIdx%3)),
		G: uint8(150 + 40*(categoryIdx%2)),
		B: uint8(120 + 50*((categoryIdx+1)%2)),
		A: 255,
	}
	img := imaging.New(size, size, base)
	for y := range size {
		for x := range size {
			c := img.NRGBAAt(x, y)
			if categoryIdx == 0 && y >= size/2 && x >= size/6 && x < size-size/6 {
				c = color.NRGBA{R: 235, G: 240, B: 245, A: 255}
			}
			noise := rng.Intn(31) - 15
			c.R = clampUint8(int(c.R) + noise)
			c.G = clampUint8(int(c.G) + noise)
			c.B = clampUint8(int(c.B) + noise)
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func clampUint8(v int) uint8 {
	return uint8(min(max(v, 0), 255))
}
