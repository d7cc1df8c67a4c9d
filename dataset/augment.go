// Copyright 2026 The maskdetector Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// AugmentationConfig holds the ranges of the random transformations applied to training images.
// A zero value disables the corresponding transformation.
type AugmentationConfig struct {
	// RotationDegrees: rotation angle uniformly sampled from [-RotationDegrees, +RotationDegrees].
	RotationDegrees float64

	// Zoom: each axis is scaled by a factor uniformly sampled from [1-Zoom, 1+Zoom].
	Zoom float64

	// WidthShift, HeightShift: translation as a fraction of the image width/height.
	WidthShift, HeightShift float64

	// ShearDegrees: shear angle uniformly sampled from [-ShearDegrees, +ShearDegrees].
	ShearDegrees float64

	// HorizontalFlip flips half the images horizontally.
	HorizontalFlip bool
}

// DefaultAugmentation is the augmentation used for training mask detection.
var DefaultAugmentation = AugmentationConfig{
	RotationDegrees: 20,
	Zoom:            0.15,
	WidthShift:      0.2,
	HeightShift:     0.2,
	ShearDegrees:    0.15,
	HorizontalFlip:  true,
}

// IsIdentity returns whether the configuration doesn't change images.
func (c AugmentationConfig) IsIdentity() bool {
	return c.RotationDegrees == 0 && c.Zoom == 0 && c.WidthShift == 0 && c.HeightShift == 0 &&
		c.ShearDegrees == 0 && !c.HorizontalFlip
}

// Augmenter applies random affine transformations to images. Points falling outside the
// source image are filled with the nearest edge pixel.
//
// It is safe for concurrent use.
type Augmenter struct {
	config AugmentationConfig

	muRng sync.Mutex
	rng   *rand.Rand
}

// NewAugmenter creates an Augmenter whose random transformations are generated from seed.
func NewAugmenter(config AugmentationConfig, seed int64) *Augmenter {
	return &Augmenter{config: config, rng: rand.New(rand.NewSource(seed))}
}

// transformation sampled for one image.
type transformation struct {
	theta, shear   float64 // radians
	shiftX, shiftY float64 // pixels
	zoomX, zoomY   float64
	flip           bool
}

func (a *Augmenter) uniform(limit float64) float64 {
	if limit == 0 {
		return 0
	}
	return (a.rng.Float64()*2 - 1) * limit
}

func (a *Augmenter) sample(width, height int) transformation {
	a.muRng.Lock()
	defer a.muRng.Unlock()
	t := transformation{
		theta:  a.uniform(a.config.RotationDegrees) * math.Pi / 180,
		shiftX: a.uniform(a.config.WidthShift) * float64(width),
		shiftY: a.uniform(a.config.HeightShift) * float64(height),
		shear:  a.uniform(a.config.ShearDegrees) * math.Pi / 180,
		zoomX:  1 + a.uniform(a.config.Zoom),
		zoomY:  1 + a.uniform(a.config.Zoom),
	}
	if a.config.HorizontalFlip {
		t.flip = a.rng.Intn(2) == 1
	}
	return t
}

// Augment returns a randomly transformed copy of img, with the same size.
func (a *Augmenter) Augment(img *image.NRGBA) *image.NRGBA {
	bounds := img.Bounds()
	t := a.sample(bounds.Dx(), bounds.Dy())
	out := warp(img, t.dstToSrc(bounds))
	if t.flip {
		out = imaging.FlipH(out)
	}
	return out
}

// mat3 is a row-major 3x3 matrix of homogeneous 2D coordinates.
type mat3 [9]float64

func (m mat3) mul(o mat3) (r mat3) {
	for row := range 3 {
		for col := range 3 {
			for k := range 3 {
				r[row*3+col] += m[row*3+k] * o[k*3+col]
			}
		}
	}
	return
}

// dstToSrc returns the matrix mapping destination pixel coordinates to source pixel coordinates,
// composed as rotation, shift, shear and zoom around the image center.
func (t transformation) dstToSrc(bounds image.Rectangle) mat3 {
	cx := float64(bounds.Min.X) + float64(bounds.Dx())/2
	cy := float64(bounds.Min.Y) + float64(bounds.Dy())/2
	cos, sin := math.Cos(t.theta), math.Sin(t.theta)
	rotation := mat3{cos, -sin, 0, sin, cos, 0, 0, 0, 1}
	shift := mat3{1, 0, t.shiftX, 0, 1, t.shiftY, 0, 0, 1}
	shear := mat3{1, -math.Sin(t.shear), 0, 0, math.Cos(t.shear), 0, 0, 0, 1}
	zoom := mat3{t.zoomX, 0, 0, 0, t.zoomY, 0, 0, 0, 1}
	toCenter := mat3{1, 0, cx, 0, 1, cy, 0, 0, 1}
	fromCenter := mat3{1, 0, -cx, 0, 1, -cy, 0, 0, 1}
	return toCenter.mul(rotation).mul(shift).mul(shear).mul(zoom).mul(fromCenter)
}

// invertAffine inverts the affine part of m, returned in the format used by golang.org/x/image/draw.
func invertAffine(m mat3) f64.Aff3 {
	a, b, c := m[0], m[1], m[2]
	d, e, f := m[3], m[4], m[5]
	det := a*e - b*d
	return f64.Aff3{
		e / det, -b / det, (b*f - e*c) / det,
		-d / det, a / det, (d*c - a*f) / det,
	}
}

// warp resamples src with bilinear interpolation. dstToSrc maps destination coordinates to source ones.
func warp(src *image.NRGBA, dstToSrc mat3) *image.NRGBA {
	bounds := src.Bounds()
	dst := image.NewNRGBA(bounds)
	clamped := edgeClamped{src}
	draw.BiLinear.Transform(dst, invertAffine(dstToSrc), clamped, clamped.Bounds(), draw.Src, nil)
	return dst
}

// edgeClamped extends an image indefinitely by repeating its edge pixels.
type edgeClamped struct {
	*image.NRGBA
}

// Bounds are large enough to contain any of the transformations sampled by the Augmenter.
func (e edgeClamped) Bounds() image.Rectangle {
	b := e.NRGBA.Bounds()
	margin := 4 * max(b.Dx(), b.Dy())
	return b.Inset(-margin)
}

func (e edgeClamped) At(x, y int) color.Color {
	return e.NRGBAAt(x, y)
}

func (e edgeClamped) NRGBAAt(x, y int) color.NRGBA {
	x, y = e.clamp(x, y)
	return e.NRGBA.NRGBAAt(x, y)
}

func (e edgeClamped) RGBA64At(x, y int) color.RGBA64 {
	x, y = e.clamp(x, y)
	return e.NRGBA.RGBA64At(x, y)
}

func (e edgeClamped) clamp(x, y int) (int, int) {
	b := e.NRGBA.Bounds()
	return min(max(x, b.Min.X), b.Max.X-1), min(max(y, b.Min.Y), b.Max.Y-1)
}
