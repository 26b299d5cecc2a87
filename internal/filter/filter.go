/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package filter implements the pixel filters attached to adjustment layers
// and the catalog that maps named adjustment parameters onto them.
// Filters work on premultiplied *image.RGBA buffers produced by the scene renderer.
package filter

import (
	"fmt"
	"image"
	"math"

	"photoprox/internal/scene"
)

// Adjustable is a scene filter with named numeric parameters.
type Adjustable interface {
	scene.Filter
	// Set assigns a parameter; it reports false for unknown names or non-finite values.
	Set(param string, v float64) bool
	Get(param string) (float64, bool)
}

// New constructs a filter by its catalog name.
func New(name string) (Adjustable, error) {
	switch name {
	case "colormatrix":
		return NewColorMatrix(), nil
	case "blur":
		return NewBlur(0), nil
	case "threshold":
		return NewThreshold(0.5), nil
	case "bloom":
		return NewBloom(), nil
	case "dropshadow":
		return NewDropShadow(), nil
	}
	return nil, fmt.Errorf("unknown filter %q", name)
}

type toggle struct{ on bool }

func (t *toggle) Enabled() bool      { return t.on }
func (t *toggle) SetEnabled(on bool) { t.on = on }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func to8(v float64) uint8 { return uint8(math.Round(clamp01(v) * 255)) }

// luma is Rec. 601 luminance on straight (non-premultiplied) components.
func luma(r, g, b float64) float64 { return 0.299*r + 0.587*g + 0.114*b }

// forEachPixel calls fn with straight-alpha components in 0..1 and stores the
// result premultiplied. Fully transparent pixels are skipped.
func forEachPixel(img *image.RGBA, fn func(r, g, b, a float64) (float64, float64, float64, float64)) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+4 : x*4+4]
			if p[3] == 0 {
				continue
			}
			a := float64(p[3]) / 255
			r := float64(p[0]) / 255 / a
			g := float64(p[1]) / 255 / a
			b := float64(p[2]) / 255 / a
			r, g, b, a = fn(r, g, b, a)
			a = clamp01(a)
			p[0] = to8(clamp01(r) * a)
			p[1] = to8(clamp01(g) * a)
			p[2] = to8(clamp01(b) * a)
			p[3] = to8(a)
		}
	}
}
