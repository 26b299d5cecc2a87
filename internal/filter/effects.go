/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package filter

import (
	"image"
	"image/draw"
	"math"
)

// Threshold turns pixels white when their luminance reaches the level, black otherwise.
type Threshold struct {
	toggle
	level  float64
	invert bool
}

func NewThreshold(level float64) *Threshold {
	return &Threshold{toggle: toggle{on: true}, level: level}
}

func (t *Threshold) Name() string { return "threshold" }

func (t *Threshold) Set(param string, v float64) bool {
	if !finite(v) {
		return false
	}
	switch param {
	case "threshold":
		t.level = clamp01(v)
	case "invert":
		t.invert = v != 0
	default:
		return false
	}
	return true
}

func (t *Threshold) Get(param string) (float64, bool) {
	switch param {
	case "threshold":
		return t.level, true
	case "invert":
		if t.invert {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func (t *Threshold) Apply(img *image.RGBA) {
	forEachPixel(img, func(r, g, b, a float64) (float64, float64, float64, float64) {
		on := luma(r, g, b) >= t.level
		if t.invert {
			on = !on
		}
		if on {
			return 1, 1, 1, a
		}
		return 0, 0, 0, a
	})
}

// Bloom adds a blurred copy of the bright areas back onto the image.
type Bloom struct {
	toggle
	threshold float64
	scale     float64
	blur      float64
}

func NewBloom() *Bloom { return &Bloom{toggle: toggle{on: true}, threshold: 0.5, scale: 1, blur: 4} }

func (b *Bloom) Name() string { return "bloom" }

func (b *Bloom) Set(param string, v float64) bool {
	if !finite(v) {
		return false
	}
	switch param {
	case "threshold":
		b.threshold = clamp01(v)
	case "bloom_scale":
		b.scale = math.Max(0, v)
	case "blur":
		b.blur = math.Max(0, v)
	default:
		return false
	}
	return true
}

func (b *Bloom) Get(param string) (float64, bool) {
	switch param {
	case "threshold":
		return b.threshold, true
	case "bloom_scale":
		return b.scale, true
	case "blur":
		return b.blur, true
	}
	return 0, false
}

func (b *Bloom) Apply(img *image.RGBA) {
	if b.scale == 0 {
		return
	}
	bright := image.NewRGBA(img.Rect)
	copy(bright.Pix, img.Pix)
	forEachPixel(bright, func(r, g, bl, a float64) (float64, float64, float64, float64) {
		if luma(r, g, bl) < b.threshold {
			return 0, 0, 0, 0
		}
		return r, g, bl, a
	})
	blurRGBA(bright, b.blur)
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w*4; x++ {
			i := y*img.Stride + x
			j := y*bright.Stride + x
			v := float64(img.Pix[i]) + float64(bright.Pix[j])*b.scale
			img.Pix[i] = uint8(math.Min(255, math.Round(v)))
		}
	}
}

// DropShadow draws an offset, blurred, translucent black silhouette beneath the content.
type DropShadow struct {
	toggle
	offsetX float64
	offsetY float64
	alpha   float64
	blur    float64
}

func NewDropShadow() *DropShadow {
	return &DropShadow{toggle: toggle{on: true}, offsetX: 4, offsetY: 4, alpha: 0.5, blur: 2}
}

func (d *DropShadow) Name() string { return "dropshadow" }

func (d *DropShadow) Set(param string, v float64) bool {
	if !finite(v) {
		return false
	}
	switch param {
	case "offset_x":
		d.offsetX = v
	case "offset_y":
		d.offsetY = v
	case "shadow_alpha":
		d.alpha = clamp01(v)
	case "blur":
		d.blur = math.Max(0, v)
	default:
		return false
	}
	return true
}

func (d *DropShadow) Get(param string) (float64, bool) {
	switch param {
	case "offset_x":
		return d.offsetX, true
	case "offset_y":
		return d.offsetY, true
	case "shadow_alpha":
		return d.alpha, true
	case "blur":
		return d.blur, true
	}
	return 0, false
}

func (d *DropShadow) Apply(img *image.RGBA) {
	if d.alpha == 0 {
		return
	}
	shadow := image.NewRGBA(img.Rect)
	dx, dy := int(math.Round(d.offsetX)), int(math.Round(d.offsetY))
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < h; y++ {
		sy := y - dy
		if sy < 0 || sy >= h {
			continue
		}
		for x := 0; x < w; x++ {
			sx := x - dx
			if sx < 0 || sx >= w {
				continue
			}
			a := img.Pix[sy*img.Stride+sx*4+3]
			shadow.Pix[y*shadow.Stride+x*4+3] = uint8(math.Round(float64(a) * d.alpha))
		}
	}
	blurRGBA(shadow, d.blur)
	draw.Draw(shadow, shadow.Rect, img, img.Rect.Min, draw.Over)
	copy(img.Pix, shadow.Pix)
}
