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
	"math"
)

// Blur approximates a gaussian with three passes of a separable box blur.
// It works directly on premultiplied channels.
type Blur struct {
	toggle
	radius float64
}

func NewBlur(radius float64) *Blur { return &Blur{toggle: toggle{on: true}, radius: radius} }

func (b *Blur) Name() string { return "blur" }

func (b *Blur) Set(param string, v float64) bool {
	if param != "radius" || !finite(v) {
		return false
	}
	b.radius = math.Max(0, v)
	return true
}

func (b *Blur) Get(param string) (float64, bool) {
	if param != "radius" {
		return 0, false
	}
	return b.radius, true
}

func (b *Blur) Apply(img *image.RGBA) { blurRGBA(img, b.radius) }

func blurRGBA(img *image.RGBA, radius float64) {
	r := int(math.Round(radius / 3 * 2))
	if radius > 0 && r < 1 {
		r = 1
	}
	if r <= 0 {
		return
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w == 0 || h == 0 {
		return
	}
	tmp := make([]uint8, w*h*4)
	for pass := 0; pass < 3; pass++ {
		boxH(img.Pix, img.Stride, tmp, w*4, w, h, r)
		boxV(tmp, w*4, img.Pix, img.Stride, w, h, r)
	}
}

// boxH blurs rows of src into dst with a window of 2r+1, clamping at edges.
func boxH(src []uint8, sStride int, dst []uint8, dStride, w, h, r int) {
	win := 2*r + 1
	for y := 0; y < h; y++ {
		srow := src[y*sStride : y*sStride+w*4]
		drow := dst[y*dStride : y*dStride+w*4]
		for c := 0; c < 4; c++ {
			sum := 0
			for i := -r; i <= r; i++ {
				sum += int(srow[clampIdx(i, w)*4+c])
			}
			for x := 0; x < w; x++ {
				drow[x*4+c] = uint8((sum + win/2) / win)
				sum += int(srow[clampIdx(x+r+1, w)*4+c]) - int(srow[clampIdx(x-r, w)*4+c])
			}
		}
	}
}

func boxV(src []uint8, sStride int, dst []uint8, dStride, w, h, r int) {
	win := 2*r + 1
	for x := 0; x < w; x++ {
		for c := 0; c < 4; c++ {
			off := x*4 + c
			sum := 0
			for i := -r; i <= r; i++ {
				sum += int(src[clampIdx(i, h)*sStride+off])
			}
			for y := 0; y < h; y++ {
				dst[y*dStride+off] = uint8((sum + win/2) / win)
				sum += int(src[clampIdx(y+r+1, h)*sStride+off]) - int(src[clampIdx(y-r, h)*sStride+off])
			}
		}
	}
}

func clampIdx(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
