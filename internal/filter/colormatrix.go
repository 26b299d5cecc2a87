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

	"gonum.org/v1/gonum/mat"
)

// Luminance weights used by the saturation matrix.
const (
	lumR = 0.3086
	lumG = 0.6094
	lumB = 0.0820
)

// ColorMatrix applies brightness, contrast, saturation and hue rotation as a
// single 5×5 color matrix (RGBA + offset column), composed in that order.
type ColorMatrix struct {
	toggle
	brightness float64
	contrast   float64
	saturation float64
	hue        float64 // degrees

	m     [20]float64
	dirty bool
}

func NewColorMatrix() *ColorMatrix {
	return &ColorMatrix{toggle: toggle{on: true}, brightness: 1, contrast: 1, saturation: 1, dirty: true}
}

func (c *ColorMatrix) Name() string { return "colormatrix" }

func (c *ColorMatrix) Set(param string, v float64) bool {
	if !finite(v) {
		return false
	}
	switch param {
	case "brightness":
		c.brightness = v
	case "contrast":
		c.contrast = v
	case "saturation":
		c.saturation = v
	case "hue":
		c.hue = v
	default:
		return false
	}
	c.dirty = true
	return true
}

func (c *ColorMatrix) Get(param string) (float64, bool) {
	switch param {
	case "brightness":
		return c.brightness, true
	case "contrast":
		return c.contrast, true
	case "saturation":
		return c.saturation, true
	case "hue":
		return c.hue, true
	}
	return 0, false
}

// Matrix returns the composed 4×5 matrix in row-major order.
func (c *ColorMatrix) Matrix() [20]float64 {
	if c.dirty {
		c.m = c.compose()
		c.dirty = false
	}
	return c.m
}

func (c *ColorMatrix) compose() [20]float64 {
	b := c.brightness
	bright := mat.NewDense(5, 5, []float64{
		b, 0, 0, 0, 0,
		0, b, 0, 0, 0,
		0, 0, b, 0, 0,
		0, 0, 0, 1, 0,
		0, 0, 0, 0, 1,
	})
	k := c.contrast
	o := (1 - k) / 2
	contrast := mat.NewDense(5, 5, []float64{
		k, 0, 0, 0, o,
		0, k, 0, 0, o,
		0, 0, k, 0, o,
		0, 0, 0, 1, 0,
		0, 0, 0, 0, 1,
	})
	s := c.saturation
	sr, sg, sb := (1-s)*lumR, (1-s)*lumG, (1-s)*lumB
	sat := mat.NewDense(5, 5, []float64{
		sr + s, sg, sb, 0, 0,
		sr, sg + s, sb, 0, 0,
		sr, sg, sb + s, 0, 0,
		0, 0, 0, 1, 0,
		0, 0, 0, 0, 1,
	})
	th := c.hue * math.Pi / 180
	cs, sn := math.Cos(th), math.Sin(th)
	hue := mat.NewDense(5, 5, []float64{
		0.213 + cs*0.787 - sn*0.213, 0.715 - cs*0.715 - sn*0.715, 0.072 - cs*0.072 + sn*0.928, 0, 0,
		0.213 - cs*0.213 + sn*0.143, 0.715 + cs*0.285 + sn*0.140, 0.072 - cs*0.072 - sn*0.283, 0, 0,
		0.213 - cs*0.213 - sn*0.787, 0.715 - cs*0.715 + sn*0.715, 0.072 + cs*0.928 + sn*0.072, 0, 0,
		0, 0, 0, 1, 0,
		0, 0, 0, 0, 1,
	})

	var hs, hsc, out mat.Dense
	hs.Mul(hue, sat)
	hsc.Mul(&hs, contrast)
	out.Mul(&hsc, bright)

	var m [20]float64
	for r := 0; r < 4; r++ {
		for col := 0; col < 5; col++ {
			m[r*5+col] = out.At(r, col)
		}
	}
	return m
}

func (c *ColorMatrix) Apply(img *image.RGBA) {
	m := c.Matrix()
	forEachPixel(img, func(r, g, b, a float64) (float64, float64, float64, float64) {
		return m[0]*r + m[1]*g + m[2]*b + m[3]*a + m[4],
			m[5]*r + m[6]*g + m[7]*b + m[8]*a + m[9],
			m[10]*r + m[11]*g + m[12]*b + m[13]*a + m[14],
			m[15]*r + m[16]*g + m[17]*b + m[18]*a + m[19]
	})
}
