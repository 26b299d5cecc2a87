/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package geom

import (
	"fmt"
	"math"
	"strings"
)

// RotatedSize returns the axis-aligned bounding size of a w×h box rotated by deg.
func RotatedSize(w, h, deg float64) Size {
	th := DegToRad(deg)
	c, s := math.Cos(th), math.Sin(th)
	return Size{
		W: math.Abs(w*c) + math.Abs(h*s),
		H: math.Abs(w*s) + math.Abs(h*c),
	}
}

// FitScale returns the largest scale at which the content, rotated by deg,
// fits entirely inside the box. The result is rounded to 2 decimals.
// Degenerate input yields 0, which callers treat as "keep the previous zoom".
func FitScale(contentW, contentH, boxW, boxH, deg float64) float64 {
	if !positive(contentW, contentH, boxW, boxH) || !Valid(deg) {
		return 0
	}
	rs := RotatedSize(contentW, contentH, deg)
	if rs.W <= 0 || rs.H <= 0 {
		return 0
	}
	return FloatRound(math.Min(boxW/rs.W, boxH/rs.H), 2)
}

// CanFit reports whether FitScale has valid input. A valid fit may still round
// to 0 when the content is more than 200 times larger than the box.
func CanFit(contentW, contentH, boxW, boxH, deg float64) bool {
	return positive(contentW, contentH, boxW, boxH) && Valid(deg)
}

// FillScale returns the smallest scale at which the content covers the box.
func FillScale(contentW, contentH, boxW, boxH float64) float64 {
	if !positive(contentW, contentH, boxW, boxH) {
		return 0
	}
	return math.Max(boxW/contentW, boxH/contentH)
}

func positive(vs ...float64) bool {
	for _, v := range vs {
		if !Valid(v) || v <= 0 {
			return false
		}
	}
	return true
}

// Unit is a physical or screen length unit used by export dialogs.
type Unit string

const (
	UnitPx Unit = "px"
	UnitIn Unit = "in"
	UnitCm Unit = "cm"
	UnitMm Unit = "mm"
	UnitPt Unit = "pt"
)

// ParseUnit accepts the unit names case-insensitively.
func ParseUnit(s string) (Unit, error) {
	switch u := Unit(strings.ToLower(strings.TrimSpace(s))); u {
	case UnitPx, UnitIn, UnitCm, UnitMm, UnitPt:
		return u, nil
	}
	return "", fmt.Errorf("unknown unit %q", s)
}

// perInch is how many units make one inch; px depends on dpi.
func perInch(u Unit, dpi float64) float64 {
	switch u {
	case UnitIn:
		return 1
	case UnitCm:
		return 2.54
	case UnitMm:
		return 25.4
	case UnitPt:
		return 72
	default:
		return dpi
	}
}

// PxToUnit converts a pixel length at dpi into u.
func PxToUnit(px, dpi float64, u Unit) float64 {
	if dpi <= 0 {
		dpi = 72
	}
	return px / dpi * perInch(u, dpi)
}

// UnitToPx converts a length in u into pixels at dpi.
func UnitToPx(v, dpi float64, u Unit) float64 {
	if dpi <= 0 {
		dpi = 72
	}
	return v / perInch(u, dpi) * dpi
}
