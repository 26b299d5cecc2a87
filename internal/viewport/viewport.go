/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package viewport drives the canvas zoom and pan. Gestures and programmatic
// fits set a target; Step moves the current values toward it every frame.
package viewport

import (
	"math"

	"photoprox/internal/geom"
)

// Params tunes convergence and zoom stepping.
type Params struct {
	ZoomSpeed     float64 `yaml:"zoom_speed"`
	PanSpeed      float64 `yaml:"pan_speed"`
	ZoomThreshold float64 `yaml:"zoom_threshold"`
	PanThreshold  float64 `yaml:"pan_threshold"`
	MinZoom       float64 `yaml:"min_zoom"`
	MaxZoom       float64 `yaml:"max_zoom"`
	// StepFactor is the multiplicative wheel step used at or above SmallZoom.
	StepFactor float64 `yaml:"step_factor"`
	// SmallStep is the additive wheel step used below SmallZoom.
	SmallStep float64 `yaml:"small_step"`
	SmallZoom float64 `yaml:"small_zoom"`
}

func DefaultParams() Params {
	return Params{
		ZoomSpeed:     0.15,
		PanSpeed:      0.15,
		ZoomThreshold: 0.001,
		PanThreshold:  0.1,
		MinZoom:       0.05,
		MaxZoom:       5,
		StepFactor:    1.1,
		SmallStep:     0.01,
		SmallZoom:     0.2,
	}
}

// Normalize replaces unusable values with defaults.
func (p Params) Normalize() Params {
	d := DefaultParams()
	pos := func(v, def float64) float64 {
		if !geom.Valid(v) || v <= 0 {
			return def
		}
		return v
	}
	speed := func(v, def float64) float64 {
		if !geom.Valid(v) || v <= 0 || v > 1 {
			return def
		}
		return v
	}
	p.ZoomSpeed = speed(p.ZoomSpeed, d.ZoomSpeed)
	p.PanSpeed = speed(p.PanSpeed, d.PanSpeed)
	p.ZoomThreshold = pos(p.ZoomThreshold, d.ZoomThreshold)
	p.PanThreshold = pos(p.PanThreshold, d.PanThreshold)
	p.MinZoom = pos(p.MinZoom, d.MinZoom)
	p.MaxZoom = pos(p.MaxZoom, d.MaxZoom)
	if p.MaxZoom < p.MinZoom {
		p.MinZoom, p.MaxZoom = d.MinZoom, d.MaxZoom
	}
	if !geom.Valid(p.StepFactor) || p.StepFactor <= 1 {
		p.StepFactor = d.StepFactor
	}
	p.SmallStep = pos(p.SmallStep, d.SmallStep)
	p.SmallZoom = pos(p.SmallZoom, d.SmallZoom)
	return p
}

// Phase names what the viewport is doing.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseUserZoom Phase = "user-zoom"
	PhaseSettling Phase = "settling"
)

// State is the zoom and pan state of one canvas.
type State struct {
	CurrentZoom float64
	TargetZoom  float64
	CurrentPos  geom.Pt
	TargetPos   geom.Pt
	// ZoomFromUser marks a cursor-anchored zoom in progress.
	ZoomFromUser bool
	// TargetMousePos and TargetWorldMousePos are the screen and world cursor
	// positions captured when the zoom gesture was last fed.
	TargetMousePos      geom.Pt
	TargetWorldMousePos geom.Pt
}

// NewState starts at zoom 1 with no offset.
func NewState() State { return State{CurrentZoom: 1, TargetZoom: 1} }

func (s State) Phase(p Params) Phase {
	if s.ZoomFromUser {
		return PhaseUserZoom
	}
	if s.zooming(p) || s.panning(p) {
		return PhaseSettling
	}
	return PhaseIdle
}

func (s State) zooming(p Params) bool {
	return math.Abs(s.TargetZoom-s.CurrentZoom) > p.ZoomThreshold
}

func (s State) panning(p Params) bool {
	return math.Abs(s.TargetPos.X-s.CurrentPos.X) > p.PanThreshold ||
		math.Abs(s.TargetPos.Y-s.CurrentPos.Y) > p.PanThreshold
}

// ToWorld maps a screen point through the inverse of the current transform.
func (s State) ToWorld(screen geom.Pt) geom.Pt {
	z := s.CurrentZoom
	if !geom.Valid(z) || z <= 0 {
		z = 1
	}
	return screen.Sub(s.CurrentPos).Mul(1 / z)
}

// Apply is the root transform to set after a step.
type Apply struct {
	Scale   float64
	Pos     geom.Pt
	Changed bool
}

// Step advances one frame. When nothing is left to converge it returns
// Apply{Changed: false} and the state unchanged apart from clearing ZoomFromUser.
func Step(s State, p Params) (State, Apply) {
	dz := s.TargetZoom - s.CurrentZoom
	newZoom := s.CurrentZoom + dz*p.ZoomSpeed
	newPos := geom.Pt{
		X: s.CurrentPos.X + (s.TargetPos.X-s.CurrentPos.X)*p.PanSpeed,
		Y: s.CurrentPos.Y + (s.TargetPos.Y-s.CurrentPos.Y)*p.PanSpeed,
	}
	zooming := math.Abs(dz) > p.ZoomThreshold

	if s.ZoomFromUser && zooming {
		pos := s.TargetMousePos.Sub(s.TargetWorldMousePos.Mul(newZoom))
		s.CurrentZoom = newZoom
		s.CurrentPos = pos
		s.TargetPos = pos
		return s, Apply{Scale: newZoom, Pos: pos, Changed: true}
	}
	if !zooming {
		s.ZoomFromUser = false
	}
	if !zooming && !s.panning(p) {
		return s, Apply{Scale: s.CurrentZoom, Pos: s.CurrentPos}
	}
	if zooming {
		s.CurrentZoom = newZoom
	}
	s.CurrentPos = newPos
	return s, Apply{Scale: s.CurrentZoom, Pos: newPos, Changed: true}
}

// WheelEvent is one mouse wheel or trackpad scroll.
type WheelEvent struct {
	DeltaX float64
	DeltaY float64
	Screen geom.Pt
	Ctrl   bool
	Meta   bool
	Shift  bool
}

// Wheel folds a wheel event into the state. With ctrl or meta held it is a
// cursor-anchored zoom: negative DeltaY zooms in. Otherwise it pans the target.
// Non-finite deltas are ignored.
func Wheel(s State, ev WheelEvent, p Params) State {
	if !geom.Valid(ev.DeltaX) || !geom.Valid(ev.DeltaY) || !geom.Valid(ev.Screen.X) || !geom.Valid(ev.Screen.Y) {
		return s
	}
	if ev.Ctrl || ev.Meta {
		if ev.DeltaY == 0 {
			return s
		}
		s.TargetMousePos = ev.Screen
		s.TargetWorldMousePos = s.ToWorld(ev.Screen)
		s.ZoomFromUser = true
		s.TargetZoom = nextZoom(s.TargetZoom, ev.DeltaY < 0, p)
		return s
	}
	dx, dy := ev.DeltaX, ev.DeltaY
	if ev.Shift && dx == 0 {
		dx, dy = dy, 0
	}
	s.TargetPos = s.TargetPos.Sub(geom.Pt{X: dx, Y: dy})
	return s
}

// nextZoom steps multiplicatively at or above SmallZoom and additively below,
// where a multiplicative step would stall.
func nextZoom(z float64, in bool, p Params) float64 {
	switch {
	case z >= p.SmallZoom && in:
		z *= p.StepFactor
	case z >= p.SmallZoom:
		z /= p.StepFactor
	case in:
		z += p.SmallStep
	default:
		z -= p.SmallStep
	}
	return geom.Clamp(z, p.MinZoom, p.MaxZoom)
}

// SetTargetZoom sets a programmatic zoom target. NaN and non-positive values are ignored.
func SetTargetZoom(s State, z float64, p Params) State {
	if !geom.Valid(z) || z <= 0 {
		return s
	}
	s.TargetZoom = geom.Clamp(z, p.MinZoom, p.MaxZoom)
	s.ZoomFromUser = false
	return s
}

// PanBy shifts the pan target.
func PanBy(s State, d geom.Pt) State {
	if !geom.Valid(d.X) || !geom.Valid(d.Y) {
		return s
	}
	s.TargetPos = s.TargetPos.Add(d)
	return s
}

// Fit targets the largest zoom at which the rotated content fits in box and
// centres it. Degenerate sizes leave the state unchanged; content too large
// for any zoom lands on MinZoom.
func Fit(s State, content, box geom.Size, deg float64, p Params) State {
	if !geom.CanFit(content.W, content.H, box.W, box.H, deg) {
		return s
	}
	scale := geom.FitScale(content.W, content.H, box.W, box.H, deg)
	if scale <= 0 {
		scale = p.MinZoom
	}
	return frame(s, content, box, scale, p)
}

// Fill targets the smallest zoom at which the content covers box and centres it.
func Fill(s State, content, box geom.Size, p Params) State {
	return frame(s, content, box, geom.FillScale(content.W, content.H, box.W, box.H), p)
}

func frame(s State, content, box geom.Size, scale float64, p Params) State {
	if !geom.Valid(scale) || scale <= 0 {
		return s
	}
	z := geom.Clamp(scale, p.MinZoom, p.MaxZoom)
	s.TargetZoom = z
	s.TargetPos = geom.Pt{X: (box.W - content.W*z) / 2, Y: (box.H - content.H*z) / 2}
	s.ZoomFromUser = false
	return s
}
