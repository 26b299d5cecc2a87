/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package scene

import (
	"image"
	"image/color"

	"photoprox/internal/geom"
)

// Sprite draws a texture with position, scale, rotation, skew and anchor.
type Sprite struct {
	baseNode
	Texture  image.Image
	Position geom.Pt
	ScaleX   float64
	ScaleY   float64
	Rotation float64 // degrees, clockwise on screen
	SkewX    float64 // radians
	SkewY    float64 // radians
	// Anchor is the pivot in texture-relative units (0..1).
	Anchor geom.Pt
	// Draggable enables pointer drag/move handling for this sprite.
	Draggable bool
}

func NewSprite(tex image.Image) *Sprite {
	return &Sprite{baseNode: newBase(), Texture: tex, ScaleX: 1, ScaleY: 1}
}

// Size returns the texture size in texture pixels.
func (s *Sprite) Size() geom.Size {
	if s.Texture == nil {
		return geom.Size{}
	}
	b := s.Texture.Bounds()
	return geom.Size{W: float64(b.Dx()), H: float64(b.Dy())}
}

func (s *Sprite) LocalTransform() geom.Affine2D {
	sz := s.Size()
	return geom.Translate(s.Position.X, s.Position.Y).
		Mul(geom.Rotate(geom.DegToRad(s.Rotation))).
		Mul(geom.Skew(s.SkewX, s.SkewY)).
		Mul(geom.Scale(s.ScaleX, s.ScaleY)).
		Mul(geom.Translate(-s.Anchor.X*sz.W, -s.Anchor.Y*sz.H))
}

// Bounds returns the sprite's bounding box in its parent's space.
func (s *Sprite) Bounds() geom.Rect {
	sz := s.Size()
	return s.LocalTransform().BoundsOf(geom.R(0, 0, sz.W, sz.H))
}

// Clone returns a detached copy sharing the texture.
func (s *Sprite) Clone() *Sprite {
	c := *s
	c.parent = nil
	c.destroyed = false
	return &c
}

// Destroy detaches the sprite and releases its texture.
func (s *Sprite) Destroy() {
	if s.destroyed {
		return
	}
	Detach(s)
	s.Texture = nil
	s.destroyed = true
}

// Graphics is a flat rectangular fill.
type Graphics struct {
	baseNode
	Rect     geom.Rect
	Color    color.NRGBA
	Position geom.Pt
}

func NewGraphics(r geom.Rect, c color.NRGBA) *Graphics {
	return &Graphics{baseNode: newBase(), Rect: r, Color: c}
}

func (g *Graphics) LocalTransform() geom.Affine2D {
	return geom.Translate(g.Position.X, g.Position.Y)
}

// Clone returns a detached copy.
func (g *Graphics) Clone() *Graphics {
	c := *g
	c.parent = nil
	c.destroyed = false
	return &c
}

func (g *Graphics) Destroy() {
	if g.destroyed {
		return
	}
	Detach(g)
	g.destroyed = true
}
