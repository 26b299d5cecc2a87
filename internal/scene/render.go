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
	"image/draw"
	"math"

	"photoprox/internal/geom"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Renderer rasterizes a tree back-to-front. Containers with enabled filters
// are drawn into an offscreen buffer, filtered, then composited with their alpha.
type Renderer struct {
	// Background is painted first; nil leaves the canvas transparent.
	Background color.Color
	// Interpolator resamples sprites; nil means ApproxBiLinear.
	Interpolator xdraw.Interpolator
}

func NewRenderer() *Renderer { return &Renderer{} }

// Render draws root into a new w×h image. The root's own transform is applied,
// so passing the viewport root renders what the user sees.
func (r *Renderer) Render(root *Container, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, max(w, 0), max(h, 0)))
	r.RenderInto(dst, root)
	return dst
}

// RenderInto draws root over dst after painting the background.
func (r *Renderer) RenderInto(dst *image.RGBA, root *Container) {
	if r.Background != nil {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(r.Background), image.Point{}, draw.Src)
	}
	if root == nil || dst.Bounds().Empty() {
		return
	}
	r.drawNode(dst, root, geom.Identity, 1)
}

func (r *Renderer) interp() xdraw.Interpolator {
	if r.Interpolator != nil {
		return r.Interpolator
	}
	return xdraw.ApproxBiLinear
}

func (r *Renderer) drawNode(dst *image.RGBA, n Node, parent geom.Affine2D, alpha float64) {
	if n == nil || n.Destroyed() || !n.Visible() {
		return
	}
	a := alpha * n.Alpha()
	if a <= 0 {
		return
	}
	m := parent.Mul(n.LocalTransform())
	switch v := n.(type) {
	case *Container:
		r.drawContainer(dst, v, m, a)
	case *Sprite:
		r.drawSprite(dst, v, m, a)
	case *Graphics:
		r.drawGraphics(dst, v, m, a)
	}
}

func (r *Renderer) drawContainer(dst *image.RGBA, c *Container, m geom.Affine2D, a float64) {
	c.sortIfNeeded()
	if !c.hasActiveFilters() {
		for _, ch := range c.children {
			r.drawNode(dst, ch, m, a)
		}
		return
	}
	off := image.NewRGBA(dst.Bounds())
	for _, ch := range c.children {
		r.drawNode(off, ch, m, 1)
	}
	for _, f := range c.filters {
		if f.Enabled() {
			f.Apply(off)
		}
	}
	draw.DrawMask(dst, dst.Bounds(), off, dst.Bounds().Min, alphaMask(a), image.Point{}, draw.Over)
}

func (r *Renderer) drawSprite(dst *image.RGBA, s *Sprite, m geom.Affine2D, a float64) {
	if s.Texture == nil {
		return
	}
	b := s.Texture.Bounds()
	if b.Empty() {
		return
	}
	// Texture coordinates are absolute; local space starts at 0,0.
	mm := m.Mul(geom.Translate(-float64(b.Min.X), -float64(b.Min.Y)))
	var opts *xdraw.Options
	if mask := alphaMask(a); mask != nil {
		opts = &xdraw.Options{SrcMask: mask}
	}
	r.interp().Transform(dst, aff3(mm), s.Texture, b, xdraw.Over, opts)
}

func (r *Renderer) drawGraphics(dst *image.RGBA, g *Graphics, m geom.Affine2D, a float64) {
	if g.Rect.Empty() {
		return
	}
	src := image.NewUniform(g.Color)
	mask := alphaMask(a)
	if m.B == 0 && m.C == 0 {
		br := m.BoundsOf(g.Rect)
		dr := image.Rect(
			int(math.Round(br.X)), int(math.Round(br.Y)),
			int(math.Round(br.X+br.W)), int(math.Round(br.Y+br.H)),
		).Intersect(dst.Bounds())
		if dr.Empty() {
			return
		}
		draw.DrawMask(dst, dr, src, image.Point{}, mask, image.Point{}, draw.Over)
		return
	}
	sr := image.Rect(
		int(math.Floor(g.Rect.X)), int(math.Floor(g.Rect.Y)),
		int(math.Ceil(g.Rect.X+g.Rect.W)), int(math.Ceil(g.Rect.Y+g.Rect.H)),
	)
	var opts *xdraw.Options
	if mask != nil {
		opts = &xdraw.Options{SrcMask: mask}
	}
	xdraw.NearestNeighbor.Transform(dst, aff3(m), src, sr, xdraw.Over, opts)
}

func aff3(m geom.Affine2D) f64.Aff3 {
	return f64.Aff3{m.A, m.C, m.E, m.B, m.D, m.F}
}

// alphaMask returns nil for fully opaque drawing.
func alphaMask(a float64) image.Image {
	if a >= 1 {
		return nil
	}
	return image.NewUniform(color.Alpha{A: uint8(math.Round(geom.Clamp(a, 0, 1) * 255))})
}

// HitTest returns the front-most visible draggable sprite under p, where p is
// in the root's parent space (screen space for a viewport root).
func HitTest(root *Container, p geom.Pt) *Sprite {
	if root == nil {
		return nil
	}
	return hit(root, geom.Identity, p)
}

func hit(n Node, parent geom.Affine2D, p geom.Pt) *Sprite {
	if n.Destroyed() || !n.Visible() {
		return nil
	}
	m := parent.Mul(n.LocalTransform())
	switch v := n.(type) {
	case *Container:
		v.sortIfNeeded()
		for i := len(v.children) - 1; i >= 0; i-- {
			if s := hit(v.children[i], m, p); s != nil {
				return s
			}
		}
	case *Sprite:
		if !v.Draggable || v.Texture == nil {
			return nil
		}
		q := m.Invert().Apply(p)
		sz := v.Size()
		if q.X >= 0 && q.Y >= 0 && q.X < sz.W && q.Y < sz.H {
			return v
		}
	}
	return nil
}
