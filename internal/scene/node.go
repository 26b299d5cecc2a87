/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package scene is a small retained-mode 2D scene graph: containers holding
// ordered children, sprites, flat fills and per-container filters, plus a
// software renderer that rasterizes a tree into an *image.RGBA.
//
// A tree is not safe for concurrent use; owners serialize access (the editor
// session holds one lock around resolver passes, viewport ticks and renders).
package scene

import (
	"image"

	"photoprox/internal/geom"
)

// Node is a scene-graph item that can be attached to a Container.
type Node interface {
	ZIndex() int
	SetZIndex(z int)
	Parent() *Container
	Visible() bool
	SetVisible(v bool)
	Alpha() float64
	SetAlpha(a float64)
	// LocalTransform maps node-local coordinates into the parent's space.
	LocalTransform() geom.Affine2D
	Label() string
	SetLabel(s string)
	Destroy()
	Destroyed() bool

	setParent(c *Container)
}

// Filter post-processes the rasterized subtree of a Container.
type Filter interface {
	Name() string
	Enabled() bool
	SetEnabled(on bool)
	Apply(img *image.RGBA)
}

type baseNode struct {
	z         int
	parent    *Container
	hidden    bool
	alpha     float64
	label     string
	destroyed bool
}

func newBase() baseNode { return baseNode{alpha: 1} }

func (b *baseNode) ZIndex() int            { return b.z }
func (b *baseNode) Parent() *Container     { return b.parent }
func (b *baseNode) Visible() bool          { return !b.hidden }
func (b *baseNode) SetVisible(v bool)      { b.hidden = !v }
func (b *baseNode) Alpha() float64         { return b.alpha }
func (b *baseNode) SetAlpha(a float64)     { b.alpha = geom.Clamp(a, 0, 1) }
func (b *baseNode) Label() string          { return b.label }
func (b *baseNode) SetLabel(s string)      { b.label = s }
func (b *baseNode) Destroyed() bool        { return b.destroyed }
func (b *baseNode) setParent(c *Container) { b.parent = c }

// SetZIndex changes paint order; a sortable parent is flagged for re-sorting.
func (b *baseNode) SetZIndex(z int) {
	if b.z == z {
		return
	}
	b.z = z
	if b.parent != nil && b.parent.SortableChildren {
		b.parent.sortDirty = true
	}
}

// WorldTransform composes local transforms from n up to the root.
func WorldTransform(n Node) geom.Affine2D {
	m := n.LocalTransform()
	for p := n.Parent(); p != nil; p = p.Parent() {
		m = p.LocalTransform().Mul(m)
	}
	return m
}

// Detach removes n from its parent, if any.
func Detach(n Node) {
	if p := n.Parent(); p != nil {
		p.RemoveChild(n)
	}
}
