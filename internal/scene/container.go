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
	"sort"

	"photoprox/internal/geom"
)

// Container holds ordered children and an optional filter chain. The root
// container's position and scale double as the viewport transform.
type Container struct {
	baseNode
	children []Node
	filters  []Filter

	// SortableChildren makes the renderer re-sort children by zIndex whenever
	// a child's zIndex changed or a child was added since the last sort.
	SortableChildren bool
	sortDirty        bool

	pos      geom.Pt
	scale    float64
	rotation float64 // degrees
}

func NewContainer() *Container {
	return &Container{baseNode: newBase(), scale: 1}
}

// AddChild appends n, re-parenting it first so a node is never attached twice.
func (c *Container) AddChild(n Node) {
	if n == nil {
		return
	}
	Detach(n)
	c.children = append(c.children, n)
	n.setParent(c)
	if c.SortableChildren {
		c.sortDirty = true
	}
}

// RemoveChild detaches n if it is a direct child. Unknown nodes are ignored.
func (c *Container) RemoveChild(n Node) {
	for i, ch := range c.children {
		if ch == n {
			c.children = append(c.children[:i:i], c.children[i+1:]...)
			n.setParent(nil)
			return
		}
	}
}

// RemoveChildren detaches every child.
func (c *Container) RemoveChildren() {
	for _, ch := range c.children {
		ch.setParent(nil)
	}
	c.children = nil
	c.sortDirty = false
}

// Children returns a copy of the child list in current order.
func (c *Container) Children() []Node {
	return append([]Node(nil), c.children...)
}

func (c *Container) Len() int { return len(c.children) }

// SortChildren orders children ascending by zIndex; equal zIndex keeps insertion order.
func (c *Container) SortChildren() {
	sort.SliceStable(c.children, func(i, j int) bool {
		return c.children[i].ZIndex() < c.children[j].ZIndex()
	})
	c.sortDirty = false
}

func (c *Container) sortIfNeeded() {
	if c.SortableChildren && c.sortDirty {
		c.SortChildren()
	}
}

func (c *Container) AddFilter(f Filter) { c.filters = append(c.filters, f) }

// SetFilters replaces the filter chain.
func (c *Container) SetFilters(fs []Filter) { c.filters = append([]Filter(nil), fs...) }

func (c *Container) Filters() []Filter { return append([]Filter(nil), c.filters...) }

func (c *Container) hasActiveFilters() bool {
	for _, f := range c.filters {
		if f.Enabled() {
			return true
		}
	}
	return false
}

func (c *Container) Position() geom.Pt     { return c.pos }
func (c *Container) SetPosition(p geom.Pt) { c.pos = p }
func (c *Container) Scale() float64        { return c.scale }

// SetScale sets a uniform scale; non-finite or non-positive values are ignored.
func (c *Container) SetScale(s float64) {
	if !geom.Valid(s) || s <= 0 {
		return
	}
	c.scale = s
}

func (c *Container) Rotation() float64       { return c.rotation }
func (c *Container) SetRotation(deg float64) { c.rotation = deg }

func (c *Container) LocalTransform() geom.Affine2D {
	return geom.Translate(c.pos.X, c.pos.Y).
		Mul(geom.Rotate(geom.DegToRad(c.rotation))).
		Mul(geom.Scale(c.scale, c.scale))
}

// ToLocal maps a point in the parent's space (screen space for the root)
// into this container's coordinate space.
func (c *Container) ToLocal(p geom.Pt) geom.Pt {
	return c.LocalTransform().Invert().Apply(p)
}

// Destroy detaches the container and its children. Children are not destroyed:
// they usually belong to other owners and get re-attached on the next pass.
func (c *Container) Destroy() {
	if c.destroyed {
		return
	}
	Detach(c)
	c.RemoveChildren()
	c.filters = nil
	c.destroyed = true
}

// Walk visits c and every descendant depth-first in child order.
func (c *Container) Walk(fn func(n Node, depth int)) {
	var walk func(n Node, depth int)
	walk = func(n Node, depth int) {
		fn(n, depth)
		if ch, ok := n.(*Container); ok {
			for _, k := range ch.children {
				walk(k, depth+1)
			}
		}
	}
	walk(c, 0)
}
