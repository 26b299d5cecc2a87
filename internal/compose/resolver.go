/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package compose turns a layer stack into a scene graph: every layer is
// attached exactly once, adjustment layers capture the content their filters
// apply to, and children are ordered by z-index.
package compose

import (
	"fmt"
	"log/slog"
	"sort"

	"photoprox/internal/layer"
	applog "photoprox/internal/log"
	"photoprox/internal/scene"
)

// ZOffset is added to a layer's z-index on its scene node so layer nodes
// stay above structural children of the same container.
const ZOffset = 2

// EditMode is the active editor tool.
type EditMode string

const (
	ModeView      EditMode = "view"
	ModeMove      EditMode = "move"
	ModeTransform EditMode = "transform"
	ModeCrop      EditMode = "crop"
	ModeBrush     EditMode = "brush"
	ModeEraser    EditMode = "eraser"
)

// Modes lists every edit mode.
var Modes = []EditMode{ModeView, ModeMove, ModeTransform, ModeCrop, ModeBrush, ModeEraser}

// ParseMode maps a mode name onto an EditMode.
func ParseMode(s string) (EditMode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown edit mode %q", s)
}

// Draggable reports whether image sprites accept pointer drags in this mode.
func (m EditMode) Draggable() bool {
	return m == ModeMove || m == ModeTransform || m == ModeView
}

// Result records where each layer ended up in one pass.
type Result struct {
	// Parents maps each attached layer to the container holding its node.
	Parents map[layer.ID]*scene.Container
	// Visited lists layer ids in attachment order.
	Visited []layer.ID
	nodes   map[scene.Node]layer.ID
}

// Attached returns the ids of layers directly inside c, in child order.
func (r Result) Attached(c *scene.Container) []layer.ID {
	var out []layer.ID
	for _, n := range c.Children() {
		if id, ok := r.nodes[n]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Layer returns the layer whose node is n.
func (r Result) Layer(n scene.Node) (layer.ID, bool) {
	id, ok := r.nodes[n]
	return id, ok
}

// Resolver builds the scene graph for a layer stack.
// A Resolver holds no per-pass state and may be reused.
type Resolver struct {
	log *slog.Logger
}

func NewResolver() *Resolver {
	return &Resolver{log: applog.WithComponent("compose")}
}

// Resolve rebuilds target from stack. target and every adjustment container
// of the stack are emptied first, so nodes of layers no longer in the stack
// and clip captures of an earlier pass are dropped.
// The root transform of target is never touched.
func (r *Resolver) Resolve(stack layer.Stack, target *scene.Container, mode EditMode) Result {
	p := &pass{
		log:      r.log,
		root:     target,
		mode:     mode,
		rendered: make(map[layer.ID]bool, len(stack)),
		res: Result{
			Parents: make(map[layer.ID]*scene.Container, len(stack)),
			nodes:   make(map[scene.Node]layer.ID, len(stack)),
		},
	}
	target.RemoveChildren()
	for _, l := range stack {
		if adj, ok := l.(*layer.Adjustment); ok {
			adj.Container().RemoveChildren()
		}
	}
	p.ordered = descending(stack)
	for _, l := range p.ordered {
		p.render(l, target)
	}
	for _, c := range p.touched {
		c.SortChildren()
	}
	r.log.Debug("resolved", slog.Int("layers", len(stack)), slog.Int("attached", len(p.res.Visited)), slog.String("mode", string(mode)))
	return p.res
}

// descending orders layers top-most first; equal z-index keeps stack order.
func descending(s layer.Stack) layer.Stack {
	out := append(layer.Stack(nil), s...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Base().ZIndex > out[j].Base().ZIndex })
	return out
}

type pass struct {
	log      *slog.Logger
	root     *scene.Container
	mode     EditMode
	ordered  layer.Stack
	rendered map[layer.ID]bool
	touched  []*scene.Container
	res      Result
}

func (p *pass) render(l layer.Layer, parent *scene.Container) {
	if l == nil {
		return
	}
	a := l.Base()
	if p.rendered[a.ID] {
		return
	}
	if l.Node().Destroyed() {
		p.log.Warn("skipping destroyed layer", slog.String("layer", string(a.ID)))
		return
	}
	switch v := l.(type) {
	case *layer.Background:
		p.attach(l, p.root)
		p.rendered[a.ID] = true
	case *layer.Image:
		v.Sprite().Draggable = p.mode.Draggable()
		p.attach(l, parent)
		p.rendered[a.ID] = true
	case *layer.Adjustment:
		p.renderAdjustment(v, parent)
	default:
		p.log.Debug("skipping unknown layer variant", slog.String("layer", string(a.ID)), slog.String("type", fmt.Sprintf("%T", l)))
	}
}

func (p *pass) renderAdjustment(adj *layer.Adjustment, parent *scene.Container) {
	c := adj.Container()
	c.SortableChildren = true
	p.attach(adj, parent)
	parent.SortChildren()
	p.rendered[adj.ID] = true

	below := p.below(adj.ZIndex)
	if !adj.ClipToBelow {
		for _, l := range below {
			if _, isBG := l.(*layer.Background); isBG {
				continue
			}
			p.render(l, c)
		}
	} else {
		p.renderClip(below, c)
	}
	adj.SetFiltersEnabled(adj.Visible)
}

// renderClip draws only the nearest content below a clipping adjustment.
// A non-clipping adjustment directly below is passed over in favour of the
// nearest image; a clipping one is recursed into.
func (p *pass) renderClip(below layer.Stack, c *scene.Container) {
	var img *layer.Image
	var adj *layer.Adjustment
	for _, l := range below {
		switch v := l.(type) {
		case *layer.Image:
			if img == nil {
				img = v
			}
		case *layer.Adjustment:
			if adj == nil {
				adj = v
			}
		}
	}
	switch {
	case img != nil && adj != nil:
		if img.ZIndex > adj.ZIndex || !adj.ClipToBelow {
			p.render(img, c)
		} else {
			p.render(adj, c)
		}
	case img != nil:
		p.render(img, c)
	case adj != nil && adj.ClipToBelow:
		p.render(adj, c)
	}
}

// below returns layers with a strictly lower z-index, nearest first.
func (p *pass) below(z int) layer.Stack {
	var out layer.Stack
	for _, l := range p.ordered {
		if l.Base().ZIndex < z {
			out = append(out, l)
		}
	}
	return out
}

func (p *pass) attach(l layer.Layer, parent *scene.Container) {
	a := l.Base()
	n := l.Node()
	n.SetZIndex(a.ZIndex + ZOffset)
	n.SetLabel(a.Name)
	if _, isAdj := l.(*layer.Adjustment); isAdj {
		// Visibility of an adjustment toggles its filters, not the captured content.
		n.SetVisible(true)
		n.SetAlpha(1)
	} else {
		n.SetVisible(a.Visible)
		n.SetAlpha(a.Opacity)
	}
	parent.AddChild(n)
	p.touch(parent)
	p.res.Parents[a.ID] = parent
	p.res.Visited = append(p.res.Visited, a.ID)
	p.res.nodes[n] = a.ID
}

func (p *pass) touch(c *scene.Container) {
	for _, t := range p.touched {
		if t == c {
			return
		}
	}
	p.touched = append(p.touched, c)
}
