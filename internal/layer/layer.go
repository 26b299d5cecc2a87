/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package layer models the editor's layer stack: image, adjustment and
// background layers plus pure operations that reorder and edit a stack.
package layer

import (
	"fmt"
	"image"
	"image/color"

	"github.com/google/uuid"

	"photoprox/internal/filter"
	"photoprox/internal/geom"
	"photoprox/internal/scene"
)

// ID identifies a layer. The zero value means unset.
type ID string

// NewID returns a fresh random identifier.
func NewID() ID { return ID(uuid.NewString()) }

// Attrs are the attributes every layer variant carries.
type Attrs struct {
	ID      ID
	Name    string
	ZIndex  int
	Visible bool
	Opacity float64
}

// WithOpacity returns a copy with opacity clamped to [0,1]. NaN keeps the prior value.
func (a Attrs) WithOpacity(o float64) Attrs {
	if geom.Valid(o) {
		a.Opacity = geom.Clamp(o, 0, 1)
	}
	return a
}

func newAttrs(name string) Attrs {
	return Attrs{ID: NewID(), Name: name, Visible: true, Opacity: 1}
}

// Layer is one of *Image, *Adjustment or *Background.
type Layer interface {
	Base() Attrs
	// Node is the scene node the layer contributes to composition.
	Node() scene.Node
	// Destroy releases the scene node. The layer must not be composed afterwards.
	Destroy()

	withAttrs(a Attrs) Layer
	duplicate(a Attrs) (Layer, error)
}

// Kind names the variant for logs and UI labels.
func Kind(l Layer) string {
	switch l.(type) {
	case *Image:
		return "image"
	case *Adjustment:
		return "adjustment"
	case *Background:
		return "background"
	}
	return "unknown"
}

// Source is the pixel data behind an image layer.
type Source struct {
	Width   int
	Height  int
	Format  string
	Data    image.Image
	Encoded []byte
}

type imagePayload struct {
	sprite *scene.Sprite
	src    Source
}

// Image is a bitmap layer drawn by a sprite it owns exclusively.
type Image struct {
	Attrs
	p *imagePayload
}

// NewImage creates an image layer. Width and Height default to the bounds of src.Data.
func NewImage(name string, src Source) *Image {
	if src.Data != nil && (src.Width == 0 || src.Height == 0) {
		b := src.Data.Bounds()
		src.Width, src.Height = b.Dx(), b.Dy()
	}
	sp := scene.NewSprite(src.Data)
	sp.SetLabel(name)
	return &Image{Attrs: newAttrs(name), p: &imagePayload{sprite: sp, src: src}}
}

func (l *Image) Base() Attrs             { return l.Attrs }
func (l *Image) Node() scene.Node        { return l.p.sprite }
func (l *Image) Sprite() *scene.Sprite   { return l.p.sprite }
func (l *Image) Source() Source          { return l.p.src }
func (l *Image) Destroy()                { l.p.sprite.Destroy() }
func (l *Image) withAttrs(a Attrs) Layer { c := *l; c.Attrs = a; return &c }

// SetSource swaps the pixel data; the sprite keeps its transform.
func (l *Image) SetSource(src Source) {
	if src.Data != nil && (src.Width == 0 || src.Height == 0) {
		b := src.Data.Bounds()
		src.Width, src.Height = b.Dx(), b.Dy()
	}
	l.p.src = src
	l.p.sprite.Texture = src.Data
}

func (l *Image) duplicate(a Attrs) (Layer, error) {
	sp := l.p.sprite.Clone()
	sp.SetLabel(a.Name)
	return &Image{Attrs: a, p: &imagePayload{sprite: sp, src: l.p.src}}, nil
}

type adjustmentPayload struct {
	container *scene.Container
	kind      filter.KindSpec
	filters   []filter.Adjustable
	values    map[string]float64
}

// Adjustment applies a filter chain to the layers it composites in its private container.
type Adjustment struct {
	Attrs
	// ClipToBelow scopes the effect to the nearest content directly below.
	ClipToBelow bool
	p           *adjustmentPayload
}

// NewAdjustment creates an adjustment layer of a catalog kind with default parameters.
func NewAdjustment(name, kind string, cat *filter.Catalog) (*Adjustment, error) {
	if cat == nil {
		cat = filter.Default()
	}
	k, fs, err := cat.Build(kind)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = k.Title
	}
	return &Adjustment{Attrs: newAttrs(name), p: newAdjustmentPayload(name, k, fs)}, nil
}

func newAdjustmentPayload(name string, k filter.KindSpec, fs []filter.Adjustable) *adjustmentPayload {
	c := scene.NewContainer()
	c.SortableChildren = true
	c.SetLabel(name)
	sf := make([]scene.Filter, len(fs))
	vals := make(map[string]float64, len(k.Params))
	for i, f := range fs {
		sf[i] = f
	}
	for _, p := range k.Params {
		vals[p.Name] = p.Clamp(p.Default)
	}
	c.SetFilters(sf)
	return &adjustmentPayload{container: c, kind: k, filters: fs, values: vals}
}

func (l *Adjustment) Base() Attrs                  { return l.Attrs }
func (l *Adjustment) Node() scene.Node             { return l.p.container }
func (l *Adjustment) Container() *scene.Container  { return l.p.container }
func (l *Adjustment) Kind() string                 { return l.p.kind.Name }
func (l *Adjustment) Title() string                { return l.p.kind.Title }
func (l *Adjustment) Description() string          { return l.p.kind.Description }
func (l *Adjustment) Params() []filter.ParamSpec   { return append([]filter.ParamSpec(nil), l.p.kind.Params...) }
func (l *Adjustment) Filters() []filter.Adjustable { return append([]filter.Adjustable(nil), l.p.filters...) }
func (l *Adjustment) Destroy()                     { l.p.container.Destroy() }
func (l *Adjustment) withAttrs(a Attrs) Layer      { c := *l; c.Attrs = a; return &c }

// Param returns the current value of a named parameter.
func (l *Adjustment) Param(name string) (float64, bool) {
	v, ok := l.p.values[name]
	return v, ok
}

// SetParam assigns a named parameter, clamped to its declared range.
// Unknown names and non-finite values are rejected and the prior value is kept.
func (l *Adjustment) SetParam(name string, v float64) bool {
	got, ok := filter.Apply(l.p.kind, l.p.filters, name, v)
	if !ok {
		return false
	}
	l.p.values[name] = got
	return true
}

// SetFiltersEnabled toggles every filter of the chain.
func (l *Adjustment) SetFiltersEnabled(on bool) {
	for _, f := range l.p.filters {
		f.SetEnabled(on)
	}
}

func (l *Adjustment) duplicate(a Attrs) (Layer, error) {
	fs, err := filter.Instantiate(l.p.kind)
	if err != nil {
		return nil, fmt.Errorf("duplicate %s: %w", l.p.kind.Name, err)
	}
	d := &Adjustment{Attrs: a, ClipToBelow: l.ClipToBelow, p: newAdjustmentPayload(a.Name, l.p.kind, fs)}
	for name, v := range l.p.values {
		d.SetParam(name, v)
	}
	return d, nil
}

// Background is a flat fill, conventionally the bottom layer of a canvas.
type Background struct {
	Attrs
	g *scene.Graphics
}

func NewBackground(name string, size geom.Size, c color.NRGBA) *Background {
	g := scene.NewGraphics(geom.R(0, 0, size.W, size.H), c)
	g.SetLabel(name)
	return &Background{Attrs: newAttrs(name), g: g}
}

func (l *Background) Base() Attrs               { return l.Attrs }
func (l *Background) Node() scene.Node          { return l.g }
func (l *Background) Graphics() *scene.Graphics { return l.g }
func (l *Background) Color() color.NRGBA        { return l.g.Color }
func (l *Background) SetColor(c color.NRGBA)    { l.g.Color = c }
func (l *Background) Size() geom.Size           { return geom.Size{W: l.g.Rect.W, H: l.g.Rect.H} }
func (l *Background) Resize(s geom.Size)        { l.g.Rect = geom.R(0, 0, s.W, s.H) }
func (l *Background) Destroy()                  { l.g.Destroy() }
func (l *Background) withAttrs(a Attrs) Layer   { c := *l; c.Attrs = a; return &c }

func (l *Background) duplicate(a Attrs) (Layer, error) {
	g := l.g.Clone()
	g.SetLabel(a.Name)
	return &Background{Attrs: a, g: g}, nil
}
