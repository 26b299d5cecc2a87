/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package editor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"photoprox/internal/geom"
	"photoprox/internal/layer"
	"photoprox/internal/scene"
)

// AddImage puts img in front of every layer. The first image of a session
// fits the viewport to the content.
func (s *Session) AddImage(img image.Image, name string) (layer.ID, error) {
	return s.addImage(layer.Source{Data: img}, name)
}

// AddEncoded decodes data and adds it as an image layer. The original bytes are
// kept for services that want the source file.
func (s *Session) AddEncoded(data []byte, format, name string) (layer.ID, error) {
	return s.addImage(layer.Source{Format: format, Encoded: data}, name)
}

func (s *Session) addImage(src layer.Source, name string) (layer.ID, error) {
	if s.isClosed() {
		return "", ErrClosed
	}
	if src.Data == nil && len(src.Encoded) > 0 {
		img, format, err := decodeSource(src.Encoded)
		if err != nil {
			return "", s.fail("add image", err)
		}
		src.Data = img
		if src.Format == "" {
			src.Format = format
		}
	}
	if src.Data == nil || src.Data.Bounds().Empty() {
		return "", s.fail("add image", errors.New("empty image"))
	}
	if name == "" {
		name = fmt.Sprintf("Image %d", s.layers.Len()+1)
	}
	l := layer.NewImage(name, src)
	if !s.layers.Add(l) {
		return "", fmt.Errorf("layer %s already present", l.ID)
	}
	s.event("layer_add", map[string]any{"kind": "image", "w": src.Data.Bounds().Dx(), "h": src.Data.Bounds().Dy()})

	s.mu.Lock()
	first := !s.fitted
	s.fitted = true
	box := s.box
	s.mu.Unlock()
	if first && box.W > 0 && box.H > 0 {
		s.vp.FitContent(s.ContentSize(), box, 0)
	}
	return l.ID, nil
}

// AddAdjustment adds an adjustment layer of a catalog kind in front of
// every layer. clip restricts it to the nearest content below.
func (s *Session) AddAdjustment(kind string, clip bool) (layer.ID, error) {
	if s.isClosed() {
		return "", ErrClosed
	}
	adj, err := layer.NewAdjustment("", kind, s.catalog)
	if err != nil {
		return "", s.fail("add adjustment", err)
	}
	adj.ClipToBelow = clip
	if !s.layers.Add(adj) {
		return "", fmt.Errorf("layer %s already present", adj.ID)
	}
	s.event("layer_add", map[string]any{"kind": "adjustment", "filter": kind, "clip": clip})
	return adj.ID, nil
}

// SetBackground replaces the active background with a flat fill sized to the
// content, or to the viewport when the canvas is empty.
func (s *Session) SetBackground(c color.NRGBA) (layer.ID, error) {
	if s.isClosed() {
		return "", ErrClosed
	}
	size := s.ContentSize()
	s.mu.Lock()
	defer s.mu.Unlock()
	if size.W <= 0 || size.H <= 0 {
		size = s.box
	}
	if size.W <= 0 || size.H <= 0 {
		return "", errors.New("background needs a content or viewport size")
	}
	bg := layer.NewBackground("Background", size, c)
	if !s.layers.SetBackground(bg) {
		return "", errors.New("background not replaced")
	}
	s.revisions[bg.ID] = colorRevision(c)
	s.event("layer_add", map[string]any{"kind": "background"})
	return bg.ID, nil
}

// Remove drops a layer from the stack.
func (s *Session) Remove(id layer.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layers.Remove(id)
}

func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layers.Undo()
}

func (s *Session) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layers.Redo()
}

// SetParam changes an adjustment parameter. NaN is ignored.
func (s *Session) SetParam(id layer.ID, name string, v float64) bool {
	if !geom.Valid(v) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layers.SetParam(id, name, v)
}

// Resize records the viewport size and fits the content into it.
func (s *Session) Resize(w, h float64) {
	if !geom.Valid(w) || !geom.Valid(h) || w <= 0 || h <= 0 {
		return
	}
	content := s.ContentSize()
	s.mu.Lock()
	s.box = geom.Size{W: w, H: h}
	s.fitted = s.fitted || (content.W > 0 && content.H > 0)
	s.mu.Unlock()
	if content.W > 0 && content.H > 0 {
		s.vp.FitContent(content, geom.Size{W: w, H: h}, 0)
	}
}

// Pick returns the draggable image layer under a screen point.
func (s *Session) Pick(screen geom.Pt) (layer.ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp := scene.HitTest(s.root, screen)
	if sp == nil {
		return "", false
	}
	return s.last.Layer(sp)
}

// Drag moves an image layer by a screen-space delta. It only works in modes
// that make sprites draggable.
func (s *Session) Drag(id layer.ID, dx, dy float64) bool {
	if !geom.Valid(dx) || !geom.Valid(dy) {
		return false
	}
	l, ok := s.layers.Get(id)
	if !ok {
		return false
	}
	img, ok := l.(*layer.Image)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sp := img.Sprite()
	if !sp.Draggable {
		return false
	}
	z := s.root.Scale()
	if z <= 0 {
		z = 1
	}
	sp.Position = sp.Position.Add(geom.Pt{X: dx / z, Y: dy / z})
	s.log.DebugContext(s.lctx, "layer dragged", slog.String("layer", string(id)), slog.Float64("x", sp.Position.X), slog.Float64("y", sp.Position.Y))
	return true
}
