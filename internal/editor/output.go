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
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"math"
	"time"

	xdraw "golang.org/x/image/draw"

	"photoprox/internal/export"
	"photoprox/internal/geom"
	"photoprox/internal/layer"
	applog "photoprox/internal/log"
	"photoprox/internal/thumbcache"
)

// ErrNoPreview is returned for layers that have no pixels of their own.
var ErrNoPreview = errors.New("layer has no preview")

// ErrNoRemover is returned when no background-removal service is configured.
var ErrNoRemover = errors.New("background removal not configured")

func decodeSource(b []byte) (image.Image, string, error) {
	img, format, err := export.DecodeBytes(b)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// Frame renders what the viewport currently shows into a w×h image.
func (s *Session) Frame(w, h int) *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renderer.Render(s.root, w, h)
}

// Render draws the whole canvas at content size, ignoring zoom and pan.
func (s *Session) Render() (*image.RGBA, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	s.sched.Flush()
	size := s.ContentSize()
	w, h := int(math.Ceil(size.W)), int(math.Ceil(size.H))
	if w <= 0 || h <= 0 {
		return nil, errors.New("canvas is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	z, pos := s.root.Scale(), s.root.Position()
	s.root.SetScale(1)
	s.root.SetPosition(geom.Pt{})
	img := s.renderer.Render(s.root, w, h)
	s.root.SetScale(z)
	s.root.SetPosition(pos)
	return img, nil
}

// Export renders the canvas and encodes it. Failures are reported as a
// notice and leave the stack untouched.
func (s *Session) Export(ctx context.Context, req export.Request) ([]byte, error) {
	ctx = applog.WithCanvas(ctx, s.canvas)
	if err := req.Validate(); err != nil {
		return nil, s.failCtx(ctx, "export", err)
	}
	img, err := s.Render()
	if err != nil {
		return nil, s.failCtx(ctx, "export", err)
	}
	start := time.Now()
	out, err := s.encoder.Encode(ctx, img, req)
	if err != nil {
		return nil, s.failCtx(ctx, "export", err)
	}
	s.log.InfoContext(ctx, "exported", slog.String("format", string(req.Format)), slog.Int("bytes", len(out)), slog.Duration("took", time.Since(start)))
	s.event("export", map[string]any{"format": string(req.Format), "bytes": len(out)})
	s.notices.push(Notice{Level: LevelInfo, Op: "export", Text: fmt.Sprintf("Exported %s (%d bytes)", req.Format, len(out))})
	return out, nil
}

// ExportPDF writes the rendered canvas as a single-page PDF.
func (s *Session) ExportPDF(w io.Writer, dpi float64, title string) error {
	img, err := s.Render()
	if err != nil {
		return s.fail("export pdf", err)
	}
	if err := export.WritePDF(w, img, dpi, title); err != nil {
		return s.fail("export pdf", err)
	}
	s.event("export", map[string]any{"format": "pdf"})
	return nil
}

// Thumbnail returns a PNG preview of a layer that fits in size×size.
func (s *Session) Thumbnail(ctx context.Context, id layer.ID, size int) ([]byte, error) {
	ctx = applog.WithCanvas(ctx, s.canvas)
	if size <= 0 {
		return nil, fmt.Errorf("invalid thumbnail size %d", size)
	}
	l, ok := s.layers.Get(id)
	if !ok {
		return nil, fmt.Errorf("layer %s not found", id)
	}
	if _, isAdj := l.(*layer.Adjustment); isAdj {
		return nil, ErrNoPreview
	}
	s.mu.Lock()
	rev := s.revisions[id]
	s.mu.Unlock()
	render := func(context.Context) (image.Image, error) { return s.thumbImage(l, size) }
	if s.cache == nil {
		img, err := render(ctx)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return s.cache.GetOrRender(ctx, thumbcache.Key{Layer: string(id), Revision: rev, W: size, H: size}, render)
}

func (s *Session) thumbImage(l layer.Layer, size int) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var src image.Image
	switch v := l.(type) {
	case *layer.Image:
		src = v.Source().Data
	case *layer.Background:
		sz := v.Size()
		src = image.NewUniform(v.Color())
		return scaled(src, sz, size), nil
	}
	if src == nil {
		return nil, ErrNoPreview
	}
	b := src.Bounds()
	return scaled(src, geom.Size{W: float64(b.Dx()), H: float64(b.Dy())}, size), nil
}

// scaled resamples src of size sz into the largest box fitting size×size.
func scaled(src image.Image, sz geom.Size, size int) image.Image {
	k := 1.0
	if sz.W > 0 && sz.H > 0 {
		k = math.Min(float64(size)/sz.W, float64(size)/sz.H)
	}
	w := max(1, int(math.Round(sz.W*k)))
	h := max(1, int(math.Round(sz.H*k)))
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if u, ok := src.(*image.Uniform); ok {
		xdraw.Draw(dst, dst.Bounds(), u, image.Point{}, xdraw.Src)
		return dst
	}
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}

// RemoveBackground sends an image layer to the background-removal service and
// swaps in the result. A failed call leaves the layer as it was.
func (s *Session) RemoveBackground(ctx context.Context, id layer.ID) error {
	ctx = applog.WithCanvas(ctx, s.canvas)
	if s.remover == nil {
		return s.failCtx(ctx, "remove background", ErrNoRemover)
	}
	l, ok := s.layers.Get(id)
	if !ok {
		return s.failCtx(ctx, "remove background", fmt.Errorf("layer %s not found", id))
	}
	img, ok := l.(*layer.Image)
	if !ok {
		return s.failCtx(ctx, "remove background", fmt.Errorf("layer %s is not an image", id))
	}
	src := img.Source()
	payload := src.Encoded
	if len(payload) == 0 {
		var buf bytes.Buffer
		if err := png.Encode(&buf, src.Data); err != nil {
			return s.failCtx(ctx, "remove background", err)
		}
		payload = buf.Bytes()
	}
	start := time.Now()
	out, err := s.remover.Remove(ctx, payload)
	s.event("bg_remove", map[string]any{"ok": err == nil, "ms": time.Since(start).Milliseconds()})
	if err != nil {
		return s.failCtx(ctx, "remove background", err)
	}
	res, format, err := decodeSource(out)
	if err != nil {
		return s.failCtx(ctx, "remove background", err)
	}
	s.mu.Lock()
	img.SetSource(layer.Source{Format: format, Data: res, Encoded: out})
	s.revisions[id]++
	s.mu.Unlock()
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, string(id)); err != nil {
			s.log.DebugContext(ctx, "thumb invalidate failed", slog.Any("err", err))
		}
	}
	s.sched.MarkDirty()
	s.notices.push(Notice{Level: LevelInfo, Op: "remove background", Text: "Background removed"})
	return nil
}
