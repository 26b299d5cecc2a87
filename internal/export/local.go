/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"log/slog"
	"sort"

	xdraw "golang.org/x/image/draw"

	applog "photoprox/internal/log"
)

// LocalEncoder encodes in-process. It writes png, jpeg and gif; webp is decode-only here.
type LocalEncoder struct {
	// Scaler resamples when the requested size differs. Nil means CatmullRom.
	Scaler xdraw.Scaler
}

func (e LocalEncoder) Encode(ctx context.Context, img image.Image, req Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("nothing to encode")
	}
	req = req.Normalized()
	if req.Format == FormatWEBP {
		return nil, fmt.Errorf("%w: webp encoding needs the remote encoder", ErrUnsupportedFormat)
	}
	l := applog.WithOperation(applog.WithComponent("export"), "encode")
	src := e.resample(img, req)

	var buf bytes.Buffer
	var err error
	switch req.Format {
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: pngLevel(req.Compression)}
		var out image.Image = src
		if req.Colors > 0 {
			out = quantize(src, req.Colors)
		}
		err = enc.Encode(&buf, out)
	case FormatJPEG:
		err = jpeg.Encode(&buf, flatten(src), &jpeg.Options{Quality: req.Quality})
	case FormatGIF:
		n := req.Colors
		if n == 0 {
			n = 256
		}
		err = gif.Encode(&buf, src, &gif.Options{NumColors: n, Quantizer: popularity{}, Drawer: xdraw.FloydSteinberg})
	}
	if err != nil {
		l.Error("encode failed", slog.String("format", string(req.Format)), slog.Any("err", err))
		return nil, fmt.Errorf("encode %s: %w", req.Format, err)
	}
	if buf.Len() == 0 {
		return nil, ErrEmptyResult
	}
	l.Debug("encoded", slog.String("format", string(req.Format)), slog.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

func (e LocalEncoder) resample(img image.Image, req Request) image.Image {
	b := img.Bounds()
	size := req.TargetSize(b.Size())
	if size == b.Size() {
		return img
	}
	s := e.Scaler
	if s == nil {
		s = xdraw.CatmullRom
	}
	dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	s.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

func pngLevel(c Compression) png.CompressionLevel {
	switch c {
	case CompressionNone:
		return png.NoCompression
	case CompressionFast:
		return png.BestSpeed
	case CompressionBest:
		return png.BestCompression
	}
	return png.DefaultCompression
}

// flatten composites img over white; jpeg has no alpha channel.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	xdraw.Draw(dst, b, image.White, image.Point{}, xdraw.Src)
	xdraw.Draw(dst, b, img, b.Min, xdraw.Over)
	return dst
}

// quantize reduces img to n colors with error diffusion.
func quantize(img image.Image, n int) *image.Paletted {
	b := img.Bounds()
	pal := popularity{}.Quantize(make(color.Palette, 0, n), img)
	dst := image.NewPaletted(b, pal)
	xdraw.FloydSteinberg.Draw(dst, b, img, b.Min)
	return dst
}

// popularity picks the most frequent colors after reducing each channel to 5 bits.
type popularity struct{}

func (popularity) Quantize(p color.Palette, m image.Image) color.Palette {
	n := cap(p) - len(p)
	if n <= 0 {
		return p
	}
	type bucket struct {
		count      int
		r, g, b, a uint64
	}
	buckets := map[uint32]*bucket{}
	bnd := m.Bounds()
	for y := bnd.Min.Y; y < bnd.Max.Y; y++ {
		for x := bnd.Min.X; x < bnd.Max.X; x++ {
			c := color.NRGBAModel.Convert(m.At(x, y)).(color.NRGBA)
			key := uint32(c.R>>3)<<15 | uint32(c.G>>3)<<10 | uint32(c.B>>3)<<5 | uint32(c.A>>3)
			bk := buckets[key]
			if bk == nil {
				bk = &bucket{}
				buckets[key] = bk
			}
			bk.count++
			bk.r += uint64(c.R)
			bk.g += uint64(c.G)
			bk.b += uint64(c.B)
			bk.a += uint64(c.A)
		}
	}
	keys := make([]uint32, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := buckets[keys[i]].count, buckets[keys[j]].count
		if ci != cj {
			return ci > cj
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	for _, k := range keys {
		bk := buckets[k]
		cnt := uint64(bk.count)
		p = append(p, color.NRGBA{R: uint8(bk.r / cnt), G: uint8(bk.g / cnt), B: uint8(bk.b / cnt), A: uint8(bk.a / cnt)})
	}
	if len(p) == 0 {
		p = append(p, color.Transparent)
	}
	return p
}
