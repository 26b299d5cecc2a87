/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package export encodes rendered canvases. Encoding happens locally or on a
// remote image service behind the same Encoder contract; PDF output wraps a
// rendered canvas in a single page.
package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned when an encoder cannot produce the requested format.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrEmptyResult is returned when an encoder produced no bytes.
	ErrEmptyResult = errors.New("encoder returned no data")
)

// Format is an output image format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWEBP Format = "webp"
	FormatGIF  Format = "gif"
)

// ParseFormat accepts a format name or common file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "webp":
		return FormatWEBP, nil
	case "gif":
		return FormatGIF, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// FormatFromPath guesses the format from a file extension, defaulting to PNG.
func FormatFromPath(path string) Format {
	if f, err := ParseFormat(filepath.Ext(path)); err == nil {
		return f
	}
	return FormatPNG
}

func (f Format) Ext() string {
	if f == FormatJPEG {
		return ".jpg"
	}
	return "." + string(f)
}

func (f Format) MIME() string { return "image/" + string(f) }

// Compression selects the PNG deflate level.
type Compression string

const (
	CompressionDefault Compression = "default"
	CompressionNone    Compression = "none"
	CompressionFast    Compression = "fast"
	CompressionBest    Compression = "best"
)

// DefaultQuality is used for jpeg and webp when Quality is 0.
const DefaultQuality = 90

// Request describes one export. Zero Width and Height keep the source size;
// setting only one keeps the aspect ratio.
type Request struct {
	Format      Format      `yaml:"format" json:"format"`
	Width       int         `yaml:"width,omitempty" json:"width,omitempty"`
	Height      int         `yaml:"height,omitempty" json:"height,omitempty"`
	Quality     int         `yaml:"quality,omitempty" json:"quality,omitempty"`
	Compression Compression `yaml:"compression,omitempty" json:"compression,omitempty"`
	// Colors limits the palette; 0 keeps true color.
	Colors int `yaml:"colors,omitempty" json:"colors,omitempty"`
}

// Validate checks ranges without applying defaults.
func (r Request) Validate() error {
	if _, err := ParseFormat(string(r.Format)); err != nil {
		return err
	}
	if r.Width < 0 || r.Height < 0 {
		return fmt.Errorf("invalid size %dx%d", r.Width, r.Height)
	}
	if r.Quality < 0 || r.Quality > 100 {
		return fmt.Errorf("quality %d out of range 1-100", r.Quality)
	}
	switch r.Compression {
	case "", CompressionDefault, CompressionNone, CompressionFast, CompressionBest:
	default:
		return fmt.Errorf("unknown compression %q", r.Compression)
	}
	if r.Colors < 0 || r.Colors == 1 || r.Colors > 256 {
		return fmt.Errorf("colors %d out of range 2-256", r.Colors)
	}
	return nil
}

// Normalized fills defaults.
func (r Request) Normalized() Request {
	if f, err := ParseFormat(string(r.Format)); err == nil {
		r.Format = f
	}
	if r.Quality == 0 {
		r.Quality = DefaultQuality
	}
	if r.Compression == "" {
		r.Compression = CompressionDefault
	}
	return r
}

// TargetSize resolves the output size for a source of size src.
func (r Request) TargetSize(src image.Point) image.Point {
	w, h := r.Width, r.Height
	switch {
	case w == 0 && h == 0:
		return src
	case h == 0 && src.X > 0:
		h = max(1, (w*src.Y+src.X/2)/src.X)
	case w == 0 && src.Y > 0:
		w = max(1, (h*src.X+src.Y/2)/src.Y)
	}
	return image.Pt(w, h)
}

// Encoder turns a rendered image into encoded bytes.
type Encoder interface {
	Encode(ctx context.Context, img image.Image, req Request) ([]byte, error)
}

// PresetName names a bundled request.
type PresetName string

const (
	PresetWeb   PresetName = "web"
	PresetPrint PresetName = "print"
	PresetGIF   PresetName = "gif"
)

// Preset returns the request for a named preset.
func Preset(p PresetName) (Request, error) {
	switch p {
	case PresetWeb:
		return Request{Format: FormatJPEG, Quality: 82}, nil
	case PresetPrint:
		return Request{Format: FormatPNG, Compression: CompressionBest}, nil
	case PresetGIF:
		return Request{Format: FormatGIF, Colors: 128}, nil
	}
	return Request{}, fmt.Errorf("unknown preset %q", p)
}
