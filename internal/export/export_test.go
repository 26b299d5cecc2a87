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
	"errors"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func TestRequestValidate(t *testing.T) {
	good := []Request{
		{Format: FormatPNG},
		{Format: "jpg", Quality: 100},
		{Format: FormatGIF, Colors: 2},
		{Format: FormatPNG, Compression: CompressionBest, Width: 10},
	}
	for _, r := range good {
		if err := r.Validate(); err != nil {
			t.Fatalf("%+v: %v", r, err)
		}
	}
	bad := []Request{
		{Format: "tga"},
		{Format: FormatJPEG, Quality: 101},
		{Format: FormatPNG, Width: -1},
		{Format: FormatPNG, Colors: 1},
		{Format: FormatPNG, Colors: 300},
		{Format: FormatPNG, Compression: "ultra"},
	}
	for _, r := range bad {
		if err := r.Validate(); err == nil {
			t.Fatalf("%+v: expected error", r)
		}
	}
	if _, err := ParseFormat("bmp"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if FormatFromPath("/tmp/out.JPG") != FormatJPEG || FormatFromPath("noext") != FormatPNG {
		t.Fatal("format from path")
	}
}

func TestTargetSizeKeepsAspect(t *testing.T) {
	src := image.Pt(400, 200)
	cases := []struct {
		req  Request
		want image.Point
	}{
		{Request{}, src},
		{Request{Width: 100}, image.Pt(100, 50)},
		{Request{Height: 50}, image.Pt(100, 50)},
		{Request{Width: 10, Height: 10}, image.Pt(10, 10)},
	}
	for _, c := range cases {
		if got := c.req.TargetSize(src); got != c.want {
			t.Fatalf("%+v: got %v want %v", c.req, got, c.want)
		}
	}
}

func decodeOrFail(t *testing.T, b []byte) (image.Image, string) {
	t.Helper()
	img, format, err := DecodeBytes(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return img, format
}

func TestLocalEncoderFormats(t *testing.T) {
	ctx := context.Background()
	src := testImage(16, 8)
	enc := LocalEncoder{}

	b, err := enc.Encode(ctx, src, Request{Format: FormatPNG, Width: 32})
	if err != nil {
		t.Fatal(err)
	}
	img, format := decodeOrFail(t, b)
	if format != "png" || img.Bounds().Dx() != 32 || img.Bounds().Dy() != 16 {
		t.Fatalf("png: %s %v", format, img.Bounds())
	}

	b, err = enc.Encode(ctx, src, Request{Format: FormatJPEG, Quality: 50})
	if err != nil {
		t.Fatal(err)
	}
	if _, format := decodeOrFail(t, b); format != "jpeg" {
		t.Fatalf("jpeg: %s", format)
	}

	b, err = enc.Encode(ctx, src, Request{Format: FormatGIF, Colors: 8})
	if err != nil {
		t.Fatal(err)
	}
	img, format = decodeOrFail(t, b)
	pal, ok := img.(*image.Paletted)
	if format != "gif" || !ok || len(pal.Palette) > 8 {
		t.Fatalf("gif: %s %T", format, img)
	}

	b, err = enc.Encode(ctx, src, Request{Format: FormatPNG, Colors: 4, Compression: CompressionFast})
	if err != nil {
		t.Fatal(err)
	}
	img, _ = decodeOrFail(t, b)
	if pal, ok := img.(*image.Paletted); !ok || len(pal.Palette) > 4 {
		t.Fatalf("quantized png: %T", img)
	}
}

func TestLocalEncoderRejects(t *testing.T) {
	src := testImage(2, 2)
	if _, err := (LocalEncoder{}).Encode(context.Background(), src, Request{Format: FormatWEBP}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("webp: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (LocalEncoder{}).Encode(ctx, src, Request{Format: FormatPNG}); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled: %v", err)
	}
	if _, err := (LocalEncoder{}).Encode(context.Background(), src, Request{Format: FormatPNG, Quality: 500}); err == nil {
		t.Fatal("invalid request accepted")
	}
}

func TestPopularityPicksDominantColors(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 1))
	for x := 0; x < 10; x++ {
		c := color.RGBA{R: 255, A: 255}
		if x >= 7 {
			c = color.RGBA{B: 255, A: 255}
		}
		if x == 9 {
			c = color.RGBA{G: 255, A: 255}
		}
		img.Set(x, 0, c)
	}
	pal := popularity{}.Quantize(make(color.Palette, 0, 2), img)
	if len(pal) != 2 {
		t.Fatalf("palette size %d", len(pal))
	}
	if c := pal[0].(color.NRGBA); c.R != 255 || c.B != 0 {
		t.Fatalf("most frequent color first, got %+v", c)
	}
	if c := pal[1].(color.NRGBA); c.B != 255 {
		t.Fatalf("second color %+v", c)
	}
}

func TestRemoteEncoder(t *testing.T) {
	var gotQuery, gotAuth, gotType string
	var gotPayload []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotPayload, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte("WEBPDATA"))
	}))
	defer srv.Close()

	enc := NewRemoteEncoder(srv.URL+"/encode?key=1", "secret", 0)
	out, err := enc.Encode(context.Background(), testImage(8, 4), Request{Format: FormatWEBP, Width: 4, Quality: 70})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "WEBPDATA" {
		t.Fatalf("body = %q", out)
	}
	if gotAuth != "Bearer secret" || gotType != "image/png" {
		t.Fatalf("headers: auth=%q type=%q", gotAuth, gotType)
	}
	if want := "compression=default&format=webp&height=2&key=1&quality=70&width=4"; gotQuery != want {
		t.Fatalf("query = %q, want %q", gotQuery, want)
	}
	if _, format := decodeOrFail(t, gotPayload); format != "png" {
		t.Fatalf("payload format %s", format)
	}
}

func TestRemoteEncoderFailures(t *testing.T) {
	status := http.StatusInternalServerError
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()
	enc := NewRemoteEncoder(srv.URL, "", 0)
	if _, err := enc.Encode(context.Background(), testImage(2, 2), Request{Format: FormatPNG}); err == nil {
		t.Fatal("expected error for 500")
	}
	status = http.StatusOK
	if _, err := enc.Encode(context.Background(), testImage(2, 2), Request{Format: FormatPNG}); !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("expected ErrEmptyResult, got %v", err)
	}
	var unset *RemoteEncoder
	if unset.Configured() {
		t.Fatal("nil encoder is not configured")
	}
}

func TestFallbackUsesLocalWhenRemoteUnset(t *testing.T) {
	f := Fallback{Primary: NewRemoteEncoder("", "", 0), Secondary: LocalEncoder{}}
	b, err := f.Encode(context.Background(), testImage(4, 4), Request{Format: FormatPNG})
	if err != nil {
		t.Fatal(err)
	}
	if _, format := decodeOrFail(t, b); format != "png" {
		t.Fatalf("format %s", format)
	}
	if _, err := (Fallback{}).Encode(context.Background(), testImage(1, 1), Request{Format: FormatPNG}); err == nil {
		t.Fatal("expected error without encoders")
	}
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePDF(&buf, testImage(30, 20), 72, "Canvas"); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("not a pdf (%d bytes)", buf.Len())
	}
	path := filepath.Join(t.TempDir(), "nested", "out.pdf")
	if err := WritePDFFile(path, testImage(3, 3), 0, ""); err != nil {
		t.Fatal(err)
	}
	if st, err := os.Stat(path); err != nil || st.Size() == 0 {
		t.Fatalf("pdf file missing: %v", err)
	}
	if err := WritePDF(&buf, image.NewRGBA(image.Rect(0, 0, 0, 0)), 72, ""); err == nil {
		t.Fatal("empty image accepted")
	}
}

func TestDecodeAndPresets(t *testing.T) {
	if _, _, err := DecodeBytes([]byte("not an image")); err == nil {
		t.Fatal("garbage decoded")
	}
	path := filepath.Join(t.TempDir(), "a", "b.png")
	b, _ := (LocalEncoder{}).Encode(context.Background(), testImage(3, 2), Request{Format: FormatPNG})
	if err := WriteFile(path, b); err != nil {
		t.Fatal(err)
	}
	img, format, raw, err := DecodeFile(path)
	if err != nil || format != "png" || img.Bounds().Dx() != 3 || len(raw) != len(b) {
		t.Fatalf("decode file: %v %s", err, format)
	}
	for _, p := range []PresetName{PresetWeb, PresetPrint, PresetGIF} {
		r, err := Preset(p)
		if err != nil || r.Validate() != nil {
			t.Fatalf("preset %s: %v", p, err)
		}
	}
	if _, err := Preset("poster"); err == nil {
		t.Fatal("unknown preset accepted")
	}
}
