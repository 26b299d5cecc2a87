/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package filter

import (
	"image"
	"image/color"
	"math"
	"strings"
	"testing"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestColorMatrixIdentity(t *testing.T) {
	c := NewColorMatrix()
	m := c.Matrix()
	want := [20]float64{1, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 1, 0}
	for i := range m {
		if math.Abs(m[i]-want[i]) > 1e-9 {
			t.Fatalf("identity matrix mismatch at %d: got %v", i, m)
		}
	}
	img := solid(2, 2, color.RGBA{R: 10, G: 120, B: 240, A: 255})
	c.Apply(img)
	if img.Pix[0] != 10 || img.Pix[1] != 120 || img.Pix[2] != 240 {
		t.Fatalf("identity changed pixel: %v", img.Pix[:4])
	}
}

func TestColorMatrixBrightnessAndSaturation(t *testing.T) {
	c := NewColorMatrix()
	if !c.Set("brightness", 0.5) {
		t.Fatal("brightness rejected")
	}
	img := solid(1, 1, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	c.Apply(img)
	if img.Pix[0] != 100 || img.Pix[1] != 50 || img.Pix[2] != 25 {
		t.Fatalf("unexpected brightness result: %v", img.Pix[:4])
	}

	g := NewColorMatrix()
	g.Set("saturation", 0)
	img = solid(1, 1, color.RGBA{R: 255, G: 0, B: 0, A: 255})
	g.Apply(img)
	if img.Pix[0] != img.Pix[1] || img.Pix[1] != img.Pix[2] {
		t.Fatalf("desaturated pixel should be grey: %v", img.Pix[:4])
	}
}

func TestColorMatrixRejectsNaN(t *testing.T) {
	c := NewColorMatrix()
	if c.Set("contrast", math.NaN()) {
		t.Fatal("NaN accepted")
	}
	if v, _ := c.Get("contrast"); v != 1 {
		t.Fatalf("contrast changed to %v", v)
	}
	if c.Set("gamma", 1) {
		t.Fatal("unknown parameter accepted")
	}
}

func TestBlurKeepsSolidAndSpreadsEdges(t *testing.T) {
	img := solid(8, 8, color.RGBA{R: 40, G: 80, B: 120, A: 255})
	NewBlur(3).Apply(img)
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 40 || img.Pix[i+3] != 255 {
			t.Fatalf("solid image changed at %d: %v", i, img.Pix[i:i+4])
		}
	}

	dot := image.NewRGBA(image.Rect(0, 0, 9, 9))
	dot.Pix[dot.PixOffset(4, 4)+3] = 255
	NewBlur(3).Apply(dot)
	if dot.Pix[dot.PixOffset(4, 4)+3] == 255 {
		t.Fatal("center not spread")
	}
	if dot.Pix[dot.PixOffset(3, 4)+3] == 0 {
		t.Fatal("neighbour untouched")
	}

	zero := solid(3, 3, color.RGBA{A: 255})
	zero.Pix[0] = 255
	NewBlur(0).Apply(zero)
	if zero.Pix[0] != 255 {
		t.Fatal("radius 0 should be a no-op")
	}
}

func TestThreshold(t *testing.T) {
	img := solid(2, 1, color.RGBA{R: 30, G: 30, B: 30, A: 255})
	img.Pix[4], img.Pix[5], img.Pix[6] = 220, 220, 220
	th := NewThreshold(0.5)
	th.Apply(img)
	if img.Pix[0] != 0 || img.Pix[4] != 255 {
		t.Fatalf("unexpected threshold output: %v", img.Pix)
	}
	th.Set("invert", 1)
	th.Apply(img)
	if img.Pix[0] != 255 || img.Pix[4] != 0 {
		t.Fatalf("unexpected inverted output: %v", img.Pix)
	}
}

func TestDropShadowPaintsBehind(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 6, 6))
	o := img.PixOffset(1, 1)
	img.Pix[o], img.Pix[o+3] = 255, 255
	d := NewDropShadow()
	d.Set("blur", 0)
	d.Set("offset_x", 2)
	d.Set("offset_y", 2)
	d.Apply(img)
	if img.Pix[o] != 255 || img.Pix[o+3] != 255 {
		t.Fatalf("content lost: %v", img.Pix[o:o+4])
	}
	s := img.PixOffset(3, 3)
	if img.Pix[s+3] != 128 || img.Pix[s] != 0 {
		t.Fatalf("shadow pixel: %v", img.Pix[s:s+4])
	}
}

func TestBloomBrightensHighlightsOnly(t *testing.T) {
	img := solid(4, 1, color.RGBA{R: 20, G: 20, B: 20, A: 255})
	o := img.PixOffset(3, 0)
	img.Pix[o], img.Pix[o+1], img.Pix[o+2] = 200, 200, 200
	b := NewBloom()
	b.Set("blur", 0)
	b.Apply(img)
	if img.Pix[0] != 20 {
		t.Fatalf("dark pixel changed: %v", img.Pix[:4])
	}
	if img.Pix[o] != 255 {
		t.Fatalf("highlight not boosted: %v", img.Pix[o:o+4])
	}
}

func TestDisabledToggle(t *testing.T) {
	for _, name := range []string{"colormatrix", "blur", "threshold", "bloom", "dropshadow"} {
		f, err := New(name)
		if err != nil {
			t.Fatalf("New(%s): %v", name, err)
		}
		if f.Name() != name || !f.Enabled() {
			t.Fatalf("%s: name %q enabled %v", name, f.Name(), f.Enabled())
		}
		f.SetEnabled(false)
		if f.Enabled() {
			t.Fatalf("%s still enabled", name)
		}
	}
	if _, err := New("sepia"); err == nil {
		t.Fatal("expected error for unknown filter")
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	want := []string{"brightness-contrast", "hue-saturation", "blur", "threshold", "bloom", "drop-shadow"}
	if got := strings.Join(c.Names(), ","); got != strings.Join(want, ",") {
		t.Fatalf("kinds = %s", got)
	}
	for _, name := range want {
		k, fs, err := c.Build(name)
		if err != nil {
			t.Fatalf("build %s: %v", name, err)
		}
		for _, p := range k.Params {
			got, ok := fs[p.Filter].Get(p.Key)
			if !ok || got != p.Default {
				t.Fatalf("%s.%s = %v, want %v", name, p.Name, got, p.Default)
			}
		}
	}
	if _, _, err := c.Build("posterize"); err == nil {
		t.Fatal("expected unknown kind error")
	}
}

func TestApplyClampsAndRejects(t *testing.T) {
	k, fs, err := Default().Build("brightness-contrast")
	if err != nil {
		t.Fatal(err)
	}
	v, ok := Apply(k, fs, "brightness", 7)
	if !ok || v != 2 {
		t.Fatalf("clamp: %v %v", v, ok)
	}
	if _, ok := Apply(k, fs, "brightness", math.NaN()); ok {
		t.Fatal("NaN accepted")
	}
	if got, _ := fs[0].Get("brightness"); got != 2 {
		t.Fatalf("prior value not retained: %v", got)
	}
	if _, ok := Apply(k, fs, "exposure", 1); ok {
		t.Fatal("unknown param accepted")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"schema":    `{"version":1,"kinds":[{"name":"x","title":"X","filters":["sepia"],"params":[]}]}`,
		"index":     `{"version":1,"kinds":[{"name":"x","title":"X","filters":["blur"],"params":[{"name":"r","type":"number","filter":1,"key":"radius","default":0}]}]}`,
		"duplicate": `{"version":1,"kinds":[{"name":"x","title":"X","filters":["blur"],"params":[]},{"name":"x","title":"Y","filters":["blur"],"params":[]}]}`,
		"range":     `{"version":1,"kinds":[{"name":"x","title":"X","filters":["blur"],"params":[{"name":"r","type":"number","filter":0,"key":"radius","min":5,"max":1,"default":0}]}]}`,
	}
	for name, doc := range cases {
		if _, err := Load([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
