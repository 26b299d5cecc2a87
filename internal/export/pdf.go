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
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/jung-kurt/gofpdf"

	"photoprox/internal/version"
)

// WritePDF writes a single-page PDF whose page is exactly the image at dpi.
func WritePDF(w io.Writer, img image.Image, dpi float64, title string) error {
	if img == nil {
		return fmt.Errorf("nothing to write")
	}
	if dpi <= 0 {
		dpi = 300
	}
	b := img.Bounds()
	if b.Empty() {
		return fmt.Errorf("empty image")
	}
	// Points per pixel (1pt = 1/72")
	scale := 72.0 / dpi
	wd, ht := float64(b.Dx())*scale, float64(b.Dy())*scale

	var raw bytes.Buffer
	if err := png.Encode(&raw, img); err != nil {
		return fmt.Errorf("encode page image: %w", err)
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: wd, Ht: ht},
	})
	if title != "" {
		pdf.SetTitle(title, true)
	}
	pdf.SetCreator("PhotoProX "+version.String(), true)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPageFormat("", gofpdf.SizeType{Wd: wd, Ht: ht})
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("canvas", opts, &raw)
	pdf.ImageOptions("canvas", 0, 0, wd, ht, false, opts, 0, "")
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// WritePDFFile is WritePDF into a new file, creating parent directories.
func WritePDFFile(path string, img image.Image, dpi float64, title string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create pdf: %w", err)
	}
	if err := WritePDF(f, img, dpi, title); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close pdf: %w", err)
	}
	return nil
}
