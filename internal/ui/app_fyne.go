//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"photoprox/internal/compose"
	"photoprox/internal/editor"
	"photoprox/internal/export"
	"photoprox/internal/geom"
	"photoprox/internal/layer"
	applog "photoprox/internal/log"
	"photoprox/internal/viewport"
)

// Run opens the viewer window and blocks until it is closed.
func Run(opts Options) error {
	l := applog.WithComponent("ui")
	s, err := editor.New(opts.Session)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	a := app.NewWithID("photoprox")
	title := opts.Title
	if title == "" {
		title = "PhotoProX"
	}
	w := a.NewWindow(title)
	prefs := a.Preferences()
	w.Resize(fyne.NewSize(float32(max(prefs.IntWithFallback("window.width", 1200), 640)), float32(max(prefs.IntWithFallback("window.height", 800), 480))))

	st := newStage(s)
	status := widget.NewLabel("Ready")

	for _, p := range opts.Images {
		data, err := os.ReadFile(p)
		if err != nil {
			l.Warn("open image failed", slog.String("path", p), slog.Any("err", err))
			continue
		}
		if _, err := s.AddEncoded(data, "", filepath.Base(p)); err != nil {
			l.Warn("add image failed", slog.String("path", p), slog.Any("err", err))
		}
	}

	var stack layer.Stack
	layers := widget.NewList(
		func() int { return len(stack) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(i widget.ListItemID, o fyne.CanvasObject) {
			if i < 0 || i >= len(stack) {
				return
			}
			// front-most first
			li := stack[len(stack)-1-i]
			attrs := li.Base()
			mark := ""
			if adj, ok := li.(*layer.Adjustment); ok && adj.ClipToBelow {
				mark = " (clip)"
			}
			if !attrs.Visible {
				mark += " (hidden)"
			}
			o.(*widget.Label).SetText(fmt.Sprintf("%s · %s%s", attrs.Name, layer.Kind(li), mark))
		},
	)
	layers.OnSelected = func(i widget.ListItemID) {
		if i >= 0 && i < len(stack) {
			s.Manager().Select(stack[len(stack)-1-i].Base().ID)
		}
	}
	refreshLayers := func() {
		stack = layer.Sort(s.Layers())
		layers.Refresh()
	}
	refreshLayers()

	modes := make([]string, 0, len(compose.Modes))
	for _, m := range compose.Modes {
		modes = append(modes, string(m))
	}
	modeSel := widget.NewSelect(modes, func(v string) {
		if err := s.SetMode(compose.EditMode(v)); err != nil {
			status.SetText(err.Error())
		}
	})
	modeSel.SetSelected(string(s.Mode()))

	clip := widget.NewCheck("Clip", nil)
	kindSel := widget.NewSelect(s.Catalog().Names(), nil)
	addAdj := widget.NewButton("Add adjustment", func() {
		if kindSel.Selected == "" {
			return
		}
		if _, err := s.AddAdjustment(kindSel.Selected, clip.Checked); err == nil {
			refreshLayers()
		}
	})
	fit := widget.NewButton("Fit", func() {
		sz := st.pixelSize()
		s.Resize(sz.W, sz.H)
	})
	undoBtn := widget.NewButton("Undo", func() { s.Undo(); refreshLayers() })
	redoBtn := widget.NewButton("Redo", func() { s.Redo(); refreshLayers() })
	removeBg := widget.NewButton("Remove background", func() {
		id, ok := s.Manager().Target()
		if !ok {
			status.SetText("Select an image layer first")
			return
		}
		status.SetText("Removing background…")
		go func() { _ = s.RemoveBackground(context.Background(), id) }()
	})
	exportBtn := widget.NewButton("Export…", func() {
		dialog.ShowFileSave(func(wc fyne.URIWriteCloser, err error) {
			if err != nil || wc == nil {
				return
			}
			go exportTo(s, wc)
		}, w)
	})
	toolbar := container.NewHBox(modeSel, kindSel, clip, addAdj, fit, undoBtn, redoBtn, removeBg, exportBtn)

	if dc, ok := w.Canvas().(desktop.Canvas); ok {
		dc.SetOnKeyDown(func(e *fyne.KeyEvent) { st.mods.Key(string(e.Name), true) })
		dc.SetOnKeyUp(func(e *fyne.KeyEvent) { st.mods.Key(string(e.Name), false) })
	}
	w.SetContent(container.NewBorder(toolbar, status, container.NewVScroll(layers), nil, st))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		return err
	}
	go repaint(ctx, s, st, refreshLayers)
	go func() {
		for n := range s.Notices() {
			text := n.Text
			fyne.Do(func() { status.SetText(text) })
		}
	}()

	w.SetOnClosed(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
	})
	l.Info("viewer started", slog.Int("images", len(opts.Images)))
	w.ShowAndRun()
	return nil
}

// repaint refreshes the stage while the viewport moves or a pass ran.
func repaint(ctx context.Context, s *editor.Session, st *stage, onStack func()) {
	t := time.NewTicker(time.Second / 60)
	defer t.Stop()
	var passes int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p := s.Passes()
			moving := s.Viewport().Phase() != viewport.PhaseIdle
			if !moving && p == passes {
				continue
			}
			changed := p != passes
			passes = p
			fyne.Do(func() {
				st.Refresh()
				if changed {
					onStack()
				}
			})
		}
	}
}

func exportTo(s *editor.Session, wc fyne.URIWriteCloser) {
	defer func() { _ = wc.Close() }()
	format := export.FormatFromPath(wc.URI().Path())
	if format == "" {
		format = export.FormatPNG
	}
	out, err := s.Export(context.Background(), export.Request{Format: format})
	if err != nil {
		return
	}
	_, _ = wc.Write(out)
}

// stage shows Session frames and turns pointer input into viewport and drag
// operations.
type stage struct {
	widget.BaseWidget
	s        *editor.Session
	raster   *canvas.Raster
	mods     Modifiers
	dragging layer.ID
	panning  bool
}

func newStage(s *editor.Session) *stage {
	st := &stage{s: s}
	st.raster = canvas.NewRaster(func(w, h int) image.Image { return s.Frame(w, h) })
	st.ExtendBaseWidget(st)
	return st
}

func (st *stage) CreateRenderer() fyne.WidgetRenderer { return widget.NewSimpleRenderer(st.raster) }

func (st *stage) MinSize() fyne.Size { return fyne.NewSize(320, 240) }

func (st *stage) scale() float64 {
	if c := fyne.CurrentApp().Driver().CanvasForObject(st); c != nil {
		return float64(c.Scale())
	}
	return 1
}

type pixels struct{ W, H float64 }

func (st *stage) pixelSize() pixels {
	k := st.scale()
	sz := st.Size()
	return pixels{W: float64(sz.Width) * k, H: float64(sz.Height) * k}
}

func (st *stage) Resize(size fyne.Size) {
	st.BaseWidget.Resize(size)
	px := st.pixelSize()
	st.s.Resize(px.W, px.H)
}

func (st *stage) Scrolled(e *fyne.ScrollEvent) {
	st.s.Viewport().HandleWheel(st.mods.Wheel(float64(e.Scrolled.DX), float64(e.Scrolled.DY), float64(e.Position.X), float64(e.Position.Y), st.scale()))
}

func (st *stage) Dragged(e *fyne.DragEvent) {
	k := st.scale()
	if st.dragging == "" && !st.panning {
		pt := geom.Pt{X: float64(e.Position.X) * k, Y: float64(e.Position.Y) * k}
		if id, ok := st.s.Pick(pt); ok {
			st.dragging = id
			st.s.Manager().Select(id)
		} else {
			st.panning = true
		}
	}
	dx, dy := float64(e.Dragged.DX)*k, float64(e.Dragged.DY)*k
	if st.dragging != "" {
		st.s.Drag(st.dragging, dx, dy)
	} else {
		st.s.Viewport().PanBy(dx, dy)
	}
	st.Refresh()
}

func (st *stage) DragEnd() {
	st.dragging = ""
	st.panning = false
}
