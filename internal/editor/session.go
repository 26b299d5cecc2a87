/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package editor ties the layer model, the resolver, the viewport and the
// external services together into one editing session per canvas.
package editor

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"photoprox/internal/bgremove"
	"photoprox/internal/compose"
	"photoprox/internal/export"
	"photoprox/internal/filter"
	"photoprox/internal/geom"
	"photoprox/internal/layer"
	applog "photoprox/internal/log"
	"photoprox/internal/recompose"
	"photoprox/internal/scene"
	"photoprox/internal/telemetry"
	"photoprox/internal/thumbcache"
	"photoprox/internal/undo"
	"photoprox/internal/viewport"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// Options configure a Session. Zero values select defaults.
type Options struct {
	Canvas         string
	Box            geom.Size
	Viewport       viewport.Params
	FPS            int
	RecomposeDelay time.Duration
	Mode           compose.EditMode
	Catalog        *filter.Catalog
	History        undo.Config
	Encoder        export.Encoder
	Remover        bgremove.Remover
	Telemetry      telemetry.Recorder
	// CacheDir enables the thumbnail cache. Open failures are logged and the
	// session renders thumbnails uncached.
	CacheDir      string
	CacheMaxBytes int64
}

// Session is one open canvas. The scene graph is shared by the resolver, the
// viewport controller and the renderer; mu serializes all of them.
type Session struct {
	mu       sync.Mutex
	canvas   string
	root     *scene.Container
	renderer *scene.Renderer
	resolver *compose.Resolver
	layers   *layer.Manager
	sched    *recompose.Scheduler[layer.Stack]
	vp       *viewport.Controller
	catalog  *filter.Catalog
	encoder  export.Encoder
	remover  bgremove.Remover
	cache    *thumbcache.Cache
	tel      telemetry.Recorder
	fps      int
	log      *slog.Logger
	// lctx tags session log records with the canvas id.
	lctx     context.Context

	mode      compose.EditMode
	box       geom.Size
	fitted    bool
	last      compose.Result
	revisions map[layer.ID]int64

	notices *notices

	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// New opens a session. The recomposition worker starts immediately; the
// frame loop starts with Start.
func New(opts Options) (*Session, error) {
	mode := opts.Mode
	if mode == "" {
		mode = compose.ModeView
	}
	if _, err := compose.ParseMode(string(mode)); err != nil {
		return nil, err
	}
	canvas := opts.Canvas
	if canvas == "" {
		canvas = string(layer.NewID())
	}
	cat := opts.Catalog
	if cat == nil {
		cat = filter.Default()
	}
	enc := opts.Encoder
	if enc == nil {
		enc = export.LocalEncoder{}
	}
	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.Nop{}
	}
	s := &Session{
		canvas:    canvas,
		root:      scene.NewContainer(),
		renderer:  scene.NewRenderer(),
		resolver:  compose.NewResolver(),
		layers:    layer.NewManager(canvas, undo.NewManager[layer.Stack](opts.History)),
		catalog:   cat,
		encoder:   enc,
		remover:   opts.Remover,
		tel:       tel,
		fps:       opts.FPS,
		log:       applog.WithComponent("editor"),
		lctx:      applog.WithCanvas(context.Background(), canvas),
		mode:      mode,
		box:       opts.Box,
		revisions: make(map[layer.ID]int64),
		notices:   newNotices(32),
	}
	s.root.SortableChildren = true
	s.vp = viewport.NewController(s.root, opts.Viewport, viewport.WithGuard(&s.mu))
	s.sched = recompose.New(opts.RecomposeDelay, s.layers.Snapshot, s.recompose)
	s.layers.OnChange(func(layer.Stack) { s.sched.MarkDirty() })
	if opts.CacheDir != "" {
		c, err := thumbcache.Open(opts.CacheDir, opts.CacheMaxBytes)
		if err != nil {
			s.log.WarnContext(s.lctx, "thumbnail cache unavailable", slog.Any("err", err))
		} else {
			s.cache = c
		}
	}
	s.log.InfoContext(s.lctx, "session opened", slog.String("mode", string(mode)))
	return s, nil
}

// recompose is the scheduler sink: one resolver pass over the latest stack.
func (s *Session) recompose(stack layer.Stack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.last = s.resolver.Resolve(stack, s.root, s.mode)
}

func (s *Session) Canvas() string { return s.canvas }

// Manager exposes the layer stack for reads and attribute edits. Operations
// that detach or mutate scene nodes (Remove, Undo, Redo, SetParam,
// SetBackground) must go through the Session.
func (s *Session) Manager() *layer.Manager { return s.layers }

func (s *Session) Viewport() *viewport.Controller { return s.vp }

// Layers returns the current stack.
func (s *Session) Layers() layer.Stack { return s.layers.Snapshot() }

func (s *Session) Catalog() *filter.Catalog { return s.catalog }

func (s *Session) Mode() compose.EditMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches the editing mode and schedules a pass so draggability follows.
func (s *Session) SetMode(m compose.EditMode) error {
	if _, err := compose.ParseMode(string(m)); err != nil {
		return err
	}
	s.mu.Lock()
	changed := s.mode != m
	s.mode = m
	s.mu.Unlock()
	if changed {
		s.sched.MarkDirty()
	}
	return nil
}

// Sync runs a pending recomposition now.
func (s *Session) Sync() bool { return s.sched.Flush() }

// Passes reports how many recompositions have run.
func (s *Session) Passes() int64 { return s.sched.Passes() }

// Start runs the viewport frame loop until ctx is cancelled or Close is called.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.cancel != nil {
		s.mu.Unlock()
		return errors.New("session already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.vp.Run(ctx, s.fps); err != nil && !errors.Is(err, context.Canceled) {
			s.log.DebugContext(s.lctx, "frame loop ended", slog.Any("err", err))
		}
	}()
	return nil
}

// Close stops the frame loop, drops any pending pass and destroys every node.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.sched.Close()

	s.mu.Lock()
	s.layers.Close()
	s.root.Destroy()
	s.mu.Unlock()

	var err error
	if s.cache != nil {
		err = s.cache.Close()
	}
	s.notices.close()
	s.log.InfoContext(s.lctx, "session closed")
	return err
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// contentSize is the size of the active background or, without one, the
// union of all image bounds.
func contentSize(stack layer.Stack) geom.Size {
	if bg, ok := layer.ActiveBackground(stack); ok {
		return bg.Size()
	}
	var u geom.Rect
	for _, l := range stack {
		if img, ok := l.(*layer.Image); ok {
			u = u.Union(img.Sprite().Bounds())
		}
	}
	return geom.Size{W: u.X + u.W, H: u.Y + u.H}
}

// ContentSize reports the canvas size used for fitting and export.
func (s *Session) ContentSize() geom.Size {
	stack := s.layers.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	return contentSize(stack)
}

func colorRevision(c color.NRGBA) int64 {
	return int64(c.R)<<24 | int64(c.G)<<16 | int64(c.B)<<8 | int64(c.A)
}

func (s *Session) event(name string, props map[string]any) {
	s.tel.Event(name, props)
}

func (s *Session) fail(op string, err error) error { return s.failCtx(s.lctx, op, err) }

// failCtx logs through ctx so records carry its canvas and any caller attrs.
func (s *Session) failCtx(ctx context.Context, op string, err error) error {
	s.log.WarnContext(ctx, op+" failed", slog.Any("err", err))
	s.notices.push(Notice{Level: LevelError, Op: op, Text: fmt.Sprintf("%s failed: %v", op, err), Err: err})
	return err
}
