/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package viewport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"photoprox/internal/geom"
	applog "photoprox/internal/log"
)

// Transformer is the root transform the controller drives. *scene.Container satisfies it.
type Transformer interface {
	Scale() float64
	SetScale(s float64)
	Position() geom.Pt
	SetPosition(p geom.Pt)
}

// Option configures a Controller.
type Option func(*Controller)

// WithGuard makes the controller hold l while writing the transform, for
// transformers that are read concurrently (e.g. by a renderer).
func WithGuard(l sync.Locker) Option { return func(c *Controller) { c.guard = l } }

// WithOnApply registers fn to run after every frame that changed the transform.
func WithOnApply(fn func(Apply)) Option { return func(c *Controller) { c.onApply = fn } }

// Controller owns the root transform of one canvas. Input handlers only move
// the target; Tick moves the transform. It never touches the children of the root.
type Controller struct {
	mu      sync.Mutex
	xf      Transformer
	state   State
	params  Params
	guard   sync.Locker
	onApply func(Apply)
	log     *slog.Logger
}

// NewController starts from the transformer's current scale and position.
func NewController(xf Transformer, p Params, opts ...Option) *Controller {
	c := &Controller{xf: xf, params: p.Normalize(), log: applog.WithComponent("viewport")}
	for _, o := range opts {
		o(c)
	}
	c.lockXF()
	z, pos := xf.Scale(), xf.Position()
	c.unlockXF()
	if !geom.Valid(z) || z <= 0 {
		z = 1
	}
	c.state = State{CurrentZoom: z, TargetZoom: z, CurrentPos: pos, TargetPos: pos}
	return c
}

func (c *Controller) lockXF() {
	if c.guard != nil {
		c.guard.Lock()
	}
}

func (c *Controller) unlockXF() {
	if c.guard != nil {
		c.guard.Unlock()
	}
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Params() Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// Phase reports what the controller is doing right now.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Phase(c.params)
}

func (c *Controller) HandleWheel(ev WheelEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Wheel(c.state, ev, c.params)
}

// FitContent targets a zoom at which content, rotated by deg, fits in box.
func (c *Controller) FitContent(content, box geom.Size, deg float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Fit(c.state, content, box, deg, c.params)
	c.log.Debug("fit", slog.Float64("zoom", c.state.TargetZoom))
}

// FillContent targets a zoom at which content covers box.
func (c *Controller) FillContent(content, box geom.Size) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Fill(c.state, content, box, c.params)
	c.log.Debug("fill", slog.Float64("zoom", c.state.TargetZoom))
}

// ZoomTo sets a programmatic zoom target. NaN and non-positive values are ignored.
func (c *Controller) ZoomTo(z float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = SetTargetZoom(c.state, z, c.params)
}

func (c *Controller) PanBy(dx, dy float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = PanBy(c.state, geom.Pt{X: dx, Y: dy})
}

// Tick advances one frame and writes the transform when it changed.
func (c *Controller) Tick() Apply {
	c.mu.Lock()
	var a Apply
	c.state, a = Step(c.state, c.params)
	fn := c.onApply
	c.mu.Unlock()
	if !a.Changed {
		return a
	}
	c.lockXF()
	c.xf.SetScale(a.Scale)
	c.xf.SetPosition(a.Pos)
	c.unlockXF()
	if fn != nil {
		fn(a)
	}
	return a
}

// Run ticks at fps until ctx is cancelled. fps <= 0 means 60.
func (c *Controller) Run(ctx context.Context, fps int) error {
	if fps <= 0 {
		fps = 60
	}
	t := time.NewTicker(time.Second / time.Duration(fps))
	defer t.Stop()
	c.log.Debug("frame loop started", slog.Int("fps", fps))
	for {
		select {
		case <-ctx.Done():
			c.log.Debug("frame loop stopped")
			return ctx.Err()
		case <-t.C:
			c.Tick()
		}
	}
}
