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
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"photoprox/internal/geom"
	"photoprox/internal/scene"
)

func near(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestConvergenceIsMonotone(t *testing.T) {
	p := DefaultParams()
	s := State{CurrentZoom: 1, TargetZoom: 2}
	prev := math.Abs(s.TargetZoom - s.CurrentZoom)
	settled := false
	for i := 0; i < 500; i++ {
		s, _ = Step(s, p)
		d := math.Abs(s.TargetZoom - s.CurrentZoom)
		if s.CurrentZoom > s.TargetZoom {
			t.Fatalf("frame %d overshot: %v", i, s.CurrentZoom)
		}
		if settled {
			if d > p.ZoomThreshold {
				t.Fatalf("frame %d drifted back out: %v", i, d)
			}
			continue
		}
		if d >= prev {
			t.Fatalf("frame %d did not shrink the gap: %v -> %v", i, prev, d)
		}
		if d <= p.ZoomThreshold {
			settled = true
		}
		prev = d
	}
	if !settled {
		t.Fatal("never converged")
	}
	if s.Phase(p) != PhaseIdle {
		t.Fatalf("phase = %s", s.Phase(p))
	}
}

func TestWheelSmallZoomStep(t *testing.T) {
	p := DefaultParams()
	s := State{CurrentZoom: 0.1, TargetZoom: 0.1}
	s = Wheel(s, WheelEvent{DeltaY: -120, Ctrl: true, Screen: geom.Pt{X: 10, Y: 10}}, p)
	if !near(s.TargetZoom, 0.11, 1e-12) {
		t.Fatalf("target = %v", s.TargetZoom)
	}
	if !s.ZoomFromUser || s.Phase(p) != PhaseUserZoom {
		t.Fatal("wheel zoom should mark a user zoom")
	}
	s = Wheel(s, WheelEvent{DeltaY: 120, Meta: true}, p)
	if !near(s.TargetZoom, 0.1, 1e-12) {
		t.Fatalf("zoom out target = %v", s.TargetZoom)
	}
}

func TestWheelMultiplicativeStepAndClamp(t *testing.T) {
	p := DefaultParams()
	s := NewState()
	s = Wheel(s, WheelEvent{DeltaY: -1, Ctrl: true}, p)
	if !near(s.TargetZoom, 1.1, 1e-12) {
		t.Fatalf("zoom in = %v", s.TargetZoom)
	}
	s = Wheel(s, WheelEvent{DeltaY: 1, Ctrl: true}, p)
	if !near(s.TargetZoom, 1, 1e-12) {
		t.Fatalf("zoom out = %v", s.TargetZoom)
	}
	hi := Wheel(State{CurrentZoom: 4.9, TargetZoom: 4.9}, WheelEvent{DeltaY: -1, Ctrl: true}, p)
	if hi.TargetZoom != 5 {
		t.Fatalf("upper clamp = %v", hi.TargetZoom)
	}
	lo := Wheel(State{CurrentZoom: 0.05, TargetZoom: 0.05}, WheelEvent{DeltaY: 1, Ctrl: true}, p)
	if lo.TargetZoom != 0.05 {
		t.Fatalf("lower clamp = %v", lo.TargetZoom)
	}
	same := Wheel(s, WheelEvent{Ctrl: true}, p)
	if same != s {
		t.Fatal("zero delta should be ignored")
	}
	bad := Wheel(s, WheelEvent{DeltaY: math.NaN(), Ctrl: true}, p)
	if bad != s {
		t.Fatal("NaN delta should be ignored")
	}
}

func TestCursorAnchoredZoomKeepsWorldPoint(t *testing.T) {
	p := DefaultParams()
	s := State{CurrentZoom: 1, TargetZoom: 1, CurrentPos: geom.Pt{X: 20, Y: -10}, TargetPos: geom.Pt{X: 20, Y: -10}}
	cursor := geom.Pt{X: 300, Y: 200}
	world := s.ToWorld(cursor)
	for i := 0; i < 3; i++ {
		s = Wheel(s, WheelEvent{DeltaY: -1, Ctrl: true, Screen: cursor}, p)
	}
	for i := 0; i < 200 && s.ZoomFromUser; i++ {
		var a Apply
		s, a = Step(s, p)
		if !a.Changed {
			continue
		}
		onScreen := a.Pos.Add(world.Mul(a.Scale))
		if !onScreen.Eq(cursor, 1e-9) {
			t.Fatalf("frame %d: world point moved to %+v", i, onScreen)
		}
		if s.TargetPos != s.CurrentPos {
			t.Fatal("pan target should follow the anchored position")
		}
	}
	if s.ZoomFromUser {
		t.Fatal("user zoom flag should clear after convergence")
	}
}

func TestWheelPan(t *testing.T) {
	p := DefaultParams()
	s := Wheel(NewState(), WheelEvent{DeltaX: 4, DeltaY: 10}, p)
	if s.TargetPos != (geom.Pt{X: -4, Y: -10}) {
		t.Fatalf("target pos = %+v", s.TargetPos)
	}
	if s.ZoomFromUser {
		t.Fatal("plain wheel must not start a zoom")
	}
	s, a := Step(s, p)
	if !a.Changed || !near(a.Pos.Y, -1.5, 1e-12) || a.Scale != 1 {
		t.Fatalf("pan step = %+v", a)
	}
	h := Wheel(NewState(), WheelEvent{DeltaY: 10, Shift: true}, p)
	if h.TargetPos != (geom.Pt{X: -10}) {
		t.Fatalf("shift pan = %+v", h.TargetPos)
	}
}

func TestStepIdleIsNoop(t *testing.T) {
	p := DefaultParams()
	s := NewState()
	next, a := Step(s, p)
	if a.Changed || next != s {
		t.Fatalf("idle step changed state: %+v", a)
	}
}

func TestFitAndFill(t *testing.T) {
	p := DefaultParams()
	s := Fit(NewState(), geom.Size{W: 200, H: 100}, geom.Size{W: 400, H: 400}, 0, p)
	if s.TargetZoom != 2 || s.TargetPos != (geom.Pt{X: 0, Y: 100}) {
		t.Fatalf("fit = %v %+v", s.TargetZoom, s.TargetPos)
	}
	f := Fill(NewState(), geom.Size{W: 100, H: 50}, geom.Size{W: 200, H: 200}, p)
	if f.TargetZoom != 4 {
		t.Fatalf("fill = %v", f.TargetZoom)
	}
	user := Wheel(NewState(), WheelEvent{DeltaY: -1, Ctrl: true}, p)
	if Fit(user, geom.Size{W: 10, H: 10}, geom.Size{W: 20, H: 20}, 0, p).ZoomFromUser {
		t.Fatal("fit must clear the user zoom flag")
	}
	if got := Fit(s, geom.Size{}, geom.Size{W: 1, H: 1}, 0, p); got != s {
		t.Fatal("degenerate fit should be ignored")
	}
	if got := SetTargetZoom(s, math.NaN(), p); got != s {
		t.Fatal("NaN zoom should be ignored")
	}
	if got := SetTargetZoom(s, 40, p); got.TargetZoom != 5 {
		t.Fatalf("zoom clamp = %v", got.TargetZoom)
	}
}

func TestFitHugeContentUsesMinZoom(t *testing.T) {
	p := DefaultParams()
	s := Fit(NewState(), geom.Size{W: 100000, H: 100000}, geom.Size{W: 300, H: 300}, 0, p)
	if s.TargetZoom != p.MinZoom {
		t.Fatalf("target zoom = %v, want %v", s.TargetZoom, p.MinZoom)
	}
	if !near(s.TargetPos.X, -2350, 1e-9) || !near(s.TargetPos.Y, -2350, 1e-9) {
		t.Fatalf("target pos = %+v", s.TargetPos)
	}
}

func TestWheelStepsFromTargetWhileSettling(t *testing.T) {
	p := DefaultParams()
	s := State{CurrentZoom: 0.1, TargetZoom: 0.3}
	s = Wheel(s, WheelEvent{DeltaY: -120, Ctrl: true}, p)
	if !near(s.TargetZoom, 0.33, 1e-12) {
		t.Fatalf("target = %v, want 0.33", s.TargetZoom)
	}
	if s.CurrentZoom != 0.1 {
		t.Fatalf("wheel must not move the current zoom: %v", s.CurrentZoom)
	}
}

func TestNormalize(t *testing.T) {
	p := Params{ZoomSpeed: 3, MinZoom: 10, MaxZoom: 1, StepFactor: 0.5, PanThreshold: math.NaN()}.Normalize()
	d := DefaultParams()
	if p != d {
		t.Fatalf("normalize = %+v", p)
	}
	custom := DefaultParams()
	custom.ZoomSpeed = 0.3
	if custom.Normalize().ZoomSpeed != 0.3 {
		t.Fatal("valid values must be kept")
	}
}

func TestControllerDrivesContainer(t *testing.T) {
	root := scene.NewContainer()
	var frames int
	var mu sync.Mutex
	c := NewController(root, DefaultParams(), WithGuard(&mu), WithOnApply(func(Apply) { frames++ }))
	root.AddChild(scene.NewContainer())
	c.FitContent(geom.Size{W: 200, H: 100}, geom.Size{W: 400, H: 400}, 0)
	if c.Phase() != PhaseSettling {
		t.Fatalf("phase = %s", c.Phase())
	}
	for i := 0; i < 300; i++ {
		c.Tick()
	}
	if !near(root.Scale(), 2, 0.01) || !near(root.Position().Y, 100, 1) {
		t.Fatalf("root transform = %v %+v", root.Scale(), root.Position())
	}
	if frames == 0 || root.Len() != 1 {
		t.Fatalf("frames=%d children=%d", frames, root.Len())
	}
	c.PanBy(50, 0)
	c.ZoomTo(math.Inf(1))
	if st := c.State(); st.TargetZoom != 2 || st.TargetPos.X != 50 {
		t.Fatalf("state = %+v", st)
	}
}

type fakeXF struct {
	mu    sync.Mutex
	scale float64
	pos   geom.Pt
	sets  int
}

func (f *fakeXF) Scale() float64 { f.mu.Lock(); defer f.mu.Unlock(); return f.scale }
func (f *fakeXF) SetScale(s float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scale = s
	f.sets++
}
func (f *fakeXF) Position() geom.Pt     { f.mu.Lock(); defer f.mu.Unlock(); return f.pos }
func (f *fakeXF) SetPosition(p geom.Pt) { f.mu.Lock(); defer f.mu.Unlock(); f.pos = p }

func TestRunStopsOnCancel(t *testing.T) {
	xf := &fakeXF{scale: 1}
	c := NewController(xf, DefaultParams())
	c.ZoomTo(2)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, 200) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
	if xf.Scale() <= 1 {
		t.Fatalf("frame loop did not advance zoom: %v", xf.Scale())
	}
}
