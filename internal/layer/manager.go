/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package layer

import (
	"log/slog"
	"sync"
	"time"

	applog "photoprox/internal/log"
	"photoprox/internal/scene"
	"photoprox/internal/undo"
)

// Manager holds the live layer stack of one canvas together with the
// selected layer and its undo history. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	canvas   string
	stack    Stack
	target   ID
	history  *undo.Manager[Stack]
	onChange func(Stack)
	log      *slog.Logger
	now      func() time.Time
}

// NewManager creates a manager for a canvas. history may be nil to disable undo.
func NewManager(canvas string, history *undo.Manager[Stack]) *Manager {
	return &Manager{
		canvas:  canvas,
		history: history,
		log:     applog.WithComponent("layers").With(slog.String("canvas", canvas)),
		now:     time.Now,
	}
}

// OnChange registers fn to receive the new stack after every change.
// fn runs outside the manager lock.
func (m *Manager) OnChange(fn func(Stack)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Snapshot returns the current stack. The slice is not shared with the manager.
func (m *Manager) Snapshot() Stack {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append(Stack(nil), m.stack...)
}

// Get returns the current version of a layer.
func (m *Manager) Get(id ID) (Layer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Find(m.stack, id)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stack)
}

// Target returns the selected layer id; ok is false when nothing is selected.
func (m *Manager) Target() (ID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target, m.target != ""
}

// Select makes id the target. An id not in the stack clears the selection and reports false.
func (m *Manager) Select(id ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := Find(m.stack, id); !ok {
		m.target = ""
		return false
	}
	m.target = id
	return true
}

// Add puts l in front of every other layer and selects it.
func (m *Manager) Add(l Layer) bool {
	if l == nil {
		return false
	}
	return m.apply("add", func(s Stack) Stack {
		if _, dup := Find(s, l.Base().ID); dup {
			return s
		}
		a := l.Base()
		a.ZIndex = NextZ(s)
		m.target = a.ID
		return Add(s, l.withAttrs(a))
	})
}

// SetBackground replaces the active background. Replaced backgrounds are detached.
func (m *Manager) SetBackground(bg *Background) bool {
	var removed []Layer
	ok := m.apply("set-background", func(s Stack) Stack {
		var next Stack
		next, removed = ReplaceBackground(s, bg)
		return next
	})
	for _, l := range removed {
		scene.Detach(l.Node())
	}
	return ok
}

// Remove drops a layer and detaches its node. The node is kept alive for undo.
func (m *Manager) Remove(id ID) bool {
	l, found := m.Get(id)
	if !found {
		return false
	}
	ok := m.apply("remove", func(s Stack) Stack { return Remove(s, id) })
	if ok {
		scene.Detach(l.Node())
	}
	return ok
}

func (m *Manager) Move(id ID, k int) bool {
	return m.apply("move", func(s Stack) Stack { return Move(s, id, k) })
}

func (m *Manager) Forward(id ID) bool {
	return m.apply("forward", func(s Stack) Stack { return Forward(s, id) })
}

func (m *Manager) Backward(id ID) bool {
	return m.apply("backward", func(s Stack) Stack { return Backward(s, id) })
}

func (m *Manager) ToFront(id ID) bool {
	return m.apply("to-front", func(s Stack) Stack { return ToFront(s, id) })
}

func (m *Manager) ToBack(id ID) bool {
	return m.apply("to-back", func(s Stack) Stack { return ToBack(s, id) })
}

// Duplicate copies a layer above the original and selects the copy.
func (m *Manager) Duplicate(id ID) (ID, bool) {
	var dup Layer
	var dupErr error
	m.apply("duplicate", func(s Stack) Stack {
		next, d, err := Duplicate(s, id)
		if err != nil || d == nil {
			dupErr = err
			return s
		}
		dup = d
		m.target = d.Base().ID
		return next
	})
	if dupErr != nil {
		m.log.Warn("duplicate failed", slog.String("layer", string(id)), slog.Any("err", dupErr))
	}
	if dup == nil {
		return "", false
	}
	return dup.Base().ID, true
}

func (m *Manager) SetVisible(id ID, v bool) bool {
	return m.update("visible", id, func(a Attrs) Attrs { a.Visible = v; return a })
}

func (m *Manager) SetOpacity(id ID, o float64) bool {
	return m.update("opacity", id, func(a Attrs) Attrs { return a.WithOpacity(o) })
}

func (m *Manager) Rename(id ID, name string) bool {
	return m.update("rename", id, func(a Attrs) Attrs { a.Name = name; return a })
}

func (m *Manager) SetClip(id ID, clip bool) bool {
	return m.apply("clip", func(s Stack) Stack { return SetClip(s, id, clip) })
}

// SetParam changes an adjustment parameter. Parameters live in the filter chain
// and are not part of the undo history.
func (m *Manager) SetParam(id ID, name string, v float64) bool {
	l, ok := m.Get(id)
	if !ok {
		return false
	}
	adj, ok := l.(*Adjustment)
	if !ok || !adj.SetParam(name, v) {
		return false
	}
	m.notify(m.Snapshot())
	return true
}

func (m *Manager) update(op string, id ID, fn func(Attrs) Attrs) bool {
	return m.apply(op, func(s Stack) Stack { return Update(s, id, fn) })
}

// apply runs op under the lock, records history when the stack changed and
// notifies the change callback afterwards.
func (m *Manager) apply(op string, fn func(Stack) Stack) bool {
	m.mu.Lock()
	prev := m.stack
	next := fn(prev)
	if same(prev, next) {
		m.mu.Unlock()
		return false
	}
	if m.history != nil {
		m.history.Push(undo.Snapshot[Stack]{Canvas: m.canvas, State: prev, Cost: len(prev), TS: m.now()})
	}
	m.stack = next
	m.fixTargetLocked()
	m.mu.Unlock()
	m.log.Debug("stack changed", slog.String("op", op), slog.Int("layers", len(next)))
	m.notify(next)
	return true
}

func (m *Manager) fixTargetLocked() {
	if _, ok := Find(m.stack, m.target); !ok {
		m.target = ""
	}
}

func (m *Manager) notify(s Stack) {
	m.mu.Lock()
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn(append(Stack(nil), s...))
	}
}

// Undo restores the previous stack. Layers that disappear are detached.
func (m *Manager) Undo() bool { return m.step(true) }

// Redo re-applies a stack undone before.
func (m *Manager) Redo() bool { return m.step(false) }

func (m *Manager) step(back bool) bool {
	if m.history == nil {
		return false
	}
	m.mu.Lock()
	cur := undo.Snapshot[Stack]{Canvas: m.canvas, State: m.stack, Cost: len(m.stack), TS: m.now()}
	var s undo.Snapshot[Stack]
	var ok bool
	if back {
		s, ok = m.history.Undo(m.canvas, cur)
	} else {
		s, ok = m.history.Redo(m.canvas, cur)
	}
	if !ok {
		m.mu.Unlock()
		return false
	}
	gone := missing(m.stack, s.State)
	m.stack = s.State
	m.fixTargetLocked()
	next := m.stack
	m.mu.Unlock()
	for _, l := range gone {
		scene.Detach(l.Node())
	}
	m.notify(next)
	return true
}

// Close destroys the node of every layer and empties the stack.
func (m *Manager) Close() {
	m.mu.Lock()
	s := m.stack
	m.stack = nil
	m.target = ""
	m.mu.Unlock()
	for _, l := range s {
		l.Destroy()
	}
	if m.history != nil {
		m.history.ClearCanvas(m.canvas)
	}
}

func same(a, b Stack) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// missing lists layers of a whose id is absent from b.
func missing(a, b Stack) []Layer {
	var out []Layer
	for _, l := range a {
		if _, ok := Find(b, l.Base().ID); !ok {
			out = append(out, l)
		}
	}
	return out
}
