/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package undo

import (
	"sync"
	"time"
)

// Snapshot is one reversible state for a canvas.
// Cost is what the snapshot counts against the global cap (e.g. retained layer references).
// TS is when the snapshot was captured.
type Snapshot[T any] struct {
	Canvas string
	State  T
	Cost   int
	TS     time.Time
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxCost is a soft cap on the summed Cost of all undo entries; older entries are pruned when exceeded.
	MaxCost int
	// MaxPerCanvas limits number of snapshots per canvas kept in memory (0 means unlimited).
	MaxPerCanvas int
	// MinInterval coalesces snapshots captured within the interval after the first
	// snapshot of a burst on the same canvas. The earlier state is kept so one undo
	// reverts the burst; a burst never spans more than one interval.
	MinInterval time.Duration
}

// Manager provides an in-memory undo/redo stack per canvas with performance safeguards.
// It is safe for concurrent use.
type Manager[T any] struct {
	cfg Config
	mu  sync.Mutex
	// per-canvas stacks
	undo map[string][]Snapshot[T]
	redo map[string][]Snapshot[T]
	// accounting
	totalCost int
}

func NewManager[T any](cfg Config) *Manager[T] {
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 4096
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 250 * time.Millisecond
	}
	return &Manager[T]{cfg: cfg, undo: make(map[string][]Snapshot[T]), redo: make(map[string][]Snapshot[T])}
}

// Push records the state that preceded an edit. Within MinInterval of the
// newest kept snapshot on the same canvas the push is absorbed into it. Any
// push clears the canvas redo stack.
func (m *Manager[T]) Push(s Snapshot[T]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redo[s.Canvas] = nil
	stack := m.undo[s.Canvas]
	if n := len(stack); n > 0 && s.TS.Sub(stack[n-1].TS) < m.cfg.MinInterval {
		return
	}
	m.undo[s.Canvas] = append(stack, s)
	m.totalCost += s.Cost
	m.enforceCapsLocked(s.Canvas)
}

// Undo pops the most recent state for the canvas. current is kept on the
// redo stack so Redo can return to it.
func (m *Manager[T]) Undo(canvas string, current Snapshot[T]) (Snapshot[T], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[canvas]
	if len(stack) == 0 {
		return Snapshot[T]{}, false
	}
	s := stack[len(stack)-1]
	m.undo[canvas] = stack[:len(stack)-1]
	m.totalCost -= s.Cost
	current.Canvas = canvas
	m.redo[canvas] = append(m.redo[canvas], current)
	return s, true
}

// Redo pops from redo and keeps current on the undo stack.
func (m *Manager[T]) Redo(canvas string, current Snapshot[T]) (Snapshot[T], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.redo[canvas]
	if len(r) == 0 {
		return Snapshot[T]{}, false
	}
	s := r[len(r)-1]
	m.redo[canvas] = r[:len(r)-1]
	current.Canvas = canvas
	m.undo[canvas] = append(m.undo[canvas], current)
	m.totalCost += current.Cost
	m.enforceCapsLocked(canvas)
	return s, true
}

// CanUndo reports whether the canvas has history to step back into.
func (m *Manager[T]) CanUndo(canvas string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo[canvas]) > 0
}

func (m *Manager[T]) CanRedo(canvas string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo[canvas]) > 0
}

// ClearCanvas clears undo/redo stacks for a canvas to free memory.
func (m *Manager[T]) ClearCanvas(canvas string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.undo[canvas] {
		m.totalCost -= s.Cost
	}
	delete(m.undo, canvas)
	delete(m.redo, canvas)
	if m.totalCost < 0 {
		m.totalCost = 0
	}
}

// Stats returns current sizes for diagnostics.
func (m *Manager[T]) Stats() (totalCost int, canvases int, totalSnapshots int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	canvases = len(m.undo)
	for _, v := range m.undo {
		totalSnapshots += len(v)
	}
	return m.totalCost, canvases, totalSnapshots
}

func (m *Manager[T]) enforceCapsLocked(canvas string) {
	// Per-canvas depth cap
	if m.cfg.MaxPerCanvas > 0 {
		stack := m.undo[canvas]
		if len(stack) > m.cfg.MaxPerCanvas {
			toDrop := len(stack) - m.cfg.MaxPerCanvas
			for i := 0; i < toDrop; i++ {
				m.totalCost -= stack[i].Cost
			}
			m.undo[canvas] = append([]Snapshot[T]{}, stack[toDrop:]...)
		}
	}
	// Global cap: prune oldest across all canvases
	for m.cfg.MaxCost > 0 && m.totalCost > m.cfg.MaxCost {
		oldest := ""
		found := false
		var oldestTS time.Time
		for c, stack := range m.undo {
			if len(stack) == 0 {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldest = c
				found = true
				oldestTS = stack[0].TS
			}
		}
		if !found {
			break
		}
		stack := m.undo[oldest]
		m.totalCost -= stack[0].Cost
		m.undo[oldest] = stack[1:]
		if len(m.undo[oldest]) == 0 {
			delete(m.undo, oldest)
		}
	}
}
