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
	"testing"
	"time"
)

func snap(canvas, state string, cost int, ts time.Time) Snapshot[string] {
	return Snapshot[string]{Canvas: canvas, State: state, Cost: cost, TS: ts}
}

func TestUndoRedoBasic(t *testing.T) {
	m := NewManager[string](Config{MaxCost: 100, MaxPerCanvas: 10, MinInterval: 10 * time.Millisecond})
	t0 := time.Now()
	m.Push(snap("c", "a", 1, t0))
	m.Push(snap("c", "b", 1, t0.Add(20*time.Millisecond)))
	if _, canvases, total := m.Stats(); canvases != 1 || total != 2 {
		t.Fatalf("expected 1 canvas and 2 snapshots, got canvases=%d total=%d", canvases, total)
	}
	s, ok := m.Undo("c", snap("", "c", 1, t0))
	if !ok || s.State != "b" {
		t.Fatalf("undo expected 'b', got ok=%v state=%q", ok, s.State)
	}
	if !m.CanRedo("c") {
		t.Fatal("expected redo to be available")
	}
	s, ok = m.Redo("c", snap("", "b", 1, t0))
	if !ok || s.State != "c" {
		t.Fatalf("redo expected 'c', got ok=%v state=%q", ok, s.State)
	}
	s, ok = m.Undo("c", snap("", "c", 1, t0))
	if !ok || s.State != "b" {
		t.Fatalf("second undo expected 'b', got ok=%v state=%q", ok, s.State)
	}
}

func TestPushClearsRedo(t *testing.T) {
	m := NewManager[string](Config{MinInterval: time.Millisecond})
	t0 := time.Now()
	m.Push(snap("c", "a", 1, t0))
	m.Undo("c", snap("", "b", 1, t0))
	m.Push(snap("c", "a", 1, t0.Add(time.Second)))
	if m.CanRedo("c") {
		t.Fatal("redo should be cleared by a new push")
	}
}

func TestCoalesceKeepsEarliestState(t *testing.T) {
	m := NewManager[string](Config{MaxCost: 100, MaxPerCanvas: 10, MinInterval: 50 * time.Millisecond})
	t0 := time.Now()
	m.Push(snap("c", "1", 1, t0))
	m.Push(snap("c", "2", 1, t0.Add(10*time.Millisecond)))
	m.Push(snap("c", "3", 1, t0.Add(40*time.Millisecond)))
	_, _, total := m.Stats()
	if total != 1 {
		t.Fatalf("expected coalesced to 1 snapshot, got %d", total)
	}
	s, ok := m.Undo("c", snap("", "4", 1, t0))
	if !ok || s.State != "1" {
		t.Fatalf("expected earliest state '1', got ok=%v state=%q", ok, s.State)
	}
}

func TestCoalesceWindowStartsAtFirstPush(t *testing.T) {
	m := NewManager[string](Config{MaxCost: 100, MaxPerCanvas: 10, MinInterval: 250 * time.Millisecond})
	t0 := time.Now()
	for i, st := range []string{"empty", "image", "background", "adjustment", "hidden"} {
		m.Push(snap("c", st, 1, t0.Add(time.Duration(i)*100*time.Millisecond)))
	}
	_, _, total := m.Stats()
	if total != 2 {
		t.Fatalf("expected 2 snapshots for a 400ms chain, got %d", total)
	}
	s, ok := m.Undo("c", snap("", "now", 1, t0))
	if !ok || s.State != "adjustment" {
		t.Fatalf("first undo: ok=%v state=%q", ok, s.State)
	}
	s, ok = m.Undo("c", snap("", "adjustment", 1, t0))
	if !ok || s.State != "empty" {
		t.Fatalf("second undo: ok=%v state=%q", ok, s.State)
	}
}

func TestCaps(t *testing.T) {
	m := NewManager[string](Config{MaxCost: 20, MaxPerCanvas: 2, MinInterval: time.Millisecond})
	t0 := time.Now()
	for i := 0; i < 10; i++ {
		m.Push(snap("c", "x", 5, t0.Add(time.Duration(i)*time.Second)))
	}
	cost, _, total := m.Stats()
	if total > 2 || cost != 10 {
		t.Fatalf("expected depth cap of 2 (cost 10), got total=%d cost=%d", total, cost)
	}
}

func TestGlobalPruneAcrossCanvases(t *testing.T) {
	m := NewManager[string](Config{MaxCost: 8, MinInterval: time.Millisecond})
	t0 := time.Now()
	m.Push(snap("one", "x", 4, t0))
	m.Push(snap("two", "y", 4, t0.Add(time.Second)))
	m.Push(snap("two", "z", 4, t0.Add(2*time.Second)))
	if _, ok := m.Undo("one", snap("", "", 0, t0)); ok {
		t.Fatal("expected canvas one to have been pruned")
	}
	if _, ok := m.Undo("two", snap("", "", 0, t0)); !ok {
		t.Fatal("expected canvas two to keep snapshots")
	}
}

func TestClearCanvasAndStats(t *testing.T) {
	m := NewManager[string](Config{MinInterval: time.Millisecond})
	m.Push(snap("c", "a", 3, time.Now()))
	if cost, canvases, total := m.Stats(); cost != 3 || canvases != 1 || total != 1 {
		t.Fatalf("unexpected stats before clear: cost=%d canvases=%d total=%d", cost, canvases, total)
	}
	m.ClearCanvas("c")
	if cost, canvases, total := m.Stats(); cost != 0 || canvases != 0 || total != 0 {
		t.Fatalf("expected zero stats after clear, got cost=%d canvases=%d total=%d", cost, canvases, total)
	}
	if m.CanUndo("c") {
		t.Fatal("history should be gone")
	}
}
