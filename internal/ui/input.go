/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package ui is the optional desktop viewer. The Fyne window is only built
// with -tags fyne and cgo; other builds get a stub Run.
package ui

import (
	"sync"

	"photoprox/internal/editor"
	"photoprox/internal/geom"
	"photoprox/internal/viewport"
)

// Options configure the viewer window.
type Options struct {
	Session editor.Options
	// Images are opened as layers on start.
	Images []string
	Title  string
}

// Modifiers tracks held modifier keys from key-down/key-up hooks, since
// scroll events do not carry them.
type Modifiers struct {
	mu   sync.Mutex
	held map[string]bool
}

// Key names as reported by the desktop driver.
const (
	keyCtrlLeft   = "LeftControl"
	keyCtrlRight  = "RightControl"
	keySuperLeft  = "LeftSuper"
	keySuperRight = "RightSuper"
	keyShiftLeft  = "LeftShift"
	keyShiftRight = "RightShift"
)

// Key records a key transition. Non-modifier keys are ignored.
func (m *Modifiers) Key(name string, down bool) {
	switch name {
	case keyCtrlLeft, keyCtrlRight, keySuperLeft, keySuperRight, keyShiftLeft, keyShiftRight:
	default:
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held == nil {
		m.held = make(map[string]bool)
	}
	if down {
		m.held[name] = true
	} else {
		delete(m.held, name)
	}
}

// Reset forgets every held key, e.g. when the window loses focus.
func (m *Modifiers) Reset() {
	m.mu.Lock()
	m.held = nil
	m.mu.Unlock()
}

// Wheel builds a viewport wheel event from a toolkit scroll. The toolkit
// reports positive dy for scrolling up, the viewport expects negative.
// scale converts logical to pixel coordinates.
func (m *Modifiers) Wheel(dx, dy, x, y, scale float64) viewport.WheelEvent {
	if scale <= 0 {
		scale = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return viewport.WheelEvent{
		DeltaX: -dx,
		DeltaY: -dy,
		Screen: geom.Pt{X: x * scale, Y: y * scale},
		Ctrl:   m.held[keyCtrlLeft] || m.held[keyCtrlRight],
		Meta:   m.held[keySuperLeft] || m.held[keySuperRight],
		Shift:  m.held[keyShiftLeft] || m.held[keyShiftRight],
	}
}
