/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package editor

import (
	"sync"
	"time"
)

type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "info"
}

// Notice is a short user-facing message, shown as a toast by the UI.
type Notice struct {
	Level Level
	Op    string
	Text  string
	Err   error
	At    time.Time
}

// notices is a bounded channel that drops messages instead of blocking.
type notices struct {
	mu     sync.Mutex
	ch     chan Notice
	closed bool
}

func newNotices(n int) *notices { return &notices{ch: make(chan Notice, n)} }

func (n *notices) push(v Notice) {
	if v.At.IsZero() {
		v.At = time.Now()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.ch <- v:
	default:
	}
}

func (n *notices) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.closed {
		n.closed = true
		close(n.ch)
	}
}

// Notices delivers toasts. The channel is closed by Close.
func (s *Session) Notices() <-chan Notice { return s.notices.ch }
