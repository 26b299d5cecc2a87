/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package recompose coalesces bursts of layer edits into single composition passes.
package recompose

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	applog "photoprox/internal/log"
)

// DefaultDelay is the quiet period after the last edit before a pass runs.
const DefaultDelay = 100 * time.Millisecond

// Scheduler runs sink(source()) once per burst of MarkDirty calls, after the
// burst has been quiet for the configured delay. The snapshot is taken when
// the pass runs, never when it was requested. Passes never overlap.
type Scheduler[T any] struct {
	delay  time.Duration
	source func() T
	sink   func(T)
	log    *slog.Logger

	pending atomic.Bool
	closed  atomic.Bool
	passes  atomic.Int64
	run     sync.Mutex

	dirty chan struct{}
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// New starts a scheduler. delay <= 0 uses DefaultDelay.
func New[T any](delay time.Duration, source func() T, sink func(T)) *Scheduler[T] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	s := &Scheduler[T]{
		delay:  delay,
		source: source,
		sink:   sink,
		log:    applog.WithComponent("recompose"),
		dirty:  make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.loop()
	return s
}

// MarkDirty requests a pass. It never blocks.
func (s *Scheduler[T]) MarkDirty() {
	if s.closed.Load() {
		return
	}
	s.pending.Store(true)
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// Pending reports whether a pass has been requested but not run.
func (s *Scheduler[T]) Pending() bool { return s.pending.Load() }

// Passes returns how many passes have run.
func (s *Scheduler[T]) Passes() int64 { return s.passes.Load() }

// Flush runs a pending pass now and reports whether one ran.
func (s *Scheduler[T]) Flush() bool {
	if s.closed.Load() {
		return false
	}
	return s.runPending()
}

// Close drops any pending pass and stops the worker. A pass already running
// is allowed to finish.
func (s *Scheduler[T]) Close() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.pending.Store(false)
		close(s.quit)
		<-s.done
	})
}

func (s *Scheduler[T]) loop() {
	defer close(s.done)
	t := time.NewTimer(s.delay)
	t.Stop()
	for {
		select {
		case <-s.quit:
			t.Stop()
			return
		case <-s.dirty:
			// Reset discards a tick that has not been received yet.
			t.Reset(s.delay)
		case <-t.C:
			s.runPending()
		}
	}
}

func (s *Scheduler[T]) runPending() bool {
	s.run.Lock()
	defer s.run.Unlock()
	if !s.pending.Swap(false) {
		return false
	}
	start := time.Now()
	s.sink(s.source())
	n := s.passes.Add(1)
	s.log.Debug("pass", slog.Int64("n", n), slog.Duration("took", time.Since(start)))
	return true
}
