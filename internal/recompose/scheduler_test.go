/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package recompose

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBurstCoalescesIntoOnePass(t *testing.T) {
	var version atomic.Int64
	var mu sync.Mutex
	var seen []int64
	s := New(50*time.Millisecond, version.Load, func(v int64) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	})
	defer s.Close()
	for i := 1; i <= 10; i++ {
		version.Store(int64(i))
		s.MarkDirty()
		time.Sleep(time.Millisecond)
	}
	waitFor(t, func() bool { return s.Passes() == 1 })
	time.Sleep(120 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != 10 {
		t.Fatalf("passes saw %v, want [10]", seen)
	}
}

func TestFlushRunsPendingPass(t *testing.T) {
	var calls atomic.Int64
	s := New(time.Hour, func() int { return 1 }, func(int) { calls.Add(1) })
	defer s.Close()
	if s.Flush() {
		t.Fatal("nothing pending yet")
	}
	s.MarkDirty()
	if !s.Pending() {
		t.Fatal("expected pending pass")
	}
	if !s.Flush() || calls.Load() != 1 {
		t.Fatalf("flush did not run the pass: calls=%d", calls.Load())
	}
	if s.Flush() {
		t.Fatal("second flush should find nothing")
	}
}

func TestCloseCancelsPendingPass(t *testing.T) {
	var calls atomic.Int64
	s := New(30*time.Millisecond, func() int { return 0 }, func(int) { calls.Add(1) })
	s.MarkDirty()
	s.Close()
	time.Sleep(80 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("pass ran after close: %d", calls.Load())
	}
	s.MarkDirty()
	if s.Pending() || s.Flush() {
		t.Fatal("closed scheduler must ignore requests")
	}
	s.Close()
}

func TestPassesNeverOverlap(t *testing.T) {
	var active, maxActive atomic.Int64
	s := New(time.Millisecond, func() int { return 0 }, func(int) {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		time.Sleep(3 * time.Millisecond)
		active.Add(-1)
	})
	defer s.Close()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				s.MarkDirty()
				s.Flush()
			}
		}()
	}
	wg.Wait()
	if maxActive.Load() != 1 {
		t.Fatalf("passes overlapped: %d", maxActive.Load())
	}
}
