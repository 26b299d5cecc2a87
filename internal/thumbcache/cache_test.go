/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package thumbcache

import (
	"context"
	"database/sql"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"
)

func openTest(t *testing.T, maxBytes int64) *Cache {
	t.Helper()
	c, err := Open(t.TempDir(), maxBytes)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	base := time.Unix(1700000000, 0)
	n := 0
	c.now = func() time.Time { n++; return base.Add(time.Duration(n) * time.Second) }
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOpenCreatesWALAndVersion(t *testing.T) {
	root := t.TempDir()
	c, err := Open(root, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if c.maxBytes != DefaultMaxBytes {
		t.Fatalf("default cap not applied: %d", c.maxBytes)
	}
	_ = c.Close()

	db, err := sql.Open("sqlite", "file:"+Path(root))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&mode); err != nil || mode != "wal" {
		t.Fatalf("journal_mode=%q err=%v", mode, err)
	}
	var schema int
	if err := db.QueryRow(`SELECT schema FROM version WHERE id=1`).Scan(&schema); err != nil || schema != schemaVersion {
		t.Fatalf("schema=%d err=%v", schema, err)
	}
	// reopening keeps the row
	c, err = Open(root, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = c.Close()
}

func TestPutGetAndRevisions(t *testing.T) {
	c := openTest(t, 0)
	ctx := context.Background()
	k := Key{Layer: "a", Revision: 1, W: 64, H: 64}
	if _, ok, err := c.Get(ctx, k); ok || err != nil {
		t.Fatalf("unexpected hit ok=%v err=%v", ok, err)
	}
	if err := c.Put(ctx, k, []byte("one")); err != nil {
		t.Fatal(err)
	}
	if b, ok, err := c.Get(ctx, k); !ok || err != nil || string(b) != "one" {
		t.Fatalf("get = %q %v %v", b, ok, err)
	}
	k2 := k
	k2.Revision = 2
	if err := c.Put(ctx, k2, []byte("two")); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, k); ok {
		t.Fatal("stale revision still served")
	}
	if err := c.Invalidate(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if total, _ := c.Total(ctx); total != 0 {
		t.Fatalf("total after invalidate = %d", total)
	}
	if err := c.Put(ctx, Key{Layer: "", W: 1, H: 1}, []byte("x")); err == nil {
		t.Fatal("empty layer id accepted")
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := openTest(t, 64)
	ctx := context.Background()
	blob := make([]byte, 30)
	for _, id := range []string{"a", "b"} {
		if err := c.Put(ctx, Key{Layer: id, W: 8, H: 8}, blob); err != nil {
			t.Fatal(err)
		}
	}
	// touch a so b becomes the oldest
	if _, ok, _ := c.Get(ctx, Key{Layer: "a", W: 8, H: 8}); !ok {
		t.Fatal("a missing")
	}
	if err := c.Put(ctx, Key{Layer: "c", W: 8, H: 8}, blob); err != nil {
		t.Fatal(err)
	}
	total, err := c.Total(ctx)
	if err != nil || total > 64 {
		t.Fatalf("total=%d err=%v", total, err)
	}
	if _, ok, _ := c.Get(ctx, Key{Layer: "b", W: 8, H: 8}); ok {
		t.Fatal("least recently used row survived")
	}
	if _, ok, _ := c.Get(ctx, Key{Layer: "a", W: 8, H: 8}); !ok {
		t.Fatal("recently used row evicted")
	}
}

func TestGetOrRender(t *testing.T) {
	c := openTest(t, 0)
	ctx := context.Background()
	calls := 0
	render := func(context.Context) (image.Image, error) {
		calls++
		img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
		img.Set(1, 1, color.NRGBA{R: 255, A: 255})
		return img, nil
	}
	k := Key{Layer: "x", Revision: 3, W: 4, H: 4}
	first, err := c.GetOrRender(ctx, k, render)
	if err != nil || len(first) == 0 {
		t.Fatalf("render: %v", err)
	}
	second, err := c.GetOrRender(ctx, k, render)
	if err != nil || string(second) != string(first) || calls != 1 {
		t.Fatalf("cached render: calls=%d err=%v", calls, err)
	}
	boom := errors.New("boom")
	if _, err := c.GetOrRender(ctx, Key{Layer: "y", W: 1, H: 1}, func(context.Context) (image.Image, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("render error not propagated: %v", err)
	}
}

func TestClosed(t *testing.T) {
	c, err := Open(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, _, err := c.Get(ctx, Key{Layer: "a", W: 1, H: 1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Get after close: %v", err)
	}
	if err := c.Put(ctx, Key{Layer: "a", W: 1, H: 1}, []byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Put after close: %v", err)
	}
	if !errors.Is(c.Close(), ErrClosed) {
		t.Fatal("double close")
	}
	// closed caches still render
	b, err := c.GetOrRender(ctx, Key{Layer: "a", W: 1, H: 1}, func(context.Context) (image.Image, error) {
		return image.NewGray(image.Rect(0, 0, 1, 1)), nil
	})
	if err != nil || len(b) == 0 {
		t.Fatalf("degraded render: %v", err)
	}
}
