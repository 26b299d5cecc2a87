/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package thumbcache keeps rendered layer thumbnails in an embedded SQLite
// database next to the workspace.
package thumbcache

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	applog "photoprox/internal/log"
	"photoprox/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	DirName  = ".photoprox"
	FileName = "thumbs.sqlite"

	// DefaultMaxBytes caps the summed blob size kept in the cache.
	DefaultMaxBytes int64 = 64 << 20

	schemaVersion = 1
)

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = errors.New("thumbnail cache closed")

// Key identifies one thumbnail variant. Revision changes whenever the layer's
// pixels change so stale rows are never served.
type Key struct {
	Layer    string
	Revision int64
	W, H     int
}

func (k Key) valid() bool { return strings.TrimSpace(k.Layer) != "" && k.W > 0 && k.H > 0 }

type Cache struct {
	mu       sync.Mutex
	db       *sql.DB
	path     string
	maxBytes int64
	log      *slog.Logger
	now      func() time.Time
}

// Path returns the database file for a workspace root.
func Path(root string) string { return filepath.Join(root, DirName, FileName) }

// Open creates or opens the cache database under root. maxBytes <= 0 selects
// DefaultMaxBytes.
func Open(root string, maxBytes int64) (*Cache, error) {
	l := applog.WithOperation(applog.WithComponent("thumbcache"), "open").With(slog.String("root", root))
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("cache root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, DirName), 0o755); err != nil {
		l.Error("create cache dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	path := Path(root)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure schema failed", slog.Any("err", err))
		return nil, err
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	l.Debug("cache ready", slog.String("path", path), slog.Int64("max_bytes", maxBytes))
	return &Cache{db: db, path: path, maxBytes: maxBytes, log: applog.WithComponent("thumbcache"), now: time.Now}, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS thumbs (
			layer_id     TEXT    NOT NULL,
			revision     INTEGER NOT NULL,
			w            INTEGER NOT NULL,
			h            INTEGER NOT NULL,
			blob         BLOB    NOT NULL,
			size         INTEGER NOT NULL,
			last_access  INTEGER NOT NULL,
			PRIMARY KEY(layer_id, revision, w, h)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_thumbs_access ON thumbs(last_access);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, version.String(), now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	case cur > schemaVersion:
		return fmt.Errorf("cache schema %d is newer than supported %d", cur, schemaVersion)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, version.String(), now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

func (c *Cache) stamp() int64 { return c.now().UnixNano() }

// Get returns the stored PNG bytes for k and marks the row as recently used.
// A miss returns (nil, false, nil).
func (c *Cache) Get(ctx context.Context, k Key) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil, false, ErrClosed
	}
	var blob []byte
	err := c.db.QueryRowContext(ctx, `SELECT blob FROM thumbs WHERE layer_id=? AND revision=? AND w=? AND h=?`,
		k.Layer, k.Revision, k.W, k.H).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query thumb: %w", err)
	}
	_, _ = c.db.ExecContext(ctx, `UPDATE thumbs SET last_access=? WHERE layer_id=? AND revision=? AND w=? AND h=?`,
		c.stamp(), k.Layer, k.Revision, k.W, k.H)
	return blob, true, nil
}

// Put stores blob under k, drops older revisions of the same layer and evicts
// least recently used rows until the cache fits its byte cap.
func (c *Cache) Put(ctx context.Context, k Key, blob []byte) error {
	if !k.valid() {
		return fmt.Errorf("invalid thumbnail key %+v", k)
	}
	if len(blob) == 0 {
		return errors.New("empty thumbnail")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return ErrClosed
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM thumbs WHERE layer_id=? AND revision<>?`, k.Layer, k.Revision); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("drop stale revisions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO thumbs(layer_id,revision,w,h,blob,size,last_access)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(layer_id,revision,w,h) DO UPDATE SET blob=excluded.blob, size=excluded.size, last_access=excluded.last_access`,
		k.Layer, k.Revision, k.W, k.H, blob, len(blob), c.stamp()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert thumb: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put: %w", err)
	}
	return c.evictLocked(ctx)
}

// PutImage encodes img as PNG and stores it under k.
func (c *Cache) PutImage(ctx context.Context, k Key, img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode thumb: %w", err)
	}
	return buf.Bytes(), c.Put(ctx, k, buf.Bytes())
}

// GetOrRender serves k from the cache or renders, stores and returns it.
// Storage failures are logged and the freshly rendered bytes are still returned.
func (c *Cache) GetOrRender(ctx context.Context, k Key, render func(context.Context) (image.Image, error)) ([]byte, error) {
	if b, ok, err := c.Get(ctx, k); err == nil && ok {
		return b, nil
	} else if err != nil && !errors.Is(err, ErrClosed) {
		c.log.Warn("thumb lookup failed", slog.String("layer", k.Layer), slog.Any("err", err))
	}
	img, err := render(ctx)
	if err != nil {
		return nil, err
	}
	b, err := c.PutImage(ctx, k, img)
	if err != nil && b == nil {
		return nil, err
	}
	if err != nil {
		c.log.Warn("thumb store failed", slog.String("layer", k.Layer), slog.Any("err", err))
	}
	return b, nil
}

// Invalidate drops every cached variant of a layer.
func (c *Cache) Invalidate(ctx context.Context, layerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return ErrClosed
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM thumbs WHERE layer_id=?`, layerID); err != nil {
		return fmt.Errorf("invalidate thumbs: %w", err)
	}
	return nil
}

// Total returns the summed size of all stored thumbnails.
func (c *Cache) Total(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return 0, ErrClosed
	}
	var total int64
	if err := c.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size),0) FROM thumbs`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum thumbs: %w", err)
	}
	return total, nil
}

func (c *Cache) evictLocked(ctx context.Context) error {
	var total int64
	if err := c.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size),0) FROM thumbs`).Scan(&total); err != nil {
		return fmt.Errorf("sum thumbs: %w", err)
	}
	if total <= c.maxBytes {
		return nil
	}
	rows, err := c.db.QueryContext(ctx, `SELECT rowid, size FROM thumbs ORDER BY last_access ASC`)
	if err != nil {
		return fmt.Errorf("select victims: %w", err)
	}
	var victims []any
	cur := total
	for rows.Next() && cur > c.maxBytes {
		var id, sz int64
		if err := rows.Scan(&id, &sz); err != nil {
			_ = rows.Close()
			return err
		}
		victims = append(victims, id)
		cur -= sz
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	// the cursor must be closed before writing on the single connection
	if err := rows.Close(); err != nil {
		return err
	}
	if len(victims) == 0 {
		return nil
	}
	q := `DELETE FROM thumbs WHERE rowid IN (?` + strings.Repeat(",?", len(victims)-1) + `)`
	if _, err := c.db.ExecContext(ctx, q, victims...); err != nil {
		return fmt.Errorf("evict delete: %w", err)
	}
	c.log.Debug("evicted thumbnails", slog.Int("rows", len(victims)), slog.Int64("bytes", total-cur))
	return nil
}

// Close releases the database. Further calls return ErrClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return ErrClosed
	}
	err := c.db.Close()
	c.db = nil
	return err
}
