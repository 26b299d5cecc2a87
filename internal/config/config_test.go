/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"
)

type memStore map[string]string

func (m memStore) Get(service, key string) (string, error) {
	v, ok := m[service+"/"+key]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return v, nil
}

func (m memStore) Set(service, key, value string) error {
	m[service+"/"+key] = value
	return nil
}

func (m memStore) Delete(service, key string) error {
	if _, ok := m[service+"/"+key]; !ok {
		return keyring.ErrNotFound
	}
	delete(m, service+"/"+key)
	return nil
}

func isolate(t *testing.T) (string, memStore) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(EnvConfigPath, path)
	t.Setenv(EnvServiceToken, "")
	store := memStore{}
	prev := SetTokenStore(store)
	t.Cleanup(func() { SetTokenStore(prev) })
	return path, store
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	isolate(t)
	cfg, tok, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if tok != "" {
		t.Fatalf("unexpected token %q", tok)
	}
	d := Defaults()
	if cfg.Viewport.Params != d.Viewport.Params || cfg.Compose != d.Compose || cfg.Cache != d.Cache {
		t.Fatalf("defaults not applied: %#v", cfg)
	}
}

func TestSaveLoadRoundTripKeepsTokenOffDisk(t *testing.T) {
	path, store := isolate(t)
	cfg := Defaults()
	cfg.Viewport.MaxZoom = 8
	cfg.Services.BackgroundRemovalURL = "https://bg.example.test/remove"
	if err := Save(cfg, "s3cret"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 || strings.Contains(string(data), "s3cret") {
		t.Fatalf("token leaked into config file:\n%s", data)
	}
	got, tok, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if tok != "s3cret" || got.Viewport.MaxZoom != 8 || got.Services.BackgroundRemovalURL != cfg.Services.BackgroundRemovalURL {
		t.Fatalf("round trip mismatch: tok=%q cfg=%#v", tok, got)
	}
	if err := ForgetToken(); err != nil {
		t.Fatal(err)
	}
	if len(store) != 0 {
		t.Fatal("token not deleted")
	}
	if err := ForgetToken(); err != nil {
		t.Fatalf("missing token should not fail: %v", err)
	}
}

func TestParsePartialFileKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("viewport:\n  zoom_speed: 0.3\n  fps: 0\ncompose:\n  default_mode: MOVE\nlogging:\n  level: DEBUG\n"))
	if err != nil {
		t.Fatal(err)
	}
	d := Defaults()
	if cfg.Viewport.ZoomSpeed != 0.3 || cfg.Viewport.PanSpeed != d.Viewport.PanSpeed {
		t.Fatalf("viewport = %#v", cfg.Viewport)
	}
	if cfg.Viewport.FPS != d.Viewport.FPS {
		t.Fatalf("fps 0 should fall back, got %d", cfg.Viewport.FPS)
	}
	if cfg.Compose.DefaultMode != "move" || cfg.Logging.Level != "debug" {
		t.Fatalf("normalization missing: %#v %#v", cfg.Compose, cfg.Logging)
	}
	if !cfg.Cache.Enabled {
		t.Fatal("cache default lost")
	}
}

func TestLoadReportsBrokenFile(t *testing.T) {
	path, _ := isolate(t)
	if err := os.WriteFile(path, []byte("viewport: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := Load()
	if err == nil {
		t.Fatal("expected parse error")
	}
	if cfg.Viewport.Params != Defaults().Viewport.Params {
		t.Fatal("broken file should yield defaults")
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv(EnvBgRemoveURL, "https://bg.example.test")
	t.Setenv(EnvCacheMaxBytes, "1024")
	t.Setenv(EnvCacheEnabled, "off")
	t.Setenv(EnvTelemetryOptIn, "yes")
	t.Setenv(EnvFPS, "notanumber")
	t.Setenv(EnvServiceToken, "from-env")
	cfg, tok, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Services.BackgroundRemovalURL != "https://bg.example.test" || cfg.Cache.MaxBytes != 1024 || cfg.Cache.Enabled || !cfg.General.TelemetryOptIn {
		t.Fatalf("overrides not applied: %#v", cfg)
	}
	if cfg.Viewport.FPS != Defaults().Viewport.FPS {
		t.Fatalf("bad fps override applied: %d", cfg.Viewport.FPS)
	}
	if tok != "from-env" {
		t.Fatalf("token = %q", tok)
	}
	if name, ok := EnvOverrideFor("cache.max_bytes"); !ok || name != EnvCacheMaxBytes {
		t.Fatalf("EnvOverrideFor = %q %v", name, ok)
	}
	if _, ok := EnvOverrideFor("logging.file"); ok {
		t.Fatal("unset env reported as override")
	}
	if _, ok := EnvOverrideFor("nope"); ok {
		t.Fatal("unknown key reported as override")
	}
}

func TestDurations(t *testing.T) {
	var s ServicesConfig
	if s.Timeout() <= 0 {
		t.Fatal("zero timeout should fall back")
	}
	if got := (ComposeConfig{RecomposeDelayMs: 50}).RecomposeDelay(); got.Milliseconds() != 50 {
		t.Fatalf("delay = %v", got)
	}
	if (CacheConfig{Dir: "/x"}).CacheRoot() != "/x" {
		t.Fatal("explicit cache dir ignored")
	}
}
