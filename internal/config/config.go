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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"photoprox/internal/viewport"
)

// AppConfig is the user-editable configuration persisted as YAML in the user
// config dir. Environment variables are read-only overrides at runtime and
// service tokens live in the OS keychain, never on disk.
type AppConfig struct {
	ConfigVersion int            `yaml:"config_version"`
	General       GeneralConfig  `yaml:"general"`
	Viewport      ViewportConfig `yaml:"viewport"`
	Compose       ComposeConfig  `yaml:"compose"`
	Services      ServicesConfig `yaml:"services"`
	Cache         CacheConfig    `yaml:"cache"`
	Logging       LoggingConfig  `yaml:"logging"`
}

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	Theme          string `yaml:"theme"` // "system" | "light" | "dark"
	CrashDir       string `yaml:"crash_dir"`
}

type ViewportConfig struct {
	viewport.Params `yaml:",inline"`
	FPS             int `yaml:"fps"`
}

type ComposeConfig struct {
	RecomposeDelayMs int    `yaml:"recompose_delay_ms"`
	DefaultMode      string `yaml:"default_mode"`
	ExportFormat     string `yaml:"export_format"`
	ExportQuality    int    `yaml:"export_quality"`
}

type ServicesConfig struct {
	BackgroundRemovalURL string `yaml:"background_removal_url"`
	EncodeURL            string `yaml:"encode_url"`
	TimeoutMs            int    `yaml:"timeout_ms"`
}

type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir"`
	MaxBytes int64  `yaml:"max_bytes"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{Theme: "system"},
		Viewport:      ViewportConfig{Params: viewport.DefaultParams(), FPS: 60},
		Compose:       ComposeConfig{RecomposeDelayMs: 100, DefaultMode: "view", ExportFormat: "png", ExportQuality: 90},
		Services:      ServicesConfig{TimeoutMs: 60000},
		Cache:         CacheConfig{Enabled: true, MaxBytes: 64 << 20},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath     = "PPX_CONFIG"
	EnvTelemetryOptIn = "PPX_TELEMETRY_OPT_IN"
	EnvCrashDir       = "PPX_CRASH_DIR"
	EnvFPS            = "PPX_FPS"
	EnvRecomposeMs    = "PPX_RECOMPOSE_DELAY_MS"
	EnvBgRemoveURL    = "PPX_BG_REMOVE_URL"
	EnvEncodeURL      = "PPX_ENCODE_URL"
	EnvServiceTimeout = "PPX_SERVICE_TIMEOUT_MS"
	EnvServiceToken   = "PPX_SERVICE_TOKEN"
	EnvCacheDir       = "PPX_CACHE_DIR"
	EnvCacheMaxBytes  = "PPX_CACHE_MAX_BYTES"
	EnvCacheEnabled   = "PPX_CACHE"
	EnvLogLevel       = "PPX_LOG_LEVEL"
	EnvLogFormat      = "PPX_LOG_FORMAT"
	EnvLogSource      = "PPX_LOG_SOURCE"
	EnvLogFile        = "PPX_LOG_FILE"
)

// overrides maps config keys to the env var that overrides them.
var overrides = map[string]string{
	"general.telemetry_opt_in":        EnvTelemetryOptIn,
	"general.crash_dir":               EnvCrashDir,
	"viewport.fps":                    EnvFPS,
	"compose.recompose_delay_ms":      EnvRecomposeMs,
	"services.background_removal_url": EnvBgRemoveURL,
	"services.encode_url":             EnvEncodeURL,
	"services.timeout_ms":             EnvServiceTimeout,
	"cache.dir":                       EnvCacheDir,
	"cache.max_bytes":                 EnvCacheMaxBytes,
	"cache.enabled":                   EnvCacheEnabled,
	"logging.level":                   EnvLogLevel,
	"logging.format":                  EnvLogFormat,
	"logging.source":                  EnvLogSource,
	"logging.file":                    EnvLogFile,
}

const (
	keyringService = "PhotoProX"
	keyringToken   = "service_token"
)

// TokenStore abstracts the keychain so tests can swap it out.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

var tokenStore TokenStore = osKeyring{}

// SetTokenStore replaces the keychain backend and returns the previous one.
func SetTokenStore(s TokenStore) TokenStore {
	prev := tokenStore
	tokenStore = s
	return prev
}

// osKeyring implements TokenStore with github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// ConfigPath returns the per-user config file path. PPX_CONFIG wins when set.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "photoprox", "config.yaml"), nil
}

// Load reads the user config (if present) over the defaults, applies env
// overrides and fetches the service token. A broken file yields the defaults
// plus the parse error.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	var parseErr error
	if data, err := os.ReadFile(path); err == nil {
		fileCfg, err := Parse(data)
		if err != nil {
			parseErr = fmt.Errorf("%s: %w", path, err)
		} else {
			cfg = fileCfg
		}
	}
	applyEnvOverrides(&cfg)
	tok := strings.TrimSpace(os.Getenv(EnvServiceToken))
	if tok == "" {
		if t, err := tokenStore.Get(keyringService, keyringToken); err == nil {
			tok = t
		}
	}
	return cfg, tok, parseErr
}

// Parse decodes YAML over the defaults so absent keys keep their default values.
func Parse(data []byte) (AppConfig, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Defaults(), fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *AppConfig) normalize() {
	d := Defaults()
	c.Viewport.Params = c.Viewport.Params.Normalize()
	if c.Viewport.FPS <= 0 || c.Viewport.FPS > 240 {
		c.Viewport.FPS = d.Viewport.FPS
	}
	if c.Compose.RecomposeDelayMs <= 0 {
		c.Compose.RecomposeDelayMs = d.Compose.RecomposeDelayMs
	}
	if c.Compose.ExportQuality < 1 || c.Compose.ExportQuality > 100 {
		c.Compose.ExportQuality = d.Compose.ExportQuality
	}
	if c.Services.TimeoutMs <= 0 {
		c.Services.TimeoutMs = d.Services.TimeoutMs
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Compose.DefaultMode = strings.ToLower(strings.TrimSpace(c.Compose.DefaultMode))
}

// Save writes the YAML file and stores a non-empty token in the keychain.
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
	}
	return nil
}

// ForgetToken removes the stored service token. A missing token is not an error.
func ForgetToken() error {
	if err := tokenStore.Delete(keyringService, keyringToken); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func env(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	return v, v != ""
}

func applyEnvOverrides(cfg *AppConfig) {
	if v, ok := env(EnvTelemetryOptIn); ok {
		cfg.General.TelemetryOptIn = parseBool(v)
	}
	if v, ok := env(EnvCrashDir); ok {
		cfg.General.CrashDir = v
	}
	if v, ok := env(EnvFPS); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Viewport.FPS = n
		}
	}
	if v, ok := env(EnvRecomposeMs); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Compose.RecomposeDelayMs = n
		}
	}
	if v, ok := env(EnvBgRemoveURL); ok {
		cfg.Services.BackgroundRemovalURL = v
	}
	if v, ok := env(EnvEncodeURL); ok {
		cfg.Services.EncodeURL = v
	}
	if v, ok := env(EnvServiceTimeout); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Services.TimeoutMs = n
		}
	}
	if v, ok := env(EnvCacheDir); ok {
		cfg.Cache.Dir = v
	}
	if v, ok := env(EnvCacheMaxBytes); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Cache.MaxBytes = n
		}
	}
	if v, ok := env(EnvCacheEnabled); ok {
		cfg.Cache.Enabled = parseBool(v)
	}
	if v, ok := env(EnvLogLevel); ok {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v, ok := env(EnvLogFormat); ok {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v, ok := env(EnvLogSource); ok {
		cfg.Logging.Source = parseBool(v)
	}
	if v, ok := env(EnvLogFile); ok {
		cfg.Logging.File = v
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := overrides[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

func (s ServicesConfig) Timeout() time.Duration {
	if s.TimeoutMs <= 0 {
		return time.Duration(Defaults().Services.TimeoutMs) * time.Millisecond
	}
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

func (c ComposeConfig) RecomposeDelay() time.Duration {
	return time.Duration(c.RecomposeDelayMs) * time.Millisecond
}

// CacheRoot returns the thumbnail cache root, falling back to the user cache dir.
func (c CacheConfig) CacheRoot() string {
	if c.Dir != "" {
		return c.Dir
	}
	if base, err := os.UserCacheDir(); err == nil {
		return filepath.Join(base, "photoprox")
	}
	return filepath.Join(os.TempDir(), "photoprox")
}
