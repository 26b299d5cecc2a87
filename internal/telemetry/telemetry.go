/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry sends opt-in anonymous usage events and crash reports.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	applog "photoprox/internal/log"
	"photoprox/internal/version"
)

// Config holds runtime configuration for telemetry and crash uploads.
// Everything is disabled unless OptIn is set and a URL is configured.
//
// Environment variables (read by FromEnv):
//   - PPX_TELEMETRY_OPT_IN: "1", "true", "yes" or "on" to enable
//   - PPX_TELEMETRY_URL: endpoint receiving JSON events
//   - PPX_CRASH_UPLOAD_URL: endpoint receiving crash reports
//   - PPX_TELEMETRY_TIMEOUT_MS: request timeout, default 1500ms
//   - PPX_TELEMETRY_DEBUG: log send attempts
type Config struct {
	OptIn        bool
	EventsURL    string
	CrashURL     string
	Timeout      time.Duration
	DebugLogging bool
}

func FromEnv() Config {
	cfg := Config{
		OptIn:        parseBool(os.Getenv("PPX_TELEMETRY_OPT_IN")),
		EventsURL:    strings.TrimSpace(os.Getenv("PPX_TELEMETRY_URL")),
		CrashURL:     strings.TrimSpace(os.Getenv("PPX_CRASH_UPLOAD_URL")),
		Timeout:      1500 * time.Millisecond,
		DebugLogging: os.Getenv("PPX_TELEMETRY_DEBUG") != "",
	}
	if ms := strings.TrimSpace(os.Getenv("PPX_TELEMETRY_TIMEOUT_MS")); ms != "" {
		if v, err := time.ParseDuration(ms + "ms"); err == nil && v > 0 {
			cfg.Timeout = v
		}
	}
	return cfg
}

func parseBool(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// Recorder receives named events. Props must not carry user content.
type Recorder interface {
	Event(name string, props map[string]any)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Event(string, map[string]any) {}

type event struct {
	Name    string         `json:"name"`
	TS      string         `json:"ts"`
	Version string         `json:"version"`
	OS      string         `json:"os"`
	Arch    string         `json:"arch"`
	Props   map[string]any `json:"props,omitempty"`
}

// Client is an async sender with a bounded queue. Events are dropped when the
// queue is full or a send fails; it never blocks the caller.
type Client struct {
	cfg    Config
	log    *slog.Logger
	cli    *http.Client
	q      chan []byte
	once   sync.Once
	closed chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

var (
	defaultClient *Client
	defaultOnce   sync.Once
)

// InitDefault installs the package-level client from env on first use.
func InitDefault() {
	defaultOnce.Do(func() {
		if defaultClient == nil {
			defaultClient = New(FromEnv())
		}
	})
}

// NewDefault creates and installs the default client with cfg.
func NewDefault(cfg Config) *Client {
	defaultClient = New(cfg)
	defaultOnce.Do(func() {})
	return defaultClient
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}
	c := &Client{
		cfg:    cfg,
		log:    applog.WithComponent("telemetry"),
		cli:    &http.Client{Timeout: cfg.Timeout},
		q:      make(chan []byte, 64),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go c.loop()
	return c
}

// Enabled reports whether events are opted in and have somewhere to go.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

func Enabled() bool {
	InitDefault()
	return defaultClient.Enabled()
}

// Event queues a JSON event if enabled. Safe to call from anywhere.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	ev := event{
		Name:    name,
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
		Version: version.String(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
		Props:   props,
	}
	buf, err := json.Marshal(ev)
	if err != nil {
		c.log.Debug("telemetry event dropped", slog.String("name", name), slog.Any("err", err))
		return
	}
	select {
	case c.q <- buf:
	default:
	}
}

func Event(name string, props map[string]any) { InitDefault(); defaultClient.Event(name, props) }

// Flush waits up to 500ms for the queue to drain.
func (c *Client) Flush(ctx context.Context) {
	deadline := time.Now().Add(500 * time.Millisecond)
	for len(c.q) > 0 && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// Close stops the sender and waits for in-flight crash uploads.
func (c *Client) Close() {
	c.once.Do(func() { close(c.closed) })
	<-c.done
	c.wg.Wait()
}

func (c *Client) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.closed:
			return
		case buf := <-c.q:
			c.post(c.cfg.EventsURL, "application/json", buf, "telemetry event")
		}
	}
}

func (c *Client) post(url, contentType string, body []byte, what string) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.cli.Do(req)
	if err != nil {
		if c.cfg.DebugLogging {
			c.log.Debug(what+" failed", slog.Any("err", err))
		}
		return
	}
	_ = resp.Body.Close()
	if c.cfg.DebugLogging {
		c.log.Debug(what+" sent", slog.Int("status", resp.StatusCode))
	}
}

// UploadCrash posts a serialized crash report if opted in.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	b := append([]byte(nil), report...)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", b, "crash upload")
	}()
}

func UploadCrash(report []byte) { InitDefault(); defaultClient.UploadCrash(report) }
