/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package log

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestInitAndStructuredLoggingToFile verifies that Init with a file handler writes JSON logs
// and that static and contextual attributes are present.
func TestInitAndStructuredLoggingToFile(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "ppx_log.json")
	var console bytes.Buffer
	Init(Options{Level: "debug", Format: "json", File: fpath, Writer: &console})
	t.Cleanup(func() { Init(Options{Level: "info", Writer: &bytes.Buffer{}}) })

	l := WithOperation(WithComponent("compose"), "resolve")
	l.InfoContext(WithCanvas(context.Background(), "c-1"), "pass done", slog.Int("layers", 3))

	time.Sleep(20 * time.Millisecond)
	b, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(b))
	var last string
	for scanner.Scan() {
		if s := strings.TrimSpace(scanner.Text()); s != "" {
			last = s
		}
	}
	if last == "" {
		t.Fatalf("no log lines found")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("unmarshal json log: %v", err)
	}
	if m["app"] != "photoprox" {
		t.Fatalf("missing app attr: %v", m["app"])
	}
	if m["component"] != "compose" || m["op"] != "resolve" {
		t.Fatalf("component/op mismatch: %v / %v", m["component"], m["op"])
	}
	if m["canvas"] != "c-1" {
		t.Fatalf("canvas attr from context missing: %v", m["canvas"])
	}
	if !strings.Contains(console.String(), `"msg":"pass done"`) {
		t.Fatalf("console json output missing record: %q", console.String())
	}
}

func TestFromEnvAndGetenv(t *testing.T) {
	t.Setenv("PPX_LOG_LEVEL", "warn")
	t.Setenv("PPX_LOG_FORMAT", "json")
	t.Setenv("PPX_LOG_SOURCE", "true")
	t.Setenv("PPX_LOG_FILE", "")

	opts := FromEnv()
	if opts.Level != "warn" || opts.Format != "json" || !opts.AddSource || opts.File != "" {
		t.Fatalf("FromEnv mismatch: %+v", opts)
	}
	if v := getenv("PPX_SOME_UNSET_VAR", "fallback"); v != "fallback" {
		t.Fatalf("getenv fallback failed: %q", v)
	}
}

func TestPrettyTextHandler_Behavior(t *testing.T) {
	var buf bytes.Buffer
	h := &prettyTextHandler{opts: prettyOpts{Level: slog.LevelWarn}, w: &buf, mu: &sync.Mutex{}}

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info should not be enabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("error should be enabled at warn level")
	}

	h2 := h.WithAttrs([]slog.Attr{slog.String("k", "v")}).WithGroup("grp")
	r := slog.NewRecord(time.Now(), slog.LevelError, "boom", 0)
	r.AddAttrs(slog.Int("n", 42), slog.Float64("zoom", 1.25), slog.Bool("ok", true))
	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("handle error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"boom", "k=v", "grp.n=42", "ERR", "zoom=1.25", "ok=true"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestSetLevelAffectsInstalledHandlers(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "info", Writer: &buf})
	t.Cleanup(func() { Init(Options{Level: "info", Writer: &bytes.Buffer{}}) })

	L().Debug("hidden")
	SetLevel("debug")
	L().Debug("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output after SetLevel: %q", out)
	}
}

func TestPrettyTextHandler_SourceWhenAvailable(t *testing.T) {
	var buf bytes.Buffer
	h := &prettyTextHandler{opts: prettyOpts{Level: slog.LevelDebug, AddSource: true}, w: &buf, mu: &sync.Mutex{}}
	var pcs [1]uintptr
	runtime.Callers(1, pcs[:])
	r := slog.NewRecord(time.Now(), slog.LevelInfo, "fitted", pcs[0])
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("handle error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "fitted") {
		t.Fatalf("output %q missing message", out)
	}
	if _, ok := any(r).(interface{ Source() *slog.Source }); ok {
		if !strings.Contains(out, "src=") || !strings.Contains(out, "logger_test.go") {
			t.Fatalf("output %q missing source", out)
		}
	} else if strings.Contains(out, "src=") {
		t.Fatalf("unexpected source on this toolchain: %q", out)
	}
}
