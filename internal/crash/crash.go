/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic into a report file and a non-zero exit.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "photoprox/internal/log"
	"photoprox/internal/telemetry"
	"photoprox/internal/version"
)

// exitFn is swapped in tests so Recover does not end the process.
var exitFn = os.Exit

// Options configure Recover. Dir defaults to the OS temp dir. Describe, when
// set, appends a summary of the editor state (layer list, canvas size) to the
// report; it runs inside the recovery path so it must not panic itself.
type Options struct {
	Dir      string
	Describe func() string
}

// Recover captures a panic, logs it with the stack, writes a report file and
// exits with code 2.
//
// Usage: defer crash.Recover(crash.Options{Dir: dir})
func Recover(opts Options) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, err := writeReport(opts, r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\nVersion: %s\nOS/Arch: %s/%s\n",
		reportPath, version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
		l.Error("failed to write crash message to stderr", slog.Any("err", err))
	}
	exitFn(2)
}

func describe(fn func() string) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = fmt.Sprintf("<state unavailable: %v>", r)
		}
	}()
	return fn()
}

func writeReport(opts Options, panicVal any, stack []byte) (string, error) {
	dir := opts.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create crash dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", time.Now().Format("20060102-150405.000")))

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "PhotoProX Crash Report\n")
	fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&buf, "Version: %s\n", version.String())
	fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if opts.Describe != nil {
		fmt.Fprintf(&buf, "\nState:\n%s\n", describe(opts.Describe))
	}
	fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	fmt.Fprintf(&buf, "Stack:\n%s\n", stack)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}
	telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
