/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"photoprox/internal/config"
	"photoprox/internal/crash"
	"photoprox/internal/editor"
	"photoprox/internal/export"
	"photoprox/internal/geom"
	applog "photoprox/internal/log"
	"photoprox/internal/telemetry"
	"photoprox/internal/ui"
	"photoprox/internal/version"
)

// errUsage makes main print the usage text and exit with code 2.
var errUsage = errors.New("usage")

func usage(w io.Writer) {
	fmt.Fprintln(w, "PhotoProX")
	fmt.Fprintf(w, "Version: %s\n", version.String())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  photoprox [--debug] <command> ...                    --debug enables debug logging")
	fmt.Fprintln(w, "  photoprox version|-v|--version                      Show version")
	fmt.Fprintln(w, "  photoprox compose [flags] <out> <image>...           Stack images and export the canvas")
	fmt.Fprintln(w, "      --adjust kind[:clip]   add an adjustment layer, e.g. blur:clip (repeatable)")
	fmt.Fprintln(w, "      --bg #rrggbb           add a background fill")
	fmt.Fprintln(w, "      --quality n            jpeg quality")
	fmt.Fprintln(w, "  photoprox fit <cw> <ch> <bw> <bh> [deg]              Print fit and fill scales")
	fmt.Fprintln(w, "  photoprox export <in> <out> [format] [w h]           Re-encode an image (out.pdf writes a PDF)")
	fmt.Fprintln(w, "  photoprox removebg <in> <out>                        Remove the background via the service")
	fmt.Fprintln(w, "  photoprox config                                     Print the effective configuration")
	fmt.Fprintln(w, "  photoprox token set <value>|clear                    Manage the service token in the keychain")
	fmt.Fprintln(w, "  photoprox ui [image...]                              Launch the viewer (build with -tags fyne)")
}

func main() {
	cfg, token, cfgErr := config.Load()
	applog.Init(logOptions(cfg))
	l := applog.WithComponent("cli")
	if cfgErr != nil {
		l.Warn("config not loaded, using defaults", slog.Any("err", cfgErr))
	}
	tc := telemetry.FromEnv()
	tc.OptIn = tc.OptIn || cfg.General.TelemetryOptIn
	tel := telemetry.NewDefault(tc)
	defer crash.Recover(crash.Options{Dir: cfg.General.CrashDir})

	l.Debug("start", slog.Int("args", len(os.Args)))
	err := run(context.Background(), globalFlags(os.Args[1:]), cfg, token, tel, os.Stdout)
	tel.Flush(context.Background())
	tel.Close()
	switch {
	case errors.Is(err, errUsage):
		usage(os.Stderr)
		os.Exit(2)
	case err != nil:
		l.Error("command failed", slog.Any("err", err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// globalFlags consumes leading options shared by every command.
func globalFlags(args []string) []string {
	for len(args) > 0 {
		switch args[0] {
		case "--debug":
			applog.SetLevel("debug")
		default:
			return args
		}
		args = args[1:]
	}
	return args
}

func logOptions(cfg config.AppConfig) applog.Options {
	return applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	}
}

func run(ctx context.Context, args []string, cfg config.AppConfig, token string, tel telemetry.Recorder, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "version", "--version", "-v":
		fmt.Fprintln(out, "PhotoProX")
		fmt.Fprintln(out, version.String())
		return nil
	case "fit":
		return runFit(args[1:], out)
	case "compose":
		return runCompose(ctx, args[1:], cfg, token, tel, out)
	case "export":
		return runExport(ctx, args[1:], cfg, token, tel, out)
	case "removebg":
		return runRemoveBg(ctx, args[1:], cfg, token, tel, out)
	case "config":
		return runConfig(cfg, out)
	case "token":
		return runToken(args[1:], out)
	case "ui":
		opts := editor.FromConfig(cfg, token)
		opts.Telemetry = tel
		return ui.Run(ui.Options{Session: opts, Images: args[1:]})
	case "help", "-h", "--help":
		usage(out)
		return nil
	}
	return errUsage
}

func parseFloats(args []string) ([]float64, error) {
	vs := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", a)
		}
		vs[i] = v
	}
	return vs, nil
}

func runFit(args []string, out io.Writer) error {
	if len(args) != 4 && len(args) != 5 {
		return errUsage
	}
	vs, err := parseFloats(args)
	if err != nil {
		return err
	}
	deg := 0.0
	if len(vs) == 5 {
		deg = vs[4]
	}
	fmt.Fprintf(out, "fit:  %g\n", geom.FitScale(vs[0], vs[1], vs[2], vs[3], deg))
	fmt.Fprintf(out, "fill: %g\n", geom.FillScale(vs[0], vs[1], vs[2], vs[3]))
	return nil
}

type adjustFlags []string

func (a *adjustFlags) String() string     { return strings.Join(*a, ",") }
func (a *adjustFlags) Set(v string) error { *a = append(*a, v); return nil }

func parseHex(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 && len(s) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	if len(s) == 6 {
		v = v<<8 | 0xff
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func newSession(cfg config.AppConfig, token string, tel telemetry.Recorder) (*editor.Session, error) {
	opts := editor.FromConfig(cfg, token)
	opts.Telemetry = tel
	// one-shot commands never look at thumbnails
	opts.CacheDir = ""
	return editor.New(opts)
}

func writeOutput(ctx context.Context, s *editor.Session, path string, req export.Request) error {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := s.ExportPDF(f, 300, filepath.Base(path)); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}
	data, err := s.Export(ctx, req)
	if err != nil {
		return err
	}
	return export.WriteFile(path, data)
}

func runCompose(ctx context.Context, args []string, cfg config.AppConfig, token string, tel telemetry.Recorder, out io.Writer) error {
	fs := flag.NewFlagSet("compose", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var adjust adjustFlags
	fs.Var(&adjust, "adjust", "kind[:clip]")
	bg := fs.String("bg", "", "background color")
	quality := fs.Int("quality", cfg.Compose.ExportQuality, "jpeg quality")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	rest := fs.Args()
	if len(rest) < 2 {
		return errUsage
	}
	dst, inputs := rest[0], rest[1:]

	s, err := newSession(cfg, token, tel)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	for _, p := range inputs {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if _, err := s.AddEncoded(data, "", filepath.Base(p)); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	if *bg != "" {
		c, err := parseHex(*bg)
		if err != nil {
			return err
		}
		if _, err := s.SetBackground(c); err != nil {
			return err
		}
	}
	for _, a := range adjust {
		kind, mod, _ := strings.Cut(a, ":")
		if _, err := s.AddAdjustment(kind, mod == "clip"); err != nil {
			return err
		}
	}
	format, err := export.ParseFormat(filepath.Ext(dst))
	if err != nil {
		format = export.Format(cfg.Compose.ExportFormat)
	}
	if err := writeOutput(ctx, s, dst, export.Request{Format: format, Quality: *quality}); err != nil {
		return err
	}
	size := s.ContentSize()
	fmt.Fprintf(out, "Wrote %s (%d layers, %gx%g)\n", dst, len(s.Layers()), size.W, size.H)
	return nil
}

func runExport(ctx context.Context, args []string, cfg config.AppConfig, token string, tel telemetry.Recorder, out io.Writer) error {
	if len(args) != 2 && len(args) != 3 && len(args) != 5 {
		return errUsage
	}
	src, dst := args[0], args[1]
	req := export.Request{Format: export.FormatFromPath(dst), Quality: cfg.Compose.ExportQuality}
	if len(args) >= 3 {
		f, err := export.ParseFormat(args[2])
		if err != nil {
			return err
		}
		req.Format = f
	}
	if len(args) == 5 {
		w, err1 := strconv.Atoi(args[3])
		h, err2 := strconv.Atoi(args[4])
		if err1 != nil || err2 != nil {
			return fmt.Errorf("invalid size %q x %q", args[3], args[4])
		}
		req.Width, req.Height = w, h
	}
	s, err := newSession(cfg, token, tel)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if _, err := s.AddEncoded(data, "", filepath.Base(src)); err != nil {
		return err
	}
	if err := writeOutput(ctx, s, dst, req); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", dst)
	return nil
}

func runRemoveBg(ctx context.Context, args []string, cfg config.AppConfig, token string, tel telemetry.Recorder, out io.Writer) error {
	if len(args) != 2 {
		return errUsage
	}
	s, err := newSession(cfg, token, tel)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	id, err := s.AddEncoded(data, "", filepath.Base(args[0]))
	if err != nil {
		return err
	}
	if err := s.RemoveBackground(ctx, id); err != nil {
		return err
	}
	if err := writeOutput(ctx, s, args[1], export.Request{Format: export.FormatPNG}); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", args[1])
	return nil
}

func runConfig(cfg config.AppConfig, out io.Writer) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		return err
	}
	for _, key := range []string{"services.background_removal_url", "services.encode_url", "cache.dir", "logging.level", "logging.file"} {
		if env, ok := config.EnvOverrideFor(key); ok {
			fmt.Fprintf(out, "# %s overridden by %s\n", key, env)
		}
	}
	return nil
}

func runToken(args []string, out io.Writer) error {
	switch {
	case len(args) == 2 && args[0] == "set":
		cfg, _, _ := config.Load()
		if err := config.Save(cfg, args[1]); err != nil {
			return err
		}
		fmt.Fprintln(out, "Token stored in the system keychain")
		return nil
	case len(args) == 1 && args[0] == "clear":
		if err := config.ForgetToken(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Token removed")
		return nil
	}
	return errUsage
}
