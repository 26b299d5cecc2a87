/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package editor

import (
	"photoprox/internal/bgremove"
	"photoprox/internal/compose"
	"photoprox/internal/config"
	"photoprox/internal/export"
)

// FromConfig derives session options from the user configuration. token
// authenticates against the remote services. Telemetry is left to the caller.
func FromConfig(cfg config.AppConfig, token string) Options {
	mode, err := compose.ParseMode(cfg.Compose.DefaultMode)
	if err != nil {
		mode = compose.ModeView
	}
	timeout := cfg.Services.Timeout()
	opts := Options{
		Viewport:       cfg.Viewport.Params,
		FPS:            cfg.Viewport.FPS,
		RecomposeDelay: cfg.Compose.RecomposeDelay(),
		Mode:           mode,
		Encoder: export.Fallback{
			Primary:   export.NewRemoteEncoder(cfg.Services.EncodeURL, token, timeout),
			Secondary: export.LocalEncoder{},
		},
	}
	if cfg.Services.BackgroundRemovalURL != "" {
		opts.Remover = bgremove.New(cfg.Services.BackgroundRemovalURL, token, timeout)
	}
	if cfg.Cache.Enabled {
		opts.CacheDir = cfg.Cache.CacheRoot()
		opts.CacheMaxBytes = cfg.Cache.MaxBytes
	}
	return opts
}
