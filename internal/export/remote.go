/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	applog "photoprox/internal/log"
)

// maxResultBytes bounds what the remote encoder may return.
const maxResultBytes = 256 << 20

// RemoteEncoder posts a PNG of the canvas to an image service and returns
// its response body. One attempt per call; there is no retry.
type RemoteEncoder struct {
	Endpoint string
	Token    string
	Client   *http.Client
}

// NewRemoteEncoder creates an encoder with its own HTTP client.
func NewRemoteEncoder(endpoint, token string, timeout time.Duration) *RemoteEncoder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteEncoder{Endpoint: strings.TrimSpace(endpoint), Token: token, Client: &http.Client{Timeout: timeout}}
}

// Configured reports whether an endpoint is set.
func (e *RemoteEncoder) Configured() bool { return e != nil && e.Endpoint != "" }

func (e *RemoteEncoder) Encode(ctx context.Context, img image.Image, req Request) ([]byte, error) {
	if !e.Configured() {
		return nil, errors.New("remote encoder not configured")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req = req.Normalized()
	l := applog.WithOperation(applog.WithComponent("export"), "remote-encode")

	var payload bytes.Buffer
	if err := png.Encode(&payload, img); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	u, err := url.Parse(e.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("endpoint: %w", err)
	}
	q := u.Query()
	q.Set("format", string(req.Format))
	size := req.TargetSize(img.Bounds().Size())
	q.Set("width", strconv.Itoa(size.X))
	q.Set("height", strconv.Itoa(size.Y))
	q.Set("quality", strconv.Itoa(req.Quality))
	q.Set("compression", string(req.Compression))
	if req.Colors > 0 {
		q.Set("colors", strconv.Itoa(req.Colors))
	}
	u.RawQuery = q.Encode()

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), &payload)
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "image/png")
	hreq.Header.Set("Accept", req.Format.MIME())
	if e.Token != "" {
		hreq.Header.Set("Authorization", "Bearer "+e.Token)
	}
	cli := e.Client
	if cli == nil {
		cli = http.DefaultClient
	}
	start := time.Now()
	resp, err := cli.Do(hreq)
	if err != nil {
		l.Warn("request failed", slog.Any("err", err))
		return nil, fmt.Errorf("encode service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		l.Warn("service rejected request", slog.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("encode service: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes))
	if err != nil {
		return nil, fmt.Errorf("read result: %w", err)
	}
	if len(body) == 0 {
		return nil, ErrEmptyResult
	}
	l.Info("encoded remotely", slog.String("format", string(req.Format)), slog.Int("bytes", len(body)), slog.Duration("took", time.Since(start)))
	return body, nil
}

// Fallback sends requests to Primary when it is configured and to Secondary otherwise.
// A failing Primary is not retried on Secondary.
type Fallback struct {
	Primary   Encoder
	Secondary Encoder
}

type configurable interface{ Configured() bool }

func (f Fallback) Encode(ctx context.Context, img image.Image, req Request) ([]byte, error) {
	if f.Primary != nil {
		if c, ok := f.Primary.(configurable); !ok || c.Configured() {
			return f.Primary.Encode(ctx, img, req)
		}
	}
	if f.Secondary == nil {
		return nil, errors.New("no encoder available")
	}
	return f.Secondary.Encode(ctx, img, req)
}
