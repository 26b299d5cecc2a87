/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package bgremove talks to the background-removal service.
package bgremove

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	applog "photoprox/internal/log"
)

// ErrNoResult is returned when the service answered without an image.
var ErrNoResult = errors.New("background removal returned no image")

// ErrNotConfigured is returned by a Client without an endpoint.
var ErrNotConfigured = errors.New("background removal service not configured")

const maxResultBytes = 128 << 20

// Remover removes the background from an encoded image.
type Remover interface {
	Remove(ctx context.Context, payload []byte) ([]byte, error)
}

// Client posts the image once and returns the service's image. The service
// may answer with raw image bytes or JSON {"image": "<base64>"}; a null image,
// an empty body or a non-2xx status is a failure. There is no retry.
type Client struct {
	Endpoint string
	Token    string
	HTTP     *http.Client
	log      *slog.Logger
}

func New(endpoint, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		Endpoint: strings.TrimSpace(endpoint),
		Token:    token,
		HTTP:     &http.Client{Timeout: timeout},
		log:      applog.WithComponent("bgremove"),
	}
}

// Configured reports whether an endpoint is set.
func (c *Client) Configured() bool { return c != nil && c.Endpoint != "" }

type jsonResult struct {
	Image []byte `json:"image"`
}

func (c *Client) Remove(ctx context.Context, payload []byte) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}
	l := c.log
	if l == nil {
		l = applog.WithComponent("bgremove")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", http.DetectContentType(payload))
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	cli := c.HTTP
	if cli == nil {
		cli = http.DefaultClient
	}
	start := time.Now()
	resp, err := cli.Do(req)
	if err != nil {
		l.Warn("request failed", slog.Any("err", err))
		return nil, fmt.Errorf("background removal: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		l.Warn("service rejected request", slog.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("background removal: %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes))
	if err != nil {
		return nil, fmt.Errorf("read result: %w", err)
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt == "application/json" {
		var res jsonResult
		if err := json.Unmarshal(body, &res); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		body = res.Image
	}
	if len(body) == 0 {
		return nil, ErrNoResult
	}
	l.Info("background removed", slog.Int("bytes", len(body)), slog.Duration("took", time.Since(start)))
	return body, nil
}
