/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package filter

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"
)

//go:embed catalog.json
var catalogJSON []byte

//go:embed catalog.schema.json
var catalogSchema []byte

// ParamSpec describes one named adjustment parameter and the filter parameter it drives.
type ParamSpec struct {
	Name    string   `json:"name"`
	Label   string   `json:"label,omitempty"`
	Type    string   `json:"type"`
	Filter  int      `json:"filter"`
	Key     string   `json:"key"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Step    float64  `json:"step,omitempty"`
	Default float64  `json:"default"`
}

// Clamp limits v to the declared range. Bool parameters collapse to 0 or 1.
func (p ParamSpec) Clamp(v float64) float64 {
	if p.Type == "bool" {
		if v != 0 {
			return 1
		}
		return 0
	}
	if p.Min != nil && v < *p.Min {
		v = *p.Min
	}
	if p.Max != nil && v > *p.Max {
		v = *p.Max
	}
	return v
}

// KindSpec is one adjustment kind: its ordered filter chain and parameters.
type KindSpec struct {
	Name        string      `json:"name"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Filters     []string    `json:"filters"`
	Params      []ParamSpec `json:"params"`
}

// Param looks up a parameter by name.
func (k KindSpec) Param(name string) (ParamSpec, bool) {
	for _, p := range k.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

type Catalog struct {
	Version int        `json:"version"`
	Kinds   []KindSpec `json:"kinds"`
}

// ErrUnknownKind is returned when an adjustment kind is not in the catalog.
var ErrUnknownKind = errors.New("unknown adjustment kind")

// Load validates data against the catalog schema and decodes it.
func Load(data []byte) (*Catalog, error) {
	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(catalogSchema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	if !res.Valid() {
		var msgs []string
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("invalid catalog: %s", strings.Join(msgs, "; "))
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	seen := map[string]bool{}
	for _, k := range c.Kinds {
		if seen[k.Name] {
			return nil, fmt.Errorf("invalid catalog: duplicate kind %q", k.Name)
		}
		seen[k.Name] = true
		for _, p := range k.Params {
			if p.Filter >= len(k.Filters) {
				return nil, fmt.Errorf("invalid catalog: %s.%s references filter %d of %d", k.Name, p.Name, p.Filter, len(k.Filters))
			}
			if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
				return nil, fmt.Errorf("invalid catalog: %s.%s has min > max", k.Name, p.Name)
			}
		}
	}
	return &c, nil
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// Default returns the embedded catalog. It panics if the embedded data is invalid.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(catalogJSON)
		if err != nil {
			panic(err)
		}
		defaultCat = c
	})
	return defaultCat
}

// Kind looks up an adjustment kind by name.
func (c *Catalog) Kind(name string) (KindSpec, bool) {
	for _, k := range c.Kinds {
		if k.Name == name {
			return k, true
		}
	}
	return KindSpec{}, false
}

// Names lists the kind names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.Kinds))
	for _, k := range c.Kinds {
		out = append(out, k.Name)
	}
	return out
}

// Build instantiates the filter chain of a kind with every parameter at its default.
func (c *Catalog) Build(kind string) (KindSpec, []Adjustable, error) {
	k, ok := c.Kind(kind)
	if !ok {
		return KindSpec{}, nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	fs, err := Instantiate(k)
	if err != nil {
		return KindSpec{}, nil, err
	}
	return k, fs, nil
}

// Instantiate creates fresh filters for k with defaults applied.
func Instantiate(k KindSpec) ([]Adjustable, error) {
	fs := make([]Adjustable, 0, len(k.Filters))
	for _, name := range k.Filters {
		f, err := New(name)
		if err != nil {
			return nil, err
		}
		fs = append(fs, f)
	}
	for _, p := range k.Params {
		if p.Filter >= len(fs) || !fs[p.Filter].Set(p.Key, p.Clamp(p.Default)) {
			return nil, fmt.Errorf("kind %s: filter rejects %q", k.Name, p.Key)
		}
	}
	return fs, nil
}

// Apply sets a named parameter on the filters built for k. NaN and infinities
// are rejected; other values are clamped to the declared range.
func Apply(k KindSpec, fs []Adjustable, name string, v float64) (float64, bool) {
	p, ok := k.Param(name)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) || p.Filter >= len(fs) {
		return 0, false
	}
	v = p.Clamp(v)
	if !fs[p.Filter].Set(p.Key, v) {
		return 0, false
	}
	return v, true
}
