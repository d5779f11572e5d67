// Copyright 2026 The asmtrace Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package render implements the type-directed formatter lookup spec.md §9
// describes for expectation diagnostics: a renderer is consulted if one
// exists for a value's dynamic type, falling back to the literal string
// "<unknown>" otherwise. This is a capability lookup, not a general
// reflection/runtime-typing mechanism.
package render

import (
	"fmt"
	"sync"
)

// Unknown is emitted for any value with no applicable renderer.
const Unknown = "<unknown>"

// Renderer renders v to a diagnostic string, reporting false if it does
// not know how to handle v's dynamic type.
type Renderer func(v any) (string, bool)

// Registry is an ordered, concurrency-safe set of Renderers consulted in
// registration order: the first Renderer to report true wins.
type Registry struct {
	mu        sync.RWMutex
	renderers []Renderer
}

// Default is the package-level registry ExpectationRecord rendering uses.
var Default = NewRegistry()

// NewRegistry builds a Registry pre-seeded with renderers for the
// fixed-width integer, boolean, string, and byte-slice types the harness's
// own Serde layer moves across the child boundary.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(renderString)
	r.Register(renderBool)
	r.Register(renderInteger)
	r.Register(renderFloat)
	r.Register(renderBytes)
	r.Register(renderStringer)
	return r
}

// Register appends renderer to the end of the registry's lookup chain.
func (r *Registry) Register(renderer Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers = append(r.renderers, renderer)
}

// Render renders v using the first matching registered renderer, or
// Unknown if none match.
func (r *Registry) Render(v any) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, renderer := range r.renderers {
		if s, ok := renderer(v); ok {
			return s
		}
	}
	return Unknown
}

// Render renders v against the package-level Default registry.
func Render(v any) string { return Default.Render(v) }

func renderString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%q", s), true
}

func renderBool(v any) (string, bool) {
	b, ok := v.(bool)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%t", b), true
}

func renderInteger(v any) (string, bool) {
	switch n := v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", n), true
	default:
		return "", false
	}
}

func renderFloat(v any) (string, bool) {
	switch n := v.(type) {
	case float32, float64:
		return fmt.Sprintf("%g", n), true
	default:
		return "", false
	}
}

func renderBytes(v any) (string, bool) {
	b, ok := v.([]byte)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("% x", b), true
}

// stringer duplicates fmt.Stringer to avoid importing it just for the
// interface assertion below.
type stringer interface {
	String() string
}

func renderStringer(v any) (string, bool) {
	s, ok := v.(stringer)
	if !ok {
		return "", false
	}
	return s.String(), true
}
