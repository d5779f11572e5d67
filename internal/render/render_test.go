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

package render

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderKnownTypes(t *testing.T) {
	require.Equal(t, `"hi"`, Render("hi"))
	require.Equal(t, "true", Render(true))
	require.Equal(t, "42", Render(42))
	require.Equal(t, "-7", Render(int64(-7)))
	require.Equal(t, "3.5", Render(3.5))
	require.Equal(t, "01 ff", Render([]byte{0x01, 0xFF}))
}

type stubError struct{ msg string }

func (s stubError) String() string { return s.msg }

func TestRenderStringerFallsThroughToStringMethod(t *testing.T) {
	require.Equal(t, "custom", Render(stubError{msg: "custom"}))
}

func TestRenderUnknownTypeFallsBack(t *testing.T) {
	type opaque struct{ a, b int }
	require.Equal(t, Unknown, Render(opaque{1, 2}))
}

type sentinel struct{}

func TestRegistryIsIndependentOfDefault(t *testing.T) {
	r := NewRegistry()
	r.Register(func(v any) (string, bool) {
		if _, ok := v.(sentinel); ok {
			return "SENTINEL", true
		}
		return "", false
	})
	require.Equal(t, "SENTINEL", r.Render(sentinel{}))
	require.Equal(t, Unknown, Render(sentinel{}))
}
