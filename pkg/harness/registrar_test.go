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

package harness

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindOrCreateAssignmentIsIdempotent(t *testing.T) {
	r := &Registrar{byName: make(map[string]*Assignment)}

	a1 := r.FindOrCreateAssignment("thing", "/bin/true", nil)
	a2 := r.FindOrCreateAssignment("thing", "/bin/false", nil)

	require.Same(t, a1, a2)
	require.Equal(t, "/bin/true", a2.ExecPath(), "second call must not overwrite the existing Assignment's exec path")
}

func TestRegistrationOrderIsStable(t *testing.T) {
	r := &Registrar{byName: make(map[string]*Assignment)}

	a := r.FindOrCreateAssignment("thing", "/bin/true", nil)
	a.addTest(Test{Name: "first"})
	a.addTest(Test{Name: "second"})
	a.addTest(Test{Name: "third"})

	require.Equal(t, []string{"first", "second", "third"}, a.TestNames())
}

func TestAssignmentNamesPreservesRegistrationOrder(t *testing.T) {
	r := &Registrar{byName: make(map[string]*Assignment)}

	r.FindOrCreateAssignment("b", "/bin/true", nil)
	r.FindOrCreateAssignment("a", "/bin/true", nil)
	r.FindOrCreateAssignment("c", "/bin/true", nil)

	require.Equal(t, []string{"b", "a", "c"}, r.AssignmentNames())
	require.Equal(t, 3, r.NumRegistered())
}

func TestFindReportsMissingAssignment(t *testing.T) {
	r := &Registrar{byName: make(map[string]*Assignment)}

	_, ok := r.Find("nonexistent")
	require.False(t, ok)
}

func TestSetExecPathOverridesLookup(t *testing.T) {
	a := &Assignment{Name: "thing", execPath: "/bin/true"}
	a.SetExecPath("/bin/false")
	require.Equal(t, "/bin/false", a.ExecPath())
}
