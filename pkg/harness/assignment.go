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
	"sync"

	"github.com/asmtrace/asmtrace/pkg/program"
)

// TestFunc is the polymorphic test body capability: given a live
// TestContext and the Program it is bound to, exercise the assignment's
// executable and record expectations. Both macro-authored closures and
// direct function values satisfy this signature (spec.md §4.8 "Polymorphic
// test body").
type TestFunc func(ctx *TestContext, prog *program.Program)

// Test is a named body of code exercising an Assignment, registered once
// at program start and never mutated afterward: per-run state lives in
// the TestContext handed to Body, not on Test itself.
type Test struct {
	Name       string
	Metadata   Metadata
	Body       TestFunc
	Assignment *Assignment
}

// Assignment bundles one executable with an ordered list of Tests. The
// exec path is externally rewritable so a front-end can remap it to a
// specific student's compiled submission between runs.
type Assignment struct {
	Name     string
	Metadata Metadata

	mu       sync.Mutex
	execPath string
	tests    []*Test
}

// ExecPath returns the path to the executable this Assignment grades.
func (a *Assignment) ExecPath() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.execPath
}

// SetExecPath overrides the executable path, e.g. so a front-end can
// point the same Assignment at a different student's submission.
func (a *Assignment) SetExecPath(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.execPath = path
}

// addTest appends test to the Assignment's ordered list, setting its
// owning Assignment back-reference, and returns the stored pointer.
func (a *Assignment) addTest(test Test) *Test {
	a.mu.Lock()
	defer a.mu.Unlock()
	test.Assignment = a
	stored := &test
	a.tests = append(a.tests, stored)
	return stored
}

// Tests returns every registered Test for this Assignment, in
// registration order.
func (a *Assignment) Tests() []*Test {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Test, len(a.tests))
	copy(out, a.tests)
	return out
}

// TestNames returns the name of every registered Test, in registration
// order.
func (a *Assignment) TestNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.tests))
	for i, t := range a.tests {
		out[i] = t.Name
	}
	return out
}
