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

// Package harness implements the test registry and runner: static-init
// registration of assignments/tests into a process-wide GlobalRegistrar,
// per-test lifecycle management against a freshly spawned traced child,
// and expectation recording (spec.md §4.8, §5, §6).
package harness

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "harness")

// Metadata is the free-form string-keyed bag carried by Assignments and
// Tests, per `core/api/assignment.cpp`/`core/test/assignment.cpp` in the
// original source: assignments carry more than just a name.
type Metadata map[string]string

// Registrar is the process-wide store of Assignments, populated only
// during static init (package-level init() functions calling Register)
// and read-only afterward, so no locking is required once the program's
// init phase has completed. The mutex below guards the (rare) case of a
// test harness that registers lazily rather than from init().
type Registrar struct {
	mu          sync.Mutex
	assignments []*Assignment
	byName      map[string]*Assignment
}

var (
	globalOnce sync.Once
	global     *Registrar
)

// GlobalRegistrar returns the process-wide singleton registrar, lazily
// initialized on first use (spec.md §5 "Shared resources").
func GlobalRegistrar() *Registrar {
	globalOnce.Do(func() {
		global = &Registrar{byName: make(map[string]*Assignment)}
	})
	return global
}

// FindOrCreateAssignment returns the named Assignment, creating it (with
// the given exec path) if it does not yet exist. This is the pathway
// spec.md §9 says to prefer over the commented-out
// `GlobalRegistrar::add` alternative seen in the original source's
// `global_registrar.cpp`.
func (r *Registrar) FindOrCreateAssignment(name, execPath string, meta Metadata) *Assignment {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.byName[name]; ok {
		return a
	}
	a := &Assignment{Name: name, execPath: execPath, Metadata: meta}
	r.byName[name] = a
	r.assignments = append(r.assignments, a)
	log.WithField("assignment", name).Debug("registered assignment")
	return a
}

// Assignments returns every registered Assignment in registration order.
func (r *Registrar) Assignments() []*Assignment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Assignment, len(r.assignments))
	copy(out, r.assignments)
	return out
}

// AssignmentNames returns the name of every registered Assignment, in
// registration order.
func (r *Registrar) AssignmentNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.assignments))
	for i, a := range r.assignments {
		out[i] = a.Name
	}
	return out
}

// NumRegistered reports the total number of registered Assignments.
func (r *Registrar) NumRegistered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.assignments)
}

// Find looks up an Assignment by name.
func (r *Registrar) Find(name string) (*Assignment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byName[name]
	return a, ok
}

// Register is the entry point a TEST-style macro/helper calls at
// init()-time: it locates or creates the owning Assignment and appends a
// fresh Test to its ordered list. The TestAutoRegistrar in the original
// source plays the same role via a template constructor; Go's init()
// ordering within a file (and across files in declaration order within a
// package, per the spec's "translation unit" note) gives the same
// registration-order guarantee.
func Register(assignmentName, execPath string, assignmentMeta Metadata, test Test) *Test {
	a := GlobalRegistrar().FindOrCreateAssignment(assignmentName, execPath, assignmentMeta)
	return a.addTest(test)
}
