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

// Package report defines the Reporter boundary (spec.md §6): a sink for
// structured grading results. The core only depends on this interface;
// colorized terminal rendering and any persistence are external
// collaborators. Two implementations are provided here as a convenience:
// a logrus-backed console reporter and an in-memory reporter useful for
// embedding the harness in another Go program.
package report

import "github.com/asmtrace/asmtrace/internal/tracer"

// ExpectationRecord is the append-only outcome of one expectation
// evaluated inside a test body (spec.md §3, §4.8).
type ExpectationRecord struct {
	Location    string
	RenderedLHS string
	RenderedRHS string
	Op          string
	Outcome     bool
}

// TestOutcome summarizes a finished test for end_test.
type TestOutcome struct {
	Passed bool
	// Errored is true when the test was aborted by a harness-level
	// failure (child died unexpectedly, tracer lost sync, allocation
	// failure) rather than by a failed expectation (spec.md §7).
	Errored bool
	Err     error

	// Syscalls is a defensive deep copy of the Program's accumulated
	// syscall log, taken before the Program is closed, so a Reporter (or
	// a caller inspecting the returned TestOutcome) holds bookkeeping
	// that cannot be mutated out from under it by a later call on the
	// same, now-closing Program.
	Syscalls []tracer.SyscallRecord
}

// Reporter is the structured-results sink boundary from spec.md §6. The
// grading core calls these methods; rendering, colorizing, and any
// persistence of the output belong to the implementation, outside the
// core's scope.
type Reporter interface {
	BeginRun(runID string)
	BeginAssignment(name string)
	BeginTest(name string, metadata map[string]string)
	RecordExpectation(rec ExpectationRecord)
	EndTest(outcome TestOutcome)
	EndAssignment(name string)
	EndRun()

	// Write emits freeform diagnostic text, e.g. from a test body that
	// wants to annotate its own output.
	Write(text string)
	Flush() error
}
