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
	"fmt"
	"runtime"
	"sync"

	"github.com/asmtrace/asmtrace/internal/render"
	"github.com/asmtrace/asmtrace/pkg/program"
	"github.com/asmtrace/asmtrace/pkg/report"
)

// StopPolicy controls what a failed expectation aborts, per spec.md §4.8
// and §6's `stop_option`.
type StopPolicy int

const (
	// Never records every failure and never aborts.
	Never StopPolicy = iota
	// FirstError aborts the entire run on the first failed expectation
	// anywhere.
	FirstError
	// EachTestError aborts only the current test's body on a failed
	// expectation, and continues with the next test.
	EachTestError
)

// String implements fmt.Stringer.
func (p StopPolicy) String() string {
	switch p {
	case Never:
		return "Never"
	case FirstError:
		return "FirstError"
	case EachTestError:
		return "EachTestError"
	default:
		return "Never"
	}
}

// ExpectationRecord is the append-only outcome of one REQUIRE-style
// assertion inside a test body (spec.md §3).
type ExpectationRecord = report.ExpectationRecord

// TestContext is the per-run mutable state handed to a test body: the
// live Program it is exercising, the ordered expectation log, and the
// fatal-stop flag the stop policy drives.
type TestContext struct {
	Program *program.Program

	policy StopPolicy

	mu           sync.Mutex
	expectations []ExpectationRecord
	fatalStop    bool
	runAborted   bool
}

// NewTestContext builds a TestContext bound to prog under policy and
// installs itself as prog's StopChecker, so a failed expectation's
// fatal-stop flag (spec.md §5) is consulted by every subsequent
// AsmFunction/AsmSymbol/AsmData/AsmBuffer operation the test body makes
// against prog, not just by checks the body performs manually.
func NewTestContext(prog *program.Program, policy StopPolicy) *TestContext {
	c := &TestContext{Program: prog, policy: policy}
	if prog != nil {
		prog.SetStopChecker(c)
	}
	return c
}

// Expectations returns a snapshot of every expectation recorded so far,
// in execution order.
func (c *TestContext) Expectations() []ExpectationRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ExpectationRecord, len(c.expectations))
	copy(out, c.expectations)
	return out
}

// FatalStopRequested reports whether a failed expectation has requested
// that the remainder of this test body (and possibly the whole run) be
// skipped. AsmFunction/AsmSymbol call sites are expected to check this
// before acting, per spec.md §5.
func (c *TestContext) FatalStopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatalStop
}

// RunAborted reports whether this test's failure, under FirstError
// policy, should abort the entire run rather than just this test.
func (c *TestContext) RunAborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runAborted
}

// Require evaluates a single boolean expectation, records its outcome
// with the caller's source location and rendered operand strings, and —
// on failure — applies the configured stop policy. op is rendered in the
// diagnostic (e.g. "==", "!="); lhs/rhs are passed through render.Render,
// falling back to "<unknown>" when no renderer applies.
func (c *TestContext) Require(pass bool, op string, lhs, rhs any) bool {
	_, file, line, ok := runtime.Caller(1)
	loc := "<unknown>"
	if ok {
		loc = fmt.Sprintf("%s:%d", file, line)
	}

	rec := ExpectationRecord{
		Location:    loc,
		RenderedLHS: render.Render(lhs),
		RenderedRHS: render.Render(rhs),
		Op:          op,
		Outcome:     pass,
	}

	c.mu.Lock()
	c.expectations = append(c.expectations, rec)
	if !pass {
		switch c.policy {
		case FirstError:
			c.fatalStop = true
			c.runAborted = true
		case EachTestError:
			c.fatalStop = true
		case Never:
		}
	}
	c.mu.Unlock()

	return pass
}

// RequireErr is a convenience for the common "operation must not have
// failed" expectation: err is rendered unquoted as its error message (or
// nil) and the expectation passes iff err is nil.
func (c *TestContext) RequireErr(err error, context string) bool {
	return c.Require(err == nil, "no error", context, errOrNil(err))
}

// errText renders through render's Stringer fallback, so it appears
// unquoted in the diagnostic rather than as a quoted string literal.
type errText string

func (e errText) String() string { return string(e) }

func errOrNil(err error) errText {
	if err == nil {
		return "nil"
	}
	return errText(err.Error())
}
