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
	"time"

	"github.com/google/uuid"
	"github.com/mohae/deepcopy"
	"github.com/sirupsen/logrus"

	"github.com/asmtrace/asmtrace/internal/arch"
	"github.com/asmtrace/asmtrace/internal/tracer"
	"github.com/asmtrace/asmtrace/pkg/program"
	"github.com/asmtrace/asmtrace/pkg/report"
)

// RunConfig is the configuration struct the excluded CLI front-end
// builds and hands to the core, per spec.md §6 (`core/user/program_options.hpp`
// in the original source keeps the same five fields).
type RunConfig struct {
	// AssignmentName selects a single assignment; empty means all.
	AssignmentName string
	// FileName overrides every selected assignment's exec path when set.
	FileName    string
	StopOption  StopPolicy
	ColorOption report.ColorMode
	Verbose     bool
}

// ExitCode is the process exit code a CLI front-end should use after a
// Runner.Run call, per spec.md §6.
type ExitCode int

const (
	ExitSuccess      ExitCode = 0
	ExitTestsFailed  ExitCode = 1
	ExitHarnessError ExitCode = 2
)

// Runner drives the registered Assignments/Tests against a Reporter,
// spawning a freshly traced Program per test (spec.md §4.8, §5).
type Runner struct {
	Registrar    *Registrar
	Reporter     report.Reporter
	Config       RunConfig
	Arch         arch.Arch
	SpawnTimeout time.Duration
	CallTimeout  time.Duration
}

// NewRunner builds a Runner against the global registrar with sensible
// default timeouts.
func NewRunner(reporter report.Reporter, cfg RunConfig, a arch.Arch) *Runner {
	return &Runner{
		Registrar:    GlobalRegistrar(),
		Reporter:     reporter,
		Config:       cfg,
		Arch:         a,
		SpawnTimeout: 5 * time.Second,
		CallTimeout:  5 * time.Second,
	}
}

// Run executes every selected assignment's tests in registration order
// and returns the process exit code spec.md §6 prescribes.
func (r *Runner) Run() ExitCode {
	runID := uuid.New().String()
	r.Reporter.BeginRun(runID)
	defer r.Reporter.EndRun()
	log := logrus.WithField("run_id", runID)

	assignments := r.selectAssignments()
	if len(assignments) == 0 {
		log.WithField("assignment", r.Config.AssignmentName).Error("no matching assignment registered")
		return ExitHarnessError
	}

	anyFailed := false
	for _, a := range assignments {
		execPath := a.ExecPath()
		if r.Config.FileName != "" {
			execPath = r.Config.FileName
		}

		r.Reporter.BeginAssignment(a.Name)
		aborted := false
		harnessErr := false
		for _, t := range a.Tests() {
			outcome, fatal := r.runOne(execPath, t)
			if !outcome.Passed {
				anyFailed = true
			}
			if fatal {
				// Only a spawn/attach/symtab failure carries Err; a
				// FirstError abort is a failed test, not a harness error.
				harnessErr = outcome.Err != nil
				if harnessErr {
					log.WithField("assignment", a.Name).Error("aborting run: harness-fatal error")
				} else {
					log.WithField("assignment", a.Name).Error("aborting run: failed expectation under FirstError")
				}
				aborted = true
				break
			}
		}
		r.Reporter.EndAssignment(a.Name)
		if aborted {
			if harnessErr {
				return ExitHarnessError
			}
			return ExitTestsFailed
		}
	}

	if anyFailed {
		return ExitTestsFailed
	}
	return ExitSuccess
}

// selectAssignments resolves Config.AssignmentName against the registrar:
// empty means every registered Assignment.
func (r *Runner) selectAssignments() []*Assignment {
	if r.Config.AssignmentName == "" {
		return r.Registrar.Assignments()
	}
	if a, ok := r.Registrar.Find(r.Config.AssignmentName); ok {
		return []*Assignment{a}
	}
	return nil
}

// runOne spawns a fresh Program for t's executable, runs the body to
// completion (or until a fatal expectation/harness error), reports the
// outcome, and tears the Program down. The second return value reports
// whether the failure is fatal to the whole run: true only for a failed
// spawn/attach/symtab parse (spec.md §7 "Fatal to the run") or for a
// failed expectation under FirstError policy (spec.md §4.8). A test-body
// panic — standing in for "the child dying unexpectedly" / "the tracer
// losing sync" / "allocation failure" — is fatal to this test only
// (spec.md §7 "Fatal to the current test (not the run)"): the runner
// continues with the next test.
func (r *Runner) runOne(execPath string, t *Test) (report.TestOutcome, bool) {
	r.Reporter.BeginTest(t.Name, t.Metadata)

	prog, err := program.New(execPath, r.Arch, r.SpawnTimeout)
	if err != nil {
		outcome := report.TestOutcome{Errored: true, Err: err}
		r.Reporter.EndTest(outcome)
		return outcome, true
	}
	defer func() {
		if closeErr := prog.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("program close reported an error")
		}
	}()

	ctx := NewTestContext(prog, r.Config.StopOption)

	errored := runBodySafely(t, ctx, prog)

	for _, rec := range ctx.Expectations() {
		r.Reporter.RecordExpectation(rec)
	}

	passed := !errored
	for _, rec := range ctx.Expectations() {
		if !rec.Outcome {
			passed = false
			break
		}
	}

	// Deep-copy the accumulated syscall log before it is discarded with
	// the Program, so a Reporter that stashes the outcome cannot have its
	// bookkeeping mutated out from under it by a subsequent call on the
	// same (now-closing) Program. prog.SyscallRecords() already returns a
	// fresh slice of records copied by value (Args is a fixed-size array);
	// deepcopy.Copy is a further defensive copy on top of that.
	syscalls, _ := deepcopy.Copy(prog.SyscallRecords()).([]tracer.SyscallRecord)

	outcome := report.TestOutcome{Passed: passed, Errored: errored, Syscalls: syscalls}
	r.Reporter.EndTest(outcome)

	return outcome, ctx.RunAborted()
}

// runBodySafely invokes t.Body, converting a panic (e.g. a nil-pointer
// dereference from a test author misusing an invalidated handle) into a
// harness-fatal outcome rather than crashing the whole runner, matching
// spec.md §7's "fatal to the current test (not the run)" category for
// "the tracer losing sync" style failures. A body that completes (with
// or without the context's fatal-stop flag set by a failed expectation)
// is not itself harness-errored: that distinction belongs to
// ExpectationRecord.Outcome, not to this return value.
func runBodySafely(t *Test, ctx *TestContext, prog *program.Program) (errored bool) {
	defer func() {
		if rec := recover(); rec != nil {
			errored = true
			logrus.WithField("test", t.Name).WithField("panic", rec).Error("test body panicked")
		}
	}()
	t.Body(ctx, prog)
	return false
}
