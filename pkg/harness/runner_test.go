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

//go:build linux

package harness

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/asmtrace/asmtrace/internal/arch"
	"github.com/asmtrace/asmtrace/pkg/program"
	"github.com/asmtrace/asmtrace/pkg/report"
)

func hostArch(t *testing.T) arch.Arch {
	switch runtime.GOARCH {
	case "amd64":
		return arch.AMD64
	case "arm64":
		return arch.ARM64
	default:
		t.Skipf("unsupported host architecture %s", runtime.GOARCH)
		return 0
	}
}

func newTestRegistrar(execPath string, body TestFunc) *Registrar {
	r := &Registrar{byName: make(map[string]*Assignment)}
	a := r.FindOrCreateAssignment("thing", execPath, nil)
	a.addTest(Test{Name: "only test", Body: body})
	return r
}

func TestRunnerReportsPassingTest(t *testing.T) {
	r := newTestRegistrar("/bin/true", func(ctx *TestContext, prog *program.Program) {
		ctx.Require(1+1 == 2, "==", 1+1, 2)
	})

	mem := report.NewMemory()
	runner := &Runner{
		Registrar:    r,
		Reporter:     mem,
		Arch:         hostArch(t),
		SpawnTimeout: 2 * time.Second,
		CallTimeout:  2 * time.Second,
	}

	code := runner.Run()
	require.Equal(t, ExitSuccess, code)

	results := mem.Results()
	require.Len(t, results, 1)
	require.True(t, results[0].Outcome.Passed)
	require.False(t, results[0].Outcome.Errored)
}

func TestRunnerReportsFailingExpectation(t *testing.T) {
	r := newTestRegistrar("/bin/true", func(ctx *TestContext, prog *program.Program) {
		ctx.Require(false, "==", 1, 2)
	})

	mem := report.NewMemory()
	runner := &Runner{
		Registrar:    r,
		Reporter:     mem,
		Config:       RunConfig{StopOption: Never},
		Arch:         hostArch(t),
		SpawnTimeout: 2 * time.Second,
		CallTimeout:  2 * time.Second,
	}

	code := runner.Run()
	require.Equal(t, ExitTestsFailed, code)

	results := mem.Results()
	require.Len(t, results, 1)
	require.False(t, results[0].Outcome.Passed)
}

func TestRunnerSurvivesTestBodyPanic(t *testing.T) {
	r := newTestRegistrar("/bin/true", func(ctx *TestContext, prog *program.Program) {
		var p *program.Program
		_ = p.Stdout() // nil-pointer misuse of an invalidated-style handle
	})

	mem := report.NewMemory()
	runner := &Runner{
		Registrar:    r,
		Reporter:     mem,
		Arch:         hostArch(t),
		SpawnTimeout: 2 * time.Second,
		CallTimeout:  2 * time.Second,
	}

	require.NotPanics(t, func() { runner.Run() })

	results := mem.Results()
	require.Len(t, results, 1)
	require.True(t, results[0].Outcome.Errored)
}

func TestRunnerAbortsRunOnSpawnFailure(t *testing.T) {
	r := &Registrar{byName: make(map[string]*Assignment)}
	a := r.FindOrCreateAssignment("thing", "/nonexistent/binary-does-not-exist", nil)
	a.addTest(Test{Name: "first", Body: func(ctx *TestContext, prog *program.Program) {}})
	a.addTest(Test{Name: "second", Body: func(ctx *TestContext, prog *program.Program) {}})

	mem := report.NewMemory()
	runner := &Runner{
		Registrar:    r,
		Reporter:     mem,
		Arch:         hostArch(t),
		SpawnTimeout: 2 * time.Second,
		CallTimeout:  2 * time.Second,
	}

	code := runner.Run()
	require.Equal(t, ExitHarnessError, code)

	results := mem.Results()
	require.Len(t, results, 1, "a spawn failure must abort the run rather than trying the next test")
	require.True(t, results[0].Outcome.Errored)
}

func TestRunnerSelectsSingleAssignmentByName(t *testing.T) {
	r := &Registrar{byName: make(map[string]*Assignment)}
	a1 := r.FindOrCreateAssignment("one", "/bin/true", nil)
	a1.addTest(Test{Name: "t", Body: func(ctx *TestContext, prog *program.Program) {}})
	a2 := r.FindOrCreateAssignment("two", "/bin/true", nil)
	a2.addTest(Test{Name: "t", Body: func(ctx *TestContext, prog *program.Program) {}})

	mem := report.NewMemory()
	runner := &Runner{
		Registrar:    r,
		Reporter:     mem,
		Config:       RunConfig{AssignmentName: "two"},
		Arch:         hostArch(t),
		SpawnTimeout: 2 * time.Second,
		CallTimeout:  2 * time.Second,
	}

	code := runner.Run()
	require.Equal(t, ExitSuccess, code)
	require.Len(t, mem.Results(), 1)
}

func TestRunnerReportsHarnessErrorForUnknownAssignment(t *testing.T) {
	r := &Registrar{byName: make(map[string]*Assignment)}
	mem := report.NewMemory()
	runner := &Runner{
		Registrar: r,
		Reporter:  mem,
		Config:    RunConfig{AssignmentName: "nonexistent"},
		Arch:      hostArch(t),
	}

	require.Equal(t, ExitHarnessError, runner.Run())
}
