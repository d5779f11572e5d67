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

// Package main is the thin CLI boundary named in spec.md §1 as a
// deliberately-out-of-scope collaborator: it only parses flags into a
// harness.RunConfig and hands off to pkg/harness/pkg/report. Richer
// configuration loading (files, environment layering) belongs to a real
// front-end, not this package.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/asmtrace/asmtrace/internal/arch"
	"github.com/asmtrace/asmtrace/pkg/harness"
	"github.com/asmtrace/asmtrace/pkg/report"
)

// runCmd implements subcommands.Command for the "run" command, the only
// user-facing verb this harness exposes: run the registered assignments'
// tests and print a report.
type runCmd struct {
	assignment string
	file       string
	stop       string
	color      string
	verbose    bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run registered assignments against their executables" }
func (*runCmd) Usage() string {
	return `run [-assignment NAME] [-file PATH] [-stop never|first|each] [-color auto|always|never] [-v]:
	Run every registered test, or only those under -assignment, and print a report.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.assignment, "assignment", "", "run only this assignment (default: all)")
	f.StringVar(&c.file, "file", "", "override every selected assignment's executable path")
	f.StringVar(&c.stop, "stop", "never", "stop policy: never, first, each")
	f.StringVar(&c.color, "color", "auto", "colorize output: auto, always, never")
	f.BoolVar(&c.verbose, "v", false, "verbose (debug-level) logging")
}

func (c *runCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	cfg := harness.RunConfig{
		AssignmentName: c.assignment,
		FileName:       c.file,
		StopOption:     parseStopOption(c.stop),
		ColorOption:    parseColorOption(c.color),
		Verbose:        c.verbose,
	}

	a, err := hostArch()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitStatus(harness.ExitHarnessError)
	}

	reporter := report.NewConsole(os.Stdout, cfg.ColorOption, cfg.Verbose)
	runner := harness.NewRunner(reporter, cfg, a)

	code := runner.Run()
	return subcommands.ExitStatus(code)
}

func parseStopOption(s string) harness.StopPolicy {
	switch s {
	case "first":
		return harness.FirstError
	case "each":
		return harness.EachTestError
	default:
		return harness.Never
	}
}

func parseColorOption(s string) report.ColorMode {
	switch s {
	case "always":
		return report.ColorAlways
	case "never":
		return report.ColorNever
	default:
		return report.ColorAuto
	}
}

// hostArch maps the running process's own architecture onto the
// harness's supported-ABI enum, per spec.md §1's "No ABIs other than the
// two supported CPU architectures".
func hostArch() (arch.Arch, error) {
	switch runtime.GOARCH {
	case "amd64":
		return arch.AMD64, nil
	case "arm64":
		return arch.ARM64, nil
	default:
		return 0, fmt.Errorf("asmtrace: unsupported host architecture %q", runtime.GOARCH)
	}
}

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
}
