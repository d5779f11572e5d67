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

package report

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// ColorMode mirrors spec.md §6's colorize_option.
type ColorMode int

const (
	ColorAuto ColorMode = iota
	ColorAlways
	ColorNever
)

// ConsoleReporter renders a run to an io.Writer (stdout by default)
// through a logrus.Logger, the same way the teacher's `runsc` commands
// route all diagnostic output through `pkg/log` rather than raw
// fmt.Print calls. Colorization is handled by logrus's TextFormatter,
// which ConsoleReporter configures according to ColorMode.
type ConsoleReporter struct {
	mu       sync.Mutex
	out      io.Writer
	log      *logrus.Logger
	verbose  bool
	assign   string
	test     string
	curName  string
	passCnt  int
	failCnt  int
	totalPas int
	totalFai int
}

// NewConsole builds a ConsoleReporter writing to out, colorized per mode.
func NewConsole(out io.Writer, mode ColorMode, verbose bool) *ConsoleReporter {
	if out == nil {
		out = os.Stdout
	}
	l := logrus.New()
	l.SetOutput(out)
	formatter := &logrus.TextFormatter{DisableTimestamp: true}
	switch mode {
	case ColorAlways:
		formatter.ForceColors = true
	case ColorNever:
		formatter.DisableColors = true
	case ColorAuto:
		// leave logrus to auto-detect based on the output's terminal-ness
	}
	l.SetFormatter(formatter)
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return &ConsoleReporter{out: out, log: l, verbose: verbose}
}

func (c *ConsoleReporter) BeginRun(runID string) {
	c.log.WithField("run_id", runID).Info("starting run")
}

func (c *ConsoleReporter) BeginAssignment(name string) {
	c.mu.Lock()
	c.assign = name
	c.mu.Unlock()
	c.log.WithField("assignment", name).Info("assignment")
}

func (c *ConsoleReporter) BeginTest(name string, metadata map[string]string) {
	c.mu.Lock()
	c.curName = name
	c.mu.Unlock()
	c.log.WithField("test", name).Debug("running test")
}

func (c *ConsoleReporter) RecordExpectation(rec ExpectationRecord) {
	if rec.Outcome {
		c.log.WithField("at", rec.Location).Debugf("PASS: %s %s %s", rec.RenderedLHS, rec.Op, rec.RenderedRHS)
		return
	}
	c.log.WithField("at", rec.Location).Errorf("FAIL: %s %s %s", rec.RenderedLHS, rec.Op, rec.RenderedRHS)
}

func (c *ConsoleReporter) EndTest(outcome TestOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.log.WithField("test", c.curName)
	switch {
	case outcome.Errored:
		c.failCnt++
		c.totalFai++
		entry.WithError(outcome.Err).Error("test errored")
	case outcome.Passed:
		c.passCnt++
		c.totalPas++
		entry.Debug("test passed")
	default:
		c.failCnt++
		c.totalFai++
		entry.Error("test failed")
	}
}

func (c *ConsoleReporter) EndAssignment(name string) {
	c.mu.Lock()
	pass, fail := c.passCnt, c.failCnt
	c.passCnt, c.failCnt = 0, 0
	c.mu.Unlock()
	c.log.WithFields(logrus.Fields{"assignment": name, "passed": pass, "failed": fail}).Info("assignment complete")
}

func (c *ConsoleReporter) EndRun() {
	c.mu.Lock()
	pass, fail := c.totalPas, c.totalFai
	c.mu.Unlock()
	c.log.WithFields(logrus.Fields{"passed": pass, "failed": fail}).Info("run complete")
}

func (c *ConsoleReporter) Write(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, text)
}

func (c *ConsoleReporter) Flush() error {
	if f, ok := c.out.(*os.File); ok {
		return f.Sync()
	}
	return nil
}
