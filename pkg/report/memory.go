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

import "sync"

// TestResult is one finished test's record, as collected by MemoryReporter.
type TestResult struct {
	Assignment   string
	Name         string
	Metadata     map[string]string
	Expectations []ExpectationRecord
	Outcome      TestOutcome
}

// MemoryReporter accumulates a run's results in memory rather than
// rendering them, for embedding the harness in another Go program or for
// asserting on results in the harness's own tests.
type MemoryReporter struct {
	mu      sync.Mutex
	runID   string
	results []TestResult
	buf     []string

	curAssignment string
	curName       string
	curMeta       map[string]string
	curExpect     []ExpectationRecord
}

// NewMemory builds an empty MemoryReporter.
func NewMemory() *MemoryReporter { return &MemoryReporter{} }

func (m *MemoryReporter) BeginRun(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runID = runID
}

func (m *MemoryReporter) BeginAssignment(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.curAssignment = name
}

func (m *MemoryReporter) BeginTest(name string, metadata map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.curName = name
	m.curMeta = metadata
	m.curExpect = nil
}

func (m *MemoryReporter) RecordExpectation(rec ExpectationRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.curExpect = append(m.curExpect, rec)
}

func (m *MemoryReporter) EndTest(outcome TestOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, TestResult{
		Assignment:   m.curAssignment,
		Name:         m.curName,
		Metadata:     m.curMeta,
		Expectations: m.curExpect,
		Outcome:      outcome,
	})
}

func (m *MemoryReporter) EndAssignment(string) {}
func (m *MemoryReporter) EndRun()              {}

func (m *MemoryReporter) Write(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf = append(m.buf, text)
}

func (m *MemoryReporter) Flush() error { return nil }

// RunID returns the correlation id passed to BeginRun.
func (m *MemoryReporter) RunID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runID
}

// Results returns every completed test's result, in completion order.
func (m *MemoryReporter) Results() []TestResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TestResult, len(m.results))
	copy(out, m.results)
	return out
}

// Written returns every string passed to Write, in order.
func (m *MemoryReporter) Written() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.buf))
	copy(out, m.buf)
	return out
}
