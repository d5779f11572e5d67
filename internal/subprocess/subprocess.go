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

// Package subprocess forks and execs a traced target, wiring its stdio to
// pipes the parent owns and requesting ptrace traceability before the
// exec, the way a debugger stub does. It is deliberately ignorant of the
// tracer's continue/wait loop: subprocess's job ends at "the child now
// exists, stopped at its first instruction, with PTRACE_TRACEME pending."
package subprocess

import (
	"io"
	"os"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asmtrace/asmtrace/internal/asmerr"
)

var log = logrus.WithField("component", "subprocess")

// noCopy, embedded by value, makes `go vet`'s copylocks check flag any
// attempt to copy a Subprocess instead of passing its pointer. Subprocess
// owns OS-level resources (pid, pipe fds) that cannot be duplicated
// safely: it is move-only, and in Go that means "never copied," since
// there is no move constructor to hook.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Subprocess is a forked, traceable child process with parent-owned pipe
// ends for its stdin/stdout/stderr. Zero value is not usable; construct
// with New.
type Subprocess struct {
	_ noCopy

	proc *os.Process
	pid  int

	stdin  *os.File // parent's write end of the child's stdin
	stdout *os.File // parent's read end of the child's stdout
	stderr *os.File // parent's read end of the child's stderr

	reaped bool
}

// New forks path (with args, inheriting the parent's environment unless
// env is non-nil) and arranges for the child to request PTRACE_TRACEME
// before calling exec. The child stops itself with SIGTRAP at the entry
// point of the new image; the caller must Attach a tracer to it before
// resuming.
func New(path string, args []string, env []string) (*Subprocess, error) {
	stdinRead, stdinWrite, err := os.Pipe()
	if err != nil {
		return nil, asmerr.Wrap(asmerr.SyscallFailure, "subprocess: stdin pipe", err)
	}
	stdoutRead, stdoutWrite, err := os.Pipe()
	if err != nil {
		stdinRead.Close()
		stdinWrite.Close()
		return nil, asmerr.Wrap(asmerr.SyscallFailure, "subprocess: stdout pipe", err)
	}
	stderrRead, stderrWrite, err := os.Pipe()
	if err != nil {
		stdinRead.Close()
		stdinWrite.Close()
		stdoutRead.Close()
		stdoutWrite.Close()
		return nil, asmerr.Wrap(asmerr.SyscallFailure, "subprocess: stderr pipe", err)
	}

	argv := append([]string{path}, args...)
	proc, err := os.StartProcess(path, argv, &os.ProcAttr{
		Env:   env,
		Files: []*os.File{stdinRead, stdoutWrite, stderrWrite},
		Sys: &syscall.SysProcAttr{
			Ptrace:    true,
			Pdeathsig: syscall.SIGKILL,
		},
	})
	// The child's ends of each pipe are only needed by the child; once
	// StartProcess has duped them into the new image, the parent's copies
	// are dead weight.
	stdinRead.Close()
	stdoutWrite.Close()
	stderrWrite.Close()
	if err != nil {
		stdinWrite.Close()
		stdoutRead.Close()
		stderrRead.Close()
		return nil, asmerr.Wrap(asmerr.SyscallFailure, "subprocess: start process", err)
	}

	log.WithField("pid", proc.Pid).Debug("forked traced child")
	return &Subprocess{
		proc:   proc,
		pid:    proc.Pid,
		stdin:  stdinWrite,
		stdout: stdoutRead,
		stderr: stderrRead,
	}, nil
}

// Pid returns the child's process id.
func (s *Subprocess) Pid() int { return s.pid }

// WriteStdin writes data to the child's stdin, blocking until it is
// accepted or timeout elapses.
func (s *Subprocess) WriteStdin(data []byte, timeout time.Duration) error {
	if err := s.stdin.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return asmerr.Wrap(asmerr.SyscallFailure, "subprocess: set write deadline", err)
	}
	if _, err := s.stdin.Write(data); err != nil {
		if os.IsTimeout(err) {
			return asmerr.Wrap(asmerr.TimedOut, "subprocess: write stdin", err)
		}
		return asmerr.Wrap(asmerr.SyscallFailure, "subprocess: write stdin", err)
	}
	return nil
}

// ReadStdout reads whatever the child has written to stdout since the
// last read, blocking until at least one byte arrives or timeout elapses.
func (s *Subprocess) ReadStdout(timeout time.Duration) ([]byte, error) {
	return readAvailable(s.stdout, timeout)
}

// ReadStderr behaves like ReadStdout for the child's stderr stream.
func (s *Subprocess) ReadStderr(timeout time.Duration) ([]byte, error) {
	return readAvailable(s.stderr, timeout)
}

func readAvailable(f *os.File, timeout time.Duration) ([]byte, error) {
	if err := f.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, asmerr.Wrap(asmerr.SyscallFailure, "subprocess: set read deadline", err)
	}
	buf := make([]byte, 64*1024)
	n, err := f.Read(buf)
	if err != nil {
		if os.IsTimeout(err) {
			return nil, asmerr.Wrap(asmerr.TimedOut, "subprocess: read", err)
		}
		if err == io.EOF {
			return nil, nil
		}
		return nil, asmerr.Wrap(asmerr.SyscallFailure, "subprocess: read", err)
	}
	return buf[:n], nil
}

// Wait reaps the child, blocking until it exits. It is idempotent: if the
// child has already been reaped elsewhere (the tracer's own wait4 loop
// consumes the same wait status), the "no child processes" error from the
// second reap attempt is swallowed rather than surfaced.
func (s *Subprocess) Wait() (*os.ProcessState, error) {
	if s.reaped {
		return nil, nil
	}
	state, err := s.proc.Wait()
	s.reaped = true
	if err != nil {
		if errno, ok := err.(*os.SyscallError); ok && errno.Err == syscall.ECHILD {
			return nil, nil
		}
		return nil, asmerr.Wrap(asmerr.SyscallFailure, "subprocess: wait", err)
	}
	return state, nil
}

// Close sends an unconditional kill and reaps the child, releasing the
// pipe file descriptors. Safe to call multiple times.
func (s *Subprocess) Close() error {
	if !s.reaped {
		_ = s.proc.Signal(syscall.SIGKILL)
		if _, err := s.Wait(); err != nil {
			log.WithField("pid", s.pid).WithError(err).Warn("wait during close")
		}
	}
	s.stdin.Close()
	s.stdout.Close()
	s.stderr.Close()
	return nil
}
