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

package tracer

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/sync/errgroup"

	"github.com/asmtrace/asmtrace/internal/arch"
	"github.com/asmtrace/asmtrace/internal/asmerr"
	"github.com/asmtrace/asmtrace/internal/memio"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "tracer")

// syscallStopSignal is the stop signal delivered at a syscall boundary
// once PTRACE_O_TRACESYSGOOD is set: ordinary SIGTRAP with the high bit
// set, distinguishing it from a "real" trap/breakpoint.
const syscallStopSignal = syscall.SIGTRAP | 0x80

// linuxTracer is the ptrace(2)-backed Tracer. All ptrace calls for a given
// child must originate from the same OS thread that attached to it, so
// every ptrace operation is funneled through a single goroutine with its
// OS thread locked for the lifetime of the tracer.
type linuxTracer struct {
	abi arch.ABI
	cmd chan func()

	mu       sync.Mutex
	pid      int
	state    State
	exitCode *int32
	killed   bool

	// expectingExit toggles between syscall-entry and syscall-exit across
	// successive syscall-stop events.
	expectingExit bool
	pending       SyscallRecord
}

// New starts the dedicated, OS-thread-pinned goroutine and returns a
// Tracer for the given architecture.
func New(abi arch.ABI) Tracer {
	t := &linuxTracer{abi: abi, cmd: make(chan func())}
	go t.loop()
	return t
}

func (t *linuxTracer) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	for fn := range t.cmd {
		fn()
	}
}

// exec runs fn on the tracer's pinned OS thread and blocks until it
// completes.
func (t *linuxTracer) exec(fn func()) {
	done := make(chan struct{})
	t.cmd <- func() {
		fn()
		close(done)
	}
	<-done
}

func (t *linuxTracer) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *linuxTracer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *linuxTracer) ExitCode() (int32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.exitCode == nil {
		return 0, false
	}
	return *t.exitCode, true
}

func (t *linuxTracer) ABI() arch.ABI { return t.abi }

// Attach waits for the initial stop of a child that has already requested
// PTRACE_TRACEME (via internal/subprocess) before its exec. It then
// enables PTRACE_O_TRACESYSGOOD so syscall stops are distinguishable from
// signal-delivery stops.
func (t *linuxTracer) Attach(pid int) error {
	var outErr error
	t.exec(func() {
		t.setState(Attaching)
		t.pid = pid

		// The very first wait4 on a just-forked tracee occasionally races
		// the child's own PTRACE_TRACEME/exec sequence and returns EINTR
		// or (rarely) ESRCH before the kernel has finished attaching; a
		// short bounded retry absorbs that race instead of failing attach
		// outright.
		var ws syscall.WaitStatus
		attachBackoff := backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Millisecond), 10)
		waitErr := backoff.Retry(func() error {
			_, err := syscall.Wait4(pid, &ws, 0, nil)
			if err == syscall.EINTR || err == syscall.ESRCH {
				return err
			}
			if err != nil {
				return backoff.Permanent(err)
			}
			return nil
		}, attachBackoff)
		if waitErr != nil {
			outErr = asmerr.Wrap(asmerr.SyscallFailure, "attach: initial wait4", waitErr)
			return
		}
		if !ws.Stopped() {
			outErr = asmerr.New(asmerr.SyscallFailure, "attach: child did not stop at entry")
			return
		}
		if err := syscall.PtraceSetOptions(pid, syscall.PTRACE_O_TRACESYSGOOD); err != nil {
			outErr = asmerr.Wrap(asmerr.SyscallFailure, "attach: PTRACE_SETOPTIONS", err)
			return
		}
		t.setState(Stopped)
		log.WithField("pid", pid).Debug("attached")
	})
	return outErr
}

func (t *linuxTracer) ReadRegisters() (arch.Regs, error) {
	var out arch.Regs
	var outErr error
	t.exec(func() {
		native, err := ptraceGetRegs(t.pid)
		if err != nil {
			outErr = asmerr.Wrap(asmerr.SyscallFailure, "PTRACE_GETREGS", err)
			return
		}
		out = nativeToRegs(native)
	})
	return out, outErr
}

func (t *linuxTracer) WriteRegisters(r arch.Regs) error {
	var outErr error
	t.exec(func() {
		native := regsToNative(r)
		if err := ptraceSetRegs(t.pid, native); err != nil {
			outErr = asmerr.Wrap(asmerr.SyscallFailure, "PTRACE_SETREGS", err)
		}
	})
	return outErr
}

func (t *linuxTracer) Detach() error {
	var outErr error
	t.exec(func() {
		if t.state == Exited || t.state == Killed {
			return
		}
		if err := syscall.PtraceDetach(t.pid); err != nil {
			outErr = asmerr.Wrap(asmerr.SyscallFailure, "PTRACE_DETACH", err)
		}
	})
	return outErr
}

func (t *linuxTracer) Run(timeout time.Duration) (RunResult, error) {
	return t.runUntil(nil, nil, timeout)
}

func (t *linuxTracer) RunUntil(pred SyscallPredicate, timeout time.Duration) (RunResult, error) {
	return t.runUntil(pred, nil, timeout)
}

func (t *linuxTracer) RunToAddress(addr uint64, timeout time.Duration) (RunResult, error) {
	return t.runUntil(nil, &addr, timeout)
}

// runUntil resumes the child with PTRACE_SYSCALL repeatedly, collecting a
// SyscallRecord at every matched entry/exit pair, until: the child exits
// or is killed by a signal, pred (if non-nil) accepts a completed record,
// target (if non-nil) is reached via a trap, or timeout elapses.
//
// The continuation loop and the timeout watcher run concurrently via an
// errgroup: the watcher never touches ptrace state directly (that would
// require the pinned tracer thread) and instead sends a plain SIGKILL,
// which unblocks the loop's blocking wait4.
func (t *linuxTracer) runUntil(pred SyscallPredicate, target *uint64, timeout time.Duration) (RunResult, error) {
	t.setState(Running)

	var timedOut atomic.Bool
	done := make(chan struct{})
	var result RunResult
	var runErr error

	var g errgroup.Group
	g.Go(func() error {
		defer close(done)
		result, runErr = t.continueLoop(pred, target)
		return nil
	})
	g.Go(func() error {
		select {
		case <-done:
		case <-time.After(timeout):
			timedOut.Store(true)
			log.WithField("pid", t.pid).Warn("run timed out, sending SIGKILL")
			_ = syscall.Kill(t.pid, syscall.SIGKILL)
			<-done
		}
		return nil
	})
	_ = g.Wait()

	if timedOut.Load() {
		return result, asmerr.New(asmerr.TimedOut, "run: timeout elapsed")
	}
	return result, runErr
}

func (t *linuxTracer) continueLoop(pred SyscallPredicate, target *uint64) (RunResult, error) {
	var result RunResult
	var outErr error

	t.exec(func() {
		for {
			if err := syscall.PtraceSyscall(t.pid, 0); err != nil {
				outErr = asmerr.Wrap(asmerr.SyscallFailure, "PTRACE_SYSCALL", err)
				return
			}

			var ws syscall.WaitStatus
			_, err := syscall.Wait4(t.pid, &ws, 0, nil)
			if err != nil {
				outErr = asmerr.Wrap(asmerr.SyscallFailure, "wait4", err)
				return
			}

			switch {
			case ws.Exited():
				code := int32(ws.ExitStatus())
				t.exitCode = &code
				result.ExitCode = &code
				t.setState(Exited)
				// A pending (entry-only) record is discarded per spec's
				// syscall-observation edge case: the child exited before
				// the matching exit stop arrived.
				return

			case ws.Signaled():
				t.killed = true
				t.setState(Killed)
				result.Killed = true
				return

			case ws.Stopped():
				sig := ws.StopSignal()
				if sig == syscall.Signal(syscallStopSignal) {
					if t.handleSyscallStop(&result) && pred != nil && pred(result.Syscalls[len(result.Syscalls)-1]) {
						t.setState(Stopped)
						return
					}
					continue
				}

				if sig == syscall.SIGTRAP && target != nil {
					native, regErr := ptraceGetRegs(t.pid)
					if regErr == nil {
						regs := nativeToRegs(native)
						if t.abi.AdjustPCAfterTrap(regs.PC) == *target {
							result.ReachedTarget = true
							result.StoppedAt = *target
							t.setState(Stopped)
							return
						}
					}
				}

				// Non-syscall, non-target signal-delivery stop: re-deliver
				// it to the child and keep going, per spec.md §4.3.
				if err := syscall.PtraceSyscall(t.pid, int(sig)); err != nil {
					outErr = asmerr.Wrap(asmerr.SyscallFailure, "PTRACE_SYSCALL (redeliver)", err)
					return
				}
				if _, err := syscall.Wait4(t.pid, &ws, 0, nil); err != nil {
					outErr = asmerr.Wrap(asmerr.SyscallFailure, "wait4 (post-redeliver)", err)
					return
				}
				continue
			}
		}
	})

	return result, outErr
}

// handleSyscallStop advances the entry/exit toggle. It returns true when a
// full record was just completed and appended to result.Syscalls.
func (t *linuxTracer) handleSyscallStop(result *RunResult) bool {
	native, err := ptraceGetRegs(t.pid)
	if err != nil {
		return false
	}
	regs := nativeToRegs(native)

	if !t.expectingExit {
		nr, args := t.abi.DecodeSyscallEntry(&regs)
		t.pending = SyscallRecord{Nr: nr, Args: args, EntryPC: regs.PC}
		t.expectingExit = true
		return false
	}

	t.pending.Ret = t.abi.DecodeSyscallReturn(&regs)
	t.pending.complete = true
	result.Syscalls = append(result.Syscalls, t.pending)
	t.expectingExit = false
	return true
}

// --- memio.WordIO implementation: single native-word peek/poke ---

func (t *linuxTracer) PeekWord(addr memio.Addr) (uint64, error) {
	var raw [8]byte
	var outErr error
	t.exec(func() {
		n, err := syscall.PtracePeekData(t.pid, uintptr(addr), raw[:])
		if err != nil {
			outErr = err
			return
		}
		if n != len(raw) {
			outErr = fmt.Errorf("short peek at %#x: got %d bytes", addr, n)
		}
	})
	if outErr != nil {
		return 0, outErr
	}
	return binary.LittleEndian.Uint64(raw[:]), nil
}

func (t *linuxTracer) PokeWord(addr memio.Addr, word uint64) error {
	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], word)
	var outErr error
	t.exec(func() {
		n, err := syscall.PtracePokeData(t.pid, uintptr(addr), raw[:])
		if err != nil {
			outErr = err
			return
		}
		if n != len(raw) {
			outErr = fmt.Errorf("short poke at %#x: wrote %d bytes", addr, n)
		}
	})
	return outErr
}

// InjectSyscall executes one syscall on behalf of the child: it overwrites
// the current register file with the given syscall number and arguments,
// single-steps the syscall instruction at the re-entry point, and restores
// the prior registers. Used by pkg/program for mmap-backed scratch
// allocation. The caller must ensure the child is Stopped at an address
// containing a bare `syscall`/`svc #0` instruction.
func (t *linuxTracer) InjectSyscall(nr uint64, args [6]uint64) (int64, error) {
	var ret int64
	var outErr error
	t.exec(func() {
		saved, err := ptraceGetRegs(t.pid)
		if err != nil {
			outErr = asmerr.Wrap(asmerr.SyscallFailure, "inject_syscall: save regs", err)
			return
		}
		native := applySyscallRegs(saved, nr, args)

		if err := ptraceSetRegs(t.pid, native); err != nil {
			outErr = asmerr.Wrap(asmerr.SyscallFailure, "inject_syscall: set regs", err)
			return
		}
		if err := syscall.PtraceSyscall(t.pid, 0); err != nil {
			outErr = asmerr.Wrap(asmerr.SyscallFailure, "inject_syscall: enter", err)
			return
		}
		var ws syscall.WaitStatus
		if _, err := syscall.Wait4(t.pid, &ws, 0, nil); err != nil {
			outErr = asmerr.Wrap(asmerr.SyscallFailure, "inject_syscall: wait entry", err)
			return
		}
		if err := syscall.PtraceSyscall(t.pid, 0); err != nil {
			outErr = asmerr.Wrap(asmerr.SyscallFailure, "inject_syscall: exit", err)
			return
		}
		if _, err := syscall.Wait4(t.pid, &ws, 0, nil); err != nil {
			outErr = asmerr.Wrap(asmerr.SyscallFailure, "inject_syscall: wait exit", err)
			return
		}

		result, err := ptraceGetRegs(t.pid)
		if err != nil {
			outErr = asmerr.Wrap(asmerr.SyscallFailure, "inject_syscall: read result", err)
			return
		}
		ret = int64(nativeToRegs(result).SyscallRet)

		if err := ptraceSetRegs(t.pid, saved); err != nil {
			outErr = asmerr.Wrap(asmerr.SyscallFailure, "inject_syscall: restore regs", err)
		}
	})
	return ret, outErr
}
