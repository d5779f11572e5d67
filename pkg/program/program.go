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

// Package program implements the test body's handle on a live, traced
// assignment executable: Program owns the subprocess, tracer, symbol
// table, and scratch-memory bookkeeping that AsmData/AsmSymbol/AsmBuffer/
// AsmFunction handles read through without owning anything themselves.
package program

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/asmtrace/asmtrace/internal/arch"
	"github.com/asmtrace/asmtrace/internal/asmerr"
	"github.com/asmtrace/asmtrace/internal/memio"
	"github.com/asmtrace/asmtrace/internal/subprocess"
	"github.com/asmtrace/asmtrace/internal/symtab"
	"github.com/asmtrace/asmtrace/internal/tracer"
)

var log = logrus.WithField("component", "program")

const pageSize = 4096

// AllocRegion is one entry in a Program's AllocList: a non-overlapping,
// writable region carved out of the child for harness scratch use.
type AllocRegion struct {
	Addr memio.Addr
	Size uint64
}

// AllocList is the monotonically growing, non-overlapping list of scratch
// regions a Program has carved out of its child. It never shrinks:
// regions persist until the owning Program is destroyed.
type AllocList struct {
	mu      sync.Mutex
	regions []AllocRegion
}

func (l *AllocList) add(r AllocRegion) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.regions = append(l.regions, r)
}

// Regions returns a snapshot of every region allocated so far.
func (l *AllocList) Regions() []AllocRegion {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AllocRegion, len(l.regions))
	copy(out, l.regions)
	return out
}

// StopChecker reports whether cooperative cancellation has been
// requested for a Program's in-flight test. TestContext implements this;
// Program consults whatever checker is installed before every
// AsmFunction/AsmSymbol/AsmData/AsmBuffer operation, per spec.md §5's
// "the AsmFunction and AsmSymbol helpers check this flag before acting."
type StopChecker interface {
	FatalStopRequested() bool
}

// Program is a live handle on a spawned, traced assignment executable.
// Program owns the TracedSubprocess, its Tracer, the resolved
// SymbolTable, and the AllocList; AsmData/AsmSymbol/AsmBuffer/AsmFunction
// hold only a *Program pointer plus an immutable address and become
// invalid once the Program is closed.
type Program struct {
	mu sync.Mutex

	execPath string
	lock     *flock.Flock
	sp       *subprocess.Subprocess
	tr       tracer.Tracer
	abi      arch.ABI
	mio      *memio.MemoryIO
	symbols  *symtab.SymbolTable
	allocs   AllocList

	// reentry is the re-entry point AsmFunction calls park the program
	// counter at: the initial entry point observed at the child's first
	// stop, per spec.md's "or the initial entry point at first stop"
	// option. A single breakpoint is planted/lifted there for the
	// duration of each call.
	reentry memio.Addr
	resting arch.Regs // the register snapshot to restore between calls

	inCall bool // state discipline: no two concurrent AsmFunction calls

	stdout bytes.Buffer
	stderr bytes.Buffer

	syscalls []tracer.SyscallRecord
	closed   bool

	stopCheck StopChecker
}

// New spawns execPath as a traced child of the given architecture,
// resolves its symbol table, and returns a live Program. An advisory
// flock on execPath is held for the Program's lifetime, so a front-end
// recompiling a student's submission between test runs cannot race a
// live trace.
func New(execPath string, a arch.Arch, timeout time.Duration) (*Program, error) {
	symbols, err := symtab.Load(execPath)
	if err != nil {
		return nil, err
	}

	lock := flock.New(execPath)
	lockCtx, cancel := context.WithTimeout(context.Background(), timeout)
	locked, err := lock.TryLockContext(lockCtx, 10*time.Millisecond)
	cancel()
	if err != nil || !locked {
		return nil, asmerr.Wrap(asmerr.SyscallFailure, "program: lock executable", err)
	}

	sp, err := subprocess.New(execPath, nil, nil)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	abi, err := arch.For(a)
	if err != nil {
		sp.Close()
		lock.Unlock()
		return nil, asmerr.Wrap(asmerr.SyscallFailure, "program: select ABI", err)
	}

	tr := tracer.New(abi)
	if err := tr.Attach(sp.Pid()); err != nil {
		sp.Close()
		lock.Unlock()
		return nil, err
	}

	resting, err := tr.ReadRegisters()
	if err != nil {
		tr.Detach()
		sp.Close()
		lock.Unlock()
		return nil, err
	}

	p := &Program{
		execPath: execPath,
		lock:     lock,
		sp:       sp,
		tr:       tr,
		abi:      abi,
		mio:      memio.New(tr),
		symbols:  symbols,
		reentry:  memio.Addr(resting.PC),
		resting:  resting,
	}
	log.WithField("exec", execPath).WithField("pid", sp.Pid()).Debug("program ready")
	return p, nil
}

// Close tears down the child: it is detached (and killed if still
// running), its pipes are closed, and the executable's advisory lock is
// released. After Close, every derived handle is invalid.
func (p *Program) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	_ = p.tr.Detach()
	err := p.sp.Close()
	if unlockErr := p.lock.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}

// ExitCode reports the child's exit code, if it has exited.
func (p *Program) ExitCode() (int32, bool) { return p.tr.ExitCode() }

// Stdout returns the accumulated stdout since the last call and clears it.
func (p *Program) Stdout() []byte { return drainAndClear(&p.mu, &p.stdout) }

// Stderr returns the accumulated stderr since the last call and clears it.
func (p *Program) Stderr() []byte { return drainAndClear(&p.mu, &p.stderr) }

func drainAndClear(mu *sync.Mutex, buf *bytes.Buffer) []byte {
	mu.Lock()
	defer mu.Unlock()
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	buf.Reset()
	return out
}

// SyscallRecords returns the full ordered syscall log observed across
// every AsmFunction invocation made against this Program so far.
func (p *Program) SyscallRecords() []tracer.SyscallRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tracer.SyscallRecord, len(p.syscalls))
	copy(out, p.syscalls)
	return out
}

// drainIO opportunistically collects whatever the child has written to
// its stdio pipes since the last drain, without blocking. It is called
// after each AsmFunction invocation: the harness otherwise has no way to
// observe output the callee produced via a write(2) to the inherited fds.
func (p *Program) drainIO() {
	if out, err := p.sp.ReadStdout(time.Millisecond); err == nil && len(out) > 0 {
		p.mu.Lock()
		p.stdout.Write(out)
		p.mu.Unlock()
	}
	if out, err := p.sp.ReadStderr(time.Millisecond); err == nil && len(out) > 0 {
		p.mu.Lock()
		p.stderr.Write(out)
		p.mu.Unlock()
	}
}

// AllocMem returns a freshly allocated n-byte region in the child,
// recorded in the AllocList, backed by an mmap syscall injected into the
// child via the tracer. The region persists until Program is closed.
//
// AllocMem is rejected while an AsmFunction call is already in flight on
// this Program from another goroutine; argument marshaling inside Call
// itself uses the unexported allocMem, which skips this check since it
// runs under the same call's own inCall reservation.
func (p *Program) AllocMem(n uint64) (memio.Addr, error) {
	p.mu.Lock()
	if p.inCall {
		p.mu.Unlock()
		return 0, asmerr.New(asmerr.BadArgument, "alloc_mem: concurrent AsmFunction call in progress")
	}
	p.mu.Unlock()
	return p.allocMem(n)
}

func (p *Program) allocMem(n uint64) (memio.Addr, error) {
	size := roundUpPage(n)
	args := [6]uint64{
		0,
		size,
		uint64(unix.PROT_READ | unix.PROT_WRITE),
		uint64(unix.MAP_PRIVATE | unix.MAP_ANONYMOUS),
		uint64(int64(-1)),
		0,
	}

	// InjectSyscall only swaps in the syscall number/arguments and
	// single-steps whatever instruction the child's PC already points at;
	// it does not itself plant a syscall instruction anywhere. The
	// re-entry point holds ordinary entry-point code, not a bare
	// `syscall`/`svc #0`, so one must be planted there (save/restore,
	// exactly like doCall's breakpoint plant) and PC parked on it before
	// injecting.
	syscallInstr := p.abi.SyscallInstr()
	originalBytes, err := p.mio.ReadBlock(p.reentry, len(syscallInstr))
	if err != nil {
		return 0, asmerr.Wrap(asmerr.SyscallFailure, "alloc_mem: save re-entry bytes", err)
	}
	if err := p.mio.WriteBlock(p.reentry, syscallInstr); err != nil {
		return 0, asmerr.Wrap(asmerr.SyscallFailure, "alloc_mem: plant syscall instruction", err)
	}
	restoreInstr := func() {
		_ = p.mio.WriteBlock(p.reentry, originalBytes)
	}

	parked := p.resting
	parked.PC = uint64(p.reentry)
	if err := p.tr.WriteRegisters(parked); err != nil {
		restoreInstr()
		return 0, asmerr.Wrap(asmerr.SyscallFailure, "alloc_mem: park PC at re-entry", err)
	}

	var ret int64
	// The injected mmap can observe a transient -EINTR if a signal lands
	// on the child between the syscall-entry and syscall-exit stops; a
	// short bounded retry re-issues the same injection rather than
	// surfacing a spurious allocation failure to the test body. PC stays
	// parked at the planted instruction across retries: InjectSyscall
	// restores the parked snapshot it captured on entry, not whatever
	// ran before this call.
	allocBackoff := backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
	injectErr := backoff.Retry(func() error {
		r, err := p.tr.InjectSyscall(uint64(unix.SYS_MMAP), args)
		if err != nil {
			return backoff.Permanent(err)
		}
		if r == -int64(unix.EINTR) {
			return asmerr.New(asmerr.SyscallFailure, "alloc_mem: mmap interrupted")
		}
		ret = r
		return nil
	}, allocBackoff)
	restoreInstr()
	if injectErr != nil {
		return 0, asmerr.Wrap(asmerr.SyscallFailure, "alloc_mem: inject mmap", injectErr)
	}
	if ret < 0 {
		return 0, asmerr.New(asmerr.SyscallFailure, fmt.Sprintf("alloc_mem: mmap failed, errno %d", -ret))
	}

	addr := memio.Addr(uint64(ret))
	p.allocs.add(AllocRegion{Addr: addr, Size: size})
	return addr, nil
}

func roundUpPage(n uint64) uint64 {
	return (n + pageSize - 1) &^ (pageSize - 1)
}

// Symbol resolves name against the executable's symbol table and returns
// a non-owning AsmSymbol handle.
func (p *Program) Symbol(name string) (AsmSymbol, error) {
	addr, err := p.symbols.Resolve(name)
	if err != nil {
		return AsmSymbol{}, err
	}
	return AsmSymbol{prog: p, addr: memio.Addr(addr), name: name}, nil
}

// Function resolves name and returns a non-owning AsmFunction handle ready
// for Call.
func (p *Program) Function(name string) (AsmFunction, error) {
	addr, err := p.symbols.Resolve(name)
	if err != nil {
		return AsmFunction{}, err
	}
	return AsmFunction{prog: p, addr: memio.Addr(addr), name: name}, nil
}

// AllocList exposes the scratch-region bookkeeping for diagnostics.
func (p *Program) AllocList() *AllocList { return &p.allocs }
