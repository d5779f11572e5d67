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

package program

import (
	"time"

	"github.com/asmtrace/asmtrace/internal/asmerr"
	"github.com/asmtrace/asmtrace/internal/memio"
)

// AsmFunction is a non-owning handle on a resolved, callable symbol.
// Call marshals arguments, plants a breakpoint at the Program's re-entry
// point, resumes the child to invoke the callee, and unmarshals the
// return value, all under the Program's single-in-flight-call
// discipline.
type AsmFunction struct {
	prog *Program
	addr memio.Addr
	name string
}

// Address returns the function's resolved entry address.
func (f AsmFunction) Address() memio.Addr { return f.addr }

// Name returns the symbol name this handle was resolved from.
func (f AsmFunction) Name() string { return f.name }

// argKind distinguishes a scalar argument, passed directly in a register,
// from a buffer/string argument that must first be written to scratch
// child memory, with the resulting address passed in the register.
type argKind int

const (
	argScalar argKind = iota
	argString
	argBytes
)

// Arg is one marshaled call argument. Build one with Uint, Int, Str, or
// Bytes rather than constructing it directly.
type Arg struct {
	kind  argKind
	scal  uint64
	str   string
	bytes []byte
}

// Uint builds a scalar argument from a raw register-width value.
func Uint(v uint64) Arg { return Arg{kind: argScalar, scal: v} }

// Int builds a scalar argument from a signed value, reinterpreted as the
// register-width bit pattern the callee will see.
func Int(v int64) Arg { return Arg{kind: argScalar, scal: uint64(v)} }

// Ptr builds a scalar argument carrying a previously allocated address.
func Ptr(a memio.Addr) Arg { return Arg{kind: argScalar, scal: uint64(a)} }

// Str builds an argument that is written to scratch child memory as a
// NUL-terminated string; the callee receives its address.
func Str(v string) Arg { return Arg{kind: argString, str: v} }

// Bytes builds an argument that is written to scratch child memory
// verbatim; the callee receives its address.
func Bytes(v []byte) Arg { return Arg{kind: argBytes, bytes: v} }

// marshal resolves a scalar argument directly, or allocates scratch
// memory and writes a string/buffer argument into it, returning the
// register value the callee should receive.
func marshal(p *Program, a Arg) (uint64, error) {
	switch a.kind {
	case argScalar:
		return a.scal, nil
	case argString:
		addr, err := p.allocMem(uint64(len(a.str) + 1))
		if err != nil {
			return 0, err
		}
		sym := AsmSymbol{prog: p, addr: addr}
		if err := sym.WriteCString(a.str); err != nil {
			return 0, err
		}
		return uint64(addr), nil
	case argBytes:
		addr, err := p.allocMem(uint64(len(a.bytes)))
		if err != nil {
			return 0, err
		}
		if err := p.mio.WriteBlock(addr, a.bytes); err != nil {
			return 0, err
		}
		return uint64(addr), nil
	default:
		return 0, asmerr.New(asmerr.BadArgument, "marshal: unknown argument kind")
	}
}

// Call invokes fn with args, blocks until the callee returns to the
// Program's re-entry point (or the timeout elapses, or the child exits
// or is killed), and decodes the ABI return-value register as R.
//
// R is expected to be one of the fixed-width integer types memio.FixedInt
// supports; the raw 64-bit return register is truncated/reinterpreted to
// R's width the same way FixedInt does on a read.
func Call[R ~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64](fn AsmFunction, timeout time.Duration, args ...Arg) (R, error) {
	var zero R
	p := fn.prog

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return zero, asmerr.New(asmerr.SyscallFailure, "call: program closed")
	}
	if p.stopCheck != nil && p.stopCheck.FatalStopRequested() {
		p.mu.Unlock()
		return zero, asmerr.New(asmerr.BadArgument, "call: fatal stop requested, skipping call")
	}
	if p.inCall {
		p.mu.Unlock()
		return zero, asmerr.New(asmerr.BadArgument, "call: concurrent AsmFunction call in progress")
	}
	if len(args) > p.abi.MaxCallArgs() {
		p.mu.Unlock()
		return zero, asmerr.New(asmerr.BadArgument, "call: too many arguments for this architecture")
	}
	p.inCall = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inCall = false
		p.mu.Unlock()
	}()

	result, err := doCall(p, fn.addr, timeout, args)
	if err != nil {
		return zero, err
	}
	return R(result), nil
}

// doCall performs the actual breakpoint-plant/resume/restore protocol and
// returns the raw ABI return-value register.
func doCall(p *Program, callee memio.Addr, timeout time.Duration, args []Arg) (uint64, error) {
	argVals := make([]uint64, len(args))
	for i, a := range args {
		v, err := marshal(p, a)
		if err != nil {
			return 0, err
		}
		argVals[i] = v
	}

	regs := p.resting
	p.abi.SetCallArgs(&regs, argVals)

	returnTo := uint64(p.reentry)
	p.abi.SetCallTarget(&regs, uint64(callee), returnTo)

	if !p.abi.ReturnViaLinkRegister() {
		// The callee's `ret` pops its return address off the stack: push
		// one below the resting stack pointer before handing control over.
		newSP := regs.SP - 8
		if err := p.mio.WriteBlock(memio.Addr(newSP), littleEndian8(returnTo)); err != nil {
			return 0, asmerr.Wrap(asmerr.SyscallFailure, "call: push return address", err)
		}
		regs.SP = newSP
	}

	originalBytes, err := p.mio.ReadBlock(p.reentry, len(p.abi.BreakpointInstr()))
	if err != nil {
		return 0, asmerr.Wrap(asmerr.SyscallFailure, "call: save re-entry bytes", err)
	}
	if err := p.mio.WriteBlock(p.reentry, p.abi.BreakpointInstr()); err != nil {
		return 0, asmerr.Wrap(asmerr.SyscallFailure, "call: plant breakpoint", err)
	}
	restoreBreakpoint := func() {
		_ = p.mio.WriteBlock(p.reentry, originalBytes)
	}

	if err := p.tr.WriteRegisters(regs); err != nil {
		restoreBreakpoint()
		return 0, asmerr.Wrap(asmerr.SyscallFailure, "call: write call registers", err)
	}

	runResult, err := p.tr.RunToAddress(returnTo, timeout)
	restoreBreakpoint()
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	p.syscalls = append(p.syscalls, runResult.Syscalls...)
	p.mu.Unlock()
	p.drainIO()

	if runResult.ExitCode != nil {
		return 0, asmerr.New(asmerr.UnexpectedReturn, "call: callee exited the process instead of returning")
	}
	if runResult.Killed {
		return 0, asmerr.New(asmerr.UnexpectedReturn, "call: callee was killed instead of returning")
	}
	if !runResult.ReachedTarget {
		return 0, asmerr.New(asmerr.TimedOut, "call: timed out waiting for callee to return")
	}

	finalRegs, err := p.tr.ReadRegisters()
	if err != nil {
		return 0, asmerr.Wrap(asmerr.SyscallFailure, "call: read return registers", err)
	}
	// Correct PC back to the exact re-entry address: AdjustPCAfterTrap
	// already accounted for any trap-instruction PC skew when matching
	// the target, but the raw register snapshot itself may still carry
	// that skew (amd64). finalRegs is only read for the return value; the
	// next call starts from p.resting, restored below.
	finalRegs.PC = p.abi.AdjustPCAfterTrap(finalRegs.PC)
	ret := p.abi.CallReturn(&finalRegs)

	// Reset to the pristine resting snapshot rather than finalRegs: the
	// callee may have left argument/scratch registers in an arbitrary
	// state that would corrupt the next call's SetCallArgs base.
	if err := p.tr.WriteRegisters(p.resting); err != nil {
		return 0, asmerr.Wrap(asmerr.SyscallFailure, "call: restore resting registers", err)
	}

	return ret, nil
}

func littleEndian8(v uint64) []byte {
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte(v >> (8 * uint(i)))
	}
	return b
}
