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

//go:build linux && amd64

package tracer

import (
	"syscall"

	"github.com/asmtrace/asmtrace/internal/arch"
)

func ptraceGetRegs(pid int) (syscall.PtraceRegs, error) {
	var regs syscall.PtraceRegs
	err := syscall.PtraceGetRegs(pid, &regs)
	return regs, err
}

func ptraceSetRegs(pid int, regs syscall.PtraceRegs) error {
	return syscall.PtraceSetRegs(pid, &regs)
}

// nativeToRegs translates the System V AMD64 register file into the
// architecture-neutral snapshot. The C calling convention places the
// first six integer arguments in RDI, RSI, RDX, RCX, R8, R9; the syscall
// convention instead uses R10 in place of RCX (RCX is clobbered by the
// syscall instruction itself).
func nativeToRegs(n syscall.PtraceRegs) arch.Regs {
	return arch.Regs{
		PC: n.Rip,
		SP: n.Rsp,
		ArgRegs: [8]uint64{
			n.Rdi, n.Rsi, n.Rdx, n.Rcx, n.R8, n.R9,
		},
		Ret:         n.Rax,
		SyscallNo:   n.Orig_rax,
		SyscallArgs: [6]uint64{n.Rdi, n.Rsi, n.Rdx, n.R10, n.R8, n.R9},
		SyscallRet:  n.Rax,
	}
}

func regsToNative(r arch.Regs) syscall.PtraceRegs {
	var n syscall.PtraceRegs
	n.Rip = r.PC
	n.Rsp = r.SP
	n.Rdi = r.ArgRegs[0]
	n.Rsi = r.ArgRegs[1]
	n.Rdx = r.ArgRegs[2]
	n.Rcx = r.ArgRegs[3]
	n.R8 = r.ArgRegs[4]
	n.R9 = r.ArgRegs[5]
	n.Rax = r.Ret
	// The re-entry return address is pushed onto the stack by the caller
	// (pkg/program) after SetCallTarget and before the registers are
	// written back; nothing further to encode here.
	return n
}

// applySyscallRegs returns a copy of saved with the syscall number and
// argument registers set for an injected syscall, preserving every other
// field (PC, SP, flags, segment registers) untouched. The fourth argument
// goes in R10 rather than RCX, matching the kernel's syscall entry
// convention rather than the C calling convention.
func applySyscallRegs(saved syscall.PtraceRegs, nr uint64, args [6]uint64) syscall.PtraceRegs {
	n := saved
	n.Orig_rax = nr
	n.Rax = nr
	n.Rdi = args[0]
	n.Rsi = args[1]
	n.Rdx = args[2]
	n.R10 = args[3]
	n.R8 = args[4]
	n.R9 = args[5]
	return n
}
