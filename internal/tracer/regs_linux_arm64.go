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

//go:build linux && arm64

package tracer

import (
	"syscall"

	"github.com/asmtrace/asmtrace/internal/arch"
)

// ptraceGetRegs/ptraceSetRegs use the generic syscall.PtraceGetRegs and
// syscall.PtraceSetRegs entry points rather than an arch-suffixed variant:
// the stdlib dispatches PTRACE_GETREGS/PTRACE_SETREGS identically across
// amd64 and arm64, so there is no separate arm64 symbol to call.
func ptraceGetRegs(pid int) (syscall.PtraceRegs, error) {
	var regs syscall.PtraceRegs
	err := syscall.PtraceGetRegs(pid, &regs)
	return regs, err
}

func ptraceSetRegs(pid int, regs syscall.PtraceRegs) error {
	return syscall.PtraceSetRegs(pid, &regs)
}

// nativeToRegs translates the AAPCS64 register file. The C calling
// convention uses X0-X7 for arguments and the syscall convention uses
// X0-X5 (the syscall number additionally lives in X8), so unlike amd64 no
// argument-register swap is needed between the two views.
func nativeToRegs(n syscall.PtraceRegs) arch.Regs {
	var args [8]uint64
	copy(args[:], n.Regs[:8])
	return arch.Regs{
		PC:          n.Pc,
		SP:          n.Sp,
		LR:          n.Regs[30],
		ArgRegs:     args,
		Ret:         n.Regs[0],
		SyscallNo:   n.Regs[8],
		SyscallArgs: [6]uint64{n.Regs[0], n.Regs[1], n.Regs[2], n.Regs[3], n.Regs[4], n.Regs[5]},
		SyscallRet:  n.Regs[0],
	}
}

func regsToNative(r arch.Regs) syscall.PtraceRegs {
	var n syscall.PtraceRegs
	n.Pc = r.PC
	n.Sp = r.SP
	n.Regs[30] = r.LR
	// Ret is an output-only field (X0 as read back after a call/syscall
	// returns); X0 as an input is the first argument register, already
	// carried by ArgRegs, so Ret must never be written back here.
	copy(n.Regs[:8], r.ArgRegs[:])
	return n
}

// applySyscallRegs returns a copy of saved with the syscall number in X8
// and the syscall arguments in X0-X5, preserving every other field (PC,
// SP, pstate) untouched.
func applySyscallRegs(saved syscall.PtraceRegs, nr uint64, args [6]uint64) syscall.PtraceRegs {
	n := saved
	n.Regs[8] = nr
	copy(n.Regs[0:6], args[:])
	return n
}
