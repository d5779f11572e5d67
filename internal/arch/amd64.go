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

package arch

// amd64ABI implements the System V AMD64 calling convention: the first six
// integer/pointer arguments go in RDI, RSI, RDX, RCX, R8, R9 in that order;
// the return value comes back in RAX. Note this differs from the amd64
// *syscall* convention, which swaps RCX for R10 because the syscall
// instruction itself clobbers RCX.
type amd64ABI struct{}

func (amd64ABI) Arch() Arch { return AMD64 }

func (amd64ABI) MaxCallArgs() int { return 6 }

func (amd64ABI) SetCallArgs(r *Regs, args []uint64) {
	for i, v := range args {
		r.ArgRegs[i] = v
	}
}

func (amd64ABI) SetCallTarget(r *Regs, callee, returnTo uint64) {
	r.PC = callee
	r.ReturnAddr = returnTo
}

// ReturnViaLinkRegister is false: amd64's `ret` pops its return address
// from the stack, so the caller (pkg/program) must push returnTo below SP
// itself before resuming.
func (amd64ABI) ReturnViaLinkRegister() bool { return false }

// BreakpointInstr is a single-byte INT3.
func (amd64ABI) BreakpointInstr() []byte { return []byte{0xCC} }

// AdjustPCAfterTrap undoes INT3's one-byte advance of RIP.
func (amd64ABI) AdjustPCAfterTrap(pc uint64) uint64 { return pc - 1 }

// SyscallInstr is the two-byte `syscall` instruction.
func (amd64ABI) SyscallInstr() []byte { return []byte{0x0F, 0x05} }

func (amd64ABI) CallReturn(r *Regs) uint64 {
	return r.Ret
}

func (amd64ABI) DecodeSyscallEntry(r *Regs) (uint64, [6]uint64) {
	return r.SyscallNo, r.SyscallArgs
}

func (amd64ABI) DecodeSyscallReturn(r *Regs) uint64 {
	return r.SyscallRet
}
