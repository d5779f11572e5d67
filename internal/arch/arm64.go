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

// arm64ABI implements the AAPCS64 calling convention: the first eight
// integer/pointer arguments go in X0-X7 in that order; the return value
// comes back in X0. The syscall convention uses the same registers for
// arguments (X0-X5) with the syscall number in X8 and the return value in
// X0, so no argument-register swap is needed relative to amd64's quirk.
type arm64ABI struct{}

func (arm64ABI) Arch() Arch { return ARM64 }

func (arm64ABI) MaxCallArgs() int { return 8 }

func (arm64ABI) SetCallArgs(r *Regs, args []uint64) {
	for i, v := range args {
		r.ArgRegs[i] = v
	}
}

func (arm64ABI) SetCallTarget(r *Regs, callee, returnTo uint64) {
	r.PC = callee
	r.ReturnAddr = returnTo
	r.LR = returnTo
}

// ReturnViaLinkRegister is true: `ret` on arm64 branches to X30, which
// SetCallTarget already populated, so no stack write is required.
func (arm64ABI) ReturnViaLinkRegister() bool { return true }

// BreakpointInstr is `brk #0`, little-endian encoded.
func (arm64ABI) BreakpointInstr() []byte { return []byte{0x00, 0x00, 0x20, 0xd4} }

// AdjustPCAfterTrap is a no-op: arm64 leaves PC at the BRK instruction
// itself rather than advancing past it.
func (arm64ABI) AdjustPCAfterTrap(pc uint64) uint64 { return pc }

// SyscallInstr is `svc #0`, little-endian encoded.
func (arm64ABI) SyscallInstr() []byte { return []byte{0x01, 0x00, 0x00, 0xd4} }

func (arm64ABI) CallReturn(r *Regs) uint64 {
	return r.Ret
}

func (arm64ABI) DecodeSyscallEntry(r *Regs) (uint64, [6]uint64) {
	return r.SyscallNo, r.SyscallArgs
}

func (arm64ABI) DecodeSyscallReturn(r *Regs) uint64 {
	return r.SyscallRet
}
