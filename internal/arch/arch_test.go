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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForReturnsMatchingArch(t *testing.T) {
	for _, want := range []Arch{AMD64, ARM64} {
		abi, err := For(want)
		require.NoError(t, err)
		require.Equal(t, want, abi.Arch())
	}
}

func TestForRejectsUnknownArch(t *testing.T) {
	_, err := For(Arch(99))
	require.Error(t, err)
}

func TestMaxCallArgsMatchesSupportedArity(t *testing.T) {
	amd64, _ := For(AMD64)
	require.Equal(t, 6, amd64.MaxCallArgs())

	arm64, _ := For(ARM64)
	require.Equal(t, 8, arm64.MaxCallArgs())
}

func TestBreakpointInstrAndTrapAdjustment(t *testing.T) {
	amd64, _ := For(AMD64)
	require.Equal(t, []byte{0xCC}, amd64.BreakpointInstr())
	require.Equal(t, uint64(0x40FF), amd64.AdjustPCAfterTrap(0x4100))

	arm64, _ := For(ARM64)
	require.Len(t, arm64.BreakpointInstr(), 4)
	require.Equal(t, uint64(0x4100), arm64.AdjustPCAfterTrap(0x4100))
}

func TestReturnViaLinkRegisterDiffersByArch(t *testing.T) {
	amd64, _ := For(AMD64)
	arm64, _ := For(ARM64)
	require.False(t, amd64.ReturnViaLinkRegister())
	require.True(t, arm64.ReturnViaLinkRegister())
}

func TestSetCallArgsOnlyTouchesRequestedSlots(t *testing.T) {
	abi, _ := For(AMD64)
	var r Regs
	abi.SetCallArgs(&r, []uint64{10, 20, 30})
	require.Equal(t, uint64(10), r.ArgRegs[0])
	require.Equal(t, uint64(20), r.ArgRegs[1])
	require.Equal(t, uint64(30), r.ArgRegs[2])
	require.Equal(t, uint64(0), r.ArgRegs[3])
}
