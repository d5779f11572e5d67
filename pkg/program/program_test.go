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

package program

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/asmtrace/asmtrace/internal/arch"
	"github.com/asmtrace/asmtrace/internal/memio"
)

const trueBinary = "/bin/true"

// hostArch maps the test process's own architecture onto the package's
// Arch enum, skipping the test on any host this module does not target.
func hostArch(t *testing.T) arch.Arch {
	switch runtime.GOARCH {
	case "amd64":
		return arch.AMD64
	case "arm64":
		return arch.ARM64
	default:
		t.Skipf("unsupported host architecture %s", runtime.GOARCH)
		return 0
	}
}

func TestNewAttachesStoppedAtEntry(t *testing.T) {
	p, err := New(trueBinary, hostArch(t), 2*time.Second)
	require.NoError(t, err)
	defer p.Close()

	require.NotZero(t, p.reentry)
	require.Equal(t, memio.Addr(p.resting.PC), p.reentry)
}

func TestCloseIsIdempotent(t *testing.T) {
	p, err := New(trueBinary, hostArch(t), 2*time.Second)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}

func TestRunToCompletionReportsExitCode(t *testing.T) {
	p, err := New(trueBinary, hostArch(t), 2*time.Second)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.tr.Run(2 * time.Second)
	require.NoError(t, err)

	code, ok := p.ExitCode()
	require.True(t, ok)
	require.Equal(t, int32(0), code)
}

func TestAllocMemReturnsPageAlignedRegion(t *testing.T) {
	p, err := New(trueBinary, hostArch(t), 2*time.Second)
	require.NoError(t, err)
	defer p.Close()

	addr, err := p.AllocMem(10)
	require.NoError(t, err)
	require.NotZero(t, addr)

	regions := p.AllocList().Regions()
	require.Len(t, regions, 1)
	require.Equal(t, uint64(pageSize), regions[0].Size)
}

func TestAllocMemRejectsConcurrentCall(t *testing.T) {
	p, err := New(trueBinary, hostArch(t), 2*time.Second)
	require.NoError(t, err)
	defer p.Close()

	p.mu.Lock()
	p.inCall = true
	p.mu.Unlock()

	_, err = p.AllocMem(10)
	require.Error(t, err)
}

func TestRoundUpPage(t *testing.T) {
	require.Equal(t, uint64(0), roundUpPage(0))
	require.Equal(t, uint64(pageSize), roundUpPage(1))
	require.Equal(t, uint64(pageSize), roundUpPage(pageSize))
	require.Equal(t, uint64(2*pageSize), roundUpPage(pageSize+1))
}
