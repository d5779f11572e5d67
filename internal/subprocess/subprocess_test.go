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

package subprocess

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// trueBinary is a tiny target: /bin/true exits
// immediately, which is enough to exercise fork/exec/ptrace-stop/reap
// without depending on any particular distro binary beyond coreutils.
const trueBinary = "/bin/true"

func TestNewStopsAtEntryUnderTraceme(t *testing.T) {
	sp, err := New(trueBinary, nil, nil)
	require.NoError(t, err)
	defer sp.Close()

	require.Greater(t, sp.Pid(), 0)

	var ws syscall.WaitStatus
	_, err = syscall.Wait4(sp.Pid(), &ws, 0, nil)
	require.NoError(t, err)
	require.True(t, ws.Stopped())

	require.NoError(t, syscall.PtraceDetach(sp.Pid()))
	_, _ = sp.Wait()
}

func TestCloseIsIdempotent(t *testing.T) {
	sp, err := New(trueBinary, nil, nil)
	require.NoError(t, err)

	var ws syscall.WaitStatus
	_, err = syscall.Wait4(sp.Pid(), &ws, 0, nil)
	require.NoError(t, err)
	require.NoError(t, syscall.PtraceDetach(sp.Pid()))

	require.NoError(t, sp.Close())
	require.NoError(t, sp.Close())
}

func TestReadStdoutTimesOutWithNoOutput(t *testing.T) {
	sp, err := New("/bin/cat", []string{"-"}, nil)
	require.NoError(t, err)
	defer sp.Close()

	var ws syscall.WaitStatus
	_, err = syscall.Wait4(sp.Pid(), &ws, 0, nil)
	require.NoError(t, err)
	require.NoError(t, syscall.PtraceSetOptions(sp.Pid(), syscall.PTRACE_O_TRACESYSGOOD))
	require.NoError(t, syscall.PtraceDetach(sp.Pid()))

	_, err = sp.ReadStdout(50 * time.Millisecond)
	require.Error(t, err)
}
