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

package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequireRecordsOutcomeAndRenderedOperands(t *testing.T) {
	ctx := NewTestContext(nil, Never)

	require.True(t, ctx.Require(1+1 == 2, "==", 1+1, 2))
	require.False(t, ctx.Require(false, "==", "a", "b"))

	recs := ctx.Expectations()
	require.Len(t, recs, 2)
	require.True(t, recs[0].Outcome)
	require.Equal(t, "2", recs[0].RenderedLHS)
	require.False(t, recs[1].Outcome)
	require.Equal(t, `"a"`, recs[1].RenderedLHS)
	require.Equal(t, `"b"`, recs[1].RenderedRHS)
}

func TestNeverPolicyNeverSetsFatalStop(t *testing.T) {
	ctx := NewTestContext(nil, Never)
	ctx.Require(false, "==", 1, 2)
	require.False(t, ctx.FatalStopRequested())
	require.False(t, ctx.RunAborted())
}

func TestEachTestErrorStopsOnlyThisTest(t *testing.T) {
	ctx := NewTestContext(nil, EachTestError)
	ctx.Require(false, "==", 1, 2)
	require.True(t, ctx.FatalStopRequested())
	require.False(t, ctx.RunAborted())
}

func TestFirstErrorAbortsTheWholeRun(t *testing.T) {
	ctx := NewTestContext(nil, FirstError)
	ctx.Require(false, "==", 1, 2)
	require.True(t, ctx.FatalStopRequested())
	require.True(t, ctx.RunAborted())
}

func TestExpectationsAreAppendOnlyEvenAfterFatalStop(t *testing.T) {
	ctx := NewTestContext(nil, FirstError)
	ctx.Require(false, "==", 1, 2)
	ctx.Require(true, "==", 3, 3)

	require.Len(t, ctx.Expectations(), 2, "both expectations before and after a fatal stop must be recorded")
}

func TestRequireErrRendersNilOnSuccess(t *testing.T) {
	ctx := NewTestContext(nil, Never)
	require.True(t, ctx.RequireErr(nil, "resolve symbol"))

	recs := ctx.Expectations()
	require.Equal(t, "nil", recs[0].RenderedRHS)
}

func TestRequireErrFailsOnNonNilError(t *testing.T) {
	ctx := NewTestContext(nil, Never)
	require.False(t, ctx.RequireErr(errors.New("boom"), "resolve symbol"))
}
