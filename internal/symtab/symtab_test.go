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

package symtab

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/asmtrace/asmtrace/internal/asmerr"
)

func TestLoadResolvesKnownSymbol(t *testing.T) {
	st, err := Load("/bin/true")
	require.NoError(t, err)

	addr, err := st.Resolve("main")
	if err != nil {
		require.Equal(t, asmerr.UnresolvedSymbol, asmerr.KindOf(err))
		t.Skip("/bin/true on this system carries no exported `main` symbol")
	}
	require.NotZero(t, addr)
}

func TestResolveUnknownSymbolIsUnresolvedSymbol(t *testing.T) {
	st, err := Load("/bin/true")
	require.NoError(t, err)

	_, err = st.Resolve("__definitely_not_a_real_symbol__")
	require.Error(t, err)
	require.Equal(t, asmerr.UnresolvedSymbol, asmerr.KindOf(err))
}

func TestResolveCachesNegativeLookup(t *testing.T) {
	st, err := Load("/bin/true")
	require.NoError(t, err)

	_, err1 := st.Resolve("__still_not_real__")
	_, err2 := st.Resolve("__still_not_real__")
	require.Error(t, err1)
	require.Error(t, err2)
	_, cached := st.negative["__still_not_real__"]
	require.True(t, cached)
}
