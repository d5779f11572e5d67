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

package memio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeWordIO backs MemoryIO with a plain host byte slice, standing in for
// a real ptrace-backed tracer in tests that only exercise the
// serialization and alignment logic.
type fakeWordIO struct {
	mem []byte
}

func newFakeWordIO(size int) *fakeWordIO {
	return &fakeWordIO{mem: make([]byte, size)}
}

func (f *fakeWordIO) PeekWord(addr Addr) (uint64, error) {
	return getLE(f.mem[addr : addr+wordSize]), nil
}

func (f *fakeWordIO) PokeWord(addr Addr, word uint64) error {
	var buf [wordSize]byte
	putLE(buf[:], word)
	copy(f.mem[addr:addr+wordSize], buf[:])
	return nil
}

func TestWriteBlockPreservesFlankingBytes(t *testing.T) {
	io := newFakeWordIO(32)
	for i := range io.mem {
		io.mem[i] = 0xAA
	}
	m := New(io)

	require.NoError(t, m.WriteBlock(3, ByteBlock{1, 2, 3, 4, 5}))

	got, err := m.ReadBlock(0, 32)
	require.NoError(t, err)
	require.Equal(t, byte(0xAA), got[0])
	require.Equal(t, byte(0xAA), got[1])
	require.Equal(t, byte(0xAA), got[2])
	require.Equal(t, []byte{1, 2, 3, 4, 5}, got[3:8])
	for i := 8; i < 32; i++ {
		require.Equalf(t, byte(0xAA), got[i], "flanking byte %d was modified", i)
	}
}

func TestUnalignedWriteCrossingWordBoundary(t *testing.T) {
	// A 17-byte scratch buffer; write one byte at offset 0 and one at
	// offset 15 (spec.md Scenario F), leaving the other 15 bytes intact.
	io := newFakeWordIO(24)
	for i := range io.mem {
		io.mem[i] = 0x7F
	}
	m := New(io)

	require.NoError(t, m.WriteBlock(0, ByteBlock{0x01}))
	require.NoError(t, m.WriteBlock(15, ByteBlock{0x02}))

	got, err := m.ReadBlock(0, 17)
	require.NoError(t, err)
	require.Equal(t, byte(0x01), got[0])
	require.Equal(t, byte(0x02), got[15])
	for i := 1; i < 15; i++ {
		require.Equalf(t, byte(0x7F), got[i], "byte %d should be unchanged", i)
	}
	require.Equal(t, byte(0x7F), got[16])
}

func TestFixedIntRoundTrip(t *testing.T) {
	io := newFakeWordIO(64)
	m := New(io)
	s := FixedInt[uint64]{}

	for _, addr := range []Addr{0, 1, 3, 7, 8, 15} {
		block, err := s.WriteBytes(0x0123456789ABCDEF)
		require.NoError(t, err)
		require.NoError(t, m.WriteBlock(addr, block))

		got, err := s.Read(addr, m)
		require.NoError(t, err)
		require.Equal(t, uint64(0x0123456789ABCDEF), got)
	}
}

func TestCStringReadStopsAtNul(t *testing.T) {
	io := newFakeWordIO(64)
	m := New(io)
	require.NoError(t, m.WriteBlock(0, ByteBlock("Hello, from assembly!\n\x00trailing garbage")))

	s := CString{}
	got, err := s.Read(0, m)
	require.NoError(t, err)
	require.Equal(t, "Hello, from assembly!\n", got)
}

func TestCStringWriteAddsSingleNul(t *testing.T) {
	s := CString{}
	block, err := s.WriteBytes("abc")
	require.NoError(t, err)
	require.Equal(t, ByteBlock("abc\x00"), block)
}

func TestBufferStrTruncatesAtFirstNul(t *testing.T) {
	raw := []byte("abc\x00def")
	require.Equal(t, "abc", Str(raw))
	require.Equal(t, "abc", Str(raw[:3]))
}

func TestRawBufferRoundTrip(t *testing.T) {
	io := newFakeWordIO(64)
	m := New(io)
	s := RawBuffer{N: 16}

	payload := []byte("0123456789abcdef")
	block, err := s.WriteBytes(payload)
	require.NoError(t, err)
	require.NoError(t, m.WriteBlock(0, block))

	got, err := s.Read(0, m)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestRawBufferWrongLengthIsBadArgument(t *testing.T) {
	s := RawBuffer{N: 4}
	_, err := s.WriteBytes([]byte("too long"))
	require.Error(t, err)
}
