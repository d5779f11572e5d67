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
	"bytes"
	"encoding/binary"

	"github.com/asmtrace/asmtrace/internal/asmerr"
)

// DefaultStringCap bounds how many bytes a null-terminated string read will
// scan before giving up, per spec.
const DefaultStringCap = 4096

// Reader crosses the boundary from child memory into a host value.
type Reader[T any] interface {
	Read(addr Addr, m *MemoryIO) (T, error)
}

// Writer crosses the boundary from a host value into a ByteBlock suitable
// for writing into child memory.
type Writer[T any] interface {
	WriteBytes(value T) (ByteBlock, error)
}

// Serde bundles both directions of the typed boundary capability.
type Serde[T any] interface {
	Reader[T]
	Writer[T]
}

// --- Category 1: trivially layout-compatible fixed-size values ---

// FixedInt is a Serde for any fixed-width integer type, serialized as raw
// little-endian bytes of its declared width.
type FixedInt[T ~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64] struct{}

func (FixedInt[T]) WriteBytes(value T) (ByteBlock, error) {
	width := fixedWidth[T]()
	buf := make([]byte, width)
	putFixed(buf, uint64(value))
	return buf, nil
}

func (FixedInt[T]) Read(addr Addr, m *MemoryIO) (T, error) {
	var zero T
	width := fixedWidth[T]()
	block, err := m.ReadBlock(addr, width)
	if err != nil {
		return zero, err
	}
	return T(getFixed(block)), nil
}

func fixedWidth[T ~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64]() int {
	var v T
	switch any(v).(type) {
	case int8, uint8:
		return 1
	case int16, uint16:
		return 2
	case int32, uint32:
		return 4
	default:
		return 8
	}
}

func putFixed(dst []byte, v uint64) {
	for i := range dst {
		dst[i] = byte(v >> (8 * uint(i)))
	}
}

func getFixed(src []byte) uint64 {
	var v uint64
	for i, b := range src {
		v |= uint64(b) << (8 * uint(i))
	}
	return v
}

// FixedArray is a Serde for a fixed-size byte array (N bytes, no framing).
type FixedArray struct {
	N int
}

func (f FixedArray) WriteBytes(value []byte) (ByteBlock, error) {
	if len(value) != f.N {
		return nil, asmerr.New(asmerr.BadArgument, "FixedArray.WriteBytes: length mismatch")
	}
	out := make([]byte, f.N)
	copy(out, value)
	return out, nil
}

func (f FixedArray) Read(addr Addr, m *MemoryIO) ([]byte, error) {
	return m.ReadBlock(addr, f.N)
}

// --- Category 2: null-terminated string / string-view ---

// CString is a Serde for a NUL-terminated string. Read scans in
// 64-byte chunks until a zero byte is seen, bounded by Cap (or
// DefaultStringCap if zero). Write emits the raw bytes followed by one
// NUL.
type CString struct {
	Cap int
}

func (c CString) cap() int {
	if c.Cap > 0 {
		return c.Cap
	}
	return DefaultStringCap
}

func (c CString) WriteBytes(value string) (ByteBlock, error) {
	out := make([]byte, len(value)+1)
	copy(out, value)
	out[len(value)] = 0
	return out, nil
}

func (c CString) Read(addr Addr, m *MemoryIO) (string, error) {
	const chunk = 64
	cap := c.cap()
	var buf bytes.Buffer
	cur := addr
	for buf.Len() < cap {
		want := chunk
		if remaining := cap - buf.Len(); want > remaining {
			want = remaining
		}
		block, err := m.ReadBlock(cur, want)
		if err != nil {
			return "", err
		}
		if idx := bytes.IndexByte(block, 0); idx >= 0 {
			buf.Write(block[:idx])
			return buf.String(), nil
		}
		buf.Write(block)
		cur += Addr(want)
	}
	return "", asmerr.New(asmerr.BadArgument, "CString.Read: no NUL within cap")
}

// --- Category 3: bounded buffer ---

// Buffer is a Serde for a fixed N-byte region that may or may not be
// NUL-terminated; Str truncates at the first NUL but Read/Write always
// move exactly N bytes.
type Buffer struct {
	N int
}

func (b Buffer) WriteBytes(value []byte) (ByteBlock, error) {
	if len(value) > b.N {
		return nil, asmerr.New(asmerr.BadArgument, "Buffer.WriteBytes: value exceeds N")
	}
	out := make([]byte, b.N)
	copy(out, value)
	return out, nil
}

func (b Buffer) Read(addr Addr, m *MemoryIO) ([]byte, error) {
	return m.ReadBlock(addr, b.N)
}

// Str truncates raw at the first NUL, or returns it whole if none is found.
func Str(raw []byte) string {
	if idx := bytes.IndexByte(raw, 0); idx >= 0 {
		return string(raw[:idx])
	}
	return string(raw)
}

// --- Category 4: non-terminated, length-prefixed carrier ---

// RawBuffer is a Serde for assembly-side buffers that do not use C-style
// NUL termination: it always transfers exactly N bytes, with no framing
// added on write and no truncation on read.
type RawBuffer struct {
	N int
}

func (r RawBuffer) WriteBytes(value []byte) (ByteBlock, error) {
	if len(value) != r.N {
		return nil, asmerr.New(asmerr.BadArgument, "RawBuffer.WriteBytes: length mismatch")
	}
	out := make([]byte, r.N)
	copy(out, value)
	return out, nil
}

func (r RawBuffer) Read(addr Addr, m *MemoryIO) ([]byte, error) {
	return m.ReadBlock(addr, r.N)
}

// LittleEndianUint64 is a small helper used by function-return marshaling
// to decode a raw register-width ByteBlock without re-deriving FixedInt's
// generic machinery.
func LittleEndianUint64(b ByteBlock) uint64 {
	var padded [8]byte
	copy(padded[:], b)
	return binary.LittleEndian.Uint64(padded[:])
}
