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

// Package memio implements the word-granular memory transfer layer that
// crosses the address-space boundary between the harness and a traced
// child, plus the typed Serde layer built on top of it.
package memio

import (
	"github.com/asmtrace/asmtrace/internal/asmerr"
)

// Addr is an unsigned machine-word integer interpreted in the child's
// address space. No aliasing with host pointers is ever performed.
type Addr uint64

// ByteBlock is an owned contiguous sequence of raw bytes: the boundary
// between typed host values and the child's memory. All transfers cross
// through a ByteBlock.
type ByteBlock []byte

// WordPeeker and WordPoker are the two host-debugging primitives MemoryIO
// is built from: a single native-word read or write at a word-aligned
// address. Tracer implementations satisfy these directly (e.g. via
// PTRACE_PEEKDATA/PTRACE_POKEDATA).
type WordPeeker interface {
	PeekWord(addr Addr) (uint64, error)
}

type WordPoker interface {
	PokeWord(addr Addr, word uint64) error
}

// WordIO is the minimal capability MemoryIO needs from its tracer.
type WordIO interface {
	WordPeeker
	WordPoker
}

const wordSize = 8

// MemoryIO transfers bytes across the address-space boundary using a
// WordIO's native-word-granular peek/poke primitives.
type MemoryIO struct {
	io WordIO
}

// New builds a MemoryIO layered over the given word-granular primitives.
func New(io WordIO) *MemoryIO {
	return &MemoryIO{io: io}
}

// ReadBlock transfers [addr, addr+len) out of the child.
//
// The region is decomposed into at most three segments: a head fragment in
// the partial word containing addr, zero or more full words, and a tail
// fragment. Each segment is satisfied by a single word-peek at
// addr &^ (wordSize-1); the requested bytes are copied out of the word at
// the correct intra-word offset.
func (m *MemoryIO) ReadBlock(addr Addr, length int) (ByteBlock, error) {
	if length == 0 {
		return ByteBlock{}, nil
	}
	out := make([]byte, length)
	pos := 0
	cur := addr
	for pos < length {
		wordBase := cur &^ (wordSize - 1)
		offset := int(cur - wordBase)
		word, err := m.io.PeekWord(wordBase)
		if err != nil {
			return nil, asmerr.Wrap(asmerr.SyscallFailure, "read_block: peek word", err)
		}
		var wordBytes [wordSize]byte
		putLE(wordBytes[:], word)

		n := wordSize - offset
		if remaining := length - pos; n > remaining {
			n = remaining
		}
		copy(out[pos:pos+n], wordBytes[offset:offset+n])

		pos += n
		cur += Addr(n)
	}
	return out, nil
}

// WriteBlock transfers bytes into [addr, addr+len(bytes)) of the child.
//
// Full-word writes go directly. Partial-word writes require read-modify-
// write: the containing word is fetched, the relevant bytes are
// overwritten in a host-local copy, and the full word is poked back. Bytes
// of the flanking words outside the requested range are always preserved
// bitwise; the implementation never pokes beyond the requested range.
func (m *MemoryIO) WriteBlock(addr Addr, data ByteBlock) error {
	if len(data) == 0 {
		return nil
	}
	pos := 0
	cur := addr
	for pos < len(data) {
		wordBase := cur &^ (wordSize - 1)
		offset := int(cur - wordBase)
		n := wordSize - offset
		if remaining := len(data) - pos; n > remaining {
			n = remaining
		}

		var wordBytes [wordSize]byte
		if offset != 0 || n != wordSize {
			// Partial word: read-modify-write so the flanking bytes are
			// preserved bitwise.
			word, err := m.io.PeekWord(wordBase)
			if err != nil {
				return asmerr.Wrap(asmerr.SyscallFailure, "write_block: peek word for RMW", err)
			}
			putLE(wordBytes[:], word)
		}
		copy(wordBytes[offset:offset+n], data[pos:pos+n])

		if err := m.io.PokeWord(wordBase, getLE(wordBytes[:])); err != nil {
			return asmerr.Wrap(asmerr.SyscallFailure, "write_block: poke word", err)
		}

		pos += n
		cur += Addr(n)
	}
	return nil
}

func putLE(dst []byte, v uint64) {
	for i := 0; i < wordSize; i++ {
		dst[i] = byte(v >> (8 * uint(i)))
	}
}

func getLE(src []byte) uint64 {
	var v uint64
	for i := 0; i < wordSize; i++ {
		v |= uint64(src[i]) << (8 * uint(i))
	}
	return v
}
