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

package program

import (
	"github.com/asmtrace/asmtrace/internal/asmerr"
	"github.com/asmtrace/asmtrace/internal/memio"
)

// AsmSymbol is a non-owning handle on a resolved symbol's address. It
// holds a *Program reference plus one immutable Address and is only
// valid for the lifetime of that Program.
type AsmSymbol struct {
	prog *Program
	addr memio.Addr
	name string
}

// Address returns the symbol's resolved child-address.
func (s AsmSymbol) Address() memio.Addr { return s.addr }

// Name returns the symbol name this handle was resolved from.
func (s AsmSymbol) Name() string { return s.name }

// ReadCString reads a NUL-terminated string starting at the symbol's
// address, bounded by capBytes (DefaultStringCap when zero).
func (s AsmSymbol) ReadCString(capBytes int) (string, error) {
	if err := s.prog.checkLive(); err != nil {
		return "", err
	}
	c := memio.CString{Cap: capBytes}
	return c.Read(s.addr, s.prog.mio)
}

// WriteCString overwrites the symbol's backing memory with value plus a
// single trailing NUL.
func (s AsmSymbol) WriteCString(value string) error {
	if err := s.prog.checkLive(); err != nil {
		return err
	}
	c := memio.CString{}
	bytes, err := c.WriteBytes(value)
	if err != nil {
		return err
	}
	return s.prog.mio.WriteBlock(s.addr, bytes)
}

// ReadBytes reads exactly n raw bytes from the symbol's address.
func (s AsmSymbol) ReadBytes(n int) ([]byte, error) {
	if err := s.prog.checkLive(); err != nil {
		return nil, err
	}
	return s.prog.mio.ReadBlock(s.addr, n)
}

// WriteBytes writes data verbatim to the symbol's address.
func (s AsmSymbol) WriteBytes(data []byte) error {
	if err := s.prog.checkLive(); err != nil {
		return err
	}
	return s.prog.mio.WriteBlock(s.addr, data)
}

// numeric is the set of fixed-width integer types AsmData supports,
// mirroring memio.FixedInt's type constraint.
type numeric interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64
}

// AsmData is a non-owning, typed handle on a fixed-width numeric value
// living at a child address. Alongside the plain Read/Write pair it
// offers Store (an explicit synonym for Write, matching the original's
// API shape) and Add, an atomic-from-the-test's-perspective
// read-modify-write accumulation helper.
type AsmData[T numeric] struct {
	prog *Program
	addr memio.Addr
}

// NewAsmData builds an AsmData handle over addr. Exported so Program's
// Function/Symbol callers can construct one directly once they already
// hold a resolved Address (e.g. from AllocMem).
func NewAsmData[T numeric](p *Program, addr memio.Addr) AsmData[T] {
	return AsmData[T]{prog: p, addr: addr}
}

// Address returns the handle's backing address.
func (d AsmData[T]) Address() memio.Addr { return d.addr }

// Read returns the current value at the handle's address.
func (d AsmData[T]) Read() (T, error) {
	if err := d.prog.checkLive(); err != nil {
		var zero T
		return zero, err
	}
	var s memio.FixedInt[T]
	return s.Read(d.addr, d.prog.mio)
}

// Write overwrites the value at the handle's address.
func (d AsmData[T]) Write(value T) error {
	if err := d.prog.checkLive(); err != nil {
		return err
	}
	var s memio.FixedInt[T]
	raw, err := s.WriteBytes(value)
	if err != nil {
		return err
	}
	return d.prog.mio.WriteBlock(d.addr, raw)
}

// Store is a synonym for Write.
func (d AsmData[T]) Store(value T) error { return d.Write(value) }

// Add reads the current value, adds delta, writes the result back, and
// returns the new value.
func (d AsmData[T]) Add(delta T) (T, error) {
	cur, err := d.Read()
	if err != nil {
		var zero T
		return zero, err
	}
	next := cur + delta
	if err := d.Write(next); err != nil {
		var zero T
		return zero, err
	}
	return next, nil
}

// AsmBuffer is a non-owning handle on a fixed-size N-byte region. When
// terminated is true it behaves like memio.Buffer (Str() truncates at the
// first NUL); otherwise it behaves like memio.RawBuffer (exact N bytes,
// no framing), matching the non_terminated_str carrier the original
// implementation exposes alongside the NUL-aware one.
type AsmBuffer struct {
	prog       *Program
	addr       memio.Addr
	n          int
	terminated bool
}

// Address returns the handle's backing address.
func (b AsmBuffer) Address() memio.Addr { return b.addr }

// Read returns all N bytes of the buffer's backing region.
func (b AsmBuffer) Read() ([]byte, error) {
	if err := b.prog.checkLive(); err != nil {
		return nil, err
	}
	if b.terminated {
		var s memio.Buffer
		s.N = b.n
		return s.Read(b.addr, b.prog.mio)
	}
	var s memio.RawBuffer
	s.N = b.n
	return s.Read(b.addr, b.prog.mio)
}

// Str reads the buffer and truncates at the first NUL. Only meaningful
// for NUL-terminated buffers; raw (non-terminated) buffers return their
// full N bytes verbatim.
func (b AsmBuffer) Str() (string, error) {
	raw, err := b.Read()
	if err != nil {
		return "", err
	}
	if b.terminated {
		return memio.Str(raw), nil
	}
	return string(raw), nil
}

// Write overwrites the buffer's backing region with data, which must be
// exactly N bytes for a raw buffer or at most N bytes for a NUL-aware one
// (the remainder is zero-padded).
func (b AsmBuffer) Write(data []byte) error {
	if err := b.prog.checkLive(); err != nil {
		return err
	}
	var raw []byte
	var err error
	if b.terminated {
		var s memio.Buffer
		s.N = b.n
		raw, err = s.WriteBytes(data)
	} else {
		var s memio.RawBuffer
		s.N = b.n
		raw, err = s.WriteBytes(data)
	}
	if err != nil {
		return err
	}
	return b.prog.mio.WriteBlock(b.addr, raw)
}

// Buffer returns a NUL-aware AsmBuffer handle over [addr, addr+n).
func (p *Program) Buffer(addr memio.Addr, n int) AsmBuffer {
	return AsmBuffer{prog: p, addr: addr, n: n, terminated: true}
}

// RawBuffer returns a non-terminated AsmBuffer handle over [addr, addr+n),
// for assembly-side buffers that do not use C-style termination.
func (p *Program) RawBuffer(addr memio.Addr, n int) AsmBuffer {
	return AsmBuffer{prog: p, addr: addr, n: n}
}

// SetStopChecker installs the cooperative-cancellation callback every
// handle operation below consults before acting. Called once per test by
// pkg/harness's TestContext constructor; nil (the default) disables the
// check.
func (p *Program) SetStopChecker(c StopChecker) {
	p.mu.Lock()
	p.stopCheck = c
	p.mu.Unlock()
}

func (p *Program) checkLive() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return asmerr.New(asmerr.SyscallFailure, "program: use of handle after Program was closed")
	}
	if p.stopCheck != nil && p.stopCheck.FatalStopRequested() {
		return asmerr.New(asmerr.BadArgument, "program: fatal stop requested, skipping further handle use")
	}
	return nil
}
