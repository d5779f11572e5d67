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

// Package symtab resolves user-visible symbol names to addresses within a
// student's compiled executable by parsing its ELF symbol table once at
// construction. The parser is stdlib debug/elf rather than a vendored
// third-party ELF library: the interface this package exposes is the only
// thing the rest of the harness depends on, and the pack's own ELF reader
// (zboralski-galago's emulator loader) reaches for the same package.
package symtab

import (
	"debug/elf"
	"sync"

	"github.com/asmtrace/asmtrace/internal/asmerr"
)

// Address is a resolved location in the traced child's address space.
type Address uint64

// symbolEntry is one resolved definition candidate.
type symbolEntry struct {
	addr  Address
	weak  bool
	shndx elf.SectionIndex
}

// SymbolTable is an immutable, ELF-backed name -> address map. It is built
// once per Program and is safe for concurrent reads; its only mutable
// state is the negative-lookup cache, guarded by a mutex so that Resolve
// may be called from several goroutines at once.
type SymbolTable struct {
	byName map[string]symbolEntry

	mu       sync.Mutex
	negative map[string]struct{}
}

// Load parses path's ELF symbol table (.symtab, falling back to .dynsym
// when no static symbol table is present, e.g. for stripped-but-dynamic
// executables) and builds the resolver.
func Load(path string) (*SymbolTable, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, asmerr.Wrap(asmerr.SyscallFailure, "symtab: open ELF", err)
	}
	defer f.Close()

	syms, err := f.Symbols()
	if err != nil || len(syms) == 0 {
		syms, err = f.DynamicSymbols()
	}
	if err != nil {
		return nil, asmerr.Wrap(asmerr.SyscallFailure, "symtab: read symbol table", err)
	}

	st := &SymbolTable{
		byName:   make(map[string]symbolEntry, len(syms)),
		negative: make(map[string]struct{}),
	}

	for _, sym := range syms {
		if sym.Name == "" || sym.Value == 0 {
			continue
		}
		bind := elf.ST_BIND(sym.Info)
		if bind != elf.STB_GLOBAL && bind != elf.STB_WEAK {
			continue
		}
		entry := symbolEntry{
			addr:  Address(sym.Value),
			weak:  bind == elf.STB_WEAK,
			shndx: sym.Section,
		}

		existing, ok := st.byName[sym.Name]
		if !ok {
			st.byName[sym.Name] = entry
			continue
		}
		// First matching definition by section priority wins; a later
		// weak definition never displaces an existing strong (global) one,
		// and among equal binding the earlier section-ordered definition
		// (lower Shndx) is kept.
		if existing.weak && !entry.weak {
			st.byName[sym.Name] = entry
			continue
		}
		if existing.weak == entry.weak && entry.shndx < existing.shndx {
			st.byName[sym.Name] = entry
		}
	}

	return st, nil
}

// Resolve looks up name, returning UnresolvedSymbol if absent. Misses are
// cached so that repeated probing of an unresolved name (e.g. from a test
// body that tries several expected spellings) does not rescan the symbol
// table.
func (st *SymbolTable) Resolve(name string) (Address, error) {
	if entry, ok := st.byName[name]; ok {
		return entry.addr, nil
	}

	st.mu.Lock()
	_, missed := st.negative[name]
	if !missed {
		st.negative[name] = struct{}{}
	}
	st.mu.Unlock()

	return 0, asmerr.New(asmerr.UnresolvedSymbol, "symtab: "+name)
}
