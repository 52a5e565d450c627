// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/apex/log"
)

type SymbolTable struct {
	symbols []Symbol
	byName  map[string]int
}

func newSymbolTable() *SymbolTable {
	return &SymbolTable{byName: make(map[string]int)}
}

func (h *Header) readSymbolTable(sec *Section, strtab []byte) (*SymbolTable, error) {
	entrySize := h.sizeSymbol()
	if sec.EntrySize != 0 && sec.EntrySize != uint64(entrySize) {
		return nil, fmt.Errorf("%w: %s: entry size %d, expected %d", ErrStructure, sec.Name, sec.EntrySize, entrySize)
	}
	if len(sec.Data)%entrySize != 0 {
		return nil, fmt.Errorf("%w: %s: size %#x is not a multiple of %d", ErrStructure, sec.Name, len(sec.Data), entrySize)
	}

	raw := make([]Symbol, 0, len(sec.Data)/entrySize)
	r := bytes.NewReader(sec.Data)
	for i := 0; i < len(sec.Data)/entrySize; i++ {
		sym, err := h.readSymbol(r)
		if err != nil {
			return nil, err
		}
		if sym.RawName, err = readString(strtab, sym.nameOffset); err != nil {
			return nil, fmt.Errorf("symbol %d: %w", i, err)
		}
		raw = append(raw, sym)
	}

	t := newSymbolTable()
	t.findSymbols(raw)
	return t, nil
}

func isMappingSymbol(name string) bool {
	for _, prefix := range MappingSymbolPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// findSymbols assigns every symbol a lookup name. Section symbols become
// "<marker>_<shndx>"; mapping symbols, which repeat within a section,
// become "<name>_sec_<shndx>_<n>" with the smallest unused n.
func (t *SymbolTable) findSymbols(raw []Symbol) {
	used := make(map[string]bool, len(raw))
	for _, sym := range raw {
		sym.Name = sym.RawName

		if sym.Type == STT_SECTION {
			sym.Name = SectionSymbolMarker + "_" + strconv.Itoa(int(sym.SectionIndex))
		}

		if isMappingSymbol(sym.Name) {
			base := sym.Name + "_sec_" + strconv.Itoa(int(sym.SectionIndex)) + "_"
			n := 0
			for used[base+strconv.Itoa(n)] {
				n++
			}
			sym.Name = base + strconv.Itoa(n)
		}

		used[sym.Name] = true
		if _, ok := t.byName[sym.Name]; !ok {
			t.byName[sym.Name] = len(t.symbols)
		}
		t.symbols = append(t.symbols, sym)
	}
}

func (t *SymbolTable) Len() int {
	return len(t.symbols)
}

func (t *SymbolTable) Symbols() []Symbol {
	return t.symbols
}

// Lookup returns the first symbol named name.
func (t *SymbolTable) Lookup(name string) (*Symbol, error) {
	idx, ok := t.byName[name]
	if !ok {
		return nil, fmt.Errorf("symbol %q: %w", name, ErrNotFound)
	}
	return &t.symbols[idx], nil
}

// ByIndex returns the symbol at a raw symbol table index.
func (t *SymbolTable) ByIndex(idx int) (*Symbol, error) {
	if idx < 0 || idx >= len(t.symbols) {
		return nil, fmt.Errorf("%w: symbol index %d out of range (%d symbols)", ErrStructure, idx, len(t.symbols))
	}
	return &t.symbols[idx], nil
}

// Search returns the sorted names of all symbols matching the regular
// expression pattern anywhere in the name. An exact match for a prefix
// pattern sorts ahead of its suffixed variants.
func (t *SymbolTable) Search(pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return t.Match(re), nil
}

func (t *SymbolTable) Match(re *regexp.Regexp) []string {
	names := make([]string, 0)
	for _, sym := range t.symbols {
		if re.MatchString(sym.Name) {
			names = append(names, sym.Name)
		}
	}
	sort.Strings(names)
	return names
}

// NamesInSection returns the names of symbols owned by section idx, in
// symbol table order.
func (t *SymbolTable) NamesInSection(idx int) []string {
	names := make([]string, 0)
	for _, sym := range t.symbols {
		if int(sym.SectionIndex) == idx {
			names = append(names, sym.Name)
		}
	}
	return names
}

func (t *SymbolTable) logContent() {
	if l, ok := log.Log.(*log.Logger); ok && l.Level > log.DebugLevel {
		return
	}
	for i, sym := range t.symbols {
		log.WithFields(log.Fields{
			"index":   i,
			"type":    sym.Type,
			"bind":    sym.Binding,
			"section": sym.SectionIndex,
			"value":   fmt.Sprintf("%#x", sym.Value),
			"size":    sym.Size,
		}).Debug(sym.Name)
	}
}
