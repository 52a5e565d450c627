// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bytes"
	"fmt"

	"github.com/antiagainst/fmp-integrity/region"
)

// RelocationTable is the payload of a SHT_REL or SHT_RELA section.
type RelocationTable struct {
	// Target is the index of the section the relocations apply to.
	Target  int
	Entries []Relocation
}

// RelocationLength returns how many bytes a relocation of kind typ
// overwrites. Unknown kinds are assumed to touch 4 bytes.
func RelocationLength(machine MachineType, typ uint32) uint64 {
	switch machine {
	case EM_AARCH64:
		switch R_AARCH64(typ) {
		case R_AARCH64_ABS64, R_AARCH64_ABS32, R_AARCH64_ABS16,
			R_AARCH64_PREL64, R_AARCH64_PREL32, R_AARCH64_PREL16,
			R_AARCH64_RELATIVE:
			return 8
		}
	case EM_X86_64:
		switch R_X86_64(typ) {
		case R_X86_64_64, R_X86_64_PC64, R_X86_64_GOTOFF64,
			R_X86_64_GOTPC64, R_X86_64_SIZE64:
			return 8
		}
	}
	return 4
}

func (h *Header) readRelocationTable(sec *Section) (*RelocationTable, error) {
	entrySize := h.sizeRelocation(sec.Type)
	if len(sec.Data)%entrySize != 0 {
		return nil, fmt.Errorf("%w: %s: size %#x is not a multiple of %d", ErrStructure, sec.Name, len(sec.Data), entrySize)
	}

	t := &RelocationTable{
		Target:  int(sec.Info),
		Entries: make([]Relocation, 0, len(sec.Data)/entrySize),
	}
	r := bytes.NewReader(sec.Data)
	for i := 0; i < len(sec.Data)/entrySize; i++ {
		rel, err := h.readRelocation(r, sec.Type)
		if err != nil {
			return nil, err
		}
		t.Entries = append(t.Entries, rel)
	}
	return t, nil
}

// Gaps returns the bytes of the target section overwritten by the
// relocations, in table order.
func (t *RelocationTable) Gaps() []region.Gap {
	gaps := make([]region.Gap, 0, len(t.Entries))
	for _, rel := range t.Entries {
		gaps = append(gaps, region.Gap{Offset: rel.Offset, Length: rel.Length})
	}
	return gaps
}

// Resolve rewrites each entry's (symbol, addend) source as a (section,
// offset) pair.
func (t *RelocationTable) Resolve(symtab *SymbolTable, sections []*Section) ([]ResolvedRelocation, error) {
	result := make([]ResolvedRelocation, 0, len(t.Entries))
	for _, rel := range t.Entries {
		sym, err := symtab.ByIndex(rel.SymbolIndex)
		if err != nil {
			return nil, err
		}
		resolved := ResolvedRelocation{
			Offset:  rel.Offset,
			Length:  rel.Length,
			Section: sym.SectionIndex,
		}
		if resolved.Defined() {
			if int(sym.SectionIndex) >= len(sections) {
				return nil, fmt.Errorf("%w: symbol %s in section %d of %d", ErrStructure, sym.Name, sym.SectionIndex, len(sections))
			}
			offset := int64(sym.Value-sections[sym.SectionIndex].Address) + rel.Addend
			if offset < 0 {
				return nil, fmt.Errorf("%w: relocation at %#x resolves before the start of section %d", ErrStructure, rel.Offset, sym.SectionIndex)
			}
			resolved.SectionOffset = uint64(offset)
		}
		result = append(result, resolved)
	}
	return result, nil
}

// Defined reports whether the relocation source lives in a regular section
// of this file.
func (r ResolvedRelocation) Defined() bool {
	return r.Section != SHN_UNDEF && r.Section < SHN_LORESERVE
}
