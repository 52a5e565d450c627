// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"fmt"

	"github.com/antiagainst/fmp-integrity/region"
)

func (f *File) Image() *Image {
	return f.image
}

func (f *File) Symbols() *SymbolTable {
	return f.symtab
}

func (f *File) Section(idx int) (*Section, error) {
	if idx < 0 || idx >= len(f.Sections) {
		return nil, fmt.Errorf("%w: section index %d out of range (%d sections)", ErrStructure, idx, len(f.Sections))
	}
	return f.Sections[idx], nil
}

// SectionByName returns the first section called name and its index.
func (f *File) SectionByName(name string) (int, *Section, error) {
	for i, sec := range f.Sections {
		if sec.Name == name {
			return i, sec, nil
		}
	}
	return -1, nil, fmt.Errorf("section %q: %w", name, ErrNotFound)
}

func (f *File) SectionNames() []string {
	names := make([]string, 0, len(f.Sections))
	for _, sec := range f.Sections {
		names = append(names, sec.Name)
	}
	return names
}

// SymbolOwner returns the section holding the named symbol.
func (f *File) SymbolOwner(name string) (int, *Section, error) {
	sym, err := f.symtab.Lookup(name)
	if err != nil {
		return -1, nil, err
	}
	if sym.SectionIndex == SHN_UNDEF || sym.SectionIndex >= SHN_LORESERVE {
		return -1, nil, fmt.Errorf("%w: symbol %s has no owning section (%#x)", ErrStructure, name, sym.SectionIndex)
	}
	sec, err := f.Section(int(sym.SectionIndex))
	if err != nil {
		return -1, nil, err
	}
	return int(sym.SectionIndex), sec, nil
}

// SymbolOffset returns the offset of the named symbol inside its section.
func (f *File) SymbolOffset(name string) (uint64, error) {
	sym, err := f.symtab.Lookup(name)
	if err != nil {
		return 0, err
	}
	_, sec, err := f.SymbolOwner(name)
	if err != nil {
		return 0, err
	}
	if sym.Value < sec.Address {
		return 0, fmt.Errorf("%w: symbol %s at %#x lies before section %s at %#x", ErrStructure, name, sym.Value, sec.Name, sec.Address)
	}
	return sym.Value - sec.Address, nil
}

// SymbolFileOffset returns the file offset of the named symbol's storage.
func (f *File) SymbolFileOffset(name string) (uint64, error) {
	offset, err := f.SymbolOffset(name)
	if err != nil {
		return 0, err
	}
	_, sec, err := f.SymbolOwner(name)
	if err != nil {
		return 0, err
	}
	return sec.Offset + offset, nil
}

// WriteSymbol overwrites the start of the named symbol's storage with data,
// in memory and in the backing file.
func (f *File) WriteSymbol(name string, data []byte) error {
	sym, err := f.symtab.Lookup(name)
	if err != nil {
		return err
	}
	_, sec, err := f.SymbolOwner(name)
	if err != nil {
		return err
	}
	if !sec.Type.HasDataInFile() {
		return fmt.Errorf("%w: symbol %s lives in %s, which has no file data", ErrStructure, name, sec.Name)
	}
	if uint64(len(data)) > sym.Size {
		return fmt.Errorf("%w: %d bytes do not fit symbol %s of %d bytes", ErrStructure, len(data), name, sym.Size)
	}
	offset, err := f.SymbolOffset(name)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > sec.Size {
		return fmt.Errorf("%w: symbol %s runs past the end of %s", ErrStructure, name, sec.Name)
	}
	_, err = f.image.WriteAt(data, int64(sec.Offset+offset))
	return err
}

// RelocationGaps returns the bytes of section idx rewritten by relocations.
// Relocation lengths are an upper bound, so a gap running past the end of
// the section is cut at the section end. Gaps starting at or past the end
// are returned unchanged.
func (f *File) RelocationGaps(idx int) []region.Gap {
	var size uint64
	if idx >= 0 && idx < len(f.Sections) {
		size = f.Sections[idx].Size
	}
	gaps := make([]region.Gap, 0)
	for _, sec := range f.Sections {
		t, ok := sec.Payload.(*RelocationTable)
		if !ok || t.Target != idx {
			continue
		}
		for _, g := range t.Gaps() {
			if g.Offset < size && g.Offset+g.Length > size {
				g.Length = size - g.Offset
			}
			gaps = append(gaps, g)
		}
	}
	return gaps
}

func (f *File) AltInstructionGaps(idx int) []region.Gap {
	return AltInstructionGaps(f.AltInstructions, idx)
}

func (f *File) JumpLabelGaps(idx int) []region.Gap {
	return JumpLabelGaps(f.JumpLabels, idx)
}
