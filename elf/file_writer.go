// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bufio"
	"bytes"
	"fmt"
	"slices"
)

type stringTable struct {
	strings map[string]uint32
	pos     uint32
}

func newStringTable() stringTable {
	t := stringTable{
		strings: make(map[string]uint32),
		pos:     0,
	}
	t.Add("")
	return t
}

func (e *stringTable) Add(s string) uint32 {
	// TODO: Support substrings
	if val, ok := e.strings[s]; ok {
		return val
	}
	sPos := e.pos
	e.pos += uint32(len(s)) + 1
	e.strings[s] = sPos
	return sPos
}

func (e *stringTable) ToData() []byte {
	data := make([]byte, e.pos)
	for s, i := range e.strings {
		data = slices.Replace(data, int(i), int(i)+len(s), []byte(s)...)
	}
	return data
}

// Builder assembles a relocatable object, mainly to synthesise fixtures
// for tests. It emits the sections added to it followed by one relocation
// section per relocated section, .symtab, .strtab and .shstrtab.
type Builder struct {
	Header
	sections    []*Section
	symbols     []*Symbol
	relocations map[int][]Relocation
	relocType   SectionHeaderType
}

func NewBuilder(class FileClass, machine MachineType) *Builder {
	b := &Builder{
		Header: Header{
			Class:         class,
			Endian:        ELFDATA2LSB,
			HeaderVersion: 1,
			Type:          ET_REL,
			Machine:       machine,
			Version:       1,
		},
		relocations: make(map[int][]Relocation),
		relocType:   SHT_RELA,
	}
	b.sections = append(b.sections, &Section{Type: SHT_NULL})
	b.symbols = append(b.symbols, &Symbol{})
	return b
}

// UseRel makes Bytes emit SHT_REL tables; addends are dropped.
func (b *Builder) UseRel() {
	b.relocType = SHT_REL
}

// AddSection appends a section and returns its index.
func (b *Builder) AddSection(name string, typ SectionHeaderType, flags SectionHeaderFlag, data []byte) int {
	b.sections = append(b.sections, &Section{
		Name:      name,
		Type:      typ,
		Flags:     flags,
		Data:      data,
		Size:      uint64(len(data)),
		AddrAlign: 8,
	})
	return len(b.sections) - 1
}

func (b *Builder) SetAddress(section int, addr uint64) {
	b.sections[section].Address = addr
}

// AddSymbol appends a symbol and returns its symbol table index. The
// symbol's Name is written to the string table.
func (b *Builder) AddSymbol(sym Symbol) int {
	b.symbols = append(b.symbols, &sym)
	return len(b.symbols) - 1
}

// AddSectionSymbol appends an STT_SECTION symbol for section.
func (b *Builder) AddSectionSymbol(section int) int {
	return b.AddSymbol(Symbol{Type: STT_SECTION, SectionIndex: uint16(section)})
}

func (b *Builder) AddRelocation(section int, rel Relocation) {
	b.relocations[section] = append(b.relocations[section], rel)
}

func (b *Builder) AltInstructionData(records []RawAltInstruction) []byte {
	var buf bytes.Buffer
	for i := range records {
		b.writeAltInstr(&buf, &records[i])
	}
	return buf.Bytes()
}

func (b *Builder) JumpLabelData(records []RawJumpLabel) []byte {
	var buf bytes.Buffer
	for i := range records {
		b.writeJumpLabel(&buf, &records[i])
	}
	return buf.Bytes()
}

func (b *Builder) Bytes() ([]byte, error) {
	sections := slices.Clone(b.sections)

	if len(sections)+len(b.relocations)+3 > SHN_LORESERVE {
		return nil, fmt.Errorf("unsupported section count: %d", len(sections))
	}

	sectionStringTable := newStringTable()
	stringTable := newStringTable()

	symTabIdx := len(sections) + len(b.relocations)
	strTabIdx := symTabIdx + 1
	shstrTabIdx := symTabIdx + 2

	// Create relocation table sections
	targets := make([]int, 0, len(b.relocations))
	for target := range b.relocations {
		targets = append(targets, target)
	}
	slices.Sort(targets)
	for _, target := range targets {
		relName := ".rel"
		if b.relocType == SHT_RELA {
			relName = RelaPrefix
		}

		var relBuffer bytes.Buffer
		relWriter := bufio.NewWriter(&relBuffer)
		for _, rel := range b.relocations[target] {
			if err := b.writeRelocation(relWriter, b.relocType, &rel); err != nil {
				return nil, err
			}
		}
		if err := relWriter.Flush(); err != nil {
			return nil, err
		}

		sections = append(sections, &Section{
			Name:      relName + b.sections[target].Name,
			Type:      b.relocType,
			Flags:     SHF_INFO_LINK,
			EntrySize: uint64(b.sizeRelocation(b.relocType)),
			Info:      uint32(target),
			Link:      uint32(symTabIdx),
			AddrAlign: 8,
			Data:      relBuffer.Bytes(),
		})
	}

	// Populate symbol table
	symbolTableSection := &Section{
		Name:      SectionNameSymtab,
		Type:      SHT_SYMTAB,
		EntrySize: uint64(b.sizeSymbol()),
		Link:      uint32(strTabIdx),
		Info:      uint32(len(b.symbols)),
		AddrAlign: 8,
	}
	var symtabBuffer bytes.Buffer
	for i, sym := range b.symbols {
		sym.nameOffset = stringTable.Add(sym.Name)
		if sym.Binding != STB_LOCAL && symbolTableSection.Info == uint32(len(b.symbols)) {
			symbolTableSection.Info = uint32(i)
		}
		if err := b.writeSymbol(&symtabBuffer, sym); err != nil {
			return nil, err
		}
	}
	symbolTableSection.Data = symtabBuffer.Bytes()

	stringTableSection := &Section{Name: SectionNameStrtab, Type: SHT_STRTAB, AddrAlign: 1}
	sectionStringTableSection := &Section{Name: SectionNameShstrtab, Type: SHT_STRTAB, AddrAlign: 1}
	sections = append(sections, symbolTableSection, stringTableSection, sectionStringTableSection)

	// Write string tables
	for _, sh := range sections {
		sh.nameOffset = sectionStringTable.Add(sh.Name)
	}
	stringTableSection.Data = stringTable.ToData()
	sectionStringTableSection.Data = sectionStringTable.ToData()

	// Layout: file header, section data, section headers
	b.HeaderSize = uint16(b.sizeElfHeader())
	writeOffset := uint64(b.HeaderSize)
	for _, sh := range sections {
		if !sh.Type.HasDataInFile() {
			continue
		}
		writeOffset = alignUp(writeOffset, 8)
		sh.Offset = writeOffset
		sh.Size = uint64(len(sh.Data))
		writeOffset += sh.Size
	}
	writeOffset = alignUp(writeOffset, 8)

	b.SecHdrOffset = writeOffset
	b.SecHdrEntrySize = uint16(b.sizeSectionHeader())
	b.SecHdrCount = uint16(len(sections))
	b.SecHdrStrIdx = uint16(shstrTabIdx)

	var out bytes.Buffer
	if err := b.writeElfHeader(&out); err != nil {
		return nil, err
	}
	for _, sh := range sections {
		if !sh.Type.HasDataInFile() {
			continue
		}
		out.Write(make([]byte, int(sh.Offset)-out.Len()))
		out.Write(sh.Data)
	}
	out.Write(make([]byte, int(b.SecHdrOffset)-out.Len()))
	for _, sh := range sections {
		if err := b.writeSectionHeader(&out, sh); err != nil {
			return nil, err
		}
	}

	return out.Bytes(), nil
}

func alignUp(v uint64, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
