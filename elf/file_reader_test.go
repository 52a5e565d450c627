// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bytes"
	"testing"

	"github.com/antiagainst/fmp-integrity/region"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testModule struct {
	data        []byte
	text        int
	rodata      int
	replacement int
	altinstr    int
	jumpTable   int
}

func buildTestModule(t *testing.T) testModule {
	t.Helper()
	b := NewBuilder(ELFCLASS64, EM_AARCH64)
	m := testModule{}

	m.text = b.AddSection(".text", SHT_PROGBITS, SHF_ALLOC|SHF_EXECINSTR, make([]byte, 64))
	m.rodata = b.AddSection(".rodata", SHT_PROGBITS, SHF_ALLOC, make([]byte, 128))
	m.replacement = b.AddSection(".altinstr_replacement", SHT_PROGBITS, SHF_ALLOC|SHF_EXECINSTR, make([]byte, 8))
	m.altinstr = b.AddSection(SectionNameAltInstructions, SHT_PROGBITS, SHF_ALLOC, b.AltInstructionData([]RawAltInstruction{
		{Feature: 7, OrigLen: 4, AltLen: 4},
	}))
	m.jumpTable = b.AddSection(SectionNameJumpTable, SHT_PROGBITS, SHF_ALLOC|SHF_WRITE, b.JumpLabelData([]RawJumpLabel{
		{},
	}))

	textSym := b.AddSectionSymbol(m.text)
	b.AddSectionSymbol(m.rodata)
	replSym := b.AddSectionSymbol(m.replacement)
	b.AddSymbol(Symbol{Name: "$x", Type: STT_NOTYPE, SectionIndex: uint16(m.text)})
	b.AddSymbol(Symbol{Name: "$x", Type: STT_NOTYPE, SectionIndex: uint16(m.text), Value: 0x20})
	b.AddSymbol(Symbol{Name: "$d", Type: STT_NOTYPE, SectionIndex: uint16(m.rodata)})
	b.AddSymbol(Symbol{Name: "$x", Type: STT_NOTYPE, SectionIndex: uint16(m.replacement)})
	key := b.AddSymbol(Symbol{Name: "static_key", Type: STT_OBJECT, SectionIndex: uint16(m.rodata), Value: 0x40, Size: 16})
	b.AddSymbol(Symbol{Name: "foo", Type: STT_FUNC, Binding: STB_GLOBAL, SectionIndex: uint16(m.text), Value: 0x10, Size: 16})
	b.AddSymbol(Symbol{Name: "foo_other", Type: STT_FUNC, Binding: STB_GLOBAL, SectionIndex: uint16(m.text), Value: 0x30, Size: 8})
	b.AddSymbol(Symbol{Name: "reserved", Type: STT_OBJECT, Binding: STB_GLOBAL, SectionIndex: uint16(m.rodata), Value: 0x60, Size: 8})
	printk := b.AddSymbol(Symbol{Name: "printk", Binding: STB_GLOBAL})

	b.AddRelocation(m.text, Relocation{Offset: 0x20, Type: uint32(R_AARCH64_CALL26), SymbolIndex: printk})
	b.AddRelocation(m.text, Relocation{Offset: 0x00, Type: uint32(R_AARCH64_ADR_PREL_PG_HI21), SymbolIndex: key})
	b.AddRelocation(m.rodata, Relocation{Offset: 0x08, Type: uint32(R_AARCH64_ABS64), SymbolIndex: textSym, Addend: 0x10})

	b.AddRelocation(m.altinstr, Relocation{Offset: 0, Type: uint32(R_AARCH64_PREL32), SymbolIndex: textSym, Addend: 0x8})
	b.AddRelocation(m.altinstr, Relocation{Offset: 4, Type: uint32(R_AARCH64_PREL32), SymbolIndex: replSym})

	b.AddRelocation(m.jumpTable, Relocation{Offset: 0, Type: uint32(R_AARCH64_PREL32), SymbolIndex: textSym, Addend: 0x28})
	b.AddRelocation(m.jumpTable, Relocation{Offset: 4, Type: uint32(R_AARCH64_PREL32), SymbolIndex: textSym, Addend: 0x38})
	b.AddRelocation(m.jumpTable, Relocation{Offset: 8, Type: uint32(R_AARCH64_PREL64), SymbolIndex: key, Addend: 1})

	data, err := b.Bytes()
	require.NoError(t, err)
	m.data = data
	return m
}

func TestReadSections(t *testing.T) {
	m := buildTestModule(t)
	f, err := Parse(m.data)
	require.NoError(t, err)

	assert.Equal(t, ELFCLASS64, f.Class)
	assert.Equal(t, EM_AARCH64, f.Machine)

	idx, sec, err := f.SectionByName(".rodata")
	require.NoError(t, err)
	assert.Equal(t, m.rodata, idx)
	assert.Equal(t, uint64(128), sec.Size)
	assert.Equal(t, PayloadOpaque, sec.Payload.Kind())

	_, symtab, err := f.SectionByName(SectionNameSymtab)
	require.NoError(t, err)
	assert.Equal(t, PayloadSymbolTable, symtab.Payload.Kind())

	_, rela, err := f.SectionByName(".rela.text")
	require.NoError(t, err)
	assert.Equal(t, PayloadRelocationTable, rela.Payload.Kind())
	assert.Equal(t, PayloadAltInstructionTable, f.Sections[m.altinstr].Payload.Kind())
	assert.Equal(t, PayloadJumpLabelTable, f.Sections[m.jumpTable].Payload.Kind())

	_, _, err = f.SectionByName(".data")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadClass32(t *testing.T) {
	b := NewBuilder(ELFCLASS32, EM_ARM)
	text := b.AddSection(".text", SHT_PROGBITS, SHF_ALLOC|SHF_EXECINSTR, make([]byte, 16))
	sym := b.AddSymbol(Symbol{Name: "entry", Type: STT_FUNC, Binding: STB_GLOBAL, SectionIndex: uint16(text), Value: 4, Size: 8})
	b.AddRelocation(text, Relocation{Offset: 8, Type: 2, SymbolIndex: sym, Addend: -4})
	data, err := b.Bytes()
	require.NoError(t, err)

	f, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, ELFCLASS32, f.Class)

	offset, err := f.SymbolOffset("entry")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), offset)
	assert.Equal(t, []region.Gap{{Offset: 8, Length: 4}}, f.RelocationGaps(text))
}

func TestReadRelWithoutAddend(t *testing.T) {
	b := NewBuilder(ELFCLASS64, EM_X86_64)
	b.UseRel()
	text := b.AddSection(".text", SHT_PROGBITS, SHF_ALLOC|SHF_EXECINSTR, make([]byte, 32))
	sym := b.AddSectionSymbol(text)
	b.AddRelocation(text, Relocation{Offset: 4, Type: uint32(R_X86_64_PC32), SymbolIndex: sym})
	b.AddRelocation(text, Relocation{Offset: 16, Type: uint32(R_X86_64_64), SymbolIndex: sym})
	data, err := b.Bytes()
	require.NoError(t, err)

	f, err := Parse(data)
	require.NoError(t, err)
	_, _, err = f.SectionByName(".rel.text")
	require.NoError(t, err)
	assert.Equal(t, []region.Gap{{Offset: 4, Length: 4}, {Offset: 16, Length: 8}}, f.RelocationGaps(text))
}

func TestRejectBadMagic(t *testing.T) {
	m := buildTestModule(t)
	m.data[1] = 'X'
	_, err := Parse(m.data)
	assert.ErrorIs(t, err, ErrStructure)
}

func TestRejectTruncatedSectionTable(t *testing.T) {
	m := buildTestModule(t)
	_, err := Parse(m.data[:len(m.data)-10])
	assert.ErrorIs(t, err, ErrStructure)
}

func TestSectionNameTableLookup(t *testing.T) {
	needle := []byte(SectionNameShstrtab + "\x00")
	for _, tc := range []struct {
		desc  string
		build func(b *Builder)
		patch func(t *testing.T, data []byte)
	}{
		{
			desc: "second string table",
			build: func(b *Builder) {
				b.AddSection(".decoy", SHT_STRTAB, 0, []byte("\x00.shstrtab\x00"))
			},
		},
		{
			desc: "name held twice",
			build: func(b *Builder) {
				// ".copy.shstrtab\0" ends with a second ".shstrtab\0".
				b.AddSection(".copy"+SectionNameShstrtab, SHT_PROGBITS, 0, make([]byte, 4))
			},
		},
		{
			desc: "name missing",
			patch: func(t *testing.T, data []byte) {
				require.Equal(t, 1, bytes.Count(data, needle))
				data[bytes.Index(data, needle)+len(needle)-2] = 'X'
			},
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			b := NewBuilder(ELFCLASS64, EM_AARCH64)
			b.AddSection(".text", SHT_PROGBITS, SHF_ALLOC|SHF_EXECINSTR, make([]byte, 16))
			if tc.build != nil {
				tc.build(b)
			}
			data, err := b.Bytes()
			require.NoError(t, err)
			if tc.patch != nil {
				tc.patch(t, data)
			}

			_, err = Parse(data)
			assert.ErrorIs(t, err, ErrStructure)
		})
	}
}

func TestSectionNameIndexMismatchIsTolerated(t *testing.T) {
	m := buildTestModule(t)
	// e_shstrndx is the last field of the 64-bit file header.
	m.data[62], m.data[63] = 0, 0

	f, err := Parse(m.data)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), f.SecHdrStrIdx)
	assert.Equal(t, ".rodata", f.Sections[m.rodata].Name)
}

func TestRelocationLengths(t *testing.T) {
	assert.Equal(t, uint64(8), RelocationLength(EM_AARCH64, uint32(R_AARCH64_ABS64)))
	assert.Equal(t, uint64(8), RelocationLength(EM_AARCH64, uint32(R_AARCH64_PREL32)))
	assert.Equal(t, uint64(4), RelocationLength(EM_AARCH64, uint32(R_AARCH64_CALL26)))
	assert.Equal(t, uint64(4), RelocationLength(EM_AARCH64, 9999))
	assert.Equal(t, uint64(8), RelocationLength(EM_X86_64, uint32(R_X86_64_64)))
	assert.Equal(t, uint64(4), RelocationLength(EM_386, 1))
}

func TestRelocationGaps(t *testing.T) {
	m := buildTestModule(t)
	f, err := Parse(m.data)
	require.NoError(t, err)

	assert.Equal(t, []region.Gap{{Offset: 0x20, Length: 4}, {Offset: 0x00, Length: 4}}, f.RelocationGaps(m.text))
	assert.Equal(t, []region.Gap{{Offset: 0x08, Length: 8}}, f.RelocationGaps(m.rodata))
	assert.Empty(t, f.RelocationGaps(m.replacement))
}

func TestRelocationGapsStopAtSectionEnd(t *testing.T) {
	b := NewBuilder(ELFCLASS64, EM_AARCH64)
	text := b.AddSection(".text", SHT_PROGBITS, SHF_ALLOC|SHF_EXECINSTR, make([]byte, 0x40))
	textSym := b.AddSectionSymbol(text)
	b.AddRelocation(text, Relocation{Offset: 0x30, Type: uint32(R_AARCH64_PREL32), SymbolIndex: textSym})
	b.AddRelocation(text, Relocation{Offset: 0x3c, Type: uint32(R_AARCH64_PREL32), SymbolIndex: textSym})
	b.AddRelocation(text, Relocation{Offset: 0x3e, Type: uint32(R_AARCH64_PREL16), SymbolIndex: textSym})
	data, err := b.Bytes()
	require.NoError(t, err)

	f, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, []region.Gap{
		{Offset: 0x30, Length: 8},
		{Offset: 0x3c, Length: 4},
		{Offset: 0x3e, Length: 2},
	}, f.RelocationGaps(text))
}

func TestResolveRelocations(t *testing.T) {
	m := buildTestModule(t)
	f, err := Parse(m.data)
	require.NoError(t, err)

	relocs, err := f.relocationsFor(m.text)
	require.NoError(t, err)
	require.Len(t, relocs, 2)
	assert.False(t, relocs[0].Defined(), "printk is undefined")
	assert.True(t, relocs[1].Defined())
	assert.Equal(t, uint16(m.rodata), relocs[1].Section)
	assert.Equal(t, uint64(0x40), relocs[1].SectionOffset)

	relocs, err = f.relocationsFor(m.rodata)
	require.NoError(t, err)
	require.Len(t, relocs, 1)
	assert.Equal(t, uint16(m.text), relocs[0].Section)
	assert.Equal(t, uint64(0x10), relocs[0].SectionOffset)
}

func TestResolveAltInstructions(t *testing.T) {
	m := buildTestModule(t)
	f, err := Parse(m.data)
	require.NoError(t, err)

	require.Len(t, f.AltInstructions, 1)
	rec := f.AltInstructions[0]
	assert.Equal(t, Location{Section: m.text, Offset: 0x8}, rec.Original)
	assert.Equal(t, Location{Section: m.replacement, Offset: 0}, rec.Replacement)
	assert.Equal(t, uint16(7), rec.Feature)
	assert.Equal(t, []region.Gap{{Offset: 0x8, Length: 4}}, f.AltInstructionGaps(m.text))
	assert.Empty(t, f.AltInstructionGaps(m.rodata))
}

func TestResolveJumpLabels(t *testing.T) {
	m := buildTestModule(t)
	f, err := Parse(m.data)
	require.NoError(t, err)

	require.Len(t, f.JumpLabels, 1)
	rec := f.JumpLabels[0]
	assert.Equal(t, Location{Section: m.text, Offset: 0x28}, rec.Code)
	assert.Equal(t, Location{Section: m.text, Offset: 0x38}, rec.Target)
	assert.Equal(t, []region.Gap{{Offset: 0x28, Length: JumpInstructionLength}}, f.JumpLabelGaps(m.text))
}

func TestUnresolvedAltInstructionIsFatal(t *testing.T) {
	b := NewBuilder(ELFCLASS64, EM_AARCH64)
	text := b.AddSection(".text", SHT_PROGBITS, SHF_ALLOC|SHF_EXECINSTR, make([]byte, 16))
	alt := b.AddSection(SectionNameAltInstructions, SHT_PROGBITS, SHF_ALLOC, b.AltInstructionData([]RawAltInstruction{
		{OrigLen: 4, AltLen: 4},
		{OrigLen: 4, AltLen: 4},
	}))
	textSym := b.AddSectionSymbol(text)
	b.AddRelocation(alt, Relocation{Offset: 0, Type: uint32(R_AARCH64_PREL32), SymbolIndex: textSym})
	b.AddRelocation(alt, Relocation{Offset: 4, Type: uint32(R_AARCH64_PREL32), SymbolIndex: textSym, Addend: 8})
	b.AddRelocation(alt, Relocation{Offset: 12, Type: uint32(R_AARCH64_PREL32), SymbolIndex: textSym, Addend: 4})
	data, err := b.Bytes()
	require.NoError(t, err)

	_, err = Parse(data)
	assert.ErrorIs(t, err, ErrStructure)
}

func TestMisalignedAltInstructionRelocation(t *testing.T) {
	b := NewBuilder(ELFCLASS64, EM_AARCH64)
	text := b.AddSection(".text", SHT_PROGBITS, SHF_ALLOC|SHF_EXECINSTR, make([]byte, 16))
	alt := b.AddSection(SectionNameAltInstructions, SHT_PROGBITS, SHF_ALLOC, b.AltInstructionData([]RawAltInstruction{{}}))
	textSym := b.AddSectionSymbol(text)
	b.AddRelocation(alt, Relocation{Offset: 2, Type: uint32(R_AARCH64_PREL32), SymbolIndex: textSym})
	data, err := b.Bytes()
	require.NoError(t, err)

	_, err = Parse(data)
	assert.ErrorIs(t, err, ErrStructure)
}

func TestMalformedRecordCount(t *testing.T) {
	b := NewBuilder(ELFCLASS64, EM_AARCH64)
	b.AddSection(SectionNameJumpTable, SHT_PROGBITS, SHF_ALLOC, make([]byte, 20))
	data, err := b.Bytes()
	require.NoError(t, err)

	_, err = Parse(data)
	assert.ErrorIs(t, err, ErrStructure)
}

func TestRelocationAgainstMissingSymbol(t *testing.T) {
	b := NewBuilder(ELFCLASS64, EM_AARCH64)
	b.AddSection(".text", SHT_PROGBITS, SHF_ALLOC|SHF_EXECINSTR, make([]byte, 16))
	jt := b.AddSection(SectionNameJumpTable, SHT_PROGBITS, SHF_ALLOC, b.JumpLabelData([]RawJumpLabel{{}}))
	b.AddRelocation(jt, Relocation{Offset: 0, Type: uint32(R_AARCH64_PREL32), SymbolIndex: 42})
	data, err := b.Bytes()
	require.NoError(t, err)

	_, err = Parse(data)
	assert.ErrorIs(t, err, ErrStructure)
}

func TestJumpLabelKeyOutsideModule(t *testing.T) {
	b := NewBuilder(ELFCLASS64, EM_AARCH64)
	text := b.AddSection(".text", SHT_PROGBITS, SHF_ALLOC|SHF_EXECINSTR, make([]byte, 16))
	jt := b.AddSection(SectionNameJumpTable, SHT_PROGBITS, SHF_ALLOC, b.JumpLabelData([]RawJumpLabel{{}}))
	textSym := b.AddSectionSymbol(text)
	key := b.AddSymbol(Symbol{Name: "__tracepoint_sched_switch", Type: STT_NOTYPE, Binding: STB_GLOBAL})
	b.AddRelocation(jt, Relocation{Offset: 0, Type: uint32(R_AARCH64_PREL32), SymbolIndex: textSym, Addend: 4})
	b.AddRelocation(jt, Relocation{Offset: 4, Type: uint32(R_AARCH64_PREL32), SymbolIndex: textSym, Addend: 12})
	b.AddRelocation(jt, Relocation{Offset: 8, Type: uint32(R_AARCH64_PREL64), SymbolIndex: key, Addend: 8})
	data, err := b.Bytes()
	require.NoError(t, err)

	f, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, f.JumpLabels, 1)
	assert.Equal(t, Location{Section: text, Offset: 4}, f.JumpLabels[0].Code)
	assert.Equal(t, []region.Gap{{Offset: 4, Length: JumpInstructionLength}}, f.JumpLabelGaps(text))
}

func TestJumpLabelCodeAgainstUndefinedSymbol(t *testing.T) {
	b := NewBuilder(ELFCLASS64, EM_AARCH64)
	text := b.AddSection(".text", SHT_PROGBITS, SHF_ALLOC|SHF_EXECINSTR, make([]byte, 16))
	jt := b.AddSection(SectionNameJumpTable, SHT_PROGBITS, SHF_ALLOC, b.JumpLabelData([]RawJumpLabel{{}}))
	textSym := b.AddSectionSymbol(text)
	ext := b.AddSymbol(Symbol{Name: "external_code", Binding: STB_GLOBAL})
	b.AddRelocation(jt, Relocation{Offset: 0, Type: uint32(R_AARCH64_PREL32), SymbolIndex: ext})
	b.AddRelocation(jt, Relocation{Offset: 4, Type: uint32(R_AARCH64_PREL32), SymbolIndex: textSym, Addend: 12})
	data, err := b.Bytes()
	require.NoError(t, err)

	_, err = Parse(data)
	assert.ErrorIs(t, err, ErrStructure)
}
