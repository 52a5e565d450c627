// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

type FileClass uint8

const (
	ELFCLASS32 FileClass = 1
	ELFCLASS64 FileClass = 2
)

type FileEndian uint8

const (
	ELFDATA2LSB FileEndian = 1
	ELFDATA2MSB FileEndian = 2
)

type FileABI uint8

type FileType uint16

const (
	ET_NONE FileType = 0
	ET_REL  FileType = 1
	ET_EXEC FileType = 2
	ET_DYN  FileType = 3
	ET_CORE FileType = 4
)

type MachineType uint16

const (
	EM_NONE    MachineType = 0
	EM_386     MachineType = 3
	EM_ARM     MachineType = 40
	EM_X86_64  MachineType = 62
	EM_AARCH64 MachineType = 183
)

// Section header index
const (
	SHN_UNDEF     = 0
	SHN_LORESERVE = 0xFF00
	SHN_ABS       = 0xFFF1
	SHN_COMMON    = 0xFFF2
	SHN_XINDEX    = 0xFFFF
)

type SectionHeaderType uint32

const (
	SHT_NULL          SectionHeaderType = 0
	SHT_PROGBITS      SectionHeaderType = 1
	SHT_SYMTAB        SectionHeaderType = 2
	SHT_STRTAB        SectionHeaderType = 3
	SHT_RELA          SectionHeaderType = 4
	SHT_HASH          SectionHeaderType = 5
	SHT_DYNAMIC       SectionHeaderType = 6
	SHT_NOTE          SectionHeaderType = 7
	SHT_NOBITS        SectionHeaderType = 8
	SHT_REL           SectionHeaderType = 9
	SHT_SHLIB         SectionHeaderType = 10
	SHT_DYNSYM        SectionHeaderType = 11
	SHT_INIT_ARRAY    SectionHeaderType = 14
	SHT_FINI_ARRAY    SectionHeaderType = 15
	SHT_PREINIT_ARRAY SectionHeaderType = 16
	SHT_GROUP         SectionHeaderType = 17
	SHT_SYMTAB_SHNDX  SectionHeaderType = 18
)

func (s SectionHeaderType) IsRelocation() bool {
	return s == SHT_REL || s == SHT_RELA
}

func (s SectionHeaderType) HasDataInFile() bool {
	return s != SHT_NOBITS && s != SHT_NULL
}

// Section header flags
type SectionHeaderFlag uint64

const (
	SHF_WRITE            SectionHeaderFlag = 0x00000001
	SHF_ALLOC            SectionHeaderFlag = 0x00000002
	SHF_EXECINSTR        SectionHeaderFlag = 0x00000004
	SHF_MERGE            SectionHeaderFlag = 0x00000010
	SHF_STRINGS          SectionHeaderFlag = 0x00000020
	SHF_INFO_LINK        SectionHeaderFlag = 0x00000040
	SHF_LINK_ORDER       SectionHeaderFlag = 0x00000080
	SHF_OS_NONCONFORMING SectionHeaderFlag = 0x00000100
	SHF_GROUP            SectionHeaderFlag = 0x00000200
	SHF_TLS              SectionHeaderFlag = 0x00000400
	SHF_RO_AFTER_INIT    SectionHeaderFlag = 0x00200000
	SHF_EXCLUDE          SectionHeaderFlag = 0x80000000
)

// Symbol table type
type SymbolType uint8

const (
	STT_NOTYPE  SymbolType = 0
	STT_OBJECT  SymbolType = 1
	STT_FUNC    SymbolType = 2
	STT_SECTION SymbolType = 3
	STT_FILE    SymbolType = 4
	STT_COMMON  SymbolType = 5
)

type SymbolBinding uint8

const (
	STB_LOCAL  SymbolBinding = 0
	STB_GLOBAL SymbolBinding = 1
	STB_WEAK   SymbolBinding = 2
)

type SymbolVisibility uint8

const (
	STV_DEFAULT   SymbolVisibility = 0
	STV_INTERNAL  SymbolVisibility = 1
	STV_HIDDEN    SymbolVisibility = 2
	STV_PROTECTED SymbolVisibility = 3
)

// Well-known section names.
const (
	SectionNameSymtab          = ".symtab"
	SectionNameShstrtab        = ".shstrtab"
	SectionNameStrtab          = ".strtab"
	SectionNameAltInstructions = ".altinstructions"
	SectionNameJumpTable       = "__jump_table"
	RelaPrefix                 = ".rela"
)

// SectionSymbolMarker names STT_SECTION symbols, which carry no name of
// their own: "<marker>_<section index>".
const SectionSymbolMarker = "I_m_section_marker_symbol"

// Prefixes of toolchain mapping symbols ($x, $d, ...).
var MappingSymbolPrefixes = []string{"$x", "$d", "$t", "$a", "$v"}

// JumpInstructionLength is the size of the instruction patched at each
// jump label site.
const JumpInstructionLength = 4

type R_AARCH64 uint32

const (
	R_AARCH64_NONE                R_AARCH64 = 256
	R_AARCH64_ABS64               R_AARCH64 = 257
	R_AARCH64_ABS32               R_AARCH64 = 258
	R_AARCH64_ABS16               R_AARCH64 = 259
	R_AARCH64_PREL64              R_AARCH64 = 260
	R_AARCH64_PREL32              R_AARCH64 = 261
	R_AARCH64_PREL16              R_AARCH64 = 262
	R_AARCH64_MOVW_UABS_G0        R_AARCH64 = 263
	R_AARCH64_MOVW_UABS_G0_NC     R_AARCH64 = 264
	R_AARCH64_MOVW_UABS_G1        R_AARCH64 = 265
	R_AARCH64_MOVW_UABS_G1_NC     R_AARCH64 = 266
	R_AARCH64_MOVW_UABS_G2        R_AARCH64 = 267
	R_AARCH64_MOVW_UABS_G2_NC     R_AARCH64 = 268
	R_AARCH64_MOVW_UABS_G3        R_AARCH64 = 269
	R_AARCH64_MOVW_SABS_G0        R_AARCH64 = 270
	R_AARCH64_MOVW_SABS_G1        R_AARCH64 = 271
	R_AARCH64_MOVW_SABS_G2        R_AARCH64 = 272
	R_AARCH64_LD_PREL_LO19        R_AARCH64 = 273
	R_AARCH64_ADR_PREL_LO21       R_AARCH64 = 274
	R_AARCH64_ADR_PREL_PG_HI21    R_AARCH64 = 275
	R_AARCH64_ADR_PREL_PG_HI21_NC R_AARCH64 = 276
	R_AARCH64_ADD_ABS_LO12_NC     R_AARCH64 = 277
	R_AARCH64_LDST8_ABS_LO12_NC   R_AARCH64 = 278
	R_AARCH64_TSTBR14             R_AARCH64 = 279
	R_AARCH64_CONDBR19            R_AARCH64 = 280
	R_AARCH64_JUMP26              R_AARCH64 = 282
	R_AARCH64_CALL26              R_AARCH64 = 283
	R_AARCH64_LDST16_ABS_LO12_NC  R_AARCH64 = 284
	R_AARCH64_LDST32_ABS_LO12_NC  R_AARCH64 = 285
	R_AARCH64_LDST64_ABS_LO12_NC  R_AARCH64 = 286
	R_AARCH64_MOVW_PREL_G0        R_AARCH64 = 287
	R_AARCH64_MOVW_PREL_G0_NC     R_AARCH64 = 288
	R_AARCH64_MOVW_PREL_G1        R_AARCH64 = 289
	R_AARCH64_MOVW_PREL_G1_NC     R_AARCH64 = 290
	R_AARCH64_MOVW_PREL_G2        R_AARCH64 = 291
	R_AARCH64_MOVW_PREL_G2_NC     R_AARCH64 = 292
	R_AARCH64_MOVW_PREL_G3        R_AARCH64 = 293
	R_AARCH64_LDST128_ABS_LO12_NC R_AARCH64 = 299
	R_AARCH64_RELATIVE            R_AARCH64 = 1027
)

type R_X86_64 uint32

const (
	R_X86_64_NONE     R_X86_64 = 0
	R_X86_64_64       R_X86_64 = 1
	R_X86_64_PC32     R_X86_64 = 2
	R_X86_64_PLT32    R_X86_64 = 4
	R_X86_64_32       R_X86_64 = 10
	R_X86_64_32S      R_X86_64 = 11
	R_X86_64_PC64     R_X86_64 = 24
	R_X86_64_GOTOFF64 R_X86_64 = 25
	R_X86_64_GOTPC64  R_X86_64 = 29
	R_X86_64_SIZE64   R_X86_64 = 33
)
