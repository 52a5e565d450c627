// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import "errors"

var (
	// ErrStructure reports a file that does not match the layout this
	// package understands.
	ErrStructure = errors.New("unexpected ELF structure")
	// ErrNotFound reports a missing symbol or section name.
	ErrNotFound = errors.New("not found")
)

// File is the parsed view of an Image. Sections, symbols and auxiliary
// records live in flat slices; cross-references between them are indices.
type File struct {
	Header
	Sections        []*Section
	AltInstructions []AltInstruction
	JumpLabels      []JumpLabel

	image    *Image
	symtab   *SymbolTable
	shstrIdx int
}

type Header struct {
	// Identification
	Class         FileClass
	Endian        FileEndian
	HeaderVersion uint8
	ABI           FileABI
	ABIVersion    uint8

	// Header
	Type             FileType
	Machine          MachineType
	Version          uint32
	Entry            uint64
	ProgHdrOffset    uint64
	SecHdrOffset     uint64
	Flags            uint32
	HeaderSize       uint16
	ProgHdrEntrySize uint16
	ProgHdrCount     uint16
	SecHdrEntrySize  uint16
	SecHdrCount      uint16
	SecHdrStrIdx     uint16
}

type Section struct {
	Name       string
	nameOffset uint32
	Type       SectionHeaderType
	Flags      SectionHeaderFlag
	Address    uint64
	Offset     uint64
	Size       uint64
	Link       uint32
	Info       uint32
	AddrAlign  uint64
	EntrySize  uint64
	// Data aliases the owning Image, so writes through the Image are
	// visible here.
	Data    []byte
	Payload Payload
}

type Symbol struct {
	// Name is unique within the table; RawName is the string table entry.
	Name         string
	RawName      string
	nameOffset   uint32
	Type         SymbolType
	Binding      SymbolBinding
	Visibility   SymbolVisibility
	Other        uint8
	SectionIndex uint16
	Value        uint64
	Size         uint64
}

type Relocation struct {
	Offset      uint64
	Type        uint32
	SymbolIndex int
	Addend      int64
	// Length is the number of bytes the fixup overwrites at Offset.
	Length uint64
}

// ResolvedRelocation is a Relocation whose symbol-relative source has been
// rewritten as a section-relative location.
type ResolvedRelocation struct {
	Offset        uint64
	Length        uint64
	Section       uint16
	SectionOffset uint64
}

// Location is a byte offset inside a section.
type Location struct {
	Section int
	Offset  uint64
}

type AltInstruction struct {
	Original    Location
	Replacement Location
	Feature     uint16
	OrigLen     uint8
	AltLen      uint8
}

type JumpLabel struct {
	// Code is the patched instruction; Target is the branch destination.
	Code   Location
	Target Location
	Key    int64
}
