// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import "bytes"

type PayloadKind int

const (
	PayloadOpaque PayloadKind = iota
	PayloadSymbolTable
	PayloadRelocationTable
	PayloadAltInstructionTable
	PayloadJumpLabelTable
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadSymbolTable:
		return "symtab"
	case PayloadRelocationTable:
		return "relocations"
	case PayloadAltInstructionTable:
		return "altinstructions"
	case PayloadJumpLabelTable:
		return "jump_table"
	default:
		return "opaque"
	}
}

// Payload is the decoded content of a section. The set of implementations
// is closed: *Opaque, *SymbolTable, *RelocationTable, *AltInstructionTable
// and *JumpLabelTable.
type Payload interface {
	Kind() PayloadKind
	payload()
}

// Opaque is a section with no structure known to this package.
type Opaque struct {
	data []byte
}

func (*Opaque) Kind() PayloadKind { return PayloadOpaque }
func (*Opaque) payload()          {}

// FindPattern returns every offset at which pattern occurs, overlapping
// matches included.
func (o *Opaque) FindPattern(pattern []byte) []int {
	return findPattern(o.data, pattern)
}

func findPattern(data []byte, pattern []byte) []int {
	offsets := make([]int, 0)
	if len(pattern) == 0 {
		return offsets
	}
	base := 0
	for {
		idx := bytes.Index(data[base:], pattern)
		if idx < 0 {
			return offsets
		}
		offsets = append(offsets, base+idx)
		base += idx + 1
	}
}

func (*SymbolTable) Kind() PayloadKind { return PayloadSymbolTable }
func (*SymbolTable) payload()          {}

func (*RelocationTable) Kind() PayloadKind { return PayloadRelocationTable }
func (*RelocationTable) payload()          {}

func (*AltInstructionTable) Kind() PayloadKind { return PayloadAltInstructionTable }
func (*AltInstructionTable) payload()          {}

func (*JumpLabelTable) Kind() PayloadKind { return PayloadJumpLabelTable }
func (*JumpLabelTable) payload()          {}
