// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"encoding/binary"
	"fmt"
	"io"
)

type symbol32 struct {
	Name         uint32
	Value        uint32
	Size         uint32
	Info         uint8
	Other        uint8
	SectionIndex uint16
}

type symbol64 struct {
	Name         uint32
	Info         uint8
	Other        uint8
	SectionIndex uint16
	Value        uint64
	Size         uint64
}

func (h *Header) sizeSymbol() int {
	if h.Class == ELFCLASS64 {
		return binary.Size(&symbol64{})
	} else {
		return binary.Size(&symbol32{})
	}
}

func (h *Header) readSymbol(r io.Reader) (Symbol, error) {
	var result Symbol
	var info uint8

	if h.Class == ELFCLASS64 {
		var sh symbol64
		if err := binary.Read(r, h.ByteOrder(), &sh); err != nil {
			return result, fmt.Errorf("%w: short symbol: %v", ErrStructure, err)
		}

		result.nameOffset = sh.Name
		info = sh.Info
		result.Other = sh.Other
		result.SectionIndex = sh.SectionIndex
		result.Value = sh.Value
		result.Size = sh.Size
	} else {
		var sh symbol32
		if err := binary.Read(r, h.ByteOrder(), &sh); err != nil {
			return result, fmt.Errorf("%w: short symbol: %v", ErrStructure, err)
		}

		result.nameOffset = sh.Name
		info = sh.Info
		result.Other = sh.Other
		result.SectionIndex = sh.SectionIndex
		result.Value = uint64(sh.Value)
		result.Size = uint64(sh.Size)
	}

	result.Type = SymbolType(info & 0xF)
	result.Binding = SymbolBinding(info >> 4)
	result.Visibility = SymbolVisibility(result.Other & 0x3)

	if result.SectionIndex == SHN_XINDEX {
		return result, fmt.Errorf("%w: extended section indices are not supported", ErrStructure)
	}

	return result, nil
}

func (h *Header) writeSymbol(w io.Writer, input *Symbol) error {
	info := uint8(input.Type) | (uint8(input.Binding) << 4)
	other := (input.Other &^ 0x3) | uint8(input.Visibility)

	if h.Class == ELFCLASS64 {
		var sh symbol64

		sh.Name = input.nameOffset
		sh.Info = info
		sh.Other = other
		sh.SectionIndex = input.SectionIndex
		sh.Value = input.Value
		sh.Size = input.Size

		return binary.Write(w, h.ByteOrder(), &sh)
	} else {
		var sh symbol32

		sh.Name = input.nameOffset
		sh.Info = info
		sh.Other = other
		sh.SectionIndex = input.SectionIndex
		sh.Value = uint32(input.Value)
		sh.Size = uint32(input.Size)

		return binary.Write(w, h.ByteOrder(), &sh)
	}
}
