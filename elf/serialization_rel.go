// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"encoding/binary"
	"fmt"
	"io"
)

type rel32 struct {
	Offset uint32
	Info   uint32
}

type rel64 struct {
	Offset uint64
	Info   uint64
}

type rela32 struct {
	Offset uint32
	Info   uint32
	Addend int32
}

type rela64 struct {
	Offset uint64
	Info   uint64
	Addend int64
}

func (h *Header) sizeRelocation(t SectionHeaderType) int {
	if h.Class == ELFCLASS64 {
		if t == SHT_RELA {
			return binary.Size(&rela64{})
		} else {
			return binary.Size(&rel64{})
		}
	} else {
		if t == SHT_RELA {
			return binary.Size(&rela32{})
		} else {
			return binary.Size(&rel32{})
		}
	}
}

func (h *Header) readRelocation(r io.Reader, t SectionHeaderType) (Relocation, error) {
	var result Relocation

	if h.Class == ELFCLASS64 {
		if t == SHT_RELA {
			var rel rela64
			if err := binary.Read(r, h.ByteOrder(), &rel); err != nil {
				return result, fmt.Errorf("%w: short relocation: %v", ErrStructure, err)
			}
			result.Offset = rel.Offset
			result.SymbolIndex = int(rel.Info >> 32)
			result.Type = uint32(rel.Info)
			result.Addend = rel.Addend
		} else if t == SHT_REL {
			var rel rel64
			if err := binary.Read(r, h.ByteOrder(), &rel); err != nil {
				return result, fmt.Errorf("%w: short relocation: %v", ErrStructure, err)
			}
			result.Offset = rel.Offset
			result.SymbolIndex = int(rel.Info >> 32)
			result.Type = uint32(rel.Info)
		} else {
			return result, fmt.Errorf("unknown type: %d", t)
		}
	} else {
		if t == SHT_RELA {
			var rel rela32
			if err := binary.Read(r, h.ByteOrder(), &rel); err != nil {
				return result, fmt.Errorf("%w: short relocation: %v", ErrStructure, err)
			}
			result.Offset = uint64(rel.Offset)
			result.SymbolIndex = int(rel.Info >> 8)
			result.Type = uint32(rel.Info & 0xFF)
			result.Addend = int64(rel.Addend)
		} else if t == SHT_REL {
			var rel rel32
			if err := binary.Read(r, h.ByteOrder(), &rel); err != nil {
				return result, fmt.Errorf("%w: short relocation: %v", ErrStructure, err)
			}
			result.Offset = uint64(rel.Offset)
			result.SymbolIndex = int(rel.Info >> 8)
			result.Type = uint32(rel.Info & 0xFF)
		} else {
			return result, fmt.Errorf("unknown type: %d", t)
		}
	}

	result.Length = RelocationLength(h.Machine, result.Type)
	return result, nil
}

func (h *Header) writeRelocation(w io.Writer, t SectionHeaderType, input *Relocation) error {
	if h.Class == ELFCLASS64 {
		info := (uint64(input.SymbolIndex) << 32) | uint64(input.Type)
		if t == SHT_RELA {
			rel := rela64{Offset: input.Offset, Info: info, Addend: input.Addend}
			return binary.Write(w, h.ByteOrder(), &rel)
		} else {
			rel := rel64{Offset: input.Offset, Info: info}
			return binary.Write(w, h.ByteOrder(), &rel)
		}
	} else {
		info := (uint32(input.SymbolIndex) << 8) | (input.Type & 0xFF)
		if t == SHT_RELA {
			rel := rela32{Offset: uint32(input.Offset), Info: info, Addend: int32(input.Addend)}
			return binary.Write(w, h.ByteOrder(), &rel)
		} else {
			rel := rel32{Offset: uint32(input.Offset), Info: info}
			return binary.Write(w, h.ByteOrder(), &rel)
		}
	}
}
