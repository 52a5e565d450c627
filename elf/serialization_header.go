// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"encoding/binary"
	"fmt"
	"io"
)

const identSize = 16

type elfHeader32 struct {
	Type             uint16
	Machine          uint16
	Version          uint32
	Entry            uint32
	ProgHdrOff       uint32
	SecHdrOff        uint32
	Flags            uint32
	HeaderSize       uint16
	ProgHdrEntrySize uint16
	ProgHdrCount     uint16
	SecHdrEntrySize  uint16
	SecHdrCount      uint16
	SecHdrStrIndex   uint16
}

type elfHeader64 struct {
	Type             uint16
	Machine          uint16
	Version          uint32
	Entry            uint64
	ProgHdrOff       uint64
	SecHdrOff        uint64
	Flags            uint32
	HeaderSize       uint16
	ProgHdrEntrySize uint16
	ProgHdrCount     uint16
	SecHdrEntrySize  uint16
	SecHdrCount      uint16
	SecHdrStrIndex   uint16
}

func (h *Header) ByteOrder() binary.ByteOrder {
	if h.Endian == ELFDATA2MSB {
		return binary.BigEndian
	} else {
		return binary.LittleEndian
	}
}

func (h *Header) sizeElfHeader() int {
	if h.Class == ELFCLASS64 {
		return binary.Size(&elfHeader64{}) + identSize
	} else {
		return binary.Size(&elfHeader32{}) + identSize
	}
}

func (h *Header) readElfHeader(r io.Reader) error {
	ident := make([]byte, identSize)

	if _, err := io.ReadFull(r, ident); err != nil {
		return fmt.Errorf("%w: short header: %v", ErrStructure, err)
	}

	if ident[0] != 0x7F || ident[1] != 0x45 || ident[2] != 0x4C || ident[3] != 0x46 {
		return fmt.Errorf("%w: invalid magic", ErrStructure)
	}

	h.Class = FileClass(ident[4])
	h.Endian = FileEndian(ident[5])
	h.HeaderVersion = ident[6]
	h.ABI = FileABI(ident[7])
	h.ABIVersion = ident[8]

	if h.Endian != ELFDATA2LSB && h.Endian != ELFDATA2MSB {
		return fmt.Errorf("%w: invalid data encoding: %d", ErrStructure, h.Endian)
	}

	if h.Class == ELFCLASS64 {
		var fh elfHeader64
		if err := binary.Read(r, h.ByteOrder(), &fh); err != nil {
			return fmt.Errorf("%w: short header: %v", ErrStructure, err)
		}

		h.Type = FileType(fh.Type)
		h.Machine = MachineType(fh.Machine)
		h.Version = fh.Version
		h.Entry = fh.Entry
		h.ProgHdrOffset = fh.ProgHdrOff
		h.SecHdrOffset = fh.SecHdrOff
		h.Flags = fh.Flags
		h.HeaderSize = fh.HeaderSize
		h.ProgHdrEntrySize = fh.ProgHdrEntrySize
		h.ProgHdrCount = fh.ProgHdrCount
		h.SecHdrEntrySize = fh.SecHdrEntrySize
		h.SecHdrCount = fh.SecHdrCount
		h.SecHdrStrIdx = fh.SecHdrStrIndex
	} else if h.Class == ELFCLASS32 {
		var fh elfHeader32
		if err := binary.Read(r, h.ByteOrder(), &fh); err != nil {
			return fmt.Errorf("%w: short header: %v", ErrStructure, err)
		}

		h.Type = FileType(fh.Type)
		h.Machine = MachineType(fh.Machine)
		h.Version = fh.Version
		h.Entry = uint64(fh.Entry)
		h.ProgHdrOffset = uint64(fh.ProgHdrOff)
		h.SecHdrOffset = uint64(fh.SecHdrOff)
		h.Flags = fh.Flags
		h.HeaderSize = fh.HeaderSize
		h.ProgHdrEntrySize = fh.ProgHdrEntrySize
		h.ProgHdrCount = fh.ProgHdrCount
		h.SecHdrEntrySize = fh.SecHdrEntrySize
		h.SecHdrCount = fh.SecHdrCount
		h.SecHdrStrIdx = fh.SecHdrStrIndex
	} else {
		return fmt.Errorf("%w: invalid class: %d", ErrStructure, h.Class)
	}

	if h.SecHdrStrIdx == SHN_XINDEX {
		return fmt.Errorf("%w: extended section indices are not supported", ErrStructure)
	}

	return nil
}

func (h *Header) writeElfHeader(w io.Writer) error {
	ident := make([]byte, identSize)

	ident[0] = 0x7F
	ident[1] = 0x45
	ident[2] = 0x4C
	ident[3] = 0x46

	ident[4] = uint8(h.Class)
	ident[5] = uint8(h.Endian)
	ident[6] = uint8(h.HeaderVersion)
	ident[7] = uint8(h.ABI)
	ident[8] = uint8(h.ABIVersion)

	if _, err := w.Write(ident); err != nil {
		return err
	}

	if h.Class == ELFCLASS64 {
		var fh elfHeader64

		fh.Type = uint16(h.Type)
		fh.Machine = uint16(h.Machine)
		fh.Version = h.Version
		fh.Entry = h.Entry
		fh.ProgHdrOff = h.ProgHdrOffset
		fh.SecHdrOff = h.SecHdrOffset
		fh.Flags = h.Flags
		fh.HeaderSize = h.HeaderSize
		fh.ProgHdrEntrySize = h.ProgHdrEntrySize
		fh.ProgHdrCount = h.ProgHdrCount
		fh.SecHdrEntrySize = h.SecHdrEntrySize
		fh.SecHdrCount = h.SecHdrCount
		fh.SecHdrStrIndex = h.SecHdrStrIdx

		return binary.Write(w, h.ByteOrder(), &fh)
	} else {
		var fh elfHeader32

		fh.Type = uint16(h.Type)
		fh.Machine = uint16(h.Machine)
		fh.Version = h.Version
		fh.Entry = uint32(h.Entry)
		fh.ProgHdrOff = uint32(h.ProgHdrOffset)
		fh.SecHdrOff = uint32(h.SecHdrOffset)
		fh.Flags = h.Flags
		fh.HeaderSize = h.HeaderSize
		fh.ProgHdrEntrySize = h.ProgHdrEntrySize
		fh.ProgHdrCount = h.ProgHdrCount
		fh.SecHdrEntrySize = h.SecHdrEntrySize
		fh.SecHdrCount = h.SecHdrCount
		fh.SecHdrStrIndex = h.SecHdrStrIdx

		return binary.Write(w, h.ByteOrder(), &fh)
	}
}
