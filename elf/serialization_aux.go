// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"encoding/binary"
	"fmt"
	"io"
)

// RawAltInstruction is struct alt_instr as stored in .altinstructions.
// The offsets are placeholders until relocations against the table are
// applied.
type RawAltInstruction struct {
	OrigOffset int32
	AltOffset  int32
	Feature    uint16
	OrigLen    uint8
	AltLen     uint8
}

// RawJumpLabel is struct jump_entry as stored in __jump_table.
type RawJumpLabel struct {
	Code   int32
	Target int32
	Key    int64
}

// Field offsets inside the raw records that relocations may target.
const (
	altInstrOrigField    = 0
	altInstrAltField     = 4
	jumpLabelCodeField   = 0
	jumpLabelTargetField = 4
	jumpLabelKeyField    = 8
)

var (
	altInstrSize  = binary.Size(&RawAltInstruction{})
	jumpLabelSize = binary.Size(&RawJumpLabel{})
)

func (h *Header) readAltInstr(r io.Reader) (RawAltInstruction, error) {
	var rec RawAltInstruction
	if err := binary.Read(r, h.ByteOrder(), &rec); err != nil {
		return rec, fmt.Errorf("%w: short alt_instr record: %v", ErrStructure, err)
	}
	return rec, nil
}

func (h *Header) readJumpLabel(r io.Reader) (RawJumpLabel, error) {
	var rec RawJumpLabel
	if err := binary.Read(r, h.ByteOrder(), &rec); err != nil {
		return rec, fmt.Errorf("%w: short jump_entry record: %v", ErrStructure, err)
	}
	return rec, nil
}

func (h *Header) writeAltInstr(w io.Writer, rec *RawAltInstruction) error {
	return binary.Write(w, h.ByteOrder(), rec)
}

func (h *Header) writeJumpLabel(w io.Writer, rec *RawJumpLabel) error {
	return binary.Write(w, h.ByteOrder(), rec)
}
