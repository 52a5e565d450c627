// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bytes"
	"fmt"

	"github.com/antiagainst/fmp-integrity/region"
	"github.com/apex/log"
)

type AltInstructionTable struct {
	Records []RawAltInstruction
}

func (h *Header) readAltInstructionTable(sec *Section) (*AltInstructionTable, error) {
	size := altInstrSize
	if len(sec.Data)%size != 0 {
		return nil, fmt.Errorf("%w: %s: size %#x is not a multiple of %d", ErrStructure, sec.Name, len(sec.Data), size)
	}

	t := &AltInstructionTable{Records: make([]RawAltInstruction, 0, len(sec.Data)/size)}
	r := bytes.NewReader(sec.Data)
	for i := 0; i < len(sec.Data)/size; i++ {
		rec, err := h.readAltInstr(r)
		if err != nil {
			return nil, err
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

// fieldSlot is the resolved location of one relocated field of a record.
type fieldSlot struct {
	loc Location
	set bool
}

// placeRelocations maps every relocation applied to a table of fixed-size
// records onto (record, field offset) and hands it to assign. Whether the
// relocation source must be defined depends on the field.
func placeRelocations(relocs []ResolvedRelocation, recordSize int, count int, assign func(rec int, field int, rel ResolvedRelocation) error) error {
	for _, rel := range relocs {
		rec := int(rel.Offset / uint64(recordSize))
		field := int(rel.Offset % uint64(recordSize))
		if rec >= count {
			return fmt.Errorf("%w: relocation at %#x past the last record", ErrStructure, rel.Offset)
		}
		if err := assign(rec, field, rel); err != nil {
			return err
		}
	}
	return nil
}

func (s *fieldSlot) fill(rec int, name string, rel ResolvedRelocation) error {
	if !rel.Defined() {
		return fmt.Errorf("%w: record %d: %s relocated against an undefined symbol", ErrStructure, rec, name)
	}
	if s.set {
		return fmt.Errorf("%w: record %d: %s relocated twice", ErrStructure, rec, name)
	}
	s.loc = Location{Section: int(rel.Section), Offset: rel.SectionOffset}
	s.set = true
	return nil
}

// Resolve applies the relocations against the table and returns fully
// resolved records. Any record with an unresolved offset is an error.
func (t *AltInstructionTable) Resolve(relocs []ResolvedRelocation) ([]AltInstruction, error) {
	orig := make([]fieldSlot, len(t.Records))
	alt := make([]fieldSlot, len(t.Records))

	err := placeRelocations(relocs, altInstrSize, len(t.Records), func(rec int, field int, rel ResolvedRelocation) error {
		switch field {
		case altInstrOrigField:
			return orig[rec].fill(rec, "orig_offset", rel)
		case altInstrAltField:
			return alt[rec].fill(rec, "alt_offset", rel)
		default:
			return fmt.Errorf("%w: alt_instr record %d: relocation at field offset %d", ErrStructure, rec, field)
		}
	})
	if err != nil {
		return nil, err
	}

	result := make([]AltInstruction, 0, len(t.Records))
	for i, raw := range t.Records {
		if !orig[i].set || !alt[i].set {
			return nil, fmt.Errorf("%w: alt_instr record %d is not fully relocated", ErrStructure, i)
		}
		result = append(result, AltInstruction{
			Original:    orig[i].loc,
			Replacement: alt[i].loc,
			Feature:     raw.Feature,
			OrigLen:     raw.OrigLen,
			AltLen:      raw.AltLen,
		})
	}
	return result, nil
}

// AltInstructionGaps returns the original instruction ranges in section
// idx that are patched at runtime.
func AltInstructionGaps(records []AltInstruction, idx int) []region.Gap {
	gaps := make([]region.Gap, 0)
	for _, rec := range records {
		if rec.Original.Section == idx {
			gaps = append(gaps, region.Gap{Offset: rec.Original.Offset, Length: uint64(rec.OrigLen)})
		}
	}
	return gaps
}

func logAltInstructions(records []AltInstruction) {
	for i, rec := range records {
		log.WithFields(log.Fields{
			"orig":    fmt.Sprintf("%d:%#x", rec.Original.Section, rec.Original.Offset),
			"origLen": rec.OrigLen,
			"alt":     fmt.Sprintf("%d:%#x", rec.Replacement.Section, rec.Replacement.Offset),
			"altLen":  rec.AltLen,
			"feature": rec.Feature,
		}).Debugf("alt_instr %d", i)
	}
}
