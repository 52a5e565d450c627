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

type JumpLabelTable struct {
	Records []RawJumpLabel
}

func (h *Header) readJumpLabelTable(sec *Section) (*JumpLabelTable, error) {
	size := jumpLabelSize
	if len(sec.Data)%size != 0 {
		return nil, fmt.Errorf("%w: %s: size %#x is not a multiple of %d", ErrStructure, sec.Name, len(sec.Data), size)
	}

	t := &JumpLabelTable{Records: make([]RawJumpLabel, 0, len(sec.Data)/size)}
	r := bytes.NewReader(sec.Data)
	for i := 0; i < len(sec.Data)/size; i++ {
		rec, err := h.readJumpLabel(r)
		if err != nil {
			return nil, err
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

// Resolve applies the relocations against the table. Relocations of the
// key field point at static keys, not code, and are ignored even when the
// key lives outside the module.
func (t *JumpLabelTable) Resolve(relocs []ResolvedRelocation) ([]JumpLabel, error) {
	code := make([]fieldSlot, len(t.Records))
	target := make([]fieldSlot, len(t.Records))

	err := placeRelocations(relocs, jumpLabelSize, len(t.Records), func(rec int, field int, rel ResolvedRelocation) error {
		switch field {
		case jumpLabelCodeField:
			return code[rec].fill(rec, "code", rel)
		case jumpLabelTargetField:
			return target[rec].fill(rec, "target", rel)
		case jumpLabelKeyField:
			return nil
		default:
			return fmt.Errorf("%w: jump_entry record %d: relocation at field offset %d", ErrStructure, rec, field)
		}
	})
	if err != nil {
		return nil, err
	}

	result := make([]JumpLabel, 0, len(t.Records))
	for i, raw := range t.Records {
		if !code[i].set || !target[i].set {
			return nil, fmt.Errorf("%w: jump_entry record %d is not fully relocated", ErrStructure, i)
		}
		result = append(result, JumpLabel{
			Code:   code[i].loc,
			Target: target[i].loc,
			Key:    raw.Key,
		})
	}
	return result, nil
}

// JumpLabelGaps returns the patched instruction of every jump label site
// in section idx.
func JumpLabelGaps(records []JumpLabel, idx int) []region.Gap {
	gaps := make([]region.Gap, 0)
	for _, rec := range records {
		if rec.Code.Section == idx {
			gaps = append(gaps, region.Gap{Offset: rec.Code.Offset, Length: JumpInstructionLength})
		}
	}
	return gaps
}

func logJumpLabels(records []JumpLabel) {
	for i, rec := range records {
		log.WithFields(log.Fields{
			"code":   fmt.Sprintf("%d:%#x", rec.Code.Section, rec.Code.Offset),
			"target": fmt.Sprintf("%d:%#x", rec.Target.Section, rec.Target.Offset),
			"key":    rec.Key,
		}).Debugf("jump_entry %d", i)
	}
}
