// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bytes"
	"fmt"

	"github.com/apex/log"
)

// Open parses the object file at path. Writes through the returned File are
// mirrored to path.
func Open(path string) (*File, error) {
	img, err := OpenImage(path)
	if err != nil {
		return nil, err
	}
	return NewFile(img)
}

// Load parses the object file at path for inspection; writes are not
// persisted.
func Load(path string) (*File, error) {
	img, err := ReadImage(path)
	if err != nil {
		return nil, err
	}
	return NewFile(img)
}

// Parse parses an in-memory object file.
func Parse(data []byte) (*File, error) {
	return NewFile(NewImage(data, nil))
}

func NewFile(img *Image) (*File, error) {
	f := &File{image: img}
	data := img.Bytes()

	// Read main header
	if err := f.readElfHeader(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	// Read section headers
	if err := f.readSectionTable(); err != nil {
		return nil, err
	}
	log.WithField("sections", len(f.Sections)).Debug("section headers")

	if err := f.findSectionNames(); err != nil {
		return nil, err
	}

	// Decode payloads; the symbol table first, relocations depend on it.
	if err := f.populateSections(); err != nil {
		return nil, err
	}

	if err := f.resolveAuxiliaryTables(); err != nil {
		return nil, err
	}

	return f, nil
}

func (f *File) readSectionTable() error {
	data := f.image.Bytes()
	if f.SecHdrCount == 0 {
		return fmt.Errorf("%w: no section headers", ErrStructure)
	}
	if int(f.SecHdrEntrySize) != f.sizeSectionHeader() {
		return fmt.Errorf("%w: section header entry size %d, expected %d", ErrStructure, f.SecHdrEntrySize, f.sizeSectionHeader())
	}
	if _, err := f.image.slice(f.SecHdrOffset, uint64(f.SecHdrCount)*uint64(f.SecHdrEntrySize)); err != nil {
		return fmt.Errorf("section header table: %w", err)
	}

	r := bytes.NewReader(data[f.SecHdrOffset:])
	for i := 0; i < int(f.SecHdrCount); i++ {
		sec, err := f.readSectionHeader(r)
		if err != nil {
			return err
		}
		if sec.Type.HasDataInFile() && sec.Size > 0 {
			if sec.Data, err = f.image.slice(sec.Offset, sec.Size); err != nil {
				return fmt.Errorf("section %d: %w", i, err)
			}
		}
		f.Sections = append(f.Sections, sec)
	}
	return nil
}

// findSectionNames locates the section name string table by content: the
// only SHT_STRTAB section holding ".shstrtab" exactly once.
func (f *File) findSectionNames() error {
	needle := append([]byte(SectionNameShstrtab), 0)
	found := -1
	for i, sec := range f.Sections {
		if sec.Type != SHT_STRTAB {
			continue
		}
		matches := findPattern(sec.Data, needle)
		if len(matches) == 0 {
			continue
		}
		if len(matches) > 1 || found >= 0 {
			return fmt.Errorf("%w: section name string table is ambiguous", ErrStructure)
		}
		found = i
	}
	if found < 0 {
		return fmt.Errorf("%w: section name string table not found", ErrStructure)
	}
	if found != int(f.SecHdrStrIdx) {
		log.WithFields(log.Fields{
			"header": f.SecHdrStrIdx,
			"found":  found,
		}).Warn("section name string table index disagrees with header")
	}

	f.shstrIdx = found
	pool := f.Sections[found].Data
	for i, sec := range f.Sections {
		name, err := readString(pool, sec.nameOffset)
		if err != nil {
			return fmt.Errorf("section %d name: %w", i, err)
		}
		sec.Name = name
	}
	return nil
}

func (f *File) populateSections() error {
	f.symtab = newSymbolTable()
	symtabIdx := -1

	for i, sec := range f.Sections {
		if sec.Type != SHT_SYMTAB {
			continue
		}
		if symtabIdx >= 0 {
			return fmt.Errorf("%w: more than one symbol table", ErrStructure)
		}
		if int(sec.Link) >= len(f.Sections) {
			return fmt.Errorf("%w: %s links to section %d", ErrStructure, sec.Name, sec.Link)
		}
		symtab, err := f.readSymbolTable(sec, f.Sections[sec.Link].Data)
		if err != nil {
			return err
		}
		sec.Payload = symtab
		f.symtab = symtab
		symtabIdx = i
	}
	f.symtab.logContent()

	for _, sec := range f.Sections {
		if sec.Payload != nil {
			continue
		}

		var err error
		switch {
		case sec.Type.IsRelocation():
			if int(sec.Info) >= len(f.Sections) {
				return fmt.Errorf("%w: %s applies to section %d", ErrStructure, sec.Name, sec.Info)
			}
			sec.Payload, err = f.readRelocationTable(sec)
		case sec.Name == SectionNameAltInstructions:
			sec.Payload, err = f.readAltInstructionTable(sec)
		case sec.Name == SectionNameJumpTable:
			sec.Payload, err = f.readJumpLabelTable(sec)
		default:
			sec.Payload = &Opaque{data: sec.Data}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// relocationsFor resolves every relocation applied to section idx.
func (f *File) relocationsFor(idx int) ([]ResolvedRelocation, error) {
	result := make([]ResolvedRelocation, 0)
	for _, sec := range f.Sections {
		t, ok := sec.Payload.(*RelocationTable)
		if !ok || t.Target != idx {
			continue
		}
		resolved, err := t.Resolve(f.symtab, f.Sections)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sec.Name, err)
		}
		result = append(result, resolved...)
	}
	return result, nil
}

func (f *File) resolveAuxiliaryTables() error {
	for i, sec := range f.Sections {
		switch t := sec.Payload.(type) {
		case *AltInstructionTable:
			relocs, err := f.relocationsFor(i)
			if err != nil {
				return err
			}
			records, err := t.Resolve(relocs)
			if err != nil {
				return fmt.Errorf("%s: %w", sec.Name, err)
			}
			f.AltInstructions = append(f.AltInstructions, records...)
			logAltInstructions(records)
		case *JumpLabelTable:
			relocs, err := f.relocationsFor(i)
			if err != nil {
				return err
			}
			records, err := t.Resolve(relocs)
			if err != nil {
				return fmt.Errorf("%s: %w", sec.Name, err)
			}
			f.JumpLabels = append(f.JumpLabels, records...)
			logJumpLabels(records)
		}
	}
	return nil
}
