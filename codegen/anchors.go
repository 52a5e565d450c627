// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package codegen

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/antiagainst/fmp-integrity/elf"
	"github.com/antiagainst/fmp-integrity/integrity"
	"github.com/apex/log"
)

// Anchor is a target section, the symbol chosen to locate it, and the
// source file patched with its accessor.
type Anchor struct {
	Section string
	Symbol  string
	Source  string
}

// AnchorSet accumulates anchors across object files in discovery order.
// Its methods return new values and never modify the receiver.
type AnchorSet struct {
	anchors []Anchor
}

func (s AnchorSet) Len() int {
	return len(s.anchors)
}

func (s AnchorSet) Anchors() []Anchor {
	return slices.Clone(s.anchors)
}

// Handled reports whether section already has an anchor.
func (s AnchorSet) Handled(section string) bool {
	return slices.ContainsFunc(s.anchors, func(a Anchor) bool {
		return a.Section == section
	})
}

func (s AnchorSet) With(anchors ...Anchor) AnchorSet {
	next := AnchorSet{anchors: slices.Clone(s.anchors)}
	for _, a := range anchors {
		if !next.Handled(a.Section) {
			next.anchors = append(next.anchors, a)
		}
	}
	return next
}

// Pairs drops the source files, leaving the ordered list the provider
// consumes.
func (s AnchorSet) Pairs() []integrity.Anchor {
	pairs := make([]integrity.Anchor, 0, len(s.anchors))
	for _, a := range s.anchors {
		pairs = append(pairs, integrity.Anchor{Section: a.Section, Symbol: a.Symbol})
	}
	return pairs
}

func (c Config) isTarget(name string) bool {
	matched := false
	for _, t := range c.Targets {
		if strings.Contains(name, t) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, e := range c.Excluded {
		if strings.Contains(name, e) {
			return false
		}
	}
	return true
}

// TargetSections returns, in section table order, the sections of f that
// should be covered and are not yet anchored in set.
func (c Config) TargetSections(f *elf.File, set AnchorSet) []string {
	sections := make([]string, 0)
	for _, name := range f.SectionNames() {
		if !c.isTarget(name) || set.Handled(name) || slices.Contains(sections, name) {
			continue
		}
		if strings.Contains(name, "_") {
			// Accessor names map "." to "_"; the reader could not map
			// this name back.
			log.WithField("section", name).Warn("skipping section with an underscore in its name")
			continue
		}
		sections = append(sections, name)
	}
	log.WithField("sections", sections).Debug("target sections")
	return sections
}

func (c Config) isAnchorCandidate(sym *elf.Symbol) bool {
	if sym.Size <= c.MinSymbolSize || sym.Visibility != elf.STV_DEFAULT {
		return false
	}
	return (sym.Type == elf.STT_FUNC && sym.Binding == elf.STB_GLOBAL) || sym.Type == elf.STT_OBJECT
}

// TargetSymbols picks the first eligible symbol of every section. Sections
// without one are left out.
func (c Config) TargetSymbols(f *elf.File, sections []string) ([]Anchor, error) {
	anchors := make([]Anchor, 0, len(sections))
	for _, name := range sections {
		idx, _, err := f.SectionByName(name)
		if err != nil {
			return nil, err
		}
		for _, sym := range f.Symbols().Symbols() {
			if int(sym.SectionIndex) != idx || !c.isAnchorCandidate(&sym) {
				continue
			}
			anchors = append(anchors, Anchor{Section: name, Symbol: sym.Name})
			break
		}
	}
	log.WithField("anchors", anchors).Debug("chosen anchors")
	return anchors, nil
}

// Analyze chooses anchors for the sections of f not yet in set and
// attributes them to source.
func (c Config) Analyze(f *elf.File, source string, set AnchorSet) ([]Anchor, error) {
	anchors, err := c.TargetSymbols(f, c.TargetSections(f, set))
	if err != nil {
		return nil, err
	}
	for i := range anchors {
		anchors[i].Source = source
	}
	return anchors, nil
}

var objectNameRegex = regexp.MustCompile(`^(.*)elf_(.*)\.o$`)

// SourceForObject maps "dir/elf_name.o" to "dir/fipsed_name.c".
func (c Config) SourceForObject(object string) (string, error) {
	re := objectNameRegex
	if c.ObjectPrefix != "elf_" {
		re = regexp.MustCompile(`^(.*)` + regexp.QuoteMeta(c.ObjectPrefix) + `(.*)\.o$`)
	}
	m := re.FindStringSubmatch(object)
	if m == nil {
		return "", fmt.Errorf("object %s does not follow the %s<name>.o convention", object, c.ObjectPrefix)
	}
	return filepath.Join(m[1], c.SourcePrefix+m[2]+".c"), nil
}

// Process analyzes one object, appends accessors for its new anchors to
// the matching source file and returns the grown set.
func (c Config) Process(object string, set AnchorSet) (AnchorSet, error) {
	source, err := c.SourceForObject(object)
	if err != nil {
		return set, err
	}
	if _, err := os.Stat(source); err != nil {
		return set, fmt.Errorf("source to patch for %s: %w", object, err)
	}

	f, err := elf.Load(object)
	if err != nil {
		return set, fmt.Errorf("%s: %w", object, err)
	}
	anchors, err := c.Analyze(f, source, set)
	if err != nil {
		return set, fmt.Errorf("%s: %w", object, err)
	}
	if err := c.PatchSource(source, anchors); err != nil {
		return set, err
	}
	return set.With(anchors...), nil
}
