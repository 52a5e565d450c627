// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package integrity

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/antiagainst/fmp-integrity/elf"
)

// ErrAmbiguous reports a symbol whose renamed variants cannot be told apart.
var ErrAmbiguous = errors.New("ambiguous symbol")

// Resolver maps an anchor symbol name onto the symbol actually present in
// the linked module.
type Resolver struct {
	symbols *elf.SymbolTable
}

func NewResolver(symbols *elf.SymbolTable) *Resolver {
	return &Resolver{symbols: symbols}
}

func (r *Resolver) prefixed(name string) []string {
	return r.symbols.Match(regexp.MustCompile("^" + regexp.QuoteMeta(name)))
}

// Substitute returns name itself when it is the only symbol starting with
// name. A function that shares its prefix with other symbols resolves to
// its unique CFI jump-table shadow instead. Anything else is an error.
func (r *Resolver) Substitute(name string) (string, error) {
	matches := r.prefixed(name)
	if len(matches) == 0 {
		return "", fmt.Errorf("anchor symbol %q: %w", name, elf.ErrNotFound)
	}
	if matches[0] != name {
		return "", fmt.Errorf("%w: %q only matches renamed symbols %v", ErrAmbiguous, name, matches)
	}
	if len(matches) == 1 {
		return name, nil
	}

	sym, err := r.symbols.Lookup(name)
	if err != nil {
		return "", err
	}
	if sym.Type != elf.STT_FUNC {
		return "", fmt.Errorf("%w: %q is shared by %d symbols", ErrAmbiguous, name, len(matches))
	}

	shadow := name + CFISuffix
	candidates := r.prefixed(shadow)
	if len(candidates) != 1 || candidates[0] != shadow {
		return "", fmt.Errorf("%w: no unique CFI shadow for %q (found %v)", ErrAmbiguous, name, candidates)
	}
	return shadow, nil
}
