// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package codegen

import "github.com/antiagainst/fmp-integrity/integrity"

type Config struct {
	// A section is a target if its name contains one of Targets and none
	// of Excluded.
	Targets  []string
	Excluded []string

	// Prefix names the reserved symbols and the anchor getter.
	Prefix string
	// FunctionPrefix names the generated per-section address accessors.
	FunctionPrefix string
	// Anchor symbols must be strictly larger than MinSymbolSize bytes.
	MinSymbolSize uint64

	// ObjectPrefix and SourcePrefix map "dir/elf_x.o" to "dir/fipsed_x.c".
	ObjectPrefix string
	SourcePrefix string

	EmbedSection string
	DigestSize   int
	MaxChunks    int
	MaxSections  int
}

func DefaultConfig() Config {
	return Config{
		Targets:        []string{".text", ".rodata"},
		Excluded:       []string{".plt", ".rela", ".debug", "cfi", "ftrace", ".init", ".exit"},
		Prefix:         integrity.DefaultPrefix,
		FunctionPrefix: "ret_addr",
		MinSymbolSize:  4,
		ObjectPrefix:   "elf_",
		SourcePrefix:   "fipsed_",
		EmbedSection:   integrity.DefaultEmbedSection,
		DigestSize:     32,
		MaxChunks:      2048,
		MaxSections:    48,
	}
}

// Integrity returns the provider configuration matching the reserved
// symbols this generator emits.
func (c Config) Integrity() integrity.Config {
	cfg := integrity.DefaultConfig()
	cfg.Prefix = c.Prefix
	cfg.EmbedSection = c.EmbedSection
	return cfg
}
