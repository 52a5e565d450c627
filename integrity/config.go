// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package integrity

const (
	DefaultKey          = "The quick brown fox jumps over the lazy dog"
	DefaultPrefix       = "fips140"
	DefaultEmbedSection = ".rodata"

	// CFISuffix names the jump-table shadow that control-flow integrity
	// instrumentation emits for address-taken functions.
	CFISuffix = ".cfi_jt"
)

type Config struct {
	// Key seeds the HMAC.
	Key string
	// Prefix is prepended to every reserved symbol name.
	Prefix string
	// EmbedSection holds the reserved symbols.
	EmbedSection string
	// DumpDir, when set, receives one hex dump of the covered bytes per
	// anchor section.
	DumpDir string
}

func DefaultConfig() Config {
	return Config{
		Key:          DefaultKey,
		Prefix:       DefaultPrefix,
		EmbedSection: DefaultEmbedSection,
	}
}

func (c Config) AnchorOffsetSymbol() string { return c.Prefix + "_anchor_offset" }
func (c Config) SectionCountSymbol() string { return c.Prefix + "_sec_amount" }
func (c Config) ChunkTableSymbol() string   { return c.Prefix + "_chunks_info" }
func (c Config) ChunkCountSymbol() string   { return c.Prefix + "_chunk_amount" }
func (c Config) DigestSymbol() string       { return c.Prefix + "_builtime_hmac" }
