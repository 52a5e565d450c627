// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/antiagainst/fmp-integrity/elf"
	"github.com/antiagainst/fmp-integrity/region"
	"github.com/apex/log"
)

// Anchor pairs a covered section with the symbol a verifier uses to find
// it at load time.
type Anchor struct {
	Section string
	Symbol  string
}

// Chunk is one covered area of the anchor section at position Section in
// the anchor list. Start and End are inclusive.
type Chunk struct {
	Section int
	Start   uint64
	End     uint64
}

const chunkSize = 3 * 4

// Provider computes and embeds the build-time integrity data of one module.
type Provider struct {
	file     *elf.File
	cfg      Config
	anchors  []Anchor
	resolver *Resolver
	regions  map[string]*region.Region
}

// NewProvider collects the gaps of every anchor section and excludes the
// digest symbol's own storage from the embedding section.
func NewProvider(f *elf.File, anchors []Anchor, cfg Config) (*Provider, error) {
	p := &Provider{
		file:     f,
		cfg:      cfg,
		anchors:  anchors,
		resolver: NewResolver(f.Symbols()),
		regions:  make(map[string]*region.Region, len(anchors)),
	}

	for _, a := range anchors {
		if _, ok := p.regions[a.Section]; ok {
			return nil, fmt.Errorf("%w: section %s anchored twice", elf.ErrStructure, a.Section)
		}
		idx, sec, err := f.SectionByName(a.Section)
		if err != nil {
			return nil, err
		}
		if !sec.Type.HasDataInFile() {
			return nil, fmt.Errorf("%w: anchor section %s has no file data", elf.ErrStructure, a.Section)
		}
		r := region.NewRegion(sec.Size)
		for _, g := range f.RelocationGaps(idx) {
			r.Insert(g)
		}
		for _, g := range f.AltInstructionGaps(idx) {
			r.Insert(g)
		}
		for _, g := range f.JumpLabelGaps(idx) {
			r.Insert(g)
		}
		p.regions[a.Section] = r
		fields := log.Fields{
			"section": a.Section,
			"size":    r.Size(),
			"gaps":    len(r.Gaps()),
		}
		if covered, err := r.Covered(); err == nil {
			fields["covered"] = covered
		}
		log.WithFields(fields).Debug("collected gaps")
	}

	digestSym, err := f.Symbols().Lookup(cfg.DigestSymbol())
	if err != nil {
		return nil, err
	}
	digestOffset, err := f.SymbolOffset(cfg.DigestSymbol())
	if err != nil {
		return nil, err
	}
	_, owner, err := f.SymbolOwner(cfg.DigestSymbol())
	if err != nil {
		return nil, err
	}
	if owner.Name != cfg.EmbedSection {
		return nil, fmt.Errorf("%w: %s lives in %s, not %s", elf.ErrStructure, cfg.DigestSymbol(), owner.Name, cfg.EmbedSection)
	}
	r, ok := p.regions[cfg.EmbedSection]
	if !ok {
		r = region.NewRegion(owner.Size)
		p.regions[cfg.EmbedSection] = r
	}
	r.Insert(region.Gap{Offset: digestOffset, Length: digestSym.Size})

	return p, nil
}

// Gaps returns the sorted gaps of the named section, or nil if the section
// is neither anchored nor the embedding section.
func (p *Provider) Gaps(section string) []region.Gap {
	if r, ok := p.regions[section]; ok {
		return r.Gaps()
	}
	return nil
}

func (p *Provider) Anchors() []Anchor {
	return p.anchors
}

// Chunks returns the covered areas of every anchor section, in anchor
// order and then area order.
func (p *Provider) Chunks() ([]Chunk, error) {
	chunks := make([]Chunk, 0)
	for i, a := range p.anchors {
		areas, err := p.regions[a.Section].Areas()
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", a.Section, err)
		}
		for _, area := range areas {
			chunks = append(chunks, Chunk{Section: i, Start: area.Start, End: area.End})
		}
	}
	return chunks, nil
}

// Digest computes the HMAC-SHA256 over the covered bytes of every anchor
// section. With DumpDir set, the covered bytes of each section are also
// written there as a hex dump.
func (p *Provider) Digest() ([]byte, error) {
	mac := hmac.New(sha256.New, []byte(p.cfg.Key))

	for _, a := range p.anchors {
		_, sec, err := p.file.SectionByName(a.Section)
		if err != nil {
			return nil, err
		}
		areas, err := p.regions[a.Section].Areas()
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", a.Section, err)
		}

		var w io.Writer = mac
		var dump io.WriteCloser
		if p.cfg.DumpDir != "" {
			if dump, err = p.createDump(a.Section); err != nil {
				return nil, err
			}
			w = io.MultiWriter(mac, dump)
		}

		for _, area := range areas {
			if _, err := w.Write(sec.Data[area.Start : area.End+1]); err != nil {
				if dump != nil {
					dump.Close()
				}
				return nil, err
			}
		}
		if dump != nil {
			if err := dump.Close(); err != nil {
				return nil, err
			}
		}
	}

	sum := mac.Sum(nil)
	log.WithField("hmac", hex.EncodeToString(sum)).Info("build-time digest")
	return sum, nil
}

// hexDump closes both the dumper and the file it writes to.
type hexDump struct {
	io.WriteCloser
	file *os.File
}

func (d hexDump) Close() error {
	if err := d.WriteCloser.Close(); err != nil {
		d.file.Close()
		return err
	}
	return d.file.Close()
}

func (p *Provider) createDump(section string) (io.WriteCloser, error) {
	file, err := os.Create(filepath.Join(p.cfg.DumpDir, "hmac_chunks_dump_"+section))
	if err != nil {
		return nil, err
	}
	return hexDump{WriteCloser: hex.Dumper(file), file: file}, nil
}

func appendUint32(buf []byte, name string, v uint64) ([]byte, error) {
	if v > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %s %#x does not fit 32 bits", elf.ErrStructure, name, v)
	}
	return binary.LittleEndian.AppendUint32(buf, uint32(v)), nil
}

func (p *Provider) write(symbol string, data []byte) error {
	if err := p.file.WriteSymbol(symbol, data); err != nil {
		return fmt.Errorf("embed %s: %w", symbol, err)
	}
	log.WithFields(log.Fields{
		"symbol": symbol,
		"bytes":  len(data),
	}).Debug("embedded")
	return nil
}

// EmbedChunks writes the chunk table and the chunk count.
func (p *Provider) EmbedChunks(chunks []Chunk) error {
	table := make([]byte, 0, len(chunks)*chunkSize)
	var err error
	for _, c := range chunks {
		if table, err = appendUint32(table, "chunk section", uint64(c.Section)); err != nil {
			return err
		}
		if table, err = appendUint32(table, "chunk start", c.Start); err != nil {
			return err
		}
		if table, err = appendUint32(table, "chunk end", c.End); err != nil {
			return err
		}
	}
	if err := p.write(p.cfg.ChunkTableSymbol(), table); err != nil {
		return err
	}

	count, err := appendUint32(nil, "chunk count", uint64(len(chunks)))
	if err != nil {
		return err
	}
	return p.write(p.cfg.ChunkCountSymbol(), count)
}

// EmbedAnchorOffsets writes the in-section offset of every anchor symbol,
// after CFI substitution, in anchor order.
func (p *Provider) EmbedAnchorOffsets() error {
	offsets := make([]byte, 0, len(p.anchors)*4)
	for _, a := range p.anchors {
		name, err := p.resolver.Substitute(a.Symbol)
		if err != nil {
			return err
		}
		offset, err := p.file.SymbolOffset(name)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"symbol": name,
			"offset": fmt.Sprintf("%#x", offset),
		}).Debug("anchor")
		if offsets, err = appendUint32(offsets, "anchor offset", offset); err != nil {
			return err
		}
	}
	return p.write(p.cfg.AnchorOffsetSymbol(), offsets)
}

func (p *Provider) EmbedSectionCount() error {
	count, err := appendUint32(nil, "section count", uint64(len(p.anchors)))
	if err != nil {
		return err
	}
	return p.write(p.cfg.SectionCountSymbol(), count)
}

func (p *Provider) EmbedDigest(digest []byte) error {
	return p.write(p.cfg.DigestSymbol(), digest)
}

// Run embeds the chunk table, the anchor offsets and the section count,
// then computes and embeds the digest over the result.
func (p *Provider) Run() ([]byte, error) {
	chunks, err := p.Chunks()
	if err != nil {
		return nil, err
	}
	if err := p.EmbedChunks(chunks); err != nil {
		return nil, err
	}
	if err := p.EmbedAnchorOffsets(); err != nil {
		return nil, err
	}
	if err := p.EmbedSectionCount(); err != nil {
		return nil, err
	}
	digest, err := p.Digest()
	if err != nil {
		return nil, err
	}
	if err := p.EmbedDigest(digest); err != nil {
		return nil, err
	}
	return digest, nil
}
