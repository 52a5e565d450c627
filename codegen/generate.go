// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package codegen

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/antiagainst/fmp-integrity/integrity"
	"github.com/apex/log"
)

// ErrNoAnchors reports a support file without accessor declarations.
var ErrNoAnchors = errors.New("no section/symbol pairs found")

// FunctionName returns the accessor returning the anchor address of
// section.
func (c Config) FunctionName(section string) string {
	return c.FunctionPrefix + strings.ReplaceAll(section, ".", "_")
}

func (c Config) getterName() string {
	return c.Prefix + "_get_anchor_addr"
}

// PatchText is the C appended to a source file to expose its anchors.
func (c Config) PatchText(anchors []Anchor) string {
	var sb strings.Builder
	for _, a := range anchors {
		sb.WriteString("\n")
		sb.WriteString("/* Here and below auto-generated part */\n")
		sb.WriteString("#pragma clang optimize off \n")
		fmt.Fprintf(&sb, "void *%s(void)\n", c.FunctionName(a.Section))
		sb.WriteString("{\n")
		fmt.Fprintf(&sb, " \treturn (void*)&%s;\n", a.Symbol)
		sb.WriteString("}\n")
		sb.WriteString("#pragma clang optimize on \n")
		sb.WriteString("\n")
	}
	return sb.String()
}

func (c Config) PatchSource(path string, anchors []Anchor) error {
	if len(anchors) == 0 {
		return nil
	}
	for _, a := range anchors {
		log.WithFields(log.Fields{
			"source":  filepath.Base(path),
			"section": a.Section,
			"symbol":  a.Symbol,
		}).Info("patching source")
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(c.PatchText(anchors)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SupportSource is the C translation unit holding the anchor getter and
// the reserved symbols, which include headerName.
func (c Config) SupportSource(set AnchorSet, headerName string) string {
	var sb strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&sb, format, args...)
		sb.WriteString("\n")
	}

	line(`#include "stdint.h"`)
	line(`#include "%s"`, headerName)
	line("")
	line("#pragma clang optimize off")
	line("")
	line("#define FIPS_HMAC_SIZE %d", c.DigestSize)
	line("#define FIPS_CHUNKS_MAX_AMOUNT %d", c.MaxChunks)
	line("#define FIPS_SECTIONS_MAX_AMOUNT %d", c.MaxSections)
	line("#define FIPS_ANCHOR_SYMS_OFFS_MAX_AMOUNT FIPS_SECTIONS_MAX_AMOUNT")
	line("")
	for _, a := range set.anchors {
		line("extern void *%s(void); // %s", c.FunctionName(a.Section), a.Symbol)
	}
	line("")
	line("void *%s(uint32_t i)", c.getterName())
	line("{")
	line("\tswitch(i) {")
	for i, a := range set.anchors {
		line("\tcase %d: return (void *)%s();", i, c.FunctionName(a.Section))
	}
	line("\tdefault: return (void*)0;")
	line("\t};")
	line("}")
	line("")

	icfg := c.Integrity()
	attr := fmt.Sprintf(`__attribute__ ((section("%s"), unused))`, c.EmbedSection)
	for _, decl := range []string{
		fmt.Sprintf("uint32_t %s[FIPS_SECTIONS_MAX_AMOUNT];", icfg.AnchorOffsetSymbol()),
		fmt.Sprintf("uint32_t %s;", icfg.SectionCountSymbol()),
		fmt.Sprintf("struct chunks_info %s[FIPS_CHUNKS_MAX_AMOUNT];", icfg.ChunkTableSymbol()),
		fmt.Sprintf("uint32_t %s;", icfg.ChunkCountSymbol()),
		fmt.Sprintf("uint8_t %s[FIPS_HMAC_SIZE];", icfg.DigestSymbol()),
	} {
		line(attr)
		line(decl)
		line("")
	}
	line("#pragma clang optimize on")
	line("")
	return sb.String()
}

// SupportHeader declares what SupportSource defines.
func (c Config) SupportHeader(headerName string) string {
	guard := strings.ToUpper(regexp.MustCompile(`[^A-Za-z0-9]`).ReplaceAllString(headerName, "_"))
	icfg := c.Integrity()

	var sb strings.Builder
	fmt.Fprintf(&sb, "#ifndef %s\n#define %s\n\n", guard, guard)
	sb.WriteString("#include \"stdint.h\"\n\n")
	sb.WriteString("struct chunks_info {\n")
	sb.WriteString("\tuint32_t section;\n")
	sb.WriteString("\tuint32_t start;\n")
	sb.WriteString("\tuint32_t end;\n")
	sb.WriteString("};\n\n")
	fmt.Fprintf(&sb, "void *%s(uint32_t i);\n\n", c.getterName())
	fmt.Fprintf(&sb, "extern uint32_t %s[];\n", icfg.AnchorOffsetSymbol())
	fmt.Fprintf(&sb, "extern uint32_t %s;\n", icfg.SectionCountSymbol())
	fmt.Fprintf(&sb, "extern struct chunks_info %s[];\n", icfg.ChunkTableSymbol())
	fmt.Fprintf(&sb, "extern uint32_t %s;\n", icfg.ChunkCountSymbol())
	fmt.Fprintf(&sb, "extern uint8_t %s[];\n\n", icfg.DigestSymbol())
	fmt.Fprintf(&sb, "#endif /* %s */\n", guard)
	return sb.String()
}

// WriteSupportFiles writes the support source and its header.
func (c Config) WriteSupportFiles(sourcePath string, headerPath string, set AnchorSet) error {
	if set.Len() > c.MaxSections {
		return fmt.Errorf("%d anchored sections exceed the limit of %d", set.Len(), c.MaxSections)
	}
	headerName := filepath.Base(headerPath)
	if err := os.WriteFile(sourcePath, []byte(c.SupportSource(set, headerName)), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(headerPath, []byte(c.SupportHeader(headerName)), 0o644); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"source":  sourcePath,
		"header":  headerPath,
		"anchors": set.Len(),
	}).Info("wrote support files")
	return nil
}

func (c Config) declarationRegex() *regexp.Regexp {
	return regexp.MustCompile(`^extern void \*` + regexp.QuoteMeta(c.FunctionPrefix) + `(.*)\(void\); // (.*)$`)
}

// ReadOrdered recovers the anchor list, in embedding order, from a support
// source written by WriteSupportFiles.
func (c Config) ReadOrdered(path string) ([]integrity.Anchor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	re := c.declarationRegex()
	anchors := make([]integrity.Anchor, 0)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m := re.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		anchors = append(anchors, integrity.Anchor{
			Section: strings.ReplaceAll(m[1], "_", "."),
			Symbol:  m[2],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(anchors) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoAnchors)
	}
	log.WithField("anchors", anchors).Info("ordered anchors")
	return anchors, nil
}
