// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSymbolPersists(t *testing.T) {
	m := buildTestModule(t)
	path := filepath.Join(t.TempDir(), "module.o")
	require.NoError(t, os.WriteFile(path, m.data, 0o644))

	f, err := Open(path)
	require.NoError(t, err)

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, f.WriteSymbol("reserved", payload))

	_, rodata, err := f.SectionByName(".rodata")
	require.NoError(t, err)
	assert.Equal(t, payload, rodata.Data[0x60:0x68])

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	fileOffset, err := f.SymbolFileOffset("reserved")
	require.NoError(t, err)
	assert.Equal(t, payload, onDisk[fileOffset:fileOffset+8])
	assert.Equal(t, len(m.data), len(onDisk))

	reread, err := Load(path)
	require.NoError(t, err)
	_, rodata, err = reread.SectionByName(".rodata")
	require.NoError(t, err)
	assert.Equal(t, payload, rodata.Data[0x60:0x68])
}

func TestLoadDoesNotWriteBack(t *testing.T) {
	m := buildTestModule(t)
	path := filepath.Join(t.TempDir(), "module.o")
	require.NoError(t, os.WriteFile(path, m.data, 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, f.WriteSymbol("reserved", []byte{0xff}))

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, m.data, onDisk)
}

func TestWriteSymbolBounds(t *testing.T) {
	m := buildTestModule(t)
	f, err := Parse(m.data)
	require.NoError(t, err)

	err = f.WriteSymbol("reserved", make([]byte, 9))
	assert.ErrorIs(t, err, ErrStructure)

	err = f.WriteSymbol("printk", []byte{0})
	assert.ErrorIs(t, err, ErrStructure)

	err = f.WriteSymbol("missing", []byte{0})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSymbolOwner(t *testing.T) {
	m := buildTestModule(t)
	f, err := Parse(m.data)
	require.NoError(t, err)

	idx, sec, err := f.SymbolOwner("foo")
	require.NoError(t, err)
	assert.Equal(t, m.text, idx)
	assert.Equal(t, ".text", sec.Name)

	offset, err := f.SymbolOffset("foo")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x10), offset)
}

func TestSymbolOffsetHonoursSectionAddress(t *testing.T) {
	b := NewBuilder(ELFCLASS64, EM_AARCH64)
	text := b.AddSection(".text", SHT_PROGBITS, SHF_ALLOC|SHF_EXECINSTR, make([]byte, 32))
	b.SetAddress(text, 0x1000)
	b.AddSymbol(Symbol{Name: "entry", Type: STT_FUNC, Binding: STB_GLOBAL, SectionIndex: uint16(text), Value: 0x1008, Size: 4})
	b.AddSymbol(Symbol{Name: "stray", Type: STT_FUNC, Binding: STB_GLOBAL, SectionIndex: uint16(text), Value: 0x10, Size: 4})
	data, err := b.Bytes()
	require.NoError(t, err)

	f, err := Parse(data)
	require.NoError(t, err)
	offset, err := f.SymbolOffset("entry")
	require.NoError(t, err)
	assert.Equal(t, uint64(8), offset)

	_, err = f.SymbolOffset("stray")
	assert.ErrorIs(t, err, ErrStructure)
}

func TestFindPatternOverlapping(t *testing.T) {
	o := &Opaque{data: []byte("aaab.aa")}
	assert.Equal(t, []int{0, 1, 5}, o.FindPattern([]byte("aa")))
	assert.Empty(t, o.FindPattern([]byte("zz")))
	assert.Empty(t, o.FindPattern(nil))
}
