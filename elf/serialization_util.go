// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"bytes"
	"fmt"
)

// readString returns the NUL-terminated string at offset in a string pool.
// A string running to the end of the pool without a terminator is
// returned as is.
func readString(pool []byte, offset uint32) (string, error) {
	if uint64(offset) > uint64(len(pool)) {
		return "", fmt.Errorf("%w: string offset %#x outside table of %#x bytes", ErrStructure, offset, len(pool))
	}
	s := pool[offset:]
	if end := bytes.IndexByte(s, 0); end >= 0 {
		s = s[:end]
	}
	return string(s), nil
}
