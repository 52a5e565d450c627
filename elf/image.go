// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"fmt"
	"io"
	"os"
)

// Image owns the raw bytes of an object file. Writes update the in-memory
// bytes first and are then mirrored to the sink, if any, before returning.
type Image struct {
	data []byte
	sink io.WriterAt
}

// NewImage wraps data. A nil sink keeps writes in memory.
func NewImage(data []byte, sink io.WriterAt) *Image {
	return &Image{data: data, sink: sink}
}

// ReadImage loads path for inspection only; writes stay in memory.
func ReadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Image{data: data}, nil
}

// OpenImage loads path and mirrors every write back to it.
func OpenImage(path string) (*Image, error) {
	img, err := ReadImage(path)
	if err != nil {
		return nil, err
	}
	img.sink = fileSink(path)
	return img, nil
}

func (img *Image) Bytes() []byte {
	return img.data
}

func (img *Image) Len() int {
	return len(img.data)
}

func (img *Image) slice(offset uint64, size uint64) ([]byte, error) {
	end := offset + size
	if end < offset || end > uint64(len(img.data)) {
		return nil, fmt.Errorf("%w: range %#x+%#x outside file of %#x bytes", ErrStructure, offset, size, len(img.data))
	}
	return img.data[offset:end:end], nil
}

func (img *Image) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative write offset %d", ErrStructure, off)
	}
	dst, err := img.slice(uint64(off), uint64(len(p)))
	if err != nil {
		return 0, err
	}
	copy(dst, p)
	if img.sink == nil {
		return len(p), nil
	}
	return img.sink.WriteAt(p, off)
}

// fileSink opens the file for every write so that each one is on disk
// before WriteAt returns.
type fileSink string

func (s fileSink) WriteAt(p []byte, off int64) (int, error) {
	f, err := os.OpenFile(string(s), os.O_WRONLY, 0)
	if err != nil {
		return 0, err
	}
	n, err := f.WriteAt(p, off)
	if err != nil {
		f.Close()
		return n, err
	}
	return n, f.Close()
}
