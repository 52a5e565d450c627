// SPDX-License-Identifier: MIT
//
// Copyright (c) 2023, 2024 Adrian "asie" Siekierka

package region

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

var ErrOutOfBounds = errors.New("gap outside region")

// Gap is a byte range excluded from coverage.
type Gap struct {
	Offset uint64
	Length uint64
}

func (g Gap) End() uint64 {
	return g.Offset + g.Length
}

func (g Gap) String() string {
	return fmt.Sprintf("[%#x+%#x]", g.Offset, g.Length)
}

// Area is a covered byte range. Both ends are inclusive.
type Area struct {
	Start uint64
	End   uint64
}

func (a Area) Size() uint64 {
	return a.End - a.Start + 1
}

func (a Area) String() string {
	return fmt.Sprintf("[%#x..%#x]", a.Start, a.End)
}

// Region is a section-sized byte range with a list of gaps kept sorted by
// offset.
type Region struct {
	size uint64
	gaps []Gap
}

func NewRegion(size uint64, gaps ...Gap) *Region {
	r := &Region{
		size: size,
		gaps: make([]Gap, 0, len(gaps)),
	}
	for _, g := range gaps {
		r.Insert(g)
	}
	return r
}

func (r *Region) Size() uint64 {
	return r.size
}

func (r *Region) Gaps() []Gap {
	return r.gaps
}

// Insert places g after every gap starting at or before g.Offset.
func (r *Region) Insert(g Gap) {
	idx := slices.IndexFunc(r.gaps, func(e Gap) bool {
		return e.Offset > g.Offset
	})
	if idx < 0 {
		r.gaps = append(r.gaps, g)
	} else {
		r.gaps = slices.Insert(r.gaps, idx, g)
	}
}

func (r *Region) Areas() ([]Area, error) {
	return Areas(r.gaps, r.size)
}

// Covered returns the number of bytes left after removing all gaps.
func (r *Region) Covered() (uint64, error) {
	areas, err := r.Areas()
	if err != nil {
		return 0, err
	}
	total := uint64(0)
	for _, a := range areas {
		total += a.Size()
	}
	return total, nil
}

// Normalize returns a sorted copy of gaps with empty gaps dropped and
// overlapping or touching gaps merged.
func Normalize(gaps []Gap) []Gap {
	sorted := slices.Clone(gaps)
	slices.SortStableFunc(sorted, func(a, b Gap) int {
		return cmp.Compare(a.Offset, b.Offset)
	})

	result := make([]Gap, 0, len(sorted))
	for _, g := range sorted {
		if g.Length == 0 {
			continue
		}
		if n := len(result); n > 0 && g.Offset <= result[n-1].End() {
			last := &result[n-1]
			last.Length = max(last.End(), g.End()) - last.Offset
			continue
		}
		result = append(result, g)
	}
	return result
}

// Areas returns the complement of gaps within [0, size), in ascending
// order. Gaps may arrive unsorted or overlapping; they are normalized first.
func Areas(gaps []Gap, size uint64) ([]Area, error) {
	for _, g := range gaps {
		if g.End() < g.Offset || g.End() > size {
			return nil, fmt.Errorf("%w: %s, size %#x", ErrOutOfBounds, g, size)
		}
	}

	areas := make([]Area, 0)
	if size == 0 {
		return areas, nil
	}

	start := uint64(0)
	for _, g := range Normalize(gaps) {
		if g.Offset > start {
			areas = append(areas, Area{Start: start, End: g.Offset - 1})
		}
		start = g.End()
	}
	if start < size {
		areas = append(areas, Area{Start: start, End: size - 1})
	}
	return areas, nil
}
