// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

import "sort"

// huffmanTable is a canonical Huffman decode table built from per-symbol
// code lengths: limit/base arrays indexed by code length, plus a
// permutation array mapping a code's rank at its length back to its
// symbol. This is the representation the BZip2 reference decoder itself
// uses (as opposed to a binary tree or a flat lookup table); it keeps the
// per-group footprint at O(alphaSize + maxLen) and makes the decode loop
// a short, branch-light scan over increasing code length.
type huffmanTable struct {
	limit  [maxCodeLen + 1]int32
	base   [maxCodeLen + 1]int32
	perm   []uint16
	minLen uint
	maxLen uint
}

// newHuffmanTable builds the canonical decode table for the given
// per-symbol code lengths. Every symbol in a BZip2 alphabet carries a
// length of at least 1; lengths[i] == 0 is rejected as malformed.
func newHuffmanTable(lengths []uint8) (*huffmanTable, error) {
	if len(lengths) < 2 {
		return nil, StructuralError("empty Huffman alphabet")
	}

	minLen, maxLen := uint(maxCodeLen), uint(0)
	for _, l := range lengths {
		if l == 0 || uint(l) > maxCodeLen {
			return nil, StructuralError("huffman code length out of range")
		}
		if uint(l) < minLen {
			minLen = uint(l)
		}
		if uint(l) > maxLen {
			maxLen = uint(l)
		}
	}

	// perm enumerates symbols in order of increasing length, ties broken
	// by ascending symbol value -- the canonical ordering.
	perm := make([]uint16, len(lengths))
	for i := range perm {
		perm[i] = uint16(i)
	}
	sort.Slice(perm, func(i, j int) bool {
		li, lj := lengths[perm[i]], lengths[perm[j]]
		if li != lj {
			return li < lj
		}
		return perm[i] < perm[j]
	})

	var count [maxCodeLen + 1]int32
	for _, l := range lengths {
		count[l]++
	}

	t := &huffmanTable{perm: perm, minLen: minLen, maxLen: maxLen}

	var first [maxCodeLen + 2]int32
	first[minLen] = 0
	for l := minLen; l < maxLen; l++ {
		first[l+1] = (first[l] + count[l]) << 1
	}

	// permIndex is the index into perm of the first symbol of each length.
	var permIndex [maxCodeLen + 1]int32
	idx := int32(0)
	for l := minLen; l <= maxLen; l++ {
		permIndex[l] = idx
		idx += count[l]
	}

	for l := minLen; l <= maxLen; l++ {
		t.limit[l] = first[l] + count[l] - 1
		t.base[l] = first[l] - permIndex[l]
	}

	return t, nil
}

// decode reads one symbol from br using the canonical limit/base/perm
// tables: read minLen bits, then extend one bit at a time until the
// accumulated value is within the current length's limit.
func (t *huffmanTable) decode(br *bitReader) (uint16, error) {
	zn := t.minLen
	zvec, err := br.ReadBits(zn)
	if err != nil {
		return 0, err
	}
	for int32(zvec) > t.limit[zn] {
		zn++
		if zn > t.maxLen {
			return 0, StructuralError("huffman code too long")
		}
		bit, err := br.ReadBits(1)
		if err != nil {
			return 0, err
		}
		zvec = (zvec << 1) | bit
	}
	idx := int32(zvec) - t.base[zn]
	if idx < 0 || int(idx) >= len(t.perm) {
		return 0, StructuralError("huffman code out of range")
	}
	return t.perm[idx], nil
}
