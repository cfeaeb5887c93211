// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

// marker is a fixed-width bit pattern the scanner looks for.
type marker struct {
	pattern uint64
	bits    uint
}

// scanFor slides a window one bit at a time over br looking for the first
// occurrence of any of patterns, which must all share the same bit width.
// It returns the index of the pattern that matched, or -1 if br was
// exhausted first. Unlike most of this package's parsing, scanFor never
// treats running out of input as fatal: in BYBLOCK mode that condition
// means "the assigned range is exhausted", not "the stream is corrupt".
//
// Block bodies are not byte-aligned, so this is the only way to find the
// next block (or end-of-stream) marker when resuming mid-stream.
func scanFor(br *bitReader, patterns ...marker) int {
	bits := patterns[0].bits
	mask := uint64(1)<<bits - 1

	window, err := br.ReadBits(bits)
	if err != nil {
		return -1
	}
	for {
		for i, m := range patterns {
			if window == m.pattern {
				return i
			}
		}
		bit, err := br.ReadBits(1)
		if err != nil {
			return -1
		}
		window = ((window << 1) | bit) & mask
	}
}

// markerStartOffset returns the source-byte offset at which a bits-wide
// pattern that has just matched against br began: the bit
// position of the match's first bit is (bytesConsumed*8 - live - bits);
// its byte offset is that divided by 8, rounding down, which is the same
// as bytesConsumed - ceil((bits+live)/8).
func markerStartOffset(br *bitReader, bits uint) uint64 {
	x := uint64(bits) + uint64(br.liveBits())
	return br.BytesConsumed() - (x+7)/8
}
