// Copyright 2019 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

// blockHeader holds the fields read directly off the bit stream before
// the MTF+RLE symbol loop runs.
type blockHeader struct {
	storedCRC  uint32
	randomized bool
	origPtr    uint32
}

// decodeBlockBody parses one block's header and entropy-coded body,
// following it through symbol-map, selector and per-group code-length
// decoding into the MTF+RLE hot loop, and writes the run-length-expanded
// byte sequence into ll8 (which must have capacity for blockSize bytes).
// It returns the index of the last byte written (ll8[0..last]) and
// accumulates per-byte frequencies into unzftab, both of which IBWT needs
// to build its transition table.
//
// This is the direct descendant of the reference decoder's readBlock:
// same parse order, same selector/MTF/run-length bookkeeping, but driving
// the new canonical huffmanTable instead of a binary-tree decoder, and
// writing into a caller-owned ll8 buffer instead of the packed tt/ll8
// hybrid the hot loop used to populate directly.
func decodeBlockBody(br *bitReader, blockSize int, ll8 []byte, unzftab *[256]uint32) (hdr blockHeader, last int, err error) {
	storedCRC, err := br.ReadInt32()
	if err != nil {
		return hdr, 0, err
	}
	hdr.storedCRC = storedCRC

	randBit, err := br.ReadBit()
	if err != nil {
		return hdr, 0, err
	}
	hdr.randomized = randBit

	origPtr, err := br.ReadBits(24)
	if err != nil {
		return hdr, 0, err
	}
	hdr.origPtr = uint32(origPtr)

	var seqToUnseq [256]byte
	nInUse := 0
	used16, err := br.ReadBits(16)
	if err != nil {
		return hdr, 0, err
	}
	for r := uint(0); r < 16; r++ {
		if used16&(1<<(15-r)) == 0 {
			continue
		}
		bits16, err := br.ReadBits(16)
		if err != nil {
			return hdr, 0, err
		}
		for s := uint(0); s < 16; s++ {
			if bits16&(1<<(15-s)) != 0 {
				seqToUnseq[nInUse] = byte(16*r + s)
				nInUse++
			}
		}
	}
	if nInUse == 0 {
		return hdr, 0, StructuralError("no symbols in use")
	}
	alphaSize := nInUse + 2
	eob := uint16(alphaSize - 1)

	nGroupsVal, err := br.ReadBits(3)
	if err != nil {
		return hdr, 0, err
	}
	nGroups := int(nGroupsVal)
	if nGroups < 2 || nGroups > maxGroups {
		return hdr, 0, StructuralError("invalid number of Huffman groups")
	}

	nSelectorsVal, err := br.ReadBits(15)
	if err != nil {
		return hdr, 0, err
	}
	nSelectors := int(nSelectorsVal)
	if nSelectors < 1 || nSelectors > maxSelectors {
		return hdr, 0, StructuralError("selector count out of range")
	}

	selMTF := make([]uint8, nSelectors)
	for i := range selMTF {
		c := 0
		for {
			bit, err := br.ReadBit()
			if err != nil {
				return hdr, 0, err
			}
			if !bit {
				break
			}
			c++
			if c >= nGroups {
				return hdr, 0, StructuralError("selector MTF run too long")
			}
		}
		selMTF[i] = uint8(c)
	}

	// Undo the selector MTF coding.
	pos := make([]uint8, nGroups)
	for i := range pos {
		pos[i] = uint8(i)
	}
	selectors := make([]uint8, nSelectors)
	for i, v := range selMTF {
		tmp := pos[v]
		copy(pos[1:v+1], pos[0:v])
		pos[0] = tmp
		selectors[i] = tmp
	}

	tables := make([]*huffmanTable, nGroups)
	lengths := make([]uint8, alphaSize)
	for g := 0; g < nGroups; g++ {
		currVal, err := br.ReadBits(5)
		if err != nil {
			return hdr, 0, err
		}
		curr := int(currVal)
		for s := 0; s < alphaSize; s++ {
			for {
				if curr < 1 || curr > maxCodeLen {
					return hdr, 0, StructuralError("huffman code length out of range")
				}
				bit, err := br.ReadBit()
				if err != nil {
					return hdr, 0, err
				}
				if !bit {
					break
				}
				up, err := br.ReadBit()
				if err != nil {
					return hdr, 0, err
				}
				if up {
					curr--
				} else {
					curr++
				}
			}
			lengths[s] = uint8(curr)
		}
		tables[g], err = newHuffmanTable(lengths)
		if err != nil {
			return hdr, 0, err
		}
	}

	var yy [256]byte
	for i := range yy {
		yy[i] = byte(i)
	}

	groupNo, groupPos := -1, 0
	var table *huffmanTable
	nextGroup := func() error {
		groupNo++
		if groupNo >= len(selectors) {
			return StructuralError("ran out of selectors")
		}
		if int(selectors[groupNo]) >= nGroups {
			return StructuralError("selector out of range")
		}
		table = tables[selectors[groupNo]]
		groupPos = groupSize
		return nil
	}

	last = -1
	var repeat, repeatPower uint32
	for {
		if groupPos == 0 {
			if err := nextGroup(); err != nil {
				return hdr, 0, err
			}
		}
		groupPos--
		sym, err := table.decode(br)
		if err != nil {
			return hdr, 0, err
		}

		if sym == runA || sym == runB {
			if repeat == 0 {
				repeatPower = 1
			}
			repeat += repeatPower << sym
			repeatPower <<= 1
			if repeat > uint32(blockSize) {
				return hdr, 0, StructuralError("run length too large")
			}
			continue
		}

		if repeat > 0 {
			b := seqToUnseq[yy[0]]
			if last+int(repeat) >= blockSize {
				return hdr, 0, StructuralError("block overrun")
			}
			for k := uint32(0); k < repeat; k++ {
				last++
				ll8[last] = b
			}
			unzftab[b] += repeat
			repeat, repeatPower = 0, 0
		}

		if sym == eob {
			break
		}

		j := int(sym) - 1
		tmp := yy[j]
		copy(yy[1:j+1], yy[0:j])
		yy[0] = tmp
		b := seqToUnseq[tmp]
		last++
		if last >= blockSize {
			return hdr, 0, StructuralError("block overrun")
		}
		ll8[last] = b
		unzftab[b]++
	}

	if int(hdr.origPtr) > last {
		return hdr, 0, StructuralError("origPtr out of range")
	}

	return hdr, last, nil
}
