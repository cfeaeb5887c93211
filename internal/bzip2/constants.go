// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

// Structural constants of the BZip2 block format. These come from the
// reference implementation, not from any per-file header.
const (
	groupSize     = 50
	maxGroups     = 6
	maxAlphaSize  = 258
	maxSelectors  = 2 + (900000 / groupSize)
	maxCodeLen    = 23
	runA          = 0
	runB          = 1
	baseBlockSize = 100000
	maxBlockSize  = 9 * baseBlockSize
)

// FileMagic is the two leading bytes of every bzip2 file ("BZ"). A
// Decoder expects its input to start after them; after an end-of-stream
// footer it reads them again to detect a concatenated stream.
var FileMagic = [2]byte{0x42, 0x5a}

// BlockMagic is the 48-bit bit pattern that introduces a compressed block.
var BlockMagic = [6]byte{0x31, 0x41, 0x59, 0x26, 0x53, 0x59}

// EOSMagic is the 48-bit bit pattern that introduces the end-of-stream
// footer (followed by a 32-bit combined CRC).
var EOSMagic = [6]byte{0x17, 0x72, 0x45, 0x38, 0x50, 0x90}

func sixBytesToUint64(b [6]byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

var (
	blockMagicBits = sixBytesToUint64(BlockMagic)
	eosMagicBits   = sixBytesToUint64(EOSMagic)
)
