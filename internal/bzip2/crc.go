// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

import (
	"hash/crc32"
	"math/bits"
)

// crcState implements the BZip2 flavour of CRC-32: the same polynomial as
// the IEEE/zlib variant, but with every byte's bits reversed going in and
// the whole 32-bit accumulator reversed coming out, and no final XOR
// (zlib's crc32 package already applies init/xor-out = 0xFFFFFFFF for us,
// so reversing around it reproduces BZip2's big-endian, non-reflected
// CRC exactly).
type crcState struct {
	val uint32
}

func (c *crcState) reset() { c.val = 0 }

// updateByte folds one output byte into the running CRC. BZip2 computes
// CRC over emitted (post-RLE, post-IBWT) bytes one at a time, so this is
// the natural granularity rather than a buffer-oriented update.
func (c *crcState) updateByte(b byte) {
	cval := bits.Reverse32(c.val)
	cval = crc32.Update(cval, crc32.IEEETable, []byte{bits.Reverse8(b)})
	c.val = bits.Reverse32(cval)
}

func (c *crcState) sum32() uint32 { return c.val }

// foldCombinedCRC folds a finished block's CRC into the running combined
// stream CRC: rotate the previous value left by one bit, then XOR in the
// new block's CRC.
func foldCombinedCRC(prev, cur uint32) uint32 {
	return (prev<<1 | prev>>31) ^ cur
}
