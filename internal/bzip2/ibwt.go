// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

// buildIBWT constructs the inverse-BWT transition table tt from the
// decoded block bytes ll8[0..last] and their per-byte frequencies
// unzftab, following the single-array method: on entry tt[i] holds just
// the block byte ll8[i] in its low byte (the caller copies ll8 into tt),
// and each slot gains its next-index in the upper 24 bits, so the byte
// and the link share one uint32 instead of two separate arrays.
//
// It returns the starting index to feed the block's output cursor.
func buildIBWT(tt []uint32, unzftab *[256]uint32, origPtr uint32) (uint32, error) {
	last := len(tt) - 1
	if int(origPtr) > last {
		return 0, StructuralError("origPtr out of range")
	}

	var cftab [257]uint32
	sum := uint32(0)
	for i := 0; i < 256; i++ {
		cftab[i] = sum
		sum += unzftab[i]
	}
	cftab[256] = sum

	for i := 0; i <= last; i++ {
		b := tt[i] & 0xff
		tt[cftab[b]] |= uint32(i) << 8
		cftab[b]++
	}

	return tt[origPtr] >> 8, nil
}

// blockCursor walks the IBWT transition table one output byte at a time,
// expanding run-of-4 RLE tails and undoing block randomization as it
// goes. Exactly one output byte is produced per call to next, so the
// stream controller needs no enumerated sub-states of its own for the
// literal/run-detect/run-tail phases: they fall out of the
// lastByte/byteRepeats/repeats bookkeeping below.
type blockCursor struct {
	tt   []uint32
	last int

	tPos uint32
	used int

	lastByte    int
	byteRepeats uint
	repeats     uint32

	randomized bool
	rnToGo     int
	rtPos      int
}

func (c *blockCursor) init(tt []uint32, start uint32, randomized bool) {
	c.tt = tt
	c.last = len(tt) - 1
	c.tPos = start
	c.used = 0
	c.lastByte = -1
	c.byteRepeats = 0
	c.repeats = 0
	c.randomized = randomized
	c.rnToGo = 0
	c.rtPos = 0
}

// rawByte fetches the next packed (byte | next-index<<8) slot and
// advances the cursor, returning just the byte.
func (c *blockCursor) rawByte() byte {
	c.tPos = c.tt[c.tPos]
	b := byte(c.tPos)
	c.tPos >>= 8
	return b
}

// derandomize applies the BZip2 block-randomization toggle to a byte
// freshly pulled from the BWT walk.
func (c *blockCursor) derandomize(b byte) byte {
	if !c.randomized {
		return b
	}
	if c.rnToGo == 0 {
		c.rnToGo = int(randTable[c.rtPos]) - 1
		c.rtPos++
		if c.rtPos == len(randTable) {
			c.rtPos = 0
		}
	} else {
		c.rnToGo--
	}
	if c.rnToGo == 1 {
		b ^= 1
	}
	return b
}

// next returns the next byte of the decompressed block, or ok == false
// once all of it has been produced.
func (c *blockCursor) next() (b byte, ok bool) {
	if c.repeats > 0 {
		c.repeats--
		b := byte(c.lastByte)
		if c.repeats == 0 {
			c.lastByte = -1
		}
		return b, true
	}
	if c.used > c.last {
		return 0, false
	}
	raw := c.derandomize(c.rawByte())
	c.used++

	if c.byteRepeats == 3 {
		// raw is the RLE tail length z: z further copies of lastByte
		// follow the 4 already emitted. The byte after the tail starts a
		// new run, even if it equals lastByte.
		c.byteRepeats = 0
		b := byte(c.lastByte)
		if raw == 0 {
			c.lastByte = -1
			return c.next()
		}
		c.repeats = uint32(raw) - 1
		if c.repeats == 0 {
			c.lastByte = -1
		}
		return b, true
	}

	if int(raw) == c.lastByte {
		c.byteRepeats++
	} else {
		c.byteRepeats = 0
		c.lastByte = int(raw)
	}
	return raw, true
}
