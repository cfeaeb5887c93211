// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

import (
	"bufio"
	"io"
)

// bitReader wraps an io.Reader and exposes it as a MSB-first bit stream.
// Bits are packed into a 64-bit buffer so that the largest field this
// package ever reads (48 bits, a block or end-of-stream marker) plus one
// further refill byte always fits without an intermediate flush. All of
// its Read* methods return a (value, error) pair, so that callers can
// distinguish "ran out of input" from "more bits available"; once an
// error has occurred, every later read returns it again.
type bitReader struct {
	src io.ByteReader

	buf  uint64
	live uint

	// consumed is the number of whole bytes pulled from src so far. It is
	// the "raw" half of the position tracker; the marker scanner derives
	// the "reported" half from it.
	consumed uint64

	err error
}

// newBitReader returns a new bitReader reading from r. If r is not
// already an io.ByteReader, it is wrapped in a bufio.Reader.
func newBitReader(r io.Reader) *bitReader {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReaderSize(r, 9*1024)
	}
	return &bitReader{src: br}
}

// fill refills the buffer until it holds at least need live bits, or
// records and returns the error that prevented that.
func (b *bitReader) fill(need uint) error {
	for b.live < need {
		c, err := b.src.ReadByte()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			b.err = err
			return err
		}
		b.consumed++
		b.buf = b.buf<<8 | uint64(c)
		b.live += 8
	}
	return nil
}

// ReadBits reads n bits, MSB-first, 1 <= n <= 48 in this package's usage.
func (b *bitReader) ReadBits(n uint) (uint64, error) {
	if b.err != nil {
		return 0, b.err
	}
	if err := b.fill(n); err != nil {
		return 0, err
	}
	v := (b.buf >> (b.live - n)) & ((uint64(1) << n) - 1)
	b.live -= n
	return v, nil
}

func (b *bitReader) ReadBit() (bool, error) {
	v, err := b.ReadBits(1)
	return v != 0, err
}

func (b *bitReader) ReadUByte() (byte, error) {
	v, err := b.ReadBits(8)
	return byte(v), err
}

// ReadInt32 reads a big-endian 32-bit field.
func (b *bitReader) ReadInt32() (uint32, error) {
	v, err := b.ReadBits(32)
	return uint32(v), err
}

// BytesConsumed is the raw count of source bytes pulled so far, including
// bytes whose bits are still buffered and unread.
func (b *bitReader) BytesConsumed() uint64 { return b.consumed }

// liveBits is the number of buffered, as yet unread bits. The marker
// scanner uses it together with BytesConsumed to compute a match's start
// offset in source bytes.
func (b *bitReader) liveBits() uint { return b.live }

func (b *bitReader) Err() error { return b.err }
