// Copyright 2019 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

import (
	"bytes"
	"io"
)

// blockReader adapts a single pre-located block (already stripped of its
// leading marker by the caller, typically the byte-level scanner) to
// io.Reader, for use by parallel decode workers.
type blockReader struct {
	d   *Decoder
	err error
}

// NewBlockReader returns an io.Reader over the single bzip2 block found
// in src starting at bit offset start, decoded at the given blockSize
// (the full byte count, e.g. 900000 for level 9, as reported by the
// stream header). Unlike a ByBlock Decoder it does not scan for a
// leading marker: the caller (the worker-pool scanner) has already
// located the block and start already points past the marker.
func NewBlockReader(blockSize int, src []byte, start int) io.Reader {
	if len(src) == 0 {
		return &blockReader{err: io.EOF}
	}
	d := &Decoder{
		mode:   ByBlock,
		br:     newBitReader(bytes.NewReader(src)),
		state:  stateNeedBlock,
		single: true,
	}
	d.blockLevel = blockSize / baseBlockSize
	d.blockSize = blockSize

	if _, err := d.br.ReadBits(uint(start)); err != nil {
		return &blockReader{err: err}
	}
	if err := d.startBlock(); err != nil {
		return &blockReader{err: err}
	}
	return &blockReader{d: d}
}

func (r *blockReader) Read(buf []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	n, err := r.d.ReadInto(buf)
	if err == ErrEndOfBlock || err == io.EOF {
		// There is exactly one block in this reader's source: either
		// boundary terminates it the same way.
		r.err = io.EOF
		if n > 0 {
			return n, nil
		}
		return 0, io.EOF
	}
	if err != nil {
		r.err = err
		return n, err
	}
	return n, nil
}
