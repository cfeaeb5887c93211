// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

import (
	"errors"
	"fmt"
)

// StructuralError is returned when the bzip2 data is found to be
// syntactically invalid: a bad header, an inconsistent Huffman table,
// an out-of-range selector, or a block that overruns its declared size.
// It covers the BadStreamHeader, BadBlockHeader, TableMalformed,
// BlockOverrun and StreamCorrupted cases.
type StructuralError string

func (e StructuralError) Error() string {
	return "bzip2: " + string(e)
}

// CRCError reports a checksum mismatch, either for a single block or for
// the combined stream checksum carried in the end-of-stream footer.
type CRCError struct {
	Stream bool
	Want   uint32
	Got    uint32
}

func (e *CRCError) Error() string {
	kind := "block"
	if e.Stream {
		kind = "stream"
	}
	return fmt.Sprintf("bzip2: %s checksum mismatch: got %#08x, want %#08x", kind, e.Got, e.Want)
}

var (
	// ErrClosed is returned by any read after Close has been called.
	ErrClosed = errors.New("bzip2: decoder closed")
	// ErrInvalidArgument is returned for malformed caller-supplied
	// arguments and options: an empty buffer passed to ReadInto, a
	// BlockSizeHint level outside 1..9, or an unknown Mode.
	ErrInvalidArgument = errors.New("bzip2: invalid argument")
	// ErrEndOfBlock is returned by ReadInto, in ByBlock mode, when a
	// call produced zero bytes because the current block just ended.
	// It is not returned once any bytes have been written to buf on
	// that call; the boundary is reported on the following call instead.
	ErrEndOfBlock = errors.New("bzip2: end of block")
)
