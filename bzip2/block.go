// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package bzip2 exposes the single-block decode primitive that the
// parallel decompressor builds on: given a block already located by a
// byte-level scanner, decode just that block without scanning for its
// marker.
package bzip2

import (
	"io"

	"github.com/cnvogel/splitbz2/internal/bzip2"
)

// DecodeBlock returns an io.Reader over the single bzip2 block found in
// src starting at bit offset start, decoded at the given blockSize (the
// full byte count, e.g. 900000 for level 9, as reported by the stream
// header). The caller is expected to have already located the block,
// typically via a byte-level pre-scan; start points past the block's
// leading marker.
func DecodeBlock(blockSize int, src []byte, start int) io.Reader {
	return bzip2.NewBlockReader(blockSize, src, start)
}
