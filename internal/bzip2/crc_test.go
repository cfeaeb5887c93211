// Copyright 2021 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

import "testing"

func TestBlockCRC(t *testing.T) {
	// 0x4eece836 is the block CRC the reference bzip2 implementation
	// stores for a block whose uncompressed content is "hello world\n".
	var c crcState
	c.reset()
	for _, b := range []byte("hello world\n") {
		c.updateByte(b)
	}
	if got, want := c.sum32(), uint32(0x4eece836); got != want {
		t.Errorf("got %#08x, want %#08x", got, want)
	}

	c.reset()
	if got, want := c.sum32(), uint32(0); got != want {
		t.Errorf("got %#08x, want %#08x", got, want)
	}
}

func TestFoldCombinedCRC(t *testing.T) {
	for _, tc := range []struct {
		prev, cur, want uint32
	}{
		{0, 0x4eece836, 0x4eece836},
		{0x80000000, 0, 1},
		{0x80000001, 0, 3},
		{1, 1, 3},
		{0xffffffff, 0, 0xffffffff},
	} {
		if got, want := foldCombinedCRC(tc.prev, tc.cur), tc.want; got != want {
			t.Errorf("fold(%#x, %#x): got %#x, want %#x", tc.prev, tc.cur, got, want)
		}
	}
}
