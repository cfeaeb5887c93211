// Copyright 2021 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

import (
	"bytes"
	"sort"
	"testing"
)

// bwt computes the Burrows-Wheeler transform the slow, obvious way:
// sort all rotations, take the last column. The engine under test only
// ever inverts; an independent forward transform keeps the round trip
// honest.
func bwt(data []byte) (last []byte, origPtr uint32) {
	n := len(data)
	rot := make([]int, n)
	for i := range rot {
		rot[i] = i
	}
	sort.Slice(rot, func(a, b int) bool {
		ra, rb := rot[a], rot[b]
		for k := 0; k < n; k++ {
			ca, cb := data[(ra+k)%n], data[(rb+k)%n]
			if ca != cb {
				return ca < cb
			}
		}
		return ra < rb
	})
	out := make([]byte, n)
	for i, r := range rot {
		out[i] = data[(r+n-1)%n]
		if r == 0 {
			origPtr = uint32(i)
		}
	}
	return out, origPtr
}

func runCursor(t *testing.T, rle []byte, want []byte) {
	t.Helper()
	last, origPtr := bwt(rle)

	var unzftab [256]uint32
	tt := make([]uint32, len(last))
	for i, b := range last {
		tt[i] = uint32(b)
		unzftab[b]++
	}
	start, err := buildIBWT(tt, &unzftab, origPtr)
	if err != nil {
		t.Fatal(err)
	}

	var cur blockCursor
	cur.init(tt, start, false)
	var out []byte
	for {
		b, ok := cur.next()
		if !ok {
			break
		}
		out = append(out, b)
	}
	if got := out; !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestIBWTRoundTrip(t *testing.T) {
	for _, data := range [][]byte{
		[]byte("banana"),
		[]byte("abracadabra"),
		[]byte("the quick brown fox jumps over the lazy dog"),
		{0x00, 0xff, 0x01, 0xfe, 0x02},
	} {
		runCursor(t, data, data)
	}
}

func TestIBWTRunExpansion(t *testing.T) {
	// Runs of four or more equal bytes arrive from the entropy stage in
	// their run-length-coded form: four literals followed by an extra
	// count byte.
	for _, tc := range []struct {
		rle  []byte
		want []byte
	}{
		{[]byte{'a', 'a', 'a', 'a', 0x00, 'b'}, []byte("aaaab")},
		{[]byte{'a', 'a', 'a', 'a', 0x02, 'b'}, []byte("aaaaaab")},
		{[]byte{'x', 'a', 'a', 'a', 'a', 0x01}, []byte("xaaaaa")},
		{[]byte{'a', 'a', 'a', 'a', 0x01, 'b', 'b', 'b', 'b', 0x00}, []byte("aaaaabbbb")},
	} {
		runCursor(t, tc.rle, tc.want)
	}
}

func TestIBWTBadOrigPtr(t *testing.T) {
	var unzftab [256]uint32
	tt := []uint32{'a', 'b'}
	unzftab['a'], unzftab['b'] = 1, 1
	if _, err := buildIBWT(tt, &unzftab, 2); err == nil {
		t.Errorf("expected an error for an out of range origPtr")
	}
}

func TestDerandomize(t *testing.T) {
	// The randomization countdown toggles bit 0 of the byte pulled when
	// the countdown for the current table entry reaches 1; over a zeroed
	// input the toggled positions are fixed by the table's prefix sums.
	c := &blockCursor{randomized: true}
	var toggled []int
	for i := 0; i < 2000; i++ {
		if c.derandomize(0) != 0 {
			toggled = append(toggled, i)
		}
	}
	want := []int{617, 1337, 1464, 1945}
	if got := toggled; len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if toggled[i] != want[i] {
			t.Errorf("got %v, want %v", toggled, want)
			break
		}
	}
}
