// Copyright 2021 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzip2

import (
	"bytes"
	gobzip2 "compress/bzip2"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/cnvogel/splitbz2/internal"
)

// fixtures maps a name to the raw compressed file (including the
// leading "BZ") and fixtureData to the bytes it compresses; both are
// generated by TestMain with the system bzip2 binary.
var (
	fixtures    map[string][]byte
	fixtureData map[string][]byte
)

func TestMain(m *testing.M) {
	tmpdir, err := ioutil.TempDir("", "bzip2-decoder-fixtures")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmpdir)

	fixtures = map[string][]byte{}
	fixtureData = map[string][]byte{}
	for _, tc := range []struct {
		name      string
		data      []byte
		blockSize string
	}{
		{"empty", nil, "-9"},
		{"hello", []byte("hello world\n"), "-1"},
		{"rand300KB", internal.GenPredictableRandomData(300 * 1024), "-1"},
	} {
		raw := filepath.Join(tmpdir, tc.name)
		if err := internal.CreateBzipFile(raw, tc.blockSize, tc.data); err != nil {
			panic(err)
		}
		buf, err := ioutil.ReadFile(raw + ".bz2")
		if err != nil {
			panic(err)
		}
		fixtures[tc.name] = buf
		fixtureData[tc.name] = tc.data
	}
	os.Exit(m.Run())
}

func stripMagic(t *testing.T, buf []byte) []byte {
	t.Helper()
	if !bytes.HasPrefix(buf, FileMagic[:]) {
		t.Fatalf("fixture does not start with the bzip2 file magic")
	}
	return buf[2:]
}

// drainBytes reads d one byte at a time until EndOfStream or an error,
// dropping EndOfBlock sentinels and counting them.
func drainBytes(d *Decoder) (out []byte, boundaries int, err error) {
	for {
		v, err := d.ReadByte()
		if err != nil {
			return out, boundaries, err
		}
		switch v {
		case EndOfStream:
			return out, boundaries, nil
		case EndOfBlock:
			boundaries++
		default:
			out = append(out, byte(v))
		}
	}
}

func TestContinuousRoundTrip(t *testing.T) {
	for _, name := range []string{"empty", "hello", "rand300KB"} {
		oracle, err := ioutil.ReadAll(gobzip2.NewReader(bytes.NewReader(fixtures[name])))
		if err != nil {
			t.Fatalf("%v: %v", name, err)
		}

		d, err := NewDecoder(bytes.NewReader(stripMagic(t, fixtures[name])), Continuous)
		if err != nil {
			t.Fatalf("%v: %v", name, err)
		}
		out, boundaries, err := drainBytes(d)
		if err != nil {
			t.Fatalf("%v: %v", name, err)
		}
		if got, want := boundaries, 0; got != want {
			t.Errorf("%v: got %v block boundaries, want %v", name, got, want)
		}
		if got, want := out, fixtureData[name]; !bytes.Equal(got, want) {
			t.Errorf("%v: got %v bytes, want %v bytes", name, len(got), len(want))
		}
		if got, want := out, oracle; !bytes.Equal(got, want) {
			t.Errorf("%v: decoded output differs from the stdlib oracle", name)
		}

		// Bulk reads must see the identical byte sequence.
		d, err = NewDecoder(bytes.NewReader(stripMagic(t, fixtures[name])), Continuous)
		if err != nil {
			t.Fatalf("%v: %v", name, err)
		}
		var bulk []byte
		buf := make([]byte, 8192)
		for {
			n, err := d.ReadInto(buf)
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("%v: %v", name, err)
			}
			bulk = append(bulk, buf[:n]...)
		}
		if got, want := bulk, out; !bytes.Equal(got, want) {
			t.Errorf("%v: bulk reads differ from byte reads", name)
		}
	}
}

func TestContinuousConcatenated(t *testing.T) {
	for _, tc := range [][]string{
		{"hello", "hello"},
		{"hello", "empty", "hello"},
		{"empty", "hello"},
		{"rand300KB", "hello"},
	} {
		var compressed, want []byte
		for _, name := range tc {
			compressed = append(compressed, fixtures[name]...)
			want = append(want, fixtureData[name]...)
		}
		d, err := NewDecoder(bytes.NewReader(compressed[2:]), Continuous)
		if err != nil {
			t.Fatalf("%v: %v", tc, err)
		}
		out, _, err := drainBytes(d)
		if err != nil {
			t.Fatalf("%v: %v", tc, err)
		}
		if got := out; !bytes.Equal(got, want) {
			t.Errorf("%v: got %v bytes, want %v bytes", tc, len(got), len(want))
		}
	}
}

func TestContinuousBadHeader(t *testing.T) {
	for _, buf := range [][]byte{
		{'x', '1'},
		{'h', '0'},
		{'h', 'a'},
	} {
		if _, err := NewDecoder(bytes.NewReader(buf), Continuous); err == nil {
			t.Errorf("%q: expected an error", buf)
		}
	}
}

func TestContinuousCRCMismatch(t *testing.T) {
	// The stored block CRC occupies the four bytes after the 48-bit
	// block marker; corrupting it leaves the payload decodable and must
	// surface as a checksum failure only once every data byte has been
	// delivered.
	buf := append([]byte{}, stripMagic(t, fixtures["hello"])...)
	buf[10] ^= 0xff

	d, err := NewDecoder(bytes.NewReader(buf), Continuous)
	if err != nil {
		t.Fatal(err)
	}
	out, _, err := drainBytes(d)
	if err == nil {
		t.Fatal("expected a CRC error")
	}
	cerr, ok := err.(*CRCError)
	if !ok {
		t.Fatalf("got %T (%v), want *CRCError", err, err)
	}
	if cerr.Stream {
		t.Errorf("got a stream CRC error, want a block CRC error")
	}
	if got, want := out, fixtureData["hello"]; !bytes.Equal(got, want) {
		t.Errorf("got %q, want all data bytes delivered before the error", out)
	}

	// The instance is dead after a fatal error.
	if _, err := d.ReadByte(); err == nil {
		t.Errorf("expected the decoder to stay failed")
	}
}

func TestContinuousTruncated(t *testing.T) {
	buf := stripMagic(t, fixtures["hello"])
	d, err := NewDecoder(bytes.NewReader(buf[:len(buf)-4]), Continuous)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := drainBytes(d); err != io.ErrUnexpectedEOF {
		t.Errorf("got %v, want %v", err, io.ErrUnexpectedEOF)
	}
}

// eosOffsets returns the two possible byte offsets at which a stream's
// end-of-stream marker can begin: the footer is 6+4 bytes plus 0..7
// padding bits, so the marker starts in the 10th or 11th byte from the
// end.
func eosOffsets(total int) []uint64 {
	return []uint64{uint64(total - 10), uint64(total - 11)}
}

func containsOffset(offs []uint64, v uint64) bool {
	for _, o := range offs {
		if o == v {
			return true
		}
	}
	return false
}

func TestByBlockSingleStream(t *testing.T) {
	file := fixtures["hello"]
	d, err := NewDecoder(bytes.NewReader(file), ByBlock, BlockSizeHint(1))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	out, boundaries, err := drainBytes(d)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := out, fixtureData["hello"]; !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
	if got, want := boundaries, 1; got != want {
		t.Errorf("got %v boundaries, want %v", got, want)
	}
	if got := d.ReportedBytesConsumed(); !containsOffset(eosOffsets(len(file)), got) {
		t.Errorf("got reported position %v, want one of %v", got, eosOffsets(len(file)))
	}
}

func TestByBlockConcatenated(t *testing.T) {
	f1, f2 := fixtures["hello"], fixtures["hello"]
	file := append(append([]byte{}, f1...), f2...)
	d, err := NewDecoder(bytes.NewReader(file), ByBlock, BlockSizeHint(1))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	readBlock := func() ([]byte, int) {
		var out []byte
		for {
			v, err := d.ReadByte()
			if err != nil {
				t.Fatal(err)
			}
			if v == EndOfBlock || v == EndOfStream {
				return out, v
			}
			out = append(out, byte(v))
		}
	}

	out, v := readBlock()
	if got, want := out, fixtureData["hello"]; !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
	if got, want := v, EndOfBlock; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	// The second stream's block marker sits right after its 4-byte
	// stream header.
	if got, want := d.ReportedBytesConsumed(), uint64(len(f1)+4); got != want {
		t.Errorf("got reported position %v, want %v", got, want)
	}

	out, v = readBlock()
	if got, want := out, fixtureData["hello"]; !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
	if got, want := v, EndOfBlock; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got := d.ReportedBytesConsumed(); !containsOffset(eosOffsets(len(file)), got) {
		t.Errorf("got reported position %v, want one of %v", got, eosOffsets(len(file)))
	}

	if v, err := d.ReadByte(); err != nil || v != EndOfStream {
		t.Errorf("got %v, %v, want %v", v, err, EndOfStream)
	}
}

func TestByBlockMultiBlock(t *testing.T) {
	file := fixtures["rand300KB"]
	var infos []BlockInfo
	d, err := NewDecoder(bytes.NewReader(file), ByBlock,
		BlockSizeHint(1), OnBlock(func(bi BlockInfo) { infos = append(infos, bi) }))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	var (
		out        []byte
		boundaries int
		prev       uint64
	)
	for {
		v, err := d.ReadByte()
		if err != nil {
			t.Fatal(err)
		}
		if pos := d.ReportedBytesConsumed(); pos < prev || pos > uint64(len(file)) {
			t.Fatalf("reported position went from %v to %v", prev, pos)
		} else {
			prev = pos
		}
		if v == EndOfStream {
			break
		}
		if v == EndOfBlock {
			boundaries++
			continue
		}
		out = append(out, byte(v))
	}

	if got, want := out, fixtureData["rand300KB"]; !bytes.Equal(got, want) {
		t.Errorf("got %v bytes, want %v bytes", len(got), len(want))
	}
	// 300KB of incompressible data at the 100KB block size spans
	// multiple blocks.
	if boundaries < 2 {
		t.Errorf("got %v boundaries, want several", boundaries)
	}
	if got, want := len(infos), boundaries; got != want {
		t.Errorf("got %v block callbacks, want %v", got, want)
	}
	total := 0
	for _, bi := range infos {
		total += bi.Size
		if bi.Randomized {
			t.Errorf("unexpected randomized block")
		}
	}
	if got, want := total, len(fixtureData["rand300KB"]); got != want {
		t.Errorf("got %v bytes across callbacks, want %v", got, want)
	}
}

func TestByBlockAdjustReported(t *testing.T) {
	file := fixtures["hello"]
	d, err := NewDecoder(bytes.NewReader(stripMagic(t, file)), ByBlock, BlockSizeHint(1))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	d.AdjustReportedBytes(2)

	// The first block marker follows the 4-byte stream header.
	if got, want := d.ReportedBytesConsumed(), uint64(4); got != want {
		t.Errorf("got reported position %v, want %v", got, want)
	}

	if _, _, err := drainBytes(d); err != nil {
		t.Fatal(err)
	}
	if got := d.ReportedBytesConsumed(); !containsOffset(eosOffsets(len(file)), got) {
		t.Errorf("got reported position %v, want one of %v", got, eosOffsets(len(file)))
	}
}

func TestByBlockNoMarker(t *testing.T) {
	junk := make([]byte, 64)
	d, err := NewDecoder(bytes.NewReader(junk), ByBlock)
	if err != nil {
		t.Fatal(err)
	}
	if v, err := d.ReadByte(); err != nil || v != EndOfStream {
		t.Fatalf("got %v, %v, want %v", v, err, EndOfStream)
	}
	if got, want := d.ReportedBytesConsumed(), uint64(len(junk)); got != want {
		t.Errorf("got reported position %v, want %v", got, want)
	}
}

func TestReadIntoSentinels(t *testing.T) {
	d, err := NewDecoder(bytes.NewReader(fixtures["hello"]), ByBlock, BlockSizeHint(1))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	var out []byte
	buf := make([]byte, 5)
	sawBlock, sawEOF := false, false
	for !sawEOF {
		n, err := d.ReadInto(buf)
		switch err {
		case nil:
			out = append(out, buf[:n]...)
		case ErrEndOfBlock:
			if n != 0 {
				t.Errorf("got %v bytes with ErrEndOfBlock, want 0", n)
			}
			sawBlock = true
		case io.EOF:
			sawEOF = true
		default:
			t.Fatal(err)
		}
	}
	if !sawBlock {
		t.Errorf("never saw ErrEndOfBlock")
	}
	if got, want := out, fixtureData["hello"]; !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}

	if _, err := d.ReadInto(nil); err != ErrInvalidArgument {
		t.Errorf("got %v, want %v", err, ErrInvalidArgument)
	}
}

func TestDecoderArguments(t *testing.T) {
	if _, err := NewDecoder(bytes.NewReader(nil), Mode(3)); err != ErrInvalidArgument {
		t.Errorf("got %v, want %v", err, ErrInvalidArgument)
	}
	if _, err := NewDecoder(bytes.NewReader(nil), ByBlock, BlockSizeHint(0)); err != ErrInvalidArgument {
		t.Errorf("got %v, want %v", err, ErrInvalidArgument)
	}
	if _, err := NewDecoder(bytes.NewReader(nil), ByBlock, BlockSizeHint(10)); err != ErrInvalidArgument {
		t.Errorf("got %v, want %v", err, ErrInvalidArgument)
	}
}

func TestCloseIdempotent(t *testing.T) {
	d, err := NewDecoder(bytes.NewReader(fixtures["hello"]), ByBlock, BlockSizeHint(1))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := d.ReadByte(); err != ErrClosed {
		t.Errorf("got %v, want %v", err, ErrClosed)
	}
}

func TestBlockReaderSingleBlock(t *testing.T) {
	// NewBlockReader decodes exactly one pre-located block: point it
	// just past the first block marker of a stream and it must stop at
	// that block's end even though more data follows.
	file := append(append([]byte{}, fixtures["hello"]...), fixtures["hello"]...)
	src := file[10:] // skip "BZ", "h1" and the 6-byte block marker
	rd := NewBlockReader(baseBlockSize, src, 0)
	out, err := ioutil.ReadAll(rd)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := out, fixtureData["hello"]; !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}
