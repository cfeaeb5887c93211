// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package bzip2 implements a streaming BZip2 decoder built for
// split-aware readers: it can either decode a whole stream as a
// contiguous byte sequence, or resynchronize to an arbitrary bit offset
// mid-stream and report, at each block boundary, exactly how many source
// bytes have been consumed.
package bzip2

import "io"

// Mode selects how a Decoder locates and reports block boundaries.
type Mode int

const (
	// Continuous expects a stream headed by the "h"+level header (the
	// leading "BZ" is assumed already stripped by the caller) and emits
	// a single contiguous byte stream, terminating at end-of-stream.
	// ReadByte never returns EndOfBlock in this mode, and reported
	// position tracking is not meaningful.
	Continuous Mode = iota
	// ByBlock resynchronizes to the next 48-bit block marker on
	// construction and after every block, returning EndOfBlock at each
	// boundary along with an updated reported position. This is the
	// mode split-based readers use to carve exact byte ranges.
	ByBlock
)

const (
	// EndOfStream is returned once the stream's end-of-stream marker and
	// combined CRC have been verified.
	EndOfStream = -1
	// EndOfBlock is returned, in ByBlock mode only, once a block's
	// bytes have all been delivered and its CRC verified.
	EndOfBlock = -2
)

// Option configures a Decoder at construction.
type Option func(*options)

type options struct {
	blockSizeLevel int
	onBlock        func(BlockInfo)
}

// BlockSizeHint tells a ByBlock-mode Decoder the stream's blockSize100k
// level (1..9), used to size buffers and bound overrun checks. ByBlock
// decoders never parse the stream's own "h"+level header -- by design
// they may be constructed at an arbitrary mid-stream offset that never
// sees it -- so a caller that already knows the level (typically by
// having parsed the file's leading header once, itself) should supply it
// here. It defaults to 9, matching the historical behaviour of treating
// the largest block size as the safe upper bound until told otherwise.
func BlockSizeHint(level int) Option {
	return func(o *options) { o.blockSizeLevel = level }
}

// OnBlock registers a callback invoked after each block is fully decoded
// and its CRC verified, receiving a summary of that block. It is mainly
// useful for progress reporting in ByBlock mode.
func OnBlock(fn func(BlockInfo)) Option {
	return func(o *options) { o.onBlock = fn }
}

// BlockInfo summarizes one decoded block, reported via OnBlock.
type BlockInfo struct {
	Randomized bool
	Size       int
	CRC        uint32
}

type controllerState int

const (
	stateNeedBlock controllerState = iota
	stateInBlock
	stateEOF
)

// Decoder is the top-level BZip2 stream state machine described by the
// StreamController component: it owns the bit reader, the per-block
// working set (ll8/tt, reused across blocks), and the CRC and position
// tracking required by both Continuous and ByBlock modes. A Decoder is
// not safe for concurrent use.
type Decoder struct {
	mode Mode
	opts options

	br *bitReader

	blockLevel int
	blockSize  int

	state controllerState
	cur   blockCursor

	// single suppresses the end-of-block resynchronization scan: the
	// Decoder serves exactly one pre-located block (NewBlockReader).
	single bool

	blockCRC     crcState
	wantBlockCRC uint32
	combinedCRC  uint32

	posOffset   uint64
	posReported uint64

	tt  []uint32
	ll8 []byte

	closed bool
	err    error

	// pendingEOB records an EndOfBlock that ReadInto reached after it had
	// already written bytes, so that the next ReadInto call reports it.
	pendingEOB bool
}

// NewDecoder constructs a Decoder reading from r in the given mode. In
// ByBlock mode it immediately resynchronizes to the next block (or
// end-of-stream) marker; a failed initial scan is not an error,
// it simply leaves the Decoder positioned at EndOfStream.
func NewDecoder(r io.Reader, mode Mode, opts ...Option) (*Decoder, error) {
	d := &Decoder{
		mode: mode,
		br:   newBitReader(r),
		opts: options{blockSizeLevel: 9},
	}
	for _, o := range opts {
		o(&d.opts)
	}
	d.blockLevel = d.opts.blockSizeLevel
	if d.blockLevel < 1 || d.blockLevel > 9 {
		return nil, ErrInvalidArgument
	}
	d.blockSize = d.blockLevel * baseBlockSize

	switch mode {
	case Continuous:
		if err := d.readStreamHeader(); err != nil {
			return nil, err
		}
		d.state = stateNeedBlock
	case ByBlock:
		if err := d.resync(); err != nil {
			return nil, err
		}
	default:
		return nil, ErrInvalidArgument
	}
	return d, nil
}

// readStreamHeader consumes the "h"+level header that precedes a
// Continuous-mode stream (the leading "BZ" is the caller's concern).
func (d *Decoder) readStreamHeader() error {
	h, err := d.br.ReadUByte()
	if err != nil {
		return err
	}
	if h != 'h' {
		return StructuralError("bad stream header")
	}
	lvl, err := d.br.ReadUByte()
	if err != nil {
		return err
	}
	if lvl < '1' || lvl > '9' {
		return StructuralError("bad stream header")
	}
	d.blockLevel = int(lvl - '0')
	d.blockSize = d.blockLevel * baseBlockSize
	return nil
}

func (d *Decoder) growTT() {
	if cap(d.tt) < d.blockSize {
		d.tt = make([]uint32, d.blockSize)
	} else {
		d.tt = d.tt[:d.blockSize]
	}
	if cap(d.ll8) < d.blockSize {
		d.ll8 = make([]byte, d.blockSize)
	} else {
		d.ll8 = d.ll8[:d.blockSize]
	}
}

// advance reads the next 48-bit token at the current (block-aligned)
// bit position of a Continuous stream and either starts the block it
// introduces or processes the end-of-stream footer.
func (d *Decoder) advance() (int, error) {
	v, err := d.br.ReadBits(48)
	if err != nil {
		return 0, err
	}
	switch v {
	case blockMagicBits:
		return 0, d.startBlock()
	case eosMagicBits:
		cont, err := d.finishStream()
		if err != nil {
			return 0, err
		}
		if cont {
			return 0, nil
		}
		return EndOfStream, nil
	default:
		return 0, StructuralError("bad block header")
	}
}

// resync is the ByBlock transition: slide bit-by-bit to the next block
// or end-of-stream marker, setting the reported position to the byte
// offset at which the located marker begins. An end-of-stream footer is
// not terminal here: its combined CRC is verified and the scan keeps
// going, so back-to-back concatenated streams read as one sequence of
// blocks. The scan running out of input is terminal, and deliberately
// not an error: for a split reader it means the assigned range is
// exhausted, and the reported position tells it where things stood (the
// raw consumed count, or the offset of the final footer if the scan ran
// past one).
func (d *Decoder) resync() error {
	sawEOS := false
	for {
		idx := scanFor(d.br, marker{blockMagicBits, 48}, marker{eosMagicBits, 48})
		if idx < 0 {
			if !sawEOS {
				d.posReported = d.posOffset + d.br.BytesConsumed()
			}
			d.state = stateEOF
			return nil
		}
		d.posReported = d.posOffset + markerStartOffset(d.br, 48)
		if idx == 0 {
			return d.startBlock()
		}
		want, err := d.br.ReadInt32()
		if err != nil {
			d.state = stateEOF
			return nil
		}
		if want != d.combinedCRC {
			return &CRCError{Stream: true, Want: want, Got: d.combinedCRC}
		}
		d.combinedCRC = 0
		sawEOS = true
	}
}

func (d *Decoder) startBlock() error {
	d.growTT()
	var unzftab [256]uint32
	hdr, last, err := decodeBlockBody(d.br, d.blockSize, d.ll8, &unzftab)
	if err != nil {
		return err
	}
	tt := d.tt[:last+1]
	for i, b := range d.ll8[:last+1] {
		tt[i] = uint32(b)
	}
	start, err := buildIBWT(tt, &unzftab, hdr.origPtr)
	if err != nil {
		return err
	}
	d.cur.init(tt, start, hdr.randomized)
	d.blockCRC.reset()
	d.wantBlockCRC = hdr.storedCRC
	d.state = stateInBlock
	return nil
}

func (d *Decoder) finishBlock() error {
	got := d.blockCRC.sum32()
	if got != d.wantBlockCRC {
		return &CRCError{Stream: false, Want: d.wantBlockCRC, Got: got}
	}
	d.combinedCRC = foldCombinedCRC(d.combinedCRC, got)
	if d.opts.onBlock != nil {
		d.opts.onBlock(BlockInfo{Randomized: d.cur.randomized, Size: d.cur.last + 1, CRC: got})
	}
	return nil
}

// finishStream verifies a Continuous stream's end-of-stream combined
// CRC, then checks for a concatenated "BZ"+header and, if found, resets
// state to decode that stream too -- bzip2 files are routinely the
// concatenation of several independently compressed streams, and a
// streaming decoder is expected to see through the seam. It reports
// whether decoding continues (cont == true) or the Decoder has reached
// its true end (cont == false). ByBlock streams never come here; their
// footers are handled inside resync's marker scan.
func (d *Decoder) finishStream() (cont bool, err error) {
	want, err := d.br.ReadInt32()
	if err != nil {
		return false, err
	}
	if want != d.combinedCRC {
		return false, &CRCError{Stream: true, Want: want, Got: d.combinedCRC}
	}

	// A stream's footer is padded with 0..7 zero bits to a byte boundary;
	// any concatenated stream starts on that boundary.
	if n := d.br.liveBits(); n > 0 {
		if _, err := d.br.ReadBits(n); err != nil {
			return false, err
		}
	}

	b0, err := d.br.ReadUByte()
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			d.state = stateEOF
			return false, nil
		}
		return false, err
	}
	b1, err := d.br.ReadUByte()
	if err != nil {
		return false, err
	}
	if b0 != FileMagic[0] || b1 != FileMagic[1] {
		return false, StructuralError("bad stream header")
	}
	d.combinedCRC = 0
	if err := d.readStreamHeader(); err != nil {
		return false, err
	}
	d.state = stateNeedBlock
	return true, nil
}

func (d *Decoder) fail(err error) (int, error) {
	d.err = err
	d.state = stateEOF
	return 0, err
}

// ReadByte returns the next output byte (0..255), EndOfBlock (ByBlock
// mode only, at the end of each block), or EndOfStream.
func (d *Decoder) ReadByte() (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	if d.err != nil {
		return 0, d.err
	}
	for {
		switch d.state {
		case stateEOF:
			return EndOfStream, nil
		case stateNeedBlock:
			v, err := d.advance()
			if err != nil {
				return d.fail(err)
			}
			if v == EndOfStream {
				return EndOfStream, nil
			}
			continue
		case stateInBlock:
			b, ok := d.cur.next()
			if !ok {
				if err := d.finishBlock(); err != nil {
					return d.fail(err)
				}
				if d.mode == ByBlock {
					// Locate the next block before reporting the
					// boundary, so that the reported position a caller
					// reads alongside EndOfBlock already names the byte
					// offset of the following marker.
					if d.single {
						d.state = stateEOF
					} else if err := d.resync(); err != nil {
						return d.fail(err)
					}
					return EndOfBlock, nil
				}
				d.state = stateNeedBlock
				continue
			}
			d.blockCRC.updateByte(b)
			return int(b), nil
		}
	}
}

// ReadInto fills buf with decoded bytes, stopping early at a block or
// stream boundary, following the io.Reader convention rather than the
// single-sentinel-int convention of ReadByte: end-of-stream is reported
// as io.EOF, and (ByBlock mode only) an empty block-ending read is
// reported as ErrEndOfBlock. Either error is only returned once nothing
// was written on that call; a partially filled buf is returned with a
// nil error, and the boundary sentinel follows on the next call.
func (d *Decoder) ReadInto(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, ErrInvalidArgument
	}
	if d.pendingEOB {
		d.pendingEOB = false
		return 0, ErrEndOfBlock
	}
	n := 0
	for n < len(buf) {
		v, err := d.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		switch v {
		case EndOfStream:
			if n > 0 {
				return n, nil
			}
			return 0, io.EOF
		case EndOfBlock:
			if n > 0 {
				d.pendingEOB = true
				return n, nil
			}
			return 0, ErrEndOfBlock
		default:
			buf[n] = byte(v)
			n++
		}
	}
	return n, nil
}

// ReportedBytesConsumed returns the PositionTracker's reported counter:
// in ByBlock mode, the source-byte offset of the most recently located
// block or end-of-stream marker, or, when a scan runs out of input
// without having passed an end-of-stream marker, the raw count of bytes
// consumed; in Continuous mode this value is not meaningful.
func (d *Decoder) ReportedBytesConsumed() uint64 {
	return d.posReported
}

// AdjustReportedBytes offsets all future reported positions by n,
// letting a caller account for bytes it consumed (e.g. a leading "BZ")
// before handing the stream to this Decoder.
func (d *Decoder) AdjustReportedBytes(n uint64) {
	d.posOffset += n
	d.posReported += n
}

// Close releases the Decoder's buffers. It is idempotent.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.tt = nil
	d.ll8 = nil
	return nil
}
