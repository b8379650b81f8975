package pngstream

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"image/color"
	"io"
)

// event is sent by the decoding goroutine each time it has used up the
// bytes handed to it, or when it terminates.
type event struct {
	consumed int
	done     bool
	err      error
}

// input presents the pieces passed to Feed as one continuous stream. It
// blocks the decoding goroutine until the next piece arrives, handing
// control back to the caller of Feed in the meantime.
type input struct {
	chunks   <-chan []byte
	events   chan<- event
	buf      []byte
	consumed int
	primed   bool
	eof      bool
}

func (in *input) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(in.buf) == 0 {
		if in.eof {
			return 0, io.EOF
		}
		if in.primed {
			in.events <- event{consumed: in.consumed}
		}
		in.primed = true
		b, ok := <-in.chunks
		if !ok {
			in.eof = true
			return 0, io.EOF
		}
		in.buf, in.consumed = b, 0
	}
	n := copy(p, in.buf)
	in.buf = in.buf[n:]
	in.consumed += n
	return n, nil
}

type chunkHeader struct {
	length uint32
	typ    string
}

// DefaultMaxWidth is the widest image accepted when Decoder.MaxWidth is zero.
const DefaultMaxWidth = 1 << 14

// Decoder is an incremental PNG decoder. The zero value is not usable, use
// NewDecoder. A Decoder must always be closed to release its resources.
type Decoder struct {
	// MaxWidth is the widest image the decoder accepts. Row buffers are
	// sized by the image width, so it bounds the memory used by a draw. If
	// zero, DefaultMaxWidth is used.
	MaxWidth int

	drawer Drawer

	chunks chan []byte
	events chan event

	started  bool
	finished bool
	err      error

	// Everything below is owned by the decoding goroutine. The Drawer may
	// read it, as may the caller once Feed or Close has returned.
	in            input
	crc           hash.Hash32
	width, height int
	depth         int
	colorType     int
	interlace     int
	palette       []color.NRGBA
	stage         int
	complete      bool
	idatLength    uint32
	pending       *chunkHeader
	tmp           [3 * 256]byte

	// useTransparent and transparent are used for grayscale and truecolor
	// transparency, as opposed to palette transparency.
	useTransparent bool
	transparent    [6]byte
}

// NewDecoder returns a decoder that hands decoded pixels to dr.
func NewDecoder(dr Drawer) *Decoder {
	d := &Decoder{
		drawer: dr,
		chunks: make(chan []byte),
		events: make(chan event),
		crc:    crc32.NewIEEE(),
	}
	d.in = input{
		chunks: d.chunks,
		events: d.events,
	}
	return d
}

// Width returns the image width, or zero if the header has not been parsed
// yet.
func (d *Decoder) Width() int {
	return d.width
}

// Height returns the image height, or zero if the header has not been parsed
// yet.
func (d *Decoder) Height() int {
	return d.height
}

// Feed passes the next piece of the PNG stream to the decoder, decoding and
// drawing as much of the image as p allows. It returns the number of bytes of
// p the decoder used. Fewer than len(p) bytes are only used if the image ends
// within p. Any error is fatal and is returned again by subsequent calls.
func (d *Decoder) Feed(p []byte) (int, error) {
	if d.finished {
		return 0, d.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if !d.started {
		d.started = true
		go d.run()
	}

	d.chunks <- p
	ev := <-d.events
	if ev.done {
		d.finished = true
		d.err = ev.err
	}
	return ev.consumed, ev.err
}

// Close signals the end of the stream. It returns an error if the stream
// ended before all of the pixel data could be decoded.
func (d *Decoder) Close() error {
	if !d.started {
		d.started, d.finished = true, true
		d.err = io.ErrUnexpectedEOF
		return d.err
	}
	if !d.finished {
		close(d.chunks)
		ev := <-d.events
		d.finished = true
		d.err = ev.err
	}
	return d.err
}

func (d *Decoder) maxWidth() int {
	if d.MaxWidth > 0 {
		return d.MaxWidth
	}
	return DefaultMaxWidth
}

func (d *Decoder) run() {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pngstream: internal error: %v", r)
		}
		d.events <- event{consumed: d.in.consumed, done: true, err: err}
	}()
	err = d.decode()
}

func readFull(r io.Reader, b []byte) error {
	_, err := io.ReadFull(r, b)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

func (d *Decoder) checkHeader() error {
	if err := readFull(&d.in, d.tmp[:len(pngHeader)]); err != nil {
		return err
	}
	if string(d.tmp[:len(pngHeader)]) != pngHeader {
		return FormatError("not a PNG file")
	}
	return nil
}

func (d *Decoder) nextChunk() (chunkHeader, error) {
	if d.pending != nil {
		h := *d.pending
		d.pending = nil
		return h, nil
	}
	if _, err := io.ReadFull(&d.in, d.tmp[:8]); err != nil {
		return chunkHeader{}, err
	}
	d.crc.Reset()
	d.crc.Write(d.tmp[4:8])
	return chunkHeader{
		length: binary.BigEndian.Uint32(d.tmp[:4]),
		typ:    string(d.tmp[4:8]),
	}, nil
}

func (d *Decoder) verifyChecksum() error {
	if err := readFull(&d.in, d.tmp[:4]); err != nil {
		return err
	}
	if binary.BigEndian.Uint32(d.tmp[:4]) != d.crc.Sum32() {
		return FormatError("invalid checksum")
	}
	return nil
}

func (d *Decoder) decode() error {
	if err := d.checkHeader(); err != nil {
		return err
	}

	for {
		h, err := d.nextChunk()
		if err != nil {
			// Tolerate a missing IEND once every pixel has been drawn
			if d.complete && (err == io.EOF || err == io.ErrUnexpectedEOF) {
				return nil
			}
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
		if h.length > 0x7fffffff {
			return FormatError(fmt.Sprintf("bad chunk length: %d", h.length))
		}

		switch h.typ {
		case "IHDR":
			if d.stage != dsStart {
				return chunkOrderError
			}
			d.stage = dsSeenIHDR
			err = d.parseIHDR(h.length)
		case "PLTE":
			if d.stage != dsSeenIHDR {
				return chunkOrderError
			}
			d.stage = dsSeenPLTE
			err = d.parsePLTE(h.length)
		case "tRNS":
			if d.stage < dsSeenIHDR || d.stage >= dsSeentRNS {
				return chunkOrderError
			}
			if d.colorType == ctPaletted && d.stage != dsSeenPLTE {
				return chunkOrderError
			}
			d.stage = dsSeentRNS
			err = d.parsetRNS(h.length)
		case "IDAT":
			if d.stage < dsSeenIHDR || d.stage >= dsSeenIDAT {
				return chunkOrderError
			}
			if d.colorType == ctPaletted && d.stage == dsSeenIHDR {
				return chunkOrderError
			}
			d.stage = dsSeenIDAT
			d.idatLength = h.length
			err = d.decodeImage()
		case "IEND":
			if d.stage != dsSeenIDAT {
				return chunkOrderError
			}
			if h.length != 0 {
				return FormatError("bad IEND length")
			}
			d.stage = dsSeenIEND
			return d.verifyChecksum()
		default:
			// Bit 5 of the first byte clear marks a critical chunk
			if h.typ[0]&0x20 == 0 {
				return UnsupportedError("critical chunk " + h.typ)
			}
			err = d.skip(h.length)
		}
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
	}
}

func (d *Decoder) skip(length uint32) error {
	var ignored [4096]byte
	for length > 0 {
		n := len(ignored)
		if uint32(n) > length {
			n = int(length)
		}
		if err := readFull(&d.in, ignored[:n]); err != nil {
			return err
		}
		d.crc.Write(ignored[:n])
		length -= uint32(n)
	}
	return d.verifyChecksum()
}

func (d *Decoder) parseIHDR(length uint32) error {
	if length != 13 {
		return FormatError("bad IHDR length")
	}
	if err := readFull(&d.in, d.tmp[:13]); err != nil {
		return err
	}
	d.crc.Write(d.tmp[:13])
	if d.tmp[10] != 0 {
		return UnsupportedError("compression method")
	}
	if d.tmp[11] != 0 {
		return UnsupportedError("filter method")
	}
	if d.tmp[12] > 1 {
		return FormatError("invalid interlace method")
	}

	w := int32(binary.BigEndian.Uint32(d.tmp[0:4]))
	h := int32(binary.BigEndian.Uint32(d.tmp[4:8]))
	if w <= 0 || h <= 0 {
		return FormatError("non-positive dimension")
	}
	nPixels64 := int64(w) * int64(h)
	if nPixels64 != int64(int(nPixels64)) || int(w) > d.maxWidth() {
		return UnsupportedError("dimension overflow")
	}

	depth, ct := int(d.tmp[8]), int(d.tmp[9])
	valid := false
	switch ct {
	case ctGrayscale:
		valid = depth == 1 || depth == 2 || depth == 4 || depth == 8 || depth == 16
	case ctPaletted:
		valid = depth == 1 || depth == 2 || depth == 4 || depth == 8
	case ctTrueColor, ctGrayscaleAlpha, ctTrueColorAlpha:
		valid = depth == 8 || depth == 16
	}
	if !valid {
		return UnsupportedError(fmt.Sprintf("bit depth %d, color type %d", depth, ct))
	}

	d.width, d.height = int(w), int(h)
	d.depth, d.colorType = depth, ct
	d.interlace = int(d.tmp[12])
	return d.verifyChecksum()
}

func (d *Decoder) parsePLTE(length uint32) error {
	np := int(length / 3)
	if length%3 != 0 || np <= 0 || np > 256 || np > 1<<uint(d.depth) {
		return FormatError("bad PLTE length")
	}
	if err := readFull(&d.in, d.tmp[:3*np]); err != nil {
		return err
	}
	d.crc.Write(d.tmp[:3*np])
	switch d.colorType {
	case ctPaletted:
		d.palette = make([]color.NRGBA, np)
		for i := range d.palette {
			d.palette[i] = color.NRGBA{d.tmp[3*i+0], d.tmp[3*i+1], d.tmp[3*i+2], 0xff}
		}
	case ctTrueColor, ctTrueColorAlpha:
		// As per the PNG spec, a PLTE chunk is optional (and for practical
		// purposes, ignorable) for these color types.
	default:
		return FormatError("PLTE, color type mismatch")
	}
	return d.verifyChecksum()
}

func (d *Decoder) parsetRNS(length uint32) error {
	switch d.colorType {
	case ctGrayscale:
		if length != 2 {
			return FormatError("bad tRNS length")
		}
	case ctTrueColor:
		if length != 6 {
			return FormatError("bad tRNS length")
		}
	case ctPaletted:
		if length > uint32(len(d.palette)) {
			return FormatError("bad tRNS length")
		}
	default:
		return FormatError("tRNS, color type mismatch")
	}
	n := int(length)
	if err := readFull(&d.in, d.tmp[:n]); err != nil {
		return err
	}
	d.crc.Write(d.tmp[:n])

	if d.colorType == ctPaletted {
		for i := 0; i < n; i++ {
			d.palette[i].A = d.tmp[i]
		}
	} else {
		d.useTransparent = true
		copy(d.transparent[:], d.tmp[:n])
	}
	return d.verifyChecksum()
}

// idatReader presents one or more IDAT chunks as one continuous stream,
// verifying the checksum of each. When a chunk other than IDAT follows, its
// header is kept for the main chunk loop and io.EOF is returned.
type idatReader struct {
	d *Decoder
}

func (r idatReader) Read(p []byte) (int, error) {
	d := r.d
	if len(p) == 0 {
		return 0, nil
	}
	for d.idatLength == 0 {
		if d.pending != nil {
			return 0, io.EOF
		}
		if err := d.verifyChecksum(); err != nil {
			return 0, err
		}
		h, err := d.nextChunk()
		if err != nil {
			return 0, err
		}
		if h.typ != "IDAT" {
			d.pending = &h
			return 0, io.EOF
		}
		d.idatLength = h.length
	}
	if int(d.idatLength) < 0 {
		return 0, UnsupportedError("IDAT chunk length overflow")
	}
	n := len(p)
	if uint32(n) > d.idatLength {
		n = int(d.idatLength)
	}
	n, err := d.in.Read(p[:n])
	d.crc.Write(p[:n])
	d.idatLength -= uint32(n)
	return n, err
}
