package pngstream

import (
	"fmt"
	"image/color"
	"io"

	"github.com/klauspost/compress/zlib"
)

func (d *Decoder) channels() int {
	switch d.colorType {
	case ctTrueColor:
		return 3
	case ctGrayscaleAlpha:
		return 2
	case ctTrueColorAlpha:
		return 4
	}
	return 1
}

func (d *Decoder) decodeImage() error {
	zr, err := zlib.NewReader(idatReader{d})
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return FormatError("not enough pixel data")
		}
		return err
	}
	defer zr.Close()

	passes := progressive
	if d.interlace == 1 {
		passes = adam7
	}
	for _, pass := range passes {
		if err := d.readPass(zr, pass); err != nil {
			return err
		}
	}
	d.complete = true

	// Everything has been drawn at this point so a short stream is not
	// worth failing over, but trailing pixel data is.
	var tmp [1]byte
	if n, err := zr.Read(tmp[:]); n != 0 {
		return FormatError("too much pixel data")
	} else if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return err
	}

	// Skip to the end of the last IDAT chunk
	if _, err := io.Copy(io.Discard, idatReader{d}); err != nil && err != io.ErrUnexpectedEOF {
		return err
	}
	return nil
}

func (d *Decoder) readPass(r io.Reader, pass interlaceScan) error {
	width := (d.width - pass.xOffset + pass.xFactor - 1) / pass.xFactor
	height := (d.height - pass.yOffset + pass.yFactor - 1) / pass.yFactor
	if width <= 0 || height <= 0 {
		// Small interlaced images may have empty passes
		return nil
	}

	bitsPerPixel := d.channels() * d.depth
	bytesPerPixel := (bitsPerPixel + 7) / 8

	// The +1 is for the per-row filter type, which is at cr[0].
	rowSize := 1 + (int64(bitsPerPixel)*int64(width)+7)/8
	if rowSize != int64(int(rowSize)) {
		return UnsupportedError("dimension overflow")
	}
	// cr and pr are the bytes for the current and previous row.
	cr := make([]uint8, rowSize)
	pr := make([]uint8, rowSize)

	for y := 0; y < height; y++ {
		if _, err := io.ReadFull(r, cr); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return FormatError("not enough pixel data")
			}
			return err
		}

		cdat, pdat := cr[1:], pr[1:]
		if err := unfilter(cr[0], cdat, pdat, bytesPerPixel); err != nil {
			return err
		}

		dy := pass.yOffset + y*pass.yFactor
		bh := min(pass.blockHeight, d.height-dy)
		for x := 0; x < width; x++ {
			c, err := d.pixelAt(cdat, x)
			if err != nil {
				return err
			}
			dx := pass.xOffset + x*pass.xFactor
			if err := d.draw(dx, dy, min(pass.blockWidth, d.width-dx), bh, c); err != nil {
				return err
			}
		}

		pr, cr = cr, pr
	}
	return nil
}

// draw hands a block to the Drawer, turning a panic in the Drawer into an
// error.
func (d *Decoder) draw(x, y, w, h int, c color.NRGBA) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pngstream: drawer panicked: %v", r)
		}
	}()
	d.drawer.DrawBlock(d, x, y, w, h, c)
	return nil
}

func unfilter(ft byte, cdat, pdat []byte, bytesPerPixel int) error {
	switch ft {
	case ftNone:
		// No-op.
	case ftSub:
		for i := bytesPerPixel; i < len(cdat); i++ {
			cdat[i] += cdat[i-bytesPerPixel]
		}
	case ftUp:
		for i, p := range pdat {
			cdat[i] += p
		}
	case ftAverage:
		// The first column has no column to the left of it, so it is a
		// special case.
		for i := 0; i < bytesPerPixel && i < len(cdat); i++ {
			cdat[i] += pdat[i] / 2
		}
		for i := bytesPerPixel; i < len(cdat); i++ {
			cdat[i] += uint8((int(cdat[i-bytesPerPixel]) + int(pdat[i])) / 2)
		}
	case ftPaeth:
		for i := range cdat {
			var a, c int
			b := int(pdat[i])
			if i >= bytesPerPixel {
				a, c = int(cdat[i-bytesPerPixel]), int(pdat[i-bytesPerPixel])
			}
			cdat[i] += uint8(paeth(a, b, c))
		}
	default:
		return FormatError("bad filter type")
	}
	return nil
}

func paeth(a, b, c int) int {
	p := a + b - c
	pa, pb, pc := abs(p-a), abs(p-b), abs(p-c)
	if pa <= pb && pa <= pc {
		return a
	} else if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// sample returns the x'th packed sample of a row with a bit depth below 8.
func (d *Decoder) sample(row []byte, x int) uint8 {
	bit := x * d.depth
	shift := 8 - d.depth - bit%8
	return row[bit/8] >> uint(shift) & (1<<uint(d.depth) - 1)
}

func (d *Decoder) pixelAt(row []byte, x int) (color.NRGBA, error) {
	switch d.colorType {
	case ctGrayscale:
		var y uint8
		var transparent bool
		switch d.depth {
		case 16:
			y = row[2*x]
			transparent = d.useTransparent && row[2*x] == d.transparent[0] && row[2*x+1] == d.transparent[1]
		case 8:
			y = row[x]
			transparent = d.useTransparent && d.transparent[0] == 0 && row[x] == d.transparent[1]
		default:
			s := d.sample(row, x)
			y = uint8(int(s) * 0xff / (1<<uint(d.depth) - 1))
			transparent = d.useTransparent && d.transparent[0] == 0 && s == d.transparent[1]
		}
		if transparent {
			return color.NRGBA{y, y, y, 0x00}, nil
		}
		return color.NRGBA{y, y, y, 0xff}, nil
	case ctTrueColor:
		c := color.NRGBA{A: 0xff}
		if d.depth == 16 {
			p := row[6*x : 6*x+6]
			c.R, c.G, c.B = p[0], p[2], p[4]
			if d.useTransparent && string(p) == string(d.transparent[:6]) {
				c.A = 0x00
			}
		} else {
			p := row[3*x : 3*x+3]
			c.R, c.G, c.B = p[0], p[1], p[2]
			t := d.transparent
			if d.useTransparent && t[0] == 0 && t[2] == 0 && t[4] == 0 &&
				p[0] == t[1] && p[1] == t[3] && p[2] == t[5] {
				c.A = 0x00
			}
		}
		return c, nil
	case ctPaletted:
		var i uint8
		if d.depth == 8 {
			i = row[x]
		} else {
			i = d.sample(row, x)
		}
		if int(i) >= len(d.palette) {
			return color.NRGBA{}, FormatError("palette index out of range")
		}
		return d.palette[i], nil
	case ctGrayscaleAlpha:
		if d.depth == 16 {
			return color.NRGBA{row[4*x], row[4*x], row[4*x], row[4*x+2]}, nil
		}
		return color.NRGBA{row[2*x], row[2*x], row[2*x], row[2*x+1]}, nil
	default:
		if d.depth == 16 {
			p := row[8*x : 8*x+8]
			return color.NRGBA{p[0], p[2], p[4], p[6]}, nil
		}
		p := row[4*x : 4*x+4]
		return color.NRGBA{p[0], p[1], p[2], p[3]}, nil
	}
}
