/*
Package pngstream implements a push-style PNG decoder.

Unlike image/png, the caller does not hand the decoder an io.Reader. Instead
bytes are fed to the decoder in arbitrarily sized pieces with Feed and every
decoded pixel is handed to a Drawer as soon as the row containing it has been
reconstructed. Only the current and previous scanline are ever held in memory
so images far larger than the available RAM can be rendered.

All color types and bit depths defined by the PNG specification are
supported, as are palette and tRNS transparency and Adam7 interlacing. For
interlaced images each pixel of a pass is delivered as a block covering the
area it represents until the later passes refine it.
*/
package pngstream

import "image/color"

// Color type, as per the PNG spec.
const (
	ctGrayscale      = 0
	ctTrueColor      = 2
	ctPaletted       = 3
	ctGrayscaleAlpha = 4
	ctTrueColorAlpha = 6
)

// Filter type, as per the PNG spec.
const (
	ftNone    = 0
	ftSub     = 1
	ftUp      = 2
	ftAverage = 3
	ftPaeth   = 4
)

// Decoding stage. IHDR, PLTE, tRNS, IDAT and IEND must appear in that order
// and IDAT chunks must be consecutive.
const (
	dsStart = iota
	dsSeenIHDR
	dsSeenPLTE
	dsSeentRNS
	dsSeenIDAT
	dsSeenIEND
)

const pngHeader = "\x89PNG\r\n\x1a\n"

// interlaceScan describes one pass over the image. For a non-interlaced
// image there is a single pass with all factors set to one.
type interlaceScan struct {
	xFactor, yFactor, xOffset, yOffset int
	// Size of the area each pixel of the pass covers until refined.
	blockWidth, blockHeight int
}

var (
	progressive = []interlaceScan{
		{1, 1, 0, 0, 1, 1},
	}
	adam7 = []interlaceScan{
		{8, 8, 0, 0, 8, 8},
		{8, 8, 4, 0, 4, 8},
		{4, 8, 0, 4, 4, 4},
		{4, 4, 2, 0, 2, 4},
		{2, 4, 0, 2, 2, 2},
		{2, 2, 1, 0, 1, 2},
		{1, 2, 0, 1, 1, 1},
	}
)

// A Drawer receives decoded pixels. x, y, w and h describe the area of the
// image covered by c, which is not alpha-premultiplied. DrawBlock is called
// synchronously from within Feed or Close.
type Drawer interface {
	DrawBlock(d *Decoder, x, y, w, h int, c color.NRGBA)
}

// DrawerFunc adapts an ordinary function to the Drawer interface.
type DrawerFunc func(d *Decoder, x, y, w, h int, c color.NRGBA)

// DrawBlock calls f(d, x, y, w, h, c).
func (f DrawerFunc) DrawBlock(d *Decoder, x, y, w, h int, c color.NRGBA) {
	f(d, x, y, w, h, c)
}

// A FormatError reports that the input is not a valid PNG.
type FormatError string

func (e FormatError) Error() string { return "pngstream: invalid format: " + string(e) }

// An UnsupportedError reports that the input uses a valid but unimplemented
// PNG feature.
type UnsupportedError string

func (e UnsupportedError) Error() string { return "pngstream: unsupported feature: " + string(e) }

var chunkOrderError = FormatError("chunk out of order")
