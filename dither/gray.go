package dither

import "github.com/bodgit/epdpng/palette"

// Gray dithers the luma of each pixel down to a few gray levels.
type Gray struct {
	cur, next []int16
	mask      uint8
}

// NewGray returns a Gray ditherer for a panel width pixels wide. With bits
// set to 1 only black and index 4 (the lowest index with the top bit set) are
// produced, otherwise all eight levels are.
func NewGray(width, bits int) *Gray {
	mask := uint8(0xe0)
	if bits == 1 {
		mask = 0x80
	}
	return &Gray{
		cur:  make([]int16, width),
		next: make([]int16, width),
		mask: mask,
	}
}

// Dither implements Ditherer.
func (d *Gray) Dither(r, g, b uint8, x int) uint8 {
	y := palette.Luma(r, g, b)
	if x < 0 || x >= len(d.cur) {
		return (y & d.mask) >> 5
	}

	old := clamp(int32(d.cur[x]) + int32(y))
	quantized := old & d.mask
	diffuse(d.cur, d.next, x, len(d.cur), int32(old-quantized))

	return quantized >> 5
}

// Swap implements Ditherer.
func (d *Gray) Swap() {
	d.cur, d.next = d.next, d.cur
	for i := range d.next {
		d.next[i] = 0
	}
}

// Reset implements Ditherer.
func (d *Gray) Reset() {
	for i := range d.cur {
		d.cur[i], d.next[i] = 0, 0
	}
}
