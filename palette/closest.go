package palette

import (
	"image/color"
)

// Inks is the set of inks of a seven color panel, in index order.
var Inks = color.Palette{
	color.RGBA{0x00, 0x00, 0x00, 0xff}, // black
	color.RGBA{0xff, 0xff, 0xff, 0xff}, // white
	color.RGBA{0x00, 0xff, 0x00, 0xff}, // green
	color.RGBA{0x00, 0x00, 0xff, 0xff}, // blue
	color.RGBA{0xff, 0x00, 0x00, 0xff}, // red
	color.RGBA{0xff, 0xff, 0x00, 0xff}, // yellow
	color.RGBA{0xff, 0x80, 0x00, 0xff}, // orange
}

// Closest quantizes to whichever palette entry is nearest in RGB space.
type Closest struct {
	rgb [][3]uint8
}

// NewClosest returns a Closest quantizer for p. At most 256 entries of p are
// used.
func NewClosest(p color.Palette) *Closest {
	if len(p) > 256 {
		p = p[:256]
	}
	q := &Closest{
		rgb: make([][3]uint8, len(p)),
	}
	for i, c := range p {
		r, g, b, _ := c.RGBA()
		q.rgb[i] = [3]uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
	}
	return q
}

// Len returns the number of palette entries.
func (q *Closest) Len() int {
	return len(q.rgb)
}

// RGB returns the components of palette entry i.
func (q *Closest) RGB(i uint8) (uint8, uint8, uint8) {
	c := q.rgb[i]
	return c[0], c[1], c[2]
}

func sqDiff(x, y uint8) uint32 {
	d := int32(x) - int32(y)
	return uint32(d * d)
}

// Index implements Quantizer. Ties are resolved in favour of the lowest
// index.
func (q *Closest) Index(r, g, b uint8) uint8 {
	var best uint8
	bestSum := uint32(1<<32 - 1)
	for i, c := range q.rgb {
		sum := sqDiff(r, c[0]) + sqDiff(g, c[1]) + sqDiff(b, c[2])
		if sum < bestSum {
			best, bestSum = uint8(i), sum
		}
	}
	return best
}
