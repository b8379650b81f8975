package dither

import "github.com/bodgit/epdpng/palette"

// Color dithers each channel separately and picks the closest ink.
type Color struct {
	cur, next [3][]int16
	q         *palette.Closest
}

// NewColor returns a Color ditherer for a panel width pixels wide with the
// inks described by q.
func NewColor(width int, q *palette.Closest) *Color {
	d := &Color{q: q}
	for i := range d.cur {
		d.cur[i] = make([]int16, width)
		d.next[i] = make([]int16, width)
	}
	return d
}

// Dither implements Ditherer.
func (d *Color) Dither(r, g, b uint8, x int) uint8 {
	w := len(d.cur[0])
	if x < 0 || x >= w {
		return d.q.Index(r, g, b)
	}

	var old [3]uint8
	for i, v := range [3]uint8{r, g, b} {
		old[i] = clamp(int32(d.cur[i][x]) + int32(v))
	}
	idx := d.q.Index(old[0], old[1], old[2])

	var ink [3]uint8
	ink[0], ink[1], ink[2] = d.q.RGB(idx)
	for i := range old {
		diffuse(d.cur[i], d.next[i], x, w, int32(old[i])-int32(ink[i]))
	}

	return idx
}

// Swap implements Ditherer.
func (d *Color) Swap() {
	for i := range d.cur {
		d.cur[i], d.next[i] = d.next[i], d.cur[i]
		for j := range d.next[i] {
			d.next[i][j] = 0
		}
	}
}

// Reset implements Ditherer.
func (d *Color) Reset() {
	for i := range d.cur {
		for j := range d.cur[i] {
			d.cur[i][j], d.next[i][j] = 0, 0
		}
	}
}
