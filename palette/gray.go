package palette

import "image/color"

// Levels is the number of gray levels of a grayscale panel.
const Levels = 8

// Gray quantizes to one of eight gray levels by truncating the luma to
// three bits.
type Gray struct{}

// Index implements Quantizer.
func (Gray) Index(r, g, b uint8) uint8 {
	return Luma(r, g, b) >> 5
}

// Grays is the color of each of the eight gray levels.
var Grays = func() color.Palette {
	p := make(color.Palette, Levels)
	for i := range p {
		y := uint8(i * 0xff / (Levels - 1))
		p[i] = color.Gray{Y: y}
	}
	return p
}()
