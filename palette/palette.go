/*
Package palette maps 24-bit RGB values onto the native color indices of an
e-paper panel.

Grayscale panels are driven with eight gray levels and the mapping is a plain
truncation of the pixel's luma. Color panels have a small fixed set of inks
and each pixel is mapped to the closest one.

Which kind of panel is being driven is a build time decision; the Native
constant is Grayscale unless the module is built with the epdcolor tag.
*/
package palette

// Capability describes what kind of colors a panel can show.
type Capability int

const (
	// Grayscale panels show eight levels of gray, 0 being black.
	Grayscale Capability = iota
	// Color panels show a handful of inks.
	Color
)

func (c Capability) String() string {
	switch c {
	case Grayscale:
		return "grayscale"
	case Color:
		return "color"
	}
	return "unknown"
}

// A Quantizer maps an opaque RGB value to a palette index.
type Quantizer interface {
	Index(r, g, b uint8) uint8
}

// Luma returns the 8-bit luma of an RGB value, weighted 54:183:19 as the
// panel firmware does.
func Luma(r, g, b uint8) uint8 {
	return uint8((54*uint32(r) + 183*uint32(g) + 19*uint32(b)) >> 8)
}
