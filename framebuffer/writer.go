package framebuffer

import (
	"bufio"
	"errors"
	"io"
)

// ErrTooManyColors is returned by Encode when the palette does not fit in
// four bits per pixel.
var ErrTooManyColors = errors.New("framebuffer: too many colors for packed output")

type encoder struct {
	w *bufio.Writer
}

func (e *encoder) encode4(fb *Framebuffer) error {
	for y := 0; y < fb.Height(); y++ {
		for x := 0; x < fb.Width(); x += 2 {
			b := fb.ColorIndexAt(x, y) & 0x0f << 4
			if x+1 < fb.Width() {
				b |= fb.ColorIndexAt(x+1, y) & 0x0f
			}
			if err := e.w.WriteByte(b); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *encoder) encode1(fb *Framebuffer) error {
	for y := 0; y < fb.Height(); y++ {
		for x := 0; x < fb.Width(); x += 8 {
			var b byte
			for i := 0; i < 8 && x+i < fb.Width(); i++ {
				b |= fb.ColorIndexAt(x+i, y) & 0x01 << (7 - i)
			}
			if err := e.w.WriteByte(b); err != nil {
				return err
			}
		}
	}
	return nil
}

// Encode writes fb to w in the panel's native memory layout. In 1-bit mode
// eight pixels are packed into each byte, most significant bit first,
// otherwise two pixels are packed into each byte, high nibble first. Each
// row starts on a new byte.
func Encode(w io.Writer, fb *Framebuffer) error {
	if fb.Mode() != Mode1Bit && len(fb.Palette) > 16 {
		return ErrTooManyColors
	}

	e := encoder{w: bufio.NewWriter(w)}

	var err error
	if fb.Mode() == Mode1Bit {
		err = e.encode1(fb)
	} else {
		err = e.encode4(fb)
	}
	if err != nil {
		return err
	}

	return e.w.Flush()
}
