/*
Package dither implements streaming error diffusion for panels with few
colors.

Pixels are processed in raster order, one source row at a time. The
quantization error of each pixel is spread over its neighbours with the
Floyd-Steinberg weights: 7/16 to the right on the current row and 3/16, 5/16
and 1/16 to the lower left, below and lower right on the next row. Only two
rows of error are ever kept, so the buffers are sized by the panel width
rather than by the image.
*/
package dither

// A Ditherer quantizes one pixel at a time while carrying the error forward.
// Swap must be called before the first pixel of every row but the first.
type Ditherer interface {
	// Dither returns the palette index for the pixel in column x.
	Dither(r, g, b uint8, x int) uint8
	// Swap finishes the current row.
	Swap()
	// Reset clears all carried error.
	Reset()
}

func clamp(v int32) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 0xff:
		return 0xff
	}
	return uint8(v)
}

// diffuse spreads e from column x of a row of width w.
func diffuse(cur, next []int16, x, w int, e int32) {
	next[x] = saturate(int32(next[x]) + e*5/16)
	if x != w-1 {
		cur[x+1] = saturate(int32(cur[x+1]) + e*7/16)
		next[x+1] = saturate(int32(next[x+1]) + e*1/16)
	}
	if x != 0 {
		next[x-1] = saturate(int32(next[x-1]) + e*3/16)
	}
}

func saturate(v int32) int16 {
	switch {
	case v < -0x7fff:
		return -0x7fff
	case v > 0x7fff:
		return 0x7fff
	}
	return int16(v)
}
