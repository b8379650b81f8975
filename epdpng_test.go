package epdpng

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/bodgit/epdpng/framebuffer"
	"github.com/bodgit/epdpng/palette"
	"github.com/bodgit/epdpng/pngstream"
	"github.com/bodgit/epdpng/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a Display that remembers every write.
type recorder struct {
	width, height int
	mode          framebuffer.Mode
	writes        map[image.Point]uint8
	count         int
}

func newRecorder(width, height int, mode framebuffer.Mode) *recorder {
	return &recorder{
		width:  width,
		height: height,
		mode:   mode,
		writes: make(map[image.Point]uint8),
	}
}

func (r *recorder) Width() int             { return r.width }
func (r *recorder) Height() int            { return r.height }
func (r *recorder) Mode() framebuffer.Mode { return r.mode }

func (r *recorder) SetPixel(x, y int, index uint8) {
	r.writes[image.Pt(x, y)] = index
	r.count++
}

func encodePNG(t *testing.T, m image.Image) []byte {
	t.Helper()
	b := new(bytes.Buffer)
	require.NoError(t, png.Encode(b, m))
	return b.Bytes()
}

func writePNG(t *testing.T, m image.Image) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "image.png")
	require.NoError(t, os.WriteFile(file, encodePNG(t, m), 0o644))
	return file
}

func uniform(w, h int, c color.NRGBA) *image.NRGBA {
	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.SetNRGBA(x, y, c)
		}
	}
	return m
}

func TestDrawSingleRedPixel(t *testing.T) {
	d := newRecorder(800, 600, framebuffer.Mode3Bit)
	r := New(d, nil, zerolog.Nop())

	file := writePNG(t, uniform(1, 1, color.NRGBA{0xff, 0x00, 0x00, 0xff}))
	require.NoError(t, r.DrawFile(context.Background(), file, 10, 10, Options{}))

	assert.Equal(t, 1, d.count)
	assert.Equal(t, map[image.Point]uint8{image.Pt(10, 10): palette.Gray{}.Index(0xff, 0x00, 0x00)}, d.writes)
}

func TestDrawTransparent(t *testing.T) {
	d := newRecorder(800, 600, framebuffer.Mode3Bit)
	r := New(d, nil, zerolog.Nop())

	file := writePNG(t, uniform(2, 2, color.NRGBA{0x12, 0x34, 0x56, 0x00}))
	for _, opts := range []Options{{}, {Dither: true}, {Invert: true}} {
		require.NoError(t, r.DrawFile(context.Background(), file, 0, 0, opts))
	}
	assert.Equal(t, 0, d.count)
}

func TestDrawTruncated(t *testing.T) {
	d := newRecorder(800, 600, framebuffer.Mode3Bit)
	r := New(d, nil, zerolog.Nop())

	b := encodePNG(t, uniform(40, 40, color.NRGBA{0x80, 0x80, 0x80, 0xff}))
	// Signature, IHDR and nothing else
	file := filepath.Join(t.TempDir(), "truncated.png")
	require.NoError(t, os.WriteFile(file, b[:33], 0o644))

	err := r.DrawFile(context.Background(), file, 0, 0, Options{})
	assert.True(t, errors.Is(err, ErrDecode))
	assert.Equal(t, 0, d.count)

	err = r.DrawStream(context.Background(), bytes.NewReader(b[:45]), 45, 0, 0, Options{})
	assert.True(t, errors.Is(err, ErrDecode))
}

// countingReader counts how many times it is read from.
type countingReader struct {
	r     io.Reader
	reads int
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads++
	return c.r.Read(p)
}

func TestFeedStopsOnDecodeError(t *testing.T) {
	d := newRecorder(800, 600, framebuffer.Mode3Bit)
	r := New(d, nil, zerolog.Nop())

	b := encodePNG(t, uniform(100, 100, color.NRGBA{0x01, 0x02, 0x03, 0xff}))
	b = append(bytes.Repeat([]byte{0xff}, 3*chunkSize), b...)

	cr := &countingReader{r: bytes.NewReader(b)}
	err := r.render("test", placement{}, Options{}, func(dec *pngstream.Decoder) error {
		return feed(context.Background(), dec, cr)
	})
	assert.True(t, errors.Is(err, ErrDecode))
	assert.Equal(t, 1, cr.reads)
}

func TestFeedCancelled(t *testing.T) {
	d := newRecorder(800, 600, framebuffer.Mode3Bit)
	r := New(d, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	file := writePNG(t, uniform(3, 3, color.NRGBA{A: 0xff}))
	err := r.DrawFile(ctx, file, 0, 0, Options{})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, d.count)
}

func TestDrawMissingFile(t *testing.T) {
	r := New(newRecorder(8, 8, framebuffer.Mode3Bit), nil, zerolog.Nop())
	err := r.DrawFile(context.Background(), filepath.Join(t.TempDir(), "missing.png"), 0, 0, Options{})
	assert.True(t, errors.Is(err, ErrSource))
}

func TestDrawFileAtCenter(t *testing.T) {
	d := newRecorder(10, 10, framebuffer.Mode3Bit)
	r := New(d, nil, zerolog.Nop())

	file := writePNG(t, uniform(4, 2, color.NRGBA{A: 0xff}))
	require.NoError(t, r.DrawFileAt(context.Background(), file, Center, Options{}))

	assert.Equal(t, 8, d.count)
	for y := 4; y < 6; y++ {
		for x := 3; x < 7; x++ {
			assert.Contains(t, d.writes, image.Pt(x, y))
		}
	}
}

func TestDrawClipped(t *testing.T) {
	d := newRecorder(10, 10, framebuffer.Mode3Bit)
	r := New(d, nil, zerolog.Nop())

	file := writePNG(t, uniform(20, 20, color.NRGBA{A: 0xff}))
	require.NoError(t, r.DrawFileAt(context.Background(), file, Center, Options{Dither: true}))
	assert.Equal(t, 100, d.count)

	d = newRecorder(10, 10, framebuffer.Mode3Bit)
	r = New(d, nil, zerolog.Nop())
	require.NoError(t, r.DrawFile(context.Background(), file, -15, 5, Options{}))
	assert.Equal(t, 25, d.count)
	for p := range d.writes {
		assert.True(t, p.In(image.Rect(0, 5, 5, 10)), "%v", p)
	}
}

func TestDrawOneBit(t *testing.T) {
	d := newRecorder(4, 1, framebuffer.Mode1Bit)
	r := New(d, nil, zerolog.Nop())

	m := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	m.SetNRGBA(0, 0, color.NRGBA{0x00, 0x00, 0x00, 0xff})
	m.SetNRGBA(1, 0, color.NRGBA{0xff, 0xff, 0xff, 0xff})
	file := writePNG(t, m)

	require.NoError(t, r.DrawFile(context.Background(), file, 0, 0, Options{}))
	assert.Equal(t, uint8(1), d.writes[image.Pt(0, 0)], "black")
	assert.Equal(t, uint8(0), d.writes[image.Pt(1, 0)], "white")

	require.NoError(t, r.DrawFile(context.Background(), file, 2, 0, Options{Invert: true}))
	assert.Equal(t, uint8(0), d.writes[image.Pt(2, 0)], "inverted black")
	assert.Equal(t, uint8(1), d.writes[image.Pt(3, 0)], "inverted white")
}

func TestDrawInvert(t *testing.T) {
	d := newRecorder(2, 1, framebuffer.Mode3Bit)
	r := New(d, nil, zerolog.Nop())

	file := writePNG(t, uniform(1, 1, color.NRGBA{0x00, 0x00, 0x00, 0xff}))
	require.NoError(t, r.DrawFile(context.Background(), file, 0, 0, Options{}))
	require.NoError(t, r.DrawFile(context.Background(), file, 1, 0, Options{Invert: true}))

	assert.Equal(t, uint8(0), d.writes[image.Pt(0, 0)])
	assert.Equal(t, uint8(7), d.writes[image.Pt(1, 0)])
}

func TestDrawDitheredGradient(t *testing.T) {
	const w, h = 64, 16

	m := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.SetGray(x, y, color.Gray{Y: 80})
		}
	}
	file := writePNG(t, m)

	plain := newRecorder(w, h, framebuffer.Mode3Bit)
	require.NoError(t, New(plain, nil, zerolog.Nop()).DrawFile(context.Background(), file, 0, 0, Options{}))
	dithered := newRecorder(w, h, framebuffer.Mode3Bit)
	require.NoError(t, New(dithered, nil, zerolog.Nop()).DrawFile(context.Background(), file, 0, 0, Options{Dither: true}))

	// Truncation alone gives a flat level 2 (64), dithering mixes in level
	// 3 (96) to average out near 80
	var sum int
	for _, px := range plain.writes {
		assert.Equal(t, uint8(2), px)
	}
	for _, px := range dithered.writes {
		assert.Contains(t, []uint8{2, 3}, px)
		sum += int(px) * 32
	}
	assert.InDelta(t, 80, float64(sum)/float64(w*h), 4)
}

func TestDrawColor(t *testing.T) {
	defer func(c palette.Capability) { capability = c }(capability)
	capability = palette.Color

	d := newRecorder(3, 1, framebuffer.ModeColor)
	r := New(d, nil, zerolog.Nop())

	m := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	m.SetNRGBA(0, 0, color.NRGBA{0xf0, 0x10, 0x10, 0xff})
	m.SetNRGBA(1, 0, color.NRGBA{0x10, 0x10, 0xe0, 0xff})
	m.SetNRGBA(2, 0, color.NRGBA{0xff, 0x70, 0x10, 0xff})
	file := writePNG(t, m)

	require.NoError(t, r.DrawFile(context.Background(), file, 0, 0, Options{}))
	assert.Equal(t, uint8(4), d.writes[image.Pt(0, 0)], "red")
	assert.Equal(t, uint8(3), d.writes[image.Pt(1, 0)], "blue")
	assert.Equal(t, uint8(6), d.writes[image.Pt(2, 0)], "orange")

	require.NoError(t, r.DrawFile(context.Background(), file, 0, 0, Options{Dither: true}))
	assert.Equal(t, 6, d.count)
}

func TestDrawURL(t *testing.T) {
	b := encodePNG(t, uniform(2, 3, color.NRGBA{0xff, 0xff, 0xff, 0xff}))
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/image.png" {
			http.NotFound(w, r)
			return
		}
		w.Write(b)
	}))
	defer ts.Close()

	d := newRecorder(10, 10, framebuffer.Mode3Bit)
	r := New(d, nil, zerolog.Nop())

	require.NoError(t, r.DrawURL(context.Background(), ts.URL+"/image.png", 1, 1, Options{}))
	assert.Equal(t, 6, d.count)
	assert.Equal(t, uint8(7), d.writes[image.Pt(2, 3)])

	require.NoError(t, r.DrawURLAt(context.Background(), ts.URL+"/image.png", BottomRight, Options{}))
	assert.Contains(t, d.writes, image.Pt(9, 9))

	err := r.DrawURL(context.Background(), ts.URL+"/missing.png", 0, 0, Options{})
	assert.True(t, errors.Is(err, ErrSource))

	r.MaxDownload = int64(len(b) - 1)
	err = r.DrawURL(context.Background(), ts.URL+"/image.png", 0, 0, Options{})
	assert.True(t, errors.Is(err, ErrAlloc))
}

func TestDrawStream(t *testing.T) {
	b := encodePNG(t, uniform(2, 2, color.NRGBA{0x00, 0x00, 0x00, 0xff}))
	rd := io.MultiReader(bytes.NewReader(b), bytes.NewReader([]byte("next response")))

	d := newRecorder(10, 10, framebuffer.Mode3Bit)
	r := New(d, nil, zerolog.Nop())

	require.NoError(t, r.DrawStream(context.Background(), rd, int64(len(b)), 5, 5, Options{}))
	assert.Equal(t, 4, d.count)
	assert.Equal(t, uint8(0), d.writes[image.Pt(6, 6)])

	// The rest of the stream is left alone
	rest, err := io.ReadAll(rd)
	require.NoError(t, err)
	assert.Equal(t, "next response", string(rest))

	err = r.DrawStream(context.Background(), bytes.NewReader(b), 1<<30, 0, 0, Options{})
	assert.True(t, errors.Is(err, ErrAlloc))
}

func TestDrawStored(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Put("logo", bytes.NewReader(encodePNG(t, uniform(3, 3, color.NRGBA{0xff, 0xff, 0xff, 0xff}))))
	require.NoError(t, err)

	d := newRecorder(9, 9, framebuffer.Mode3Bit)
	r := New(d, nil, zerolog.Nop())

	err = r.DrawStored(context.Background(), "logo", 0, 0, Options{})
	assert.True(t, errors.Is(err, ErrSource), "no store")

	r.Store = s
	require.NoError(t, r.DrawStoredAt(context.Background(), "logo", Center, Options{}))
	assert.Equal(t, 9, d.count)
	assert.Contains(t, d.writes, image.Pt(3, 3))
	assert.Contains(t, d.writes, image.Pt(5, 5))

	require.NoError(t, r.DrawStored(context.Background(), "logo", 0, 0, Options{}))
	assert.Contains(t, d.writes, image.Pt(0, 0))

	err = r.DrawStored(context.Background(), "missing", 0, 0, Options{})
	assert.True(t, errors.Is(err, ErrSource))
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestDrawOntoFramebuffer(t *testing.T) {
	fb := framebuffer.New(16, 8, framebuffer.Mode3Bit, nil)
	r := New(fb, nil, zerolog.Nop())

	file := writePNG(t, uniform(4, 4, color.NRGBA{0x00, 0x00, 0x00, 0xff}))
	require.NoError(t, r.DrawFileAt(context.Background(), file, BottomRight, Options{}))

	assert.Equal(t, uint8(0), fb.ColorIndexAt(15, 7))
	assert.Equal(t, uint8(0), fb.ColorIndexAt(12, 4))
	assert.Equal(t, uint8(7), fb.ColorIndexAt(11, 4))
	assert.Equal(t, uint8(7), fb.ColorIndexAt(0, 0))
}

func TestDrawBilevelPalette(t *testing.T) {
	d := newRecorder(16, 4, framebuffer.Mode1Bit)
	r := New(d, nil, zerolog.Nop())

	m := image.NewPaletted(image.Rect(0, 0, 16, 4), color.Palette{color.White, color.Black})
	for y := 0; y < 4; y++ {
		for x := 0; x < 16; x++ {
			m.SetColorIndex(x, y, uint8((x+y)%2))
		}
	}
	file := writePNG(t, m)

	require.NoError(t, r.DrawFile(context.Background(), file, 0, 0, Options{}))
	assert.Equal(t, 64, d.count)
	for y := 0; y < 4; y++ {
		for x := 0; x < 16; x++ {
			assert.Equal(t, uint8((x+y)%2), d.writes[image.Pt(x, y)], "pixel (%d, %d)", x, y)
		}
	}
}

func TestDrawTooWide(t *testing.T) {
	d := newRecorder(10, 10, framebuffer.Mode3Bit)
	r := New(d, nil, zerolog.Nop())
	r.MaxWidth = 32

	file := writePNG(t, uniform(33, 1, color.NRGBA{A: 0xff}))
	err := r.DrawFile(context.Background(), file, 0, 0, Options{})
	assert.True(t, errors.Is(err, ErrDecode))
	assert.Equal(t, 0, d.count)

	file = writePNG(t, uniform(32, 1, color.NRGBA{A: 0xff}))
	require.NoError(t, r.DrawFile(context.Background(), file, 0, 0, Options{}))
	assert.Equal(t, 10, d.count)
}
