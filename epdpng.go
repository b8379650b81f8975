/*
Package epdpng draws PNG images onto e-paper panels.

Images are streamed from local storage, an image store, the network or an
already open connection through an incremental decoder. Each decoded pixel is
mapped to the panel's native palette, optionally dithered, and written
straight to the panel's framebuffer so the decoded image never exists in
memory as a whole. Fully transparent pixels leave the framebuffer untouched.
*/
package epdpng

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"sync"

	"github.com/bodgit/epdpng/framebuffer"
	"github.com/bodgit/epdpng/palette"
	"github.com/bodgit/epdpng/pngstream"
	"github.com/bodgit/epdpng/source"
	"github.com/bodgit/epdpng/store"
	"github.com/rs/zerolog"
)

// Display is the panel being drawn on.
type Display interface {
	Width() int
	Height() int
	Mode() framebuffer.Mode
	// SetPixel sets the pixel at (x, y) to a native palette index.
	SetPixel(x, y int, index uint8)
}

// Options control how an image is drawn.
type Options struct {
	// Dither enables error diffusion.
	Dither bool
	// Invert inverts each color channel before quantizing.
	Invert bool
}

// placement is either an absolute origin or a Position still to be
// resolved.
type placement struct {
	origin   image.Point
	position Position
}

// Renderer draws images onto a Display. Only one image is drawn at a time;
// concurrent calls are serialized.
type Renderer struct {
	mu      sync.Mutex
	display Display
	inks    *palette.Closest
	logger  zerolog.Logger

	// Fetcher is used to download images by URL.
	Fetcher *source.Fetcher
	// Store is used by DrawStored and DrawStoredAt, if set.
	Store *store.Store
	// MaxDownload limits the size of downloaded images in bytes. If zero,
	// four bytes per panel pixel plus a little slack is allowed.
	MaxDownload int64
	// MaxWidth limits the width of decoded images in pixels. If zero,
	// pngstream.DefaultMaxWidth is used.
	MaxWidth int
}

// New returns a Renderer for display. On color panels inks describes the
// colors of each palette index; if nil, palette.Inks is used.
func New(display Display, inks color.Palette, logger zerolog.Logger) *Renderer {
	if len(inks) == 0 {
		inks = palette.Inks
	}
	return &Renderer{
		display: display,
		inks:    palette.NewClosest(inks),
		logger:  logger,
		Fetcher: &source.Fetcher{},
	}
}

func (r *Renderer) maxDownload() int64 {
	if r.MaxDownload > 0 {
		return r.MaxDownload
	}
	return int64(r.display.Width())*int64(r.display.Height())*4 + 100
}

func (r *Renderer) render(name string, p placement, opts Options, fill func(*pngstream.Decoder) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := newSession(r.display, r.inks, p, opts, r.logger)
	s.logger.Debug().
		Str("source", name).
		Bool("dither", opts.Dither).
		Bool("invert", opts.Invert).
		Msg("drawing image")

	dec := pngstream.NewDecoder(s)
	dec.MaxWidth = r.MaxWidth
	defer dec.Close()

	s.start()
	err := fill(dec)
	s.finish(err)

	return err
}

func (r *Renderer) drawFile(ctx context.Context, name string, p placement, opts Options) error {
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSource, err)
	}
	defer f.Close()

	return r.render(name, p, opts, func(dec *pngstream.Decoder) error {
		return feed(ctx, dec, f)
	})
}

// DrawFile draws the PNG image in file name with its top-left corner at
// (x, y).
func (r *Renderer) DrawFile(ctx context.Context, name string, x, y int, opts Options) error {
	return r.drawFile(ctx, name, placement{origin: image.Pt(x, y)}, opts)
}

// DrawFileAt draws the PNG image in file name at pos.
func (r *Renderer) DrawFileAt(ctx context.Context, name string, pos Position, opts Options) error {
	return r.drawFile(ctx, name, placement{position: pos}, opts)
}

func (r *Renderer) drawStored(ctx context.Context, name string, p placement, opts Options) error {
	if r.Store == nil {
		return fmt.Errorf("%w: no image store", ErrSource)
	}
	b, err := r.Store.Get(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSource, err)
	}

	return r.render(name, p, opts, func(dec *pngstream.Decoder) error {
		return feed(ctx, dec, bytes.NewReader(b))
	})
}

// DrawStored draws the PNG image stored under name with its top-left corner
// at (x, y).
func (r *Renderer) DrawStored(ctx context.Context, name string, x, y int, opts Options) error {
	return r.drawStored(ctx, name, placement{origin: image.Pt(x, y)}, opts)
}

// DrawStoredAt draws the PNG image stored under name at pos.
func (r *Renderer) DrawStoredAt(ctx context.Context, name string, pos Position, opts Options) error {
	return r.drawStored(ctx, name, placement{position: pos}, opts)
}

func downloadError(err error) error {
	if errors.Is(err, source.ErrTooLarge) {
		return fmt.Errorf("%w: %w", ErrAlloc, err)
	}
	return fmt.Errorf("%w: %w", ErrSource, err)
}

func (r *Renderer) drawURL(ctx context.Context, url string, p placement, opts Options) error {
	b, err := r.Fetcher.Fetch(ctx, url, r.maxDownload())
	if err != nil {
		return downloadError(err)
	}

	return r.render(url, p, opts, func(dec *pngstream.Decoder) error {
		return feedAll(dec, b)
	})
}

// DrawURL downloads the PNG image at url and draws it with its top-left
// corner at (x, y). HTTP, HTTPS and S3 URLs are supported.
func (r *Renderer) DrawURL(ctx context.Context, url string, x, y int, opts Options) error {
	return r.drawURL(ctx, url, placement{origin: image.Pt(x, y)}, opts)
}

// DrawURLAt downloads the PNG image at url and draws it at pos.
func (r *Renderer) DrawURLAt(ctx context.Context, url string, pos Position, opts Options) error {
	return r.drawURL(ctx, url, placement{position: pos}, opts)
}

// DrawStream reads a PNG image of length bytes from an already open stream
// and draws it with its top-left corner at (x, y). The stream is not closed.
func (r *Renderer) DrawStream(ctx context.Context, rd io.Reader, length int64, x, y int, opts Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := source.ReadStream(rd, length, r.maxDownload())
	if err != nil {
		return downloadError(err)
	}

	return r.render("stream", placement{origin: image.Pt(x, y)}, opts, func(dec *pngstream.Decoder) error {
		return feedAll(dec, b)
	})
}
