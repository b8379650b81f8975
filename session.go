package epdpng

import (
	"image"
	"image/color"

	"github.com/bodgit/epdpng/dither"
	"github.com/bodgit/epdpng/framebuffer"
	"github.com/bodgit/epdpng/palette"
	"github.com/bodgit/epdpng/pngstream"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type state int

const (
	stateInit state = iota
	stateAwaitingFirstBlock
	stateStreaming
	stateDone
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateAwaitingFirstBlock:
		return "awaiting first block"
	case stateStreaming:
		return "streaming"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// capability selects the quantizer. It only differs from palette.Native in
// tests.
var capability = palette.Native

// session is the state of a single draw. It receives pixels from the
// decoder, quantizes or dithers them and writes them to the display.
type session struct {
	id      uuid.UUID
	display Display
	mode    framebuffer.Mode
	width   int
	height  int

	quant  palette.Quantizer
	dither dither.Ditherer
	invert bool

	origin  image.Point
	pending Position
	lastY   int
	state   state

	drawn, skipped int

	logger zerolog.Logger
}

func newSession(display Display, inks *palette.Closest, p placement, opts Options, logger zerolog.Logger) *session {
	s := &session{
		id:      uuid.New(),
		display: display,
		mode:    display.Mode(),
		width:   display.Width(),
		height:  display.Height(),
		invert:  opts.Invert,
		origin:  p.origin,
		pending: p.position,
		lastY:   -1,
	}

	switch capability {
	case palette.Color:
		s.quant = inks
		if opts.Dither {
			s.dither = dither.NewColor(s.width, inks)
		}
	default:
		s.quant = palette.Gray{}
		if opts.Dither {
			bits := 3
			if s.mode == framebuffer.Mode1Bit {
				bits = 1
			}
			s.dither = dither.NewGray(s.width, bits)
		}
	}

	s.logger = logger.With().Str("session", s.id.String()).Logger()
	return s
}

func (s *session) start() {
	if s.dither != nil {
		s.dither.Reset()
	}
	s.lastY = -1
	s.state = stateAwaitingFirstBlock
}

func (s *session) finish(err error) {
	if err != nil {
		s.state = stateFailed
		s.logger.Debug().Err(err).Int("drawn", s.drawn).Msg("draw failed")
		return
	}
	s.state = stateDone
	s.logger.Debug().Int("drawn", s.drawn).Int("skipped", s.skipped).Msg("draw finished")
}

// DrawBlock implements pngstream.Drawer.
func (s *session) DrawBlock(d *pngstream.Decoder, x, y, w, h int, c color.NRGBA) {
	if s.state == stateAwaitingFirstBlock {
		if s.pending != 0 {
			s.origin = s.pending.Resolve(d.Width(), d.Height(), s.width, s.height)
			s.logger.Debug().
				Stringer("position", s.pending).
				Int("x", s.origin.X).
				Int("y", s.origin.Y).
				Msg("resolved position")
			s.pending = 0
		}
		s.state = stateStreaming
	}

	// The previous row must be finished before error is diffused into
	// this one
	if y != s.lastY {
		if s.lastY >= 0 && s.dither != nil {
			s.dither.Swap()
		}
		s.lastY = y
	}

	// Alpha is a mask, partial transparency is drawn opaque
	if c.A == 0 {
		s.skipped += w * h
		return
	}

	r, g, b := c.R, c.G, c.B
	if s.invert {
		r, g, b = 0xff-r, 0xff-g, 0xff-b
	}

	var px uint8
	if s.dither == nil {
		px = s.collapse(s.quant.Index(r, g, b))
	}
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			if s.dither != nil {
				px = s.collapse(s.dither.Dither(r, g, b, x+i))
			}
			s.write(s.origin.X+x+i, s.origin.Y+y+j, px)
		}
	}
}

// collapse turns a gray level into black (1) or white (0) in 1-bit mode.
func (s *session) collapse(px uint8) uint8 {
	if s.mode == framebuffer.Mode1Bit {
		return (^px >> 2) & 1
	}
	return px
}

func (s *session) write(x, y int, px uint8) {
	if x < 0 || y < 0 || x >= s.width || y >= s.height {
		return
	}
	s.display.SetPixel(x, y, px)
	s.drawn++
}
