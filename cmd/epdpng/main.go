package main

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bodgit/epdpng"
	"github.com/bodgit/epdpng/framebuffer"
	"github.com/bodgit/epdpng/palette"
	"github.com/bodgit/epdpng/store"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/image/bmp"
)

const (
	defaultDB     = "epdpng.db"
	defaultWidth  = 800
	defaultHeight = 600
	maxInks       = 16
)

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

func newLogger(c *cli.Context) zerolog.Logger {
	if !c.Bool("verbose") {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func parseMode(s string) (framebuffer.Mode, error) {
	switch strings.ToLower(s) {
	case "1bit", "1":
		return framebuffer.Mode1Bit, nil
	case "3bit", "3":
		return framebuffer.Mode3Bit, nil
	case "color", "colour":
		return framebuffer.ModeColor, nil
	}
	return 0, fmt.Errorf("unknown display mode %q", s)
}

func deriveInks(file string, n int) (color.Palette, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := png.Decode(f)
	if err != nil {
		return nil, err
	}
	return palette.Derive(m, n), nil
}

func writePreview(fb *framebuffer.Framebuffer, file string) error {
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()

	var encode func(io.Writer) error
	switch strings.ToLower(filepath.Ext(file)) {
	case ".bmp":
		encode = func(w io.Writer) error { return bmp.Encode(w, fb) }
	case ".png":
		encode = func(w io.Writer) error { return png.Encode(w, fb) }
	case ".raw", ".bin":
		encode = func(w io.Writer) error { return framebuffer.Encode(w, fb) }
	default:
		return fmt.Errorf("unsupported preview format %q", filepath.Ext(file))
	}

	if err := encode(f); err != nil {
		return err
	}
	return f.Close()
}

func isURL(s string) bool {
	for _, prefix := range []string{"http://", "https://", "s3://"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

func draw(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}
	src := c.Args().First()
	logger := newLogger(c)

	mode, err := parseMode(c.String("mode"))
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	if (mode == framebuffer.ModeColor) != (palette.Native == palette.Color) {
		return cli.NewExitError(fmt.Errorf("display mode %s is not supported by a %s build", mode, palette.Native), 1)
	}

	var inks color.Palette
	if n := c.Int("derive-palette"); n > 0 && mode == framebuffer.ModeColor && !isURL(src) && !c.Bool("stored") {
		// Panel memory only has four bits per pixel
		if n > maxInks {
			logger.Warn().Int("inks", n).Int("max", maxInks).Msg("limiting derived palette")
			n = maxInks
		}
		if inks, err = deriveInks(src, n); err != nil {
			return cli.NewExitError(err, 1)
		}
	}

	fb := framebuffer.New(c.Int("width"), c.Int("height"), mode, inks)
	r := epdpng.New(fb, fb.Palette, logger)
	r.Fetcher.S3Endpoint = c.String("s3-endpoint")

	if c.Bool("stored") {
		s, err := store.Open(c.String("db"))
		if err != nil {
			return cli.NewExitError(err, 1)
		}
		defer s.Close()
		r.Store = s
	}

	var pos epdpng.Position
	if c.IsSet("position") {
		if pos, err = epdpng.ParsePosition(c.String("position")); err != nil {
			return cli.NewExitError(err, 1)
		}
	}

	opts := epdpng.Options{
		Dither: c.Bool("dither"),
		Invert: c.Bool("invert"),
	}
	x, y := c.Int("x"), c.Int("y")
	ctx := context.Background()

	once := func() error {
		switch {
		case c.Bool("stored") && pos != 0:
			return r.DrawStoredAt(ctx, src, pos, opts)
		case c.Bool("stored"):
			return r.DrawStored(ctx, src, x, y, opts)
		case isURL(src) && pos != 0:
			return r.DrawURLAt(ctx, src, pos, opts)
		case isURL(src):
			return r.DrawURL(ctx, src, x, y, opts)
		case pos != 0:
			return r.DrawFileAt(ctx, src, pos, opts)
		default:
			return r.DrawFile(ctx, src, x, y, opts)
		}
	}

	b := &backoff.Backoff{
		Min: 250 * time.Millisecond,
		Max: 10 * time.Second,
	}
	for attempt := 0; ; attempt++ {
		err = once()
		if err == nil || attempt >= c.Int("retries") || errors.Is(err, epdpng.ErrAlloc) {
			break
		}
		d := b.Duration()
		logger.Warn().Err(err).Dur("retrying after", d).Msg("failed to draw image")
		time.Sleep(d)
		fb.Clear()
	}
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	if output := c.String("output"); output != "" {
		if err := writePreview(fb, output); err != nil {
			return cli.NewExitError(err, 1)
		}
	}

	return nil
}

func main() {
	app := cli.NewApp()

	app.Name = "epdpng"
	app.Usage = "Draw PNG images on e-paper panels"
	app.Version = "1.0.0"

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "db",
			EnvVars: []string{"EPDPNG_DB"},
			Value:   filepath.Join(cwd, defaultDB),
			Usage:   "path to image database",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "increase verbosity",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:        "draw",
			Usage:       "Draw a PNG image on an emulated panel",
			Description: "SOURCE is a file, an http(s):// or s3:// URL or, with --stored, the name of an image in the database",
			ArgsUsage:   "SOURCE",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "width",
					EnvVars: []string{"EPDPNG_WIDTH"},
					Value:   defaultWidth,
					Usage:   "panel width in pixels",
				},
				&cli.IntFlag{
					Name:    "height",
					EnvVars: []string{"EPDPNG_HEIGHT"},
					Value:   defaultHeight,
					Usage:   "panel height in pixels",
				},
				&cli.StringFlag{
					Name:    "mode",
					EnvVars: []string{"EPDPNG_MODE"},
					Value:   "3bit",
					Usage:   "display mode: 1bit, 3bit or color",
				},
				&cli.IntFlag{
					Name:  "x",
					Usage: "left edge of the image",
				},
				&cli.IntFlag{
					Name:  "y",
					Usage: "top edge of the image",
				},
				&cli.StringFlag{
					Name:  "position",
					Usage: "place the image, e.g. center or bottom-right, instead of using -x and -y",
				},
				&cli.BoolFlag{
					Name:  "dither",
					Usage: "enable error diffusion",
				},
				&cli.BoolFlag{
					Name:  "invert",
					Usage: "invert colors",
				},
				&cli.BoolFlag{
					Name:  "stored",
					Usage: "draw an image from the database",
				},
				&cli.IntFlag{
					Name:  "derive-palette",
					Usage: "emulate a color panel with up to 16 inks picked from the image",
				},
				&cli.StringFlag{
					Name:    "s3-endpoint",
					EnvVars: []string{"EPDPNG_S3_ENDPOINT"},
					Usage:   "endpoint of an S3 compatible service",
				},
				&cli.IntFlag{
					Name:  "retries",
					Usage: "retry a failed draw up to N times",
				},
				&cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Usage:   "write the framebuffer to a .png or .bmp file, or as raw panel memory to a .raw file",
				},
			},
			Action: draw,
		},
		{
			Name:        "import",
			Usage:       "Import PNG images into the database",
			Description: "",
			ArgsUsage:   "DIRECTORY",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "workers",
					Value: 4,
					Usage: "number of images to import concurrently",
				},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				s, err := store.Open(c.String("db"))
				if err != nil {
					return cli.NewExitError(err, 1)
				}
				defer s.Close()

				if err := s.Import(c.Args().First(), c.Int("workers"), newLogger(c)); err != nil {
					return cli.NewExitError(err, 1)
				}

				return nil
			},
		},
		{
			Name:  "list",
			Usage: "List the images in the database",
			Action: func(c *cli.Context) error {
				s, err := store.Open(c.String("db"))
				if err != nil {
					return cli.NewExitError(err, 1)
				}
				defer s.Close()

				images, err := s.List()
				if err != nil {
					return cli.NewExitError(err, 1)
				}
				for _, img := range images {
					fmt.Printf("%s\t%dx%d\t%d\t%s\n", img.Name, img.Width, img.Height, img.Size, img.SHA1)
				}

				return nil
			},
		},
		{
			Name:      "delete",
			Usage:     "Delete an image from the database",
			ArgsUsage: "NAME",
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				s, err := store.Open(c.String("db"))
				if err != nil {
					return cli.NewExitError(err, 1)
				}
				defer s.Close()

				if err := s.Delete(c.Args().First()); err != nil {
					return cli.NewExitError(err, 1)
				}

				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
