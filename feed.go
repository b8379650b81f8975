package epdpng

import (
	"context"
	"fmt"
	"io"

	"github.com/bodgit/epdpng/pngstream"
)

// chunkSize is how much of a local source is read and fed at a time.
const chunkSize = 2048

// feed streams r into dec in small chunks until r is exhausted, then closes
// dec. The caller is responsible for closing r.
func feed(ctx context.Context, dec *pngstream.Decoder, r io.Reader) error {
	var buf [chunkSize]byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(buf[:])
		if n > 0 {
			// The decoder using less than it was given is only a
			// sign the image has ended
			if _, ferr := dec.Feed(buf[:n]); ferr != nil {
				return fmt.Errorf("%w: %w", ErrDecode, ferr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSource, err)
		}
	}

	if err := dec.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}

// feedAll feeds an already downloaded image in one go.
func feedAll(dec *pngstream.Decoder, b []byte) error {
	if _, err := dec.Feed(b); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if err := dec.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}
