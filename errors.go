package epdpng

import "errors"

var (
	// ErrSource is returned when the image cannot be opened or fetched.
	// Nothing has been drawn.
	ErrSource = errors.New("epdpng: cannot open source")
	// ErrDecode is returned when the PNG stream is malformed or truncated.
	// Anything drawn before the error was detected is left in place.
	ErrDecode = errors.New("epdpng: cannot decode image")
	// ErrAlloc is returned when a downloaded image would not fit in the
	// download buffer. Nothing has been drawn.
	ErrAlloc = errors.New("epdpng: image too large to buffer")
)
