package epdpng

import (
	"fmt"
	"image"
	"strings"
)

// Position is a placement of an image relative to the panel, resolved to
// absolute coordinates once the size of the image is known. The zero value
// means no placement.
type Position int

// Supported positions.
const (
	TopLeft Position = iota + 1
	TopCenter
	TopRight
	CenterLeft
	Center
	CenterRight
	BottomLeft
	BottomCenter
	BottomRight
)

var positionNames = map[Position]string{
	TopLeft:      "top-left",
	TopCenter:    "top-center",
	TopRight:     "top-right",
	CenterLeft:   "center-left",
	Center:       "center",
	CenterRight:  "center-right",
	BottomLeft:   "bottom-left",
	BottomCenter: "bottom-center",
	BottomRight:  "bottom-right",
}

func (p Position) String() string {
	if s, ok := positionNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Position(%d)", int(p))
}

// ParsePosition returns the Position named s, such as "center" or
// "bottom-right".
func ParsePosition(s string) (Position, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range positionNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("epdpng: unknown position %q", s)
}

// align places length within space; 0 is start, 1 is middle, 2 is end.
func align(a, length, space int) int {
	switch a {
	case 1:
		return (space - length) / 2
	case 2:
		return space - length
	}
	return 0
}

// Resolve returns the top-left corner at which an image of the given size
// is drawn on a panel of the given size. The result is negative when the
// image is larger than the panel.
func (p Position) Resolve(imageWidth, imageHeight, displayWidth, displayHeight int) image.Point {
	if p < TopLeft || p > BottomRight {
		return image.Point{}
	}
	i := int(p - TopLeft)
	return image.Point{
		X: align(i%3, imageWidth, displayWidth),
		Y: align(i/3, imageHeight, displayHeight),
	}
}
