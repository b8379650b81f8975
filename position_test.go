package epdpng

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionResolve(t *testing.T) {
	tables := []struct {
		position Position
		w, h     int
		want     image.Point
	}{
		{TopLeft, 100, 50, image.Pt(0, 0)},
		{TopCenter, 100, 50, image.Pt(350, 0)},
		{TopRight, 100, 50, image.Pt(700, 0)},
		{CenterLeft, 100, 50, image.Pt(0, 275)},
		{Center, 100, 50, image.Pt(350, 275)},
		{CenterRight, 100, 50, image.Pt(700, 275)},
		{BottomLeft, 100, 50, image.Pt(0, 550)},
		{BottomCenter, 100, 50, image.Pt(350, 550)},
		{BottomRight, 100, 50, image.Pt(700, 550)},
		{Center, 1000, 700, image.Pt(-100, -50)},
		{BottomRight, 1000, 700, image.Pt(-200, -100)},
		{Position(0), 100, 50, image.Pt(0, 0)},
	}

	for _, table := range tables {
		t.Run(table.position.String(), func(t *testing.T) {
			assert.Equal(t, table.want, table.position.Resolve(table.w, table.h, 800, 600))
		})
	}
}

func TestPositionCenterFormula(t *testing.T) {
	for _, size := range [][4]int{{1, 1, 800, 600}, {3, 7, 10, 10}, {801, 601, 800, 600}, {5, 5, 5, 5}} {
		w, h, dw, dh := size[0], size[1], size[2], size[3]
		assert.Equal(t, image.Pt((dw-w)/2, (dh-h)/2), Center.Resolve(w, h, dw, dh))
	}
}

func TestParsePosition(t *testing.T) {
	for p, name := range positionNames {
		got, err := ParsePosition(name)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	p, err := ParsePosition(" Bottom-Right ")
	require.NoError(t, err)
	assert.Equal(t, BottomRight, p)

	_, err = ParsePosition("middle")
	assert.Error(t, err)
}
