package viz

import (
	"strings"

	"github.com/san-kum/stochsim/internal/dynamo"
)

// Braille cells hold 2x4 dots:
// 1 4
// 2 5
// 3 6
// 7 8
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const brailleBlank = 0x2800

// Canvas is a grid of Braille characters addressed in sub-pixels; its size in
// sub-pixels is (Width*2) x (Height*4).
type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = brailleBlank
		}
	}
}

// DrawLine draws a line using Bresenham's algorithm.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// Trace draws a series of unit-interval values left to right, scaled to the
// full canvas width. The newest value ends at the right edge.
func (c *Canvas) Trace(values []float64) {
	if len(values) == 0 {
		return
	}
	w, h := c.Width*2, c.Height*4
	toY := func(v float64) int {
		return h - 1 - int(dynamo.Clamp01(v)*float64(h-1))
	}
	if len(values) == 1 {
		c.Set(w-1, toY(values[0]))
		return
	}

	step := float64(w-1) / float64(len(values)-1)
	px, py := 0, toY(values[0])
	for i := 1; i < len(values); i++ {
		x, y := int(float64(i)*step), toY(values[i])
		c.DrawLine(px, py, x, y)
		px, py = x, y
	}
}

// HLine marks a horizontal level, e.g. a regime threshold, with every other
// sub-pixel.
func (c *Canvas) HLine(level float64) {
	h := c.Height * 4
	y := h - 1 - int(dynamo.Clamp01(level)*float64(h-1))
	for x := 0; x < c.Width*2; x += 2 {
		c.Set(x, y)
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	return b.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
