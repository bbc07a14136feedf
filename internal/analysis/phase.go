package analysis

import (
	"strings"

	"github.com/san-kum/stochsim/internal/dynamo"
)

type Point struct{ X, Y float64 }

// Portrait2D is the projection of a trajectory onto two state dimensions.
type Portrait2D struct {
	XIndex, YIndex int
	Points         []Point
}

// Portrait projects history onto dimensions xIdx and yIdx. It returns nil when
// either index is out of range.
func Portrait(history []dynamo.EvolutionState, xIdx, yIdx int) *Portrait2D {
	if len(history) == 0 {
		return nil
	}
	dim := len(history[0].State)
	if xIdx < 0 || yIdx < 0 || xIdx >= dim || yIdx >= dim {
		return nil
	}

	p := &Portrait2D{
		XIndex: xIdx,
		YIndex: yIdx,
		Points: make([]Point, 0, len(history)),
	}
	for _, s := range history {
		p.Points = append(p.Points, Point{X: s.State[xIdx], Y: s.State[yIdx]})
	}
	return p
}

// ASCII renders the portrait on a width x height canvas covering the unit
// square. The first point is drawn as 'o' and the last as '@'.
func (p *Portrait2D) ASCII(width, height int) string {
	if p == nil || len(p.Points) == 0 || width < 2 || height < 2 {
		return ""
	}

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
		for j := range canvas[i] {
			canvas[i][j] = ' '
		}
	}

	cell := func(pt Point) (int, int) {
		col := int(dynamo.Clamp01(pt.X) * float64(width-1))
		row := height - 1 - int(dynamo.Clamp01(pt.Y)*float64(height-1))
		return row, col
	}

	for _, pt := range p.Points {
		row, col := cell(pt)
		canvas[row][col] = '•'
	}
	row, col := cell(p.Points[0])
	canvas[row][col] = 'o'
	row, col = cell(p.Points[len(p.Points)-1])
	canvas[row][col] = '@'

	var sb strings.Builder
	for _, r := range canvas {
		sb.WriteString(strings.TrimRight(string(r), " "))
		sb.WriteRune('\n')
	}
	return sb.String()
}

// Crossings returns the interpolated times at which dimension dim crosses
// level, in either direction.
func Crossings(history []dynamo.EvolutionState, dim int, level float64) []float64 {
	if len(history) < 2 || dim < 0 || dim >= len(history[0].State) {
		return nil
	}

	var out []float64
	prev := history[0]
	for _, cur := range history[1:] {
		a, b := prev.State[dim], cur.State[dim]
		if (a < level && b >= level) || (a >= level && b < level) {
			frac := (level - a) / (b - a)
			out = append(out, prev.Time+frac*(cur.Time-prev.Time))
		}
		prev = cur
	}
	return out
}
