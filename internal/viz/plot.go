package viz

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/stochsim/internal/dynamo"
)

var seriesColors = []asciigraph.AnsiColor{
	asciigraph.Cyan,
	asciigraph.Yellow,
	asciigraph.Green,
	asciigraph.Magenta,
	asciigraph.Red,
	asciigraph.Blue,
}

// Column extracts one dimension of a history. Out-of-range dims give nil.
func Column(history []dynamo.EvolutionState, dim int) []float64 {
	out := make([]float64, 0, len(history))
	for _, s := range history {
		if dim < 0 || dim >= len(s.State) {
			return nil
		}
		out = append(out, s.State[dim])
	}
	return out
}

// PlotTrajectory charts one dimension. The y axis is pinned to [0,1].
func PlotTrajectory(history []dynamo.EvolutionState, dim int, caption string, width, height int) (string, error) {
	data := Column(history, dim)
	if len(data) == 0 {
		return "", fmt.Errorf("no data for dimension %d", dim)
	}
	if caption == "" {
		caption = dynamo.DimensionName(dim)
	}
	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.LowerBound(0),
		asciigraph.UpperBound(1),
		asciigraph.Precision(2),
		asciigraph.Caption(caption),
	), nil
}

// PlotAll overlays every dimension in one chart, one color per dimension.
func PlotAll(history []dynamo.EvolutionState, names []string, width, height int) (string, error) {
	if len(history) == 0 || len(history[0].State) == 0 {
		return "", fmt.Errorf("empty history")
	}
	n := len(history[0].State)
	series := make([][]float64, n)
	colors := make([]asciigraph.AnsiColor, n)
	labels := make([]string, n)
	for d := 0; d < n; d++ {
		series[d] = Column(history, d)
		colors[d] = seriesColors[d%len(seriesColors)]
		labels[d] = dynamo.DimensionName(d)
		if d < len(names) && names[d] != "" {
			labels[d] = names[d]
		}
	}
	return asciigraph.PlotMany(series,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.LowerBound(0),
		asciigraph.UpperBound(1),
		asciigraph.Precision(2),
		asciigraph.SeriesColors(colors...),
		asciigraph.Caption(strings.Join(labels, " ")),
	), nil
}
