package graphic

import "math"

// Bar scale. A level of 1000 fills BarMax less the base.
const (
	BarBase  = 10.0
	BarScale = 280.0 / 1000.0
	BarMax   = 290.0
)

// BarHeight maps an indicator level to a bar height in [.., BarMax].
// Reported levels are never changed by this.
func BarHeight(level float64) float64 {
	return math.Min(BarScale*level+BarBase, BarMax)
}

// barRows converts a level into the number of terminal rows a bar of rows
// rows fills.
func barRows(level float64, rows int) float64 {
	h := math.Max(0, BarHeight(level))
	return h / BarMax * float64(rows)
}

const (
	// BarRune is the block we use for bars
	BarRune rune = '█'

	// NumRunes number of runes for sub step bars
	NumRunes = 8
)

// partial blocks, an eighth at a time.
var barRunes = [NumRunes]rune{
	' ',
	'▁',
	'▂',
	'▃',
	'▄',
	'▅',
	'▆',
	'▇',
}

// stopAndTop returns the first row filled by a bar of value rows drawn up
// from the bottom of height rows, and the partial block to put on the row
// above it. A top of ' ' means there is none.
func stopAndTop(value float64, height int) (int, rune) {
	if value <= 0 {
		return height, ' '
	}

	whole := int(value)
	if whole >= height {
		return 0, ' '
	}

	part := int((value - float64(whole)) * NumRunes)
	return height - whole, barRunes[part]
}

// PlotThreshold is the level marked on channel plots.
const PlotThreshold = 800.0

// sparkline draws the newest width values as partial blocks scaled between
// the smallest and largest of them. over marks values above threshold.
func sparkline(values []float64, width int, threshold float64) (line []rune, over []bool) {
	if width < 1 || len(values) == 0 {
		return nil, nil
	}

	if len(values) > width {
		values = values[len(values)-width:]
	}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	line = make([]rune, len(values))
	over = make([]bool, len(values))

	for idx, v := range values {
		step := 0
		if hi > lo {
			step = int((v - lo) / (hi - lo) * NumRunes)
		}

		switch {
		case step >= NumRunes:
			line[idx] = BarRune
		case step <= 0:
			line[idx] = barRunes[1]
		default:
			line[idx] = barRunes[step]
		}

		over[idx] = v > threshold
	}

	return line, over
}
