package dsp

import "math"

const (
	// MinChange is the smallest step a falling value takes per update.
	MinChange = 1

	DefaultFalloffWeight = 0.9
)

// Falloff eases a set of displayed levels toward their targets so a bar
// drops gradually after a peak instead of snapping down.
type Falloff struct {
	weight float64
	prev   []float64
}

// NewFalloff returns a Falloff for count levels. weight is clamped to
// [0.7, 1].
func NewFalloff(count int, weight float64) *Falloff {
	return &Falloff{
		weight: math.Max(0.7, math.Min(1, weight)),
		prev:   make([]float64, count),
	}
}

// Update moves level idx toward now and returns the displayed value.
func (f *Falloff) Update(idx int, now float64) float64 {
	if idx < 0 || idx >= len(f.prev) {
		return now
	}

	f.prev[idx] = falloff(f.weight, f.prev[idx], now)
	return f.prev[idx]
}

// Reset drops all levels to zero.
func (f *Falloff) Reset() {
	for idx := range f.prev {
		f.prev[idx] = 0
	}
}

func falloff(weight, prev, now float64) float64 {
	if now >= prev {
		return now
	}

	change := prev - now
	if change >= MinChange {
		return math.Max(math.Min(prev*weight, prev-MinChange), now)
	}

	return prev - (change * 0.5)
}
