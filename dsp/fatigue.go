package dsp

import "math"

// Fatigue defaults
const (
	// DefaultBlinkThreshold is the absolute value (uV) above which a reading
	// counts as a blink.
	DefaultBlinkThreshold = 1000.0
	// DefaultFatigueScale is the fatigue added per blink.
	DefaultFatigueScale = 10.0
	// DefaultCriticalLevel is the level above which a score is critical.
	DefaultCriticalLevel = 80.0

	// MaxFatigue is the top of the fatigue range.
	MaxFatigue = 100.0
)

// FatigueConfig configures blink detection.
type FatigueConfig struct {
	Channels       []int   // channels that pick up blinks
	BlinkThreshold float64 // absolute blink threshold
	Scale          float64 // fatigue per blink
	Critical       float64 // critical level
}

// NewFatigueConfig returns the default blink settings: the first two
// channels, a 1000 uV threshold and 10 per blink.
func NewFatigueConfig() FatigueConfig {
	return FatigueConfig{
		Channels:       []int{0, 1},
		BlinkThreshold: DefaultBlinkThreshold,
		Scale:          DefaultFatigueScale,
		Critical:       DefaultCriticalLevel,
	}
}

// FatigueResult is the outcome of blink detection on one sample.
type FatigueResult struct {
	BlinkCount int
	Level      float64 // clamped to [0, MaxFatigue]
	Critical   bool
}

// Fatigue counts blinks in sample and scales them into a fatigue level.
// Channels missing from sample are ignored.
func Fatigue(sample []float64, cfg FatigueConfig) FatigueResult {
	count := 0
	for _, ch := range cfg.Channels {
		if ch < 0 || ch >= len(sample) {
			continue
		}

		if math.Abs(sample[ch]) > cfg.BlinkThreshold {
			count++
		}
	}

	level := math.Max(0, math.Min(MaxFatigue, float64(count)*cfg.Scale))

	return FatigueResult{
		BlinkCount: count,
		Level:      level,
		Critical:   level > cfg.Critical,
	}
}
