package dsp

import (
	"github.com/noriah/brainwave/dsp/window"
	"gonum.org/v1/gonum/integrate"
)

// Band is a closed frequency range in Hz.
type Band struct {
	Lo float64 `yaml:"lo" toml:"lo" json:"lo"`
	Hi float64 `yaml:"hi" toml:"hi" json:"hi"`
}

// Frequency bands
var (
	AlphaBand = Band{Lo: 8, Hi: 12}
	BetaBand  = Band{Lo: 13, Hi: 30}
)

// Contains reports whether freq lies within the band.
func (b Band) Contains(freq float64) bool {
	return freq >= b.Lo && freq <= b.Hi
}

// BandPower integrates the spectrum over the bins inside band with the
// trapezoidal rule. Fewer than two bins in the band integrate to 0.
func BandPower(spec Spectrum, band Band) float64 {
	lo, hi := -1, -1
	for k, f := range spec.Freqs {
		if !band.Contains(f) {
			continue
		}

		if lo < 0 {
			lo = k
		}
		hi = k + 1
	}

	if lo < 0 || hi-lo < 2 {
		return 0
	}

	return integrate.Trapezoidal(spec.Freqs[lo:hi], spec.Power[lo:hi])
}

// FocusConfig configures the focus estimate.
type FocusConfig struct {
	Channel       int             // channel whose window is analyzed
	SampleRate    float64         // samples per second
	SegmentLength int             // Welch segment length
	Alpha         Band            // relaxed band
	Beta          Band            // alert band
	Window        window.Function // segment window, Hann if nil
}

// NewFocusConfig returns the focus settings for a 250 Hz stream.
func NewFocusConfig() FocusConfig {
	return FocusConfig{
		Channel:       0,
		SampleRate:    250,
		SegmentLength: DefaultSegmentLength,
		Alpha:         AlphaBand,
		Beta:          BetaBand,
		Window:        window.Hann,
	}
}

// FocusResult is the outcome of a focus estimate.
type FocusResult struct {
	Level      float64 // beta power minus alpha power
	AlphaPower float64
	BetaPower  float64
}

// Focus estimates focus on a single channel window. It is the same as
// NewFocusAnalyzer(cfg).Analyze(values) without keeping plans around.
func Focus(values []float64, cfg FocusConfig) (FocusResult, error) {
	spec, err := Welch(values, cfg.SampleRate, cfg.SegmentLength, cfg.Window)
	if err != nil {
		return FocusResult{}, err
	}

	return focusFromSpectrum(spec, cfg), nil
}

func focusFromSpectrum(spec Spectrum, cfg FocusConfig) FocusResult {
	alpha := BandPower(spec, cfg.Alpha)
	beta := BandPower(spec, cfg.Beta)

	return FocusResult{
		Level:      beta - alpha,
		AlphaPower: alpha,
		BetaPower:  beta,
	}
}

// FocusAnalyzer estimates focus and keeps the FFT plan and window of each
// segment length it has seen. It is not safe for concurrent use.
type FocusAnalyzer struct {
	cfg   FocusConfig
	plans map[int]*welchPlan
}

// NewFocusAnalyzer returns a new focus analyzer.
func NewFocusAnalyzer(cfg FocusConfig) *FocusAnalyzer {
	if cfg.Window == nil {
		cfg.Window = window.Hann
	}

	return &FocusAnalyzer{
		cfg:   cfg,
		plans: make(map[int]*welchPlan),
	}
}

// Config returns the analyzer config.
func (fa *FocusAnalyzer) Config() FocusConfig {
	return fa.cfg
}

// Analyze estimates focus on values.
func (fa *FocusAnalyzer) Analyze(values []float64) (FocusResult, error) {
	size := segmentLength(len(values), fa.cfg.SegmentLength)
	if size < 2 {
		return FocusResult{}, ErrNotEnoughData
	}

	wp, ok := fa.plans[size]
	if !ok {
		wp = newWelchPlan(size, fa.cfg.SampleRate, fa.cfg.Window)
		fa.plans[size] = wp
	}

	return focusFromSpectrum(wp.estimate(values, fa.cfg.SampleRate), fa.cfg), nil
}
