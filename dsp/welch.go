package dsp

import (
	"math"

	"github.com/noriah/brainwave/dsp/window"
	"github.com/noriah/brainwave/fft"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// DefaultSegmentLength is the Welch segment length used when none is given.
const DefaultSegmentLength = 256

// ErrNotEnoughData is returned when a window is too short to analyze.
var ErrNotEnoughData = errors.New("not enough data")

// Spectrum is a one-sided power spectral density estimate.
type Spectrum struct {
	Freqs []float64 // bin frequencies in Hz
	Power []float64 // power density per bin (units^2/Hz)
}

// welchPlan is everything Welch needs for one segment length.
type welchPlan struct {
	plan  *fft.Plan
	coefs []float64
	scale float64
}

func newWelchPlan(size int, sampleRate float64, fn window.Function) *welchPlan {
	coefs := window.Coefficients(fn, size)

	return &welchPlan{
		plan:  fft.NewPlan(size),
		coefs: coefs,
		scale: 1.0 / (sampleRate * floats.Dot(coefs, coefs)),
	}
}

// Welch estimates the power spectral density of x with Welch's method.
//
// The segment length is min(segLen, len(x)); shorter inputs reduce the
// segment instead of padding it. Segments overlap by half, each one has its
// mean removed and fn applied before the transform. Segment periodograms are
// averaged. fn nil is a Hann window.
func Welch(x []float64, sampleRate float64, segLen int, fn window.Function) (Spectrum, error) {
	if fn == nil {
		fn = window.Hann
	}

	size := segmentLength(len(x), segLen)
	if size < 2 {
		return Spectrum{}, ErrNotEnoughData
	}

	return newWelchPlan(size, sampleRate, fn).estimate(x, sampleRate), nil
}

func segmentLength(n, segLen int) int {
	if segLen <= 0 {
		segLen = DefaultSegmentLength
	}

	if n < segLen {
		return n
	}

	return segLen
}

func (wp *welchPlan) estimate(x []float64, sampleRate float64) Spectrum {
	size := wp.plan.Size()
	step := size - size/2
	bins := size/2 + 1

	spec := Spectrum{
		Freqs: make([]float64, bins),
		Power: make([]float64, bins),
	}

	for k := range spec.Freqs {
		spec.Freqs[k] = float64(k) * sampleRate / float64(size)
	}

	segments := 0
	for off := 0; off+size <= len(x); off += step {
		seg := wp.plan.Input
		copy(seg, x[off:off+size])

		mean := floats.Sum(seg) / float64(size)
		floats.AddConst(-mean, seg)
		floats.Mul(seg, wp.coefs)

		wp.plan.Execute()

		for k, c := range wp.plan.Output {
			spec.Power[k] += real(c)*real(c) + imag(c)*imag(c)
		}

		segments++
	}

	floats.Scale(wp.scale/float64(segments), spec.Power)

	// fold the negative frequencies in. DC and, for even sizes, nyquist have
	// no mirror.
	last := bins
	if size%2 == 0 {
		last--
	}
	for k := 1; k < last; k++ {
		spec.Power[k] *= 2
	}

	return spec
}

// Resolution is the width of one bin in Hz.
func (s Spectrum) Resolution() float64 {
	if len(s.Freqs) < 2 {
		return math.NaN()
	}

	return s.Freqs[1] - s.Freqs[0]
}
