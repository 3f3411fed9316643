// Package fft provides a real-input fourier transform plan over gonum.
package fft

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// Plan holds a gonum FFT plan bound to an input and an output buffer.
//
// Input holds len(Input) real samples and Output receives len(Input)/2+1
// coefficients. Callers write into Input and call Execute.
type Plan struct {
	Input  []float64
	Output []complex128
	fft    *fourier.FFT
}

// NewPlan returns a plan for size real samples with its own buffers.
func NewPlan(size int) *Plan {
	return &Plan{
		Input:  make([]float64, size),
		Output: make([]complex128, size/2+1),
		fft:    fourier.NewFFT(size),
	}
}

// Size is the number of real samples the plan transforms.
func (p *Plan) Size() int {
	return len(p.Input)
}

// Execute executes the gonum plan.
func (p *Plan) Execute() {
	if p.fft == nil || p.fft.Len() != len(p.Input) {
		p.fft = fourier.NewFFT(len(p.Input))
	}
	p.fft.Coefficients(p.Output, p.Input)
}
