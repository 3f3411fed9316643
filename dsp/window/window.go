// Package window provides Window Functions for singnal analysis
//
// See https://wikipedia.org/wiki/Window_function
package window

import (
	"math"

	"github.com/pkg/errors"
)

// Function is a function that will do window things for you
type Function func(buf []float64)

// Rectangle is just do nothing
func Rectangle(buf []float64) {
	// do nothing
}

// CosSum modifies the buffer to conform to a cosine sum window following a0.
//
// The window is periodic (DFT-even), which is what spectral estimators want.
func CosSum(buf []float64, a0 float64) {
	var size = len(buf)
	var a1 = 1.0 - a0
	var coef = 2.0 * math.Pi / float64(size)
	for n := 0; n < size; n++ {
		buf[n] *= (a0 - a1*math.Cos(coef*float64(n)))
	}
}

// Hamming modifies the buffer to a Hamming window
func Hamming(buf []float64) {
	CosSum(buf, 25.0/46.0)
}

// Hann modifies the buffer to a Hann window
func Hann(buf []float64) {
	CosSum(buf, 0.5)
}

// Bartlett modifies the buffer to a Bartlett window
func Bartlett(buf []float64) {
	var size = len(buf)
	var fSize = float64(size)
	for n := 0; n < size; n++ {
		buf[n] *= (1.0 - math.Abs((2.0*float64(n)-fSize)/fSize))
	}
}

// Coefficients returns the window fn describes for size points.
func Coefficients(fn Function, size int) []float64 {
	coefs := make([]float64, size)
	for idx := range coefs {
		coefs[idx] = 1.0
	}

	if fn != nil {
		fn(coefs)
	}

	return coefs
}

// Lookup returns the window function registered under name. An empty name is
// Hann.
func Lookup(name string) (Function, error) {
	switch name {
	case "", "hann":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "bartlett":
		return Bartlett, nil
	case "rectangle", "boxcar":
		return Rectangle, nil
	}

	return nil, errors.Errorf("unknown window function %q", name)
}
