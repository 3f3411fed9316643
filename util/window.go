package util

import (
	"math"
)

// Stats holds the running statistics of a window.
type Stats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
}

// WindowBuffer is a fixed capacity window of the most recent values.
//
// values live in a ring. head is the slot the next value is written to.
// once the ring is full, each push overwrites the oldest value, so the
// window always holds the last cap values in the order they were pushed.
//
// sum and sumSq are kept as values enter and leave so the statistics do not
// need a pass over the window.
type WindowBuffer struct {
	values []float64

	head   int
	length int

	sum   float64
	sumSq float64
}

// NewWindowBuffer returns a new window buffer that holds up to size values.
func NewWindowBuffer(size int) *WindowBuffer {
	if size < 1 {
		size = 1
	}

	return &WindowBuffer{
		values: make([]float64, size),
	}
}

// MakeWindowBuffers makes a set of window buffers, one per channel.
func MakeWindowBuffers(channels, size int) []*WindowBuffer {
	bufs := make([]*WindowBuffer, channels)
	for idx := range bufs {
		bufs[idx] = NewWindowBuffer(size)
	}

	return bufs
}

// Push adds value to the window. If the window is full the oldest value is
// dropped.
func (wb *WindowBuffer) Push(value float64) {
	if wb.length < len(wb.values) {
		wb.length++
	} else {
		old := wb.values[wb.head]
		wb.sum -= old
		wb.sumSq -= old * old
	}

	wb.values[wb.head] = value
	wb.sum += value
	wb.sumSq += value * value

	if wb.head++; wb.head == len(wb.values) {
		wb.head = 0
	}
}

// Snapshot returns a copy of the window, oldest value first.
func (wb *WindowBuffer) Snapshot() []float64 {
	return wb.CopyTo(make([]float64, wb.length))
}

// CopyTo copies the window into dst, oldest value first, and returns the
// filled part of dst. dst is grown if it is too short.
func (wb *WindowBuffer) CopyTo(dst []float64) []float64 {
	if cap(dst) < wb.length {
		dst = make([]float64, wb.length)
	}
	dst = dst[:wb.length]

	start := wb.head - wb.length
	if start < 0 {
		start += len(wb.values)
	}

	n := copy(dst, wb.values[start:])
	if n < wb.length {
		copy(dst[n:], wb.values[:wb.length-n])
	}

	return dst
}

// Last returns the most recent value, false if the window is empty.
func (wb *WindowBuffer) Last() (float64, bool) {
	if wb.length == 0 {
		return 0, false
	}

	idx := wb.head - 1
	if idx < 0 {
		idx = len(wb.values) - 1
	}

	return wb.values[idx], true
}

// Len returns how many values are in the window
func (wb *WindowBuffer) Len() int {
	return wb.length
}

// Cap returns max size of window
func (wb *WindowBuffer) Cap() int {
	return len(wb.values)
}

// Stats returns the mean and population standard deviation of the window.
func (wb *WindowBuffer) Stats() Stats {
	if wb.length == 0 {
		return Stats{}
	}

	n := float64(wb.length)
	mean := wb.sum / n

	// rounding can push this a hair below zero on flat windows.
	variance := (wb.sumSq / n) - (mean * mean)
	if variance < 0 {
		variance = 0
	}

	return Stats{Mean: mean, StdDev: math.Sqrt(variance)}
}
