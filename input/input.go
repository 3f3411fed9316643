package input

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// errors
var (
	// ErrTimeout is returned by Pull when no sample arrived in time.
	ErrTimeout = errors.New("no sample before timeout")
	// ErrNoStream is returned by Resolve when no stream of the type exists.
	ErrNoStream = errors.New("no stream of requested type")
)

// Sample is one reading across all channels.
type Sample struct {
	Values    []float64 // one value per channel, uV
	Timestamp float64   // monotonic seconds since the inlet opened
}

// StreamInfo describes a stream a backend can open.
type StreamInfo struct {
	Name         string  // human readable name
	Type         string  // content type, e.g. "EEG"
	SourceID     string  // unique id of the producer
	ChannelCount int     // channels per sample
	SampleRate   float64 // nominal samples per second
}

// SessionConfig is the shape of stream the caller wants.
type SessionConfig struct {
	Device       Device  // device to read from, nil for the default
	StreamType   string  // type tag reported for the stream
	ChannelCount int     // channels per sample
	SampleRate   float64 // samples per second
}

// Device is an input device.
type Device interface {
	String() string
}

// Inlet pulls samples from one open stream.
type Inlet interface {
	// Info describes the open stream.
	Info() StreamInfo
	// Pull waits up to timeout for the next sample. It returns ErrTimeout if
	// none arrived, ctx.Err() if ctx ended first and io.EOF when the stream
	// is over.
	Pull(ctx context.Context, timeout time.Duration) (Sample, error)
	// Close releases the stream. It is safe to call more than once.
	Close() error
}

// Clock hands out monotonic timestamps relative to its creation.
type Clock struct {
	start time.Time
}

// NewClock starts a new clock.
func NewClock() Clock {
	return Clock{start: time.Now()}
}

// Now returns the seconds since the clock started.
func (c Clock) Now() float64 {
	return time.Since(c.start).Seconds()
}
