// Package synthetic provides a generated biosignal stream for demos and tests.
//
// Every channel carries an alpha tone and a beta tone whose strengths swap
// slowly, plus gaussian noise. The blink channels get a large artifact on a
// fixed period so fatigue has something to count.
package synthetic

import (
	"context"
	"io"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/noriah/brainwave/input"
	"github.com/pkg/errors"
)

func init() {
	input.RegisterBackend("synthetic", NewBackend(DefaultOptions()))
}

// Options shape the generated signal.
type Options struct {
	AlphaFreq     float64       // Hz
	BetaFreq      float64       // Hz
	Amplitude     float64       // uV of the strongest tone
	DriftPeriod   time.Duration // time for alpha and beta to trade places and back
	Noise         float64       // uV standard deviation
	BlinkChannels []int         // channels that carry blinks
	BlinkEvery    time.Duration // blink period, 0 for none
	BlinkLength   time.Duration // blink duration
	BlinkValue    float64       // uV during a blink
	Seed          int64         // noise seed
	Limit         int           // samples before the stream ends, 0 for no end
	Unpaced       bool          // produce samples as fast as they are pulled
}

// DefaultOptions returns the options the registered backend uses.
func DefaultOptions() Options {
	return Options{
		AlphaFreq:     10,
		BetaFreq:      20,
		Amplitude:     40,
		DriftPeriod:   20 * time.Second,
		Noise:         5,
		BlinkChannels: []int{0, 1},
		BlinkEvery:    3 * time.Second,
		BlinkLength:   100 * time.Millisecond,
		BlinkValue:    1500,
		Seed:          1,
	}
}

type Backend struct {
	opts Options
}

// NewBackend returns a synthetic backend producing opts.
func NewBackend(opts Options) *Backend {
	return &Backend{opts: opts}
}

func (b *Backend) Init() error {
	return nil
}

func (b *Backend) Close() error {
	return nil
}

func (b *Backend) Devices() ([]input.Device, error) {
	return []input.Device{Device{}}, nil
}

func (b *Backend) DefaultDevice() (input.Device, error) {
	return Device{}, nil
}

func (b *Backend) Streams(cfg input.SessionConfig) ([]input.StreamInfo, error) {
	return []input.StreamInfo{{
		Name:         "synthetic",
		Type:         cfg.StreamType,
		SourceID:     "synthetic",
		ChannelCount: cfg.ChannelCount,
		SampleRate:   cfg.SampleRate,
	}}, nil
}

func (b *Backend) Open(info input.StreamInfo, cfg input.SessionConfig) (input.Inlet, error) {
	if info.ChannelCount < 1 {
		return nil, errors.New("channel count must be positive")
	}

	if info.SampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}

	return NewInlet(info, b.opts), nil
}

type Device struct{}

func (d Device) String() string {
	return "generator"
}

// Inlet generates samples on demand.
type Inlet struct {
	info  input.StreamInfo
	opts  Options
	start time.Time
	rng   *rand.Rand

	mu     sync.Mutex
	n      int
	closed bool
}

// NewInlet returns a generator for info.
func NewInlet(info input.StreamInfo, opts Options) *Inlet {
	return &Inlet{
		info:  info,
		opts:  opts,
		start: time.Now(),
		rng:   rand.New(rand.NewSource(opts.Seed)),
	}
}

func (in *Inlet) Info() input.StreamInfo {
	return in.info
}

// Pull waits until the next sample is due and returns it.
func (in *Inlet) Pull(ctx context.Context, timeout time.Duration) (input.Sample, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return input.Sample{}, io.EOF
	}

	if in.opts.Limit > 0 && in.n >= in.opts.Limit {
		return input.Sample{}, io.EOF
	}

	if !in.opts.Unpaced {
		due := in.start.Add(time.Duration(float64(in.n) / in.info.SampleRate * float64(time.Second)))

		if wait := time.Until(due); wait > 0 {
			if wait > timeout {
				return input.Sample{}, input.ErrTimeout
			}

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return input.Sample{}, ctx.Err()
			case <-timer.C:
			}
		}
	}

	sample := in.generate(in.n)
	in.n++

	return sample, nil
}

func (in *Inlet) generate(n int) input.Sample {
	t := float64(n) / in.info.SampleRate

	// mix swings between all alpha (0) and all beta (1).
	mix := 0.5
	if in.opts.DriftPeriod > 0 {
		mix = 0.5 - 0.5*math.Cos(2*math.Pi*t/in.opts.DriftPeriod.Seconds())
	}

	alpha := (1 - mix) * in.opts.Amplitude * math.Sin(2*math.Pi*in.opts.AlphaFreq*t)
	beta := mix * in.opts.Amplitude * math.Sin(2*math.Pi*in.opts.BetaFreq*t)

	sample := input.Sample{
		Values:    make([]float64, in.info.ChannelCount),
		Timestamp: t,
	}

	for ch := range sample.Values {
		sample.Values[ch] = alpha + beta + in.rng.NormFloat64()*in.opts.Noise
	}

	if in.blinking(t) {
		for _, ch := range in.opts.BlinkChannels {
			if ch >= 0 && ch < len(sample.Values) {
				sample.Values[ch] += in.opts.BlinkValue
			}
		}
	}

	return sample
}

func (in *Inlet) blinking(t float64) bool {
	if in.opts.BlinkEvery <= 0 {
		return false
	}

	return math.Mod(t, in.opts.BlinkEvery.Seconds()) < in.opts.BlinkLength.Seconds()
}

func (in *Inlet) Close() error {
	in.mu.Lock()
	in.closed = true
	in.mu.Unlock()
	return nil
}
