// Package processor turns a stream of samples into frames: it keeps the
// per-channel windows of one session and runs the indicators on every
// sample.
package processor

import (
	"github.com/noriah/brainwave/dsp"
	"github.com/noriah/brainwave/input"
	"github.com/noriah/brainwave/util"
	"github.com/pkg/errors"
)

// Output receives every frame the processor produces. The frame is owned by
// the output.
type Output interface {
	Write(Frame) error
}

type Config struct {
	ChannelCount  int               // number of channels
	WindowSize    int               // values kept per channel
	FocusEvery    int               // samples between focus estimates
	FocusCritical float64           // focus level above which it is critical
	Fatigue       dsp.FatigueConfig // blink detection
	Focus         dsp.FocusConfig   // focus estimate
	Output        Output            // frame output, may be nil
}

// Frame is the state of the session after one sample. Nothing in a frame is
// shared with the processor.
type Frame struct {
	Channels  [][]float64  // window of each channel, oldest first
	Latest    []float64    // the sample that produced the frame
	Timestamp float64      // timestamp of that sample
	Metrics   dsp.Metrics  // indicators
	Stats     []util.Stats // running stats of each window
	Samples   uint64       // samples processed since the last reset
}

type Processor struct {
	channelCount int
	focusEvery   int
	focusCrit    float64

	windows []*util.WindowBuffer
	stamp   float64
	samples uint64
	metrics dsp.Metrics

	// scratch for the focus channel window.
	focusBuf []float64

	fatigue dsp.FatigueConfig
	focus   *dsp.FocusAnalyzer
	out     Output
}

func New(cfg Config) *Processor {
	if cfg.FocusEvery < 1 {
		cfg.FocusEvery = 1
	}

	return &Processor{
		channelCount: cfg.ChannelCount,
		focusEvery:   cfg.FocusEvery,
		focusCrit:    cfg.FocusCritical,
		windows:      util.MakeWindowBuffers(cfg.ChannelCount, cfg.WindowSize),
		focusBuf:     make([]float64, 0, cfg.WindowSize),
		fatigue:      cfg.Fatigue,
		focus:        dsp.NewFocusAnalyzer(cfg.Focus),
		out:          cfg.Output,
	}
}

// ChannelCount is the number of values every sample must carry.
func (p *Processor) ChannelCount() int {
	return p.channelCount
}

// Process pushes a sample into the windows, updates the indicators and
// writes the resulting frame to the output.
func (p *Processor) Process(s input.Sample) error {
	if len(s.Values) != p.channelCount {
		return errors.Errorf("sample has %d channels, want %d", len(s.Values), p.channelCount)
	}

	for idx, v := range s.Values {
		p.windows[idx].Push(v)
	}

	p.stamp = s.Timestamp

	p.metrics.SetFatigue(dsp.Fatigue(s.Values, p.fatigue))

	if p.samples%uint64(p.focusEvery) == 0 {
		p.updateFocus()
	}

	p.metrics.ComputedAt = s.Timestamp
	p.samples++

	if p.out == nil {
		return nil
	}

	return p.out.Write(p.Frame())
}

func (p *Processor) updateFocus() {
	ch := p.focus.Config().Channel
	if ch < 0 || ch >= len(p.windows) {
		p.metrics.ClearFocus()
		return
	}

	p.focusBuf = p.windows[ch].CopyTo(p.focusBuf)

	r, err := p.focus.Analyze(p.focusBuf)
	if err != nil {
		p.metrics.ClearFocus()
		return
	}

	p.metrics.SetFocus(r, p.focusCrit)
}

// Frame returns a copy of the current state.
func (p *Processor) Frame() Frame {
	f := Frame{
		Channels:  make([][]float64, len(p.windows)),
		Latest:    make([]float64, len(p.windows)),
		Timestamp: p.stamp,
		Metrics:   p.metrics,
		Stats:     make([]util.Stats, len(p.windows)),
		Samples:   p.samples,
	}

	for idx, wb := range p.windows {
		f.Latest[idx], _ = wb.Last()
		f.Channels[idx] = wb.Snapshot()
		f.Stats[idx] = wb.Stats()
	}

	return f
}
