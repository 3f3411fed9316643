// Package stdinput reads interleaved little-endian float32 frames from
// standard input.
package stdinput

import (
	"io"
	"os"
	"sync"

	"github.com/noriah/brainwave/input"
	"github.com/noriah/brainwave/input/common/framereader"
	"github.com/pkg/errors"
)

func init() {
	input.RegisterBackend("stdin", &StdinBackend{src: os.Stdin})
}

// frameWidth is the size of one float32 value.
const frameWidth = 4

type StdinBackend struct {
	src io.Reader

	mu   sync.Mutex
	pump *pump
}

func (b *StdinBackend) Init() error {
	return nil
}

func (b *StdinBackend) Close() error {
	return nil
}

func (b *StdinBackend) Devices() ([]input.Device, error) {
	return []input.Device{StdInputDevice{}}, nil
}

func (b *StdinBackend) DefaultDevice() (input.Device, error) {
	return StdInputDevice{}, nil
}

// Streams reports a single stream with the shape the caller asked for; stdin
// carries no metadata of its own.
func (b *StdinBackend) Streams(cfg input.SessionConfig) ([]input.StreamInfo, error) {
	return []input.StreamInfo{StreamInfo(cfg)}, nil
}

func (b *StdinBackend) Open(info input.StreamInfo, cfg input.SessionConfig) (input.Inlet, error) {
	if info.ChannelCount < 1 {
		return nil, errors.New("channel count must be positive")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	size := info.ChannelCount * frameWidth
	if b.pump == nil {
		b.pump = newPump(b.src, size)
	} else if b.pump.frameSize != size {
		return nil, errors.Errorf("stdin is already read in frames of %d channels",
			b.pump.frameSize/frameWidth)
	}

	return framereader.New(info, b.pump.reader(), true), nil
}

// StreamInfo is the stream stdin provides for cfg.
func StreamInfo(cfg input.SessionConfig) input.StreamInfo {
	return input.StreamInfo{
		Name:         "stdin",
		Type:         cfg.StreamType,
		SourceID:     "stdin",
		ChannelCount: cfg.ChannelCount,
		SampleRate:   cfg.SampleRate,
	}
}

type StdInputDevice struct{}

func (d StdInputDevice) String() string {
	return "stdin"
}
