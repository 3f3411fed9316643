// Package framereader provides an inlet over a stream of interleaved
// floating-point frames, such as a pipe from another process.
package framereader

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	"github.com/noriah/brainwave/input"
	"github.com/pkg/errors"
)

// queueSize is how many decoded samples may wait for Pull.
const queueSize = 64

// FrameFunc returns the values of the next frame. A nil slice with a nil
// error skips the frame.
type FrameFunc func() ([]float64, error)

// Inlet runs a FrameFunc on its own goroutine and hands the frames to Pull
// through a bounded queue. When the queue is full the oldest sample is
// dropped so the reader never stalls.
type Inlet struct {
	info   input.StreamInfo
	src    io.Closer
	next   FrameFunc
	clock  input.Clock
	queue  chan input.Sample
	done   chan struct{}
	closer sync.Once

	errMu sync.Mutex
	err   error
}

// New starts reading little-endian frames of info.ChannelCount values from
// src. f32mode selects float32 values, float64 otherwise.
func New(info input.StreamInfo, src io.ReadCloser, f32mode bool) *Inlet {
	reader := floatReader{
		order: binary.LittleEndian,
		f64:   !f32mode,
	}

	width := 4
	if !f32mode {
		width = 8
	}

	raw := make([]byte, info.ChannelCount*width)

	return NewFunc(info, src, func() ([]float64, error) {
		if _, err := io.ReadFull(src, raw); err != nil {
			return nil, err
		}

		reader.reset(raw)

		values := make([]float64, info.ChannelCount)
		for idx := range values {
			values[idx] = reader.next()
		}

		return values, nil
	})
}

// NewFunc starts calling next for frames. src is closed by Close, which
// should make a blocked next return.
func NewFunc(info input.StreamInfo, src io.Closer, next FrameFunc) *Inlet {
	in := &Inlet{
		info:  info,
		src:   src,
		next:  next,
		clock: input.NewClock(),
		queue: make(chan input.Sample, queueSize),
		done:  make(chan struct{}),
	}

	go in.read()

	return in
}

func (in *Inlet) Info() input.StreamInfo {
	return in.info
}

func (in *Inlet) read() {
	defer close(in.queue)

	for {
		values, err := in.next()
		if err != nil {
			if !in.closed() && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				in.setErr(errors.Wrap(err, "failed to read frame"))
			}
			return
		}

		if in.closed() {
			return
		}

		if values == nil {
			continue
		}

		in.offer(input.Sample{
			Values:    values,
			Timestamp: in.clock.Now(),
		})
	}
}

func (in *Inlet) closed() bool {
	select {
	case <-in.done:
		return true
	default:
		return false
	}
}

func (in *Inlet) offer(sample input.Sample) {
	for {
		select {
		case in.queue <- sample:
			return
		default:
		}

		// full. drop the oldest and try again.
		select {
		case <-in.queue:
		default:
		}
	}
}

func (in *Inlet) setErr(err error) {
	in.errMu.Lock()
	in.err = err
	in.errMu.Unlock()
}

func (in *Inlet) readErr() error {
	in.errMu.Lock()
	defer in.errMu.Unlock()
	return in.err
}

// Pull returns the next decoded frame.
func (in *Inlet) Pull(ctx context.Context, timeout time.Duration) (input.Sample, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sample, ok := <-in.queue:
		if !ok {
			if err := in.readErr(); err != nil {
				return input.Sample{}, err
			}
			return input.Sample{}, io.EOF
		}
		return sample, nil

	case <-timer.C:
		return input.Sample{}, input.ErrTimeout

	case <-ctx.Done():
		return input.Sample{}, ctx.Err()
	}
}

// Close closes the source, which ends the read goroutine.
func (in *Inlet) Close() error {
	var err error
	in.closer.Do(func() {
		close(in.done)
		err = in.src.Close()
	})
	return err
}

type floatReader struct {
	order binary.ByteOrder
	buf   []byte
	f64   bool
}

func (f *floatReader) reset(b []byte) {
	f.buf = b
}

func (f *floatReader) next() float64 {
	if f.f64 {
		b := f.buf[:8]
		f.buf = f.buf[8:]
		return math.Float64frombits(f.order.Uint64(b))
	}

	b := f.buf[:4]
	f.buf = f.buf[4:]
	return float64(math.Float32frombits(f.order.Uint32(b)))
}
