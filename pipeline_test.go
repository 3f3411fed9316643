package brainwave

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/noriah/brainwave/input"
	"github.com/noriah/brainwave/processor"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// chanInlet hands out whatever is sent on samples.
type chanInlet struct {
	info    input.StreamInfo
	samples chan input.Sample
	eof     chan struct{}

	mu     sync.Mutex
	closed bool
}

func newChanInlet(info input.StreamInfo) *chanInlet {
	return &chanInlet{
		info:    info,
		samples: make(chan input.Sample),
		eof:     make(chan struct{}),
	}
}

func (in *chanInlet) Info() input.StreamInfo { return in.info }

func (in *chanInlet) Pull(ctx context.Context, timeout time.Duration) (input.Sample, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s := <-in.samples:
		return s, nil
	case <-in.eof:
		return input.Sample{}, io.EOF
	case <-timer.C:
		return input.Sample{}, input.ErrTimeout
	case <-ctx.Done():
		return input.Sample{}, ctx.Err()
	}
}

func (in *chanInlet) Close() error {
	in.mu.Lock()
	in.closed = true
	in.mu.Unlock()
	return nil
}

func (in *chanInlet) isClosed() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.closed
}

// stuckInlet ignores cancellation until released.
type stuckInlet struct {
	info    input.StreamInfo
	release chan struct{}
}

func (in *stuckInlet) Info() input.StreamInfo { return in.info }

func (in *stuckInlet) Pull(context.Context, time.Duration) (input.Sample, error) {
	<-in.release
	return input.Sample{}, io.EOF
}

func (in *stuckInlet) Close() error { return nil }

type fakeBackend struct {
	streams []input.StreamInfo
	open    func(input.StreamInfo) input.Inlet

	mu    sync.Mutex
	opens int
}

func (b *fakeBackend) Init() error                          { return nil }
func (b *fakeBackend) Close() error                         { return nil }
func (b *fakeBackend) Devices() ([]input.Device, error)     { return nil, nil }
func (b *fakeBackend) DefaultDevice() (input.Device, error) { return nil, nil }

func (b *fakeBackend) Streams(input.SessionConfig) ([]input.StreamInfo, error) {
	return b.streams, nil
}

func (b *fakeBackend) Open(info input.StreamInfo, _ input.SessionConfig) (input.Inlet, error) {
	b.mu.Lock()
	b.opens++
	b.mu.Unlock()
	return b.open(info), nil
}

func (b *fakeBackend) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

type testObserver struct {
	mu      sync.Mutex
	samples int
	states  []State
	errs    []error
}

func (o *testObserver) SampleProcessed(Snapshot) {
	o.mu.Lock()
	o.samples++
	o.mu.Unlock()
}

func (o *testObserver) StateChanged(s State) {
	o.mu.Lock()
	o.states = append(o.states, s)
	o.mu.Unlock()
}

func (o *testObserver) ErrorRaised(err error) {
	o.mu.Lock()
	o.errs = append(o.errs, err)
	o.mu.Unlock()
}

var eegInfo = input.StreamInfo{
	Name:         "test",
	Type:         "EEG",
	SourceID:     "test",
	ChannelCount: 16,
	SampleRate:   250,
}

// chanPipeline returns a pipeline whose sessions read the returned inlets,
// newest last.
func chanPipeline(t *testing.T, mod func(*Config)) (*Pipeline, *fakeBackend, func() *chanInlet) {
	t.Helper()

	var (
		mu     sync.Mutex
		inlets []*chanInlet
	)

	b := &fakeBackend{
		streams: []input.StreamInfo{eegInfo},
		open: func(info input.StreamInfo) input.Inlet {
			in := newChanInlet(info)
			mu.Lock()
			inlets = append(inlets, in)
			mu.Unlock()
			return in
		},
	}

	cfg := NewZeroConfig()
	cfg.Backend = b
	if mod != nil {
		mod(&cfg)
	}

	p, err := New(cfg)
	require.NoError(t, err)

	last := func() *chanInlet {
		mu.Lock()
		defer mu.Unlock()
		require.NotEmpty(t, inlets)
		return inlets[len(inlets)-1]
	}

	return p, b, last
}

func sample(v float64) input.Sample {
	s := input.Sample{Values: make([]float64, 16)}
	for idx := range s.Values {
		s.Values[idx] = v
	}
	return s
}

func TestStartStreamStop(t *testing.T) {
	obs := &testObserver{}
	p, _, last := chanPipeline(t, func(cfg *Config) { cfg.Observer = obs })

	assert.Equal(t, Idle, p.State())
	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, Streaming, p.State())

	snap := p.Snapshot()
	assert.Equal(t, Streaming, snap.State)
	assert.NotEmpty(t, snap.Session)
	assert.Zero(t, snap.Samples)

	in := last()
	for n := 0; n < 300; n++ {
		in.samples <- sample(float64(n))
	}

	require.Eventually(t, func() bool { return p.Snapshot().Samples == 300 }, waitFor, tick)

	snap = p.Snapshot()
	require.Len(t, snap.Channels, 16)
	assert.Len(t, snap.Channels[0], DefaultWindowSize)
	assert.Equal(t, 50.0, snap.Channels[0][0])
	assert.Equal(t, 299.0, snap.Latest[15])
	assert.True(t, snap.Metrics.FocusReady)

	require.NoError(t, p.Stop())
	assert.Equal(t, Idle, p.State())
	assert.True(t, in.isClosed())

	snap = p.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Equal(t, uint64(300), snap.Samples)
	assert.NoError(t, snap.LastError)
	assert.NoError(t, p.LastError())

	obs.mu.Lock()
	assert.Equal(t, 300, obs.samples)
	assert.Equal(t, []State{Streaming, Idle}, obs.states)
	assert.Empty(t, obs.errs)
	obs.mu.Unlock()
}

func TestStartTwiceRunsOneWorker(t *testing.T) {
	p, b, _ := chanPipeline(t, nil)

	require.NoError(t, p.Start(context.Background()))
	session := p.Snapshot().Session

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, 1, b.openCount())
	assert.Equal(t, session, p.Snapshot().Session)

	require.NoError(t, p.Stop())
}

func TestStopWhileIdle(t *testing.T) {
	p, _, _ := chanPipeline(t, nil)

	seq := p.Snapshot().Seq
	assert.NoError(t, p.Stop())
	assert.Equal(t, Idle, p.State())
	assert.Equal(t, seq, p.Snapshot().Seq)
}

func TestRestartResetsWindows(t *testing.T) {
	p, _, last := chanPipeline(t, nil)

	require.NoError(t, p.Start(context.Background()))
	last().samples <- sample(1)
	require.Eventually(t, func() bool { return p.Snapshot().Samples == 1 }, waitFor, tick)
	first := p.Snapshot().Session
	require.NoError(t, p.Stop())

	require.NoError(t, p.Start(context.Background()))
	snap := p.Snapshot()
	assert.NotEqual(t, first, snap.Session)
	assert.Zero(t, snap.Samples)
	assert.Empty(t, snap.Channels[0])
	assert.Zero(t, snap.Metrics.FatigueLevel)

	require.NoError(t, p.Stop())
}

func TestStreamNotFound(t *testing.T) {
	obs := &testObserver{}
	b := &fakeBackend{streams: []input.StreamInfo{{Name: "aux", Type: "AUX"}}}

	cfg := NewZeroConfig()
	cfg.Backend = b
	cfg.ResolveTimeout = 150 * time.Millisecond
	cfg.Observer = obs

	p, err := New(cfg)
	require.NoError(t, err)

	err = p.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStreamNotFound)
	assert.Equal(t, "stream_not_found", ErrorKind(err))

	assert.Equal(t, Idle, p.State())
	assert.Zero(t, b.openCount())
	assert.ErrorIs(t, p.Snapshot().LastError, ErrStreamNotFound)
	assert.Equal(t, Idle, p.Snapshot().State)

	obs.mu.Lock()
	assert.Len(t, obs.errs, 1)
	obs.mu.Unlock()
}

func TestSampleTimeout(t *testing.T) {
	p, _, last := chanPipeline(t, func(cfg *Config) {
		cfg.SampleTimeout = 50 * time.Millisecond
	})

	require.NoError(t, p.Start(context.Background()))

	require.Eventually(t, func() bool { return p.State() == Idle }, waitFor, tick)
	assert.ErrorIs(t, p.LastError(), ErrSampleTimeout)
	assert.ErrorIs(t, p.Snapshot().LastError, ErrSampleTimeout)
	assert.True(t, last().isClosed())

	// nothing left to stop.
	assert.NoError(t, p.Stop())
}

func TestEndOfStream(t *testing.T) {
	p, _, last := chanPipeline(t, nil)

	require.NoError(t, p.Start(context.Background()))
	close(last().eof)

	require.Eventually(t, func() bool { return p.State() == Idle }, waitFor, tick)
	assert.ErrorIs(t, p.LastError(), ErrSampleTimeout)
}

func TestValidationEndsSession(t *testing.T) {
	p, _, last := chanPipeline(t, nil)

	require.NoError(t, p.Start(context.Background()))

	in := last()
	in.samples <- sample(1)
	in.samples <- input.Sample{Values: []float64{1, 2, 3}}

	require.Eventually(t, func() bool { return p.State() == Idle }, waitFor, tick)

	err := p.LastError()
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "validation", ErrorKind(err))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 3, verr.Got)
	assert.Equal(t, 16, verr.Want)

	// the valid sample is kept.
	assert.Equal(t, uint64(1), p.Snapshot().Samples)
	assert.True(t, in.isClosed())
}

func TestWorkerJoinTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	b := &fakeBackend{
		streams: []input.StreamInfo{eegInfo},
		open: func(info input.StreamInfo) input.Inlet {
			return &stuckInlet{info: info, release: release}
		},
	}

	cfg := NewZeroConfig()
	cfg.Backend = b
	cfg.JoinTimeout = 50 * time.Millisecond

	p, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))

	err = p.Stop()
	assert.ErrorIs(t, err, ErrWorkerJoinTimeout)
	assert.Equal(t, Idle, p.State())
	assert.ErrorIs(t, p.Snapshot().LastError, ErrWorkerJoinTimeout)

	err = p.Start(context.Background())
	assert.ErrorIs(t, err, ErrWorkerJoinTimeout)
	assert.Equal(t, 1, b.openCount())
}

func TestAbandonedSessionCannotPublish(t *testing.T) {
	p, _, _ := chanPipeline(t, nil)

	stale := &session{id: "stale"}
	p.publishIdle(ErrWorkerJoinTimeout)
	seq := p.Snapshot().Seq

	out := &sessionOutput{ctx: context.Background(), p: p, s: stale}
	require.NoError(t, out.Write(processor.Frame{Samples: 1}))

	snap := p.Snapshot()
	assert.Equal(t, seq, snap.Seq)
	assert.Equal(t, Idle, snap.State)
	assert.ErrorIs(t, snap.LastError, ErrWorkerJoinTimeout)
}

func TestContextEndsSession(t *testing.T) {
	p, _, last := chanPipeline(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))

	cancel()

	require.Eventually(t, func() bool { return p.State() == Idle }, waitFor, tick)
	assert.NoError(t, p.LastError())
	assert.True(t, last().isClosed())
}

func TestConfigureAppliesOnNextStart(t *testing.T) {
	p, _, last := chanPipeline(t, nil)

	a := NewAnalysis()
	a.WindowSize = 4
	require.NoError(t, p.Configure(a))

	a.Focus.Channel = 99
	assert.Error(t, p.Configure(a))

	require.NoError(t, p.Start(context.Background()))

	in := last()
	for n := 0; n < 10; n++ {
		in.samples <- sample(float64(n))
	}

	require.Eventually(t, func() bool { return p.Snapshot().Samples == 10 }, waitFor, tick)
	assert.Equal(t, []float64{6, 7, 8, 9}, p.Snapshot().Channels[3])

	require.NoError(t, p.Stop())
}

func TestCloseRefusesStart(t *testing.T) {
	p, _, _ := chanPipeline(t, nil)

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Close())

	assert.Equal(t, Idle, p.State())
	assert.ErrorIs(t, p.Start(context.Background()), ErrClosed)
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := NewZeroConfig()
	_, err := New(cfg)
	assert.Error(t, err)

	cfg.Backend = &fakeBackend{}
	cfg.Session.ChannelCount = 0
	_, err = New(cfg)
	assert.Error(t, err)

	cfg.Session.ChannelCount = 16
	cfg.Analysis.Fatigue.Channels = []int{0, 16}
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestErrorKind(t *testing.T) {
	cases := map[string]error{
		"":                    nil,
		"stream_not_found":    errors.Wrap(ErrStreamNotFound, "eeg"),
		"sample_timeout":      errors.Wrap(ErrSampleTimeout, "2s"),
		"validation":          &ValidationError{Got: 1, Want: 2},
		"worker_join_timeout": ErrWorkerJoinTimeout,
		"closed":              ErrClosed,
		"source":              errors.New("read failed"),
	}

	for want, err := range cases {
		assert.Equal(t, want, ErrorKind(err))
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "streaming", Streaming.String())

	b, err := Streaming.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "streaming", string(b))
}

func TestStateJSONRoundTrip(t *testing.T) {
	for _, st := range []State{Idle, Streaming} {
		b, err := json.Marshal(struct{ State State }{st})
		require.NoError(t, err)

		var back struct{ State State }
		require.NoError(t, json.Unmarshal(b, &back))
		assert.Equal(t, st, back.State)
	}

	var st State
	assert.Error(t, st.UnmarshalText([]byte("paused")))
	assert.Equal(t, Idle, st)
}

// trackedInlet counts how many inlets are open at once.
type trackedInlet struct {
	*chanInlet
	closer  sync.Once
	onClose func()
}

func (in *trackedInlet) Close() error {
	in.closer.Do(in.onClose)
	return in.chanInlet.Close()
}

func TestConcurrentStartStop(t *testing.T) {
	var (
		mu      sync.Mutex
		open    int
		maxOpen int
	)

	b := &fakeBackend{
		streams: []input.StreamInfo{eegInfo},
		open: func(info input.StreamInfo) input.Inlet {
			mu.Lock()
			open++
			if open > maxOpen {
				maxOpen = open
			}
			mu.Unlock()

			return &trackedInlet{
				chanInlet: newChanInlet(info),
				onClose: func() {
					mu.Lock()
					open--
					mu.Unlock()
				},
			}
		},
	}

	obs := &testObserver{}

	cfg := NewZeroConfig()
	cfg.Backend = b
	cfg.Observer = obs

	p, err := New(cfg)
	require.NoError(t, err)

	const workers = 16

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if (w+i)%2 == 0 {
					assert.NoError(t, p.Start(context.Background()))
				} else {
					assert.NoError(t, p.Stop())
				}
			}
		}(w)
	}
	wg.Wait()

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, Streaming, p.State())

	require.NoError(t, p.Stop())
	assert.Equal(t, Idle, p.State())

	sessions := 0
	obs.mu.Lock()
	for _, st := range obs.states {
		if st == Streaming {
			sessions++
		}
	}
	obs.mu.Unlock()

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, 1, maxOpen)
	assert.Zero(t, open)
	assert.Equal(t, b.openCount(), sessions)
}
