// Package brainwave streams a multi-channel biosignal, keeps a short window
// of every channel and derives fatigue and focus indicators from it.
//
// A Pipeline is either Idle or Streaming. Start resolves a stream and runs
// one ingestion worker; Stop ends it. The latest state is always available
// through Snapshot, from any goroutine.
package brainwave

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/noriah/brainwave/input"
	"github.com/noriah/brainwave/processor"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// State is the pipeline state.
type State int32

const (
	Idle State = iota
	Streaming
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = Idle
	case "streaming":
		*s = Streaming
	default:
		return errors.Errorf("unknown state %q", text)
	}
	return nil
}

// Observer is told about what the pipeline does. Calls come from the worker
// and from Start and Stop, and must not block.
type Observer interface {
	SampleProcessed(Snapshot)
	StateChanged(State)
	ErrorRaised(error)
}

type nopObserver struct{}

func (nopObserver) SampleProcessed(Snapshot) {}
func (nopObserver) StateChanged(State)       {}
func (nopObserver) ErrorRaised(error)        {}

// session is one Streaming period.
type session struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	proc   *processor.Processor
}

type Pipeline struct {
	cfg Config
	log *zap.Logger
	obs Observer
	pub *SnapshotPublisher

	// serializes Start, Stop, Configure and Close.
	ctrlMu sync.Mutex

	mu       sync.Mutex
	state    State
	current  *session
	analysis Analysis
	lastErr  error
	// set once the pipeline cannot start again.
	failed error
}

// New returns an Idle pipeline.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	p := &Pipeline{
		cfg:      cfg,
		log:      cfg.Logger,
		obs:      cfg.Observer,
		pub:      NewSnapshotPublisher(),
		state:    Idle,
		analysis: cfg.Analysis,
	}

	if p.log == nil {
		p.log = zap.NewNop()
	}

	if p.obs == nil {
		p.obs = nopObserver{}
	}

	return p, nil
}

// State returns the current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Snapshot returns the latest published snapshot. It never blocks on the
// worker.
func (p *Pipeline) Snapshot() Snapshot {
	return p.pub.Latest()
}

// LastError returns the error that ended the last session or start attempt.
func (p *Pipeline) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Configure replaces the analysis settings. They take effect on the next
// Start.
func (p *Pipeline) Configure(a Analysis) error {
	if err := a.Validate(p.cfg.Session.ChannelCount); err != nil {
		return errors.Wrap(err, "invalid analysis")
	}

	p.ctrlMu.Lock()
	defer p.ctrlMu.Unlock()

	p.mu.Lock()
	p.analysis = a
	p.mu.Unlock()

	return nil
}

// Start resolves a stream and starts streaming. It does nothing if the
// pipeline is already streaming. The session ends when ctx does.
func (p *Pipeline) Start(ctx context.Context) error {
	p.ctrlMu.Lock()
	defer p.ctrlMu.Unlock()

	p.mu.Lock()
	if p.failed != nil {
		err := p.failed
		p.mu.Unlock()
		return err
	}

	if p.state == Streaming {
		p.mu.Unlock()
		return nil
	}

	analysis := p.analysis
	p.mu.Unlock()

	rctx, cancel := context.WithTimeout(ctx, p.cfg.ResolveTimeout)
	inlet, err := input.Resolve(rctx, p.cfg.Backend, p.cfg.Session, p.cfg.Session.StreamType)
	cancel()

	if err != nil {
		err = errors.Wrap(ErrStreamNotFound, err.Error())
		p.log.Warn("[pipeline] failed to resolve stream",
			zap.String("streamType", p.cfg.Session.StreamType), zap.Error(err))

		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()

		p.publishIdle(err)
		p.obs.ErrorRaised(err)

		return err
	}

	info := inlet.Info()
	if info.SampleRate != p.cfg.Session.SampleRate {
		p.log.Warn("[pipeline] stream rate differs from configured rate",
			zap.Float64("streamRate", info.SampleRate),
			zap.Float64("configuredRate", p.cfg.Session.SampleRate))
	}

	analysis.Focus.SampleRate = p.cfg.Session.SampleRate

	wctx, wcancel := context.WithCancel(ctx)

	s := &session{
		id:     uuid.NewString(),
		cancel: wcancel,
		done:   make(chan struct{}),
	}

	s.proc = processor.New(processor.Config{
		ChannelCount:  p.cfg.Session.ChannelCount,
		WindowSize:    analysis.WindowSize,
		FocusEvery:    analysis.FocusEvery,
		FocusCritical: analysis.FocusCritical,
		Fatigue:       analysis.Fatigue,
		Focus:         analysis.Focus,
		Output:        &sessionOutput{ctx: wctx, p: p, s: s},
	})

	p.mu.Lock()
	p.state = Streaming
	p.current = s
	p.lastErr = nil
	p.mu.Unlock()

	p.pub.Publish(newSnapshot(s.id, Streaming, s.proc.Frame(), nil))
	p.obs.StateChanged(Streaming)

	p.log.Info("[pipeline] streaming started",
		zap.String("session", s.id),
		zap.String("stream", info.Name),
		zap.String("source", info.SourceID))

	go p.work(wctx, s, inlet)

	return nil
}

// Stop ends the session and waits for the worker to exit. It does nothing
// if the pipeline is idle.
func (p *Pipeline) Stop() error {
	p.ctrlMu.Lock()
	defer p.ctrlMu.Unlock()

	return p.stop()
}

func (p *Pipeline) stop() error {
	p.mu.Lock()
	s := p.current
	p.mu.Unlock()

	if s == nil {
		return nil
	}

	s.cancel()

	timer := time.NewTimer(p.cfg.JoinTimeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return nil
	case <-timer.C:
	}

	err := errors.Wrapf(ErrWorkerJoinTimeout, "session %s after %v", s.id, p.cfg.JoinTimeout)
	p.log.Error("[pipeline] worker did not exit", zap.String("session", s.id), zap.Error(err))

	p.mu.Lock()
	if p.current == s {
		p.current = nil
		p.state = Idle
	}
	p.lastErr = err
	p.failed = err
	p.mu.Unlock()

	p.publishIdle(err)
	p.obs.StateChanged(Idle)
	p.obs.ErrorRaised(err)

	return err
}

// Close stops the pipeline for good.
func (p *Pipeline) Close() error {
	p.ctrlMu.Lock()
	defer p.ctrlMu.Unlock()

	err := p.stop()

	p.mu.Lock()
	if p.failed == nil {
		p.failed = ErrClosed
	}
	p.mu.Unlock()

	return err
}

// publishIdle republishes the latest data as Idle with err.
func (p *Pipeline) publishIdle(err error) {
	s := p.pub.Latest()
	s.State = Idle
	s.LastError = err
	p.pub.Publish(s)
}

func (p *Pipeline) work(ctx context.Context, s *session, inlet input.Inlet) {
	defer close(s.done)
	defer inlet.Close()

	err := p.ingest(ctx, s, inlet)
	p.finish(s, err)
}

func (p *Pipeline) ingest(ctx context.Context, s *session, inlet input.Inlet) error {
	want := s.proc.ChannelCount()

	for {
		sample, err := inlet.Pull(ctx, p.cfg.SampleTimeout)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil

			case errors.Is(err, input.ErrTimeout):
				return errors.Wrapf(ErrSampleTimeout, "nothing for %v", p.cfg.SampleTimeout)

			case errors.Is(err, io.EOF):
				return errors.Wrap(ErrSampleTimeout, "stream ended")

			default:
				return errors.Wrap(err, "failed to pull sample")
			}
		}

		if len(sample.Values) != want {
			return &ValidationError{Got: len(sample.Values), Want: want}
		}

		if err := s.proc.Process(sample); err != nil {
			return errors.Wrap(err, "failed to process sample")
		}
	}
}

// finish moves to Idle unless Stop already gave up on s.
func (p *Pipeline) finish(s *session, err error) {
	p.mu.Lock()
	if p.current != s {
		p.mu.Unlock()
		return
	}

	p.current = nil
	p.state = Idle
	if err != nil {
		p.lastErr = err
	}
	lastErr := p.lastErr
	p.mu.Unlock()

	p.pub.Publish(newSnapshot(s.id, Idle, s.proc.Frame(), lastErr))
	p.obs.StateChanged(Idle)

	if err != nil {
		p.log.Warn("[pipeline] streaming ended", zap.String("session", s.id), zap.Error(err))
		p.obs.ErrorRaised(err)
		return
	}

	p.log.Info("[pipeline] streaming stopped", zap.String("session", s.id))
}

// sessionOutput publishes the frames of one session until it is cancelled.
type sessionOutput struct {
	ctx context.Context
	p   *Pipeline
	s   *session
}

func (so *sessionOutput) Write(f processor.Frame) error {
	if so.ctx.Err() != nil {
		return nil
	}

	// a session Stop gave up on must not publish over its Idle snapshot.
	so.p.mu.Lock()
	if so.p.current != so.s {
		so.p.mu.Unlock()
		return nil
	}
	snap := so.p.pub.Publish(newSnapshot(so.s.id, Streaming, f, nil))
	so.p.mu.Unlock()

	so.p.obs.SampleProcessed(snap)

	return nil
}
