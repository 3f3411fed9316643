package brainwave

import (
	"fmt"
	"time"

	"github.com/noriah/brainwave/dsp"
	"github.com/noriah/brainwave/input"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Defaults
const (
	DefaultStreamType     = "EEG"
	DefaultChannelCount   = 16
	DefaultSampleRate     = 250.0
	DefaultWindowSize     = 250
	DefaultSampleTimeout  = 2 * time.Second
	DefaultResolveTimeout = 5 * time.Second
	DefaultJoinTimeout    = 2 * time.Second

	MaxChannelCount = 64
	MaxWindowSize   = 1 << 16
)

// Analysis holds the settings of the windows and indicators. Changes are
// picked up by the next session.
type Analysis struct {
	// The number of values kept per channel
	WindowSize int
	// Samples between focus estimates, 1 for every sample
	FocusEvery int
	// Focus level above which focus is flagged
	FocusCritical float64
	// Blink detection
	Fatigue dsp.FatigueConfig
	// Focus estimate
	Focus dsp.FocusConfig
}

// NewAnalysis returns the default analysis settings.
func NewAnalysis() Analysis {
	return Analysis{
		WindowSize:    DefaultWindowSize,
		FocusEvery:    1,
		FocusCritical: dsp.DefaultCriticalLevel,
		Fatigue:       dsp.NewFatigueConfig(),
		Focus:         dsp.NewFocusConfig(),
	}
}

// Validate checks the settings for a stream of channelCount channels.
func (a *Analysis) Validate(channelCount int) error {
	switch {
	case a.WindowSize < 1:
		return errors.New("window size too small (1 min)")

	case a.WindowSize > MaxWindowSize:
		return fmt.Errorf("window size too large (%d max)", MaxWindowSize)

	case a.FocusEvery < 1:
		return errors.New("focus interval too small (1 min)")

	case a.Focus.Channel < 0 || a.Focus.Channel >= channelCount:
		return fmt.Errorf("focus channel %d out of range [0, %d)", a.Focus.Channel, channelCount)

	case a.Focus.SegmentLength < 2:
		return errors.New("segment length too small (2 min)")

	case a.Focus.Alpha.Lo >= a.Focus.Alpha.Hi:
		return errors.New("alpha band is empty")

	case a.Focus.Beta.Lo >= a.Focus.Beta.Hi:
		return errors.New("beta band is empty")

	case a.Fatigue.BlinkThreshold < 0:
		return errors.New("blink threshold is negative")
	}

	for _, ch := range a.Fatigue.Channels {
		if ch < 0 || ch >= channelCount {
			return fmt.Errorf("blink channel %d out of range [0, %d)", ch, channelCount)
		}
	}

	return nil
}

type Config struct {
	// The backend to resolve streams on
	Backend input.Backend
	// The stream to ask for. StreamType is the tag streams are resolved by
	Session input.SessionConfig
	// How long the worker waits for a sample before giving up
	SampleTimeout time.Duration
	// How long Start waits for a stream to show up
	ResolveTimeout time.Duration
	// How long Stop waits for the worker to exit
	JoinTimeout time.Duration
	// Window and indicator settings
	Analysis Analysis
	// Where to log, nil for nowhere
	Logger *zap.Logger
	// Told about samples, state changes and errors, may be nil
	Observer Observer
}

// NewZeroConfig returns a config for a 16 channel 250 Hz EEG stream. The
// backend must still be set.
func NewZeroConfig() Config {
	return Config{
		Session: input.SessionConfig{
			StreamType:   DefaultStreamType,
			ChannelCount: DefaultChannelCount,
			SampleRate:   DefaultSampleRate,
		},
		SampleTimeout:  DefaultSampleTimeout,
		ResolveTimeout: DefaultResolveTimeout,
		JoinTimeout:    DefaultJoinTimeout,
		Analysis:       NewAnalysis(),
		Logger:         zap.NewNop(),
	}
}

func (cfg *Config) Validate() error {
	switch {
	case cfg.Backend == nil:
		return errors.New("no backend")

	case cfg.Session.StreamType == "":
		return errors.New("no stream type")

	case cfg.Session.ChannelCount > MaxChannelCount:
		return fmt.Errorf("too many channels (%d max)", MaxChannelCount)

	case cfg.Session.ChannelCount < 1:
		return errors.New("too few channels (1 min)")

	case cfg.Session.SampleRate <= 0:
		return errors.New("sample rate must be positive")

	case cfg.SampleTimeout <= 0:
		return errors.New("sample timeout must be positive")

	case cfg.ResolveTimeout <= 0:
		return errors.New("resolve timeout must be positive")

	case cfg.JoinTimeout <= 0:
		return errors.New("join timeout must be positive")
	}

	return cfg.Analysis.Validate(cfg.Session.ChannelCount)
}
