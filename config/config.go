// Package config loads the brainwave config file, YAML or TOML, and watches
// it for changes.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/noriah/brainwave"
	"github.com/noriah/brainwave/dsp"
	"github.com/noriah/brainwave/dsp/window"
	"github.com/noriah/brainwave/input"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Defaults for fields the file leaves out.
const (
	DefaultListen      = "127.0.0.1:8640"
	DefaultLogFile     = "brainwave.log"
	DefaultLogLevel    = "info"
	DefaultRefreshRate = 50 * time.Millisecond
)

// Config mirrors the config file.
type Config struct {
	// Backend is the backend name from list-backends
	Backend string `yaml:"backend" toml:"backend"`
	// Device is the device name from list-devices, empty for the default
	Device string `yaml:"device" toml:"device"`
	// StreamType is the type tag streams are resolved by
	StreamType string `yaml:"stream_type" toml:"stream_type"`
	// ChannelCount is the number of values in every sample
	ChannelCount int `yaml:"channel_count" toml:"channel_count"`
	// SampleRate is the nominal rate of the stream
	SampleRate float64 `yaml:"sample_rate" toml:"sample_rate"`
	// WindowSize is the number of values kept per channel
	WindowSize int `yaml:"window_size" toml:"window_size"`

	SampleTimeout  time.Duration `yaml:"sample_timeout" toml:"sample_timeout"`
	ResolveTimeout time.Duration `yaml:"resolve_timeout" toml:"resolve_timeout"`
	JoinTimeout    time.Duration `yaml:"join_timeout" toml:"join_timeout"`

	// RefreshRate is how often the dashboard and websocket clients update
	RefreshRate time.Duration `yaml:"refresh_rate" toml:"refresh_rate"`

	Focus   FocusConfig   `yaml:"focus" toml:"focus"`
	Fatigue FatigueConfig `yaml:"fatigue" toml:"fatigue"`

	// Listen is the HTTP address, empty to disable the HTTP server
	Listen string `yaml:"listen" toml:"listen"`
	// LogFile receives the log while the dashboard owns the terminal
	LogFile  string `yaml:"log_file" toml:"log_file"`
	LogLevel string `yaml:"log_level" toml:"log_level"`
	// Headless skips the dashboard and logs to stderr
	Headless bool `yaml:"headless" toml:"headless"`
	// AutoStart starts streaming right away
	AutoStart bool `yaml:"auto_start" toml:"auto_start"`
}

type FocusConfig struct {
	// Channel is the channel whose window is analyzed
	Channel int `yaml:"channel" toml:"channel"`
	// SegmentLength is the Welch segment length
	SegmentLength int `yaml:"segment_length" toml:"segment_length"`
	// Every is the number of samples between estimates
	Every int `yaml:"every" toml:"every"`
	// Window is the segment window name
	Window   string   `yaml:"window" toml:"window"`
	Alpha    dsp.Band `yaml:"alpha" toml:"alpha"`
	Beta     dsp.Band `yaml:"beta" toml:"beta"`
	Critical float64  `yaml:"critical" toml:"critical"`
}

type FatigueConfig struct {
	// Channels pick up blinks
	Channels       []int   `yaml:"channels" toml:"channels"`
	BlinkThreshold float64 `yaml:"blink_threshold" toml:"blink_threshold"`
	Scale          float64 `yaml:"scale" toml:"scale"`
	Critical       float64 `yaml:"critical" toml:"critical"`
}

// NewZeroConfig returns the defaults: a 16 channel 250 Hz EEG stream from
// the synthetic backend.
func NewZeroConfig() Config {
	return Config{
		Backend:        "synthetic",
		StreamType:     brainwave.DefaultStreamType,
		ChannelCount:   brainwave.DefaultChannelCount,
		SampleRate:     brainwave.DefaultSampleRate,
		WindowSize:     brainwave.DefaultWindowSize,
		SampleTimeout:  brainwave.DefaultSampleTimeout,
		ResolveTimeout: brainwave.DefaultResolveTimeout,
		JoinTimeout:    brainwave.DefaultJoinTimeout,
		RefreshRate:    DefaultRefreshRate,
		Focus: FocusConfig{
			Channel:       0,
			SegmentLength: dsp.DefaultSegmentLength,
			Every:         1,
			Window:        "hann",
			Alpha:         dsp.AlphaBand,
			Beta:          dsp.BetaBand,
			Critical:      dsp.DefaultCriticalLevel,
		},
		Fatigue: FatigueConfig{
			Channels:       []int{0, 1},
			BlinkThreshold: dsp.DefaultBlinkThreshold,
			Scale:          dsp.DefaultFatigueScale,
			Critical:       dsp.DefaultCriticalLevel,
		},
		Listen:   DefaultListen,
		LogFile:  DefaultLogFile,
		LogLevel: DefaultLogLevel,
	}
}

// Load reads path over the defaults and checks the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config")
	}

	cfg := NewZeroConfig()
	if err := unmarshal(path, data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}

	if err := cfg.Sanitize(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}

	return &cfg, nil
}

// unmarshal decodes by file extension. Anything but .toml is YAML.
func unmarshal(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Unmarshal(data, cfg)
	}

	return yaml.Unmarshal(data, cfg)
}

// Sanitize cleans things up and checks what is left.
func (cfg *Config) Sanitize() error {
	if cfg.RefreshRate <= 0 {
		cfg.RefreshRate = DefaultRefreshRate
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	if _, err := cfg.Level(); err != nil {
		return err
	}

	if cfg.Backend == "" {
		cfg.Backend = input.DefaultBackend()
	}

	switch {
	case cfg.Backend == "":
		return errors.New("no backend")

	case cfg.StreamType == "":
		return errors.New("no stream type")

	case cfg.ChannelCount < 1:
		return errors.New("too few channels (1 min)")

	case cfg.ChannelCount > brainwave.MaxChannelCount:
		return errors.Errorf("too many channels (%d max)", brainwave.MaxChannelCount)

	case cfg.SampleRate <= 0:
		return errors.New("sample rate must be positive")

	case cfg.SampleTimeout <= 0, cfg.ResolveTimeout <= 0, cfg.JoinTimeout <= 0:
		return errors.New("timeouts must be positive")
	}

	a, err := cfg.Analysis()
	if err != nil {
		return err
	}

	return a.Validate(cfg.ChannelCount)
}

// Level is the parsed log level.
func (cfg *Config) Level() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return lvl, errors.Wrap(err, "bad log level")
	}
	return lvl, nil
}

// Analysis converts the window and indicator settings.
func (cfg *Config) Analysis() (brainwave.Analysis, error) {
	fn, err := window.Lookup(cfg.Focus.Window)
	if err != nil {
		return brainwave.Analysis{}, err
	}

	return brainwave.Analysis{
		WindowSize:    cfg.WindowSize,
		FocusEvery:    cfg.Focus.Every,
		FocusCritical: cfg.Focus.Critical,
		Fatigue: dsp.FatigueConfig{
			Channels:       append([]int(nil), cfg.Fatigue.Channels...),
			BlinkThreshold: cfg.Fatigue.BlinkThreshold,
			Scale:          cfg.Fatigue.Scale,
			Critical:       cfg.Fatigue.Critical,
		},
		Focus: dsp.FocusConfig{
			Channel:       cfg.Focus.Channel,
			SampleRate:    cfg.SampleRate,
			SegmentLength: cfg.Focus.SegmentLength,
			Alpha:         cfg.Focus.Alpha,
			Beta:          cfg.Focus.Beta,
			Window:        fn,
		},
	}, nil
}
