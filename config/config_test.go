package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/noriah/brainwave/dsp"
	_ "github.com/noriah/brainwave/input/synthetic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "brainwave.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValid(t *testing.T) {
	path := writeConfig(t, `
backend: cyton
device: /dev/ttyUSB0
channel_count: 16
sample_rate: 125
window_size: 500
sample_timeout: 3s
refresh_rate: 100ms
focus:
  channel: 2
  segment_length: 128
  every: 5
  window: hamming
  alpha: {lo: 8, hi: 13}
fatigue:
  channels: [0, 1, 2]
  blink_threshold: 800
listen: ""
headless: true
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "cyton", cfg.Backend)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Device)
	assert.Equal(t, 125.0, cfg.SampleRate)
	assert.Equal(t, 500, cfg.WindowSize)
	assert.Equal(t, 3*time.Second, cfg.SampleTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.RefreshRate)
	assert.Equal(t, dsp.Band{Lo: 8, Hi: 13}, cfg.Focus.Alpha)
	assert.Equal(t, dsp.BetaBand, cfg.Focus.Beta)
	assert.Equal(t, []int{0, 1, 2}, cfg.Fatigue.Channels)
	assert.Empty(t, cfg.Listen)
	assert.True(t, cfg.Headless)

	lvl, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lvl)

	a, err := cfg.Analysis()
	require.NoError(t, err)
	assert.Equal(t, 500, a.WindowSize)
	assert.Equal(t, 5, a.FocusEvery)
	assert.Equal(t, 2, a.Focus.Channel)
	assert.Equal(t, 125.0, a.Focus.SampleRate)
	assert.Equal(t, 128, a.Focus.SegmentLength)
	assert.Equal(t, 800.0, a.Fatigue.BlinkThreshold)
	assert.Equal(t, dsp.DefaultFatigueScale, a.Fatigue.Scale)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "backend: synthetic\n"))
	require.NoError(t, err)

	def := NewZeroConfig()
	assert.Equal(t, def, *cfg)
	assert.Equal(t, "EEG", cfg.StreamType)
	assert.Equal(t, 16, cfg.ChannelCount)
	assert.Equal(t, 250, cfg.WindowSize)
	assert.Equal(t, DefaultListen, cfg.Listen)
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]string{
		"bad yaml":        "backend: [",
		"focus channel":   "focus:\n  channel: 16\n",
		"blink channel":   "fatigue:\n  channels: [0, 20]\n",
		"window function": "focus:\n  window: blackman\n",
		"channels":        "channel_count: 0\n",
		"timeout":         "join_timeout: 0s\n",
		"log level":       "log_level: loud\n",
		"empty band":      "focus:\n  beta: {lo: 30, hi: 13}\n",
	}

	for name, body := range cases {
		_, err := Load(writeConfig(t, body))
		assert.Error(t, err, name)
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSanitizeFillsRefreshRate(t *testing.T) {
	cfg := NewZeroConfig()
	cfg.RefreshRate = 0
	cfg.LogLevel = ""

	require.NoError(t, cfg.Sanitize())
	assert.Equal(t, DefaultRefreshRate, cfg.RefreshRate)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
}

func TestSanitizeDefaultBackend(t *testing.T) {
	cfg := NewZeroConfig()
	cfg.Backend = ""

	require.NoError(t, cfg.Sanitize())
	assert.Equal(t, "synthetic", cfg.Backend)
}

func TestWatchReloads(t *testing.T) {
	path := writeConfig(t, "window_size: 250\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)

	go func() {
		done <- Watch(ctx, path, func(cfg *Config) { changes <- cfg }, zap.NewNop())
	}()

	// let the watcher register the file.
	time.Sleep(50 * time.Millisecond)

	// a broken file is skipped.
	require.NoError(t, os.WriteFile(path, []byte("window_size: -1\n"), 0o644))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("window_size: 100\n"), 0o644))

	timeout := time.After(2 * time.Second)
	for {
		select {
		case cfg := <-changes:
			require.Greater(t, cfg.WindowSize, 0)
			if cfg.WindowSize == 100 {
				cancel()
				assert.NoError(t, <-done)
				return
			}
		case <-timeout:
			t.Fatal("no reload")
		}
	}
}

func TestWatchMissingFile(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), func(*Config) {}, zap.NewNop())
	assert.Error(t, err)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brainwave.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend = "cyton"
sample_rate = 125.0
join_timeout = "3s"
headless = true

[focus]
every = 10
alpha = { lo = 7.5, hi = 12.5 }

[fatigue]
channels = [3]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "cyton", cfg.Backend)
	assert.Equal(t, 125.0, cfg.SampleRate)
	assert.Equal(t, 3*time.Second, cfg.JoinTimeout)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 10, cfg.Focus.Every)
	assert.Equal(t, dsp.Band{Lo: 7.5, Hi: 12.5}, cfg.Focus.Alpha)
	assert.Equal(t, dsp.BetaBand, cfg.Focus.Beta)
	assert.Equal(t, []int{3}, cfg.Fatigue.Channels)
	assert.Equal(t, 16, cfg.ChannelCount)
}
