package main

import (
	"time"

	"github.com/noriah/brainwave/config"
)

// flags holds the command line. Zero values leave the config file or the
// defaults in place.
type flags struct {
	configPath string

	backend      string
	device       string
	streamType   string
	channelCount int
	sampleRate   float64
	windowSize   int
	focusEvery   int
	refreshRate  time.Duration
	listen       string
	noListen     bool
	logFile      string
	logLevel     string
	headless     bool
	autoStart    bool
	raw          bool
}

// apply copies the flags that were set over cfg.
func (f *flags) apply(cfg *config.Config) {
	if f.backend != "" {
		cfg.Backend = f.backend
	}

	if f.device != "" {
		cfg.Device = f.device
	}

	if f.streamType != "" {
		cfg.StreamType = f.streamType
	}

	if f.channelCount != 0 {
		cfg.ChannelCount = f.channelCount
	}

	if f.sampleRate != 0 {
		cfg.SampleRate = f.sampleRate
	}

	if f.windowSize != 0 {
		cfg.WindowSize = f.windowSize
	}

	if f.focusEvery != 0 {
		cfg.Focus.Every = f.focusEvery
	}

	if f.refreshRate != 0 {
		cfg.RefreshRate = f.refreshRate
	}

	if f.listen != "" {
		cfg.Listen = f.listen
	}

	if f.noListen {
		cfg.Listen = ""
	}

	if f.logFile != "" {
		cfg.LogFile = f.logFile
	}

	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}

	if f.headless {
		cfg.Headless = true
	}

	if f.autoStart {
		cfg.AutoStart = true
	}
}
