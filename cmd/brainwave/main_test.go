package main

import (
	"testing"
	"time"

	"github.com/noriah/brainwave/config"
	"github.com/stretchr/testify/assert"
)

func TestFlagsOverrideConfig(t *testing.T) {
	cfg := config.NewZeroConfig()
	cfg.Backend = "cyton"

	f := flags{
		device:      "/dev/ttyUSB1",
		windowSize:  500,
		refreshRate: 100 * time.Millisecond,
		noListen:    true,
		headless:    true,
	}
	f.apply(&cfg)

	assert.Equal(t, "cyton", cfg.Backend)
	assert.Equal(t, "/dev/ttyUSB1", cfg.Device)
	assert.Equal(t, 500, cfg.WindowSize)
	assert.Equal(t, 100*time.Millisecond, cfg.RefreshRate)
	assert.Empty(t, cfg.Listen)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 16, cfg.ChannelCount)
	assert.NoError(t, cfg.Sanitize())
}
