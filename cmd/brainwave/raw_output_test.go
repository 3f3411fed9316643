package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/noriah/brainwave"
	"github.com/noriah/brainwave/dsp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawOutputWritesNewSnapshots(t *testing.T) {
	var buf bytes.Buffer
	r := NewRawOutput(&buf, 0)

	s := brainwave.Snapshot{
		Seq:       1,
		State:     brainwave.Streaming,
		Samples:   1,
		Timestamp: 0.004,
		Latest:    []float64{1.5, -2},
		Metrics:   dsp.Metrics{FatigueLevel: 10},
	}

	require.NoError(t, r.Write(s))
	require.NoError(t, r.Write(s))

	s.Seq = 2
	s.Metrics.FocusReady = true
	s.Metrics.FocusLevel = -3.25
	require.NoError(t, r.Write(s))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	assert.Equal(t, []string{"0.004", "10.00", "-", "1.500", "-2.000"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"0.004", "10.00", "-3.250", "1.500", "-2.000"}, strings.Fields(lines[1]))
}

func TestRawOutputSkipsIdle(t *testing.T) {
	var buf bytes.Buffer
	r := NewRawOutput(&buf, 0)

	require.NoError(t, r.Write(brainwave.Snapshot{Seq: 4, State: brainwave.Idle, Samples: 9}))
	assert.Zero(t, buf.Len())
}
