package metrics

import (
	"strings"
	"testing"

	"github.com/noriah/brainwave"
	"github.com/noriah/brainwave/dsp"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ brainwave.Observer = (*Collector)(nil)

func TestCollectorCountsSamples(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.StateChanged(brainwave.Streaming)

	for n := 1; n <= 3; n++ {
		c.SampleProcessed(brainwave.Snapshot{
			Session:   "a",
			Samples:   uint64(n),
			Timestamp: float64(n) * 0.5,
			Metrics: dsp.Metrics{
				BlinkCount:   2,
				FatigueLevel: 20,
				FocusReady:   true,
				FocusLevel:   -5,
				AlphaPower:   7,
				BetaPower:    2,
			},
		})
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(c.streaming))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sessions))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.samples))
	assert.Equal(t, 6.0, testutil.ToFloat64(c.blinks))
	assert.Equal(t, 20.0, testutil.ToFloat64(c.fatigueLevel))
	assert.Equal(t, -5.0, testutil.ToFloat64(c.focusLevel))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.alphaPower))

	expected := `
# HELP brainwave_sample_interval_seconds Time between consecutive sample timestamps
# TYPE brainwave_sample_interval_seconds histogram
brainwave_sample_interval_seconds_bucket{le="0.001"} 0
brainwave_sample_interval_seconds_bucket{le="0.002"} 0
brainwave_sample_interval_seconds_bucket{le="0.004"} 0
brainwave_sample_interval_seconds_bucket{le="0.008"} 0
brainwave_sample_interval_seconds_bucket{le="0.016"} 0
brainwave_sample_interval_seconds_bucket{le="0.032"} 0
brainwave_sample_interval_seconds_bucket{le="0.064"} 0
brainwave_sample_interval_seconds_bucket{le="0.25"} 0
brainwave_sample_interval_seconds_bucket{le="1"} 2
brainwave_sample_interval_seconds_bucket{le="+Inf"} 2
brainwave_sample_interval_seconds_sum 1
brainwave_sample_interval_seconds_count 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"brainwave_sample_interval_seconds"))

	c.StateChanged(brainwave.Idle)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.streaming))
}

func TestCollectorErrorsByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ErrorRaised(errors.Wrap(brainwave.ErrSampleTimeout, "2s"))
	c.ErrorRaised(brainwave.ErrSampleTimeout)
	c.ErrorRaised(&brainwave.ValidationError{Got: 3, Want: 16})
	c.ErrorRaised(nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.errors.WithLabelValues("sample_timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.errors.WithLabelValues("validation")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.errors))
}

func TestCollectorHoldsFocusUntilReady(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.SampleProcessed(brainwave.Snapshot{Metrics: dsp.Metrics{FocusReady: true, FocusLevel: 4}})
	c.SampleProcessed(brainwave.Snapshot{Metrics: dsp.Metrics{FocusReady: false}})

	assert.Equal(t, 4.0, testutil.ToFloat64(c.focusLevel))
}
