// Package metrics exports the pipeline's activity as Prometheus metrics.
package metrics

import (
	"sync"

	"github.com/noriah/brainwave"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "brainwave"

// Collector implements brainwave.Observer.
type Collector struct {
	// Gauges
	streaming    prometheus.Gauge
	fatigueLevel prometheus.Gauge
	focusLevel   prometheus.Gauge
	alphaPower   prometheus.Gauge
	betaPower    prometheus.Gauge

	// Counters
	samples  prometheus.Counter
	blinks   prometheus.Counter
	sessions prometheus.Counter
	errors   *prometheus.CounterVec

	// Histograms
	interval prometheus.Histogram

	mu        sync.Mutex
	session   string
	lastStamp float64
}

// NewCollector registers the pipeline metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	c := &Collector{}

	c.streaming = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "streaming",
		Help:      "1 while a session is streaming",
	})

	c.fatigueLevel = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "fatigue_level",
		Help:      "Fatigue level of the latest sample (0 to 100)",
	})

	c.focusLevel = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "focus_level",
		Help:      "Beta minus alpha band power of the latest window",
	})

	c.alphaPower = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "alpha_power",
		Help:      "Alpha band power of the latest window",
	})

	c.betaPower = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "beta_power",
		Help:      "Beta band power of the latest window",
	})

	c.samples = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "samples_total",
		Help:      "Samples processed",
	})

	c.blinks = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blinks_total",
		Help:      "Blink channel readings above the blink threshold",
	})

	c.sessions = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Streaming sessions started",
	})

	c.errors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Errors by kind",
	}, []string{"kind"})

	c.interval = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sample_interval_seconds",
		Help:      "Time between consecutive sample timestamps",
		Buckets:   []float64{0.001, 0.002, 0.004, 0.008, 0.016, 0.032, 0.064, 0.25, 1},
	})

	return c
}

// SampleProcessed records one processed sample.
func (c *Collector) SampleProcessed(s brainwave.Snapshot) {
	c.samples.Inc()
	c.blinks.Add(float64(s.Metrics.BlinkCount))
	c.fatigueLevel.Set(s.Metrics.FatigueLevel)

	if s.Metrics.FocusReady {
		c.focusLevel.Set(s.Metrics.FocusLevel)
		c.alphaPower.Set(s.Metrics.AlphaPower)
		c.betaPower.Set(s.Metrics.BetaPower)
	}

	c.mu.Lock()
	if s.Session == c.session && s.Samples > 1 {
		c.interval.Observe(s.Timestamp - c.lastStamp)
	}
	c.session = s.Session
	c.lastStamp = s.Timestamp
	c.mu.Unlock()
}

// StateChanged records a state transition.
func (c *Collector) StateChanged(state brainwave.State) {
	if state == brainwave.Streaming {
		c.streaming.Set(1)
		c.sessions.Inc()
		return
	}

	c.streaming.Set(0)
}

// ErrorRaised counts err by its kind.
func (c *Collector) ErrorRaised(err error) {
	if err == nil {
		return
	}

	c.errors.WithLabelValues(brainwave.ErrorKind(err)).Inc()
}
