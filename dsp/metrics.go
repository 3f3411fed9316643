// Package dsp provides the biosignal indicators
//
// Fatigue comes from blink artifacts on the frontal channels of a single
// sample. Focus comes from the beta and alpha band powers of one channel
// window, estimated with Welch's method.
//
// Some notes:
//
// https://en.wikipedia.org/wiki/Welch%27s_method
// https://docs.scipy.org/doc/scipy/reference/generated/scipy.signal.welch.html
// https://raphaelvallat.com/bandpower.html
package dsp

// Metrics are the indicators derived from the current sample and window.
type Metrics struct {
	BlinkCount      int     `json:"blink_count"`
	FatigueLevel    float64 `json:"fatigue_level"`
	FatigueCritical bool    `json:"fatigue_critical"`

	FocusLevel    float64 `json:"focus_level"`
	AlphaPower    float64 `json:"alpha_power"`
	BetaPower     float64 `json:"beta_power"`
	FocusReady    bool    `json:"focus_ready"`
	FocusCritical bool    `json:"focus_critical"`

	ComputedAt float64 `json:"computed_at"` // timestamp of the source sample
}

// SetFatigue copies a fatigue result into m.
func (m *Metrics) SetFatigue(r FatigueResult) {
	m.BlinkCount = r.BlinkCount
	m.FatigueLevel = r.Level
	m.FatigueCritical = r.Critical
}

// SetFocus copies a focus result into m. critical is the level above which
// focus is flagged.
func (m *Metrics) SetFocus(r FocusResult, critical float64) {
	m.FocusLevel = r.Level
	m.AlphaPower = r.AlphaPower
	m.BetaPower = r.BetaPower
	m.FocusReady = true
	m.FocusCritical = r.Level > critical
}

// ClearFocus marks the focus values as not available.
func (m *Metrics) ClearFocus() {
	m.FocusLevel = 0
	m.AlphaPower = 0
	m.BetaPower = 0
	m.FocusReady = false
	m.FocusCritical = false
}
