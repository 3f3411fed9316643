package server

import (
	"time"

	"github.com/noriah/brainwave"
	"github.com/noriah/brainwave/dsp"
	"github.com/noriah/brainwave/graphic"
	"github.com/noriah/brainwave/util"
)

// SnapshotResponse is the JSON form of a snapshot.
type SnapshotResponse struct {
	Session     string          `json:"session"`
	Seq         uint64          `json:"seq"`
	State       brainwave.State `json:"state"`
	Timestamp   float64         `json:"timestamp"`
	Samples     uint64          `json:"samples"`
	Latest      []float64       `json:"latest"`
	Channels    [][]float64     `json:"channels,omitempty"`
	Stats       []util.Stats    `json:"stats"`
	Metrics     dsp.Metrics     `json:"metrics"`
	Bars        BarsResponse    `json:"bars"`
	PublishedAt time.Time       `json:"published_at"`
	Error       string          `json:"error,omitempty"`
	ErrorKind   string          `json:"error_kind,omitempty"`
}

// BarsResponse holds the dashboard bar heights of the two indicators.
type BarsResponse struct {
	Fatigue float64 `json:"fatigue"`
	Focus   float64 `json:"focus"`
}

// StateResponse is returned by the control endpoints.
type StateResponse struct {
	State     brainwave.State `json:"state"`
	Session   string          `json:"session"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// BuildSnapshot converts s. Channel windows are only included when windows
// is set.
func BuildSnapshot(s brainwave.Snapshot, windows bool) SnapshotResponse {
	resp := SnapshotResponse{
		Session:     s.Session,
		Seq:         s.Seq,
		State:       s.State,
		Timestamp:   s.Timestamp,
		Samples:     s.Samples,
		Latest:      s.Latest,
		Stats:       s.Stats,
		Metrics:     s.Metrics,
		PublishedAt: s.PublishedAt,
		Bars: BarsResponse{
			Fatigue: graphic.BarHeight(s.Metrics.FatigueLevel),
			Focus:   graphic.BarHeight(s.Metrics.FocusLevel),
		},
	}

	if windows {
		resp.Channels = s.Channels
	}

	if resp.Latest == nil {
		resp.Latest = []float64{}
	}

	if resp.Stats == nil {
		resp.Stats = []util.Stats{}
	}

	if s.LastError != nil {
		resp.Error = s.LastError.Error()
		resp.ErrorKind = brainwave.ErrorKind(s.LastError)
	}

	return resp
}
