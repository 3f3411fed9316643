package brainwave

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/noriah/brainwave/dsp"
	"github.com/noriah/brainwave/processor"
	"github.com/noriah/brainwave/util"
)

// Snapshot is the published view of the pipeline. A snapshot is never
// modified after it is published; use Clone to get one you can change.
type Snapshot struct {
	Session     string       // id of the streaming session, "" before the first
	Seq         uint64       // publish sequence number
	State       State        // pipeline state when published
	Channels    [][]float64  // window of each channel, oldest first
	Latest      []float64    // most recent sample
	Timestamp   float64      // timestamp of the most recent sample
	Metrics     dsp.Metrics  // indicators
	Stats       []util.Stats // running stats of each window
	Samples     uint64       // samples processed in the session
	PublishedAt time.Time    // wall time of the publish
	LastError   error        // error that ended the last session, if any
}

func newSnapshot(session string, state State, f processor.Frame, err error) Snapshot {
	return Snapshot{
		Session:   session,
		State:     state,
		Channels:  f.Channels,
		Latest:    f.Latest,
		Timestamp: f.Timestamp,
		Metrics:   f.Metrics,
		Stats:     f.Stats,
		Samples:   f.Samples,
		LastError: err,
	}
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := s

	if s.Channels != nil {
		out.Channels = make([][]float64, len(s.Channels))
		for idx, ch := range s.Channels {
			out.Channels[idx] = append([]float64(nil), ch...)
		}
	}

	if s.Latest != nil {
		out.Latest = append([]float64(nil), s.Latest...)
	}

	if s.Stats != nil {
		out.Stats = append([]util.Stats(nil), s.Stats...)
	}

	return out
}

// SnapshotPublisher hands the latest snapshot from the writer to any number
// of readers. Readers never block and never see a partly written snapshot.
type SnapshotPublisher struct {
	// serializes writers so sequence numbers follow publish order.
	wmu sync.Mutex
	seq uint64

	latest atomic.Pointer[Snapshot]
}

// NewSnapshotPublisher returns a publisher holding an empty Idle snapshot.
func NewSnapshotPublisher() *SnapshotPublisher {
	sp := &SnapshotPublisher{}
	sp.latest.Store(&Snapshot{State: Idle})
	return sp
}

// Publish stamps s with the next sequence number and the current time and
// makes it the latest snapshot. The stamped snapshot is returned.
func (sp *SnapshotPublisher) Publish(s Snapshot) Snapshot {
	sp.wmu.Lock()
	defer sp.wmu.Unlock()

	sp.seq++
	s.Seq = sp.seq
	s.PublishedAt = time.Now()

	sp.latest.Store(&s)

	return s
}

// Latest returns the most recently published snapshot.
func (sp *SnapshotPublisher) Latest() Snapshot {
	return *sp.latest.Load()
}

// Seq returns the sequence number of the latest snapshot.
func (sp *SnapshotPublisher) Seq() uint64 {
	return sp.latest.Load().Seq
}
