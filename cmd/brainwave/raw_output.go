package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/noriah/brainwave"
	"github.com/pkg/errors"
)

// RawOutput prints one line per new snapshot: time, fatigue, focus and the
// latest value of every channel.
type RawOutput struct {
	w    io.Writer
	rate time.Duration
	seq  uint64
}

func NewRawOutput(w io.Writer, rate time.Duration) *RawOutput {
	return &RawOutput{w: w, rate: rate}
}

// Run polls snap until ctx ends.
func (r *RawOutput) Run(ctx context.Context, snap func() brainwave.Snapshot) error {
	ticker := time.NewTicker(r.rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := r.Write(snap()); err != nil {
			return err
		}
	}
}

// Write prints s unless it was printed already or nothing is streaming.
func (r *RawOutput) Write(s brainwave.Snapshot) error {
	if s.Seq == r.seq || s.State != brainwave.Streaming || s.Samples == 0 {
		return nil
	}

	r.seq = s.Seq

	if _, err := fmt.Fprintf(r.w, "%8.3f %6.2f", s.Timestamp, s.Metrics.FatigueLevel); err != nil {
		return errors.Wrap(err, "failed to write raw output")
	}

	if s.Metrics.FocusReady {
		fmt.Fprintf(r.w, " %8.3f", s.Metrics.FocusLevel)
	} else {
		fmt.Fprint(r.w, "        -")
	}

	for _, v := range s.Latest {
		fmt.Fprintf(r.w, " %6.3f", v)
	}

	_, err := fmt.Fprintln(r.w)
	return err
}
