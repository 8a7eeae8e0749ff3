// Package aggregate folds a stream of packet records into fixed-width
// interval summaries. Buckets are aligned to the first record they
// receive, not to wall-clock boundaries, so silent gaps in the capture
// collapse instead of emitting empty buckets.
package aggregate

import (
	"errors"
	"fmt"
	"io"
	"time"

	"pcaplot/internal/core/model"
)

// ErrInvalidInterval reports a non-positive aggregation interval. It is a
// configuration error and is raised before any record is pulled.
var ErrInvalidInterval = errors.New("aggregation interval must be positive")

// RecordSource is the upstream contract: a finite pull-based sequence of
// packet records terminated by io.EOF. pcap.Reader satisfies it.
type RecordSource interface {
	Next() (model.PacketRecord, error)
}

// bucket is the single piece of mutable aggregation state. At most one
// bucket is open at any time.
type bucket struct {
	start        time.Time
	packetCount  uint64
	wireBytes    uint64
	captureBytes uint64
}

// Aggregator consumes a RecordSource and produces interval summaries,
// one pull at a time. Like its source it is finite and non-restartable.
type Aggregator struct {
	src      RecordSource
	interval time.Duration

	open         *bucket
	captureStart time.Time
	lastSeen     time.Time
	packets      uint64

	err error
}

// New returns an aggregator over src. The interval must be strictly
// positive; this is checked here, before the source is touched, so a bad
// configuration never opens the pipeline.
func New(src RecordSource, interval time.Duration) (*Aggregator, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidInterval, interval)
	}
	return &Aggregator{src: src, interval: interval}, nil
}

// Next returns the next interval summary, pulling records from the source
// until one crosses the open bucket's boundary or the source ends. The
// final partial bucket is flushed as the last summary; an empty source
// yields io.EOF with no summaries.
//
// Records are assumed non-decreasing in timestamp. An out-of-order record
// is folded into whichever bucket is currently open, even if that bucket
// does not temporally contain it. The upstream capture is trusted to be
// time-ordered; no reordering is attempted.
func (a *Aggregator) Next() (model.IntervalSummary, error) {
	if a.err != nil {
		return model.IntervalSummary{}, a.err
	}

	for {
		rec, err := a.src.Next()
		if err == io.EOF {
			a.err = io.EOF
			if a.open != nil {
				s := a.flush()
				return s, nil
			}
			return model.IntervalSummary{}, io.EOF
		}
		if err != nil {
			a.err = err
			return model.IntervalSummary{}, err
		}

		a.packets++
		a.lastSeen = rec.Timestamp

		if a.open == nil {
			if a.captureStart.IsZero() {
				a.captureStart = rec.Timestamp
			}
			a.open = &bucket{start: rec.Timestamp}
			a.open.fold(rec)
			continue
		}

		if rec.Timestamp.Sub(a.open.start) < a.interval {
			a.open.fold(rec)
			continue
		}

		// Boundary crossed: emit the open bucket and start the next one
		// at this record's own timestamp. One record flushes at most one
		// bucket regardless of how large the gap was.
		s := a.flush()
		a.open = &bucket{start: rec.Timestamp}
		a.open.fold(rec)
		return s, nil
	}
}

func (b *bucket) fold(rec model.PacketRecord) {
	b.packetCount++
	b.wireBytes += uint64(rec.WireLength)
	b.captureBytes += uint64(rec.CaptureLength)
}

func (a *Aggregator) flush() model.IntervalSummary {
	b := a.open
	a.open = nil
	secs := a.interval.Seconds()
	return model.IntervalSummary{
		RelativeStart:   b.start.Sub(a.captureStart),
		PacketCount:     b.packetCount,
		WireBytes:       b.wireBytes,
		CaptureBytes:    b.captureBytes,
		PacketRate:      float64(b.packetCount) / secs,
		WireByteRate:    float64(b.wireBytes) / secs,
		CaptureByteRate: float64(b.captureBytes) / secs,
	}
}

// Interval returns the configured bucket width.
func (a *Aggregator) Interval() time.Duration {
	return a.interval
}

// Packets returns the number of records folded so far. After exhaustion
// it equals the record count of the whole capture.
func (a *Aggregator) Packets() uint64 {
	return a.packets
}

// Span returns the elapsed time between the first and last record seen.
func (a *Aggregator) Span() time.Duration {
	if a.captureStart.IsZero() {
		return 0
	}
	return a.lastSeen.Sub(a.captureStart)
}
