package model

import (
	"time"
)

// PacketRecord holds the metadata decoded from a single capture record.
// The frame payload itself is skipped, never stored.
type PacketRecord struct {
	Timestamp     time.Time
	CaptureLength uint32
	WireLength    uint32
}

// IntervalSummary is the aggregated output for one time bucket. Rates are
// the bucket sums divided by the configured interval length in seconds;
// the raw sums are kept alongside for storage sinks that want exact
// integer counts.
type IntervalSummary struct {
	// RelativeStart is the elapsed time between the first record of the
	// capture and the first record of this bucket.
	RelativeStart time.Duration `json:"relative_start"`

	PacketCount  uint64 `json:"packet_count"`
	WireBytes    uint64 `json:"wire_bytes"`
	CaptureBytes uint64 `json:"capture_bytes"`

	PacketRate      float64 `json:"packet_rate"`
	WireByteRate    float64 `json:"wire_byte_rate"`
	CaptureByteRate float64 `json:"capture_byte_rate"`
}

// Writer consumes interval summaries one at a time, in increasing
// RelativeStart order. Implementations must not assume the full series
// is ever materialized.
type Writer interface {
	Write(summary IntervalSummary) error
	Close() error
}
