// Package pipeline drives the reader -> aggregator -> writers chain. The
// whole pipeline is a sequential pull loop: the aggregator pulls records
// one at a time, and each emitted summary is handed to every writer
// before the next one is produced, so peak memory stays independent of
// the capture size.
package pipeline

import (
	"fmt"
	"io"

	"pcaplot/internal/core/model"
	"pcaplot/internal/engine/aggregate"
)

// Run pulls the aggregator to exhaustion, fanning each summary out to the
// writers in order. The first error from the aggregator or any writer
// aborts the run; writers are not closed here, that stays with the
// caller.
func Run(agg *aggregate.Aggregator, writers ...model.Writer) error {
	for {
		s, err := agg.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		for _, w := range writers {
			if err := w.Write(s); err != nil {
				return fmt.Errorf("failed to write summary: %w", err)
			}
		}
	}
}

// Collect materializes the full summary series. Bucket counts are small
// relative to record counts, so this is acceptable for consumers that
// need the whole series at once, such as the HTTP API.
func Collect(agg *aggregate.Aggregator) ([]model.IntervalSummary, error) {
	var out []model.IntervalSummary
	for {
		s, err := agg.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
}
