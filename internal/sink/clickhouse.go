// Package sink provides optional destinations for interval summaries
// beyond the gnuplot script: ClickHouse, Parquet files and NATS. Every
// sink implements model.Writer and buffers at most what its backend
// requires for one batch.
package sink

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"pcaplot/internal/config"
	"pcaplot/internal/core/model"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS interval_rates (
    Source          String,
    AnalyzedAt      DateTime,
    RelativeStartMs Int64,
    PacketCount     UInt64,
    WireBytes       UInt64,
    CaptureBytes    UInt64,
    PacketRate      Float64,
    WireByteRate    Float64,
    CaptureByteRate Float64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(AnalyzedAt)
ORDER BY (Source, AnalyzedAt, RelativeStartMs);
`

// ClickHouseWriter batches interval summaries into the interval_rates
// table. Rows are appended as summaries arrive and sent once on Close.
type ClickHouseWriter struct {
	conn       driver.Conn
	batch      driver.Batch
	source     string
	analyzedAt time.Time
	rows       int
}

// NewClickHouseWriter connects to ClickHouse, ensures the target table
// exists and prepares an insert batch. source labels the rows with the
// capture they came from.
func NewClickHouseWriter(cfg config.ClickHouseConfig, source string) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	batch, err := conn.PrepareBatch(context.Background(), "INSERT INTO interval_rates")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare batch: %w", err)
	}

	return &ClickHouseWriter{
		conn:       conn,
		batch:      batch,
		source:     source,
		analyzedAt: time.Now().UTC(),
	}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: false,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

// Write appends one summary row to the pending batch.
func (w *ClickHouseWriter) Write(s model.IntervalSummary) error {
	err := w.batch.Append(
		w.source,
		w.analyzedAt,
		s.RelativeStart.Milliseconds(),
		s.PacketCount,
		s.WireBytes,
		s.CaptureBytes,
		s.PacketRate,
		s.WireByteRate,
		s.CaptureByteRate,
	)
	if err != nil {
		return fmt.Errorf("failed to append summary to batch: %w", err)
	}
	w.rows++
	return nil
}

// Close sends the batch and closes the connection.
func (w *ClickHouseWriter) Close() error {
	defer w.conn.Close()

	if w.rows == 0 {
		return nil // Nothing to write
	}
	if err := w.batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	log.Printf("Wrote %d interval summaries to ClickHouse for '%s'", w.rows, w.source)
	return nil
}
