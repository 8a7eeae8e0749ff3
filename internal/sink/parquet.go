package sink

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"pcaplot/internal/config"
	"pcaplot/internal/core/model"
)

// SummaryRow is the Parquet representation of one interval summary.
type SummaryRow struct {
	Source          string  `parquet:"source,zstd"`
	RelativeStartMs int64   `parquet:"relative_start_ms"`
	PacketCount     uint64  `parquet:"packet_count"`
	WireBytes       uint64  `parquet:"wire_bytes"`
	CaptureBytes    uint64  `parquet:"capture_bytes"`
	PacketRate      float64 `parquet:"packet_rate"`
	WireByteRate    float64 `parquet:"wire_byte_rate"`
	CaptureByteRate float64 `parquet:"capture_byte_rate"`
}

// ParquetWriter streams interval summaries into a Parquet file.
type ParquetWriter struct {
	file   *os.File
	writer *parquet.GenericWriter[SummaryRow]
	source string
}

// NewParquetWriter creates the output file and a writer with the
// configured compression codec (zstd when unset or unrecognized).
func NewParquetWriter(cfg config.ParquetConfig, source string) (*ParquetWriter, error) {
	f, err := os.Create(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet file '%s': %w", cfg.Path, err)
	}

	w := parquet.NewGenericWriter[SummaryRow](f,
		parquet.Compression(codecFor(cfg.Compression)),
	)

	return &ParquetWriter{file: f, writer: w, source: source}, nil
}

func codecFor(name string) compress.Codec {
	switch name {
	case "snappy":
		return &parquet.Snappy
	case "gzip":
		return &parquet.Gzip
	case "lz4":
		return &parquet.Lz4Raw
	case "none":
		return &parquet.Uncompressed
	default:
		return &parquet.Zstd
	}
}

// Write appends one summary row.
func (w *ParquetWriter) Write(s model.IntervalSummary) error {
	_, err := w.writer.Write([]SummaryRow{{
		Source:          w.source,
		RelativeStartMs: s.RelativeStart.Milliseconds(),
		PacketCount:     s.PacketCount,
		WireBytes:       s.WireBytes,
		CaptureBytes:    s.CaptureBytes,
		PacketRate:      s.PacketRate,
		WireByteRate:    s.WireByteRate,
		CaptureByteRate: s.CaptureByteRate,
	}})
	if err != nil {
		return fmt.Errorf("failed to write parquet row: %w", err)
	}
	return nil
}

// Close flushes the Parquet footer and closes the file.
func (w *ParquetWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return w.file.Close()
}
