package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"pcaplot/internal/config"
	"pcaplot/internal/core/model"
	"pcaplot/internal/engine/aggregate"
	"pcaplot/internal/pipeline"
	"pcaplot/internal/plot"
	"pcaplot/internal/sink"
	"pcaplot/pkg/pcap"
)

// Exit codes, one per error class, so callers can tell where processing
// stopped.
const (
	exitFailure       = 1
	exitUnsupported   = 2
	exitCorrupt       = 3
	exitInvalidConfig = 4
)

func main() {
	inputPath := flag.String("r", "", "Input capture file (classic pcap)")
	outputPath := flag.String("o", "", "Output gnuplot script path")
	intervalFlag := flag.String("i", "", "Reporting interval, e.g. 500ms, 1s, 1m (default from config, 1s)")
	configPath := flag.String("config", "", "Optional YAML config file")
	flag.Parse()

	if *inputPath == "" || *outputPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: pcaplot -r <capture.pcap> -o <plot.gp> [-i <interval>] [-config <config.yaml>]")
		os.Exit(exitFailure)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Printf("Failed to load config: %v", err)
			os.Exit(exitInvalidConfig)
		}
	}
	if *intervalFlag != "" {
		cfg.Interval = *intervalFlag
	}

	interval, err := cfg.ParseInterval()
	if err != nil {
		log.Printf("Invalid interval: %v", err)
		os.Exit(exitInvalidConfig)
	}

	if err := run(cfg, *inputPath, *outputPath, interval); err != nil {
		log.Printf("Analysis failed: %v", err)
		switch {
		case errors.Is(err, pcap.ErrUnsupportedFormat):
			os.Exit(exitUnsupported)
		case errors.Is(err, pcap.ErrCorruptRecord):
			os.Exit(exitCorrupt)
		case errors.Is(err, aggregate.ErrInvalidInterval):
			os.Exit(exitInvalidConfig)
		}
		os.Exit(exitFailure)
	}
}

func run(cfg *config.Config, inputPath, outputPath string, interval time.Duration) error {
	reader, err := pcap.Open(inputPath)
	if err != nil {
		return err
	}
	defer reader.Close()

	stat, err := os.Stat(inputPath)
	if err != nil {
		return err
	}
	log.Printf("Reading '%s' (%s link type, %s timestamps, snaplen %d), interval %s",
		inputPath, reader.LinkType(), reader.Resolution(), reader.SnapLen(), interval)

	agg, err := aggregate.New(reader, interval)
	if err != nil {
		return err
	}

	// The script is assembled in a temp file and renamed into place only
	// on success, so a failed run never leaves a truncated plot behind.
	tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".pcaplot-*.gp")
	if err != nil {
		return err
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	plotter, err := plot.NewWriter(tmp, plot.Meta{
		InputName: filepath.Base(inputPath),
		InputSize: stat.Size(),
		Title:     cfg.Plot.Title,
	})
	if err != nil {
		return err
	}

	writers, err := openSinks(cfg, filepath.Base(inputPath))
	if err != nil {
		return err
	}

	if err := pipeline.Run(agg, append([]model.Writer{plotter}, writers...)...); err != nil {
		// Batched sinks are deliberately not closed here: a failed run
		// must not flush partial output anywhere.
		return err
	}
	if err := plotter.Finish(agg.Span()); err != nil {
		return err
	}
	for _, w := range writers {
		if err := w.Close(); err != nil {
			return fmt.Errorf("failed to finalize sink: %w", err)
		}
	}

	if err := tmp.Chmod(0755); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), outputPath); err != nil {
		return err
	}

	log.Printf("Wrote %s: %d packets over %s", outputPath, agg.Packets(), agg.Span().Round(time.Millisecond))
	return nil
}

// openSinks builds the enabled optional sinks.
func openSinks(cfg *config.Config, source string) ([]model.Writer, error) {
	var writers []model.Writer

	if cfg.Sinks.ClickHouse.Enabled {
		w, err := sink.NewClickHouseWriter(cfg.Sinks.ClickHouse, source)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	if cfg.Sinks.Parquet.Enabled {
		w, err := sink.NewParquetWriter(cfg.Sinks.Parquet, source)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	if cfg.Sinks.NATS.Enabled {
		w, err := sink.NewNATSPublisher(cfg.Sinks.NATS, source)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}

	return writers, nil
}
