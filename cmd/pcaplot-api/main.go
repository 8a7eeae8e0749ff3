package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"pcaplot/internal/config"
	"pcaplot/internal/engine/aggregate"
	"pcaplot/internal/pipeline"
	"pcaplot/internal/plot"
	"pcaplot/pkg/pcap"
)

func main() {
	configPath := flag.String("config", "", "Optional YAML config file")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	if *listenAddr != "" {
		cfg.API.ListenAddr = *listenAddr
	}

	handler := &APIHandler{cfg: cfg}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/analyze", handler.analyzeHandler).Methods("POST")
	r.HandleFunc("/api/v1/plot", handler.plotHandler).Methods("POST")

	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Printf("API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("API server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("API server exited.")
}

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	cfg *config.Config
}

// analyzeRequest asks for one capture file to be aggregated.
type analyzeRequest struct {
	Path     string `json:"path"`
	Interval string `json:"interval"`
}

// analyzeResponse carries the full summary series plus run statistics.
type analyzeResponse struct {
	Path       string        `json:"path"`
	IntervalMs int64         `json:"interval_ms"`
	Packets    uint64        `json:"packets"`
	SpanMs     int64         `json:"span_ms"`
	Summaries  []summaryJSON `json:"summaries"`
}

// summaryJSON flattens IntervalSummary with the relative start in
// milliseconds, which is friendlier to JSON consumers than Go duration
// encoding.
type summaryJSON struct {
	RelativeStartMs int64   `json:"relative_start_ms"`
	PacketCount     uint64  `json:"packet_count"`
	WireBytes       uint64  `json:"wire_bytes"`
	CaptureBytes    uint64  `json:"capture_bytes"`
	PacketRate      float64 `json:"packet_rate"`
	WireByteRate    float64 `json:"wire_byte_rate"`
	CaptureByteRate float64 `json:"capture_byte_rate"`
}

// analyzeHandler aggregates a capture and returns the series as JSON.
func (h *APIHandler) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	req, interval, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	reader, err := pcap.Open(req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	defer reader.Close()

	agg, err := aggregate.New(reader, interval)
	if err != nil {
		writeError(w, err)
		return
	}

	summaries, err := pipeline.Collect(agg)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := analyzeResponse{
		Path:       req.Path,
		IntervalMs: interval.Milliseconds(),
		Packets:    agg.Packets(),
		SpanMs:     agg.Span().Milliseconds(),
		Summaries:  make([]summaryJSON, 0, len(summaries)),
	}
	for _, s := range summaries {
		resp.Summaries = append(resp.Summaries, summaryJSON{
			RelativeStartMs: s.RelativeStart.Milliseconds(),
			PacketCount:     s.PacketCount,
			WireBytes:       s.WireBytes,
			CaptureBytes:    s.CaptureBytes,
			PacketRate:      s.PacketRate,
			WireByteRate:    s.WireByteRate,
			CaptureByteRate: s.CaptureByteRate,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// plotHandler aggregates a capture and returns the gnuplot script.
func (h *APIHandler) plotHandler(w http.ResponseWriter, r *http.Request) {
	req, interval, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	reader, err := pcap.Open(req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	defer reader.Close()

	stat, err := os.Stat(req.Path)
	if err != nil {
		writeError(w, err)
		return
	}

	agg, err := aggregate.New(reader, interval)
	if err != nil {
		writeError(w, err)
		return
	}

	// The script footer needs the capture span, so the body is assembled
	// in memory before the status code is committed.
	var buf bytes.Buffer
	plotter, err := plot.NewWriter(&buf, plot.Meta{
		InputName: filepath.Base(req.Path),
		InputSize: stat.Size(),
		Title:     h.cfg.Plot.Title,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if err := pipeline.Run(agg, plotter); err != nil {
		writeError(w, err)
		return
	}
	if err := plotter.Finish(agg.Span()); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// decodeRequest parses the common request body and resolves the
// interval, falling back to the configured default.
func (h *APIHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (analyzeRequest, time.Duration, bool) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("failed to decode request: %v", err), http.StatusBadRequest)
		return req, 0, false
	}
	if req.Path == "" {
		http.Error(w, "missing 'path'", http.StatusBadRequest)
		return req, 0, false
	}

	intervalCfg := *h.cfg
	if req.Interval != "" {
		intervalCfg.Interval = req.Interval
	}
	interval, err := intervalCfg.ParseInterval()
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid interval: %v", err), http.StatusBadRequest)
		return req, 0, false
	}

	return req, interval, true
}

// writeError maps the error taxonomy onto HTTP status codes so clients
// can tell where processing stopped.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pcap.ErrUnsupportedFormat):
		http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
	case errors.Is(err, pcap.ErrCorruptRecord):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, aggregate.ErrInvalidInterval):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, os.ErrNotExist):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
