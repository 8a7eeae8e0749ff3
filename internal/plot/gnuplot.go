// Package plot renders interval summaries as a self-executing gnuplot
// script: a data heredoc followed by plot commands. The script plots
// packet rate against one y axis and wire/captured bit rates against the
// other.
package plot

import (
	"fmt"
	"io"
	"time"

	"pcaplot/internal/core/model"
)

// Meta describes the analyzed capture for the script's comment block and
// plot title.
type Meta struct {
	InputName string
	InputSize int64

	// Title overrides the generated plot title when non-empty.
	Title string
}

// Writer streams summaries into a gnuplot script. Rows are written as
// they arrive; nothing is buffered, so the series may be arbitrarily
// long. Implements model.Writer.
type Writer struct {
	w    io.Writer
	meta Meta
	err  error
}

// NewWriter writes the script preamble and the opening of the data
// heredoc to w and returns a Writer ready to stream rows.
func NewWriter(w io.Writer, meta Meta) (*Writer, error) {
	pw := &Writer{w: w, meta: meta}

	_, err := fmt.Fprintf(w,
		"#!/usr/bin/env -S gnuplot -p\n#\n"+
			"# Generated with pcaplot\n"+
			"# Input file: %s\n"+
			"# Date: %s\n\n"+
			"$data << EOD\n",
		meta.InputName, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to write script header: %w", err)
	}
	return pw, nil
}

// Write appends one data row: elapsed seconds since the start of the
// capture, then packets/s, wire bytes/s and captured bytes/s.
func (pw *Writer) Write(s model.IntervalSummary) error {
	if pw.err != nil {
		return pw.err
	}
	_, err := fmt.Fprintf(pw.w, "%g %.2f %.2f %.2f\n",
		s.RelativeStart.Seconds(), s.PacketRate, s.WireByteRate, s.CaptureByteRate)
	if err != nil {
		pw.err = fmt.Errorf("failed to write data row: %w", err)
	}
	return pw.err
}

// Finish closes the heredoc and writes the plot commands. span is the
// elapsed time between the first and last record of the capture, shown in
// the plot title alongside the input size.
func (pw *Writer) Finish(span time.Duration) error {
	if pw.err != nil {
		return pw.err
	}
	title := pw.meta.Title
	if title == "" {
		title = fmt.Sprintf("Packet/data rate plot for pcap file %q (%s / %s)",
			pw.meta.InputName, humanBytes(pw.meta.InputSize), span.Round(time.Millisecond))
	}
	_, err := fmt.Fprintf(pw.w,
		"EOD\n\n"+
			"set title '%s'\n"+
			"set xlabel 'Time'\n"+
			"set ylabel 'Packet rate'\n"+
			"set y2label 'Data rate'\n"+
			"set format y '%%.0s%%cpps'\n"+
			"set format y2 '%%.0s%%cbps'\n"+
			"set ytics nomirror\n"+
			"set y2tics nomirror\n"+
			"set xtics time format '%%tH:%%tM:%%tS'\n"+
			"set xtics rotate by -45\n"+
			"plot    $data u 1:2 with lines axis x1y1 title 'Packets/s', \\\n"+
			"        $data u 1:($3*8) with lines axis x1y2 title 'Bits/s on the wire', \\\n"+
			"        $data u 1:($4*8) with points axis x1y2 title 'Bits/s captured'\n"+
			"pause mouse close\n",
		title)
	if err != nil {
		pw.err = fmt.Errorf("failed to write script footer: %w", err)
	}
	return pw.err
}

// Close satisfies model.Writer. The footer carries run metadata, so it is
// written by Finish rather than here.
func (pw *Writer) Close() error {
	return pw.err
}

// humanBytes formats a byte count with a binary-prefix unit.
func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
