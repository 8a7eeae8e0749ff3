// Package pcap implements a streaming reader for the classic libpcap
// capture file format. It decodes record headers only; frame payloads are
// skipped without being buffered, so arbitrarily large captures are read
// in constant memory.
package pcap

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket/layers"

	"pcaplot/internal/core/model"
)

// Magic numbers of the classic libpcap global header, as read in file
// byte order. The "swapped" values appear when the writing host's
// endianness differs from the canonical representation.
const (
	magicMicroseconds        = 0xa1b2c3d4
	magicMicrosecondsSwapped = 0xd4c3b2a1
	magicNanoseconds         = 0xa1b23c4d
	magicNanosecondsSwapped  = 0x4d3cb2a1

	// pcapng section header, recognized only so it can be rejected with a
	// pointed message instead of a generic one.
	magicPcapng = 0x0a0d0d0a
)

const (
	globalHeaderLen = 24
	recordHeaderLen = 16
)

var (
	// ErrUnsupportedFormat reports a byte source whose global header does
	// not identify a classic libpcap capture.
	ErrUnsupportedFormat = errors.New("unsupported capture format")

	// ErrCorruptRecord reports a record header or payload that is
	// inconsistent with the remaining bytes or the declared lengths.
	ErrCorruptRecord = errors.New("corrupt capture record")
)

// Resolution is the unit of the fractional timestamp field, determined by
// the global header magic.
type Resolution int

const (
	Microseconds Resolution = iota
	Nanoseconds
)

func (r Resolution) String() string {
	if r == Nanoseconds {
		return "nanosecond"
	}
	return "microsecond"
}

// Reader decodes packet records from a classic libpcap byte stream. It is
// a finite, non-restartable sequence: once Next has returned an error,
// every subsequent call returns the same error.
type Reader struct {
	src       *bufio.Reader
	closer    io.Closer
	byteOrder binary.ByteOrder

	resolution Resolution
	snapLen    uint32
	linkType   layers.LinkType
	major      uint16
	minor      uint16

	err error
	hdr [recordHeaderLen]byte
}

// NewReader reads the global header from src and returns a reader
// positioned at the first record. It fails with ErrUnsupportedFormat if
// the magic number is not one of the four classic libpcap variants.
func NewReader(src io.Reader) (*Reader, error) {
	r := &Reader{src: bufio.NewReaderSize(src, 64*1024)}

	var hdr [globalHeaderLen]byte
	if _, err := io.ReadFull(r.src, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: file shorter than a capture header", ErrUnsupportedFormat)
	}

	// The magic is checked in both byte orders; it simultaneously selects
	// the decode order for every later field and the fractional unit.
	magicBE := binary.BigEndian.Uint32(hdr[0:4])
	switch magicBE {
	case magicMicroseconds:
		r.byteOrder = binary.BigEndian
		r.resolution = Microseconds
	case magicMicrosecondsSwapped:
		r.byteOrder = binary.LittleEndian
		r.resolution = Microseconds
	case magicNanoseconds:
		r.byteOrder = binary.BigEndian
		r.resolution = Nanoseconds
	case magicNanosecondsSwapped:
		r.byteOrder = binary.LittleEndian
		r.resolution = Nanoseconds
	case magicPcapng:
		return nil, fmt.Errorf("%w: pcapng container (convert with tshark -F pcap)", ErrUnsupportedFormat)
	default:
		return nil, fmt.Errorf("%w: unrecognized magic 0x%08x", ErrUnsupportedFormat, magicBE)
	}

	r.major = r.byteOrder.Uint16(hdr[4:6])
	r.minor = r.byteOrder.Uint16(hdr[6:8])
	if r.major != 2 {
		return nil, fmt.Errorf("%w: unknown version %d.%d", ErrUnsupportedFormat, r.major, r.minor)
	}

	// hdr[8:16] holds thiszone and sigfigs, unused in practice.
	r.snapLen = r.byteOrder.Uint32(hdr[16:20])
	r.linkType = layers.LinkType(r.byteOrder.Uint32(hdr[20:24]))

	return r, nil
}

// Open opens the capture file at path and wraps it in a Reader. Close
// releases the file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Next decodes one record header, skips its payload and returns the
// record metadata. It returns io.EOF at a clean end of input, i.e. when
// zero bytes remain at a record boundary. A short read anywhere else is
// reported as ErrCorruptRecord, never as end of input.
func (r *Reader) Next() (model.PacketRecord, error) {
	if r.err != nil {
		return model.PacketRecord{}, r.err
	}

	n, err := io.ReadFull(r.src, r.hdr[:])
	if err != nil {
		if err == io.EOF && n == 0 {
			r.err = io.EOF
		} else {
			r.err = fmt.Errorf("%w: truncated record header (%d of %d bytes)", ErrCorruptRecord, n, recordHeaderLen)
		}
		return model.PacketRecord{}, r.err
	}

	sec := r.byteOrder.Uint32(r.hdr[0:4])
	frac := r.byteOrder.Uint32(r.hdr[4:8])
	capLen := r.byteOrder.Uint32(r.hdr[8:12])
	wireLen := r.byteOrder.Uint32(r.hdr[12:16])

	if capLen > r.snapLen {
		r.err = fmt.Errorf("%w: captured length %d exceeds snaplen %d", ErrCorruptRecord, capLen, r.snapLen)
		return model.PacketRecord{}, r.err
	}

	if skipped, err := r.src.Discard(int(capLen)); err != nil {
		r.err = fmt.Errorf("%w: record payload truncated (%d of %d bytes)", ErrCorruptRecord, skipped, capLen)
		return model.PacketRecord{}, r.err
	}

	nanos := int64(frac)
	if r.resolution == Microseconds {
		nanos *= int64(time.Microsecond)
	}

	return model.PacketRecord{
		Timestamp:     time.Unix(int64(sec), nanos).UTC(),
		CaptureLength: capLen,
		WireLength:    wireLen,
	}, nil
}

// Resolution returns the fractional-timestamp unit declared by the magic.
func (r *Reader) Resolution() Resolution {
	return r.resolution
}

// SnapLen returns the capture's snapshot length.
func (r *Reader) SnapLen() uint32 {
	return r.snapLen
}

// LinkType returns the link-layer type recorded in the global header.
func (r *Reader) LinkType() layers.LinkType {
	return r.linkType
}

// Version returns the capture format version, normally 2.4.
func (r *Reader) Version() (major, minor uint16) {
	return r.major, r.minor
}

// Close releases the underlying file when the reader was built with Open.
// Readers over caller-owned sources have nothing to release.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
