package pcap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// writeCapture builds a classic pcap byte stream with pcapgo, which also
// cross-checks this reader against the ecosystem encoder.
func writeCapture(t *testing.T, snapLen uint32, packets []gopacket.CaptureInfo) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	if err := w.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("Failed to write pcap header: %v", err)
	}
	for _, ci := range packets {
		data := make([]byte, ci.CaptureLength)
		if err := w.WritePacket(ci, data); err != nil {
			t.Fatalf("Failed to write packet: %v", err)
		}
	}
	return buf.Bytes()
}

func TestReader_ReadsRecords(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 250000000, time.UTC)
	data := writeCapture(t, 65536, []gopacket.CaptureInfo{
		{Timestamp: base, CaptureLength: 60, Length: 60},
		{Timestamp: base.Add(time.Second), CaptureLength: 96, Length: 1500},
	})

	r, err := NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}

	if r.LinkType() != layers.LinkTypeEthernet {
		t.Errorf("Expected link type %v, got %v", layers.LinkTypeEthernet, r.LinkType())
	}
	if r.SnapLen() != 65536 {
		t.Errorf("Expected snaplen 65536, got %d", r.SnapLen())
	}
	if r.Resolution() != Microseconds {
		t.Errorf("Expected microsecond resolution, got %v", r.Resolution())
	}
	if major, minor := r.Version(); major != 2 || minor != 4 {
		t.Errorf("Expected version 2.4, got %d.%d", major, minor)
	}

	first, err := r.Next()
	if err != nil {
		t.Fatalf("Failed to read first record: %v", err)
	}
	if !first.Timestamp.Equal(base) {
		t.Errorf("Expected timestamp %v, got %v", base, first.Timestamp)
	}
	if first.CaptureLength != 60 || first.WireLength != 60 {
		t.Errorf("Unexpected lengths: %+v", first)
	}

	second, err := r.Next()
	if err != nil {
		t.Fatalf("Failed to read second record: %v", err)
	}
	if second.CaptureLength != 96 || second.WireLength != 1500 {
		t.Errorf("Expected snaplen-truncated record 96/1500, got %d/%d", second.CaptureLength, second.WireLength)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("Expected io.EOF at end of capture, got %v", err)
	}
	// The sequence is non-restartable: exhausted stays exhausted.
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("Expected sticky io.EOF, got %v", err)
	}
}

func TestReader_UnrecognizedMagic(t *testing.T) {
	data := make([]byte, 24)
	copy(data, []byte{0xde, 0xad, 0xbe, 0xef})

	if _, err := NewReader(bytes.NewReader(data)); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestReader_PcapngRejected(t *testing.T) {
	data := make([]byte, 24)
	copy(data, []byte{0x0a, 0x0d, 0x0d, 0x0a})

	if _, err := NewReader(bytes.NewReader(data)); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Expected ErrUnsupportedFormat for pcapng, got %v", err)
	}
}

func TestReader_TruncatedGlobalHeader(t *testing.T) {
	if _, err := NewReader(bytes.NewReader([]byte{0xd4, 0xc3})); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Expected ErrUnsupportedFormat for short header, got %v", err)
	}
}

func TestReader_EmptyCapture(t *testing.T) {
	data := writeCapture(t, 65536, nil)

	r, err := NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("Expected io.EOF for empty capture, got %v", err)
	}
}

func TestReader_TruncatedRecordHeader(t *testing.T) {
	data := writeCapture(t, 65536, []gopacket.CaptureInfo{
		{Timestamp: time.Unix(100, 0), CaptureLength: 40, Length: 40},
	})
	// Chop into the second record's header.
	data = append(data, 0x01, 0x02, 0x03)

	r, err := NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	if _, err := r.Next(); err != nil {
		t.Fatalf("Failed to read intact record: %v", err)
	}

	_, err = r.Next()
	if !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("Expected ErrCorruptRecord for truncated header, got %v", err)
	}
	// Errors are sticky.
	if _, again := r.Next(); !errors.Is(again, ErrCorruptRecord) {
		t.Fatalf("Expected sticky ErrCorruptRecord, got %v", again)
	}
}

func TestReader_TruncatedPayload(t *testing.T) {
	data := writeCapture(t, 65536, []gopacket.CaptureInfo{
		{Timestamp: time.Unix(100, 0), CaptureLength: 512, Length: 512},
	})
	// Keep the record header but only part of the payload.
	data = data[:24+16+100]

	r, err := NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("Expected ErrCorruptRecord for truncated payload, got %v", err)
	}
}

func TestReader_CaptureLengthExceedsSnapLen(t *testing.T) {
	data := writeCapture(t, 64, []gopacket.CaptureInfo{
		{Timestamp: time.Unix(100, 0), CaptureLength: 200, Length: 200},
	})

	r, err := NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("Expected ErrCorruptRecord for caplen > snaplen, got %v", err)
	}
}

// rawCapture hand-assembles a capture for byte orders and resolutions
// pcapgo does not write.
func rawCapture(order binary.ByteOrder, magic uint32, records ...[4]uint32) []byte {
	var buf bytes.Buffer
	hdr := make([]byte, 24)
	order.PutUint32(hdr[0:4], magic)
	order.PutUint16(hdr[4:6], 2)
	order.PutUint16(hdr[6:8], 4)
	order.PutUint32(hdr[16:20], 65536)
	order.PutUint32(hdr[20:24], 1) // Ethernet
	buf.Write(hdr)

	for _, rec := range records {
		r := make([]byte, 16)
		order.PutUint32(r[0:4], rec[0])  // ts_sec
		order.PutUint32(r[4:8], rec[1])  // ts_frac
		order.PutUint32(r[8:12], rec[2]) // incl_len
		order.PutUint32(r[12:16], rec[3])
		buf.Write(r)
		buf.Write(make([]byte, rec[2]))
	}
	return buf.Bytes()
}

func TestReader_BigEndian(t *testing.T) {
	data := rawCapture(binary.BigEndian, magicMicroseconds, [4]uint32{1700000000, 500000, 60, 60})

	r, err := NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	rec, err := r.Next()
	if err != nil {
		t.Fatalf("Failed to read record: %v", err)
	}
	want := time.Unix(1700000000, 500000*int64(time.Microsecond)).UTC()
	if !rec.Timestamp.Equal(want) {
		t.Errorf("Expected timestamp %v, got %v", want, rec.Timestamp)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("Expected io.EOF, got %v", err)
	}
}

func TestReader_NanosecondResolution(t *testing.T) {
	data := rawCapture(binary.LittleEndian, magicNanoseconds, [4]uint32{1700000000, 123456789, 40, 40})

	r, err := NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}
	if r.Resolution() != Nanoseconds {
		t.Fatalf("Expected nanosecond resolution, got %v", r.Resolution())
	}

	rec, err := r.Next()
	if err != nil {
		t.Fatalf("Failed to read record: %v", err)
	}
	want := time.Unix(1700000000, 123456789).UTC()
	if !rec.Timestamp.Equal(want) {
		t.Errorf("Expected timestamp %v, got %v", want, rec.Timestamp)
	}
}
