// pcapgen writes a synthetic classic-pcap capture with a fixed
// inter-packet gap, useful for exercising the interval aggregation with
// known timestamp patterns.
package main

import (
	"flag"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	packetCount := flag.Int("c", 1000, "Number of packets to generate")
	gap := flag.Duration("gap", 10*time.Millisecond, "Inter-packet timestamp gap")
	payloadSize := flag.Int("payload", 512, "Payload size in bytes (0 for random per packet)")
	snapLen := flag.Int("snaplen", 65536, "Snapshot length for the file header")
	flag.Parse()

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(uint32(*snapLen), layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	log.Printf("Generating %d packets into %s (gap %s)...", *packetCount, *outputFile, *gap)

	ts := time.Now().Add(-time.Duration(*packetCount) * *gap)

	for i := 0; i < *packetCount; i++ {
		if (i+1)%100000 == 0 {
			log.Printf("Generated %d packets...", i+1)
		}

		size := *payloadSize
		if size == 0 {
			size = rand.Intn(1400) + 50
		}

		ethLayer := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
			DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ipLayer := &layers.IPv4{
			SrcIP:    net.IP{10, 0, 0, byte(i % 250)},
			DstIP:    net.IP{10, 0, 1, byte(i % 250)},
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
		}
		udpLayer := &layers.UDP{
			SrcPort: layers.UDPPort(40000 + i%1000),
			DstPort: 9999,
		}
		udpLayer.SetNetworkLayerForChecksum(ipLayer)

		payload := make([]byte, size)
		rand.Read(payload)

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{
			ComputeChecksums: true,
			FixLengths:       true,
		}
		if err := gopacket.SerializeLayers(buf, opts, ethLayer, ipLayer, udpLayer, gopacket.Payload(payload)); err != nil {
			log.Fatalf("Failed to serialize layers: %v", err)
		}

		ci := gopacket.CaptureInfo{
			Timestamp:     ts,
			CaptureLength: len(buf.Bytes()),
			Length:        len(buf.Bytes()),
		}
		if err := pcapWriter.WritePacket(ci, buf.Bytes()); err != nil {
			log.Fatalf("Failed to write packet: %v", err)
		}

		ts = ts.Add(*gap)
	}

	log.Printf("Successfully generated %d packets into %s.", *packetCount, *outputFile)
}
