package sink

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"pcaplot/internal/config"
	"pcaplot/internal/core/model"
)

// summaryMessage is the wire form of one published summary.
type summaryMessage struct {
	Source string `json:"source"`
	model.IntervalSummary
}

// NATSPublisher publishes each interval summary as a JSON message to a
// configured subject.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
	source  string
}

// NewNATSPublisher connects to the NATS server in cfg.
func NewNATSPublisher(cfg config.NATSConfig, source string) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &NATSPublisher{nc: nc, subject: cfg.Subject, source: source}, nil
}

// Write serializes a summary to JSON and publishes it.
func (p *NATSPublisher) Write(s model.IntervalSummary) error {
	data, err := json.Marshal(summaryMessage{Source: p.source, IntervalSummary: s})
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	return p.nc.Publish(p.subject, data)
}

// Close drains and closes the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.nc != nil {
		err := p.nc.Drain()
		log.Println("NATS connection drained and closed.")
		return err
	}
	return nil
}
