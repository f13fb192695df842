package sink

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"FlowSentry/internal/config"
	"FlowSentry/internal/model"
)

// NATSSink publishes each finalized decision as one JSON message on a NATS
// subject.
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

// NewNATSSink connects to the configured NATS server.
func NewNATSSink(cfg config.NATSSinkConfig) (*NATSSink, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &NATSSink{nc: nc, subject: cfg.Subject}, nil
}

// Name identifies the sink in logs.
func (s *NATSSink) Name() string { return "nats" }

// Write serializes the payload to JSON and publishes it.
func (s *NATSSink) Write(p *model.DecisionPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.nc.Publish(s.subject, data)
}

// Close drains and closes the NATS connection.
func (s *NATSSink) Close() error {
	if s.nc != nil {
		s.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
	return nil
}
