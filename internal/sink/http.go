package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"FlowSentry/internal/config"
	"FlowSentry/internal/model"
)

// HTTPSink POSTs each finalized decision to a backend endpoint. Delivery is
// best-effort with a short request timeout; the dispatcher absorbs failures.
type HTTPSink struct {
	url    string
	client *http.Client
}

// NewHTTPSink creates the backend webhook sink.
func NewHTTPSink(cfg config.HTTPSinkConfig) *HTTPSink {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPSink{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
	}
}

// Name identifies the sink in logs.
func (s *HTTPSink) Name() string { return "http" }

// Write POSTs the payload as JSON.
func (s *HTTPSink) Write(p *model.DecisionPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	resp, err := s.client.Post(s.url, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("backend returned status %s", resp.Status)
	}
	return nil
}

// Close is a no-op for the HTTP sink.
func (s *HTTPSink) Close() error { return nil }
