package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CaptureConfig selects the live capture source.
type CaptureConfig struct {
	Interface   string `yaml:"interface"`
	Protocol    string `yaml:"protocol"` // tcp | udp | both
	SnapshotLen int32  `yaml:"snapshot_len"`
	Promiscuous bool   `yaml:"promiscuous"`
}

// DetectorConfig holds the detection pipeline parameters. Threshold is a
// pointer so an explicit 0 survives defaulting.
type DetectorConfig struct {
	ModelsDir       string   `yaml:"models_dir"`
	Models          string   `yaml:"models"` // "all" or comma-separated subset
	Threshold       *float64 `yaml:"threshold"`
	VoteK           int     `yaml:"vote_k"`
	FlowTimeout     string  `yaml:"flow_timeout"`
	ExpireInterval  string  `yaml:"expire_interval"`
	FinalizeWorkers int     `yaml:"finalize_workers"`
	NumShards       uint32  `yaml:"num_shards"`
	Verbose         bool    `yaml:"verbose"`
}

// SMTPConfig holds the settings for the email notifier.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// AlertConfig controls the HIGH severity alert path.
type AlertConfig struct {
	Enabled  bool       `yaml:"enabled"`
	Cooldown string     `yaml:"cooldown"`
	SMTP     SMTPConfig `yaml:"smtp"`
}

// NATSSinkConfig configures the NATS decision publisher.
type NATSSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// HTTPSinkConfig configures the backend webhook sink.
type HTTPSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

// AMQPSinkConfig configures the AMQP exchange publisher.
type AMQPSinkConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

// ClickHouseSinkConfig configures the ClickHouse decision writer.
type ClickHouseSinkConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SinkConfig groups all export sinks behind one bounded dispatch queue.
type SinkConfig struct {
	QueueSize  int                  `yaml:"queue_size"`
	NATS       NATSSinkConfig       `yaml:"nats"`
	HTTP       HTTPSinkConfig       `yaml:"http"`
	AMQP       AMQPSinkConfig       `yaml:"amqp"`
	ClickHouse ClickHouseSinkConfig `yaml:"clickhouse"`
}

// APIConfig configures the status HTTP endpoint.
type APIConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// LogConfig configures the detection CSV log.
type LogConfig struct {
	Path string `yaml:"path"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Capture  CaptureConfig  `yaml:"capture"`
	Detector DetectorConfig `yaml:"detector"`
	Log      LogConfig      `yaml:"log"`
	Alert    AlertConfig    `yaml:"alert"`
	Sinks    SinkConfig     `yaml:"sinks"`
	API      APIConfig      `yaml:"api"`
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Capture.Protocol == "" {
		c.Capture.Protocol = "both"
	}
	if c.Capture.SnapshotLen == 0 {
		c.Capture.SnapshotLen = 1600
	}
	if c.Detector.Models == "" {
		c.Detector.Models = "all"
	}
	if c.Detector.Threshold == nil {
		threshold := 0.5
		c.Detector.Threshold = &threshold
	}
	if c.Detector.VoteK <= 0 {
		c.Detector.VoteK = 1
	}
	if c.Detector.FlowTimeout == "" {
		c.Detector.FlowTimeout = "10s"
	}
	if c.Detector.ExpireInterval == "" {
		c.Detector.ExpireInterval = "1s"
	}
	if c.Detector.FinalizeWorkers <= 0 {
		c.Detector.FinalizeWorkers = 2
	}
	if c.Log.Path == "" {
		c.Log.Path = "logs/flow_decisions.csv"
	}
	if c.Alert.Cooldown == "" {
		c.Alert.Cooldown = "10s"
	}
	if c.Sinks.QueueSize <= 0 {
		c.Sinks.QueueSize = 1024
	}
	if c.Sinks.HTTP.Timeout == "" {
		c.Sinks.HTTP.Timeout = "2s"
	}
}

func (c *Config) validate() error {
	switch c.Capture.Protocol {
	case "tcp", "udp", "both":
	default:
		return fmt.Errorf("invalid capture protocol %q: must be tcp, udp or both", c.Capture.Protocol)
	}
	if *c.Detector.Threshold < 0 || *c.Detector.Threshold > 1 {
		return fmt.Errorf("threshold %f out of range [0,1]", *c.Detector.Threshold)
	}
	for _, field := range []struct {
		name, value string
	}{
		{"flow_timeout", c.Detector.FlowTimeout},
		{"expire_interval", c.Detector.ExpireInterval},
		{"alert cooldown", c.Alert.Cooldown},
		{"http sink timeout", c.Sinks.HTTP.Timeout},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", field.name, field.value, err)
		}
	}
	return nil
}

// Threshold returns the global voting threshold.
func (c *Config) Threshold() float64 {
	return *c.Detector.Threshold
}

// FlowTimeout returns the parsed flow idle timeout.
func (c *Config) FlowTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Detector.FlowTimeout)
	return d
}

// ExpireInterval returns the parsed expiry scan interval.
func (c *Config) ExpireInterval() time.Duration {
	d, _ := time.ParseDuration(c.Detector.ExpireInterval)
	return d
}

// AlertCooldown returns the parsed alert cooldown window.
func (c *Config) AlertCooldown() time.Duration {
	d, _ := time.ParseDuration(c.Alert.Cooldown)
	return d
}

// SelectedModels returns nil when all models are requested, otherwise the
// explicit subset names.
func (c *Config) SelectedModels() []string {
	if strings.EqualFold(c.Detector.Models, "all") {
		return nil
	}
	parts := strings.Split(c.Detector.Models, ",")
	models := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			models = append(models, p)
		}
	}
	return models
}

// BPFFilter returns the capture filter for the configured protocol mode.
func (c *Config) BPFFilter() string {
	switch c.Capture.Protocol {
	case "tcp":
		return "tcp"
	case "udp":
		return "udp"
	default:
		return "tcp or udp"
	}
}
