package config

import (
	"fmt"
	"time"
)

// Config represents a mobius.yaml configuration file.
// All values are optional and act as defaults for command flags.
// Flags always override config values; MOBIUS_WORKER_* environment
// variables override the transport section.
type Config struct {
	Transport  TransportConfig  `yaml:"transport"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Policy     PolicyConfig     `yaml:"policy"`
	Adapter    AdapterConfig    `yaml:"adapter"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Daemon     DaemonConfig     `yaml:"daemon"`
	Log        LogConfig        `yaml:"log"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// TransportConfig holds socket settings.
type TransportConfig struct {
	Backend         string   `yaml:"backend"`
	ReadBufferSize  int      `yaml:"read_buffer_size"`
	WriteBufferSize int      `yaml:"write_buffer_size"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	AcceptTimeout   Duration `yaml:"accept_timeout"`
	ConnectAttempts int      `yaml:"connect_attempts"`
}

// CheckpointConfig holds checkpoint storage settings. An empty backend
// disables checkpointing.
type CheckpointConfig struct {
	Backend     string `yaml:"backend"`
	Dataset     string `yaml:"dataset"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// PolicyConfig selects the checkpoint persistence policy.
type PolicyConfig struct {
	Name          string `yaml:"name"`
	BufferBatches int    `yaml:"buffer_batches"`
}

// AdapterConfig holds session notification settings. Channel, Stream and
// StreamMaxLen apply to redis; Headers and Secret to webhook.
type AdapterConfig struct {
	Type         string            `yaml:"type"`
	URL          string            `yaml:"url"`
	Channel      string            `yaml:"channel,omitempty"`
	Stream       string            `yaml:"stream,omitempty"`
	StreamMaxLen int64             `yaml:"stream_max_len,omitempty"`
	Headers      map[string]string `yaml:"headers,omitempty"`
	Secret       string            `yaml:"secret,omitempty"`
	Timeout      Duration          `yaml:"timeout,omitempty"`
	Retries      *int              `yaml:"retries,omitempty"`
}

// MetricsConfig holds the metrics endpoint settings.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// DaemonConfig holds daemon mode settings.
type DaemonConfig struct {
	Listen      string `yaml:"listen"`
	MaxSessions int    `yaml:"max_sessions"`
	WorkerID    string `yaml:"worker_id"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
