package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the engine configuration. Network identity and TLS
// material are fixed at engine start; the numeric tunables can also be
// adjusted at runtime through the Service setters.
type Config struct {
	// Network settings
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`
	UseTLS   bool   `json:"use_tls" yaml:"use_tls"`
	CertFile string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty" yaml:"key_file,omitempty"`

	// Client-side TLS. Skipping verification is for testing only.
	InsecureSkipVerify bool `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`

	// Connection management
	MaxClients        int           `json:"max_clients" yaml:"max_clients"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	ReadTimeout       time.Duration `json:"read_timeout" yaml:"read_timeout"`
	QueueSize         int           `json:"queue_size" yaml:"queue_size"`

	// Security
	ReplayWindow time.Duration `json:"replay_window" yaml:"replay_window"`

	// Client reconnect pacing
	ReconnectDelay time.Duration `json:"reconnect_delay" yaml:"reconnect_delay"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		BindAddr:          "0.0.0.0:8765",
		MaxClients:        1000,
		HeartbeatInterval: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		QueueSize:         256,
		ReplayWindow:      300 * time.Second,
		ReconnectDelay:    5 * time.Second,
	}
}

// Validate checks the numeric bounds. The replay window may be negative;
// it is interpreted symmetrically wherever it is used.
func (c Config) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("%w: bind_addr is empty", ErrInvalidConfig)
	}
	if c.MaxClients <= 0 {
		return fmt.Errorf("%w: max_clients must be positive, got %d", ErrInvalidConfig, c.MaxClients)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: heartbeat_interval must be positive, got %s", ErrInvalidConfig, c.HeartbeatInterval)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: read_timeout must be positive, got %s", ErrInvalidConfig, c.ReadTimeout)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: queue_size must be positive, got %d", ErrInvalidConfig, c.QueueSize)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("%w: reconnect_delay must be positive, got %s", ErrInvalidConfig, c.ReconnectDelay)
	}
	if c.UseTLS && (c.CertFile == "" || c.KeyFile == "") {
		return fmt.Errorf("%w: TLS requires both cert_file and key_file", ErrInvalidConfig)
	}
	return nil
}

// rawConfig is the file-facing shape. Durations are strings in
// time.ParseDuration form ("30s", "1m30s"); pointer fields distinguish
// omitted keys from zero values so defaults survive partial files.
type rawConfig struct {
	BindAddr           *string `json:"bind_addr" yaml:"bind_addr"`
	UseTLS             *bool   `json:"use_tls" yaml:"use_tls"`
	CertFile           *string `json:"cert_file" yaml:"cert_file"`
	KeyFile            *string `json:"key_file" yaml:"key_file"`
	InsecureSkipVerify *bool   `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	MaxClients         *int    `json:"max_clients" yaml:"max_clients"`
	HeartbeatInterval  *string `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	ReadTimeout        *string `json:"read_timeout" yaml:"read_timeout"`
	QueueSize          *int    `json:"queue_size" yaml:"queue_size"`
	ReplayWindow       *string `json:"replay_window" yaml:"replay_window"`
	ReconnectDelay     *string `json:"reconnect_delay" yaml:"reconnect_delay"`
}

func (c *Config) apply(raw rawConfig) error {
	if raw.BindAddr != nil {
		c.BindAddr = *raw.BindAddr
	}
	if raw.UseTLS != nil {
		c.UseTLS = *raw.UseTLS
	}
	if raw.CertFile != nil {
		c.CertFile = *raw.CertFile
	}
	if raw.KeyFile != nil {
		c.KeyFile = *raw.KeyFile
	}
	if raw.InsecureSkipVerify != nil {
		c.InsecureSkipVerify = *raw.InsecureSkipVerify
	}
	if raw.MaxClients != nil {
		c.MaxClients = *raw.MaxClients
	}
	if raw.QueueSize != nil {
		c.QueueSize = *raw.QueueSize
	}

	durations := []struct {
		key string
		src *string
		dst *time.Duration
	}{
		{"heartbeat_interval", raw.HeartbeatInterval, &c.HeartbeatInterval},
		{"read_timeout", raw.ReadTimeout, &c.ReadTimeout},
		{"replay_window", raw.ReplayWindow, &c.ReplayWindow},
		{"reconnect_delay", raw.ReconnectDelay, &c.ReconnectDelay},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, d.key, err)
		}
		*d.dst = v
	}
	return nil
}

// LoadYAML decodes a config from YAML, starting from the defaults so
// omitted keys keep their documented values.
func LoadYAML(r io.Reader) (Config, error) {
	var raw rawConfig
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return Config{}, fmt.Errorf("decode yaml config: %w", err)
	}
	c := DefaultConfig()
	if err := c.apply(raw); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadJSON decodes a config from JSON, starting from the defaults.
func LoadJSON(r io.Reader) (Config, error) {
	var raw rawConfig
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Config{}, fmt.Errorf("decode json config: %w", err)
	}
	c := DefaultConfig()
	if err := c.apply(raw); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
