// Package config loads the device configuration from YAML.
//
// A configuration file only needs to set what differs from Default:
//
//	device:
//	  dev_eui: 70B3D57ED0000001
//	  join_eui: "0000000000000001"
//	  app_key: 2B7E151628AED2A6ABF7158809CF4F3C
//	uplink:
//	  interval: 5m
//	  source: telemetry
package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/loranode/loranode-go/pkg/lorawan"
	"github.com/loranode/loranode-go/pkg/uplink"
	"github.com/loranode/loranode-go/pkg/version"
)

// ErrInvalidConfig is wrapped by every validation error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Payload sources.
const (
	SourceStatic    = "static"
	SourceTelemetry = "telemetry"
)

// Config is the complete device configuration.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Uplink  UplinkConfig  `yaml:"uplink"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Sim     SimConfig     `yaml:"sim"`
}

// DeviceConfig holds the OTAA credentials.
type DeviceConfig struct {
	DevEUI     string `yaml:"dev_eui"`
	JoinEUI    string `yaml:"join_eui"`
	AppKey     string `yaml:"app_key"`
	MACVersion string `yaml:"mac_version"`
}

// UplinkConfig configures the uplink scheduler.
type UplinkConfig struct {
	Interval        time.Duration `yaml:"interval"`
	Port            uint8         `yaml:"port"`
	Confirmed       bool          `yaml:"confirmed"`
	MaxPayloadBytes int           `yaml:"max_payload_bytes"`
	Source          string        `yaml:"source"`
	Payload         string        `yaml:"payload"`
}

// StorageConfig names the files the device writes.
type StorageConfig struct {
	StateFile   string `yaml:"state_file"`
	ProtocolLog string `yaml:"protocol_log"`
}

// LoggingConfig configures diagnostic logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Listen
// disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// SimConfig configures the simulated network and radio.
type SimConfig struct {
	NetID                string  `yaml:"net_id"`
	RejectProbability    float64 `yaml:"reject_probability"`
	NoAcceptProbability  float64 `yaml:"no_accept_probability"`
	TxFailureProbability float64 `yaml:"tx_failure_probability"`
	DutyCycle            float64 `yaml:"duty_cycle"`
	SpreadingFactor      int     `yaml:"spreading_factor"`
	Seed                 uint64  `yaml:"seed"`
}

// Default returns the default configuration. Credentials are left empty.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			MACVersion: version.Current,
		},
		Uplink: UplinkConfig{
			Interval:        uplink.DefaultInterval,
			Port:            uplink.DefaultPort,
			MaxPayloadBytes: lorawan.DefaultMaxPayloadBytes,
			Source:          SourceStatic,
			Payload:         uplink.DefaultGreeting,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Sim: SimConfig{
			NetID:               "000013",
			NoAcceptProbability: 0.3,
			DutyCycle:           0.01,
			SpreadingFactor:     7,
		},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if _, err := c.Credentials(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}
	if _, err := version.LoadProfile(c.Device.MACVersion); err != nil {
		add("mac_version: %v", err)
	}

	if err := c.UplinkConfig().Validate(); err != nil {
		add("uplink: %v", err)
	}
	switch c.Uplink.Source {
	case SourceStatic:
		if c.Uplink.MaxPayloadBytes > 0 && len(c.Uplink.Payload) > c.Uplink.MaxPayloadBytes {
			add("uplink.payload: %d bytes exceeds max_payload_bytes %d", len(c.Uplink.Payload), c.Uplink.MaxPayloadBytes)
		}
	case SourceTelemetry:
	default:
		add("uplink.source: unknown source %q", c.Uplink.Source)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level: unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		add("logging.format: unknown format %q", c.Logging.Format)
	}

	if _, err := c.Sim.NetIDBytes(); err != nil {
		add("sim.net_id: %v", err)
	}
	for name, p := range map[string]float64{
		"reject_probability":     c.Sim.RejectProbability,
		"no_accept_probability":  c.Sim.NoAcceptProbability,
		"tx_failure_probability": c.Sim.TxFailureProbability,
		"duty_cycle":             c.Sim.DutyCycle,
	} {
		if p < 0 || p > 1 {
			add("sim.%s: %v outside [0, 1]", name, p)
		}
	}
	if c.Sim.RejectProbability+c.Sim.NoAcceptProbability > 1 {
		add("sim: reject and no-accept probabilities sum above 1")
	}
	if c.Sim.SpreadingFactor < 7 || c.Sim.SpreadingFactor > 12 {
		add("sim.spreading_factor: %d outside 7..12", c.Sim.SpreadingFactor)
	}

	return errors.Join(errs...)
}

// Credentials parses the device credentials.
func (c *Config) Credentials() (lorawan.Credentials, error) {
	return lorawan.ParseCredentials(c.Device.DevEUI, c.Device.JoinEUI, c.Device.AppKey)
}

// UplinkConfig returns the scheduler configuration.
func (c *Config) UplinkConfig() uplink.Config {
	return uplink.Config{
		Interval:   c.Uplink.Interval,
		Port:       c.Uplink.Port,
		Confirmed:  c.Uplink.Confirmed,
		MaxPayload: c.Uplink.MaxPayloadBytes,
	}
}

// NetIDBytes decodes the 3-byte NetID.
func (s SimConfig) NetIDBytes() ([3]byte, error) {
	var id [3]byte
	b, err := hex.DecodeString(s.NetID)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("want 3 bytes, got %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}
