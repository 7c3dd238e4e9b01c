// Package config loads the blepwn configuration: target identifiers,
// payloads, timeouts and scan settings. Built-in defaults come from struct
// tags; a YAML file overrides them and CLI flags override the file.
package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/srg/blepwn/internal/device"
	"github.com/srg/blepwn/internal/session"
	"gopkg.in/yaml.v3"
)

// Config is the complete run configuration.
type Config struct {
	Target   TargetConfig  `yaml:"target"`
	Payloads PayloadConfig `yaml:"payloads"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
	Scan     ScanConfig    `yaml:"scan"`
	// LogLevel is used when --log-level is not given.
	LogLevel string `yaml:"log_level" default:"panic"`

	payload1 []byte
	payload2 []byte
}

type TargetConfig struct {
	Name           string `yaml:"name" default:"Dropcam"`
	Service        string `yaml:"service" default:"D2D3F8EF-9C99-4D9C-A2B3-91C85D44326C"`
	Characteristic string `yaml:"characteristic" default:"7606123e-4282-4ed4-aca1-2374de7fdb61"`
}

// PayloadConfig holds the two payloads as hex strings. Whitespace, colons
// and a leading 0x are ignored.
type PayloadConfig struct {
	First  string `yaml:"first" default:"3a031201AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"`
	Second string `yaml:"second" default:"3b"`
}

type TimeoutConfig struct {
	Connect  time.Duration `yaml:"connect" default:"10s"`
	Discover time.Duration `yaml:"discover" default:"10s"`
	Write    time.Duration `yaml:"write" default:"10s"`
}

type ScanConfig struct {
	AllowDuplicates bool     `yaml:"allow_duplicates" default:"true"`
	Services        []string `yaml:"services"`
	// ProbeInterval is how often an unusable adapter is re-checked.
	ProbeInterval time.Duration `yaml:"probe_interval" default:"2s"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads path over the defaults. An empty path yields the defaults.
// The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := cfg.Decode(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Decode merges YAML from r into cfg. Unknown keys are rejected.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the configuration, normalizes UUIDs and decodes the payloads.
func (c *Config) Validate() error {
	c.Target.Name = strings.TrimSpace(c.Target.Name)
	if c.Target.Name == "" {
		return fmt.Errorf("target.name is required")
	}

	ids, err := device.ValidateUUID(c.Target.Service, c.Target.Characteristic)
	if err != nil {
		return fmt.Errorf("invalid target UUID: %w", err)
	}
	c.Target.Service, c.Target.Characteristic = ids[0], ids[1]

	if len(c.Scan.Services) > 0 {
		if c.Scan.Services, err = device.ValidateUUID(c.Scan.Services...); err != nil {
			return fmt.Errorf("invalid scan.services: %w", err)
		}
	}

	for name, d := range map[string]time.Duration{
		"timeouts.connect":    c.Timeouts.Connect,
		"timeouts.discover":   c.Timeouts.Discover,
		"timeouts.write":      c.Timeouts.Write,
		"scan.probe_interval": c.Scan.ProbeInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}

	if c.payload1, err = DecodePayload(c.Payloads.First); err != nil {
		return fmt.Errorf("payloads.first: %w", err)
	}
	if c.payload2, err = DecodePayload(c.Payloads.Second); err != nil {
		return fmt.Errorf("payloads.second: %w", err)
	}
	return nil
}

// DecodedPayloads returns the decoded payloads. Valid after Validate.
func (c *Config) DecodedPayloads() ([]byte, []byte) {
	return c.payload1, c.payload2
}

// SessionOptions converts the configuration to controller options.
func (c *Config) SessionOptions() session.Options {
	opts := session.DefaultOptions()
	opts.TargetName = c.Target.Name
	opts.ServiceUUID = c.Target.Service
	opts.CharacteristicUUID = c.Target.Characteristic
	opts.ConnectTimeout = c.Timeouts.Connect
	opts.DiscoverTimeout = c.Timeouts.Discover
	opts.WriteTimeout = c.Timeouts.Write
	opts.AllowDuplicates = c.Scan.AllowDuplicates
	opts.ScanServiceUUIDs = c.Scan.Services
	return opts
}

// DecodePayload decodes a hex payload. Whitespace, colons and a leading 0x
// are ignored; the result must not be empty.
func DecodePayload(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", "\t", "", "\n", "", ":", "").Replace(s)
	if s == "" {
		return nil, fmt.Errorf("payload is empty")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}
	return b, nil
}
