// Package config loads the sensors CLI configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/envsensors"
	"github.com/mklimuk/envsensors/air"
	"github.com/mklimuk/envsensors/environment"
)

// Version of the build, injected by the dev tool.
var Version = "dev"

const (
	AdapterGeneric = "generic"
	AdapterMCP2221 = "mcp2221"
	AdapterNanoPi  = "nanopi"
)

type Config struct {
	// Adapter selects the transport: generic (periph), mcp2221 or nanopi (gobot).
	Adapter string `yaml:"adapter"`
	// Bus is a periph bus name for the generic adapter or a bus number for
	// nanopi. Empty means the platform default.
	Bus      string         `yaml:"bus"`
	BMx280   BMx280Config   `yaml:"bmx280"`
	HTU21D   HTU21DConfig   `yaml:"htu21d"`
	CCS811   CCS811Config   `yaml:"ccs811"`
	Exporter ExporterConfig `yaml:"exporter"`
}

type OversamplingConfig struct {
	Temperature string `yaml:"temperature"`
	Pressure    string `yaml:"pressure"`
	Humidity    string `yaml:"humidity"`
}

type BMx280Config struct {
	// Enabled adds the sensor to the exporter.
	Enabled      bool               `yaml:"enabled"`
	Name         string             `yaml:"name"`
	Address      uint16             `yaml:"address"`
	Mode         string             `yaml:"mode"`
	Oversampling OversamplingConfig `yaml:"oversampling"`
	Filter       string             `yaml:"filter"`
	Standby      string             `yaml:"standby"`
}

type HTU21DConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
	Address uint16 `yaml:"address"`
	// Resolution is left unchanged when empty.
	Resolution string `yaml:"resolution"`
}

type CCS811Config struct {
	Enabled   bool   `yaml:"enabled"`
	Name      string `yaml:"name"`
	Address   uint16 `yaml:"address"`
	DriveMode string `yaml:"drive_mode"`
	// WakePin names the nWAKE line: a periph gpioreg name or GP0..GP3 on the
	// MCP2221.
	WakePin string `yaml:"wake_pin"`
}

type ExporterConfig struct {
	Listen   string        `yaml:"listen"`
	Interval time.Duration `yaml:"interval"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Adapter: AdapterGeneric,
		BMx280: BMx280Config{
			Name:    "bmx280",
			Address: environment.BMx280Address,
			Mode:    environment.ModeNormal.String(),
			Oversampling: OversamplingConfig{
				Temperature: environment.Oversampling1x.String(),
				Pressure:    environment.Oversampling1x.String(),
				Humidity:    environment.Oversampling1x.String(),
			},
			Filter:  environment.FilterOff.String(),
			Standby: environment.Standby1000ms.String(),
		},
		HTU21D: HTU21DConfig{
			Name:    "htu21d",
			Address: environment.HTU21DAddress,
		},
		CCS811: CCS811Config{
			Name:      "ccs811",
			Address:   air.CCS811Address,
			DriveMode: air.Mode1s.String(),
		},
		Exporter: ExporterConfig{
			Listen:   ":9110",
			Interval: 10 * time.Second,
		},
	}
}

// Load reads the file at path over the defaults. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes data over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("could not parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func invalid(field string, err error) error {
	return fmt.Errorf("%w: %s: %v", envsensors.ErrConfiguration, field, err)
}

// Validate checks that every enumeration name is known.
func (c *Config) Validate() error {
	switch c.Adapter {
	case AdapterGeneric, AdapterMCP2221, AdapterNanoPi:
	default:
		return invalid("adapter", fmt.Errorf("unknown adapter %q", c.Adapter))
	}
	if _, err := c.BMx280.Options(); err != nil {
		return err
	}
	if _, _, err := c.HTU21D.ParseResolution(); err != nil {
		return err
	}
	if _, err := c.CCS811.Options(); err != nil {
		return err
	}
	if c.Exporter.Interval <= 0 {
		return invalid("exporter.interval", fmt.Errorf("must be positive, got %s", c.Exporter.Interval))
	}
	return nil
}

// Options converts the sampling settings to driver options.
func (c BMx280Config) Options() ([]environment.BMx280Opt, error) {
	var opts []environment.BMx280Opt
	channels := []struct {
		ch    environment.Channel
		value string
	}{
		{environment.Humidity, c.Oversampling.Humidity},
		{environment.Temperature, c.Oversampling.Temperature},
		{environment.Pressure, c.Oversampling.Pressure},
	}
	for _, ch := range channels {
		if ch.value == "" {
			continue
		}
		o, err := environment.ParseOversampling(ch.value)
		if err != nil {
			return nil, invalid("bmx280.oversampling."+ch.ch.String(), err)
		}
		opts = append(opts, environment.WithOversampling(ch.ch, o))
	}
	if c.Filter != "" {
		f, err := environment.ParseFilter(c.Filter)
		if err != nil {
			return nil, invalid("bmx280.filter", err)
		}
		opts = append(opts, environment.WithFilter(f))
	}
	if c.Standby != "" {
		sb, err := environment.ParseStandby(c.Standby)
		if err != nil {
			return nil, invalid("bmx280.standby", err)
		}
		opts = append(opts, environment.WithStandby(sb))
	}
	if c.Mode != "" {
		m, err := environment.ParsePowerMode(c.Mode)
		if err != nil {
			return nil, invalid("bmx280.mode", err)
		}
		opts = append(opts, environment.WithMode(m))
	}
	return opts, nil
}

// ParseResolution reports false when no resolution is configured.
func (c HTU21DConfig) ParseResolution() (environment.Resolution, bool, error) {
	if c.Resolution == "" {
		return 0, false, nil
	}
	r, err := environment.ParseResolution(c.Resolution)
	if err != nil {
		return 0, false, invalid("htu21d.resolution", err)
	}
	return r, true, nil
}

// Options converts the drive mode to a driver option. The wake pin is
// resolved by the caller since it depends on the adapter.
func (c CCS811Config) Options() ([]air.CCS811Opt, error) {
	if c.DriveMode == "" {
		return nil, nil
	}
	m, err := air.ParseDriveMode(c.DriveMode)
	if err != nil {
		return nil, invalid("ccs811.drive_mode", err)
	}
	return []air.CCS811Opt{air.WithDriveMode(m)}, nil
}
