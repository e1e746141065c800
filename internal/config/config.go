// Package config loads the lou-shaker YAML configuration.
//
// Precedence: DefaultConfig, then the config file, then flag overrides.
// Validate is called last so the rest of the code can assume a well-formed
// config.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SourceSerial = "serial"
	SourceSim    = "sim"
	SourceNone   = "none"
)

type Config struct {
	Sensor     SensorConfig     `yaml:"sensor"`
	Instrument InstrumentConfig `yaml:"instrument"`
	Controls   ControlsConfig   `yaml:"controls"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type SensorConfig struct {
	Source     string `yaml:"source"` // serial, sim or none
	Device     string `yaml:"device"`
	Baud       int    `yaml:"baud"`
	IntervalMS int    `yaml:"interval_ms"` // simulator sample interval
	History    int    `yaml:"history"`     // samples kept for the peak
}

type InstrumentConfig struct {
	Enabled   bool   `yaml:"enabled"`
	SoundBank string `yaml:"sound_bank"`
	Port      string `yaml:"port,omitempty"` // synth output; empty auto-selects
	Program   int    `yaml:"program"`
	Channel   int    `yaml:"channel"` // 0-15
	HoldMS    int    `yaml:"hold_ms"`
	Record    string `yaml:"record,omitempty"` // optional .mid capture path
}

type ControlsConfig struct {
	Keyboard      bool   `yaml:"keyboard"`
	MIDIInput     bool   `yaml:"midi_input"`
	WebsocketAddr string `yaml:"websocket_addr,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Sensor: SensorConfig{
			Source:     SourceSerial,
			Device:     "/dev/ttyACM0",
			Baud:       115200,
			IntervalMS: 10,
			History:    10,
		},
		Instrument: InstrumentConfig{
			Enabled:   true,
			SoundBank: "piano.sf2",
			Program:   0,
			Channel:   0,
			HoldMS:    150,
		},
		Controls: ControlsConfig{
			Keyboard: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file over the defaults.
// Unknown fields are rejected to catch typos.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds pointers for flags the user actually set. Nil pointers
// are ignored; non-nil values are applied even when zero.
type FlagOverrides struct {
	Source     *string
	Device     *string
	Baud       *int
	SoundBank  *string
	Port       *string
	Program    *int
	Record     *string
	NoKeyboard *bool
	MIDIInput  *bool
	Websocket  *string
	LogLevel   *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Source != nil {
		cfg.Sensor.Source = *o.Source
	}
	if o.Device != nil {
		cfg.Sensor.Device = *o.Device
	}
	if o.Baud != nil {
		cfg.Sensor.Baud = *o.Baud
	}
	if o.SoundBank != nil {
		cfg.Instrument.SoundBank = *o.SoundBank
	}
	if o.Port != nil {
		cfg.Instrument.Port = *o.Port
	}
	if o.Program != nil {
		cfg.Instrument.Program = *o.Program
	}
	if o.Record != nil {
		cfg.Instrument.Record = *o.Record
	}
	if o.NoKeyboard != nil {
		cfg.Controls.Keyboard = !*o.NoKeyboard
	}
	if o.MIDIInput != nil {
		cfg.Controls.MIDIInput = *o.MIDIInput
	}
	if o.Websocket != nil {
		cfg.Controls.WebsocketAddr = *o.Websocket
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
func (c *Config) Validate() error {
	switch c.Sensor.Source {
	case SourceSerial:
		if c.Sensor.Device == "" {
			return errors.New("sensor.device must not be empty for the serial source")
		}
		if c.Sensor.Baud <= 0 {
			return errors.New("sensor.baud must be > 0")
		}
	case SourceSim, SourceNone:
	default:
		return fmt.Errorf("sensor.source must be %q, %q or %q", SourceSerial, SourceSim, SourceNone)
	}
	if c.Sensor.IntervalMS <= 0 || c.Sensor.IntervalMS > 1000 {
		return errors.New("sensor.interval_ms must be between 1 and 1000")
	}
	if c.Sensor.History < 1 {
		return errors.New("sensor.history must be >= 1")
	}

	if c.Instrument.Program < 0 || c.Instrument.Program > 127 {
		return errors.New("instrument.program must be between 0 and 127")
	}
	if c.Instrument.Channel < 0 || c.Instrument.Channel > 15 {
		return errors.New("instrument.channel must be between 0 and 15")
	}
	if c.Instrument.HoldMS <= 0 {
		return errors.New("instrument.hold_ms must be > 0")
	}

	if !c.Controls.Keyboard && !c.Controls.MIDIInput && c.Controls.WebsocketAddr == "" {
		return errors.New("controls: enable at least one of keyboard, midi_input or websocket_addr")
	}

	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	return nil
}

func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.Sensor.IntervalMS) * time.Millisecond
}

func (c *Config) Hold() time.Duration {
	return time.Duration(c.Instrument.HoldMS) * time.Millisecond
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
