// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"errors"
	"fmt"
	"os"
	"pidctl/internal/controller/numeric"
	"pidctl/pkg/modbus"
	"pidctl/pkg/sysmon"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultWindup       = 20.0
	DefaultMaximum      = 1.0
	DefaultPrecision    = 2
	DefaultPollInterval = 5 * time.Second
)

type Config struct {
	HTTPAddr  string          `yaml:"http_addr"`
	Modbus    *modbus.Config  `yaml:"modbus"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Loops     []LoopConfig    `yaml:"loops"`
}

type TelemetryConfig struct {
	EmonCMSAddr   string        `yaml:"emoncms_addr"`
	EmonCMSApiKey string        `yaml:"emoncms_apikey"`
	Interval      time.Duration `yaml:"interval"`
}

type LoopConfig struct {
	Name   string       `yaml:"name"`
	Source SourceConfig `yaml:"source"`
	Sink   SinkConfig   `yaml:"sink"`
	Params ParamsConfig `yaml:"params"`

	Windup        *float64      `yaml:"windup"`
	DisableWindup bool          `yaml:"disable_windup"`
	SampleTime    time.Duration `yaml:"sample_time"`
	Invert        bool          `yaml:"invert"`
	Minimum       float64       `yaml:"minimum"`
	Maximum       *float64      `yaml:"maximum"`
	Precision     *int          `yaml:"precision"`
	Round         string        `yaml:"round"`
}

// SourceConfig selects where feedback comes from: "modbus", "host", "serial"
// or "zwave".
type SourceConfig struct {
	Type     string        `yaml:"type"`
	Interval time.Duration `yaml:"interval"`

	// plausibility checks for polled sources
	Min     *float64 `yaml:"min"`
	Max     *float64 `yaml:"max"`
	MaxStep float64  `yaml:"max_step"`

	Register string `yaml:"register"` // modbus
	Metric   string `yaml:"metric"`   // host

	Port      string `yaml:"port"` // serial
	Baud      int    `yaml:"baud"`
	Field     int    `yaml:"field"`
	Separator string `yaml:"separator"`

	Addr         string `yaml:"addr"` // zwave
	NodeID       int    `yaml:"node_id"`
	CommandClass int    `yaml:"command_class"`
	Property     string `yaml:"property"`
}

// SinkConfig selects where the output goes: "log", "modbus", "phidgets", "can",
// "gpio_duty" or "phidgets_duty".
type SinkConfig struct {
	Type       string        `yaml:"type"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`

	Register string `yaml:"register"` // modbus

	URL       string  `yaml:"url"` // phidgets
	Channel   int     `yaml:"channel"`
	HubPort   int     `yaml:"hub_port"`
	Digital   bool    `yaml:"digital"`
	Threshold float64 `yaml:"threshold"`

	Interface string  `yaml:"interface"` // can
	FrameID   uint32  `yaml:"frame_id"`
	Extended  bool    `yaml:"extended"`
	Length    uint8   `yaml:"length"`
	StartBit  uint8   `yaml:"start_bit"`
	BitLength uint8   `yaml:"bit_length"`
	Factor    float64 `yaml:"factor"`
	Offset    float64 `yaml:"offset"`

	Chip      string `yaml:"chip"` // gpio
	Line      string `yaml:"line"`
	ActiveLow bool   `yaml:"active_low"`

	Period    time.Duration `yaml:"period"` // duty cycle
	MinOn     time.Duration `yaml:"min_on"`
	MinOff    time.Duration `yaml:"min_off"`
	FullScale float64       `yaml:"full_scale"`
}

type ParamsConfig struct {
	SetPoint *ParamConfig `yaml:"set_point"`
	P        *ParamConfig `yaml:"p"`
	I        *ParamConfig `yaml:"i"`
	D        *ParamConfig `yaml:"d"`
	Enabled  *ParamConfig `yaml:"enabled"`
}

// ParamConfig binds one parameter: a constant (value), an in-process value that
// commands and the autotuner can change (value + writable), or a modbus register.
type ParamConfig struct {
	Value    float64 `yaml:"value"`
	Writable bool    `yaml:"writable"`
	Register string  `yaml:"register"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.Modbus.Enabled() {
		c.Modbus.ApplyDefaults()
	}
	if c.Telemetry.Interval <= 0 {
		c.Telemetry.Interval = 60 * time.Second
	}

	for i := range c.Loops {
		l := &c.Loops[i]
		if l.Windup == nil && !l.DisableWindup {
			w := DefaultWindup
			l.Windup = &w
		}
		if l.DisableWindup {
			l.Windup = nil
		}
		if l.Maximum == nil {
			m := DefaultMaximum
			l.Maximum = &m
		}
		if l.Precision == nil {
			p := DefaultPrecision
			l.Precision = &p
		}
		if l.Round == "" {
			l.Round = string(numeric.RoundNearest)
		}
		if l.Source.Interval <= 0 {
			l.Source.Interval = DefaultPollInterval
		}
		if l.Source.Type == "zwave" && l.Source.Property == "" {
			l.Source.Property = "Air temperature"
		}
		if l.Sink.Type == "" {
			l.Sink.Type = "log"
		}
		if l.Sink.Retries <= 0 {
			l.Sink.Retries = 3
		}
		if l.Sink.RetryDelay <= 0 {
			l.Sink.RetryDelay = 500 * time.Millisecond
		}

		// gains and enabled live in memory unless bound elsewhere
		for _, p := range []**ParamConfig{&l.Params.P, &l.Params.I, &l.Params.D} {
			if *p == nil {
				*p = &ParamConfig{Writable: true}
			}
		}
		if l.Params.Enabled == nil {
			l.Params.Enabled = &ParamConfig{Value: 1, Writable: true}
		}
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Modbus.Enabled() {
		if err := c.Modbus.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	seen := map[string]bool{}
	for i, l := range c.Loops {
		where := fmt.Sprintf("loops[%d]", i)
		if l.Name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", where))
		} else {
			where = fmt.Sprintf("loop %q", l.Name)
			if seen[l.Name] {
				errs = append(errs, fmt.Errorf("%s: duplicate name", where))
			}
			seen[l.Name] = true
		}

		if l.Windup != nil && *l.Windup < 0 {
			errs = append(errs, fmt.Errorf("%s: windup must be >= 0", where))
		}
		if l.SampleTime < 0 {
			errs = append(errs, fmt.Errorf("%s: sample_time must be >= 0", where))
		}
		if _, err := numeric.ParseRoundMode(l.Round); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", where, err))
		}
		if l.Params.SetPoint == nil {
			errs = append(errs, fmt.Errorf("%s: params.set_point is required", where))
		}

		for name, p := range map[string]*ParamConfig{
			"set_point": l.Params.SetPoint, "p": l.Params.P, "i": l.Params.I,
			"d": l.Params.D, "enabled": l.Params.Enabled,
		} {
			if p != nil && p.Register != "" {
				errs = append(errs, c.needRegister(where+": params."+name, p.Register))
			}
		}

		errs = append(errs, c.validateSource(where, l.Source), c.validateSink(where, l.Sink))
	}
	return errors.Join(errs...)
}

func (c *Config) validateSource(where string, s SourceConfig) error {
	if s.Min != nil && s.Max != nil && *s.Min > *s.Max {
		return fmt.Errorf("%s: source: min %v above max %v", where, *s.Min, *s.Max)
	}
	if s.MaxStep < 0 {
		return fmt.Errorf("%s: source: max_step must be >= 0", where)
	}
	switch s.Type {
	case "modbus":
		return c.needRegister(where+": source", s.Register)
	case "host":
		if _, err := sysmon.ParseMetric(s.Metric); err != nil {
			return fmt.Errorf("%s: source: %w", where, err)
		}
	case "serial":
		if s.Port == "" {
			return fmt.Errorf("%s: source: serial port is required", where)
		}
	case "zwave":
		if s.Addr == "" || s.NodeID <= 0 {
			return fmt.Errorf("%s: source: zwave addr and node_id are required", where)
		}
	default:
		return fmt.Errorf("%s: unknown source type %q", where, s.Type)
	}
	return nil
}

func (c *Config) validateSink(where string, s SinkConfig) error {
	switch s.Type {
	case "log":
	case "modbus":
		return c.needRegister(where+": sink", s.Register)
	case "phidgets", "phidgets_duty":
		if s.URL == "" {
			return fmt.Errorf("%s: sink: phidgets url is required", where)
		}
	case "can":
		if s.Interface == "" {
			return fmt.Errorf("%s: sink: can interface is required", where)
		}
	case "gpio_duty":
		if s.Chip == "" || s.Line == "" {
			return fmt.Errorf("%s: sink: gpio chip and line are required", where)
		}
	default:
		return fmt.Errorf("%s: unknown sink type %q", where, s.Type)
	}
	return nil
}

func (c *Config) needRegister(where, name string) error {
	if !c.Modbus.Enabled() {
		return fmt.Errorf("%s: register %q needs a modbus connection", where, name)
	}
	if _, err := c.Modbus.Register(name); err != nil {
		return fmt.Errorf("%s: %w", where, err)
	}
	return nil
}
