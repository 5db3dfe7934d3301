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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pidctl.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

const fullConfig = `
http_addr: ":9000"
modbus:
  connection:
    host: 192.168.1.20
  registers:
    supply_temp: {address: 100, data_type: int16, scale: 0.1}
    valve:       {address: 200, data_type: uint16, scale: 0.01, writable: true}
    kp:          {address: 300, data_type: float32, writable: true}
telemetry:
  emoncms_addr: http://emon.local
  emoncms_apikey: secret
loops:
  - name: boiler
    source: {type: modbus, register: supply_temp, interval: 2s}
    sink: {type: modbus, register: valve}
    params:
      set_point: {value: 45, writable: true}
      p: {register: kp}
      i: {value: 0.05, writable: true}
    sample_time: 10s
    maximum: 100
    precision: 0
    round: floor
  - name: fan
    source: {type: host, metric: cpu_temp, min: 0, max: 120, max_step: 20}
    sink: {type: gpio_duty, chip: gpiochip0, line: GPIO18, period: 10m}
    params:
      set_point: {value: 60}
    invert: true
    disable_windup: true
`

func TestLoad_Full(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, fullConfig))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, 502, cfg.Modbus.Connection.Port)
	assert.Equal(t, time.Minute, cfg.Telemetry.Interval)
	require.Len(t, cfg.Loops, 2)

	boiler := cfg.Loops[0]
	assert.Equal(t, 2*time.Second, boiler.Source.Interval)
	assert.Equal(t, 10*time.Second, boiler.SampleTime)
	require.NotNil(t, boiler.Windup)
	assert.Equal(t, DefaultWindup, *boiler.Windup)
	assert.Equal(t, 100.0, *boiler.Maximum)
	assert.Equal(t, 0, *boiler.Precision)
	assert.Equal(t, "floor", boiler.Round)
	assert.Equal(t, "kp", boiler.Params.P.Register)
	assert.Equal(t, &ParamConfig{Writable: true}, boiler.Params.D)
	assert.Equal(t, &ParamConfig{Value: 1, Writable: true}, boiler.Params.Enabled)
	assert.Equal(t, 3, boiler.Sink.Retries)

	fan := cfg.Loops[1]
	assert.Nil(t, fan.Windup)
	assert.True(t, fan.Invert)
	assert.Equal(t, DefaultPollInterval, fan.Source.Interval)
	assert.Equal(t, DefaultMaximum, *fan.Maximum)
	assert.Equal(t, DefaultPrecision, *fan.Precision)
	assert.Equal(t, "round", fan.Round)
	assert.Equal(t, 10*time.Minute, fan.Sink.Period)
	require.NotNil(t, fan.Source.Max)
	assert.Equal(t, 120.0, *fan.Source.Max)
	assert.Equal(t, 20.0, fan.Source.MaxStep)
}

func TestLoad_SinkDefaultsToLog(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, `
loops:
  - name: sim
    source: {type: serial, port: /dev/ttyUSB0}
    params: {set_point: {value: 1}}
`))
	require.NoError(t, err)
	assert.Equal(t, "log", cfg.Loops[0].Sink.Type)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLoad_ZWavePropertyDefault(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, `
loops:
  - name: hall
    source: {type: zwave, addr: "ws://127.0.0.1:3000", node_id: 7}
    params: {set_point: {value: 21}}
`))
	require.NoError(t, err)
	assert.Equal(t, "Air temperature", cfg.Loops[0].Source.Property)
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", "loops:\n  - source: {type: serial, port: x}\n    params: {set_point: {value: 1}}\n", "name is required"},
		{"duplicate name", "loops:\n  - {name: a, source: {type: serial, port: x}, params: {set_point: {value: 1}}}\n  - {name: a, source: {type: serial, port: x}, params: {set_point: {value: 1}}}\n", "duplicate name"},
		{"negative windup", "loops:\n  - {name: a, windup: -1, source: {type: serial, port: x}, params: {set_point: {value: 1}}}\n", "windup must be >= 0"},
		{"bad round", "loops:\n  - {name: a, round: up, source: {type: serial, port: x}, params: {set_point: {value: 1}}}\n", "unknown round mode"},
		{"no set point", "loops:\n  - {name: a, source: {type: serial, port: x}}\n", "params.set_point is required"},
		{"unknown source", "loops:\n  - {name: a, source: {type: mqtt}, params: {set_point: {value: 1}}}\n", "unknown source type"},
		{"bad metric", "loops:\n  - {name: a, source: {type: host, metric: gpu}, params: {set_point: {value: 1}}}\n", "source"},
		{"register without modbus", "loops:\n  - {name: a, source: {type: modbus, register: t}, params: {set_point: {value: 1}}}\n", "needs a modbus connection"},
		{"source min above max", "loops:\n  - {name: a, source: {type: host, metric: cpu_temp, min: 90, max: 10}, params: {set_point: {value: 1}}}\n", "min 90 above max 10"},
		{"zwave without node", "loops:\n  - {name: a, source: {type: zwave, addr: 'ws://z:3000'}, params: {set_point: {value: 1}}}\n", "zwave addr and node_id are required"},
		{"unknown sink", "loops:\n  - {name: a, source: {type: serial, port: x}, sink: {type: smoke}, params: {set_point: {value: 1}}}\n", "unknown sink type"},
		{"can without interface", "loops:\n  - {name: a, source: {type: serial, port: x}, sink: {type: can}, params: {set_point: {value: 1}}}\n", "can interface is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.ErrorContains(t, err, "read config")
}
