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

package main

import (
	"context"
	"pidctl/internal/actuator"
	"pidctl/internal/config"
	"pidctl/internal/controller/params"
	"pidctl/internal/feedback"
	"pidctl/pkg/eventbus"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParam(t *testing.T) {
	tg, err := buildParam(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, tg)

	tg, err = buildParam(&config.ParamConfig{Value: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, params.Static(3), tg)

	tg, err = buildParam(&config.ParamConfig{Value: 3, Writable: true}, nil)
	require.NoError(t, err)
	assert.True(t, tg.Writable())

	_, err = buildParam(&config.ParamConfig{Register: "kp"}, nil)
	assert.ErrorIs(t, err, errNoModbus)
}

func TestBuildLoop_LogSink(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()

	maximum, precision := 100.0, 1
	lc := config.LoopConfig{
		Name:   "sim",
		Source: config.SourceConfig{Type: "host", Metric: "cpu_temp", Interval: time.Second},
		Sink:   config.SinkConfig{Type: "log"},
		Params: config.ParamsConfig{
			SetPoint: &config.ParamConfig{Value: 60},
			P:        &config.ParamConfig{Value: 2, Writable: true},
			I:        &config.ParamConfig{Writable: true},
			D:        &config.ParamConfig{Writable: true},
			Enabled:  &config.ParamConfig{Value: 1, Writable: true},
		},
		Maximum:   &maximum,
		Precision: &precision,
		Round:     "round",
	}

	l, err := buildLoop(context.Background(), lc, nil, bus)
	require.NoError(t, err)
	defer l.close()

	require.Len(t, l.runners, 2)
	assert.IsType(t, &feedback.Poller{}, l.runners[0])
	assert.Equal(t, "sim", l.controller.Name())
}

func TestBuildLoop_Errors(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()

	lc := config.LoopConfig{
		Name:   "boiler",
		Source: config.SourceConfig{Type: "modbus", Register: "supply"},
		Params: config.ParamsConfig{SetPoint: &config.ParamConfig{Value: 1}},
	}
	_, err := buildLoop(context.Background(), lc, nil, bus)
	assert.ErrorIs(t, err, errNoModbus)
	assert.ErrorContains(t, err, `loop "boiler"`)
}

func TestBuildSink_DutyCycleAddsRunner(t *testing.T) {
	out := &loop{}
	lc := config.LoopConfig{
		Name: "pump",
		Sink: config.SinkConfig{Type: "phidgets_duty", URL: "http://127.0.0.1:1", Period: time.Hour},
	}
	sink, err := buildSink(context.Background(), lc, nil, out)
	require.NoError(t, err)
	assert.IsType(t, &actuator.DutyCycle{}, sink)
	assert.Len(t, out.runners, 1)
}

func TestBuildSource_ZWave(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()

	lc := config.LoopConfig{
		Name:   "hall",
		Source: config.SourceConfig{Type: "zwave", Addr: "ws://127.0.0.1:3000", NodeID: 7, Property: "Air temperature"},
	}
	src, err := buildSource(lc, nil, bus)
	require.NoError(t, err)
	assert.IsType(t, &feedback.ZWaveSource{}, src)
}
