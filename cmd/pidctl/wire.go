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
	"errors"
	"fmt"
	"pidctl/internal/actuator"
	"pidctl/internal/config"
	"pidctl/internal/controller"
	"pidctl/internal/controller/numeric"
	"pidctl/internal/controller/params"
	"pidctl/internal/feedback"
	"pidctl/pkg/eventbus"
	"pidctl/pkg/modbus"
	"pidctl/pkg/service"
	"pidctl/pkg/sysmon"
	"time"
)

var errNoModbus = errors.New("no modbus connection configured")

// loop is everything built for one configured control loop.
type loop struct {
	controller *controller.Controller
	runners    []service.Runnable
	cleanup    []func() error
}

func buildLoop(ctx context.Context, lc config.LoopConfig, regs *modbus.Client, bus *eventbus.Bus) (*loop, error) {
	set, err := buildParams(lc.Params, regs)
	if err != nil {
		return nil, fmt.Errorf("loop %q: %w", lc.Name, err)
	}
	source, err := buildSource(lc, regs, bus)
	if err != nil {
		return nil, fmt.Errorf("loop %q: %w", lc.Name, err)
	}
	out := &loop{runners: []service.Runnable{source}}
	sink, err := buildSink(ctx, lc, regs, out)
	if err != nil {
		out.close()
		return nil, fmt.Errorf("loop %q: %w", lc.Name, err)
	}

	round, _ := numeric.ParseRoundMode(lc.Round)
	out.controller = controller.New(controller.Settings{
		Name:       lc.Name,
		Windup:     lc.Windup,
		SampleTime: lc.SampleTime,
		Invert:     lc.Invert,
		Minimum:    lc.Minimum,
		Maximum:    *lc.Maximum,
		Precision:  *lc.Precision,
		Round:      round,
	}, set, sink, bus)
	out.runners = append(out.runners, out.controller)
	return out, nil
}

func (l *loop) close() {
	for _, fn := range l.cleanup {
		_ = fn()
	}
}

func buildParams(pc config.ParamsConfig, regs *modbus.Client) (*params.Set, error) {
	var errs []error
	bind := func(name string, c *config.ParamConfig) params.Target {
		t, err := buildParam(c, regs)
		if err != nil {
			errs = append(errs, fmt.Errorf("params.%s: %w", name, err))
		}
		return t
	}
	set := &params.Set{
		SetPoint: bind("set_point", pc.SetPoint),
		P:        bind("p", pc.P),
		I:        bind("i", pc.I),
		D:        bind("d", pc.D),
		Enabled:  bind("enabled", pc.Enabled),
	}
	return set, errors.Join(errs...)
}

func buildParam(c *config.ParamConfig, regs *modbus.Client) (params.Target, error) {
	switch {
	case c == nil:
		return nil, nil
	case c.Register != "":
		if regs == nil {
			return nil, errNoModbus
		}
		return params.NewRegister(regs, c.Register)
	case c.Writable:
		return params.NewMemory(c.Value), nil
	default:
		return params.Static(c.Value), nil
	}
}

func buildSource(lc config.LoopConfig, regs *modbus.Client, bus *eventbus.Bus) (service.Runnable, error) {
	s := lc.Source
	limits := feedback.Limits{Min: s.Min, Max: s.Max, MaxStep: s.MaxStep}
	switch s.Type {
	case "modbus":
		if regs == nil {
			return nil, errNoModbus
		}
		return feedback.NewPoller(lc.Name, feedback.Checked(feedback.NewModbusReader(regs, s.Register), limits), s.Interval, bus), nil
	case "host":
		metric, err := sysmon.ParseMetric(s.Metric)
		if err != nil {
			return nil, err
		}
		return feedback.NewPoller(lc.Name, feedback.Checked(feedback.NewHostReader(metric), limits), s.Interval, bus), nil
	case "serial":
		return feedback.NewSerialSource(lc.Name, s.Port, s.Baud, s.Field, s.Separator, bus), nil
	case "zwave":
		return feedback.NewZWaveSource(lc.Name, s.Addr, s.NodeID, s.Property, bus).WithCommandClass(s.CommandClass), nil
	}
	return nil, fmt.Errorf("unknown source type %q", s.Type)
}

func buildSink(ctx context.Context, lc config.LoopConfig, regs *modbus.Client, out *loop) (controller.Sink, error) {
	s := lc.Sink
	retry := func(sink actuator.Sink) controller.Sink {
		return actuator.NewRetry(sink, s.Retries, s.RetryDelay)
	}
	duty := func(relay actuator.Relay) controller.Sink {
		dc := actuator.NewDutyCycle(relay, actuator.DutyCycleConfig{
			Period:    s.Period,
			MinOn:     s.MinOn,
			MinOff:    s.MinOff,
			FullScale: s.FullScale,
		})
		out.runners = append(out.runners, dc)
		return dc
	}

	switch s.Type {
	case "log":
		return actuator.NewLog(lc.Name), nil

	case "modbus":
		if regs == nil {
			return nil, errNoModbus
		}
		return retry(actuator.NewModbus(regs, s.Register)), nil

	case "phidgets":
		ph := actuator.NewPhidgets(s.URL, lc.Name, s.Channel, s.HubPort)
		if s.Digital {
			ph.AsDigital(s.Threshold)
		}
		return retry(ph), nil

	case "phidgets_duty":
		return duty(actuator.NewPhidgets(s.URL, lc.Name, s.Channel, s.HubPort)), nil

	case "can":
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		c, err := actuator.DialCAN(dialCtx, s.Interface, actuator.CANSignal{
			ID:        s.FrameID,
			Extended:  s.Extended,
			Length:    s.Length,
			StartBit:  s.StartBit,
			BitLength: s.BitLength,
			Factor:    s.Factor,
			Offset:    s.Offset,
		})
		if err != nil {
			return nil, err
		}
		out.cleanup = append(out.cleanup, c.Close)
		return retry(c), nil

	case "gpio_duty":
		relay, err := actuator.OpenGPIORelay(s.Chip, s.Line, s.ActiveLow)
		if err != nil {
			return nil, err
		}
		out.cleanup = append(out.cleanup, relay.Close)
		return duty(relay), nil
	}
	return nil, fmt.Errorf("unknown sink type %q", s.Type)
}
