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

package controller

import (
	"context"
	"errors"
	"net/http"
	"pidctl/internal/controller/autotune"
	"pidctl/internal/controller/numeric"
	"pidctl/internal/controller/params"
	"pidctl/internal/controller/pid"
	"pidctl/internal/events"
	"pidctl/pkg/eventbus"
	"pidctl/pkg/logger"
	"sync/atomic"
	"time"
)

const (
	ModePID      = "pid"
	ModeRelay    = "relay"
	ModeDisabled = "disabled"
)

var ErrQueueFull = errors.New("command queue is full")

// Sink receives the scaled output of a loop.
type Sink interface {
	Write(value float64) error
}

// Settings are the fixed, per-loop options.
type Settings struct {
	Name       string
	Windup     *float64 // nil disables the integral clamp
	SampleTime time.Duration
	Invert     bool
	Minimum    float64
	Maximum    float64
	Precision  int
	Round      numeric.RoundMode
}

// Controller runs one control loop. Everything except the published state
// is owned by the Run goroutine.
type Controller struct {
	settings Settings
	targets  *params.Set
	sink     Sink
	bus      *eventbus.Bus
	log      *logger.Logger
	clock    func() time.Time

	engine *pid.Engine
	tuner  *autotune.Tuner

	commands chan events.Command
	state    atomic.Pointer[events.LoopState]
	clients  *clientSet
	handler  http.Handler
	history  *history

	// previous reset triggers
	hasPrev     bool
	prevSP      float64
	prevEnabled bool
	prevInvert  bool

	feedback    float64
	hasFeedback bool
	raw         float64
	output      float64
	mode        string
	sinkErr     error
}

func New(settings Settings, targets *params.Set, sink Sink, bus *eventbus.Bus) *Controller {
	log := logger.New("Loop").Sub(settings.Name)

	engine := pid.New(0, 0, 0).WithLogger(log.Sub("pid"))
	if settings.Windup != nil {
		engine.WithWindup(*settings.Windup)
	}
	engine.WithSampleTime(settings.SampleTime)

	c := &Controller{
		settings: settings,
		targets:  targets,
		sink:     sink,
		bus:      bus,
		log:      log,
		clock:    time.Now,
		engine:   engine,
		tuner:    autotune.New(engine, targets).WithLogger(log.Sub("autotune")),
		commands: make(chan events.Command, 8),
		clients:  newClientSet(),
		history:  newHistory(),
		output:   settings.Minimum,
		mode:     ModeDisabled,
	}
	c.handler = c.buildHTTPHandler()
	c.state.Store(&events.LoopState{Loop: settings.Name, Mode: ModeDisabled, Output: settings.Minimum})
	return c
}

func (c *Controller) Name() string {
	return c.settings.Name
}

// Submit queues a command for the Run goroutine.
func (c *Controller) Submit(cmd events.Command) error {
	select {
	case c.commands <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// State returns the last published snapshot.
func (c *Controller) State() events.LoopState {
	return *c.state.Load()
}

func (c *Controller) GetData() map[string]float64 {
	st := c.State()
	if st.Time.IsZero() {
		return map[string]float64{}
	}
	return map[string]float64{
		"feedback":   st.Feedback,
		"set_point":  st.SetPoint,
		"output":     st.Output,
		"raw_output": st.RawOutput,
		"p_term":     st.PTerm,
		"i_term":     st.ITerm,
		"d_term":     st.DTerm,
		"kp":         st.Kp,
		"ki":         st.Ki,
		"kd":         st.Kd,
		"enabled":    boolToFloat(st.Enabled),
		"tuning":     boolToFloat(st.Tuning),
	}
}

func (c *Controller) Run(ctx context.Context) {
	c.log.Info("Running...")
	defer c.log.Info("Stopped")
	defer c.clients.closeAll()

	feedbackEvents, _ := c.bus.Subscribe(ctx, events.TopicFeedback(c.settings.Name), true)
	commandEvents, _ := c.bus.Subscribe(ctx, events.TopicCommand(c.settings.Name), false)

	for {
		select {
		case ev, ok := <-feedbackEvents:
			if !ok {
				feedbackEvents = nil
				continue
			}
			c.handleFeedback(ev.(events.FeedbackUpdate))

		case ev, ok := <-commandEvents:
			if !ok {
				commandEvents = nil
				continue
			}
			c.handleCommand(ev.(events.Command))

		case cmd := <-c.commands:
			c.handleCommand(cmd)

		case <-ctx.Done():
			if c.tuner.Active() {
				c.log.Warn("shutting down during autotune, aborting run")
				c.tuner.Stop()
			}
			return
		}
	}
}

func (c *Controller) handleFeedback(ev events.FeedbackUpdate) {
	c.feedback = ev.Value
	c.hasFeedback = true

	vals, err := c.targets.Read()
	if err != nil {
		c.log.Warn("parameter read: %v", err)
	}

	kp, ki, kd := vals.P, vals.I, vals.D
	if c.settings.Invert {
		kp, ki, kd = -kp, -ki, -kd
	}

	if c.hasPrev && (vals.SetPoint != c.prevSP || vals.Enabled != c.prevEnabled || c.settings.Invert != c.prevInvert) {
		c.log.Debug("reset trigger: set point %.3f -> %.3f, enabled %v -> %v",
			c.prevSP, vals.SetPoint, c.prevEnabled, vals.Enabled)
		c.engine.Reset()
	}
	c.hasPrev = true
	c.prevSP, c.prevEnabled, c.prevInvert = vals.SetPoint, vals.Enabled, c.settings.Invert

	c.engine.SetGains(kp, ki, kd)
	c.engine.SetSetPoint(vals.SetPoint)

	switch {
	case !vals.Enabled:
		c.mode = ModeDisabled
		c.raw = 0
		c.output = c.settings.Minimum

	case kp == 0 && ki == 0 && kd == 0:
		c.mode = ModeRelay
		c.raw = relay(ev.Value, vals.SetPoint, c.settings.Invert)
		c.output = c.scale(c.raw)

	default:
		c.mode = ModePID
		c.raw, _ = c.engine.Update(ev.Value, ev.Time)
		c.output = c.scale(c.raw)
	}

	if c.tuner.Active() {
		c.tuner.OnSample(ev.Value, vals.SetPoint, ev.Time)
	}

	c.sinkErr = c.sink.Write(c.output)
	if c.sinkErr != nil {
		c.log.Error("sink write: %v", c.sinkErr)
	}

	c.log.Debug("feedback=%.3f, set point=%.3f, mode=%s, raw=%.2f, output=%v",
		ev.Value, vals.SetPoint, c.mode, c.raw, c.output)
	c.publish(vals, ev.Time)
}

func (c *Controller) handleCommand(cmd events.Command) {
	c.log.Info("command: %s %v", cmd.Name, cmd.Value)
	var err error

	switch cmd.Name {
	case events.CmdSetPoint:
		err = c.targets.SetSetPoint(cmd.Value)

	case events.CmdReset:
		c.engine.Reset()

	case events.CmdAutotuneStart:
		if !c.hasFeedback {
			c.log.Warn("autotune: no feedback received yet")
			break
		}
		vals, rerr := c.targets.Read()
		if rerr != nil {
			c.log.Warn("parameter read: %v", rerr)
		}
		if !c.tuner.Start(c.feedback, vals.SetPoint, c.clock()) {
			c.log.Warn("autotune not started: needs a non-zero set point, writable P, I, D and enabled targets, and feedback at or below the set point")
		}

	case events.CmdAutotuneStop:
		if c.tuner.Active() {
			c.tuner.Stop()
		}

	case events.CmdEnable:
		err = c.targets.SetEnabled(true)

	case events.CmdDisable:
		if c.tuner.Active() {
			c.tuner.Stop()
		}
		err = c.targets.SetEnabled(false)

	default:
		c.log.Warn("unknown command %q", cmd.Name)
		return
	}

	if err != nil {
		c.log.Error("command %s: %v", cmd.Name, err)
	}

	vals, _ := c.targets.Read()
	c.publish(vals, c.clock())
}

func (c *Controller) publish(vals params.Values, now time.Time) {
	p, i, d := c.engine.Terms()
	kp, ki, kd := c.engine.Gains()
	st := &events.LoopState{
		Loop:      c.settings.Name,
		Time:      now,
		Mode:      c.mode,
		Feedback:  c.feedback,
		SetPoint:  vals.SetPoint,
		RawOutput: c.raw,
		Output:    c.output,
		PTerm:     p,
		ITerm:     i,
		DTerm:     d,
		Kp:        kp,
		Ki:        ki,
		Kd:        kd,
		Enabled:   vals.Enabled,
		Inverted:  c.settings.Invert,
		Tuning:    c.tuner.Active(),
		Stage:     c.tuner.Stage().String(),
		Crossings: c.tuner.Crossings(),
	}
	if res, ok := c.tuner.LastResult(); ok {
		st.LastTune = &res
	}
	if c.sinkErr != nil {
		st.SinkError = c.sinkErr.Error()
	}

	c.state.Store(st)
	if c.hasFeedback {
		c.history.record(HistoryEntry{Time: now, Feedback: c.feedback, SetPoint: vals.SetPoint, Output: c.output})
	}
	c.bus.Publish(events.TopicState(c.settings.Name), *st)
	c.broadcast(*st)
}

// scale maps a [0,100] output onto [Minimum, Maximum] and rounds it.
func (c *Controller) scale(raw float64) float64 {
	lo, hi := c.settings.Minimum, c.settings.Maximum
	frac := raw / 100
	if lo > hi {
		frac = 0
	}
	return numeric.Round(lo+(hi-lo)*frac, c.settings.Precision, c.settings.Round)
}

// relay is the bang-bang drive used when every gain is zero, including while tuning.
func relay(feedback, setPoint float64, invert bool) float64 {
	on, off := pid.OutputMax, pid.OutputMin
	if invert {
		on, off = off, on
	}
	if feedback >= setPoint {
		return off
	}
	return on
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
