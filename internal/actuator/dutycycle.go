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

package actuator

import (
	"context"
	"math"
	"pidctl/internal/controller/numeric"
	"pidctl/pkg/logger"
	"time"
)

// Relay is an on/off output.
type Relay interface {
	SetRelay(on bool) error
}

type DutyCycleConfig struct {
	Period    time.Duration // one full on/off schedule
	MinOn     time.Duration
	MinOff    time.Duration
	FullScale float64 // loop output that means 100% on
}

func (c *DutyCycleConfig) applyDefaults() {
	if c.Period <= 0 {
		c.Period = time.Hour
	}
	if c.MinOn <= 0 {
		c.MinOn = 5 * time.Minute
	}
	if c.MinOff <= 0 {
		c.MinOff = 2 * time.Minute
	}
	if c.FullScale == 0 {
		c.FullScale = 1
	}
}

// DutyCycle time-proportions the loop output onto a Relay: an output of half of
// FullScale keeps the relay on for half of every Period, split into evenly spaced
// cycles that respect the minimum on and off times.
type DutyCycle struct {
	relay Relay
	conf  DutyCycleConfig

	percent    float64 // requested run % (0–100)
	currentOn  bool
	lastChange time.Time
	updateCh   chan float64

	log *logger.Logger
}

func NewDutyCycle(relay Relay, conf DutyCycleConfig) *DutyCycle {
	conf.applyDefaults()
	return &DutyCycle{
		relay:    relay,
		conf:     conf,
		updateCh: make(chan float64, 1),
		log:      logger.New("DutyCycle"),
	}
}

// Write sets the target duty cycle; the relay follows on the next tick.
func (c *DutyCycle) Write(value float64) error {
	p := numeric.Clamp(100*value/c.conf.FullScale, 0, 100)
	select {
	case c.updateCh <- p:
	default:
		select {
		case <-c.updateCh:
		default:
		}
		c.updateCh <- p
	}
	return nil
}

// Run drives the relay until ctx is cancelled, then switches it off.
func (c *DutyCycle) Run(ctx context.Context) {
	c.log.Info("Running...")
	defer c.log.Info("Stopped")

	ticker := time.NewTicker(c.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.switchRelay(false)
			return

		case p := <-c.updateCh:
			c.log.Debug("new duty cycle: %.1f%%", p)
			c.percent = p
			c.tick(time.Now())

		case now := <-ticker.C:
			c.tick(now)
		}
	}
}

func (c *DutyCycle) tickInterval() time.Duration {
	return max(c.conf.Period/60, time.Second)
}

// tick evaluates whether the relay should be on at this moment
func (c *DutyCycle) tick(now time.Time) {
	on := c.shouldBeOn(now)
	if on == c.currentOn {
		return
	}
	// enforce min ON/OFF durations
	if !c.lastChange.IsZero() {
		elapsed := now.Sub(c.lastChange)
		if c.currentOn && elapsed < c.conf.MinOn {
			return
		}
		if !c.currentOn && elapsed < c.conf.MinOff {
			return
		}
	}
	c.lastChange = now
	c.switchRelay(on)
}

func (c *DutyCycle) shouldBeOn(now time.Time) bool {
	if c.percent <= 0 {
		return false
	}
	if c.percent >= 100 {
		return true
	}

	period := c.conf.Period.Seconds()
	minOn := c.conf.MinOn.Seconds()
	minOff := c.conf.MinOff.Seconds()

	run := math.Max(period*c.percent/100.0, minOn)

	// distribute cycles evenly in the period
	cycles := max(int(math.Floor(period/(run+minOff))), 1)
	cycleLength := period / float64(cycles)
	onLength := run / float64(cycles)

	if onLength < minOn {
		onLength = minOn
		cycleLength = onLength * period / run
	}
	if cycleLength-onLength < minOff {
		cycleLength = onLength + minOff
	}

	// where are we in the current cycle?
	sincePeriod := math.Mod(float64(now.UnixNano())/1e9, period)
	return math.Mod(sincePeriod, cycleLength) < onLength
}

func (c *DutyCycle) switchRelay(on bool) {
	if on == c.currentOn {
		return
	}
	c.currentOn = on
	c.log.Debug("relay -> %v", on)
	if err := c.relay.SetRelay(on); err != nil {
		c.log.Error("relay error: %v", err)
	}
}
