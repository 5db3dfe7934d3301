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

package pid

import (
	"errors"
	"math"
	"pidctl/internal/controller/numeric"
	"pidctl/pkg/logger"
	"time"
)

const (
	OutputMin = 0.0
	OutputMax = 100.0

	// substituted for a zero time step so the derivative stays finite
	epsilonDelta = 1e-3 // seconds
)

var (
	ErrNegativeWindup     = errors.New("pid: windup bound must be >= 0")
	ErrNegativeSampleTime = errors.New("pid: sample time must be >= 0")
)

// Engine is a PID controller with conditional-integration anti-windup and an
// optional minimum sample interval. Output is always in [OutputMin, OutputMax].
//
// Not safe for concurrent use; one control loop owns one Engine.
type Engine struct {
	kp, ki, kd float64
	setPoint   float64

	windup     float64
	hasWindup  bool
	sampleTime time.Duration // 0 means recompute on every update

	pTerm, iTerm, dTerm float64
	output              float64

	lastInput  float64
	lastOutput float64
	hasLast    bool // lastInput and lastOutput are set
	lastTime   time.Time
	hasTime    bool

	log *logger.Logger
}

// Snapshot is a copy of the engine state for diagnostics.
type Snapshot struct {
	Kp         float64       `json:"kp"`
	Ki         float64       `json:"ki"`
	Kd         float64       `json:"kd"`
	SetPoint   float64       `json:"set_point"`
	Windup     *float64      `json:"windup,omitempty"`
	SampleTime time.Duration `json:"sample_time"`
	PTerm      float64       `json:"p_term"`
	ITerm      float64       `json:"i_term"`
	DTerm      float64       `json:"d_term"`
	Output     float64       `json:"output"`
}

func New(kp, ki, kd float64) *Engine {
	return &Engine{
		kp:  kp,
		ki:  ki,
		kd:  kd,
		log: logger.New("PID"),
	}
}

// --- Fluent "With" setters ---

// WithWindup clamps the integral term to [-w, w]. Negative w is ignored and logged.
func (e *Engine) WithWindup(w float64) *Engine {
	if err := e.SetWindup(w); err != nil {
		e.log.Error("%v (got %v)", err, w)
	}
	return e
}

func (e *Engine) WithSampleTime(d time.Duration) *Engine {
	if err := e.SetSampleTime(d); err != nil {
		e.log.Error("%v (got %v)", err, d)
	}
	return e
}

func (e *Engine) WithSetPoint(v float64) *Engine {
	e.setPoint = v
	return e
}

func (e *Engine) WithLogger(log *logger.Logger) *Engine {
	e.log = log
	return e
}

// --- Mutators ---

// Reset forgets the accumulated terms and the previous sample. Gains, set point,
// windup and sample time are kept.
func (e *Engine) Reset() {
	e.pTerm, e.iTerm, e.dTerm = 0, 0, 0
	e.lastInput, e.lastOutput = 0, 0
	e.hasLast = false
	e.lastTime = time.Time{}
	e.hasTime = false
}

func (e *Engine) SetGains(kp, ki, kd float64) {
	e.kp, e.ki, e.kd = kp, ki, kd
}

func (e *Engine) SetSetPoint(v float64) {
	e.setPoint = v
}

func (e *Engine) SetWindup(w float64) error {
	if w < 0 || math.IsNaN(w) {
		return ErrNegativeWindup
	}
	e.windup = w
	e.hasWindup = true
	return nil
}

// ClearWindup removes the integral clamp.
func (e *Engine) ClearWindup() {
	e.windup = 0
	e.hasWindup = false
}

// SetSampleTime sets the minimum interval between recomputations; 0 disables the gate.
func (e *Engine) SetSampleTime(d time.Duration) error {
	if d < 0 {
		return ErrNegativeSampleTime
	}
	e.sampleTime = d
	return nil
}

// Update feeds one feedback sample taken at now. It returns the current output and
// whether it was recomputed: samples older than the previous one are ignored, and
// samples inside the sample-time window return the previous output.
func (e *Engine) Update(feedback float64, now time.Time) (float64, bool) {
	if !e.hasTime {
		e.lastTime = now
		e.hasTime = true
	}

	delta := now.Sub(e.lastTime)
	if delta < 0 {
		e.log.Debug("clock went backwards by %v, sample ignored", -delta)
		return e.output, false
	}
	dt := delta.Seconds()
	if dt == 0 {
		dt = epsilonDelta
	}

	if e.sampleTime > 0 && e.hasLast && delta < e.sampleTime {
		return e.output, false
	}

	err := e.setPoint - feedback
	lastInput := e.setPoint
	if e.hasLast {
		lastInput = e.lastInput
	}
	lastErr := e.setPoint - lastInput
	deltaErr := err - lastErr

	e.pTerm = e.kp * err

	// conditional integration: hold the integral while the output sits on a rail
	if !e.hasLast || (e.lastOutput > OutputMin && e.lastOutput < OutputMax) {
		e.iTerm += e.ki * err * dt
	}
	if e.hasWindup {
		e.iTerm = numeric.Clamp(e.iTerm, -e.windup, e.windup)
	}

	e.dTerm = e.kd * deltaErr / dt

	sum := e.pTerm + e.iTerm + e.dTerm
	if math.IsNaN(sum) {
		sum = 0
	}
	e.output = numeric.Clamp(sum, OutputMin, OutputMax)

	e.lastOutput = e.output
	e.lastInput = feedback
	e.hasLast = true
	e.lastTime = now

	e.log.Debug("dt=%.3fs, err=%.3f, p=%.3f, i=%.3f, d=%.3f, output=%.2f",
		dt, err, e.pTerm, e.iTerm, e.dTerm, e.output)
	return e.output, true
}

// --- Accessors ---

func (e *Engine) Terms() (p, i, d float64) {
	return e.pTerm, e.iTerm, e.dTerm
}

func (e *Engine) Output() float64 {
	return e.output
}

func (e *Engine) Gains() (kp, ki, kd float64) {
	return e.kp, e.ki, e.kd
}

func (e *Engine) SetPoint() float64 {
	return e.setPoint
}

// Windup returns the integral bound and whether one is set.
func (e *Engine) Windup() (float64, bool) {
	return e.windup, e.hasWindup
}

func (e *Engine) SampleTime() time.Duration {
	return e.sampleTime
}

func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Kp:         e.kp,
		Ki:         e.ki,
		Kd:         e.kd,
		SetPoint:   e.setPoint,
		SampleTime: e.sampleTime,
		PTerm:      e.pTerm,
		ITerm:      e.iTerm,
		DTerm:      e.dTerm,
		Output:     e.output,
	}
	if e.hasWindup {
		w := e.windup
		s.Windup = &w
	}
	return s
}
