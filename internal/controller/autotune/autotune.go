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

package autotune

import (
	"pidctl/internal/controller/numeric"
	"pidctl/pkg/logger"
	"time"
)

// crossings needed before gains are computed
const requiredCrossings = 4

// Engine is the part of the PID engine the tuner drives.
type Engine interface {
	Reset()
	Terms() (p, i, d float64)
	SetGains(kp, ki, kd float64)
}

// Targets are the host-side places that hold the loop's gains and enabled flag.
type Targets interface {
	// Resolved reports whether exactly one P, I, D and enabled target exist.
	Resolved() bool
	SetEnabled(on bool) error
	SetGains(kp, ki, kd float64) error
}

type Stage int

const (
	StageIdle Stage = iota
	StageWarming
	StageCooling
	StageResult
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageWarming:
		return "warming"
	case StageCooling:
		return "cooling"
	case StageResult:
		return "result"
	}
	return "unknown"
}

// Baseline is the engine state captured when a run starts.
type Baseline struct {
	P        float64 `json:"p"`
	I        float64 `json:"i"`
	D        float64 `json:"d"`
	Feedback float64 `json:"feedback"`
}

// Estimate is the overshoot/extrapolation estimate. It is reported but never installed.
type Estimate struct {
	P             float64 `json:"p"`
	I             float64 `json:"i"`
	D             float64 `json:"d"`
	OvershootTime float64 `json:"overshoot_time"`
}

// Result holds the gains installed at the end of a run.
type Result struct {
	Kp       float64  `json:"kp"`
	Ki       float64  `json:"ki"`
	Kd       float64  `json:"kd"`
	Pcr      float64  `json:"pcr"` // ultimate period, seconds
	Estimate Estimate `json:"estimate"`
}

// run only exists between Start and Stop.
type run struct {
	stage         Stage
	startTime     time.Time
	stageTime     time.Time
	startFeedback float64
	crossTimes    []float64 // seconds since startTime
	overshoots    []float64 // |feedback - set point| at each crossing
	result        *Result
}

// Tuner is a relay-feedback autotuner for one Engine. Like the Engine it is
// driven by a single control loop and is not safe for concurrent use.
type Tuner struct {
	engine  Engine
	targets Targets
	log     *logger.Logger

	run        *run
	baseline   Baseline
	lastResult *Result
}

func New(engine Engine, targets Targets) *Tuner {
	return &Tuner{
		engine:  engine,
		targets: targets,
		log:     logger.New("Autotune"),
	}
}

func (t *Tuner) WithLogger(log *logger.Logger) *Tuner {
	t.log = log
	return t
}

// Active reports whether a tuning run is in progress.
func (t *Tuner) Active() bool {
	return t.run != nil
}

func (t *Tuner) Stage() Stage {
	if t.run == nil {
		return StageIdle
	}
	return t.run.stage
}

// Crossings returns how many set point crossings the current run has seen.
func (t *Tuner) Crossings() int {
	if t.run == nil {
		return 0
	}
	return len(t.run.crossTimes)
}

// StageElapsed is the time spent in the current stage as of now.
func (t *Tuner) StageElapsed(now time.Time) time.Duration {
	if t.run == nil {
		return 0
	}
	return absDuration(now.Sub(t.run.stageTime))
}

func (t *Tuner) Baseline() Baseline {
	return t.baseline
}

// LastResult returns the result of the last completed run, if any.
func (t *Tuner) LastResult() (Result, bool) {
	if t.lastResult == nil {
		return Result{}, false
	}
	return *t.lastResult, true
}

// Start begins a run. It does nothing and returns false when setPoint is 0,
// the targets are not resolved, feedback is above setPoint or a run is already active.
func (t *Tuner) Start(feedback, setPoint float64, now time.Time) bool {
	switch {
	case t.run != nil:
		t.log.Debug("start ignored: already tuning")
		return false
	case setPoint == 0:
		t.log.Debug("start ignored: set point is 0")
		return false
	case !t.targets.Resolved():
		t.log.Debug("start ignored: P, I, D and enabled targets are not resolved")
		return false
	case feedback > setPoint:
		t.log.Debug("start ignored: feedback %.3f above set point %.3f", feedback, setPoint)
		return false
	}

	p, i, d := t.engine.Terms()
	t.baseline = Baseline{P: p, I: i, D: d, Feedback: feedback}

	if err := t.targets.SetGains(0, 0, 0); err != nil {
		t.log.Warn("failed to zero gain targets: %v", err)
	}
	t.engine.SetGains(0, 0, 0)
	t.engine.Reset()
	if err := t.targets.SetEnabled(true); err != nil {
		t.log.Warn("failed to enable loop: %v", err)
	}

	t.run = &run{
		stage:         StageWarming,
		startTime:     now,
		stageTime:     now,
		startFeedback: feedback,
	}
	t.log.Info("started: feedback=%.3f, set point=%.3f", feedback, setPoint)
	return true
}

// OnSample advances the stage machine with one feedback sample. While tuning the
// host drives the plant as a relay: full output below the set point, none above.
func (t *Tuner) OnSample(feedback, setPoint float64, now time.Time) {
	r := t.run
	if r == nil {
		return
	}

	switch r.stage {
	case StageWarming:
		if feedback >= setPoint {
			t.cross(feedback, setPoint, now)
			t.enter(StageCooling, now)
		}

	case StageCooling:
		target := setPoint - numeric.Mean(r.overshoots)
		if feedback <= target {
			t.cross(feedback, setPoint, now)
			t.enter(StageWarming, now)
		}
		if len(r.overshoots) >= requiredCrossings {
			t.enter(StageResult, now)
		}

	case StageIdle, StageResult:
	}

	if r.stage == StageResult {
		res := t.finalize(setPoint)
		r.result = &res
		t.Stop()
	}
}

// Stop ends the run. A completed run writes its gains back to the targets and the
// engine; an aborted one only re-enables normal control.
func (t *Tuner) Stop() {
	if err := t.targets.SetEnabled(true); err != nil {
		t.log.Warn("failed to enable loop: %v", err)
	}
	t.engine.Reset()

	r := t.run
	t.run = nil
	if r == nil || r.result == nil {
		t.log.Info("stopped without result")
		return
	}

	res := *r.result
	if err := t.targets.SetGains(res.Kp, res.Ki, res.Kd); err != nil {
		t.log.Error("failed to write tuned gains: %v", err)
	}
	t.engine.SetGains(res.Kp, res.Ki, res.Kd)
	t.lastResult = &res
	t.log.Info("finished: kp=%.4f, ki=%.4f, kd=%.4f (pcr=%.2fs)", res.Kp, res.Ki, res.Kd, res.Pcr)
}

// cross is the only place crossings are recorded.
func (t *Tuner) cross(feedback, setPoint float64, now time.Time) {
	r := t.run
	elapsed := absDuration(now.Sub(r.startTime)).Seconds()
	overshoot := abs(feedback - setPoint)
	r.crossTimes = append(r.crossTimes, elapsed)
	r.overshoots = append(r.overshoots, overshoot)
	t.log.Debug("crossing %d at %.1fs, overshoot=%.3f", len(r.crossTimes), elapsed, overshoot)
}

func (t *Tuner) enter(stage Stage, now time.Time) {
	t.log.Debug("%v -> %v", t.run.stage, stage)
	t.run.stage = stage
	t.run.stageTime = now
}

func (t *Tuner) finalize(setPoint float64) Result {
	r := t.run
	if len(r.crossTimes) != len(r.overshoots) {
		t.log.Fatal("crossing data out of step: %d times, %d overshoots", len(r.crossTimes), len(r.overshoots))
	}

	meanOvershoot := numeric.Mean(r.overshoots)
	meanCross := numeric.Mean(r.crossTimes)

	overshootTime, ok := numeric.SolveLine(0, r.startFeedback, meanCross, meanOvershoot, setPoint)
	if !ok {
		t.log.Warn("approach line is degenerate, overshoot time unknown")
		overshootTime = 0
	}
	est := Estimate{
		P:             2 * meanOvershoot,
		I:             2 * overshootTime,
		D:             overshootTime / 2,
		OvershootTime: overshootTime,
	}

	var periods []float64
	for i := 2; i < len(r.crossTimes); i += 2 {
		periods = append(periods, abs(r.crossTimes[i]-r.crossTimes[i-2]))
	}
	pcr := numeric.Mean(periods)

	return Result{
		Kp:       0.6 * est.P,
		Ki:       0.5 * pcr,
		Kd:       0.125 * pcr,
		Pcr:      pcr,
		Estimate: est,
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
