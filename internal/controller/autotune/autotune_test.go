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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	p, i, d float64
	gains   [3]float64
	resets  int
}

func (e *fakeEngine) Reset()                      { e.resets++; e.p, e.i, e.d = 0, 0, 0 }
func (e *fakeEngine) Terms() (p, i, d float64)    { return e.p, e.i, e.d }
func (e *fakeEngine) SetGains(kp, ki, kd float64) { e.gains = [3]float64{kp, ki, kd} }

type fakeTargets struct {
	resolved bool
	enabled  bool
	writes   [][3]float64
}

func (f *fakeTargets) Resolved() bool { return f.resolved }

func (f *fakeTargets) SetEnabled(on bool) error {
	f.enabled = on
	return nil
}

func (f *fakeTargets) SetGains(kp, ki, kd float64) error {
	f.writes = append(f.writes, [3]float64{kp, ki, kd})
	return nil
}

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return t0.Add(time.Duration(sec * float64(time.Second)))
}

type sample struct {
	sec, feedback float64
}

// oscillation around 50 that crosses at 20s, 40s, 50s and 60s
var oscillation = []sample{
	{10, 45},
	{20, 52},
	{30, 49},
	{40, 47},
	{50, 51},
	{60, 48},
}

func newTuner() (*Tuner, *fakeEngine, *fakeTargets) {
	eng := &fakeEngine{p: 1.5, i: 0.25, d: -0.5, gains: [3]float64{3, 2, 1}}
	tg := &fakeTargets{resolved: true}
	return New(eng, tg), eng, tg
}

func TestTuner_StartPreconditions(t *testing.T) {
	cases := []struct {
		name     string
		feedback float64
		setPoint float64
		resolved bool
	}{
		{"zero set point", 10, 0, true},
		{"targets not resolved", 10, 50, false},
		{"feedback above set point", 60, 50, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tuner, eng, tg := newTuner()
			tg.resolved = tc.resolved

			assert.False(t, tuner.Start(tc.feedback, tc.setPoint, t0))
			assert.False(t, tuner.Active())
			assert.Equal(t, StageIdle, tuner.Stage())
			assert.Empty(t, tg.writes)
			assert.Zero(t, eng.resets)
		})
	}
}

func TestTuner_StartSnapshotsAndZeroes(t *testing.T) {
	tuner, eng, tg := newTuner()

	require.True(t, tuner.Start(30, 50, t0))
	assert.True(t, tuner.Active())
	assert.Equal(t, StageWarming, tuner.Stage())
	assert.Equal(t, Baseline{P: 1.5, I: 0.25, D: -0.5, Feedback: 30}, tuner.Baseline())

	assert.Equal(t, [][3]float64{{0, 0, 0}}, tg.writes)
	assert.Equal(t, [3]float64{0, 0, 0}, eng.gains)
	assert.Equal(t, 1, eng.resets)
	assert.True(t, tg.enabled)

	assert.False(t, tuner.Start(30, 50, at(1)), "second start while active")

	// equal to the set point is allowed
	other, _, _ := newTuner()
	assert.True(t, other.Start(50, 50, t0))
}

func TestTuner_ResultOnlyAfterFourthCrossing(t *testing.T) {
	tuner, _, _ := newTuner()
	require.True(t, tuner.Start(30, 50, t0))

	wantStage := []Stage{StageWarming, StageCooling, StageCooling, StageWarming, StageCooling}
	wantCross := []int{0, 1, 1, 2, 3}
	for n, s := range oscillation[:5] {
		tuner.OnSample(s.feedback, 50, at(s.sec))
		require.True(t, tuner.Active(), "sample %d", n)
		assert.Equal(t, wantStage[n], tuner.Stage(), "sample %d", n)
		assert.Equal(t, wantCross[n], tuner.Crossings(), "sample %d", n)
		_, ok := tuner.LastResult()
		assert.False(t, ok, "sample %d", n)
	}

	last := oscillation[5]
	tuner.OnSample(last.feedback, 50, at(last.sec))
	assert.False(t, tuner.Active())
	assert.Equal(t, StageIdle, tuner.Stage())
	_, ok := tuner.LastResult()
	assert.True(t, ok)
}

func TestTuner_Gains(t *testing.T) {
	tuner, eng, tg := newTuner()
	require.True(t, tuner.Start(30, 50, t0))
	for _, s := range oscillation {
		tuner.OnSample(s.feedback, 50, at(s.sec))
	}

	res, ok := tuner.LastResult()
	require.True(t, ok)

	// overshoots 2,3,1,2 and crossings at 20,40,50,60s
	assert.InDelta(t, 30, res.Pcr, 1e-9)
	assert.InDelta(t, 2.4, res.Kp, 1e-9)
	assert.InDelta(t, 15, res.Ki, 1e-9)
	assert.InDelta(t, 3.75, res.Kd, 1e-9)

	// line through (0, 30) and (42.5, 2) reaches 50 at -850/28
	ot := -850.0 / 28.0
	assert.InDelta(t, 4, res.Estimate.P, 1e-9)
	assert.InDelta(t, ot, res.Estimate.OvershootTime, 1e-9)
	assert.InDelta(t, 2*ot, res.Estimate.I, 1e-9)
	assert.InDelta(t, ot/2, res.Estimate.D, 1e-9)

	require.Len(t, tg.writes, 2)
	assert.Equal(t, [3]float64{res.Kp, res.Ki, res.Kd}, tg.writes[1])
	assert.Equal(t, [3]float64{res.Kp, res.Ki, res.Kd}, eng.gains)
	assert.True(t, tg.enabled)
	assert.Equal(t, 2, eng.resets)
}

// Only the period-based gains are installed; the overshoot estimate is informational.
func TestTuner_FirstEstimateIsReportedNotInstalled(t *testing.T) {
	tuner, eng, _ := newTuner()
	require.True(t, tuner.Start(30, 50, t0))
	for _, s := range oscillation {
		tuner.OnSample(s.feedback, 50, at(s.sec))
	}

	res, _ := tuner.LastResult()
	assert.NotEqual(t, res.Estimate.P, eng.gains[0])
	assert.NotEqual(t, res.Estimate.I, eng.gains[1])
	assert.NotEqual(t, res.Estimate.D, eng.gains[2])
	assert.InDelta(t, 0.6*res.Estimate.P, eng.gains[0], 1e-9)
}

func TestTuner_StopAbortsWithoutWritingGains(t *testing.T) {
	tuner, eng, tg := newTuner()
	require.True(t, tuner.Start(30, 50, t0))
	tuner.OnSample(52, 50, at(20))
	tg.enabled = false

	tuner.Stop()
	assert.False(t, tuner.Active())
	assert.True(t, tg.enabled)
	assert.Equal(t, [][3]float64{{0, 0, 0}}, tg.writes)
	assert.Equal(t, 2, eng.resets)
	_, ok := tuner.LastResult()
	assert.False(t, ok)

	// samples after stop are ignored
	tuner.OnSample(40, 50, at(30))
	assert.Equal(t, StageIdle, tuner.Stage())
}

func TestTuner_BackwardsClockUsesAbsoluteElapsed(t *testing.T) {
	tuner, _, _ := newTuner()
	require.True(t, tuner.Start(30, 50, at(100)))

	tuner.OnSample(52, 50, at(90))
	assert.Equal(t, StageCooling, tuner.Stage())
	assert.Equal(t, 10*time.Second, tuner.StageElapsed(at(80)))
}
