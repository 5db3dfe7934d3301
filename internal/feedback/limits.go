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

package feedback

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Limits rejects implausible readings: values outside [Min, Max], and jumps
// larger than MaxStep from the last accepted value within StepWindow.
// Zero or nil fields disable the matching check.
type Limits struct {
	Min        *float64
	Max        *float64
	MaxStep    float64
	StepWindow time.Duration
}

func (l Limits) enabled() bool {
	return l.Min != nil || l.Max != nil || l.MaxStep > 0
}

type checkedReader struct {
	reader Reader
	limits Limits
	clock  func() time.Time

	last     float64
	lastTime time.Time
	hasLast  bool
}

// Checked wraps r so that readings violating l are returned as errors.
func Checked(r Reader, l Limits) Reader {
	if !l.enabled() {
		return r
	}
	if l.StepWindow <= 0 {
		l.StepWindow = 8 * time.Minute
	}
	return &checkedReader{reader: r, limits: l, clock: time.Now}
}

func (c *checkedReader) Read(ctx context.Context) (float64, error) {
	v, err := c.reader.Read(ctx)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("reading %v is not finite", v)
	}
	if c.limits.Min != nil && v < *c.limits.Min {
		return 0, fmt.Errorf("reading %.3f below minimum %.3f", v, *c.limits.Min)
	}
	if c.limits.Max != nil && v > *c.limits.Max {
		return 0, fmt.Errorf("reading %.3f above maximum %.3f", v, *c.limits.Max)
	}

	now := c.clock()
	if c.hasLast && c.limits.MaxStep > 0 {
		dt := now.Sub(c.lastTime)
		if delta := math.Abs(v - c.last); dt < c.limits.StepWindow && delta > c.limits.MaxStep {
			return 0, fmt.Errorf("reading changed too fast: %.3f in %v", delta, dt.Truncate(time.Second))
		}
	}
	c.last, c.lastTime, c.hasLast = v, now, true
	return v, nil
}
