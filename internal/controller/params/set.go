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

package params

import (
	"errors"
	"fmt"
)

// Values is one read of every parameter of a loop.
type Values struct {
	SetPoint float64
	P, I, D  float64
	Enabled  bool
}

// Set groups the targets of one loop. A nil Enabled target means always enabled.
type Set struct {
	SetPoint Target
	P, I, D  Target
	Enabled  Target
}

// Read fetches every parameter. Failed reads resolve to 0 (enabled to true)
// and are reported together in the returned error.
func (s *Set) Read() (Values, error) {
	var errs []error
	get := func(name string, t Target) float64 {
		if t == nil {
			return 0
		}
		v, err := t.Get()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return 0
		}
		return v
	}

	vals := Values{
		SetPoint: get("set_point", s.SetPoint),
		P:        get("p", s.P),
		I:        get("i", s.I),
		D:        get("d", s.D),
		Enabled:  true,
	}
	if s.Enabled != nil {
		if v, err := s.Enabled.Get(); err != nil {
			errs = append(errs, fmt.Errorf("enabled: %w", err))
		} else {
			vals.Enabled = v != 0
		}
	}
	return vals, errors.Join(errs...)
}

// Resolved reports whether P, I, D and enabled each have a writable target.
func (s *Set) Resolved() bool {
	for _, t := range []Target{s.P, s.I, s.D, s.Enabled} {
		if t == nil || !t.Writable() {
			return false
		}
	}
	return true
}

func (s *Set) SetEnabled(on bool) error {
	if s.Enabled == nil {
		return fmt.Errorf("enabled: %w", ErrReadOnly)
	}
	v := 0.0
	if on {
		v = 1
	}
	return s.Enabled.Set(v)
}

func (s *Set) SetGains(kp, ki, kd float64) error {
	var errs []error
	for _, g := range []struct {
		name string
		t    Target
		v    float64
	}{{"p", s.P, kp}, {"i", s.I, ki}, {"d", s.D, kd}} {
		if g.t == nil {
			errs = append(errs, fmt.Errorf("%s: %w", g.name, ErrReadOnly))
			continue
		}
		if err := g.t.Set(g.v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", g.name, err))
		}
	}
	return errors.Join(errs...)
}

// SetSetPoint writes a new set point when its target is writable.
func (s *Set) SetSetPoint(v float64) error {
	if s.SetPoint == nil {
		return fmt.Errorf("set_point: %w", ErrReadOnly)
	}
	return s.SetPoint.Set(v)
}
