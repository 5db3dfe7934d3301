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

//go:build linux

package actuator

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// GPIORelay drives a GPIO line through the character device.
type GPIORelay struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// OpenGPIORelay requests the named line (e.g. "GPIO17") on chip (e.g. "gpiochip0")
// as an output, initially off.
func OpenGPIORelay(chip, lineName string, activeLow bool) (*GPIORelay, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("gpio chip %s: %w", chip, err)
	}
	offset, err := c.FindLine(lineName)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("gpio line %q: %w", lineName, err)
	}
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0), gpiocdev.WithConsumer("pidctl")}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := c.RequestLine(offset, opts...)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("gpio request %q: %w", lineName, err)
	}
	return &GPIORelay{chip: c, line: line}, nil
}

func (g *GPIORelay) SetRelay(on bool) error {
	if g == nil || g.line == nil {
		return fmt.Errorf("gpio relay not initialized")
	}
	v := 0
	if on {
		v = 1
	}
	return g.line.SetValue(v)
}

// Close switches the line off and releases it.
func (g *GPIORelay) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	_ = g.line.SetValue(0)
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
