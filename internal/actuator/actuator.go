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

// Package actuator holds the sinks a control loop writes its output to.
package actuator

import (
	"pidctl/pkg/logger"
)

// Sink receives the scaled output of a control loop.
type Sink interface {
	Write(value float64) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(value float64) error

func (f SinkFunc) Write(value float64) error { return f(value) }

// Log is a dry-run sink.
type Log struct {
	log *logger.Logger
}

func NewLog(name string) *Log {
	return &Log{log: logger.New("Sink").Sub(name)}
}

func (l *Log) Write(value float64) error {
	l.log.Info("output=%v", value)
	return nil
}
