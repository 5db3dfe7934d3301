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
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"pidctl/internal/events"
	"pidctl/pkg/eventbus"
	"pidctl/pkg/logger"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
)

// SerialSource reads newline-terminated readings from a serial sensor and
// publishes every line that parses. A line may carry several separated fields;
// Field selects which one holds the value.
type SerialSource struct {
	loop      string
	port      string
	baud      int
	field     int
	separator string
	bus       *eventbus.Bus
	log       *logger.Logger

	open       func() (io.ReadCloser, error)
	retryDelay time.Duration
}

func NewSerialSource(loop, port string, baud, field int, separator string, bus *eventbus.Bus) *SerialSource {
	if baud == 0 {
		baud = 9600
	}
	if separator == "" {
		separator = ","
	}
	s := &SerialSource{
		loop:       loop,
		port:       port,
		baud:       baud,
		field:      field,
		separator:  separator,
		bus:        bus,
		log:        logger.New("Serial").Sub(loop),
		retryDelay: 5 * time.Second,
	}
	s.open = s.openPort
	return s
}

func (s *SerialSource) openPort() (io.ReadCloser, error) {
	p, err := serial.Open(s.port, &serial.Mode{BaudRate: s.baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.port, err)
	}
	return p, nil
}

// Run reads until ctx is cancelled, reopening the port after errors.
func (s *SerialSource) Run(ctx context.Context) {
	s.log.Info("Running... (%s @ %d baud)", s.port, s.baud)
	defer s.log.Info("Stopped")

	for {
		port, err := s.open()
		if err != nil {
			s.log.Error("%v", err)
		} else {
			err = s.scan(ctx, port)
			if ctx.Err() == nil {
				s.log.Error("read: %v", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retryDelay):
		}
	}
}

// scan publishes readings from r until it fails or ctx is cancelled. r is closed on return.
func (s *SerialSource) scan(ctx context.Context, r io.ReadCloser) error {
	stop := context.AfterFunc(ctx, func() { r.Close() })
	defer func() {
		if stop() {
			r.Close()
		}
	}()

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		v, err := s.parse(sc.Text())
		if err != nil {
			s.log.Debug("skipping line: %v", err)
			continue
		}
		s.bus.Publish(events.TopicFeedback(s.loop), events.FeedbackUpdate{Value: v, Time: time.Now()})
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (s *SerialSource) parse(line string) (float64, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, fmt.Errorf("empty line")
	}
	fields := strings.Split(line, s.separator)
	if s.field < 0 || s.field >= len(fields) {
		return 0, fmt.Errorf("line %q has no field %d", line, s.field)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(fields[s.field]), 64)
	if err != nil {
		return 0, fmt.Errorf("line %q: %w", line, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("line %q: value is not finite", line)
	}
	return v, nil
}
