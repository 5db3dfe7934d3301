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
	"fmt"
	"pidctl/pkg/logger"
	"time"
)

// Retry writes through to another sink, trying again on failure.
type Retry struct {
	sink     Sink
	attempts int
	delay    time.Duration
	sleep    func(time.Duration)
	log      *logger.Logger
}

func NewRetry(sink Sink, attempts int, delay time.Duration) *Retry {
	if attempts < 1 {
		attempts = 1
	}
	return &Retry{
		sink:     sink,
		attempts: attempts,
		delay:    delay,
		sleep:    time.Sleep,
		log:      logger.New("Retry"),
	}
}

func (r *Retry) Write(value float64) error {
	var err error
	for i := range r.attempts {
		if err = r.sink.Write(value); err == nil {
			return nil
		}
		r.log.Error("attempt %d/%d: %v", i+1, r.attempts, err)
		if i+1 < r.attempts {
			r.sleep(r.delay)
		}
	}
	return fmt.Errorf("write failed after %d attempts: %w", r.attempts, err)
}
