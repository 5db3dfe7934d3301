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

// Package feedback turns process measurements into FeedbackUpdate events.
package feedback

import (
	"context"
	"pidctl/internal/events"
	"pidctl/pkg/eventbus"
	"pidctl/pkg/logger"
	"time"
)

// Reader returns the current process value.
type Reader interface {
	Read(ctx context.Context) (float64, error)
}

type ReaderFunc func(ctx context.Context) (float64, error)

func (f ReaderFunc) Read(ctx context.Context) (float64, error) { return f(ctx) }

// Poller reads a Reader on a fixed interval and publishes each value on the
// loop's feedback topic.
type Poller struct {
	loop     string
	reader   Reader
	interval time.Duration
	bus      *eventbus.Bus
	log      *logger.Logger

	failures int
}

func NewPoller(loop string, reader Reader, interval time.Duration, bus *eventbus.Bus) *Poller {
	return &Poller{
		loop:     loop,
		reader:   reader,
		interval: interval,
		bus:      bus,
		log:      logger.New("Poller").Sub(loop),
	}
}

func (p *Poller) Run(ctx context.Context) {
	p.log.Info("Running... (every %v)", p.interval)
	defer p.log.Info("Stopped")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	readCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	v, err := p.reader.Read(readCtx)
	if err != nil {
		p.failures++
		// log the first failure and then every 10th to keep the log readable
		if p.failures == 1 || p.failures%10 == 0 {
			p.log.Error("read failed (%d in a row): %v", p.failures, err)
		}
		return
	}
	if p.failures > 0 {
		p.log.Info("read recovered after %d failures", p.failures)
		p.failures = 0
	}
	p.bus.Publish(events.TopicFeedback(p.loop), events.FeedbackUpdate{Value: v, Time: time.Now()})
}
