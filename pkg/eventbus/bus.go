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

package eventbus

import (
	"context"
	"pidctl/pkg/logger"
	"sync"
	"sync/atomic"
)

type Topic string
type Event = any

// Stats counts bus traffic since creation.
type Stats struct {
	Published int64 `json:"published"`
	Delivered int64 `json:"delivered"`
	Replaced  int64 `json:"replaced"`
	Dropped   int64 `json:"dropped"`
}

// Bus implements an in-memory pub/sub where the most recent event
// is the only one kept per subscriber. A slow subscriber never blocks
// a publisher, it just sees fewer, newer events.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic]map[uint64]chan Event
	last   map[Topic]Event
	nextID atomic.Uint64
	closed atomic.Bool
	log    *logger.Logger

	published atomic.Int64
	delivered atomic.Int64
	replaced  atomic.Int64
	dropped   atomic.Int64
}

// New returns an initialized Bus.
func New() *Bus {
	return &Bus{
		subs: make(map[Topic]map[uint64]chan Event),
		last: make(map[Topic]Event),
		log:  logger.New("EventBus"),
	}
}

func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Replaced:  b.replaced.Load(),
		Dropped:   b.dropped.Load(),
	}
}

// Publish stores ev as the last event for topic and hands it to every subscriber,
// replacing whatever value is still pending in their channel.
func (b *Bus) Publish(topic Topic, ev Event) {
	if b.closed.Load() {
		return
	}
	b.published.Add(1)

	// deliver under the lock so an unsubscribe cannot close ch mid-send
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last[topic] = ev
	for _, ch := range b.subs[topic] {
		b.publishReplace(ch, ev)
	}
}

// publishReplace delivers ev to a size-1 channel, evicting the pending value if needed.
// All operations are non-blocking.
func (b *Bus) publishReplace(ch chan Event, ev Event) {
	select {
	case ch <- ev:
		b.delivered.Add(1)
		return
	default:
	}

	select {
	case <-ch:
		b.replaced.Add(1)
	default:
	}
	select {
	case ch <- ev:
		b.delivered.Add(1)
	default:
		b.log.Error("dropped event: %+v", ev)
		b.dropped.Add(1)
	}
}

// Subscribe returns a receive-only channel for topic and an unsubscribe func.
// With withLast, the most recent stored event is delivered immediately.
// The channel is closed when ctx is canceled or unsubscribe is called.
func (b *Bus) Subscribe(ctx context.Context, topic Topic, withLast bool) (<-chan Event, func()) {
	if b.closed.Load() {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan Event, 1)
	id := b.nextID.Add(1)

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]chan Event)
	}
	b.subs[topic][id] = ch
	if last, ok := b.last[topic]; withLast && ok {
		b.publishReplace(ch, last)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	unsub := func() {
		once.Do(func() { close(done) })
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		if m, ok := b.subs[topic]; ok {
			if _, still := m[id]; still {
				delete(m, id)
				close(ch)
			}
			if len(m) == 0 {
				delete(b.subs, topic)
			}
		}
	}()

	return ch, unsub
}

// GetLast returns the last published event for a topic (if any).
func (b *Bus) GetLast(topic Topic) (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.last[topic]
	return v, ok
}

// Close closes the bus and all subscriber channels. After Close, Publish is a no-op and Subscribe
// returns a closed channel.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.Lock()
	for _, m := range b.subs {
		for _, ch := range m {
			close(ch)
		}
	}
	b.subs = make(map[Topic]map[uint64]chan Event)
	b.last = make(map[Topic]Event)
	b.mu.Unlock()
}
