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
	"encoding/json"
	"errors"
	"io"
	"math"
	"pidctl/internal/events"
	"pidctl/pkg/eventbus"
	"pidctl/pkg/sysmon"
	"pidctl/pkg/zwavejsws"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan eventbus.Event) events.FeedbackUpdate {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev.(events.FeedbackUpdate)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feedback")
		return events.FeedbackUpdate{}
	}
}

func TestPoller_PublishesReadings(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := bus.Subscribe(ctx, events.TopicFeedback("tank"), false)

	values := []float64{21.5, 22}
	n := 0
	reader := ReaderFunc(func(ctx context.Context) (float64, error) {
		if n >= len(values) {
			return 0, errors.New("sensor gone")
		}
		v := values[n]
		n++
		return v, nil
	})

	p := NewPoller("tank", reader, time.Hour, bus)
	p.poll(ctx)
	ev := receive(t, ch)
	assert.Equal(t, 21.5, ev.Value)
	assert.False(t, ev.Time.IsZero())

	p.poll(ctx)
	assert.Equal(t, 22.0, receive(t, ch).Value)

	p.poll(ctx)
	p.poll(ctx)
	assert.Equal(t, 2, p.failures)
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}

func TestPoller_RunPollsImmediately(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := bus.Subscribe(ctx, events.TopicFeedback("fan"), false)
	p := NewPoller("fan", ReaderFunc(func(context.Context) (float64, error) { return 55, nil }), time.Hour, bus)
	go p.Run(ctx)

	assert.Equal(t, 55.0, receive(t, ch).Value)
}

type fakeRegisters map[string]float64

func (f fakeRegisters) ReadFloat(name string) (float64, error) {
	v, ok := f[name]
	if !ok {
		return 0, errors.New("not configured")
	}
	return v, nil
}

func TestModbusReader(t *testing.T) {
	r := NewModbusReader(fakeRegisters{"supply_temp": 38.2}, "supply_temp")
	v, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 38.2, v)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHostReader(t *testing.T) {
	h := NewHostReader(sysmon.CPUTemp)
	h.read = func(m sysmon.Metric) (float64, error) {
		assert.Equal(t, sysmon.CPUTemp, m)
		return 61, nil
	}
	v, err := h.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 61.0, v)
}

func TestSerialSource_Parse(t *testing.T) {
	s := NewSerialSource("oven", "/dev/null", 0, 1, ";", nil)
	assert.Equal(t, 9600, s.baud)

	v, err := s.parse("T; 182.5 ;ok\r")
	require.NoError(t, err)
	assert.Equal(t, 182.5, v)

	for _, line := range []string{"", "T", "T;hot;ok", "T;NaN"} {
		_, err := s.parse(line)
		assert.Error(t, err, "line %q", line)
	}
}

type nopCloser struct {
	io.Reader
	closed bool
}

func (n *nopCloser) Close() error {
	n.closed = true
	return nil
}

func TestSerialSource_ScanPublishesLines(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := bus.Subscribe(ctx, events.TopicFeedback("oven"), true)
	s := NewSerialSource("oven", "/dev/ttyUSB0", 115200, 0, ",", bus)

	r := &nopCloser{Reader: strings.NewReader("180.0\ngarbage\n181.5,ok\n")}
	err := s.scan(ctx, r)
	assert.ErrorIs(t, err, io.EOF)
	assert.True(t, r.closed)

	// latest value wins on the bus
	assert.Equal(t, 181.5, receive(t, ch).Value)
}

func TestSerialSource_RunRetriesOpen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSerialSource("oven", "/dev/missing", 0, 0, "", eventbus.New())
	s.retryDelay = time.Millisecond

	attempts := make(chan struct{}, 1)
	s.open = func() (io.ReadCloser, error) {
		select {
		case attempts <- struct{}{}:
		default:
		}
		return nil, errors.New("no such device")
	}

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	for range 3 {
		select {
		case <-attempts:
		case <-time.After(2 * time.Second):
			t.Fatal("open not retried")
		}
	}
	cancel()
	<-done
}

func zwaveState(t *testing.T, raw string) zwavejsws.State {
	t.Helper()
	var s zwavejsws.State
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	return s
}

func TestZWaveSource_InitialValueAndUpdates(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := bus.Subscribe(ctx, events.TopicFeedback("hall"), false)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewZWaveSource("hall", "ws://unused", 7, "Air temperature", bus)
	s.clock = func() time.Time { return now }

	s.onState(zwaveState(t, `{"nodes": [
		{"nodeId": 7, "values": [
			{"commandClass": 49, "property": "Humidity", "value": 40},
			{"commandClass": 49, "property": "Air temperature", "value": 21.5}
		]}
	]}`))
	got := receive(t, ch)
	assert.Equal(t, 21.5, got.Value)
	assert.Equal(t, now, got.Time)

	// other node, other property, other event type: all ignored
	s.onEvent(zwavejsws.Event{Type: "value updated", NodeID: 8,
		Args: []byte(`{"commandClass": 49, "property": "Air temperature", "newValue": 99}`)})
	s.onEvent(zwavejsws.Event{Type: "value updated", NodeID: 7,
		Args: []byte(`{"commandClass": 49, "property": "Humidity", "newValue": 55}`)})
	s.onEvent(zwavejsws.Event{Type: "statistics updated", NodeID: 7})

	s.onEvent(zwavejsws.Event{Type: "value updated", NodeID: 7,
		Args: []byte(`{"commandClass": 49, "property": "Air temperature", "newValue": 22.25}`)})
	assert.Equal(t, 22.25, receive(t, ch).Value)
	assert.Equal(t, int64(2), bus.Stats().Published)
}

func TestZWaveSource_MissingNodeOrValue(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()

	s := NewZWaveSource("hall", "ws://unused", 7, "Air temperature", bus).WithCommandClass(67)
	s.onState(zwaveState(t, `{"nodes": [{"nodeId": 3, "values": []}]}`))
	s.onState(zwaveState(t, `{"nodes": [{"nodeId": 7, "values": [
		{"commandClass": 49, "property": "Air temperature", "value": 21.5}
	]}]}`))
	s.onEvent(zwavejsws.Event{Type: "value updated", NodeID: 7,
		Args: []byte(`{"commandClass": 67, "property": "Air temperature", "newValue": "n/a"}`)})

	_, ok := bus.GetLast(events.TopicFeedback("hall"))
	assert.False(t, ok)
}

func TestChecked_Limits(t *testing.T) {
	readings := []float64{20, 200, -80, 45, 21, math.NaN()}
	n := 0
	inner := ReaderFunc(func(ctx context.Context) (float64, error) {
		v := readings[n]
		n++
		return v, nil
	})

	lo, hi := -50.0, 50.0
	r := Checked(inner, Limits{Min: &lo, Max: &hi, MaxStep: 15}).(*checkedReader)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r.clock = func() time.Time { return now }

	ctx := context.Background()
	v, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20.0, v)

	_, err = r.Read(ctx)
	assert.ErrorContains(t, err, "above maximum")
	_, err = r.Read(ctx)
	assert.ErrorContains(t, err, "below minimum")

	now = now.Add(time.Minute)
	_, err = r.Read(ctx)
	assert.ErrorContains(t, err, "changed too fast")

	v, err = r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 21.0, v)

	_, err = r.Read(ctx)
	assert.ErrorContains(t, err, "not finite")
}

func TestChecked_NoLimitsIsPassthrough(t *testing.T) {
	inner := ReaderFunc(func(ctx context.Context) (float64, error) { return 1, nil })
	r := Checked(inner, Limits{})
	_, wrapped := r.(*checkedReader)
	assert.False(t, wrapped)
}
