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
	"math"
	"pidctl/internal/events"
	"pidctl/pkg/eventbus"
	"pidctl/pkg/logger"
	"pidctl/pkg/zwavejsws"
	"time"
)

// SensorMultilevelCC is the zwave command class of multilevel sensors
// (temperature, humidity, ...).
const SensorMultilevelCC = 49

// ZWaveSource follows one value of a zwave-js node. The current value is
// published on every (re)connect, then each "value updated" event for it.
type ZWaveSource struct {
	loop   string
	nodeID int
	value  zwavejsws.ValueID
	client *zwavejsws.Client
	bus    *eventbus.Bus
	log    *logger.Logger
	clock  func() time.Time
}

func NewZWaveSource(loop, addr string, nodeID int, property string, bus *eventbus.Bus) *ZWaveSource {
	log := logger.New("ZWave").Sub(loop)
	s := &ZWaveSource{
		loop:   loop,
		nodeID: nodeID,
		value:  zwavejsws.ValueID{CommandClass: SensorMultilevelCC, Property: property},
		client: zwavejsws.NewClient(addr).WithLogger(log),
		bus:    bus,
		log:    log,
		clock:  time.Now,
	}
	s.client.OnState(s.onState)
	s.client.OnEvent(s.onEvent)
	return s
}

func (s *ZWaveSource) WithCommandClass(cc int) *ZWaveSource {
	if cc > 0 {
		s.value.CommandClass = cc
	}
	return s
}

func (s *ZWaveSource) Run(ctx context.Context) {
	s.log.Info("Running... (node %d, cc %d, %q)", s.nodeID, s.value.CommandClass, s.value.Property)
	defer s.log.Info("Stopped")
	s.client.Run(ctx)
}

func (s *ZWaveSource) onState(state zwavejsws.State) {
	node, err := state.FindNode(s.nodeID)
	if err != nil {
		s.log.Error("%v", err)
		return
	}
	s.log.Info("zwave node [name=%s, location=%s]", node.Name, node.Location)

	values, err := node.ParseValues()
	if err != nil {
		s.log.Error("%v", err)
		return
	}
	for _, v := range values {
		if s.value.MatchValue(v) {
			s.log.Info("current value: %v %s", v.Value, v.Metadata.Unit)
			s.publish(v.Value)
			return
		}
	}
	s.log.Warn("node %d has no value %+v", s.nodeID, s.value)
}

func (s *ZWaveSource) onEvent(ev zwavejsws.Event) {
	if !ev.IsValueUpdate() || ev.NodeID != s.nodeID {
		return
	}
	u, err := ev.ParseValueUpdated()
	if err != nil {
		s.log.Error("%v", err)
		return
	}
	if s.value.MatchUpdate(u) {
		s.publish(u.NewValue)
	}
}

func (s *ZWaveSource) publish(raw any) {
	v, ok := zwavejsws.Number(raw)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		s.log.Warn("ignoring non-numeric value %v", raw)
		return
	}
	s.bus.Publish(events.TopicFeedback(s.loop), events.FeedbackUpdate{Value: v, Time: s.clock()})
}
