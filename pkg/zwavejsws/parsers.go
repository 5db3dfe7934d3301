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

package zwavejsws

import (
	"encoding/json"
	"fmt"
	"strconv"
)

func (e Event) IsValueUpdate() bool {
	return e.Type == "value updated"
}

// ParseValueUpdated parses a "value updated" event into an UpdatedValue
func (e Event) ParseValueUpdated() (UpdatedValue, error) {
	if !e.IsValueUpdate() {
		return UpdatedValue{}, fmt.Errorf("not a value updated event: %q", e.Type)
	}
	var value UpdatedValue
	if err := json.Unmarshal(e.Args, &value); err != nil {
		return UpdatedValue{}, fmt.Errorf("unmarshal zwave-js UpdatedValue: %w", err)
	}
	return value, nil
}

func (s State) ParseNodes() ([]Node, error) {
	var nodes []Node
	if err := json.Unmarshal(s.Nodes, &nodes); err != nil {
		return nil, fmt.Errorf("unmarshal zwave-js nodes: %w", err)
	}
	return nodes, nil
}

// FindNode returns the node with the given id.
func (s State) FindNode(id int) (Node, error) {
	nodes, err := s.ParseNodes()
	if err != nil {
		return Node{}, err
	}
	for _, n := range nodes {
		if n.NodeID == id {
			return n, nil
		}
	}
	return Node{}, fmt.Errorf("node %d not found among %d node(s)", id, len(nodes))
}

func (n Node) ParseValues() ([]Value, error) {
	var values []Value
	if err := json.Unmarshal(n.Values, &values); err != nil {
		return nil, fmt.Errorf("unmarshal zwave-js node values: %w", err)
	}
	return values, nil
}

// ValueID selects one value of a node by command class and property.
// Property matches either the raw property or its propertyName.
type ValueID struct {
	CommandClass int
	Property     string
}

func (id ValueID) match(cc int, property any, name string) bool {
	if cc != id.CommandClass {
		return false
	}
	return name == id.Property || fmt.Sprint(property) == id.Property
}

func (id ValueID) MatchValue(v Value) bool {
	return id.match(v.CommandClass, v.Property, v.PropertyName)
}

func (id ValueID) MatchUpdate(u UpdatedValue) bool {
	return id.match(u.CommandClass, u.Property, u.PropertyName)
}

// Number converts a zwave-js value to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
