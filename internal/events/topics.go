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

package events

import (
	"pidctl/internal/controller/autotune"
	"pidctl/pkg/eventbus"
	"time"
)

func TopicFeedback(loop string) eventbus.Topic { return eventbus.Topic("feedback/" + loop) }
func TopicCommand(loop string) eventbus.Topic  { return eventbus.Topic("command/" + loop) }
func TopicState(loop string) eventbus.Topic    { return eventbus.Topic("state/" + loop) }

type FeedbackUpdate struct {
	Value float64
	Time  time.Time
}

const (
	CmdSetPoint      = "set_point"
	CmdReset         = "reset"
	CmdAutotuneStart = "autotune_start"
	CmdAutotuneStop  = "autotune_stop"
	CmdEnable        = "enable"
	CmdDisable       = "disable"
)

type Command struct {
	Name  string  `json:"name"`
	Value float64 `json:"value,omitempty"`
}

// LoopState is published after every processed feedback sample or command.
type LoopState struct {
	Loop      string    `json:"loop"`
	Time      time.Time `json:"time"`
	Mode      string    `json:"mode"` // "pid", "relay" or "disabled"
	Feedback  float64   `json:"feedback"`
	SetPoint  float64   `json:"set_point"`
	RawOutput float64   `json:"raw_output"` // [0,100]
	Output    float64   `json:"output"`     // scaled and rounded
	PTerm     float64   `json:"p_term"`
	ITerm     float64   `json:"i_term"`
	DTerm     float64   `json:"d_term"`
	Kp        float64   `json:"kp"`
	Ki        float64   `json:"ki"`
	Kd        float64   `json:"kd"`
	Enabled   bool      `json:"enabled"`
	Inverted  bool      `json:"inverted"`

	Tuning    bool             `json:"tuning"`
	Stage     string           `json:"stage"`
	Crossings int              `json:"crossings"`
	LastTune  *autotune.Result `json:"last_tune,omitempty"`
	SinkError string           `json:"sink_error,omitempty"`
}
