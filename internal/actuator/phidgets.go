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
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type DigitalOutRequest struct {
	Name        string `json:"name"`
	TargetState bool   `json:"target_state"`
	Channel     int    `json:"channel"`
	HubPort     int    `json:"hub_port"`
}

type VoltageOutRequest struct {
	Name        string  `json:"name"`
	TargetState float64 `json:"target_state"`
	Channel     int     `json:"channel"`
	HubPort     int     `json:"hub_port"`
}

// Phidgets drives an output through the phidgets HTTP bridge. In voltage mode the
// value is sent as volts; in digital mode the output is on when value >= Threshold.
type Phidgets struct {
	ServerURL string
	Name      string
	Channel   int
	HubPort   int
	Digital   bool
	Threshold float64

	client *http.Client
}

func NewPhidgets(serverURL, name string, channel, hubPort int) *Phidgets {
	return &Phidgets{
		ServerURL: serverURL,
		Name:      name,
		Channel:   channel,
		HubPort:   hubPort,
		client:    &http.Client{Timeout: 5 * time.Second},
	}
}

// AsDigital switches the sink to on/off output.
func (p *Phidgets) AsDigital(threshold float64) *Phidgets {
	p.Digital = true
	p.Threshold = threshold
	return p
}

func (p *Phidgets) Write(value float64) error {
	if p.Digital {
		return p.postJSON("/phidgets/digital_out", DigitalOutRequest{
			Name:        p.Name,
			TargetState: value >= p.Threshold,
			Channel:     p.Channel,
			HubPort:     p.HubPort,
		})
	}
	return p.postJSON("/phidgets/voltage_out", VoltageOutRequest{
		Name:        p.Name,
		TargetState: value,
		Channel:     p.Channel,
		HubPort:     p.HubPort,
	})
}

// SetRelay implements Relay so a digital output can back a DutyCycle.
func (p *Phidgets) SetRelay(on bool) error {
	return p.postJSON("/phidgets/digital_out", DigitalOutRequest{
		Name:        p.Name,
		TargetState: on,
		Channel:     p.Channel,
		HubPort:     p.HubPort,
	})
}

func (p *Phidgets) postJSON(path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	resp, err := p.client.Post(p.ServerURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("HTTP POST failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
