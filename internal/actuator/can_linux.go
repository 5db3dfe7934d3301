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

//go:build linux

package actuator

import (
	"context"
	"fmt"

	"go.einride.tech/can/pkg/socketcan"
)

// DialCAN opens a SocketCAN interface such as "can0" or "vcan0".
func DialCAN(ctx context.Context, iface string, signal CANSignal) (*CAN, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial: %w", err)
	}
	c := NewCAN(socketcan.NewTransmitter(conn), signal)
	c.close = conn.Close
	return c, nil
}
